package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"mercator-hq/meter/pkg/alert"
	"mercator-hq/meter/pkg/budget"
	"mercator-hq/meter/pkg/config"
	"mercator-hq/meter/pkg/ledger"
	"mercator-hq/meter/pkg/ledger/export"
	"mercator-hq/meter/pkg/recorder"
)

// errBadRequest marks malformed bodies and parameters.
var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error    string   `json:"error"`
	Problems []string `json:"problems,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, recorder.ErrInvalidDraft),
		errors.Is(err, budget.ErrInvalidSpec),
		errors.Is(err, alert.ErrInvalidSpec),
		errors.Is(err, ledger.ErrInvalidQuery),
		errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, budget.ErrBudgetNotFound),
		errors.Is(err, alert.ErrAlertNotFound):
		return http.StatusNotFound
	case errors.Is(err, budget.ErrDuplicateBudget),
		errors.Is(err, alert.ErrDuplicateAlert),
		errors.Is(err, ledger.ErrDuplicateEntry):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// problems extracts the field problems of a validation error.
func problems(err error) []string {
	var (
		rv *recorder.ValidationError
		bv *budget.ValidationError
		av *alert.ValidationError
	)
	switch {
	case errors.As(err, &rv):
		return rv.Problems
	case errors.As(err, &bv):
		return bv.Problems
	case errors.As(err, &av):
		return av.Problems
	}
	return nil
}

// writeError writes err with its mapped status. Internal errors are logged
// and replaced by a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeJSON(w, status, errorResponse{Error: "internal server error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Problems: problems(err)})
}

// readJSON decodes a size-limited JSON body into v.
func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	limit := s.config.MaxBodyBytes
	if limit <= 0 {
		limit = config.DefaultMaxBodyBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}
