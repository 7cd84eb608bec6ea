package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"mercator-hq/meter/pkg/telemetry/logging"
)

// RequestIDHeader is the HTTP header carrying the request id.
const RequestIDHeader = "X-Request-ID"

// RequestID stores a request id in the context and echoes it in the
// response. A client-provided X-Request-ID is reused; otherwise a UUIDv7 is
// generated. Loggers built by pkg/telemetry/logging add it to every record.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.Must(uuid.NewV7()).String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}
