package export

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Format is an export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// MIME types per format.
const (
	MimeCSV  = "text/csv"
	MimeJSON = "application/json"
)

// ErrUnsupportedFormat is returned for any format other than csv or json.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ParseFormat parses a case-insensitive format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q (must be csv or json)", ErrUnsupportedFormat, s)
	}
}

// MimeType returns the content type for f.
func (f Format) MimeType() string {
	if f == FormatJSON {
		return MimeJSON
	}
	return MimeCSV
}

// Payload is a rendered export ready to hand to a caller.
type Payload struct {
	Data     []byte `json:"data"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
}

// Error represents a failure while rendering an export.
type Error struct {
	Format  Format
	Written int // Rows or records written before the failure
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("export error [format=%s, written=%d]: %v", e.Format, e.Written, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(format Format, written int, cause error) *Error {
	return &Error{Format: format, Written: written, Cause: cause}
}

// ReportFilename names a summary export for the period.
func ReportFilename(start, end time.Time, f Format) string {
	return fmt.Sprintf("cost-report-%s-to-%s.%s", start.UTC().Format(time.DateOnly), end.UTC().Format(time.DateOnly), f)
}

// EntriesFilename names an entry-level export for the period.
func EntriesFilename(start, end time.Time, f Format) string {
	return fmt.Sprintf("cost-entries-%s-to-%s.%s", start.UTC().Format(time.DateOnly), end.UTC().Format(time.DateOnly), f)
}
