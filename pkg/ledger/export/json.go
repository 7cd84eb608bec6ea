package export

import (
	"context"
	"encoding/json"
	"io"

	"mercator-hq/meter/pkg/costs"
	"mercator-hq/meter/pkg/summary"
)

// SummaryJSON renders a summary as an indented JSON object.
func SummaryJSON(s *summary.Summary) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, newError(FormatJSON, 0, err)
	}
	return data, nil
}

// Summary renders s in the requested format with its filename and MIME type.
func Summary(s *summary.Summary, f Format) (*Payload, error) {
	var (
		data []byte
		err  error
	)
	switch f {
	case FormatCSV:
		data, err = SummaryCSV(s)
	case FormatJSON:
		data, err = SummaryJSON(s)
	default:
		return nil, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, err
	}
	return &Payload{
		Data:     data,
		Filename: ReportFilename(s.PeriodStart, s.PeriodEnd, f),
		MimeType: f.MimeType(),
	}, nil
}

// EntriesJSON streams entries from entriesCh as a JSON array.
func EntriesJSON(ctx context.Context, entriesCh <-chan *costs.Entry, w io.Writer) (int, error) {
	if _, err := io.WriteString(w, "["); err != nil {
		return 0, newError(FormatJSON, 0, err)
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return count, ctx.Err()

		case e, ok := <-entriesCh:
			if !ok {
				if _, err := io.WriteString(w, "]"); err != nil {
					return count, newError(FormatJSON, count, err)
				}
				return count, nil
			}

			if count > 0 {
				if _, err := io.WriteString(w, ","); err != nil {
					return count, newError(FormatJSON, count, err)
				}
			}
			data, err := json.Marshal(e)
			if err != nil {
				return count, newError(FormatJSON, count, err)
			}
			if _, err := w.Write(data); err != nil {
				return count, newError(FormatJSON, count, err)
			}
			count++
		}
	}
}

// Entries streams entries in format f and returns the number written.
func Entries(ctx context.Context, entriesCh <-chan *costs.Entry, w io.Writer, f Format) (int, error) {
	switch f {
	case FormatCSV:
		return EntriesCSV(ctx, entriesCh, w)
	case FormatJSON:
		return EntriesJSON(ctx, entriesCh, w)
	default:
		return 0, ErrUnsupportedFormat
	}
}
