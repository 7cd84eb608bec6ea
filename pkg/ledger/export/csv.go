package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"slices"
	"strconv"
	"time"

	"mercator-hq/meter/pkg/costs"
	"mercator-hq/meter/pkg/summary"
)

// formatUSD renders an amount with four decimals.
func formatUSD(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// SummaryCSV renders a summary in the report layout. Category and service
// rows are sorted by key.
func SummaryCSV(s *summary.Summary) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{
		{"Metric", "Value"},
		{"Total Cost (USD)", formatUSD(s.TotalCostUSD)},
		{"Total Operations", strconv.Itoa(s.TotalOperations)},
		{"Period Start", s.PeriodStart.UTC().Format(time.RFC3339)},
		{"Period End", s.PeriodEnd.UTC().Format(time.RFC3339)},
		{},
		{"Cost by Category"},
	}

	categories := make([]string, 0, len(s.ByCategory))
	for c := range s.ByCategory {
		categories = append(categories, string(c))
	}
	slices.Sort(categories)
	for _, c := range categories {
		rows = append(rows, []string{c, formatUSD(s.ByCategory[costs.Category(c)])})
	}

	rows = append(rows, []string{}, []string{"Cost by Service"})
	services := make([]string, 0, len(s.ByService))
	for svc := range s.ByService {
		services = append(services, svc)
	}
	slices.Sort(services)
	for _, svc := range services {
		rows = append(rows, []string{svc, formatUSD(s.ByService[svc])})
	}

	for i, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, newError(FormatCSV, i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, newError(FormatCSV, len(rows), err)
	}
	return buf.Bytes(), nil
}

// EntryHeader is the header row of an entry-level CSV export.
var EntryHeader = []string{
	"id", "timestamp", "category", "service", "operation",
	"cost_usd", "units_consumed", "unit_type", "cost_per_unit", "tier",
	"initiator_type", "initiator_id", "initiator_name",
	"session_id", "department_id", "metadata",
}

func entryRow(e *costs.Entry) ([]string, error) {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return nil, err
	}
	return []string{
		e.ID,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		string(e.Category),
		e.Service,
		e.Operation,
		strconv.FormatFloat(e.CostUSD, 'f', -1, 64),
		strconv.FormatInt(e.UnitsConsumed, 10),
		string(e.UnitType),
		strconv.FormatFloat(e.CostPerUnit, 'f', -1, 64),
		string(e.Tier),
		string(e.InitiatedBy.Type),
		e.InitiatedBy.ID,
		e.InitiatedBy.Name,
		e.SessionID,
		e.Metadata.DepartmentID,
		string(metadata),
	}, nil
}

// EntriesCSV streams entries from entriesCh as CSV rows with a header.
// It flushes every 100 rows.
func EntriesCSV(ctx context.Context, entriesCh <-chan *costs.Entry, w io.Writer) (int, error) {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(EntryHeader); err != nil {
		return 0, newError(FormatCSV, 0, err)
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return count, ctx.Err()

		case e, ok := <-entriesCh:
			if !ok {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return count, newError(FormatCSV, count, err)
				}
				return count, nil
			}

			row, err := entryRow(e)
			if err != nil {
				return count, newError(FormatCSV, count, err)
			}
			if err := writer.Write(row); err != nil {
				return count, newError(FormatCSV, count, err)
			}
			count++

			if count%100 == 0 {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return count, newError(FormatCSV, count, err)
				}
			}
		}
	}
}
