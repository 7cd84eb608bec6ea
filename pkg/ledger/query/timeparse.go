package query

import (
	"strconv"
	"strings"
	"time"

	"mercator-hq/meter/pkg/ledger"
)

// ParseTime parses a range bound for field. It accepts RFC3339, a plain
// date (midnight UTC), "now", or a relative age such as "90m", "24h" or
// "7d", which is subtracted from now.
func ParseTime(field, s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return time.Time{}, ledger.NewQueryError(field, "is required")
	case s == "now":
		return now, nil
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}

	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return time.Time{}, ledger.NewQueryError(field, "invalid relative time "+strconv.Quote(s))
		}
		return now.AddDate(0, 0, -n), nil
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return now.Add(-d), nil
	}
	return time.Time{}, ledger.NewQueryError(field, "must be RFC3339, a date, now, or a relative time like 24h or 7d (got "+strconv.Quote(s)+")")
}
