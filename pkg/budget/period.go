package budget

import "time"

// Bounds returns the UTC calendar period containing t. Weeks start on
// Monday. Custom periods have no calendar bounds and return zero times.
func Bounds(p Period, t time.Time) (start, end time.Time) {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	switch p {
	case PeriodDaily:
		return day, day.AddDate(0, 0, 1)
	case PeriodWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		start = day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7)
	case PeriodMonthly:
		start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	}
	return time.Time{}, time.Time{}
}

// Due reports whether a calendar budget's period has ended at t.
func (b *Budget) Due(t time.Time) bool {
	return b.Period != PeriodCustom && !t.Before(b.PeriodEnd)
}

// resetFor moves the budget into the period containing t and clears its
// running state.
func (b *Budget) resetFor(t time.Time) {
	b.PeriodStart, b.PeriodEnd = Bounds(b.Period, t)
	b.SpentUSD = 0
	b.UtilizationPercent = 0
	b.Status = StatusActive
	b.Reached = nil
	b.UpdatedAt = t
}
