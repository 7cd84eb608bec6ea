package ledger

import (
	"cmp"
	"slices"
	"strings"

	"mercator-hq/meter/pkg/costs"
)

// SortEntries orders entries in place. The default is timestamp ascending,
// which matches append order. Ties are broken by id so the order is total.
func SortEntries(entries []*costs.Entry, sortBy, sortOrder string) {
	desc := strings.EqualFold(sortOrder, SortDesc)
	slices.SortStableFunc(entries, func(a, b *costs.Entry) int {
		var c int
		if sortBy == SortByCost {
			c = cmp.Compare(a.CostUSD, b.CostUSD)
		} else {
			c = a.Timestamp.Compare(b.Timestamp)
		}
		if c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		if desc {
			return -c
		}
		return c
	})
}
