package pricing

// calculateTieredCost spreads quantity across graduated tiers. A tier with
// UpTo == 0 absorbs everything left. Quantity beyond a bounded final tier is
// charged at that tier's rate.
func calculateTieredCost(quantity float64, tiers []TierRate) float64 {
	if quantity <= 0 || len(tiers) == 0 {
		return 0
	}

	var total float64
	remaining := quantity
	previousLimit := 0.0

	for _, tier := range tiers {
		if remaining <= 0 {
			break
		}

		if tier.UpTo == 0 {
			total += remaining * tier.UnitRate
			remaining = 0
			break
		}

		usage := min(remaining, tier.UpTo-previousLimit)
		total += usage * tier.UnitRate
		remaining -= usage
		previousLimit = tier.UpTo
	}

	if remaining > 0 {
		total += remaining * tiers[len(tiers)-1].UnitRate
	}

	return total
}
