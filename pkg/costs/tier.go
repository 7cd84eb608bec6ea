package costs

// Tier is a coarse cost-magnitude bucket.
type Tier string

const (
	TierFree    Tier = "free"
	TierLow     Tier = "low"
	TierMedium  Tier = "medium"
	TierHigh    Tier = "high"
	TierPremium Tier = "premium"
)

// Tier breakpoints in USD. Each bound is inclusive.
const (
	lowTierMax    = 1.0
	mediumTierMax = 10.0
	highTierMax   = 100.0
)

// CalculateTier maps a cost to its tier.
func CalculateTier(costUSD float64) Tier {
	switch {
	case costUSD <= 0:
		return TierFree
	case costUSD <= lowTierMax:
		return TierLow
	case costUSD <= mediumTierMax:
		return TierMedium
	case costUSD <= highTierMax:
		return TierHigh
	default:
		return TierPremium
	}
}

// Tiers returns all tiers in ascending order.
func Tiers() []Tier {
	return []Tier{TierFree, TierLow, TierMedium, TierHigh, TierPremium}
}

// Rank returns the position of t in the tier ordering, or -1 if t is unknown.
func (t Tier) Rank() int {
	for i, known := range Tiers() {
		if t == known {
			return i
		}
	}
	return -1
}

// Max returns the higher of two tiers.
func (t Tier) Max(other Tier) Tier {
	if other.Rank() > t.Rank() {
		return other
	}
	return t
}
