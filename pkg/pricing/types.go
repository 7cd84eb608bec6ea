package pricing

// PricingModel names how a service charges.
type PricingModel string

const (
	ModelPerCall            PricingModel = "per_call"
	ModelPerToken           PricingModel = "per_token"
	ModelTieredSubscription PricingModel = "tiered_subscription"
	ModelPerUnit            PricingModel = "per_unit"

	// ModelFallback marks results priced with the table's default descriptor.
	ModelFallback PricingModel = "fallback"
)

// Valid reports whether m is one of the four table pricing models.
func (m PricingModel) Valid() bool {
	switch m {
	case ModelPerCall, ModelPerToken, ModelTieredSubscription, ModelPerUnit:
		return true
	}
	return false
}

// Dimension names the consumption dimension a descriptor charges on.
type Dimension string

const (
	DimensionResults    Dimension = "results"
	DimensionMinutes    Dimension = "minutes"
	DimensionExecutions Dimension = "executions"
	DimensionUnits      Dimension = "units"
)

// Valid reports whether d is a known dimension.
func (d Dimension) Valid() bool {
	switch d {
	case DimensionResults, DimensionMinutes, DimensionExecutions, DimensionUnits:
		return true
	}
	return false
}

// Descriptor declares how one service is priced.
type Descriptor struct {
	// Name is a human-readable label used in breakdown strings.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Provider groups per_token descriptors for model lookups ("openai").
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty"`

	Model     PricingModel `yaml:"model" json:"model"`
	Dimension Dimension    `yaml:"dimension,omitempty" json:"dimension,omitempty"`

	// per_call
	CostPerCall float64 `yaml:"cost_per_call,omitempty" json:"cost_per_call,omitempty"`

	// per_token, rates per 1000 tokens
	InputPer1K  float64 `yaml:"input_per_1k,omitempty" json:"input_per_1k,omitempty"`
	OutputPer1K float64 `yaml:"output_per_1k,omitempty" json:"output_per_1k,omitempty"`

	// per_unit
	UnitCost float64 `yaml:"unit_cost,omitempty" json:"unit_cost,omitempty"`

	// tiered_subscription
	BaseFee float64    `yaml:"base_fee,omitempty" json:"base_fee,omitempty"`
	Tiers   []TierRate `yaml:"tiers,omitempty" json:"tiers,omitempty"`
}

// TierRate is one band of a graduated price schedule. UpTo is the cumulative
// upper bound of the band; zero means unlimited.
type TierRate struct {
	UpTo     float64 `yaml:"up_to" json:"up_to"`
	UnitRate float64 `yaml:"unit_rate" json:"unit_rate"`
}

// Fallback is the conservative default applied to unknown services.
type Fallback struct {
	Fixed     float64 `yaml:"fixed" json:"fixed"`
	PerResult float64 `yaml:"per_result" json:"per_result"`
	PerMinute float64 `yaml:"per_minute" json:"per_minute"`

	// Token rates for unknown LLM models.
	InputPer1K  float64 `yaml:"input_per_1k" json:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k" json:"output_per_1k"`
}

// Table maps service identifiers to descriptors.
type Table struct {
	Services map[string]Descriptor `yaml:"services" json:"services"`
	Default  Fallback              `yaml:"default" json:"default"`
}

// Clone returns a deep copy of the table.
func (t Table) Clone() Table {
	c := Table{
		Services: make(map[string]Descriptor, len(t.Services)),
		Default:  t.Default,
	}
	for id, d := range t.Services {
		if d.Tiers != nil {
			d.Tiers = append([]TierRate(nil), d.Tiers...)
		}
		c.Services[id] = d
	}
	return c
}

// Result is the outcome of a pricing calculation.
type Result struct {
	Cost      float64      `json:"cost"`
	Breakdown string       `json:"breakdown"`
	Model     PricingModel `json:"model"`

	// Fallback is true when no descriptor matched and default pricing applied.
	Fallback bool `json:"fallback"`
}
