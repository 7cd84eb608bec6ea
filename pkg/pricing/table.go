package pricing

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidTable is returned when a pricing table fails validation.
var ErrInvalidTable = errors.New("invalid pricing table")

// DefaultFallback is the default descriptor for services missing from the
// table.
func DefaultFallback() Fallback {
	return Fallback{
		Fixed:       0.01,
		PerResult:   0.001,
		PerMinute:   0.01,
		InputPer1K:  0.001,
		OutputPer1K: 0.002,
	}
}

// DefaultTable returns the built-in pricing table.
func DefaultTable() Table {
	llm := func(provider string, in, out float64) Descriptor {
		return Descriptor{Provider: provider, Model: ModelPerToken, InputPer1K: in, OutputPer1K: out}
	}

	return Table{
		Services: map[string]Descriptor{
			"gpt-4":           llm("openai", 0.03, 0.06),
			"gpt-4-turbo":     llm("openai", 0.01, 0.03),
			"gpt-4o":          llm("openai", 0.005, 0.015),
			"gpt-3.5-turbo":   llm("openai", 0.0005, 0.0015),
			"claude-3-opus":   llm("anthropic", 0.015, 0.075),
			"claude-3-sonnet": llm("anthropic", 0.003, 0.015),
			"claude-3-haiku":  llm("anthropic", 0.00025, 0.00125),

			"apify-web-search": {
				Name: "Apify Web Search", Model: ModelPerUnit,
				Dimension: DimensionResults, UnitCost: 0.005,
			},
			"apify-web-scraper": {
				Name: "Apify Web Scraper", Model: ModelPerUnit,
				Dimension: DimensionMinutes, UnitCost: 0.04,
			},
			"serpapi": {
				Name: "SerpAPI", Model: ModelPerCall, CostPerCall: 0.01,
			},
			"firecrawl": {
				Name: "Firecrawl", Model: ModelPerUnit,
				Dimension: DimensionResults, UnitCost: 0.002,
			},
			"n8n": {
				Name: "n8n", Model: ModelPerUnit,
				Dimension: DimensionExecutions, UnitCost: 0.002,
			},
			"zapier": {
				Name: "Zapier", Model: ModelTieredSubscription, Dimension: DimensionExecutions,
				Tiers: []TierRate{
					{UpTo: 100, UnitRate: 0},
					{UpTo: 750, UnitRate: 0.0266},
					{UpTo: 0, UnitRate: 0.0199},
				},
			},
			"perplexity-research": {
				Name: "Perplexity Research", Model: ModelPerCall, CostPerCall: 0.05,
			},
			"compute": {
				Name: "Compute", Model: ModelPerUnit,
				Dimension: DimensionMinutes, UnitCost: 0.0008,
			},
			"storage-gb": {
				Name: "Storage (GB-month)", Model: ModelPerUnit,
				Dimension: DimensionUnits, UnitCost: 0.023,
			},
		},
		Default: DefaultFallback(),
	}
}

// LoadTable reads a pricing table from a YAML file and validates it.
// A file without a default section inherits DefaultFallback.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("failed to read pricing file %q: %w", path, err)
	}

	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("failed to parse pricing file %q: %w", path, err)
	}
	if t.Default == (Fallback{}) {
		t.Default = DefaultFallback()
	}

	if err := ValidateTable(t); err != nil {
		return Table{}, err
	}
	return t, nil
}

// ValidateTable checks every descriptor for a known model, the dimension the
// model requires, non-negative rates and ascending tier bounds.
func ValidateTable(t Table) error {
	var errs []error
	for id, d := range t.Services {
		if id == "" {
			errs = append(errs, errors.New("service id must not be empty"))
			continue
		}
		if !d.Model.Valid() {
			errs = append(errs, fmt.Errorf("service %q: unknown pricing model %q", id, d.Model))
			continue
		}
		if d.CostPerCall < 0 || d.InputPer1K < 0 || d.OutputPer1K < 0 || d.UnitCost < 0 || d.BaseFee < 0 {
			errs = append(errs, fmt.Errorf("service %q: rates must be non-negative", id))
		}
		if d.Dimension != "" && !d.Dimension.Valid() {
			errs = append(errs, fmt.Errorf("service %q: unknown dimension %q", id, d.Dimension))
		}

		switch d.Model {
		case ModelPerUnit:
			if d.Dimension == "" {
				errs = append(errs, fmt.Errorf("service %q: per_unit pricing requires a dimension", id))
			}
		case ModelTieredSubscription:
			if d.Dimension == "" {
				errs = append(errs, fmt.Errorf("service %q: tiered pricing requires a dimension", id))
			}
			if err := validateTiers(d.Tiers); err != nil {
				errs = append(errs, fmt.Errorf("service %q: %w", id, err))
			}
		}
	}

	f := t.Default
	if f.Fixed < 0 || f.PerResult < 0 || f.PerMinute < 0 || f.InputPer1K < 0 || f.OutputPer1K < 0 {
		errs = append(errs, errors.New("default pricing rates must be non-negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidTable, errors.Join(errs...))
	}
	return nil
}

func validateTiers(tiers []TierRate) error {
	if len(tiers) == 0 {
		return errors.New("tiered pricing requires at least one tier")
	}
	prev := 0.0
	for i, tier := range tiers {
		if tier.UnitRate < 0 {
			return fmt.Errorf("tier %d: unit rate must be non-negative", i)
		}
		if tier.UpTo == 0 {
			if i != len(tiers)-1 {
				return fmt.Errorf("tier %d: only the last tier may be unlimited", i)
			}
			continue
		}
		if tier.UpTo <= prev {
			return fmt.Errorf("tier %d: bounds must be ascending", i)
		}
		prev = tier.UpTo
	}
	return nil
}
