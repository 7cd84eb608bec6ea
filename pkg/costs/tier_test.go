package costs

import "testing"

func TestCalculateTier(t *testing.T) {
	tests := []struct {
		name string
		cost float64
		want Tier
	}{
		{"negative", -1, TierFree},
		{"zero", 0, TierFree},
		{"smallest low", 0.0001, TierLow},
		{"low boundary", 1.00, TierLow},
		{"just above low", 1.01, TierMedium},
		{"medium boundary", 10.00, TierMedium},
		{"just above medium", 10.01, TierHigh},
		{"high boundary", 100.00, TierHigh},
		{"just above high", 100.01, TierPremium},
		{"very large", 1e6, TierPremium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateTier(tt.cost); got != tt.want {
				t.Errorf("Expected tier %s for cost %v, got %s", tt.want, tt.cost, got)
			}
		})
	}
}

func TestTier_Ordering(t *testing.T) {
	tiers := Tiers()
	for i := 1; i < len(tiers); i++ {
		if tiers[i-1].Rank() >= tiers[i].Rank() {
			t.Errorf("Expected %s < %s", tiers[i-1], tiers[i])
		}
	}

	if got := TierLow.Max(TierHigh); got != TierHigh {
		t.Errorf("Expected max(low, high) = high, got %s", got)
	}
	if got := TierPremium.Max(TierFree); got != TierPremium {
		t.Errorf("Expected max(premium, free) = premium, got %s", got)
	}
	if Tier("bogus").Rank() != -1 {
		t.Error("Expected unknown tier to rank -1")
	}
}

func TestCostPerUnit(t *testing.T) {
	if got := CostPerUnit(2.5, 0); got != 2.5 {
		t.Errorf("Expected zero units to be treated as one, got %v", got)
	}
	if got := CostPerUnit(3, 4); got != 0.75 {
		t.Errorf("Expected 0.75, got %v", got)
	}
}

func TestEntry_CloneIsDeep(t *testing.T) {
	e := &Entry{
		ID: "a",
		Metadata: Metadata{
			Tags:       []string{"x"},
			Attributes: map[string]string{"k": "v"},
			Parameters: map[string]any{"q": "golang"},
		},
	}
	c := e.Clone()
	c.Metadata.Tags[0] = "y"
	c.Metadata.Attributes["k"] = "changed"
	c.Metadata.Parameters["q"] = "rust"

	if e.Metadata.Tags[0] != "x" {
		t.Error("Expected original tags to be unchanged")
	}
	if e.Metadata.Attributes["k"] != "v" {
		t.Error("Expected original attributes to be unchanged")
	}
	if e.Metadata.Parameters["q"] != "golang" {
		t.Error("Expected original parameters to be unchanged")
	}
}

func TestInitiator_Key(t *testing.T) {
	i := Initiator{Type: InitiatorAgent, ID: "researcher-1", Name: "Researcher"}
	if got := i.Key(); got != "agent:researcher-1" {
		t.Errorf("Expected key agent:researcher-1, got %s", got)
	}
}
