package costs

import (
	"fmt"
	"time"
)

// Category classifies the surface that produced a cost.
type Category string

const (
	CategoryScrapingTool   Category = "scraping-tool"
	CategoryLLMAPI         Category = "llm-api"
	CategoryWorkflowN8N    Category = "workflow-n8n"
	CategoryWorkflowZapier Category = "workflow-zapier"
	CategoryDeepResearch   Category = "deep-research"
	CategoryInfrastructure Category = "infrastructure"
)

// Categories returns every known category in declaration order.
func Categories() []Category {
	return []Category{
		CategoryScrapingTool,
		CategoryLLMAPI,
		CategoryWorkflowN8N,
		CategoryWorkflowZapier,
		CategoryDeepResearch,
		CategoryInfrastructure,
	}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// UnitType is the unit in which consumption is measured.
type UnitType string

const (
	UnitTokens         UnitType = "tokens"
	UnitResults        UnitType = "results"
	UnitWorkflowRuns   UnitType = "workflow-runs"
	UnitAPICalls       UnitType = "api-calls"
	UnitComputeMinutes UnitType = "compute-minutes"
	UnitRequests       UnitType = "requests"
)

// Valid reports whether u is a known unit type.
func (u UnitType) Valid() bool {
	switch u {
	case UnitTokens, UnitResults, UnitWorkflowRuns, UnitAPICalls, UnitComputeMinutes, UnitRequests:
		return true
	}
	return false
}

// InitiatorType discriminates the actor that caused a billable operation.
type InitiatorType string

const (
	InitiatorAgent  InitiatorType = "agent"
	InitiatorUser   InitiatorType = "user"
	InitiatorSystem InitiatorType = "system"
)

// Valid reports whether t is a known initiator type.
func (t InitiatorType) Valid() bool {
	return t == InitiatorAgent || t == InitiatorUser || t == InitiatorSystem
}

// Initiator identifies who caused a billable operation.
type Initiator struct {
	Type InitiatorType `json:"type"`
	ID   string        `json:"id"`
	Name string        `json:"name,omitempty"`
}

// Key returns the "type:id" grouping key used by summaries.
func (i Initiator) Key() string {
	return fmt.Sprintf("%s:%s", i.Type, i.ID)
}

// Metadata is the free-form part of an entry. Well-known fields are typed;
// anything else goes into Attributes.
type Metadata struct {
	DepartmentID string            `json:"department_id,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	Parameters   map[string]any    `json:"parameters,omitempty"`
	Outcome      string            `json:"outcome,omitempty"` // "success", "error", "partial"
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// Entry is an immutable record of one billed operation.
type Entry struct {
	ID            string    `json:"id"` // UUID v7, sortable by creation time
	Timestamp     time.Time `json:"timestamp"`
	Category      Category  `json:"category"`
	Service       string    `json:"service"`
	Operation     string    `json:"operation"`
	CostUSD       float64   `json:"cost_usd"`
	UnitsConsumed int64     `json:"units_consumed"`
	UnitType      UnitType  `json:"unit_type"`
	CostPerUnit   float64   `json:"cost_per_unit"`
	Tier          Tier      `json:"tier"`
	InitiatedBy   Initiator `json:"initiated_by"`
	SessionID     string    `json:"session_id,omitempty"`
	Metadata      Metadata  `json:"metadata"`
}

// DepartmentID is a shorthand for e.Metadata.DepartmentID.
func (e *Entry) DepartmentID() string {
	return e.Metadata.DepartmentID
}

// Clone returns a deep copy of the entry so callers can never alias
// storage-owned slices or maps.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Metadata = e.Metadata.clone()
	return &c
}

func (m Metadata) clone() Metadata {
	c := m
	if m.Tags != nil {
		c.Tags = append([]string(nil), m.Tags...)
	}
	if m.Parameters != nil {
		c.Parameters = make(map[string]any, len(m.Parameters))
		for k, v := range m.Parameters {
			c.Parameters[k] = v
		}
	}
	if m.Attributes != nil {
		c.Attributes = make(map[string]string, len(m.Attributes))
		for k, v := range m.Attributes {
			c.Attributes[k] = v
		}
	}
	return c
}

// Draft is what a caller hands the recorder once an operation completes.
//
// When CostUSD is nil the recorder prices the operation itself from
// Consumption using the pricing calculator.
type Draft struct {
	Timestamp     time.Time   `json:"timestamp,omitempty"`
	Category      Category    `json:"category"`
	Service       string      `json:"service"`
	Operation     string      `json:"operation"`
	CostUSD       *float64    `json:"cost_usd,omitempty"`
	Consumption   Consumption `json:"consumption,omitempty"`
	UnitsConsumed int64       `json:"units_consumed"`
	UnitType      UnitType    `json:"unit_type"`
	InitiatedBy   Initiator   `json:"initiated_by"`
	SessionID     string      `json:"session_id,omitempty"`
	Metadata      Metadata    `json:"metadata"`
}

// Consumption is a bag of optional consumption dimensions. Zero means the
// dimension was not consumed.
type Consumption struct {
	Results      int64   `json:"results,omitempty" yaml:"results,omitempty"`
	Minutes      float64 `json:"minutes,omitempty" yaml:"minutes,omitempty"`
	InputTokens  int64   `json:"input_tokens,omitempty" yaml:"input_tokens,omitempty"`
	OutputTokens int64   `json:"output_tokens,omitempty" yaml:"output_tokens,omitempty"`
	Executions   int64   `json:"executions,omitempty" yaml:"executions,omitempty"`
	Units        int64   `json:"units,omitempty" yaml:"units,omitempty"`
}

// IsZero reports whether no dimension was supplied.
func (c Consumption) IsZero() bool {
	return c == Consumption{}
}

// CostPerUnit derives the per-unit cost, treating zero units as one.
func CostPerUnit(costUSD float64, units int64) float64 {
	return costUSD / float64(max(units, 1))
}
