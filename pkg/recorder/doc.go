// Package recorder commits cost entries to the ledger.
//
// RecordCost validates a draft, prices it when the caller did not supply a
// cost, assigns the tier and a sortable id, and appends the entry. Only a
// failed append is reported to the caller. Budget and alert checks run after
// the entry is durable; their failures are logged and counted so a
// committed charge is never lost or reported as an error.
//
// # Example
//
//	rec := recorder.New(recorder.Options{
//	    Ledger:     store,
//	    Calculator: calc,
//	    Budgets:    enforcer,
//	    Alerts:     alerts,
//	})
//
//	entry, err := rec.RecordCost(ctx, costs.Draft{
//	    Category:    costs.CategoryLLMAPI,
//	    Service:     "openai",
//	    Operation:   "chat_completion",
//	    Consumption: costs.Consumption{InputTokens: 1200, OutputTokens: 300},
//	    InitiatedBy: costs.Initiator{Type: costs.InitiatorAgent, ID: "research-agent"},
//	    Metadata:    costs.Metadata{Attributes: map[string]string{"model": "gpt-4o"}},
//	})
package recorder
