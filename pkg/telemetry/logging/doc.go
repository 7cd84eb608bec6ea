// Package logging builds the process slog.Logger.
//
// The logger writes JSON or text, masks sensitive attribute values by key,
// and adds request_id and trace_id when a context carries them. Components
// never use this package directly; they receive a *slog.Logger and derive
// their own with logger.With("component", "<pkg>.<type>").
package logging
