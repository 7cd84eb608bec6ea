/*
Package engine wires the metering components into one constructed instance.

An Engine owns the cost ledger, the budget and alert state stores, the
pricing calculator and the notification dispatcher. Every exposed operation
(estimation, recording, budgets, alerts, summaries, optimizations and
exports) goes through it. There are no package-level singletons: callers
construct an Engine once at startup and pass it around.

Construction from configuration:

	tel, err := telemetry.New(&cfg.Telemetry, version)
	eng, err := engine.NewFromConfig(ctx, cfg, tel)
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.Start(ctx); err != nil {
		return err
	}

	entry, err := eng.RecordCost(ctx, draft)

Construction for tests uses New with in-memory stores:

	eng, err := engine.New(engine.Options{
		Ledger:     storage.NewMemoryStorage(),
		Calculator: pricing.NewCalculator(pricing.DefaultTable()),
	})

Start launches the background workers: the budget rollover sweep, the
optional retention scheduler and the optional pricing file watcher. Close
stops them, waits for in-flight notifications and closes every store.
*/
package engine
