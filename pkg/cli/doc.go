/*
Package cli provides command-line helpers for the meter command.

Output Formatting:

Command results can be printed as text, JSON or CSV. Values that implement
Table are rendered as aligned columns in text mode and as rows in CSV mode:

	formatter := cli.NewFormatter(cli.FormatCSV)
	if err := formatter.FormatTo(os.Stdout, budgetTable); err != nil {
		return err
	}

Progress Reporting:

Batch commands report progress on stderr:

	progress := cli.NewProgressReporter(os.Stderr, "entries")
	progress.Start(int64(len(drafts)))
	for i, d := range drafts {
		record(d)
		progress.Update(int64(i + 1))
	}
	progress.Finish()

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

Errors:

ExitCode maps ConfigError to exit status 2 and every other error to 1.
*/
package cli
