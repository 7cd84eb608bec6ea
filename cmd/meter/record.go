package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/meter/pkg/cli"
	"mercator-hq/meter/pkg/costs"
)

var recordFlags struct {
	category      string
	service       string
	operation     string
	cost          float64
	units         int64
	unitType      string
	initiatorType string
	initiatorID   string
	sessionID     string
	departmentID  string
	file          string
	format        string
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record completed operations in the ledger",
	Long: `Record one completed operation from flags, or a batch from a JSON file.

The file holds either a JSON array of cost drafts or one draft per line.
Budgets and alerts are evaluated for every recorded entry.

Examples:
  # Record an LLM call with a known cost
  meter record --category llm-api --service openai --operation gpt-4o --cost 0.42

  # Let the pricing table compute the cost from units
  meter record --category scraping-tool --service apify --operation run --units 1200 --unit-type results

  # Import a batch
  meter record --file drafts.jsonl`,
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)

	f := recordCmd.Flags()
	f.StringVar(&recordFlags.category, "category", "", "cost category (llm-api, scraping-tool, workflow-n8n, ...)")
	f.StringVar(&recordFlags.service, "service", "", "service name")
	f.StringVar(&recordFlags.operation, "operation", "", "operation name")
	f.Float64Var(&recordFlags.cost, "cost", 0, "known cost in USD (computed from pricing when omitted)")
	f.Int64Var(&recordFlags.units, "units", 1, "units consumed")
	f.StringVar(&recordFlags.unitType, "unit-type", "", "unit type (inferred when omitted)")
	f.StringVar(&recordFlags.initiatorType, "initiator-type", string(costs.InitiatorUser), "initiator type (agent, user, system)")
	f.StringVar(&recordFlags.initiatorID, "initiator-id", "cli", "initiator id")
	f.StringVar(&recordFlags.sessionID, "session", "", "session id")
	f.StringVar(&recordFlags.departmentID, "department", "", "department id")
	f.StringVarP(&recordFlags.file, "file", "f", "", "JSON file of drafts (- for stdin)")
	f.StringVar(&recordFlags.format, "format", "text", "output format (text, json)")
}

func runRecord(cmd *cobra.Command, args []string) error {
	var drafts []costs.Draft
	if recordFlags.file != "" {
		var err error
		if drafts, err = readDrafts(cmd.InOrStdin(), recordFlags.file); err != nil {
			return cli.NewCommandError("record", err)
		}
	} else {
		drafts = []costs.Draft{draftFromFlags(cmd)}
	}

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	var progress cli.ProgressReporter
	if len(drafts) > 1 {
		progress = cli.NewProgressReporter(cmd.ErrOrStderr(), "entries")
		progress.Start(int64(len(drafts)))
	}

	entries := make([]*costs.Entry, 0, len(drafts))
	for i, d := range drafts {
		entry, err := s.eng.RecordCost(cmd.Context(), d)
		if err != nil {
			if progress != nil {
				progress.Error(err)
			}
			return cli.NewCommandError("record", fmt.Errorf("draft %d: %w", i, err))
		}
		entries = append(entries, entry)
		if progress != nil {
			progress.Update(int64(i + 1))
		}
	}
	if progress != nil {
		progress.Finish()
	}

	if recordFlags.format == string(cli.FormatJSON) {
		return printResult(cmd, recordFlags.format, entries)
	}
	return printResult(cmd, recordFlags.format, entryTable(entries))
}

func draftFromFlags(cmd *cobra.Command) costs.Draft {
	d := costs.Draft{
		Category:      costs.Category(recordFlags.category),
		Service:       recordFlags.service,
		Operation:     recordFlags.operation,
		UnitsConsumed: recordFlags.units,
		UnitType:      costs.UnitType(recordFlags.unitType),
		InitiatedBy: costs.Initiator{
			Type: costs.InitiatorType(recordFlags.initiatorType),
			ID:   recordFlags.initiatorID,
		},
		SessionID: recordFlags.sessionID,
		Metadata:  costs.Metadata{DepartmentID: recordFlags.departmentID},
	}
	if cmd.Flags().Changed("cost") {
		cost := recordFlags.cost
		d.CostUSD = &cost
	}
	return d
}

// readDrafts accepts a JSON array or newline-delimited JSON objects.
func readDrafts(stdin io.Reader, path string) ([]costs.Draft, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read drafts: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("no drafts in %s", path)
	}
	if trimmed[0] == '[' {
		var drafts []costs.Draft
		if err := json.Unmarshal(trimmed, &drafts); err != nil {
			return nil, fmt.Errorf("failed to parse drafts: %w", err)
		}
		return drafts, nil
	}

	var drafts []costs.Draft
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	for dec.More() {
		var d costs.Draft
		if err := dec.Decode(&d); err != nil {
			return nil, fmt.Errorf("failed to parse draft %d: %w", len(drafts), err)
		}
		drafts = append(drafts, d)
	}
	return drafts, nil
}

// entryTable renders ledger entries as a table.
type entryTable []*costs.Entry

func (entryTable) Header() []string {
	return []string{"ID", "TIMESTAMP", "CATEGORY", "SERVICE", "OPERATION", "COST_USD", "TIER"}
}

func (t entryTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, e := range t {
		rows = append(rows, []string{
			e.ID,
			e.Timestamp.UTC().Format(time.RFC3339),
			string(e.Category),
			e.Service,
			e.Operation,
			strconv.FormatFloat(e.CostUSD, 'f', 6, 64),
			string(e.Tier),
		})
	}
	return rows
}
