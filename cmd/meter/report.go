package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/meter/pkg/cli"
	"mercator-hq/meter/pkg/costs"
	"mercator-hq/meter/pkg/ledger/export"
	"mercator-hq/meter/pkg/ledger/query"
	"mercator-hq/meter/pkg/optimize"
	"mercator-hq/meter/pkg/summary"
)

// rangeFlags are shared by the reporting commands.
type rangeFlags struct {
	start      string
	end        string
	categories []string
	services   []string
	department string
}

func (f *rangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.start, "start", "30d", "period start (RFC3339, date, or age like 7d)")
	cmd.Flags().StringVar(&f.end, "end", "now", "period end")
	cmd.Flags().StringSliceVar(&f.categories, "category", nil, "filter by category (repeatable)")
	cmd.Flags().StringSliceVar(&f.services, "service", nil, "filter by service (repeatable)")
	cmd.Flags().StringVar(&f.department, "department", "", "filter by department id")
}

func (f *rangeFlags) resolve(now time.Time) (time.Time, time.Time, summary.Filters, error) {
	start, err := query.ParseTime("start", f.start, now)
	if err != nil {
		return time.Time{}, time.Time{}, summary.Filters{}, err
	}
	end, err := query.ParseTime("end", f.end, now)
	if err != nil {
		return time.Time{}, time.Time{}, summary.Filters{}, err
	}
	filters := summary.Filters{Services: f.services, DepartmentID: f.department}
	for _, c := range f.categories {
		filters.Categories = append(filters.Categories, costs.Category(c))
	}
	return start, end, filters, nil
}

var (
	summaryRange  rangeFlags
	summaryFormat string

	optimizeRange  rangeFlags
	optimizeFormat string

	exportRange rangeFlags
	exportFlags struct {
		format  string
		entries bool
		output  string
	}
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize spend over a period",
	Long: `Summarize recorded spend by category, service and tier.

Examples:
  meter summary
  meter summary --start 7d --category llm-api
  meter summary --start 2026-03-01 --end 2026-04-01 --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		start, end, filters, err := summaryRange.resolve(time.Now())
		if err != nil {
			return err
		}
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		sum, err := s.eng.GetCostSummary(cmd.Context(), start, end, filters)
		if err != nil {
			return cli.NewCommandError("summary", err)
		}
		if summaryFormat == string(cli.FormatJSON) {
			return printResult(cmd, summaryFormat, sum)
		}
		return printResult(cmd, summaryFormat, summaryTable{sum})
	},
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Show cost optimization recommendations",
	RunE: func(cmd *cobra.Command, args []string) error {
		start, end, filters, err := optimizeRange.resolve(time.Now())
		if err != nil {
			return err
		}
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		opts, err := s.eng.GetOptimizationRecommendations(cmd.Context(), start, end, filters)
		if err != nil {
			return cli.NewCommandError("optimize", err)
		}
		if optimizeFormat == string(cli.FormatJSON) {
			return printResult(cmd, optimizeFormat, opts)
		}
		return printResult(cmd, optimizeFormat, optimizationTable(opts))
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a cost report or raw ledger entries",
	Long: `Export the summary report, or with --entries every matching ledger entry.

Output goes to stdout unless --output names a file. When --output is a
directory a dated file name is generated.

Examples:
  meter export --start 30d --format csv
  meter export --start 7d --entries --format json -o ./reports`,
	RunE: runExport,
}

func init() {
	summaryRange.register(summaryCmd)
	summaryCmd.Flags().StringVar(&summaryFormat, "format", "text", "output format (text, json, csv)")

	optimizeRange.register(optimizeCmd)
	optimizeCmd.Flags().StringVar(&optimizeFormat, "format", "text", "output format (text, json, csv)")

	exportRange.register(exportCmd)
	exportCmd.Flags().StringVar(&exportFlags.format, "format", "csv", "export format (csv, json)")
	exportCmd.Flags().BoolVar(&exportFlags.entries, "entries", false, "export raw ledger entries instead of the summary")
	exportCmd.Flags().StringVarP(&exportFlags.output, "output", "o", "", "output file or directory (default stdout)")

	rootCmd.AddCommand(summaryCmd, optimizeCmd, exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	start, end, filters, err := exportRange.resolve(time.Now())
	if err != nil {
		return err
	}
	format, err := export.ParseFormat(exportFlags.format)
	if err != nil {
		return err
	}

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	var out io.Writer = cmd.OutOrStdout()
	var path string
	if exportFlags.output != "" {
		path = exportFlags.output
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			name := export.ReportFilename(start, end, format)
			if exportFlags.entries {
				name = export.EntriesFilename(start, end, format)
			}
			path = filepath.Join(path, name)
		}
		file, err := os.Create(path)
		if err != nil {
			return cli.NewCommandError("export", err)
		}
		defer file.Close()
		out = file
	}

	if exportFlags.entries {
		n, err := s.eng.ExportEntries(cmd.Context(), start, end, filters, string(format), out)
		if err != nil {
			return cli.NewCommandError("export", err)
		}
		if path != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported %d entries to %s\n", n, path)
		}
		return nil
	}

	payload, err := s.eng.ExportCostData(cmd.Context(), start, end, string(format))
	if err != nil {
		return cli.NewCommandError("export", err)
	}
	if _, err := out.Write(payload.Data); err != nil {
		return cli.NewCommandError("export", err)
	}
	if path != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported summary to %s\n", path)
	}
	return nil
}

func usd(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// summaryTable flattens a summary into dimension rows.
type summaryTable struct {
	s *summary.Summary
}

func (summaryTable) Header() []string {
	return []string{"DIMENSION", "KEY", "COST_USD"}
}

func (t summaryTable) Rows() [][]string {
	rows := [][]string{
		{"total", "cost", usd(t.s.TotalCostUSD)},
		{"total", "operations", strconv.Itoa(t.s.TotalOperations)},
	}
	for _, k := range sortedKeys(t.s.ByCategory) {
		rows = append(rows, []string{"category", string(k), usd(t.s.ByCategory[k])})
	}
	for _, k := range sortedKeys(t.s.ByService) {
		rows = append(rows, []string{"service", k, usd(t.s.ByService[k])})
	}
	for _, k := range sortedKeys(t.s.ByTier) {
		rows = append(rows, []string{"tier", string(k), usd(t.s.ByTier[k])})
	}
	return rows
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

type optimizationTable []optimize.Optimization

func (optimizationTable) Header() []string {
	return []string{"PRIORITY", "KIND", "SERVICE", "CURRENT_USD", "SAVINGS_USD", "TITLE"}
}

func (t optimizationTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, o := range t {
		rows = append(rows, []string{
			string(o.Priority),
			string(o.Kind),
			o.Service,
			usd(o.CurrentCostUSD),
			usd(o.PotentialSavingsUSD),
			o.Title,
		})
	}
	return rows
}
