package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"mercator-hq/meter/pkg/budget"
	"mercator-hq/meter/pkg/cli"
)

var budgetFormat string

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Inspect budgets",
}

var budgetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List budgets with their current spend",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		budgets, err := s.eng.ListBudgets(cmd.Context())
		if err != nil {
			return cli.NewCommandError("budget list", err)
		}
		if budgetFormat == string(cli.FormatJSON) {
			return printResult(cmd, budgetFormat, budgets)
		}
		return printResult(cmd, budgetFormat, budgetTable(budgets))
	},
}

var budgetShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one budget",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		b, err := s.eng.GetBudget(cmd.Context(), args[0])
		if err != nil {
			return cli.NewCommandError("budget show", err)
		}
		if budgetFormat == string(cli.FormatJSON) {
			return printResult(cmd, budgetFormat, b)
		}
		return printResult(cmd, budgetFormat, budgetTable{b})
	},
}

func init() {
	budgetCmd.PersistentFlags().StringVar(&budgetFormat, "format", "text", "output format (text, json, csv)")
	budgetCmd.AddCommand(budgetListCmd, budgetShowCmd)
	rootCmd.AddCommand(budgetCmd)
}

type budgetTable []*budget.Budget

func (budgetTable) Header() []string {
	return []string{"ID", "NAME", "PERIOD", "SPENT_USD", "BUDGET_USD", "UTILIZATION", "STATUS"}
}

func (t budgetTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, b := range t {
		rows = append(rows, []string{
			b.ID,
			b.Name,
			string(b.Period),
			usd(b.SpentUSD),
			usd(b.BudgetUSD),
			strconv.FormatFloat(b.UtilizationPercent, 'f', 1, 64) + "%",
			string(b.Status),
		})
	}
	return rows
}
