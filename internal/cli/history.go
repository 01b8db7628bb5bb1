package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sigma-trader/internal/store"
)

func newHistoryCmd(app *App) *cobra.Command {
	var (
		limit     int
		days      int
		completed bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show journaled pipeline runs",
		Example: `  trader history
  trader history --days 7 --completed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			journal, err := app.Journal()
			if err != nil {
				return err
			}
			filter := store.RunFilter{
				Symbol:    app.Config.Market.Symbol,
				Completed: completed,
				Limit:     limit,
			}
			if days > 0 {
				filter.StartDate = app.Now().AddDate(0, 0, -days)
			}
			runs, err := journal.ListRuns(ctx, filter)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(runs)
			}
			if len(runs) == 0 {
				output.Dim("No runs recorded.")
				return nil
			}
			output.Printf("%-20s %-10s %-16s %6s %-10s %s\n", "STARTED", "SPOT", "STRATEGY", "SIGMA", "RISK", "LEGS")
			for _, r := range runs {
				output.Println(historyRow(output, r))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs")
	cmd.Flags().IntVar(&days, "days", 0, "only runs from the last N days")
	cmd.Flags().BoolVar(&completed, "completed", false, "exclude failed runs")
	return cmd
}

func historyRow(output *Output, r store.RunRecord) string {
	started := PadRight(FormatDateTime(r.StartedAt), 20)
	if r.Failed() {
		return fmt.Sprintf("%s %s", started, output.Red(fmt.Sprintf("failed at %s: %s", r.ErrStage, TruncateString(r.ErrMessage, 60))))
	}
	risk := PadRight(string(r.Risk), 10)
	if r.Risk != "" {
		risk = PadRight(output.Decision(r.Risk), 10)
	}
	legs := ""
	for i, l := range r.Legs {
		if i > 0 {
			legs += ", "
		}
		legs += fmt.Sprintf("%s %s %.0f", l.Action, l.Side, l.Strike)
	}
	if r.Placed {
		legs += " " + output.Green("placed")
	}
	return fmt.Sprintf("%s %-10.2f %-16s %6.2f %s %s", started, r.Spot, r.Strategy, r.SigmaMult, risk, legs)
}
