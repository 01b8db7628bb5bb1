package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sigma-trader/internal/chain"
	"sigma-trader/internal/logging"
	"sigma-trader/internal/models"
	"sigma-trader/internal/pipeline"
	"sigma-trader/internal/security"
	"sigma-trader/pkg/utils"
)

func newRunCmd(app *App) *cobra.Command {
	var (
		strategy  string
		expiry    string
		offline   bool
		spot      float64
		vix       float64
		place     bool
		orderType string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the decision pipeline once",
		Long: `Run the decision pipeline once and print the resulting state.

The run fails closed: a missing spot, volatility index or option chain stops
the run with a categorized error and no order. With --place, legs are sent
to the gateway only when the risk review approved the order.`,
		Example: `  trader run
  trader run --strategy "Iron Fly"
  trader run --expiry 24-Oct-2024 --json
  trader run --offline --spot 25000 --vix 15
  trader run --place`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
			defer cancel()
			ctx = logging.WithLogger(ctx, app.Logger)

			opts := RunOptions{Offline: offline, Spot: spot, Vol: vix}
			if offline && (!cmd.Flags().Changed("spot") || !cmd.Flags().Changed("vix")) {
				return fmt.Errorf("--offline needs --spot and --vix")
			}

			req := pipeline.Request{Symbol: app.Config.Market.Symbol, Override: app.Config.Pipeline.Override}
			if cmd.Flags().Changed("strategy") {
				req.Override = strategy
			}
			if expiry != "" {
				t, err := chain.ParseExpiry(expiry)
				if err != nil {
					return err
				}
				req.Expiry = &t
			}

			pipe, err := app.Pipeline(ctx, opts)
			if err != nil {
				return err
			}
			st, err := pipe.Run(ctx, req)
			if err != nil {
				return err
			}

			if st.Failed() {
				app.Audit(ctx, func(al *security.AuditLogger) error {
					return al.LogRunFailed(ctx, st.RunID, st.Symbol, st.Err.Stage, string(st.Err.Category), st.Err.Err.Error())
				})
			} else {
				app.Audit(ctx, func(al *security.AuditLogger) error {
					return al.LogDecision(ctx, st.RunID, st.Symbol, st.Decision, st.Risk)
				})
			}

			var placeErr error
			if place && !st.Failed() {
				placeErr = placeOrder(ctx, app, pipe, st, orderType, output)
			}

			if output.IsJSON() {
				if err := output.MarkedJSON(st); err != nil {
					return err
				}
			} else {
				displayRun(output, st)
			}

			if st.Failed() {
				return st.Err
			}
			return placeErr
		},
	}

	cmd.Flags().StringVarP(&strategy, "strategy", "s", "", `strategy override: "Short Strangle", "Short Straddle", "Iron Fly" or "Auto"`)
	cmd.Flags().StringVar(&expiry, "expiry", "", "expiry date (DD-MMM-YYYY); default is the nearest weekly expiry")
	cmd.Flags().BoolVar(&offline, "offline", false, "use --spot and --vix with a synthesized chain instead of live data")
	cmd.Flags().Float64Var(&spot, "spot", 0, "spot price for --offline runs")
	cmd.Flags().Float64Var(&vix, "vix", 0, "volatility index for --offline runs")
	cmd.Flags().BoolVar(&place, "place", false, "place the order when risk approves")
	cmd.Flags().StringVar(&orderType, "order-type", "", "MARKET, or LIMIT at each leg's chain premium (default from config)")

	return cmd
}

func placeOrder(ctx context.Context, app *App, pipe *pipeline.Pipeline, st *pipeline.State, orderType string, output *Output) error {
	if orderType == "" {
		orderType = app.Config.Trading.OrderType
	}
	ot := models.OrderType(strings.ToUpper(orderType))
	if ot != models.OrderTypeMarket && ot != models.OrderTypeLimit {
		return fmt.Errorf("unknown order type %q", orderType)
	}

	blocked := func(reason string) {
		app.Audit(ctx, func(al *security.AuditLogger) error {
			return al.LogOrderBlocked(ctx, st.RunID, st.Symbol, reason)
		})
	}

	if !app.Config.IsPaperMode() {
		now := app.Now()
		if !utils.IsMarketOpen(now) {
			err := fmt.Errorf("market is %s; next open %s", utils.GetMarketStatus(now),
				FormatDateTime(utils.GetNextMarketOpen(now)))
			blocked(err.Error())
			return err
		}
	}

	if !st.Risk.Approved() {
		blocked("risk review did not approve the order")
		if !output.IsJSON() {
			output.Warning("Order not placed: risk review did not approve it")
		}
		return nil
	}

	err := pipe.Place(ctx, st, ot)
	if st.Order != nil {
		msg := ""
		if err != nil {
			msg = err.Error()
		}
		for _, leg := range st.Order.Legs {
			leg := leg
			app.Audit(ctx, func(al *security.AuditLogger) error {
				return al.LogOrderPlaced(ctx, st.RunID, leg, ot, msg)
			})
		}
	}
	return err
}

func displayRun(output *Output, st *pipeline.State) {
	output.Bold("Run %s", st.RunID)
	output.Dim("  %s  %s", FormatDateTime(st.StartedAt), FormatDuration(st.FinishedAt.Sub(st.StartedAt)))
	output.Println()

	if m := st.Market; m != nil {
		output.Bold("Market %s", output.SourceTag(string(m.Provenance)))
		output.Printf("  %-16s %s\n", "Spot:", utils.FormatIndianCurrency(m.Spot))
		output.Printf("  %-16s %.2f\n", "Volatility:", m.VolIndex)
		output.Printf("  %-16s %s (%d days)\n", "Expiry:", chain.FormatExpiry(m.Expiry), m.DaysToExpiry)
		output.Println()
	}

	if r := st.Research; r != nil {
		output.Bold("Research")
		output.Printf("  %-16s %s\n", "Sentiment:", r.Sentiment)
		output.Printf("  %s\n", TruncateString(firstLine(r.Summary), 100))
		annotations(output, r.Annotations)
		output.Println()
	}

	if m := st.Monitor; m != nil {
		output.Bold("Position")
		action := string(m.Action)
		if m.AdjustmentNeeded {
			action = output.Yellow(action)
		}
		output.Printf("  %-16s %s\n", "Action:", action)
		output.Printf("  %s\n", TruncateString(firstLine(m.Reasoning), 100))
		annotations(output, m.Annotations)
		output.Println()
	}

	if d := st.Decision; d != nil {
		output.Bold("Strategy %s", output.SourceTag(string(d.Source)))
		output.Printf("  %-16s %s\n", "Strategy:", d.Strategy)
		output.Printf("  %-16s %.2f\n", "Sigma:", d.SigmaMult)
		output.Printf("  %-16s %s\n", "Rationale:", TruncateString(firstLine(d.Rationale), 90))
		annotations(output, d.Annotations)
		output.Println()
	}

	if o := st.Order; o != nil {
		a := o.Analysis
		output.Bold("Order")
		if a.RangePoints > 0 {
			output.Printf("  %-16s ±%.1f (%.0f - %.0f)\n", "Range:", a.RangePoints, a.LowerBound, a.UpperBound)
		}
		for _, leg := range o.Legs {
			line := fmt.Sprintf("  %s  %s", PadRight(FormatLeg(leg), 22), output.DimText(leg.Instrument))
			if leg.OrderID != nil {
				line += "  " + output.Green(*leg.OrderID)
			}
			output.Println(line)
		}
		output.Println()
	}

	if r := st.Risk; r != nil {
		output.Bold("Risk")
		output.Printf("  %-16s %s\n", "Decision:", output.Decision(r.Decision))
		output.Printf("  %-16s %s\n", "Reason:", TruncateString(firstLine(r.Reason), 90))
		annotations(output, r.Annotations)
		output.Println()
	}

	switch {
	case st.Failed():
		output.Error("✗ %s failed [%s]: %v", st.Err.Stage, st.Err.Category, st.Err.Err)
	case st.Placed:
		output.Success("✓ Order placed")
	case st.Risk != nil && st.Risk.Approved():
		output.Info("Order approved; rerun with --place to submit")
	}
}

func annotations(output *Output, notes []string) {
	for _, n := range notes {
		output.Printf("  %s\n", output.Yellow("! "+n))
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
