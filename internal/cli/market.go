package cli

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sigma-trader/internal/agents"
	"sigma-trader/internal/chain"
	"sigma-trader/internal/logging"
	"sigma-trader/internal/models"
	"sigma-trader/internal/pricing"
	"sigma-trader/internal/strikes"
	"sigma-trader/pkg/utils"
)

func newMarketCmds(app *App) []*cobra.Command {
	return []*cobra.Command{
		newChainCmd(app),
		newStrikesCmd(app),
		newPriceCmd(),
	}
}

func newChainCmd(app *App) *cobra.Command {
	var (
		expiry  string
		offline bool
		spot    float64
		vix     float64
		width   int
	)

	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Show the option chain around ATM",
		Example: `  trader chain
  trader chain --width 5 --expiry 24-Oct-2024
  trader chain --offline --spot 25000 --vix 15`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			ctx = logging.WithLogger(ctx, app.Logger)

			if offline && (!cmd.Flags().Changed("spot") || !cmd.Flags().Changed("vix")) {
				return fmt.Errorf("--offline needs --spot and --vix")
			}
			var exp *time.Time
			if expiry != "" {
				t, err := chain.ParseExpiry(expiry)
				if err != nil {
					return err
				}
				exp = &t
			}

			provider, err := app.Provider(RunOptions{Offline: offline, Spot: spot, Vol: vix})
			if err != nil {
				return err
			}
			snap, err := agents.NewScanner(provider, app.Config.Market.Symbol, app.Now).Scan(ctx, exp)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(snap)
			}
			displayChain(output, snap, app.Config.Market.Tick, width)
			return nil
		},
	}

	cmd.Flags().StringVar(&expiry, "expiry", "", "expiry date (DD-MMM-YYYY)")
	cmd.Flags().BoolVar(&offline, "offline", false, "synthesize from --spot and --vix")
	cmd.Flags().Float64Var(&spot, "spot", 0, "spot price for --offline")
	cmd.Flags().Float64Var(&vix, "vix", 0, "volatility index for --offline")
	cmd.Flags().IntVarP(&width, "width", "w", 10, "strikes shown each side of ATM")
	return cmd
}

func displayChain(output *Output, snap *models.MarketSnapshot, tick float64, width int) {
	atm := chain.ATMStrike(snap.Spot, tick)
	output.Bold("%s %s  %s", snap.Symbol, chain.FormatExpiry(snap.Expiry), output.SourceTag(string(snap.Provenance)))
	output.Dim("  Spot %s  Vol %.2f  %d days", utils.FormatIndianCurrency(snap.Spot), snap.VolIndex, snap.DaysToExpiry)
	output.Println()

	output.Printf("%10s %8s %10s  %8s  %10s %8s %10s\n", "CE OI", "CE IV", "CE LTP", "STRIKE", "PE LTP", "PE IV", "PE OI")
	output.Println(strings.Repeat("─", 72))
	for _, row := range snap.Chain.Strikes() {
		if math.Abs(row.Price-atm) > float64(width)*tick {
			continue
		}
		strike := fmt.Sprintf("%8.0f", row.Price)
		if row.Price == atm {
			strike = output.Yellow(strike)
		}
		output.Printf("%s  %s  %s\n", quoteCols(row.Call, true), strike, quoteCols(row.Put, false))
	}
}

func quoteCols(q *models.OptionQuote, call bool) string {
	if q == nil {
		return fmt.Sprintf("%10s %8s %10s", "-", "-", "-")
	}
	oi := FormatVolume(q.OI)
	if call {
		return fmt.Sprintf("%10s %8.2f %10.2f", oi, q.IV, q.LastPrice)
	}
	return fmt.Sprintf("%10.2f %8.2f %10s", q.LastPrice, q.IV, oi)
}

func newStrikesCmd(app *App) *cobra.Command {
	var (
		strategy string
		spot     float64
		vix      float64
		days     int
		sigma    float64
	)

	cmd := &cobra.Command{
		Use:   "strikes",
		Short: "Compute target strikes for a strategy",
		Long: `Compute target strikes from spot, volatility index and days to expiry.

Short Strangle sells at ATM ± sigma × spot × vol × √(days/365), rounded to
the strike tick. Short Straddle sells ATM. Iron Fly sells ATM and buys the
configured wings.`,
		Example: `  trader strikes --spot 25000 --vix 15 --days 5
  trader strikes --strategy "Iron Fly" --spot 25000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			s, err := models.ParseStrategy(strategy)
			if err != nil {
				return err
			}
			if spot <= 0 {
				return fmt.Errorf("--spot must be positive")
			}
			a, err := strikes.ForStrategy(s, strikes.Inputs{
				Spot:      spot,
				Vol:       vix,
				Days:      days,
				SigmaMult: sigma,
				Tick:      app.Config.Market.Tick,
				Wing:      app.Config.Market.WingWidth,
			})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(a)
			}
			output.Bold("%s", s)
			output.Printf("  %-16s %.0f\n", "ATM:", a.ATMStrike)
			if a.RangePoints > 0 {
				output.Printf("  %-16s ±%.1f (%.2fσ)\n", "Range:", a.RangePoints, a.SigmaMult)
				output.Printf("  %-16s %.1f - %.1f\n", "Bounds:", a.LowerBound, a.UpperBound)
			}
			output.Printf("  %-16s %.0f\n", "Sell CE:", a.SellCallStrike)
			output.Printf("  %-16s %.0f\n", "Sell PE:", a.SellPutStrike)
			if a.BuyCallStrike > 0 {
				output.Printf("  %-16s %.0f\n", "Buy CE:", a.BuyCallStrike)
				output.Printf("  %-16s %.0f\n", "Buy PE:", a.BuyPutStrike)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&strategy, "strategy", "s", string(models.DefaultStrategy), "strategy name")
	cmd.Flags().Float64Var(&spot, "spot", 0, "spot price")
	cmd.Flags().Float64Var(&vix, "vix", 0, "volatility index (percent)")
	cmd.Flags().IntVar(&days, "days", 0, "days to expiry")
	cmd.Flags().Float64Var(&sigma, "sigma", models.DefaultSigmaMult, "sigma multiple")
	return cmd
}

func newPriceCmd() *cobra.Command {
	var (
		side    string
		spot    float64
		strike  float64
		days    float64
		vol     float64
		rate    float64
		premium float64
	)

	cmd := &cobra.Command{
		Use:   "price",
		Short: "Black-Scholes price, Greeks and implied volatility",
		Example: `  trader price --side CE --spot 25000 --strike 25450 --days 5 --vol 15
  trader price --side PE --spot 25000 --strike 24550 --days 5 --premium 12.5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			s := models.OptionSide(strings.ToUpper(side))
			if s != models.Call && s != models.Put {
				return fmt.Errorf("--side must be CE or PE")
			}
			if spot <= 0 || strike <= 0 {
				return fmt.Errorf("--spot and --strike must be positive")
			}
			t := pricing.YearFraction(days)

			result := map[string]interface{}{
				"side":      s,
				"spot":      spot,
				"strike":    strike,
				"days":      days,
				"intrinsic": pricing.Intrinsic(s, spot, strike),
			}
			if cmd.Flags().Changed("premium") {
				iv, err := pricing.ImpliedVol(s, premium, spot, strike, t, rate)
				if err != nil {
					return err
				}
				vol = iv * 100
				result["implied_vol"] = vol
			}
			if vol > 0 {
				sigma := vol / 100
				result["vol"] = vol
				result["price"] = pricing.Price(s, spot, strike, t, rate, sigma)
				result["greeks"] = pricing.Greeks(s, spot, strike, t, rate, sigma)
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			output.Bold("%s %.0f", s, strike)
			output.Printf("  %-16s %.2f\n", "Intrinsic:", result["intrinsic"])
			if iv, ok := result["implied_vol"]; ok {
				output.Printf("  %-16s %.2f%%\n", "Implied vol:", iv)
			}
			if p, ok := result["price"]; ok {
				g := result["greeks"].(models.OptionGreeks)
				output.Printf("  %-16s %.2f\n", "Price:", p)
				output.Printf("  %-16s %.4f\n", "Delta:", g.Delta)
				output.Printf("  %-16s %.6f\n", "Gamma:", g.Gamma)
				output.Printf("  %-16s %.4f\n", "Theta:", g.Theta)
				output.Printf("  %-16s %.4f\n", "Vega:", g.Vega)
			} else {
				output.Dim("  pass --vol or --premium for price and Greeks")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&side, "side", "CE", "option side: CE or PE")
	cmd.Flags().Float64Var(&spot, "spot", 0, "spot price")
	cmd.Flags().Float64Var(&strike, "strike", 0, "strike price")
	cmd.Flags().Float64Var(&days, "days", 0, "days to expiry")
	cmd.Flags().Float64Var(&vol, "vol", 0, "volatility (percent)")
	cmd.Flags().Float64Var(&rate, "rate", chain.DefaultRate, "risk-free rate")
	cmd.Flags().Float64Var(&premium, "premium", 0, "market premium to solve implied volatility from")
	return cmd
}
