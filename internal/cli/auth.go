package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sigma-trader/internal/security"
	"sigma-trader/pkg/utils"
)

// addAuthCommands adds Kite session commands.
func addAuthCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newLoginCmd(app))
	rootCmd.AddCommand(newLogoutCmd(app))
	rootCmd.AddCommand(newAuthStatusCmd(app))
}

func newLoginCmd(app *App) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login to Zerodha Kite Connect",
		Long: `Login to Zerodha Kite Connect.

Without --token, prints the login URL. After logging in, Kite redirects with
a request_token parameter; pass it to --token to complete the session.
The session is saved until 6 AM IST the next day.`,
		Example: `  trader login
  trader login --token=<request_token>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			kite := app.Kite()
			if kite == nil {
				output.Error("Broker not configured. Please check your credentials.toml")
				return fmt.Errorf("broker not configured")
			}
			if kite.IsAuthenticated() && token == "" {
				output.Success("✓ Already logged in")
				return nil
			}

			if token == "" {
				output.Bold("Login URL:")
				output.Println(kite.LoginURL())
				output.Println()
				output.Info("Complete login with: trader login --token=<request_token>")
				return nil
			}

			err := kite.CompleteLogin(ctx, token, app.Config.Credentials.Kite.APISecret)
			app.Audit(ctx, func(al *security.AuditLogger) error {
				return al.LogLogin(ctx, err == nil, errString(err))
			})
			if err != nil {
				output.Error("Login failed: %v", security.MaskSecrets(err.Error()))
				return err
			}
			output.Success("✓ Login successful!")
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "request token from the Kite redirect")
	return cmd
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Invalidate the Kite session",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			kite := app.Kite()
			if kite == nil {
				return fmt.Errorf("broker not configured")
			}
			err := kite.Logout()
			ctx := context.Background()
			app.Audit(ctx, func(al *security.AuditLogger) error {
				return al.LogLogout(ctx, err == nil, errString(err))
			})
			if err != nil {
				output.Error("Logout failed: %v", err)
				return err
			}
			output.Success("✓ Logged out")
			return nil
		},
	}
}

func newAuthStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show broker session and provider status",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			now := app.Now()

			kite := app.Kite()
			status := map[string]interface{}{
				"mode":          app.Config.Trading.Mode,
				"kite":          kite != nil,
				"authenticated": kite != nil && kite.IsAuthenticated(),
				"market":        marketStatus(now),
			}
			providers := []string{}
			if router, err := app.Router(); err == nil {
				providers = router.Providers()
			}
			status["providers"] = providers

			if output.IsJSON() {
				return output.JSON(status)
			}
			output.Printf("  %-16s %s\n", "Mode:", app.Config.Trading.Mode)
			switch {
			case kite == nil:
				output.Printf("  %-16s %s\n", "Kite:", output.DimText("not configured"))
			case kite.IsAuthenticated():
				output.Printf("  %-16s %s\n", "Kite:", output.Green("logged in"))
			default:
				output.Printf("  %-16s %s\n", "Kite:", output.Yellow("logged out"))
			}
			if len(providers) == 0 {
				output.Printf("  %-16s %s\n", "Providers:", output.DimText("none; decisions use safe defaults"))
			} else {
				output.Printf("  %-16s %v\n", "Providers:", providers)
			}
			output.Printf("  %-16s %s\n", "Market:", marketStatus(now))
			return nil
		},
	}
}

func marketStatus(now time.Time) string {
	status := utils.GetMarketStatus(now)
	if status == utils.MarketOpen {
		return string(status)
	}
	return fmt.Sprintf("%s (opens %s)", status, FormatDateTime(utils.GetNextMarketOpen(now)))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
