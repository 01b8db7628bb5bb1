// Package cli provides the command-line interface for the trading pipeline.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"sigma-trader/internal/config"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-10-01"
)

// Execute runs the command line. Stores opened by the command are closed
// before it returns, including when the command fails.
func Execute(cfg *config.Config, logger zerolog.Logger) error {
	app := NewApp(cfg, logger)
	return app.execute(NewRootCmd(app))
}

func (a *App) execute(cmd *cobra.Command) (err error) {
	defer func() {
		if cerr := a.Close(); err == nil {
			err = cerr
		}
	}()
	return cmd.Execute()
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "Sigma Trader - NIFTY weekly options decision pipeline",
		Long: `Sigma Trader proposes a short-premium options position on a weekly index expiry.

Each run scans spot, volatility index and option chain, gathers research and
open-position signals, picks a strategy and sigma multiple, builds the order
from the chain and submits it to a risk review. Orders are placed only on
explicit request and only when the review approves.

Use 'trader run --offline --spot 25000 --vix 15' to try it without a broker.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if dir, _ := cmd.Flags().GetString("config"); dir != "" && dir != app.Config.Dir() {
				loaded, err := config.Load(dir)
				if err != nil {
					return err
				}
				app.Config = loaded
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/sigma-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newMarketCmds(app)...)
	rootCmd.AddCommand(newRulesCmd(app))
	rootCmd.AddCommand(newHistoryCmd(app))
	addAuthCommands(rootCmd, app)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Sigma Trader v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(configView(app.Config))
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": app.Config.Dir()})
			} else {
				output.Println(app.Config.Dir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

// configView is the configuration with secrets reduced to presence flags.
func configView(cfg *config.Config) map[string]interface{} {
	return map[string]interface{}{
		"dir":      cfg.Dir(),
		"market":   cfg.Market,
		"trading":  cfg.Trading,
		"pipeline": cfg.Pipeline,
		"storage":  cfg.Storage,
		"logging":  cfg.Logging,
		"agents": map[string]interface{}{
			"default_provider": cfg.Agents.DefaultProvider,
			"providers":        cfg.Agents.Providers,
			"openai_model":     cfg.Agents.OpenAIModel,
			"groq_model":       cfg.Agents.GroqModel,
			"temperature":      cfg.Agents.Temperature,
		},
		"credentials": map[string]bool{
			"kite":   cfg.Credentials.Kite.APIKey != "",
			"openai": cfg.Credentials.OpenAI.APIKey != "",
			"groq":   cfg.Credentials.Groq.APIKey != "",
		},
	}
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Configuration")
	output.Dim("  %s", cfg.Dir())
	output.Println()

	output.Bold("Market")
	output.Printf("  Symbol:          %s\n", cfg.Market.Symbol)
	output.Printf("  Tick:            %.0f\n", cfg.Market.Tick)
	output.Printf("  Expiry weekday:  %s\n", cfg.Market.ExpiryWeekday)
	output.Printf("  Wing width:      %.0f\n", cfg.Market.WingWidth)
	output.Println()

	output.Bold("Trading")
	mode := output.Yellow(cfg.Trading.Mode)
	if cfg.Trading.Mode == "live" {
		mode = output.Red(cfg.Trading.Mode)
	}
	output.Printf("  Mode:            %s\n", mode)
	output.Printf("  Product:         %s\n", cfg.Trading.Product)
	output.Printf("  Lots:            %d\n", cfg.Trading.Lots)
	output.Println()

	output.Bold("Pipeline")
	output.Printf("  Default:         %s @ %.1fσ\n", cfg.Pipeline.DefaultStrategy, cfg.Pipeline.DefaultSigma)
	output.Printf("  Sigma bounds:    %.1f - %.1f\n", cfg.Pipeline.MinSigma, cfg.Pipeline.MaxSigma)
	output.Printf("  Min vol index:   %.1f\n", cfg.Pipeline.MinVolIndex)
	output.Printf("  Override:        %s\n", orDefault(cfg.Pipeline.Override, "Auto"))
	output.Println()

	output.Bold("Agents")
	output.Printf("  Default provider: %s\n", cfg.Agents.DefaultProvider)
	for node, provider := range cfg.Agents.Providers {
		output.Printf("  %-16s %s\n", node+":", provider)
	}
	output.Println()

	output.Bold("Credentials")
	output.Printf("  Kite:    %s\n", presence(output, cfg.Credentials.Kite.APIKey))
	output.Printf("  OpenAI:  %s\n", presence(output, cfg.Credentials.OpenAI.APIKey))
	output.Printf("  Groq:    %s\n", presence(output, cfg.Credentials.Groq.APIKey))
}

func presence(output *Output, key string) string {
	if key == "" {
		return output.DimText("not set")
	}
	return output.Green("configured")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
