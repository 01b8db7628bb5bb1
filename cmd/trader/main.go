// Command trader runs the NIFTY weekly options decision pipeline.
package main

import (
	"fmt"
	"os"

	"sigma-trader/internal/cli"
	"sigma-trader/internal/config"
	"sigma-trader/internal/logging"
)

func main() {
	cfg, err := config.Load(os.Getenv("SIGMA_TRADER_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logCfg := logging.DefaultLogConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Console = cfg.Logging.Console
	logCfg.File = cfg.Logging.File != ""
	logCfg.FilePath = cfg.Logging.File
	logger := logging.NewLoggerWithConfig(logCfg)

	if err := cli.Execute(cfg, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
