package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/riskdesk/config"
)

var rootCmd = &cobra.Command{
	Use:   "riskdesk",
	Short: "Risk gating and position lifecycle engine for retail trading",
	Long: `Riskdesk decides whether new positions may be opened, tracks the open
position ledger, and moves stops and targets as prices change.

It provides tools for:
  - Running the strategy loop and protective-level watchdog
  - Replaying recorded quotes through the engine
  - Querying the trade journal
  - Generating and validating configuration files`,
	SilenceUsage: true,
}

var (
	cfgPath  string
	envFiles []string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (YAML or JSON); defaults when empty")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env", []string{".env"}, ".env files with RISKDESK_* overrides")
}

// loadConfig reads the config file if given, applies environment
// overrides and validates the result.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if cfgPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(cfgPath); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(envFiles...); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
