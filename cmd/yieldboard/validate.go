package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a yieldboard configuration file without starting the server.

This command parses the YAML, applies YIELDBOARD_* overrides, expands
environment variables, and validates all fields. It's useful for CI/CD
pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  yieldboard validate -c config.yaml
  yieldboard validate --config /etc/yieldboard/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:          %d\n", cfg.Port)
	fmt.Fprintf(out, "  Submit URL:    %s\n", cfg.StrategyService.SubmitURL)
	fmt.Fprintf(out, "  Max attempts:  %s\n", orDefault(cfg.Polling.MaxAttempts, "30 (default)"))
	fmt.Fprintf(out, "  Networks:      %d configured\n", len(cfg.Networks))
	fmt.Fprintf(out, "  Wallets:       %d\n", len(cfg.Wallets))
	if cfg.RefreshCron != "" {
		fmt.Fprintf(out, "  Refresh:       %s\n", cfg.RefreshCron)
	}

	return nil
}

func orDefault(n int, def string) string {
	if n == 0 {
		return def
	}
	return fmt.Sprint(n)
}
