// Package main is the entry point for the yieldboard CLI.
//
// yieldboard can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	yieldboard serve -c config.yaml                       # Start the dashboard
//	yieldboard validate -c config.yaml                    # Validate configuration
//	yieldboard poll <job-id> -c config.yaml               # Follow one strategy job
//	yieldboard balances --chain 1 --address 0x... -c ...  # Read wallet balances
//	yieldboard explain --file strategy.json               # Render a strategy walkthrough
//	yieldboard version                                    # Show version info
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/yieldboard/config"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "yieldboard",
	Short: "A live DeFi strategy dashboard",
	Long: `yieldboard submits wallet portfolios to a strategy analysis service,
polls the resulting jobs with backoff and shows the recommended yield
strategies on a live dashboard.

Quick start:
  1. Create a config file (yieldboard.yaml)
  2. Run: yieldboard serve -c yieldboard.yaml
  3. Open http://localhost:8080 in your browser

Example config:
  port: 8080
  strategy_service:
    submit_url: http://localhost:8000/api/portfolio-analysis
  wallets:
    - address: "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
      chain_id: 1

A .env file in the working directory is loaded before the config.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadDotEnv()
	},
	SilenceUsage: true,
}

// loadDotEnv loads .env when present; a missing file is not an error.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return fmt.Errorf("load .env file: %w", err)
		}
	}
	return nil
}

// newLogger creates a JSON logger for CLI use.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// loadConfig reads the file named by the --config flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this yieldboard binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "yieldboard %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
