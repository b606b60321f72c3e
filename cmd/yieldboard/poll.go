package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/yieldboard"
	"github.com/jpalmerr/yieldboard/config"
)

// pollCmd follows one already-submitted strategy job to its outcome.
var pollCmd = &cobra.Command{
	Use:   "poll <job-id>",
	Short: "Follow a strategy job until it finishes",
	Long: `Poll the status of a strategy job that was submitted elsewhere, using
the configured service and polling schedule, and print the outcome.

Exit codes:
  0 - Job completed
  1 - Job failed, timed out or was interrupted

Example:
  yieldboard poll 5f1c2a -c config.yaml
  yieldboard poll 5f1c2a -c config.yaml --json`,
	Args: cobra.ExactArgs(1),
	RunE: runPoll,
}

func init() {
	rootCmd.AddCommand(pollCmd)

	pollCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	pollCmd.Flags().Bool("json", false, "print the strategies as JSON")
	_ = pollCmd.MarkFlagRequired("config")
}

func runPoll(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	asJSON, _ := cmd.Flags().GetBool("json")
	logger := newLogger(cfg.SlogLevel())

	opts, err := config.BuildOptions(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build options: %w", err)
	}
	adv, err := yieldboard.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create advisor: %w", err)
	}
	defer adv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run, err := adv.Track("cli", args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	for {
		select {
		case <-ctx.Done():
			run.Cancel()
			return errors.New("interrupted")
		case ev, ok := <-run.Events():
			if !ok {
				return yieldboard.ErrCancelled
			}
			if ev.Progress != nil {
				fmt.Fprintf(errOut, "attempt %d, next check in %s\n", ev.Progress.Attempt, ev.Progress.NextDelay)
				continue
			}
			return printOutcome(out, *ev.Outcome, asJSON)
		}
	}
}

func printOutcome(out io.Writer, o yieldboard.Outcome, asJSON bool) error {
	if !o.Succeeded() {
		return fmt.Errorf("job %s %s after %d attempts: %s", o.JobID, o.Kind, o.Attempts, o.Reason)
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(o.RawStrategies)
	}

	fmt.Fprintf(out, "Job %s completed after %d attempts (%s)\n", o.JobID, o.Attempts, o.Elapsed.Round(time.Millisecond))
	if len(o.Strategies) == 0 {
		fmt.Fprintln(out, "No strategies matched this portfolio.")
		return nil
	}
	for i, s := range o.Strategies {
		fmt.Fprintf(out, "%d. %s", i+1, orText(s.Name, "Unnamed strategy"))
		if s.Risk != "" {
			fmt.Fprintf(out, " [%s risk]", s.Risk)
		}
		if s.ExpectedAPY != "" {
			fmt.Fprintf(out, " APY %s", s.ExpectedAPY)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func orText(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
