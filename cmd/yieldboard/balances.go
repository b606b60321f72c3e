package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/yieldboard"
	"github.com/jpalmerr/yieldboard/config"
)

// balancesCmd reads a wallet's holdings on one network.
var balancesCmd = &cobra.Command{
	Use:   "balances",
	Short: "Read a wallet's balances",
	Long: `Read the native coin and common token balances of a wallet on one
network, using the RPC endpoints from the config file.

Example:
  yieldboard balances --chain 1 --address 0x742d35Cc6634C0532925a3b844Bc454e4438f44e -c config.yaml
  yieldboard balances --chain 137 --address 0x742d... --token native,0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174 -c config.yaml`,
	RunE: runBalances,
}

func init() {
	rootCmd.AddCommand(balancesCmd)

	balancesCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	balancesCmd.Flags().Int64("chain", 1, "chain id")
	balancesCmd.Flags().String("address", "", "wallet address (required)")
	balancesCmd.Flags().StringSlice("token", nil, "token contracts to read instead of the common list (\"native\" for the coin)")
	balancesCmd.Flags().Bool("json", false, "print JSON")
	_ = balancesCmd.MarkFlagRequired("config")
	_ = balancesCmd.MarkFlagRequired("address")
}

func runBalances(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	chainID, _ := cmd.Flags().GetInt64("chain")
	address, _ := cmd.Flags().GetString("address")
	tokens, _ := cmd.Flags().GetStringSlice("token")
	asJSON, _ := cmd.Flags().GetBool("json")

	opts, err := config.BuildOptions(cfg, newLogger(cfg.SlogLevel()))
	if err != nil {
		return fmt.Errorf("failed to build options: %w", err)
	}
	adv, err := yieldboard.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create advisor: %w", err)
	}
	defer adv.Close()

	cc, err := adv.ChainContext(chainID)
	if err != nil {
		return err
	}
	var balances []yieldboard.Asset
	if len(tokens) > 0 {
		balances, err = adv.TokenBalances(cmd.Context(), cc, address, tokens)
	} else {
		balances, err = adv.Balances(cmd.Context(), cc, address)
	}
	if err != nil {
		return fmt.Errorf("read balances: %w", err)
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(balances)
	}

	fmt.Fprintf(out, "%s wallet %s\n\n", cc.Network().Name, address)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tBALANCE\tADDRESS")
	for _, b := range balances {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", b.Symbol, b.Display(), b.Address)
	}
	return tw.Flush()
}
