package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/yieldboard"
)

// explainCmd renders the walkthrough of a strategy.
var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Explain how to implement a strategy",
	Long: `Render a markdown walkthrough of one strategy, as returned by the
strategy service, in the terminal.

Use "-" as the file to read the strategy from stdin.

Example:
  yieldboard explain --file strategy.json --assets ETH,USDC
  yieldboard poll 5f1c2a -c config.yaml --json | jq '.[0]' | yieldboard explain --file -`,
	RunE: runExplain,
}

func init() {
	rootCmd.AddCommand(explainCmd)

	explainCmd.Flags().StringP("file", "f", "", "strategy JSON file, or - for stdin (required)")
	explainCmd.Flags().StringSlice("assets", nil, "asset symbols held (comma-separated)")
	explainCmd.Flags().Bool("raw", false, "print markdown without terminal rendering")
	_ = explainCmd.MarkFlagRequired("file")
}

func runExplain(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	symbols, _ := cmd.Flags().GetStringSlice("assets")
	raw, _ := cmd.Flags().GetBool("raw")

	data, err := readInput(cmd.InOrStdin(), file)
	if err != nil {
		return err
	}

	var s yieldboard.Strategy
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode strategy: %w", err)
	}

	assets := make([]yieldboard.Asset, 0, len(symbols))
	for _, sym := range symbols {
		if sym = strings.TrimSpace(sym); sym != "" {
			assets = append(assets, yieldboard.Asset{Symbol: sym, Amount: decimal.Zero})
		}
	}

	markdown := yieldboard.Explain(s, assets)
	out := cmd.OutOrStdout()
	if raw {
		_, err := io.WriteString(out, markdown)
		return err
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return fmt.Errorf("create renderer: %w", err)
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	_, err = io.WriteString(out, rendered)
	return err
}

func readInput(stdin io.Reader, file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read strategy: %w", err)
	}
	return data, nil
}
