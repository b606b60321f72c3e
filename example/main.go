package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jpalmerr/yieldboard"
)

func main() {
	// start mock strategy service (see mock_server.go)
	go StartMockStrategyServer(":9999")
	time.Sleep(100 * time.Millisecond)

	svc, err := yieldboard.NewService("http://localhost:9999/api/portfolio-analysis",
		yieldboard.WithTopProtocols(5),
	)
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	adv, err := yieldboard.New(
		yieldboard.WithService(svc),
		yieldboard.WithPollConfig(yieldboard.PollConfig{
			BaseDelay: 500 * time.Millisecond,
			MaxDelay:  5 * time.Second,
		}),
		yieldboard.WithPort(8080),
		yieldboard.WithOutcomeCallback(func(o yieldboard.Outcome) {
			slog.Info("job finished", "board", o.Board, "kind", o.Kind, "strategies", len(o.Strategies), "reason", o.Reason)
		}),
	)
	if err != nil {
		slog.Error("failed to create advisor", "error", err)
		os.Exit(1)
	}
	defer adv.Close()

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Yieldboard Demo                                     ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Open http://localhost:8080 in your browser          ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Boards:                                             ║")
	fmt.Println("  ║   • demo-eth (Ethereum, ETH + USDC)                   ║")
	fmt.Println("  ║   • demo-polygon (Polygon, MATIC)                     ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	portfolios := []yieldboard.Portfolio{
		{
			Board:   "demo-eth",
			ChainID: 1,
			Assets: []yieldboard.Asset{
				{Symbol: "ETH", Name: "Ethereum", Address: "native", Amount: decimal.RequireFromString("1.5")},
				{Symbol: "USDC", Name: "USD Coin", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Amount: decimal.NewFromInt(2500)},
			},
		},
		{
			Board:   "demo-polygon",
			ChainID: 137,
			Assets: []yieldboard.Asset{
				{Symbol: "MATIC", Name: "Polygon", Address: "native", Amount: decimal.NewFromInt(400)},
			},
		},
	}
	for _, p := range portfolios {
		if _, err := adv.SubmitAndPoll(ctx, p); err != nil {
			slog.Error("submit failed", "board", p.Board, "error", err)
		}
	}

	if err := adv.Start(ctx); err != nil {
		slog.Error("yieldboard error", "error", err)
		os.Exit(1)
	}
}
