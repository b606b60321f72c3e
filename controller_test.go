package yieldboard

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jpalmerr/yieldboard/internal/server"
)

func TestController_SubmitInvalidRequests(t *testing.T) {
	b := newStrategyBackend(t)
	c := &controller{a: newTestAdvisor(t, b)}

	tests := []struct {
		name string
		req  server.SubmitRequest
	}{
		{
			name: "bad balance",
			req:  server.SubmitRequest{ChainID: 1, Assets: []server.AssetInput{{Symbol: "ETH", Balance: "lots"}}},
		},
		{
			name: "zero balances",
			req:  server.SubmitRequest{ChainID: 1, Assets: []server.AssetInput{{Symbol: "ETH", Balance: "0"}}},
		},
		{
			name: "unknown chain",
			req:  server.SubmitRequest{ChainID: 5, Assets: []server.AssetInput{{Symbol: "ETH", Balance: "1"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Submit(context.Background(), tt.req)
			if !errors.Is(err, server.ErrInvalidRequest) {
				t.Errorf("Submit() error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestController_SubmitLowercasesWalletBoard(t *testing.T) {
	b := newStrategyBackend(t)
	b.expectJob("job-1", pendingBody)
	c := &controller{a: newTestAdvisor(t, b)}

	board := "0x" + strings.ToUpper(testWallet[2:])
	res, err := c.Submit(context.Background(), server.SubmitRequest{
		Board:   board,
		ChainID: 1,
		Assets:  []server.AssetInput{{Symbol: "ETH", Balance: "1.25"}},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.Board != testWallet || res.JobID != "job-1" {
		t.Errorf("result = %+v", res)
	}
	if res.Strategies != nil {
		t.Error("a queued job has no strategies yet")
	}
}

func TestController_ExplainAndBalancesValidation(t *testing.T) {
	b := newStrategyBackend(t)
	c := &controller{a: newTestAdvisor(t, b)}

	if _, err := c.Explain(server.ExplainRequest{Strategy: json.RawMessage(`[1]`)}); !errors.Is(err, server.ErrInvalidRequest) {
		t.Errorf("Explain() error = %v, want ErrInvalidRequest", err)
	}

	out, err := c.Explain(server.ExplainRequest{
		Strategy: json.RawMessage(`{"name":"Lido staking","risk_level":"Medium","platforms":["Lido"]}`),
		Assets:   []server.AssetInput{{Symbol: "eth", Balance: "not a number"}},
	})
	if err != nil {
		t.Fatalf("Explain() error = %v", err)
	}
	if !strings.Contains(out, "Lido staking") || !strings.Contains(out, "well-suited for ETH") {
		t.Errorf("explanation = %s", out)
	}

	if _, err := c.Balances(context.Background(), 1, "not-an-address"); !errors.Is(err, server.ErrInvalidRequest) {
		t.Errorf("Balances(bad address) error = %v", err)
	}
	if _, err := c.Balances(context.Background(), 5, testWallet); !errors.Is(err, server.ErrInvalidRequest) {
		t.Errorf("Balances(unknown chain) error = %v", err)
	}
}
