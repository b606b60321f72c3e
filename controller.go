package yieldboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jpalmerr/yieldboard/internal/chain"
	"github.com/jpalmerr/yieldboard/internal/recorder"
	"github.com/jpalmerr/yieldboard/internal/server"
)

// controller serves the dashboard API from an Advisor.
type controller struct {
	a *Advisor
}

var _ server.Controller = (*controller)(nil)

func (c *controller) Submit(ctx context.Context, req server.SubmitRequest) (server.SubmitResult, error) {
	assets, err := fromInputs(req.Assets, true)
	if err != nil {
		return server.SubmitResult{}, err
	}

	board := req.Board
	if chain.IsAddress(board) {
		board = strings.ToLower(board)
	}

	run, err := c.a.SubmitAndPoll(ctx, Portfolio{Board: board, ChainID: req.ChainID, Assets: assets})
	switch {
	case errors.Is(err, ErrNoAssets), errors.Is(err, ErrUnknownChain):
		return server.SubmitResult{}, fmt.Errorf("%w: %w", server.ErrInvalidRequest, err)
	case err != nil:
		return server.SubmitResult{}, err
	}

	result := server.SubmitResult{
		JobID:      run.JobID(),
		Board:      run.Board(),
		Generation: run.Generation(),
	}
	if o, ok := run.Outcome(); ok && run.JobID() == "" {
		result.Strategies = o.RawStrategies
	}
	return result, nil
}

func (c *controller) Cancel(jobID string) bool {
	return c.a.Cancel(jobID)
}

func (c *controller) Explain(req server.ExplainRequest) (string, error) {
	var s Strategy
	if err := json.Unmarshal(req.Strategy, &s); err != nil {
		return "", fmt.Errorf("%w: strategy: %w", server.ErrInvalidRequest, err)
	}
	assets, err := fromInputs(req.Assets, false)
	if err != nil {
		return "", err
	}
	return c.a.Explain(s, assets), nil
}

func (c *controller) Balances(ctx context.Context, chainID int64, wallet string) ([]chain.Balance, error) {
	if !chain.IsAddress(wallet) {
		return nil, fmt.Errorf("%w: invalid address %q", server.ErrInvalidRequest, wallet)
	}
	cc, err := c.a.ChainContext(chainID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", server.ErrInvalidRequest, err)
	}
	return c.a.Balances(ctx, cc, wallet)
}

func (c *controller) Networks() []chain.Network {
	return c.a.Networks()
}

func (c *controller) RecentRuns(ctx context.Context, limit int) ([]recorder.Run, error) {
	return c.a.RecentRuns(ctx, limit)
}

// fromInputs converts posted holdings. With strict set, a balance that is
// not a decimal number is an error; otherwise it is read as zero.
func fromInputs(inputs []server.AssetInput, strict bool) ([]Asset, error) {
	assets := make([]Asset, 0, len(inputs))
	for _, in := range inputs {
		amount, err := decimal.NewFromString(in.Balance.String())
		if err != nil {
			if strict {
				return nil, fmt.Errorf("%w: invalid balance %q for %s", server.ErrInvalidRequest, in.Balance, in.Symbol)
			}
			amount = decimal.Zero
		}
		assets = append(assets, Asset{
			Symbol:  in.Symbol,
			Name:    in.Name,
			Amount:  amount,
			Address: in.Address,
		})
	}
	return assets, nil
}
