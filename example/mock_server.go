package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
)

// mockJob tracks how many status checks a job needs before it finishes.
type mockJob struct {
	polls    int
	finishAt int
	fails    bool
}

var mockStrategies = []map[string]any{
	{
		"name":         "Stablecoin Lending",
		"description":  "Lend stablecoins on blue-chip money markets",
		"risk_level":   "Low",
		"expected_apy": "4-6%",
		"platforms":    []string{"Aave", "Compound"},
		"allocation":   map[string]any{"USDC": "70%", "DAI": 30},
		"steps":        []string{"Bridge funds to the lending market", "Supply USDC and DAI", "Monitor utilisation weekly"},
	},
	{
		"name":                 "ETH Liquid Staking",
		"description":          "Stake ETH through a liquid staking token",
		"riskLevel":            "Medium",
		"expectedApy":          "3-5%",
		"recommendedPlatforms": []string{"Lido", "Rocket Pool"},
	},
}

// StartMockStrategyServer runs a mock strategy service. Each submitted job
// reports "processing" for 2-5 status checks, then completes; one job in
// five fails instead.
// Call this in a goroutine before creating the advisor.
func StartMockStrategyServer(addr string) {
	var (
		jobs = make(map[string]*mockJob)
		mu   sync.Mutex
		seq  atomic.Int64
	)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/portfolio-analysis", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		id := fmt.Sprintf("job-%d", seq.Add(1))
		mu.Lock()
		jobs[id] = &mockJob{finishAt: 2 + rand.Intn(4), fails: rand.Intn(5) == 0}
		mu.Unlock()
		slog.Info("job submitted", "job_id", id, "blockchain_id", req["blockchain_id"])

		writeJSON(w, map[string]any{"job_id": id, "status": "pending"})
	})

	mux.HandleFunc("GET /api/crawl-status/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		mu.Lock()
		job, ok := jobs[id]
		if ok {
			job.polls++
		}
		mu.Unlock()

		switch {
		case !ok:
			http.Error(w, "unknown job", http.StatusNotFound)
		case job.polls < job.finishAt:
			writeJSON(w, map[string]any{"status": "processing"})
		case job.fails:
			writeJSON(w, map[string]any{"status": "failed", "message": "No protocols matched this portfolio"})
		default:
			writeJSON(w, map[string]any{"status": "completed", "strategies": mockStrategies})
		}
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock server error", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
