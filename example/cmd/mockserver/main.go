// Standalone mock strategy service for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/yieldboard serve -c example/config.yaml
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sync"
)

func main() {
	fmt.Println("Mock strategy service starting on :9999")
	fmt.Println("Jobs go: pending → processing → completed (or failed)")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	var (
		jobs = make(map[string]*mockJob)
		mu   sync.Mutex
		seq  int
	)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/portfolio-analysis", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seq++
		id := fmt.Sprintf("job-%d", seq)
		jobs[id] = &mockJob{finishAt: 2 + rand.Intn(4), fails: rand.Intn(5) == 0}
		mu.Unlock()

		slog.Info("job submitted", "job_id", id)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"job_id": id, "status": "pending"})
	})

	mux.HandleFunc("GET /api/crawl-status/{id}", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		job, ok := jobs[r.PathValue("id")]
		if ok {
			job.polls++
		}
		mu.Unlock()

		if !ok {
			http.Error(w, "unknown job", http.StatusNotFound)
			return
		}

		resp := map[string]any{"status": "processing"}
		switch {
		case job.polls < job.finishAt:
		case job.fails:
			resp = map[string]any{"status": "failed", "error": "strategy generation failed"}
		default:
			resp = map[string]any{"status": "completed", "data": []map[string]any{{
				"name":         "Stablecoin Lending",
				"risk_level":   "Low",
				"expected_apy": "4-6%",
				"platforms":    []string{"Aave", "Compound"},
			}}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	if err := http.ListenAndServe(":9999", mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

type mockJob struct {
	polls    int
	finishAt int
	fails    bool
}
