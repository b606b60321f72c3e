package yieldboard

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testWallet is a syntactically valid wallet address.
const testWallet = "0x00000000000000000000000000000000000000aa"

// fastPolling keeps end-to-end tests quick and deterministic.
var fastPolling = PollConfig{
	MaxAttempts: 30,
	BaseDelay:   time.Millisecond,
	MaxDelay:    5 * time.Millisecond,
	NoJitter:    true,
}

// strategyBackend is an in-memory strategy service. Each job answers the
// scripted status bodies in order, repeating the last one.
type strategyBackend struct {
	t  *testing.T
	ts *httptest.Server

	mu          sync.Mutex
	submissions []map[string]any
	submitReply []string
	scripts     map[string][]string
	polls       map[string]int
	submitFail  bool
}

func newStrategyBackend(t *testing.T) *strategyBackend {
	t.Helper()
	b := &strategyBackend{
		t:       t,
		scripts: make(map[string][]string),
		polls:   make(map[string]int),
	}
	b.ts = httptest.NewServer(b)
	t.Cleanup(b.ts.Close)
	return b
}

// expectJob queues a submission answered with jobID whose status requests
// answer bodies in order.
func (b *strategyBackend) expectJob(jobID string, bodies ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitReply = append(b.submitReply, fmt.Sprintf(`{"job_id":%q}`, jobID))
	b.scripts[jobID] = bodies
}

// expectImmediate queues a submission answered with strategies directly.
func (b *strategyBackend) expectImmediate(body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitReply = append(b.submitReply, body)
}

func (b *strategyBackend) submitURL() string {
	return b.ts.URL + "/api/portfolio-analysis"
}

func (b *strategyBackend) pollCount(jobID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.polls[jobID]
}

func (b *strategyBackend) submitted() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]map[string]any(nil), b.submissions...)
}

func (b *strategyBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/portfolio-analysis":
		var payload map[string]any
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		b.submissions = append(b.submissions, payload)

		if b.submitFail || len(b.submitReply) == 0 {
			http.Error(w, `{"detail":"analysis unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		reply := b.submitReply[0]
		b.submitReply = b.submitReply[1:]
		_, _ = w.Write([]byte(reply))

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/crawl-status/"):
		jobID := strings.TrimPrefix(r.URL.Path, "/api/crawl-status/")
		script, ok := b.scripts[jobID]
		if !ok {
			http.NotFound(w, r)
			return
		}
		n := b.polls[jobID]
		b.polls[jobID] = n + 1
		if n >= len(script) {
			n = len(script) - 1
		}
		_, _ = w.Write([]byte(script[n]))

	default:
		http.NotFound(w, r)
	}
}

// newTestAdvisor creates an advisor against b with fast polling.
func newTestAdvisor(t *testing.T, b *strategyBackend, opts ...Option) *Advisor {
	t.Helper()
	svc, err := NewService(b.submitURL(), WithTimeout(time.Second))
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	all := append([]Option{
		WithService(svc),
		WithPollConfig(fastPolling),
		WithLogger(testLogger()),
	}, opts...)

	adv, err := New(all...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = adv.Close() })
	return adv
}

func ethPortfolio(board string) Portfolio {
	return Portfolio{
		Board:   board,
		ChainID: 1,
		Assets: []Asset{
			{Symbol: "ETH", Name: "Ethereum", Amount: decimal.RequireFromString("1.5"), Address: "native"},
			{Symbol: "USDC", Name: "USD Coin", Amount: decimal.RequireFromString("250")},
		},
	}
}

// rpcNode is a minimal EVM JSON-RPC node holding one native balance.
type rpcNode struct {
	mu      sync.Mutex
	chainID int64
	wei     string
	calls   map[string]int
}

func newRPCNode(t *testing.T, chainID int64, weiHex string) (*rpcNode, string) {
	t.Helper()
	n := &rpcNode{chainID: chainID, wei: weiHex, calls: make(map[string]int)}
	ts := httptest.NewServer(n)
	t.Cleanup(ts.Close)
	return n, ts.URL
}

func (n *rpcNode) setChain(id int64) {
	n.mu.Lock()
	n.chainID = id
	n.mu.Unlock()
}

func (n *rpcNode) count(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *rpcNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     uint64 `json:"id"`
		Method string `json:"method"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	n.mu.Lock()
	n.calls[req.Method]++
	chainID, wei := n.chainID, n.wei
	n.mu.Unlock()

	var result any
	switch req.Method {
	case "eth_chainId":
		result = fmt.Sprintf("0x%x", chainID)
	case "eth_getBalance":
		result = wei
	case "eth_getCode":
		result = "0x"
	default:
		result = "0x0"
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
