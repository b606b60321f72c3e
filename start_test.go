package yieldboard

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jpalmerr/yieldboard/internal/store"
)

// startAdvisor runs Start in the background and returns a stop function
// that cancels it and waits for it to return.
func startAdvisor(t *testing.T, adv *Advisor) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- adv.Start(ctx)
	}()

	return func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Start() returned error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Start() did not return after context cancellation")
		}
	}
}

// TestStart_BlocksUntilContextCancelled verifies that Start blocks until the
// provided context is cancelled.
func TestStart_BlocksUntilContextCancelled(t *testing.T) {
	b := newStrategyBackend(t)
	// use a high port to avoid conflicts
	adv := newTestAdvisor(t, b, WithPort(19101))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- adv.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("Start() returned early with error: %v", err)
	default:
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
}

// TestStart_ReturnsImmediatelyIfContextAlreadyCancelled verifies that Start
// returns immediately if the context is already cancelled.
func TestStart_ReturnsImmediatelyIfContextAlreadyCancelled(t *testing.T) {
	b := newStrategyBackend(t)
	adv := newTestAdvisor(t, b, WithPort(19102))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- adv.Start(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return with already-cancelled context")
	}
}

func TestStart_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":19103")
	if err != nil {
		t.Skipf("cannot reserve port: %v", err)
	}
	defer ln.Close()

	b := newStrategyBackend(t)
	adv := newTestAdvisor(t, b, WithPort(19103))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = adv.Start(ctx)
	if err == nil || !strings.Contains(err.Error(), "failed to start HTTP server") {
		t.Errorf("Start() error = %v, want bind failure", err)
	}
}

func TestStart_ServesAPI(t *testing.T) {
	b := newStrategyBackend(t)
	b.expectImmediate(`{"strategies":[{"name":"Served"}]}`)
	adv := newTestAdvisor(t, b, WithPort(19104), WithTitle("Treasury"))
	stop := startAdvisor(t, adv)
	defer stop()

	base := "http://localhost:19104"
	var resp *http.Response
	ok := waitFor(t, 2*time.Second, func() bool {
		r, err := http.Get(base + "/api/status")
		if err != nil {
			return false
		}
		resp = r
		return true
	})
	if !ok {
		t.Fatal("server never came up")
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /api/status = %d", resp.StatusCode)
	}

	body := `{"board":"api","chain_id":1,"assets":[{"symbol":"ETH","balance":"2"}]}`
	resp, err := http.Post(base+"/api/generate-strategy", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST generate-strategy: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("POST generate-strategy = %d, want 200 for an immediate answer", resp.StatusCode)
	}

	state, found := adv.store.Get("api")
	if !found || state.Phase != store.PhaseCompleted {
		t.Errorf("board = %+v, %v", state, found)
	}
}

func TestStart_AnalysesConfiguredWallet(t *testing.T) {
	node, rpcURL := newRPCNode(t, 1, "0x14d1120d7b160000") // 1.5 ETH
	b := newStrategyBackend(t)
	b.expectJob("job-wallet", pendingBody, `{"status":"completed","strategies":[{"name":"Staking"}]}`)

	adv := newTestAdvisor(t, b,
		WithPort(19105),
		WithNetwork(Network{ChainID: 1, RPCURL: rpcURL}),
		WithWallet(Wallet{Address: testWallet, ChainID: 1}),
	)
	stop := startAdvisor(t, adv)
	defer stop()

	ok := waitFor(t, 5*time.Second, func() bool {
		state, found := adv.store.Get(testWallet)
		return found && state.Phase == store.PhaseCompleted
	})
	if !ok {
		state, _ := adv.store.Get(testWallet)
		t.Fatalf("wallet board never completed: %+v", state)
	}

	subs := b.submitted()
	if len(subs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(subs))
	}
	assets, _ := subs[0]["assets"].([]any)
	if len(assets) != 1 {
		t.Fatalf("assets = %v, want the native balance only", subs[0]["assets"])
	}
	native, _ := assets[0].(map[string]any)
	if native["asset_id"] != "eth" || native["amount"] != 1.5 {
		t.Errorf("native asset = %v", native)
	}
	if node.count("eth_getBalance") == 0 {
		t.Error("wallet balance was never read")
	}
}

func TestStart_WalletWithoutBalance(t *testing.T) {
	_, rpcURL := newRPCNode(t, 1, "0x0")
	b := newStrategyBackend(t)

	adv := newTestAdvisor(t, b,
		WithPort(19106),
		WithNetwork(Network{ChainID: 1, RPCURL: rpcURL}),
		WithWallet(Wallet{Address: testWallet, ChainID: 1}),
	)
	stop := startAdvisor(t, adv)
	defer stop()

	ok := waitFor(t, 5*time.Second, func() bool {
		state, found := adv.store.Get(testWallet)
		return found && state.Phase == store.PhaseIdle && state.Message == msgNoAssets
	})
	if !ok {
		t.Error("empty wallet should leave an idle board")
	}
	if len(b.submitted()) != 0 {
		t.Error("empty wallet must not be submitted")
	}
}

func TestStart_NetworkSwitchResubmits(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the wallet watcher")
	}

	node, rpcURL := newRPCNode(t, 1, "0xde0b6b3a7640000")
	b := newStrategyBackend(t)
	b.expectJob("job-eth", `{"status":"completed","strategies":[{"name":"On Ethereum"}]}`)
	b.expectJob("job-polygon", `{"status":"completed","strategies":[{"name":"On Polygon"}]}`)

	adv := newTestAdvisor(t, b,
		WithPort(19107),
		WithNetwork(Network{ChainID: 1, RPCURL: rpcURL}),
		WithNetwork(Network{ChainID: 137, RPCURL: rpcURL}),
		WithWallet(Wallet{Address: testWallet, ChainID: 1, ProviderURL: rpcURL}),
		WithWatchInterval(time.Second),
	)
	stop := startAdvisor(t, adv)
	defer stop()

	completedOn := func(chainID int64) func() bool {
		return func() bool {
			state, found := adv.store.Get(testWallet)
			return found && state.ChainID == chainID && state.Phase == store.PhaseCompleted
		}
	}
	if !waitFor(t, 5*time.Second, completedOn(1)) {
		t.Fatal("wallet board never completed on Ethereum")
	}
	// let the watcher record its baseline
	if !waitFor(t, 3*time.Second, func() bool { return node.count("eth_chainId") > 0 }) {
		t.Fatal("provider was never watched")
	}

	node.setChain(137)

	if !waitFor(t, 5*time.Second, completedOn(137)) {
		state, _ := adv.store.Get(testWallet)
		t.Fatalf("board did not follow the network switch: %+v", state)
	}

	subs := b.submitted()
	if len(subs) != 2 {
		t.Fatalf("submissions = %d, want 2", len(subs))
	}
	if got := fmt.Sprint(subs[1]["blockchain_id"]); got != "polygon" {
		t.Errorf("second submission chain = %s, want polygon", got)
	}
}

func TestStart_ProviderOnOtherChainAtStartup(t *testing.T) {
	node, rpcURL := newRPCNode(t, 137, "0xde0b6b3a7640000")
	b := newStrategyBackend(t)
	completed := `{"status":"completed","strategies":[{"name":"Yield"}]}`
	b.expectJob("job-1", completed)
	b.expectJob("job-2", completed)

	adv := newTestAdvisor(t, b,
		WithPort(19108),
		WithNetwork(Network{ChainID: 1, RPCURL: rpcURL}),
		WithNetwork(Network{ChainID: 137, RPCURL: rpcURL}),
		WithWallet(Wallet{Address: testWallet, ChainID: 1, ProviderURL: rpcURL}),
		WithWatchInterval(time.Second),
	)
	stop := startAdvisor(t, adv)
	defer stop()

	onPolygon := func() bool {
		state, found := adv.store.Get(testWallet)
		return found && state.ChainID == 137 && state.Phase == store.PhaseCompleted
	}
	if !waitFor(t, 5*time.Second, onPolygon) {
		state, _ := adv.store.Get(testWallet)
		t.Fatalf("board did not follow the provider's chain: %+v", state)
	}
	if node.count("eth_chainId") == 0 {
		t.Error("provider was never watched")
	}

	var polygon bool
	for _, sub := range b.submitted() {
		if fmt.Sprint(sub["blockchain_id"]) == "polygon" {
			polygon = true
		}
	}
	if !polygon {
		t.Errorf("no submission for polygon in %v", b.submitted())
	}
}
