// Package yieldboard provides an embeddable DeFi portfolio advisor: it reads
// wallet balances across EVM chains, submits the portfolio to a strategy
// analysis service, polls the asynchronous job until it settles and serves
// the recommended strategies on a live dashboard.
//
// # Quick Start
//
//	svc, _ := yieldboard.NewService("http://localhost:8000/api/portfolio-analysis")
//	adv, _ := yieldboard.New(
//	    yieldboard.WithService(svc),
//	    yieldboard.WithWallet(yieldboard.Wallet{Address: "0x...", ChainID: 1}),
//	)
//	defer adv.Close()
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	adv.Start(ctx) // blocks until context is cancelled
//
// # Polling
//
// A submission answered with a job handle is polled with exponential
// backoff: before attempt n the advisor waits min(1s * 1.5^(n-1), 30s) plus
// up to 30% jitter. Network errors, non-2xx answers and unparseable bodies
// count as attempts and polling continues. After 30 attempts the job ends
// as timed out, which is distinct from a failure reported by the service.
//
// Each job ends in exactly one [Outcome] unless it is cancelled. Submitting
// a new portfolio for a board cancels the board's previous job, and a
// cancelled job never delivers an outcome:
//
//	run, err := adv.SubmitAndPoll(ctx, yieldboard.Portfolio{ChainID: 1, Assets: assets})
//	if err != nil {
//	    return err
//	}
//	outcome, err := run.Wait(ctx)
//
// # Status Extractors
//
// Extractors adapt the advisor to status payloads of other shapes:
//
//   - [JSONFieldExtractor]: reads the status from a dot-notation JSON path
//   - [RegexExtractor]: reads the status from a regex capture group
//   - [FirstMatch]: tries several extractors in order
//   - [JSONArrayExtractor]: reads strategies from the first matching array path
//
// # Architecture
//
// The internal packages are not part of the public API:
//
//   - internal/poller: HTTP client, backoff and the job polling state machine
//   - internal/backend: strategy submission and status clients
//   - internal/chain: network registry, JSON-RPC and balance reads
//   - internal/store: board state with generation guard and pub/sub
//   - internal/server: REST API and Server-Sent Events
//   - internal/explain, internal/recorder, internal/cache: explanations,
//     run audit log and balance cache
//   - dashboard: embedded web UI assets
package yieldboard
