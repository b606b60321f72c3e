package poller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type step struct {
	body string
	err  error
}

// scriptedFetcher replays steps in order, repeating the last one.
type scriptedFetcher struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func (f *scriptedFetcher) FetchStatus(ctx context.Context, jobID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i >= len(f.steps) {
		i = len(f.steps) - 1
	}
	if f.steps[i].err != nil {
		return nil, f.steps[i].err
	}
	return []byte(f.steps[i].body), nil
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recordingWait returns immediately and records each requested delay.
type recordingWait struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (w *recordingWait) wait(ctx context.Context, d time.Duration) error {
	w.mu.Lock()
	w.delays = append(w.delays, d)
	w.mu.Unlock()
	return ctx.Err()
}

func (w *recordingWait) total() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	var sum time.Duration
	for _, d := range w.delays {
		sum += d
	}
	return sum
}

func newTestPoller(f StatusFetcher, cfg Config, opts ...JobPollerOption) (*JobPoller, *recordingWait) {
	w := &recordingWait{}
	all := append([]JobPollerOption{WithWait(w.wait), WithRandom(func() float64 { return 0 })}, opts...)
	return NewJobPoller(f, cfg, testLogger(), all...), w
}

func TestPoll_CompletesAfterPending(t *testing.T) {
	f := &scriptedFetcher{steps: []step{
		{body: `{"status":"pending"}`},
		{body: `{"status":"processing"}`},
		{body: `{"status":"completed","strategies":[{"name":"S1"}]}`},
	}}
	p, w := newTestPoller(f, Config{})

	var progress []Progress
	out := p.Poll(context.Background(), "job-1", func(pr Progress) { progress = append(progress, pr) })

	if out.Kind != OutcomeCompleted {
		t.Fatalf("kind = %s, want completed", out.Kind)
	}
	if len(out.Strategies) != 1 {
		t.Fatalf("strategies = %d, want 1", len(out.Strategies))
	}
	if out.Attempts != 3 || f.Calls() != 3 {
		t.Errorf("attempts = %d calls = %d, want 3/3", out.Attempts, f.Calls())
	}
	if out.JobID != "job-1" {
		t.Errorf("job id = %q", out.JobID)
	}
	if len(progress) != 3 {
		t.Fatalf("progress events = %d, want 3", len(progress))
	}
	for i, pr := range progress {
		if pr.Attempt != i+1 {
			t.Errorf("progress[%d].Attempt = %d", i, pr.Attempt)
		}
		if pr.NextDelay != w.delays[i] {
			t.Errorf("progress[%d].NextDelay = %v, waited %v", i, pr.NextDelay, w.delays[i])
		}
	}
}

// TestPoll_TransientErrorsAreAbsorbed: two failures then an empty result.
func TestPoll_TransientErrorsAreAbsorbed(t *testing.T) {
	f := &scriptedFetcher{steps: []step{
		{err: errors.New("connection refused")},
		{err: errors.New("status 503")},
		{body: `{"status":"completed","strategies":[]}`},
	}}
	p, _ := newTestPoller(f, Config{})

	out := p.Poll(context.Background(), "job-2", nil)

	if out.Kind != OutcomeCompleted {
		t.Fatalf("kind = %s, want completed", out.Kind)
	}
	if out.Strategies == nil || len(out.Strategies) != 0 {
		t.Errorf("strategies = %v, want empty non-nil", out.Strategies)
	}
	if out.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", out.Attempts)
	}
}

// TestPoll_TimesOutAtMaxAttempts: exactly N requests, then TimedOut, with
// the total wait equal to the sum of the schedule.
func TestPoll_TimesOutAtMaxAttempts(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{body: `{"status":"pending"}`}}}
	p, w := newTestPoller(f, Config{MaxAttempts: 3})

	out := p.Poll(context.Background(), "job-3", nil)

	if out.Kind != OutcomeTimedOut {
		t.Fatalf("kind = %s, want timed_out", out.Kind)
	}
	if out.Reason != TimeoutReason {
		t.Errorf("reason = %q", out.Reason)
	}
	if f.Calls() != 3 {
		t.Errorf("calls = %d, want exactly 3", f.Calls())
	}
	want := time.Second + 1500*time.Millisecond + 2250*time.Millisecond
	if w.total() != want {
		t.Errorf("total wait = %v, want %v", w.total(), want)
	}
}

func TestPoll_TimeoutCountsErrors(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{err: errors.New("boom")}}}
	p, _ := newTestPoller(f, Config{MaxAttempts: 5})

	out := p.Poll(context.Background(), "job", nil)
	if out.Kind != OutcomeTimedOut || f.Calls() != 5 {
		t.Errorf("kind = %s calls = %d, want timed_out after 5", out.Kind, f.Calls())
	}
}

func TestPoll_Failed(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"service message", `{"status":"failed","message":"no liquidity data"}`, "no liquidity data"},
		{"error field", `{"status":"failed","error":"crawler crashed"}`, "crawler crashed"},
		{"no message", `{"status":"failed"}`, DefaultFailureReason},
		{"blank message", `{"status":"FAILED","message":"  "}`, DefaultFailureReason},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &scriptedFetcher{steps: []step{{body: tt.body}}}
			p, _ := newTestPoller(f, Config{})

			out := p.Poll(context.Background(), "job", nil)
			if out.Kind != OutcomeFailed {
				t.Fatalf("kind = %s, want failed", out.Kind)
			}
			if out.Reason != tt.want {
				t.Errorf("reason = %q, want %q", out.Reason, tt.want)
			}
			if out.Strategies != nil {
				t.Errorf("failed outcome carries strategies")
			}
		})
	}
}

// TestPoll_PayloadFallback covers strategies, data and the empty fallback.
func TestPoll_PayloadFallback(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		want  int
		first string
	}{
		{"strategies", `{"status":"completed","strategies":[{"name":"A"},{"name":"B"}]}`, 2, `{"name":"A"}`},
		{"data", `{"status":"completed","data":[{"name":"C"}]}`, 1, `{"name":"C"}`},
		{"neither", `{"status":"completed"}`, 0, ""},
		{"both prefers strategies", `{"status":"completed","strategies":[{"name":"A"}],"data":[{"name":"X"},{"name":"Y"}]}`, 1, `{"name":"A"}`},
		{"null strategies falls back", `{"status":"completed","strategies":null,"data":[{"name":"D"}]}`, 1, `{"name":"D"}`},
		{"string strategies falls back", `{"status":"completed","strategies":"pending-render","data":[{"name":"D"}]}`, 1, `{"name":"D"}`},
		{"object strategies falls back", `{"status":"completed","strategies":{"name":"S"},"data":[{"name":"D"}]}`, 1, `{"name":"D"}`},
		{"no array anywhere", `{"status":"completed","strategies":"x","data":{"k":1}}`, 0, ""},
		{"status case is ignored", `{"status":" COMPLETED ","data":[{"name":"E"}]}`, 1, `{"name":"E"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &scriptedFetcher{steps: []step{{body: tt.body}}}
			p, _ := newTestPoller(f, Config{})

			out := p.Poll(context.Background(), "job", nil)
			if out.Kind != OutcomeCompleted {
				t.Fatalf("kind = %s", out.Kind)
			}
			if out.Strategies == nil {
				t.Fatal("strategies must never be nil on completion")
			}
			if len(out.Strategies) != tt.want {
				t.Fatalf("len = %d, want %d", len(out.Strategies), tt.want)
			}
			if tt.want > 0 && string(out.Strategies[0]) != tt.first {
				t.Errorf("first = %s, want %s", out.Strategies[0], tt.first)
			}
		})
	}
}

func TestPoll_UnknownStatusKeepsPolling(t *testing.T) {
	f := &scriptedFetcher{steps: []step{
		{body: `{"status":"queued"}`},
		{body: `not json`},
		{body: `{}`},
		{body: `{"status":"completed","data":[]}`},
	}}
	p, _ := newTestPoller(f, Config{})

	out := p.Poll(context.Background(), "job", nil)
	if out.Kind != OutcomeCompleted || out.Attempts != 4 {
		t.Errorf("kind = %s attempts = %d, want completed after 4", out.Kind, out.Attempts)
	}
}

func TestPoll_ExtractorPanicIsTransient(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{body: `{"status":"completed"}`}}}
	var calls atomic.Int32
	extractor := func(body []byte) string {
		if calls.Add(1) == 1 {
			panic("bad extractor")
		}
		return DefaultStatus(body)
	}
	p, _ := newTestPoller(f, Config{}, WithStatusExtractor(extractor))

	out := p.Poll(context.Background(), "job", nil)
	if out.Kind != OutcomeCompleted {
		t.Fatalf("kind = %s, want completed", out.Kind)
	}
	if out.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", out.Attempts)
	}
}

func TestPoll_CustomResultExtractor(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{body: `{"status":"completed","result":{"items":[1,2,3]}}`}}}
	extractor := func(body []byte) []json.RawMessage {
		var v struct {
			Result struct {
				Items []json.RawMessage `json:"items"`
			} `json:"result"`
		}
		_ = json.Unmarshal(body, &v)
		return v.Result.Items
	}
	p, _ := newTestPoller(f, Config{}, WithResultExtractor(extractor))

	out := p.Poll(context.Background(), "job", nil)
	if len(out.Strategies) != 3 {
		t.Errorf("strategies = %d, want 3", len(out.Strategies))
	}
}

func TestPoll_WaitsBeforeFirstAttempt(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{body: `{"status":"completed"}`}}}
	p, w := newTestPoller(f, Config{})

	p.Poll(context.Background(), "job", nil)
	if len(w.delays) != 1 || w.delays[0] != time.Second {
		t.Errorf("delays = %v, want [1s]", w.delays)
	}
}

func TestPoll_ImmediateFirstAttempt(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{body: `{"status":"pending"}`}, {body: `{"status":"completed"}`}}}
	p, w := newTestPoller(f, Config{ImmediateFirstAttempt: true})

	var progress []Progress
	p.Poll(context.Background(), "job", func(pr Progress) { progress = append(progress, pr) })

	if len(progress) != 2 || progress[0].NextDelay != 0 {
		t.Fatalf("progress = %+v, want first delay 0", progress)
	}
	if len(w.delays) != 1 || w.delays[0] != 1500*time.Millisecond {
		t.Errorf("delays = %v, want [1.5s]", w.delays)
	}
}

func TestPoll_JitterApplied(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{body: `{"status":"completed"}`}}}
	p, w := newTestPoller(f, Config{}, WithRandom(func() float64 { return 0.5 }))

	p.Poll(context.Background(), "job", nil)
	if w.delays[0] != 1150*time.Millisecond {
		t.Errorf("delay = %v, want 1.15s", w.delays[0])
	}
}

// TestPoll_CancelDuringWait: no request is issued once ctx ends.
func TestPoll_CancelDuringWait(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{body: `{"status":"pending"}`}}}
	p := NewJobPoller(f, Config{BaseDelay: 5 * time.Millisecond, MaxDelay: 5 * time.Millisecond, NoJitter: true}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	out := p.Poll(ctx, "job", func(pr Progress) {
		if pr.Attempt == 3 {
			once.Do(cancel)
		}
	})

	if out.Kind != OutcomeCancelled {
		t.Fatalf("kind = %s, want cancelled", out.Kind)
	}
	if f.Calls() != 2 {
		t.Errorf("calls = %d, want 2", f.Calls())
	}
}

func TestPoll_CancelDuringRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	fetcher := StatusFetcherFunc(func(ctx context.Context, jobID string) ([]byte, error) {
		calls.Add(1)
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})
	p, _ := newTestPoller(fetcher, Config{})

	out := p.Poll(ctx, "job", nil)
	if out.Kind != OutcomeCancelled {
		t.Fatalf("kind = %s, want cancelled", out.Kind)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

// TestPoll_OverHTTP runs the poller against a real status endpoint that
// fails once with 503 before completing.
func TestPoll_OverHTTP(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch hits.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			_, _ = w.Write([]byte(`{"status":"pending"}`))
		default:
			_, _ = w.Write([]byte(`{"status":"completed","data":[{"name":"Lido staking"}]}`))
		}
	}))
	defer server.Close()

	client := NewClient()
	defer client.Close()

	fetcher := StatusFetcherFunc(func(ctx context.Context, jobID string) ([]byte, error) {
		resp := client.Fetch(ctx, "", server.URL+"/api/crawl-status/"+jobID, nil, nil, time.Second)
		if resp.Error != nil {
			return nil, resp.Error
		}
		if !resp.OK() {
			return nil, errors.New(http.StatusText(resp.StatusCode))
		}
		return resp.Body, nil
	})
	p, _ := newTestPoller(fetcher, Config{})

	out := p.Poll(context.Background(), "abc", nil)
	if out.Kind != OutcomeCompleted || len(out.Strategies) != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	if hits.Load() != 3 {
		t.Errorf("hits = %d, want 3", hits.Load())
	}
}
