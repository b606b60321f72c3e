package config

import (
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/jpalmerr/yieldboard"
)

func TestBuildService_Defaults(t *testing.T) {
	svc, err := BuildService(ServiceConfig{SubmitURL: "http://localhost:8000/api/portfolio-analysis"})
	if err != nil {
		t.Fatalf("BuildService() error = %v", err)
	}

	if svc.SubmitURL() != "http://localhost:8000/api/portfolio-analysis" {
		t.Errorf("SubmitURL() = %q", svc.SubmitURL())
	}
	if svc.Timeout() != 10*time.Second {
		t.Errorf("Timeout() = %v, want SDK default", svc.Timeout())
	}
	if svc.StatusExtractor() != nil || svc.ResultExtractor() != nil {
		t.Error("default config should leave extractors to the SDK")
	}
}

func TestBuildService_AllOptions(t *testing.T) {
	svc, err := BuildService(ServiceConfig{
		SubmitURL:           "https://api.example.com/analyze",
		StatusURL:           "https://api.example.com/jobs/{job_id}",
		Timeout:             Duration(4 * time.Second),
		Headers:             map[string]string{"Authorization": "Bearer token", "X-Team": "defi"},
		IncludeTopProtocols: 15,
		Extractor:           ExtractorConfig{Type: "json", Path: "job.state"},
		ResultPaths:         []string{"result.items"},
	})
	if err != nil {
		t.Fatalf("BuildService() error = %v", err)
	}

	if svc.StatusURL() != "https://api.example.com/jobs/{job_id}" {
		t.Errorf("StatusURL() = %q", svc.StatusURL())
	}
	if svc.Timeout() != 4*time.Second || svc.IncludeTopProtocols() != 15 {
		t.Errorf("timeout = %v, top = %d", svc.Timeout(), svc.IncludeTopProtocols())
	}
	want := map[string]string{"Authorization": "Bearer token", "X-Team": "defi"}
	if !reflect.DeepEqual(svc.Headers(), want) {
		t.Errorf("Headers() = %v, want %v", svc.Headers(), want)
	}

	if got := svc.StatusExtractor()([]byte(`{"job":{"state":"DONE"}}`)); got != "done" {
		t.Errorf("status extractor = %q, want done", got)
	}
	if got := svc.ResultExtractor()([]byte(`{"result":{"items":[{},{}]}}`)); len(got) != 2 {
		t.Errorf("result extractor len = %d, want 2", len(got))
	}
}

func TestBuildExtractor(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ExtractorConfig
		body    string
		want    string
		isNil   bool
		wantErr bool
	}{
		{name: "empty", cfg: ExtractorConfig{}, isNil: true},
		{name: "default", cfg: ExtractorConfig{Type: "default"}, isNil: true},
		{name: "json", cfg: ExtractorConfig{Type: "json", Path: "state"}, body: `{"state":"Failed"}`, want: "failed"},
		{name: "regex", cfg: ExtractorConfig{Type: "regex", Pattern: `status=(\w+)`}, body: `status=pending`, want: "pending"},
		{name: "regex without group", cfg: ExtractorConfig{Type: "regex", Pattern: `status`}, wantErr: true},
		{name: "unknown", cfg: ExtractorConfig{Type: "contains"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extractor, err := buildExtractor(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("buildExtractor() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.isNil {
				if extractor != nil {
					t.Error("want nil extractor")
				}
				return
			}
			if got := extractor([]byte(tt.body)); got != tt.want {
				t.Errorf("extractor(%s) = %q, want %q", tt.body, got, tt.want)
			}
		})
	}
}

func TestMapToKeyValuePairs_Sorted(t *testing.T) {
	got := mapToKeyValuePairs(map[string]string{"b": "2", "a": "1", "c": "3"})
	want := []string{"a", "1", "b", "2", "c", "3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("mapToKeyValuePairs() = %v, want %v", got, want)
	}
}

func TestBuildOptions_CreatesAdvisor(t *testing.T) {
	yaml := `
title: Treasury
port: 19201
strategy_service:
  submit_url: http://localhost:8000/api/portfolio-analysis
polling:
  max_attempts: 5
networks:
  - chain_id: 31337
    name: Local
    rpc_url: http://127.0.0.1:8545
    tokens:
      - address: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
        symbol: TST
wallets:
  - address: "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
    chain_id: 31337
watch_interval: 3s
refresh_cron: "@hourly"
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	cfg.Recorder.SQLitePath = filepath.Join(t.TempDir(), "runs.db")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts, err := BuildOptions(cfg, logger)
	if err != nil {
		t.Fatalf("BuildOptions() error = %v", err)
	}

	adv, err := yieldboard.New(opts...)
	if err != nil {
		t.Fatalf("yieldboard.New() error = %v", err)
	}
	defer adv.Close()

	if adv.Port() != 19201 {
		t.Errorf("Port() = %d, want 19201", adv.Port())
	}
	if adv.Service().SubmitURL() != "http://localhost:8000/api/portfolio-analysis" {
		t.Errorf("SubmitURL() = %q", adv.Service().SubmitURL())
	}

	networks := adv.Networks()
	local := networks[len(networks)-1]
	if local.ChainID != 31337 || local.Name != "Local" || len(local.Tokens) != 1 || local.Tokens[0].Symbol != "TST" {
		t.Errorf("configured network = %+v", local)
	}
}

func TestBuildOptions_InvalidService(t *testing.T) {
	cfg := &Config{
		Port: 8080,
		StrategyService: ServiceConfig{
			SubmitURL: "http://localhost:8000/api",
			Extractor: ExtractorConfig{Type: "regex", Pattern: "no group"},
		},
	}
	if _, err := BuildOptions(cfg, nil); err == nil {
		t.Error("BuildOptions() should fail for an invalid extractor")
	}
}
