package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpalmerr/yieldboard/internal/poller"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	hc := poller.NewClient()
	t.Cleanup(hc.Close)

	c, err := New(hc, Config{SubmitURL: server.URL + "/api/portfolio-analysis", Timeout: time.Second})
	require.NoError(t, err)
	return c, server
}

func TestSubmit_SendsPortfolio(t *testing.T) {
	var got SubmitRequest
	var gotPath, gotMethod string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = w.Write([]byte(`{"job_id":"job-42"}`))
	})

	resp, err := c.Submit(context.Background(), SubmitRequest{
		BlockchainID: "ethereum",
		Assets: []Asset{
			{AssetID: "eth", Amount: json.Number("1.5"), AssetName: "Ether"},
			{AssetID: "usdc", Amount: json.Number("250"), AssetName: "USD Coin"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "/api/portfolio-analysis", gotPath)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "ethereum", got.BlockchainID)
	assert.Equal(t, DefaultIncludeTopProtocols, got.IncludeTopProtocols)
	require.Len(t, got.Assets, 2)
	assert.Equal(t, json.Number("1.5"), got.Assets[0].Amount)

	assert.Equal(t, "job-42", resp.JobID)
	assert.False(t, resp.Immediate())
}

func TestSubmit_ImmediateStrategies(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"strategies":[{"name":"Stablecoin yield"}]}`))
	})

	resp, err := c.Submit(context.Background(), SubmitRequest{BlockchainID: "ethereum"})
	require.NoError(t, err)
	assert.True(t, resp.Immediate())
	assert.Len(t, resp.Strategies, 1)
}

func TestSubmit_NumericJobID(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"job_id":1234}`))
	})

	resp, err := c.Submit(context.Background(), SubmitRequest{})
	require.NoError(t, err)
	assert.Equal(t, "1234", resp.JobID)
}

func TestSubmit_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		checkFn func(t *testing.T, err error)
	}{
		{
			name:   "non-2xx",
			status: http.StatusInternalServerError,
			body:   `{"detail":"boom"}`,
			checkFn: func(t *testing.T, err error) {
				var se *StatusError
				require.True(t, errors.As(err, &se))
				assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
				assert.Contains(t, se.Error(), "boom")
			},
		},
		{
			name:   "neither field",
			status: http.StatusOK,
			body:   `{"status":"ok"}`,
			checkFn: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrNoJobOrStrategies)
			},
		},
		{
			name:   "empty job id",
			status: http.StatusOK,
			body:   `{"job_id":""}`,
			checkFn: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrNoJobOrStrategies)
			},
		},
		{
			name:   "not json",
			status: http.StatusOK,
			body:   `<html>`,
			checkFn: func(t *testing.T, err error) {
				assert.Error(t, err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Submit(context.Background(), SubmitRequest{})
			require.Error(t, err)
			tt.checkFn(t, err)
		})
	}
}

func TestFetchStatus(t *testing.T) {
	var gotPath string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		if r.URL.Path == "/api/crawl-status/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"status":"pending"}`))
	})

	body, err := c.FetchStatus(context.Background(), "a b")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"pending"}`, string(body))
	assert.Equal(t, "/api/crawl-status/a%20b", gotPath)

	_, err = c.FetchStatus(context.Background(), "missing")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestFetchStatus_TransportError(t *testing.T) {
	c, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	_, err := c.FetchStatus(context.Background(), "job")
	assert.Error(t, err)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Config{})
	assert.Error(t, err)

	_, err = New(nil, Config{SubmitURL: "/relative"})
	assert.Error(t, err)

	_, err = New(nil, Config{SubmitURL: "http://svc/api/portfolio-analysis", StatusURL: "http://svc/status"})
	assert.Error(t, err, "status URL without placeholder")

	c, err := New(nil, Config{SubmitURL: "http://svc:8000/api/portfolio-analysis"})
	require.NoError(t, err)
	assert.Equal(t, "http://svc:8000/api/crawl-status/j1", c.StatusURL("j1"))

	c, err = New(nil, Config{SubmitURL: "http://svc/a", StatusURL: "http://other/jobs/{job_id}/state"})
	require.NoError(t, err)
	assert.Equal(t, "http://other/jobs/j1/state", c.StatusURL("j1"))
}
