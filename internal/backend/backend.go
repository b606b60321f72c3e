// Package backend talks to the external strategy analysis service.
//
// The service exposes two endpoints: a submission endpoint that accepts a
// portfolio and answers with either strategies or a job handle, and a
// status endpoint that reports the progress of a job.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jpalmerr/yieldboard/internal/poller"
)

// JobIDPlaceholder is replaced with the escaped job handle in StatusURL.
const JobIDPlaceholder = "{job_id}"

// DefaultIncludeTopProtocols is sent when the config leaves it unset.
const DefaultIncludeTopProtocols = 10

const defaultStatusPath = "/api/crawl-status/" + JobIDPlaceholder

// ErrNoJobOrStrategies is returned when a submission response carries
// neither a job handle nor strategies.
var ErrNoJobOrStrategies = errors.New("submission response has neither job_id nor strategies")

// StatusError reports a non-2xx answer from the service.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Config describes the service endpoints.
type Config struct {
	// SubmitURL receives the portfolio POST.
	SubmitURL string
	// StatusURL is queried with GET; it must contain {job_id}. When empty it
	// is derived from SubmitURL's host as /api/crawl-status/{job_id}.
	StatusURL string
	Headers   map[string]string
	Timeout   time.Duration
	// IncludeTopProtocols is forwarded to the analysis; zero means 10.
	IncludeTopProtocols int
}

// Asset is one portfolio line in the submission payload.
type Asset struct {
	AssetID   string      `json:"asset_id"`
	Amount    json.Number `json:"amount"`
	AssetName string      `json:"asset_name"`
}

// SubmitRequest is the submission payload.
type SubmitRequest struct {
	BlockchainID        string  `json:"blockchain_id"`
	Assets              []Asset `json:"assets"`
	IncludeTopProtocols int     `json:"include_top_protocols"`
}

// SubmitResponse is either an immediate result or a job handle.
type SubmitResponse struct {
	JobID      string
	Strategies []json.RawMessage
}

// Immediate reports whether the service answered synchronously.
func (r SubmitResponse) Immediate() bool {
	return r.JobID == "" && r.Strategies != nil
}

// Client calls the strategy service. It satisfies [poller.StatusFetcher].
type Client struct {
	http *poller.Client
	cfg  Config
}

// New returns a [Client] using the shared HTTP client.
func New(httpClient *poller.Client, cfg Config) (*Client, error) {
	if cfg.SubmitURL == "" {
		return nil, errors.New("submit URL is required")
	}
	if cfg.StatusURL == "" {
		derived, err := DeriveStatusURL(cfg.SubmitURL)
		if err != nil {
			return nil, err
		}
		cfg.StatusURL = derived
	}
	if !strings.Contains(cfg.StatusURL, JobIDPlaceholder) {
		return nil, fmt.Errorf("status URL %q must contain %s", cfg.StatusURL, JobIDPlaceholder)
	}
	if cfg.IncludeTopProtocols <= 0 {
		cfg.IncludeTopProtocols = DefaultIncludeTopProtocols
	}
	if httpClient == nil {
		httpClient = poller.NewClient()
	}
	return &Client{http: httpClient, cfg: cfg}, nil
}

// DeriveStatusURL returns the default status URL on submitURL's host.
func DeriveStatusURL(submitURL string) (string, error) {
	u, err := url.Parse(submitURL)
	if err != nil {
		return "", fmt.Errorf("parse submit URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("submit URL %q must be absolute", submitURL)
	}
	return u.Scheme + "://" + u.Host + defaultStatusPath, nil
}

// StatusURL returns the status URL for jobID.
func (c *Client) StatusURL(jobID string) string {
	return strings.ReplaceAll(c.cfg.StatusURL, JobIDPlaceholder, url.PathEscape(jobID))
}

// Submit posts the portfolio and parses the answer.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	if req.IncludeTopProtocols <= 0 {
		req.IncludeTopProtocols = c.cfg.IncludeTopProtocols
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return SubmitResponse{}, fmt.Errorf("encode submission: %w", err)
	}

	resp := c.http.Fetch(ctx, http.MethodPost, c.cfg.SubmitURL, c.cfg.Headers, payload, c.cfg.Timeout)
	if resp.Error != nil {
		return SubmitResponse{}, fmt.Errorf("submit portfolio: %w", resp.Error)
	}
	if !resp.OK() {
		return SubmitResponse{}, &StatusError{Endpoint: "submit", StatusCode: resp.StatusCode, Body: snippet(resp.Body)}
	}

	return parseSubmitResponse(resp.Body)
}

// FetchStatus performs one status round trip. Non-2xx answers are errors.
func (c *Client) FetchStatus(ctx context.Context, jobID string) ([]byte, error) {
	resp := c.http.Fetch(ctx, http.MethodGet, c.StatusURL(jobID), c.cfg.Headers, nil, c.cfg.Timeout)
	if resp.Error != nil {
		return nil, resp.Error
	}
	if !resp.OK() {
		return nil, &StatusError{Endpoint: "status", StatusCode: resp.StatusCode, Body: snippet(resp.Body)}
	}
	return resp.Body, nil
}

func parseSubmitResponse(body []byte) (SubmitResponse, error) {
	var payload struct {
		JobID      json.RawMessage   `json:"job_id"`
		Strategies []json.RawMessage `json:"strategies"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return SubmitResponse{}, fmt.Errorf("decode submission response: %w", err)
	}

	if payload.Strategies != nil {
		return SubmitResponse{Strategies: payload.Strategies}, nil
	}
	if id := jobIDString(payload.JobID); id != "" {
		return SubmitResponse{JobID: id}, nil
	}
	return SubmitResponse{}, ErrNoJobOrStrategies
}

// jobIDString accepts string and numeric handles.
func jobIDString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func snippet(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
