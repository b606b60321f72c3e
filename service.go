package yieldboard

import (
	"errors"
	"maps"
	"net/url"
	"strings"
	"time"

	"github.com/jpalmerr/yieldboard/internal/backend"
)

const defaultServiceTimeout = 10 * time.Second

// Service describes the strategy backend: where portfolios are submitted
// and where job status is polled.
//
// Service is immutable after creation via [NewService]. Getters return
// copies of mutable data.
type Service struct {
	submitURL           string
	statusURL           string
	headers             map[string]string
	timeout             time.Duration
	includeTopProtocols int
	statusExtractor     StatusExtractor
	resultExtractor     ResultExtractor
}

// SubmitURL returns the portfolio submission URL.
func (s Service) SubmitURL() string {
	return s.submitURL
}

// StatusURL returns the job status URL template. It contains the "{job_id}"
// placeholder, or is empty when derived from the submission URL.
func (s Service) StatusURL() string {
	return s.statusURL
}

// Headers returns a copy of the headers sent with every request.
func (s Service) Headers() map[string]string {
	return maps.Clone(s.headers)
}

// Timeout returns the per-request timeout.
func (s Service) Timeout() time.Duration {
	return s.timeout
}

// IncludeTopProtocols returns how many top protocols the service is asked
// to consider.
func (s Service) IncludeTopProtocols() int {
	return s.includeTopProtocols
}

// StatusExtractor returns the custom status extractor, or nil for the
// default "status" field.
func (s Service) StatusExtractor() StatusExtractor {
	return s.statusExtractor
}

// ResultExtractor returns the custom result extractor, or nil for the
// default "strategies"/"data" lookup.
func (s Service) ResultExtractor() ResultExtractor {
	return s.resultExtractor
}

// NewService creates a [Service] for the given submission URL.
//
// The status URL defaults to "/api/crawl-status/{job_id}" on the submission
// URL's host; override it with [WithStatusURL].
//
// Example:
//
//	svc, err := yieldboard.NewService("http://localhost:8000/api/portfolio-analysis",
//	    yieldboard.WithHeaders("Authorization", "Bearer token"),
//	    yieldboard.WithTimeout(5 * time.Second),
//	)
func NewService(submitURL string, opts ...ServiceOption) (Service, error) {
	if err := validateAbsoluteURL(submitURL); err != nil {
		return Service{}, err
	}

	cfg := &serviceConfig{
		headers:             make(map[string]string),
		timeout:             defaultServiceTimeout,
		includeTopProtocols: backend.DefaultIncludeTopProtocols,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Service{}, err
		}
	}

	return Service{
		submitURL:           submitURL,
		statusURL:           cfg.statusURL,
		headers:             cfg.headers,
		timeout:             cfg.timeout,
		includeTopProtocols: cfg.includeTopProtocols,
		statusExtractor:     cfg.statusExtractor,
		resultExtractor:     cfg.resultExtractor,
	}, nil
}

func validateAbsoluteURL(raw string) error {
	if raw == "" {
		return errors.New("service URL cannot be empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return errors.New("invalid URL: " + err.Error())
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return errors.New("URL must be absolute (http:// or https://)")
	}
	return nil
}

func (s Service) backendConfig() backend.Config {
	return backend.Config{
		SubmitURL:           s.submitURL,
		StatusURL:           s.statusURL,
		Headers:             maps.Clone(s.headers),
		Timeout:             s.timeout,
		IncludeTopProtocols: s.includeTopProtocols,
	}
}

func (s Service) hasPlaceholder() bool {
	return strings.Contains(s.statusURL, backend.JobIDPlaceholder)
}
