package yieldboard

import (
	"errors"
	"time"

	"github.com/jpalmerr/yieldboard/internal/backend"
)

// serviceConfig holds mutable state during service construction.
type serviceConfig struct {
	statusURL           string
	headers             map[string]string
	timeout             time.Duration
	includeTopProtocols int
	statusExtractor     StatusExtractor
	resultExtractor     ResultExtractor
}

// ServiceOption configures a [Service] during construction.
//
// Built-in options: [WithStatusURL], [WithHeaders], [WithTimeout],
// [WithTopProtocols], [WithStatusExtractor], [WithResultExtractor].
type ServiceOption func(*serviceConfig) error

// WithStatusURL sets the job status URL template. It must be absolute and
// contain the "{job_id}" placeholder, which is replaced by the path-escaped
// job handle.
//
// Example:
//
//	svc, err := yieldboard.NewService(submitURL,
//	    yieldboard.WithStatusURL("https://jobs.example.com/v1/jobs/{job_id}"),
//	)
func WithStatusURL(template string) ServiceOption {
	return func(cfg *serviceConfig) error {
		if err := validateAbsoluteURL(template); err != nil {
			return err
		}
		cfg.statusURL = template
		if !(Service{statusURL: template}).hasPlaceholder() {
			return errors.New("status URL must contain " + backend.JobIDPlaceholder)
		}
		return nil
	}
}

// WithHeaders adds HTTP headers sent with submission and status requests.
//
// Accepts variadic key-value pairs. Returns an error if an odd number of
// arguments is provided.
func WithHeaders(keyValues ...string) ServiceOption {
	return func(cfg *serviceConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithTimeout sets the per-request timeout. Defaults to 10 seconds.
//
// A status request that times out counts as a transient failure of that
// attempt; polling continues.
func WithTimeout(d time.Duration) ServiceOption {
	return func(cfg *serviceConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithTopProtocols sets include_top_protocols on submissions. Defaults to 10.
func WithTopProtocols(n int) ServiceOption {
	return func(cfg *serviceConfig) error {
		if n <= 0 {
			return errors.New("top protocols must be positive")
		}
		cfg.includeTopProtocols = n
		return nil
	}
}

// WithStatusExtractor sets a custom [StatusExtractor] for status responses.
//
// Example:
//
//	svc, err := yieldboard.NewService(submitURL,
//	    yieldboard.WithStatusExtractor(yieldboard.JSONFieldExtractor("job.state")),
//	)
func WithStatusExtractor(e StatusExtractor) ServiceOption {
	return func(cfg *serviceConfig) error {
		cfg.statusExtractor = e
		return nil
	}
}

// WithResultExtractor sets a custom [ResultExtractor] for completed jobs.
func WithResultExtractor(e ResultExtractor) ServiceOption {
	return func(cfg *serviceConfig) error {
		cfg.resultExtractor = e
		return nil
	}
}
