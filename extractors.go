package yieldboard

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/jpalmerr/yieldboard/internal/poller"
)

// JSONFieldExtractor returns a [StatusExtractor] that reads the job status
// from a JSON field using dot notation to navigate nested objects.
//
// For example, "job.state" navigates to {"job": {"state": "completed"}}.
// The value is lowercased. Strings, booleans and numbers are accepted;
// anything else, a missing field or invalid JSON yields "".
//
// Example:
//
//	// For response: {"job": {"state": "COMPLETED"}}
//	extractor := yieldboard.JSONFieldExtractor("job.state")
func JSONFieldExtractor(path string) StatusExtractor {
	parts := strings.Split(path, ".")

	return func(body []byte) string {
		var data any
		if err := json.Unmarshal(body, &data); err != nil {
			return ""
		}
		return strings.ToLower(scalarAt(data, parts))
	}
}

// RegexExtractor returns a [StatusExtractor] that matches the response body
// against a pattern and returns the first capture group, lowercased.
//
// Returns an error if the pattern is invalid or has no capture group.
//
// Example:
//
//	extractor, err := yieldboard.RegexExtractor(`"state":\s*"(\w+)"`)
func RegexExtractor(pattern string) (StatusExtractor, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if re.NumSubexp() < 1 {
		return nil, errNoCaptureGroup
	}

	return func(body []byte) string {
		matches := re.FindSubmatch(body)
		if len(matches) < 2 {
			return ""
		}
		return strings.ToLower(string(matches[1]))
	}, nil
}

// MustRegexExtractor is like [RegexExtractor] but panics if the pattern
// is invalid.
func MustRegexExtractor(pattern string) StatusExtractor {
	extractor, err := RegexExtractor(pattern)
	if err != nil {
		panic("yieldboard: invalid regex pattern: " + err.Error())
	}
	return extractor
}

// FirstMatch returns a [StatusExtractor] that tries multiple extractors in
// order, returning the first non-empty status.
//
// Example:
//
//	extractor := yieldboard.FirstMatch(
//	    yieldboard.JSONFieldExtractor("job.state"),
//	    yieldboard.JSONFieldExtractor("status"),
//	)
func FirstMatch(extractors ...StatusExtractor) StatusExtractor {
	return func(body []byte) string {
		for _, extractor := range extractors {
			if status := extractor(body); status != "" {
				return status
			}
		}
		return ""
	}
}

// JSONArrayExtractor returns a [ResultExtractor] that reads the strategy
// items from the first of paths holding a JSON array. Paths use dot
// notation. When no path holds an array the result is empty, never nil.
//
// Example:
//
//	// Prefer "result.strategies", fall back to "data"
//	extractor := yieldboard.JSONArrayExtractor("result.strategies", "data")
func JSONArrayExtractor(paths ...string) ResultExtractor {
	split := make([][]string, len(paths))
	for i, p := range paths {
		split[i] = strings.Split(p, ".")
	}

	return func(body []byte) []json.RawMessage {
		var root map[string]json.RawMessage
		if err := json.Unmarshal(body, &root); err != nil {
			return []json.RawMessage{}
		}
		for _, parts := range split {
			var items []json.RawMessage
			if raw, ok := rawAt(root, parts); ok && json.Unmarshal(raw, &items) == nil && items != nil {
				return items
			}
		}
		return []json.RawMessage{}
	}
}

// DefaultStatusExtractor reads the top-level "status" string. It is used
// when a [Service] sets no status extractor.
var DefaultStatusExtractor StatusExtractor = poller.DefaultStatus

// DefaultResultExtractor reads the "strategies" array, falling back to the
// "data" array. It is used when a [Service] sets no result extractor.
var DefaultResultExtractor ResultExtractor = poller.DefaultResult

// scalarAt walks a decoded JSON value using dot notation parts.
func scalarAt(data any, parts []string) string {
	current := data
	for _, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current, ok = obj[part]
		if !ok {
			return ""
		}
	}

	switch v := current.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func rawAt(root map[string]json.RawMessage, parts []string) (json.RawMessage, bool) {
	current := root
	for i, part := range parts {
		raw, ok := current[part]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return raw, true
		}
		current = nil
		if err := json.Unmarshal(raw, &current); err != nil || current == nil {
			return nil, false
		}
	}
	return nil, false
}
