package yieldboard

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/jpalmerr/yieldboard/internal/explain"
)

// AllocationEntry is one asset's share of a strategy, in the order the
// service listed it.
type AllocationEntry struct {
	Asset      string `json:"asset"`
	Percentage string `json:"percentage"`
}

// Strategy is one recommendation from the strategy service.
//
// Decoding accepts both the snake_case field names and the camelCase aliases
// the service has used (riskLevel, expectedApy, recommendedPlatforms,
// assetAllocation). Allocation percentages may be strings ("70%") or
// numbers (70, rendered "70%").
type Strategy struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Risk        string            `json:"risk_level"`
	ExpectedAPY string            `json:"expected_apy"`
	Platforms   []string          `json:"platforms"`
	Suitability string            `json:"suitability,omitempty"`
	Allocation  []AllocationEntry `json:"allocation,omitempty"`
	Steps       []string          `json:"steps,omitempty"`

	// Raw is the JSON the strategy was decoded from.
	Raw json.RawMessage `json:"-"`
}

type strategyWire struct {
	Name                 string          `json:"name"`
	Description          string          `json:"description"`
	RiskLevel            string          `json:"risk_level"`
	RiskLevelAlt         string          `json:"riskLevel"`
	Risk                 string          `json:"risk"`
	ExpectedAPY          json.RawMessage `json:"expected_apy"`
	ExpectedAPYAlt       json.RawMessage `json:"expectedApy"`
	Platforms            []string        `json:"platforms"`
	RecommendedPlatforms []string        `json:"recommendedPlatforms"`
	Suitability          string          `json:"suitability"`
	Allocation           json.RawMessage `json:"allocation"`
	AssetAllocation      json.RawMessage `json:"assetAllocation"`
	Steps                []string        `json:"steps"`
	ImplementationSteps  []string        `json:"implementation_steps"`
}

// UnmarshalJSON implements [json.Unmarshaler].
func (s *Strategy) UnmarshalJSON(data []byte) error {
	var w strategyWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*s = Strategy{
		Name:        w.Name,
		Description: w.Description,
		Risk:        firstNonEmpty(w.RiskLevel, w.RiskLevelAlt, w.Risk),
		ExpectedAPY: firstNonEmpty(scalarString(w.ExpectedAPY), scalarString(w.ExpectedAPYAlt)),
		Platforms:   w.Platforms,
		Suitability: w.Suitability,
		Steps:       w.Steps,
		Raw:         append(json.RawMessage(nil), data...),
	}
	if len(s.Platforms) == 0 {
		s.Platforms = w.RecommendedPlatforms
	}
	if len(s.Steps) == 0 {
		s.Steps = w.ImplementationSteps
	}

	allocation := w.Allocation
	if isEmptyJSON(allocation) {
		allocation = w.AssetAllocation
	}
	entries, err := decodeAllocation(allocation)
	if err != nil {
		return err
	}
	s.Allocation = entries
	return nil
}

// decodeAllocation accepts an object of asset→percentage (order preserved)
// or a list of {asset, percentage} entries.
func decodeAllocation(raw json.RawMessage) ([]AllocationEntry, error) {
	if isEmptyJSON(raw) {
		return nil, nil
	}

	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
		var list []struct {
			Asset      string          `json:"asset"`
			Percentage json.RawMessage `json:"percentage"`
		}
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		entries := make([]AllocationEntry, 0, len(list))
		for _, e := range list {
			entries = append(entries, AllocationEntry{Asset: e.Asset, Percentage: percentage(e.Percentage)})
		}
		return entries, nil
	}

	// json.Decoder tokens keep the object's key order, which a map would lose
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var entries []AllocationEntry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		entries = append(entries, AllocationEntry{Asset: key, Percentage: percentage(value)})
	}
	return entries, nil
}

func percentage(raw json.RawMessage) string {
	s := scalarString(raw)
	if s == "" {
		return ""
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return s + "%"
	}
	return s
}

// scalarString renders a JSON string or number as text.
func scalarString(raw json.RawMessage) string {
	if isEmptyJSON(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ParseStrategies decodes raw strategy items. Items that are not JSON
// objects are kept as a Strategy carrying only Raw.
func ParseStrategies(raw []json.RawMessage) []Strategy {
	out := make([]Strategy, 0, len(raw))
	for _, item := range raw {
		var s Strategy
		if err := json.Unmarshal(item, &s); err != nil {
			s = Strategy{Raw: append(json.RawMessage(nil), item...)}
		}
		out = append(out, s)
	}
	return out
}

// Explain renders a markdown walkthrough of s for a holder of assets.
func Explain(s Strategy, assets []Asset) string {
	symbols := make([]string, 0, len(assets))
	for _, a := range assets {
		if a.Symbol != "" {
			symbols = append(symbols, strings.ToUpper(a.Symbol))
		}
	}

	allocation := make([]explain.Allocation, len(s.Allocation))
	for i, e := range s.Allocation {
		allocation[i] = explain.Allocation{Asset: e.Asset, Percentage: e.Percentage}
	}

	return explain.Generate(explain.Strategy{
		Name:        s.Name,
		Description: s.Description,
		Risk:        s.Risk,
		ExpectedAPY: s.ExpectedAPY,
		Platforms:   s.Platforms,
		Allocation:  allocation,
		Steps:       s.Steps,
	}, symbols)
}
