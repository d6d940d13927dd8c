// Package series defines MetricSeries, the ordered per-day sample slice the
// analytics engine consumes, and the coercion rules applied when a series
// arrives from JSON, YAML or loosely typed data.
//
// Absent or non-numeric samples become 0 rather than being dropped, so a
// sparse series keeps its length and its day alignment. This lowers the
// variance of sparse series; callers that want missing days excluded must
// filter them out before building the series.
package series

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Series is an ordered sequence of daily samples, oldest first.
type Series []float64

// Named pairs a metric name with its series.
type Named struct {
	Name   string `json:"name" yaml:"name"`
	Values Series `json:"values" yaml:"values"`
}

// FromRaw coerces loosely typed values into a Series.
func FromRaw(raw []interface{}) Series {
	out := make(Series, len(raw))
	for i, v := range raw {
		out[i] = Coerce(v)
	}
	return out
}

// Coerce converts a single sample to float64. nil, booleans, composite
// values, unparsable strings, NaN and ±Inf all become 0.
func Coerce(v interface{}) float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case uint:
		f = float64(t)
	case uint32:
		f = float64(t)
	case uint64:
		f = float64(t)
	case json.Number:
		f, _ = t.Float64()
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// UnmarshalJSON accepts any JSON array and coerces each element.
// A JSON null yields an empty series.
func (s *Series) UnmarshalJSON(data []byte) error {
	var raw []interface{}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("metric series must be an array: %w", err)
	}
	*s = FromRaw(raw)
	return nil
}

// UnmarshalYAML accepts any YAML sequence and coerces each element.
func (s *Series) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*s = Series{}
		return nil
	}
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("metric series must be a sequence (line %d)", node.Line)
	}
	out := make(Series, len(node.Content))
	for i, child := range node.Content {
		var v interface{}
		if err := child.Decode(&v); err != nil {
			continue
		}
		out[i] = Coerce(v)
	}
	*s = out
	return nil
}

// Floats returns the series as a plain slice.
func (s Series) Floats() []float64 { return []float64(s) }

// Map converts a map of named series to plain slices.
func Map(in map[string]Series) map[string][]float64 {
	out := make(map[string][]float64, len(in))
	for name, s := range in {
		out[name] = s.Floats()
	}
	return out
}
