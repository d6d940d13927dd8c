package cli

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/healthtrack/healthtrack-analytics/internal/analytics"
	"github.com/healthtrack/healthtrack-analytics/internal/analytics/series"
)

// Input is a metrics document. Either form is accepted:
//
//	user_id: u1
//	metrics:
//	  sleep: [7, 6.5, 8]
//
// or a bare mapping of metric name to samples. JSON documents parse the same
// way. An ordered "series" list is kept as given for correlation.
type Input struct {
	UserID  string                   `yaml:"user_id"`
	Metrics map[string]series.Series `yaml:"metrics"`
	Series  []series.Named           `yaml:"series"`
}

var documentKeys = map[string]bool{"user_id": true, "metrics": true, "series": true}

// readInput loads a document from path, or from stdin when path is "-".
func readInput(path string, stdin io.Reader) (*Input, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return parseInput(data)
}

func parseInput(data []byte) (*Input, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("input is empty")
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("input must be a mapping (line %d)", doc.Line)
	}

	in := &Input{}
	if isDocument(doc) {
		if err := doc.Decode(in); err != nil {
			return nil, fmt.Errorf("parse input: %w", err)
		}
	} else if err := doc.Decode(&in.Metrics); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}

	if in.Metrics == nil {
		in.Metrics = make(map[string]series.Series, len(in.Series))
	}
	for _, s := range in.Series {
		if _, ok := in.Metrics[s.Name]; !ok && s.Name != "" {
			in.Metrics[s.Name] = s.Values
		}
	}
	if len(in.Metrics) == 0 {
		return nil, fmt.Errorf("input has no metrics")
	}
	if in.UserID == "" {
		in.UserID = "local"
	}
	return in, nil
}

func isDocument(m *yaml.Node) bool {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if !documentKeys[m.Content[i].Value] {
			return false
		}
	}
	return true
}

// Normalized returns the metrics keyed by canonical name.
func (in *Input) Normalized() map[string][]float64 {
	return analytics.Normalize(series.Map(in.Metrics))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
