package series

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want float64
	}{
		{"float", 7.5, 7.5},
		{"int", 3, 3},
		{"numeric string", " 6.25 ", 6.25},
		{"junk string", "n/a", 0},
		{"nil", nil, 0},
		{"bool", true, 0},
		{"map", map[string]interface{}{"v": 1}, 0},
		{"nan", math.NaN(), 0},
		{"inf", math.Inf(1), 0},
		{"json number", json.Number("42"), 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Coerce(tt.in))
		})
	}
}

func TestSeries_UnmarshalJSON(t *testing.T) {
	var payload struct {
		Sleep Series `json:"sleep"`
	}
	err := json.Unmarshal([]byte(`{"sleep":[7, null, "6.5", "bad", {"x":1}, 8]}`), &payload)
	require.NoError(t, err)
	assert.Equal(t, Series{7, 0, 6.5, 0, 0, 8}, payload.Sleep)
}

func TestSeries_UnmarshalJSON_Null(t *testing.T) {
	var s Series
	require.NoError(t, json.Unmarshal([]byte(`null`), &s))
	assert.Empty(t, s)
}

func TestSeries_UnmarshalJSON_NotArray(t *testing.T) {
	var s Series
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &s))
}

func TestSeries_UnmarshalYAML(t *testing.T) {
	doc := `
metrics:
  - name: hydration
    values: [2.1, ~, "1.9", abc, 2]
  - name: steps
    values: [3000, 4000]
`
	var payload struct {
		Metrics []Named `yaml:"metrics"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(doc), &payload))
	require.Len(t, payload.Metrics, 2)
	assert.Equal(t, "hydration", payload.Metrics[0].Name)
	assert.Equal(t, Series{2.1, 0, 1.9, 0, 2}, payload.Metrics[0].Values)
	assert.Equal(t, Series{3000, 4000}, payload.Metrics[1].Values)
}

func TestSeries_UnmarshalYAML_NotSequence(t *testing.T) {
	var payload struct {
		Values Series `yaml:"values"`
	}
	assert.Error(t, yaml.Unmarshal([]byte("values: 12\n"), &payload))
}

func TestFromRawAndMap(t *testing.T) {
	s := FromRaw([]interface{}{1, "2", nil})
	assert.Equal(t, Series{1, 2, 0}, s)

	m := Map(map[string]Series{"a": {1, 2}})
	assert.Equal(t, []float64{1, 2}, m["a"])
}
