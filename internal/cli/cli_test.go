package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthtrack/healthtrack-analytics/internal/analytics/anomaly"
	"github.com/healthtrack/healthtrack-analytics/internal/analytics/risk"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommandWithIO(strings.NewReader(stdin), &out, &errOut)
	cmd.SetArgs(append(args, "--no-color"))
	err := cmd.Execute()
	return out.String(), err
}

func TestParseInput(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		user    string
		metrics []string
		wantErr string
	}{
		{"bare mapping", "sleep: [7, 8]\nsteps: [9000, 'n/a']\n", "local", []string{"sleep", "steps"}, ""},
		{"document", "user_id: u9\nmetrics:\n  stress: [4, 5]\n", "u9", []string{"stress"}, ""},
		{"series list", "series:\n  - name: a\n    values: [1, 2]\n  - name: b\n    values: [2, 1]\n", "local", []string{"a", "b"}, ""},
		{"json", `{"user_id": "u2", "metrics": {"water_liters": [1.5, null]}}`, "u2", []string{"water_liters"}, ""},
		{"empty", "", "", nil, "empty"},
		{"not a mapping", "- 1\n- 2\n", "", nil, "mapping"},
		{"no metrics", "user_id: u1\n", "", nil, "no metrics"},
		{"bad series", "sleep: 7\n", "", nil, "sequence"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in, err := parseInput([]byte(tc.data))
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.user, in.UserID)
			assert.Equal(t, tc.metrics, sortedKeys(in.Metrics))
		})
	}
}

func TestParseInput_CoercesValues(t *testing.T) {
	in, err := parseInput([]byte("steps: [9000, 'n/a', null, '12']\n"))
	require.NoError(t, err)
	assert.Equal(t, []float64{9000, 0, 0, 12}, in.Metrics["steps"].Floats())
}

func TestForecastCommand(t *testing.T) {
	path := writeFile(t, "metrics.yaml", "Sleep_Hours: [1, 2, 3, 4, 5]\nsteps: [5, 5, 5, 5]\n")

	out, err := execute(t, "", "forecast", "-f", path, "--metric", "Sleep_Hours", "--json")
	require.NoError(t, err)

	var results []forecastOutput
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "sleep", results[0].Metric)
	assert.Equal(t, "up", string(results[0].TrendDirection))
	assert.Equal(t, 0.85, results[0].Confidence)
	assert.Len(t, results[0].Forecast, 3)

	out, err = execute(t, "", "forecast", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "sleep")
	assert.Contains(t, out, "steps")
	assert.Contains(t, out, "stable")

	_, err = execute(t, "", "forecast", "-f", path, "--metric", "stress")
	assert.ErrorContains(t, err, "not found")
}

func TestAnomaliesCommand(t *testing.T) {
	path := writeFile(t, "metrics.json", `{"heart_rate": [10, 10, 10, 10, 10, 10, 10, 10, 10, 50]}`)

	out, err := execute(t, "", "anomalies", "-f", path, "--json")
	require.NoError(t, err)
	var reports map[string]anomaly.Report
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports["heart_rate"].ZAnomalies, 1)
	assert.Equal(t, 9, reports["heart_rate"].ZAnomalies[0].Index)
	assert.Equal(t, 3.0, reports["heart_rate"].ZAnomalies[0].ZScore)

	out, err = execute(t, "", "anomalies", "-f", path, "--threshold", "3.5", "--json")
	require.NoError(t, err)
	reports = nil
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	assert.Empty(t, reports["heart_rate"].ZAnomalies)

	out, err = execute(t, "", "anomalies", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "zscore   day 9")
	assert.Contains(t, out, "Total anomalies: 1")
}

func TestAnomaliesCommand_ConfigThreshold(t *testing.T) {
	path := writeFile(t, "metrics.yaml", "heart_rate: [10, 10, 10, 10, 10, 10, 10, 10, 10, 50]\n")
	cfgPath := writeFile(t, "config.yaml", "analytics:\n  z_score_threshold: 3.5\n")

	out, err := execute(t, "", "anomalies", "-f", path, "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Total anomalies: 0")
}

func TestCorrelateCommand(t *testing.T) {
	path := writeFile(t, "metrics.yaml", `
series:
  - name: sleep
    values: [8, 7, 6, 5]
  - name: stress
    values: [1, 2, 3, 4]
  - values: [5, 5, 5, 5]
`)
	out, err := execute(t, "", "correlate", "-f", path, "--json")
	require.NoError(t, err)

	var got correlateOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []string{"sleep", "stress", "series_2"}, got.Matrix.Metrics)
	assert.Equal(t, -1.0, got.Matrix.Values[0][1])
	assert.Equal(t, 1.0, got.Matrix.Values[2][2])
	require.Len(t, got.Insights, 1)
	assert.Contains(t, got.Insights[0], "Sleep")
}

func TestRiskCommand(t *testing.T) {
	path := writeFile(t, "metrics.yaml", "stress: [6, 6, 6]\nhydration: [2, 2, 2]\n")

	out, err := execute(t, "", "risk", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "high (75%)")
	assert.Contains(t, out, "low (0%)")
	assert.NotContains(t, out, "fatigue")

	out, err = execute(t, "", "risk", "-f", path, "--json")
	require.NoError(t, err)
	var risks map[risk.Kind]risk.Classification
	require.NoError(t, json.Unmarshal([]byte(out), &risks))
	assert.Equal(t, risk.LevelHigh, risks[risk.KindStress].Level)
	assert.Equal(t, 0.75, risks[risk.KindStress].Probability)
}

func TestReportCommand_Stdin(t *testing.T) {
	out, err := execute(t, `{"user_id": "u1", "metrics": {"stress": [6, 6, 6]}}`, "report", "-f", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "Report for u1")
	assert.Contains(t, out, "Stress risk is high (75%).")

	out, err = execute(t, `{"stress": [6, 6, 6]}`, "analyze", "-f", "-", "--json")
	require.NoError(t, err)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "local", got["report"].(map[string]interface{})["user_id"])
	assert.Len(t, got["notifications"], 1)
}

func TestRootCommand_Errors(t *testing.T) {
	_, err := execute(t, "", "risk")
	assert.ErrorContains(t, err, "--file is required")

	_, err = execute(t, "", "risk", "-f", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read input")

	_, err = execute(t, "", "risk", "-f", "-")
	assert.ErrorContains(t, err, "empty")
}
