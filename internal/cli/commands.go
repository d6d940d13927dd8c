package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/healthtrack/healthtrack-analytics/internal/analytics"
	"github.com/healthtrack/healthtrack-analytics/internal/analytics/anomaly"
	"github.com/healthtrack/healthtrack-analytics/internal/analytics/correlation"
	"github.com/healthtrack/healthtrack-analytics/internal/analytics/forecasting"
	"github.com/healthtrack/healthtrack-analytics/internal/analytics/risk"
	"github.com/healthtrack/healthtrack-analytics/internal/analytics/series"
)

var (
	heading  = color.New(color.FgCyan, color.Bold).SprintFunc()
	dim      = color.New(color.FgHiBlack).SprintFunc()
	warnText = color.New(color.FgYellow).SprintFunc()
	critText = color.New(color.FgRed, color.Bold).SprintFunc()
	okText   = color.New(color.FgGreen).SprintFunc()
)

func levelColor(level risk.Level) func(a ...interface{}) string {
	switch level {
	case risk.LevelHigh:
		return critText
	case risk.LevelMedium:
		return warnText
	}
	return okText
}

func severityColor(severity string) func(a ...interface{}) string {
	switch severity {
	case analytics.SeverityCritical:
		return critText
	case analytics.SeverityWarning:
		return warnText
	}
	return fmt.Sprint
}

func trendArrow(d forecasting.Direction) string {
	switch d {
	case forecasting.DirectionUp:
		return okText("↑ up")
	case forecasting.DirectionDown:
		return warnText("↓ down")
	}
	return dim("→ stable")
}

func formatFloats(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%.2f", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ─── report ───────────────────────────────────────────────────────────────────

type reportOutput struct {
	Report        *analytics.Report        `json:"report"`
	Notifications []analytics.Notification `json:"notifications"`
}

func newReportCmd(a *app) *cobra.Command {
	var minSeverity string
	cmd := &cobra.Command{
		Use:     "report",
		Aliases: []string{"analyze"},
		Short:   "Full analysis with the morning summary",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := a.engine.BuildReport(cmd.Context(), a.input.UserID, series.Map(a.input.Metrics))
			if err != nil {
				return err
			}
			notes := analytics.FilterBySeverity(a.engine.MorningSummary(report), minSeverity)
			if a.jsonOut {
				return a.printJSON(reportOutput{Report: report, Notifications: notes})
			}

			out := a.stdout
			fmt.Fprintf(out, "%s %s\n\n", heading("Report for"), report.UserID)
			fmt.Fprintln(out, heading("Metrics:"))
			for _, m := range report.Metrics() {
				s := report.Summaries[m]
				fmt.Fprintf(out, "  %-12s n=%-3d mean=%.2f sd=%.2f min=%g max=%g latest=%g\n",
					m, s.Count, s.Mean, s.StdDev, s.Min, s.Max, s.Latest)
			}
			fmt.Fprintf(out, "\n%s %d\n", heading("Anomalies:"), report.AnomalyCount())
			if len(report.Insights) > 0 {
				fmt.Fprintln(out, heading("\nInsights:"))
				for _, line := range report.Insights {
					fmt.Fprintf(out, "  - %s\n", line)
				}
			}
			fmt.Fprintln(out, heading("\nForecasts:"))
			for _, m := range sortedKeys(report.Forecasts) {
				f := report.Forecasts[m]
				fmt.Fprintf(out, "  %-12s %s %s\n", m, trendArrow(f.TrendDirection), dim(fmt.Sprintf("(confidence %.2f)", f.Confidence)))
			}
			renderRisks(a, report.Risks)

			fmt.Fprintln(out, heading("\nSummary:"))
			if len(notes) == 0 {
				fmt.Fprintln(out, "  nothing to report")
			}
			for _, n := range notes {
				fmt.Fprintf(out, "  [%s] %s\n", severityColor(n.Severity)(n.Severity), n.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&minSeverity, "min-severity", analytics.SeverityInfo, "lowest summary severity to show (info, warning, critical)")
	return cmd
}

// ─── anomalies ────────────────────────────────────────────────────────────────

func newAnomaliesCmd(a *app) *cobra.Command {
	var opts anomaly.Options
	cmd := &cobra.Command{
		Use:   "anomalies",
		Short: "Z-score and rolling-window anomaly detection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			base := a.engine.Options().Anomaly
			if !cmd.Flags().Changed("threshold") {
				opts.ZThreshold = base.ZThreshold
			}
			if !cmd.Flags().Changed("window") {
				opts.RollingWindow = base.RollingWindow
			}
			if !cmd.Flags().Changed("rolling-threshold") {
				opts.RollingThreshold = base.RollingThreshold
			}
			reports := anomaly.DetectAllWithOptions(a.input.Normalized(), opts)
			if a.jsonOut {
				return a.printJSON(reports)
			}

			total := 0
			for _, m := range sortedKeys(reports) {
				r := reports[m]
				total += r.Total()
				if r.Total() == 0 {
					continue
				}
				fmt.Fprintf(a.stdout, "%s\n", heading(m))
				for _, z := range r.ZAnomalies {
					fmt.Fprintf(a.stdout, "  zscore   day %-3d value=%g z=%.3f [%s]\n",
						z.Index, z.Value, z.ZScore, colorSeverity(anomaly.SeverityLevel(abs(z.ZScore), opts.ZThreshold)))
				}
				for _, ra := range r.RollingAnomalies {
					fmt.Fprintf(a.stdout, "  rolling  day %-3d value=%g mean=%.2f z=%.2f [%s]\n",
						ra.Index, ra.Value, ra.WindowMean, ra.ZScore, colorSeverity(anomaly.SeverityLevel(ra.Severity, opts.RollingThreshold)))
				}
			}
			fmt.Fprintf(a.stdout, "%s %d\n", heading("Total anomalies:"), total)
			return nil
		},
	}
	cmd.Flags().Float64Var(&opts.ZThreshold, "threshold", 0, "whole-series z-score threshold")
	cmd.Flags().IntVar(&opts.RollingWindow, "window", 0, "rolling window length in days")
	cmd.Flags().Float64Var(&opts.RollingThreshold, "rolling-threshold", 0, "rolling z-score threshold")
	return cmd
}

func colorSeverity(level string) string {
	switch level {
	case "critical":
		return critText(level)
	case "high", "medium":
		return warnText(level)
	}
	return level
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// ─── forecast ─────────────────────────────────────────────────────────────────

type forecastOutput struct {
	Metric string `json:"metric"`
	forecasting.Result
}

func newForecastCmd(a *app) *cobra.Command {
	var metric string
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Blended moving-average forecast and trend direction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data := a.input.Normalized()
			metrics := sortedKeys(data)
			if metric != "" {
				canonical := analytics.CanonicalMetric(metric)
				if _, ok := data[canonical]; !ok {
					return fmt.Errorf("metric %q not found in input", metric)
				}
				metrics = []string{canonical}
			}

			results := make([]forecastOutput, 0, len(metrics))
			for _, m := range metrics {
				results = append(results, forecastOutput{Metric: m, Result: a.engine.Forecast(m, data[m])})
			}
			if a.jsonOut {
				return a.printJSON(results)
			}
			for _, r := range results {
				fmt.Fprintf(a.stdout, "%-12s %s %s\n", heading(r.Metric), trendArrow(r.TrendDirection), dim(fmt.Sprintf("(confidence %.2f)", r.Confidence)))
				fmt.Fprintf(a.stdout, "  forecast %s\n", formatFloats(r.Forecast))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&metric, "metric", "m", "", "forecast only this metric")
	return cmd
}

// ─── correlate ────────────────────────────────────────────────────────────────

type correlateOutput struct {
	Matrix   *correlation.Matrix `json:"matrix"`
	Insights []string            `json:"insights"`
}

func newCorrelateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "correlate",
		Short: "Pairwise Pearson correlation matrix with insights",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var m *correlation.Matrix
			if len(a.input.Series) > 0 {
				list := make([][]float64, len(a.input.Series))
				names := make([]string, len(a.input.Series))
				for i, s := range a.input.Series {
					list[i] = s.Values.Floats()
					names[i] = s.Name
					if names[i] == "" {
						names[i] = fmt.Sprintf("series_%d", i)
					}
				}
				m = correlation.BuildMatrix(list, names)
			} else {
				m = correlation.BuildMatrixFromMap(a.input.Normalized())
			}
			out := correlateOutput{Matrix: m, Insights: a.engine.Insights(m)}
			if a.jsonOut {
				return a.printJSON(out)
			}

			fmt.Fprintf(a.stdout, "%-12s", "")
			for _, name := range m.Metrics {
				fmt.Fprintf(a.stdout, " %10s", name)
			}
			fmt.Fprintln(a.stdout)
			for i, name := range m.Metrics {
				fmt.Fprintf(a.stdout, "%-12s", name)
				for _, v := range m.Values[i] {
					cell := fmt.Sprintf(" %10.2f", v)
					if abs(v) > a.engine.Options().InsightThreshold && v != 1 {
						cell = heading(cell)
					}
					fmt.Fprint(a.stdout, cell)
				}
				fmt.Fprintln(a.stdout)
			}
			if len(out.Insights) > 0 {
				fmt.Fprintln(a.stdout, heading("\nInsights:"))
				for _, line := range out.Insights {
					fmt.Fprintf(a.stdout, "  - %s\n", line)
				}
			}
			return nil
		},
	}
}

// ─── risk ─────────────────────────────────────────────────────────────────────

func newRiskCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "risk",
		Short: "Stress, fatigue and dehydration risk bands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			risks := a.engine.AssessRisks(a.input.Normalized())
			if a.jsonOut {
				return a.printJSON(risks)
			}
			renderRisks(a, risks)
			return nil
		},
	}
}

func renderRisks(a *app, risks map[risk.Kind]risk.Classification) {
	fmt.Fprintln(a.stdout, heading("Risks:"))
	if len(risks) == 0 {
		fmt.Fprintln(a.stdout, "  no risk classifier applies to these metrics")
		return
	}
	for _, kind := range []risk.Kind{risk.KindStress, risk.KindFatigue, risk.KindDehydration} {
		c, ok := risks[kind]
		if !ok {
			continue
		}
		fmt.Fprintf(a.stdout, "  %-12s %s (%.0f%%)\n", kind, levelColor(c.Level)(string(c.Level)), c.Probability*100)
	}
}
