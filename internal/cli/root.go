package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/healthtrack/healthtrack-analytics/internal/analytics"
	"github.com/healthtrack/healthtrack-analytics/internal/config"
	"github.com/healthtrack/healthtrack-analytics/internal/server"
)

type app struct {
	file       string
	configPath string
	jsonOut    bool
	noColor    bool

	cfg    *config.Config
	engine *analytics.Engine
	input  *Input

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// NewRootCommand returns the healthctl command tree wired to the process
// standard streams.
func NewRootCommand() *cobra.Command {
	return newRootCommand(os.Stdin, os.Stdout, os.Stderr)
}

// NewRootCommandWithIO is NewRootCommand with explicit streams.
func NewRootCommandWithIO(in io.Reader, out, errOut io.Writer) *cobra.Command {
	return newRootCommand(in, out, errOut)
}

func newRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{stdin: in, stdout: out, stderr: errOut}

	cmd := &cobra.Command{
		Use:           "healthctl",
		Short:         "Offline health metrics analysis",
		Long:          "healthctl runs the analytics engine over a local YAML or JSON metrics file: anomalies, correlations, forecasts and risk.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       server.Version,
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	cmd.PersistentFlags().StringVarP(&a.file, "file", "f", "", "metrics file (YAML or JSON), - for stdin")
	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file supplying analytics thresholds")
	cmd.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "print JSON instead of text")
	cmd.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable colored output")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if a.noColor {
			color.NoColor = true
		}
		return a.setup(cmd.Context())
	}

	cmd.AddCommand(
		newReportCmd(a),
		newAnomaliesCmd(a),
		newForecastCmd(a),
		newCorrelateCmd(a),
		newRiskCmd(a),
	)
	return cmd
}

func (a *app) setup(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if a.file == "" {
		return fmt.Errorf("--file is required")
	}

	a.cfg = config.DefaultConfig()
	if a.configPath != "" {
		mgr, err := config.NewConfigManager(a.configPath)
		if err != nil {
			return err
		}
		if err := mgr.Load(ctx); err != nil {
			return err
		}
		if err := mgr.Validate(ctx); err != nil {
			return err
		}
		a.cfg = mgr.Get(ctx)
	}
	a.engine = analytics.NewEngine(a.cfg.EngineOptions(), nil)

	in, err := readInput(a.file, a.stdin)
	if err != nil {
		return err
	}
	a.input = in
	return nil
}

func (a *app) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
