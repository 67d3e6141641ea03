// Observation lifecycle checker
// Replays YAML signal scripts through a validating observation registry and reports violations
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/andrewh/obscheck/pkg/observation"
	"github.com/andrewh/obscheck/pkg/otelbridge"
	"github.com/andrewh/obscheck/pkg/report"
	"github.com/andrewh/obscheck/pkg/script"
	"github.com/andrewh/obscheck/pkg/validator"
	"github.com/grafana/pyroscope-go"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "obscheck",
		Short:        "Observation lifecycle checker",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "YAML file with default settings for run")

	root.AddCommand(runCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(versionCmd())

	return root
}

func scriptArgs(verb string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return fmt.Errorf("missing script file\n\nUsage: obscheck %s <script.yaml>", verb)
		}
		return cobra.ExactArgs(1)(cmd, args)
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <script.yaml>",
		Short: "Replay a script and check every case against its expected outcome",
		Long: "Replay a script and check every case against its expected outcome.\n\n" +
			"Signals pass through the lifecycle validator first, then through the\n" +
			"OTel handlers enabled with --signals. Exits non-zero if any case does\n" +
			"not match its expectation.",
		Args: scriptArgs("run"),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			s, err := loadSettings(cmd.Flags(), configPath)
			if err != nil {
				return err
			}
			return runReplay(cmd.Context(), args[0], s, cmd.OutOrStdout())
		},
	}

	cmd.Flags().String("endpoint", "", "OTLP endpoint (e.g. localhost:4318)")
	cmd.Flags().Bool("stdout", false, "print signals as JSON on stderr instead of exporting via OTLP")
	cmd.Flags().String("protocol", "http/protobuf", "OTLP protocol (http/protobuf or grpc)")
	cmd.Flags().String("signals", "", "comma-separated signals to emit: traces,metrics,logs")
	cmd.Flags().Bool("callsites", true, "record call sites in violation reports")
	cmd.Flags().String("record", "", "SQLite file to record the run in")
	cmd.Flags().String("pyroscope", "", "send profiles of the run to this Pyroscope server")
	cmd.Flags().Bool("json", false, "print the summary as JSON instead of a table")
	cmd.Flags().BoolP("verbose", "v", false, "print the full report of every violation")

	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <script.yaml>",
		Short: "Parse and validate a script",
		Args:  scriptArgs("validate"),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadScript(args[0])
			if err != nil {
				return err
			}
			caseLabel := "cases"
			if len(s.Cases) == 1 {
				caseLabel = "case"
			}
			stepLabel := "steps"
			if s.StepCount() == 1 {
				stepLabel = "step"
			}
			_, _ = numbers.Fprintf(cmd.OutOrStdout(), "Script valid: %d %s, %d %s\n\n"+
				"To replay it:\n"+
				"  obscheck run %s\n",
				len(s.Cases), caseLabel, s.StepCount(), stepLabel, args[0])
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "obscheck %s (commit: %s, built: %s)\n", version, commit, buildTime)
		},
	}
}

func loadScript(path string) (*script.Script, error) {
	s, err := script.Load(path)
	if err != nil {
		return nil, err
	}
	if err := script.Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

func runReplay(ctx context.Context, scriptPath string, s settings, out io.Writer) error {
	sc, err := loadScript(scriptPath)
	if err != nil {
		return err
	}

	enabled, err := parseSignals(s.Signals)
	if err != nil {
		return err
	}
	if err := validateProtocol(s.Protocol); err != nil {
		return err
	}
	// Printed signals go to stderr so stdout holds only the summary
	target := newExportTarget(s, os.Stderr)
	if len(enabled) > 0 && target.out == nil {
		if err := target.reachCollector(scriptPath); err != nil {
			return err
		}
	}

	tel, err := newTelemetry(ctx, target, enabled)
	if err != nil {
		return err
	}
	defer tel.close()

	reg, err := buildRegistry(s, tel)
	if err != nil {
		return err
	}

	if s.Pyroscope != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "obscheck",
			ServerAddress:   s.Pyroscope,
			Tags:            map[string]string{"version": version},
		})
		if err != nil {
			return fmt.Errorf("starting profiler: %w", err)
		}
		defer func() {
			if err := profiler.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "error stopping profiler: %v\n", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sum, err := script.Run(ctx, sc, reg)
	if err != nil {
		return err
	}
	sum.Script = scriptPath

	if s.Record != "" {
		if err := recordRun(ctx, s.Record, sum); err != nil {
			return err
		}
	}

	if s.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sum); err != nil {
			return fmt.Errorf("encoding summary: %w", err)
		}
	} else {
		renderResults(out, sum.Results)
		if s.Verbose {
			renderReports(out, sum.Results)
		}
	}

	if failed := sum.Failed(); failed > 0 {
		return fmt.Errorf("%d of %d cases did not match their expected outcome", failed, len(sum.Results))
	}
	return nil
}

// buildRegistry installs the validator ahead of the OTel handlers so rejected
// signals never reach them.
func buildRegistry(s settings, tel *telemetry) (*observation.Registry, error) {
	opts := []validator.Option{validator.WithCallSites(s.CallSites)}
	if tel.logger != nil {
		opts = append(opts, validator.WithListener(otelbridge.NewViolationLogger(tel.logger)))
	}
	reg := observation.NewRegistry(validator.New(opts...))

	if tel.tracer != nil {
		reg.AddHandler(otelbridge.NewTracingHandler(tel.tracer))
	}
	if tel.meter != nil {
		h, err := otelbridge.NewMetricsHandler(tel.meter)
		if err != nil {
			return nil, fmt.Errorf("creating metrics handler: %w", err)
		}
		reg.AddHandler(h)
	}
	return reg, nil
}

func recordRun(ctx context.Context, path string, sum *script.Summary) error {
	store, err := report.Open(path)
	if err != nil {
		return fmt.Errorf("opening report store: %w", err)
	}
	defer func() { _ = store.Close() }()
	if err := store.Save(ctx, sum); err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}
