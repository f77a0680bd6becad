package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/agentsim/agentsim/sim"
	"github.com/agentsim/agentsim/sim/scenario"
	"github.com/agentsim/agentsim/sim/trace"
)

var (
	// CLI flags for the scenario and its overrides
	configPath string  // Path to the YAML scenario
	seed       int64   // Overrides the scenario seed when set
	duration   float64 // Overrides the scenario duration when set
	maxEvents  int64   // Overrides the scenario event budget when set
	workers    int     // Number of parallel workers
	timeout    time.Duration
	logLevel   string // Log verbosity level

	// CLI flags for output
	outputFormat string // none, text or csv
	outputPath   string // Rows destination; stdout when empty
	headerPath   string // Trace header destination (requires --output and csv)
	printSummary bool   // Print the run summary

	// CLI flags for summarize
	traceHeaderPath string // Header written next to the CSV by run --header
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "agentsim",
	Short: "Discrete-event simulator for populations of Markov-chain agents",
}

// runCmd executes the simulation described by a scenario file
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scenario",
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		if !trace.IsValidFormat(outputFormat) {
			logrus.Fatalf("Unknown output format %q; valid: none, text, csv", outputFormat)
		}
		if headerPath != "" && (outputPath == "" || trace.OutputFormat(outputFormat) != trace.FormatCSV) {
			logrus.Fatalf("--header requires --output and --format csv")
		}

		spec, err := loadScenario(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		startTime := time.Now()
		res, err := simulate(ctx, spec, workers)
		if err != nil && res == nil {
			logrus.Fatalf("%v", err)
		}
		logrus.Infof("Simulation %s in %s: %d events, clock=%v", res.Status, time.Since(startTime), res.EventsApplied, res.Clock)
		if res.Status == sim.StatusCancelled {
			logrus.Warnf("Run stopped early (%v); writing partial timelines", res.Cause)
		}

		rows := RowsFromResult(res)
		if err := emit(rows, spec, res); err != nil {
			logrus.Fatalf("%v", err)
		}
		if err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
	},
}

// validateCmd checks a scenario without running it
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a scenario file",
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := loadScenario(cmd)
		if err != nil {
			return err
		}
		if _, err := spec.Build(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d chains, %d agents)\n", configPath, len(spec.Chains), spec.AgentCount())
		return nil
	},
}

// summarizeCmd recomputes the run summary from an exported CSV trace
var summarizeCmd = &cobra.Command{
	Use:   "summarize <trace.csv>",
	Short: "Summarize an exported CSV trace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening trace: %w", err)
		}
		defer func() { _ = file.Close() }()
		rows, err := trace.ReadCSV(file)
		if err != nil {
			return err
		}
		end, err := traceEnd(cmd, rows)
		if err != nil {
			return err
		}
		trace.Summarize(rows, end).Print(cmd.OutOrStdout())
		return nil
	},
}

// traceEnd picks the end time of an exported trace: --duration when set, else the
// duration recorded in --header for completed runs, else the last row time.
func traceEnd(cmd *cobra.Command, rows []trace.Row) (float64, error) {
	if cmd.Flags().Changed("duration") {
		return duration, nil
	}
	if traceHeaderPath != "" {
		header, err := trace.LoadHeader(traceHeaderPath)
		if err != nil {
			return 0, err
		}
		if header.Status == string(sim.StatusCompleted) {
			return header.Duration, nil
		}
	}
	return lastTime(rows), nil
}

// loadScenario loads --config, applies CLI overrides and validates the result.
func loadScenario(cmd *cobra.Command) (*scenario.ScenarioSpec, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	spec, err := scenario.LoadScenario(configPath)
	if err != nil {
		return nil, err
	}
	applyOverrides(cmd, spec)
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}
	return spec, nil
}

// applyOverrides copies explicitly set flags over the scenario values.
// Flags left at their defaults never overwrite the file.
func applyOverrides(cmd *cobra.Command, spec *scenario.ScenarioSpec) {
	if cmd.Flags().Changed("seed") {
		logrus.Infof("--seed %d overrides scenario seed %d", seed, spec.Seed)
		spec.Seed = seed
	}
	if cmd.Flags().Changed("duration") {
		spec.Duration = duration
	}
	if cmd.Flags().Changed("max-events") {
		spec.MaxEvents = maxEvents
	}
}

// simulate builds the scenario and runs it on the requested number of workers.
func simulate(ctx context.Context, spec *scenario.ScenarioSpec, workers int) (*sim.Result, error) {
	cfg, err := spec.Build()
	if err != nil {
		return nil, err
	}
	return sim.RunParallel(ctx, *cfg, workers)
}

// emit writes rows in the selected format, the trace header when requested, and
// the summary.
func emit(rows []trace.Row, spec *scenario.ScenarioSpec, res *sim.Result) error {
	format := trace.OutputFormat(outputFormat)
	if headerPath != "" {
		header := trace.NewHeader()
		header.Scenario = configPath
		header.TimeUnit = spec.TimeUnit
		header.Seed = spec.Seed
		header.Duration = spec.Duration
		header.Workers = workers
		header.Agents = len(res.Timelines)
		header.Status = string(res.Status)
		header.EventsApplied = res.EventsApplied
		if err := trace.Export(header, rows, headerPath, outputPath); err != nil {
			return err
		}
		logrus.Infof("Trace written to %s (header %s, run %s)", outputPath, headerPath, header.RunID)
	} else if format != trace.FormatNone && format != "" {
		out := os.Stdout
		if outputPath != "" {
			file, err := os.Create(outputPath)
			if err != nil {
				return fmt.Errorf("creating output: %w", err)
			}
			defer func() { _ = file.Close() }()
			out = file
		}
		if err := writeRows(out, format, rows); err != nil {
			return err
		}
	}

	// CSV on stdout stays machine-readable
	if printSummary && !(format == trace.FormatCSV && outputPath == "") {
		trace.Summarize(rows, summaryEnd(res)).Print(os.Stdout)
	}
	return nil
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// registerScenarioFlags binds the flags shared by run and validate.
func registerScenarioFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configPath, "config", "", "Path to the YAML scenario")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Seed overriding the scenario seed")
	cmd.Flags().Float64Var(&duration, "duration", 0, "Simulated duration overriding the scenario duration")
	cmd.Flags().Int64Var(&maxEvents, "max-events", 0, "Event budget overriding the scenario (0 = unlimited)")
}

// registerRunFlags binds the run-only flags.
func registerRunFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&workers, "workers", 1, "Number of parallel workers")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Wall-clock limit; the run is cancelled when it expires (0 = none)")
	cmd.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	cmd.Flags().StringVar(&outputFormat, "format", "text", "Row output format (none, text, csv)")
	cmd.Flags().StringVar(&outputPath, "output", "", "Write rows to this file instead of stdout")
	cmd.Flags().StringVar(&headerPath, "header", "", "Write a YAML trace header to this file (requires --output and --format csv)")
	cmd.Flags().BoolVar(&printSummary, "summary", true, "Print the run summary")
}

// registerSummarizeFlags binds the summarize flags.
func registerSummarizeFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&duration, "duration", 0, "End time of the trace (defaults to the header duration, then the last row)")
	cmd.Flags().StringVar(&traceHeaderPath, "header", "", "Trace header written by run --header")
}

func init() {
	registerScenarioFlags(runCmd)
	registerRunFlags(runCmd)
	registerScenarioFlags(validateCmd)
	registerSummarizeFlags(summarizeCmd)

	// Attach subcommands to `root`
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(summarizeCmd)
}
