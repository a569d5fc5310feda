package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/tracemon/internal/engine"
	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/monitor"
	"github.com/roach88/tracemon/internal/store"
)

// EngineFlags are the flags shared by the commands that run an engine.
type EngineFlags struct {
	Database    string
	RunID       string
	StopOnError bool
	MaxStates   int
	PrintSteps  bool

	// RunIDs overrides the run id generator (for testing).
	RunIDs engine.RunIDGenerator
}

func (f *EngineFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Database, "db", "", "record the run to this SQLite database")
	cmd.Flags().StringVar(&f.RunID, "run-id", "", "run id (default: a new UUIDv7)")
	cmd.Flags().BoolVar(&f.StopOnError, "stop-on-error", false, "abort at the first violation")
	cmd.Flags().IntVar(&f.MaxStates, "max-states", engine.DefaultMaxStates, "abort when the state soup grows past this size (0 disables)")
	cmd.Flags().BoolVar(&f.PrintSteps, "print-steps", false, "log every event and the resulting states")
}

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	EngineFlags
}

// CheckResult is the outcome of verifying one trace file.
type CheckResult struct {
	*engine.Result
	Trace   string `json:"trace"`
	Skipped int    `json:"skipped,omitempty"` // events not verified after an abort
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <specs-dir> <trace-file>",
		Short: "Verify a recorded trace against the monitors",
		Long: `Verify every event of a trace file, end the run and report violations.

Trace files are YAML (a list of {event, args} entries, or a mapping with
an events list) or JSONL (one {"name", "args"} object per line, for
files ending in .jsonl or .ndjson).

With --db the run is recorded to SQLite for later replay and trace.

Exit codes:
  0 - No violations
  1 - Violations found or run aborted
  2 - Command error (invalid specs, unreadable trace, database error)

Examples:
  tracemon check ./specs ./trace.yaml
  tracemon check ./specs ./trace.jsonl --db ./runs.db --stop-on-error`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, args[0], args[1], cmd)
		},
	}

	opts.EngineFlags.register(cmd)

	return cmd
}

func runCheck(opts *CheckOptions, specsDir, tracePath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	specs, err := compileSpecs(specsDir)
	if err != nil {
		return failLoad(formatter, err)
	}
	events, err := ReadTraceFile(tracePath)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeBadTrace, fmt.Sprintf("reading %s: %v", tracePath, err))
	}
	formatter.VerboseLog("Loaded %d monitor(s) and %d event(s)", len(specs), len(events))

	engOpts, closeStore, err := opts.engineOptions()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, err.Error())
	}
	defer closeStore()

	eng, err := engine.New(specs, engOpts...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error())
	}

	skipped := 0
	for i, ev := range events {
		perr := eng.Process(ctx, ev)
		if perr == nil {
			continue
		}
		if monitor.IsAbort(perr) || engine.IsQuotaError(perr) {
			slog.Warn("run aborted", "step", i, "event", ev.String(), "error", perr)
			skipped = len(events) - i - 1
			break
		}
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("event %d (%s): %v", i, ev.String(), perr))
	}

	res, err := eng.End(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, fmt.Sprintf("ending run: %v", err))
	}
	return outputCheckResult(formatter, CheckResult{Result: res, Trace: tracePath, Skipped: skipped})
}

// engineOptions turns the flags into engine options. The returned func
// closes the store, if one was opened.
func (opts *EngineFlags) engineOptions() ([]engine.EngineOption, func(), error) {
	var engOpts []engine.EngineOption
	closeStore := func() {}

	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return nil, closeStore, fmt.Errorf("failed to open database: %w", err)
		}
		engOpts = append(engOpts, engine.WithStore(st))
		closeStore = func() {
			if err := st.Close(); err != nil {
				slog.Error("error closing database", "error", err)
			}
		}
	}

	switch {
	case opts.RunID != "":
		engOpts = append(engOpts, engine.WithRunID(opts.RunID))
	case opts.RunIDs != nil:
		engOpts = append(engOpts, engine.WithRunIDGenerator(opts.RunIDs))
	}

	engOpts = append(engOpts, engine.WithMaxStates(opts.MaxStates))

	// Only pass the flags that are set, so a spec's own stop_on_error and
	// print_steps are not overridden with false.
	if opts.StopOnError {
		engOpts = append(engOpts, engine.WithMonitorOptions(monitor.WithStopOnError(true)))
	}
	if opts.PrintSteps {
		engOpts = append(engOpts, engine.WithMonitorOptions(monitor.WithPrintSteps(true)))
	}
	return engOpts, closeStore, nil
}

func outputCheckResult(formatter *OutputFormatter, res CheckResult) error {
	failed := !res.OK()
	msg := fmt.Sprintf("%d violation(s), run %s", len(res.Violations), res.Status)

	if formatter.JSON() {
		if !failed {
			return formatter.Success(res)
		}
		if err := formatter.Failure("E_VIOLATIONS", msg, res); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Run %s: %d event(s), status %s\n", res.RunID, res.Events, res.Status)
	if res.Skipped > 0 {
		fmt.Fprintf(w, "  %d event(s) not verified after abort\n", res.Skipped)
	}
	printViolations(w, res.Violations)
	printFacts(w, res.Facts)

	if failed {
		fmt.Fprintf(w, "✗ %s\n", msg)
		return NewExitError(ExitFailure, msg)
	}
	fmt.Fprintln(w, "✓ No violations")
	return nil
}

func printViolations(w io.Writer, vs []ir.Violation) {
	if len(vs) == 0 {
		return
	}
	fmt.Fprintln(w, "Violations:")
	for _, v := range vs {
		at := "end of run"
		if v.Seq > 0 {
			at = fmt.Sprintf("seq %d", v.Seq)
		}
		fmt.Fprintf(w, "  [%s] %s: %s (%s", v.Kind, v.Monitor, v.Message, at)
		if v.State != "" {
			fmt.Fprintf(w, ", state %s", v.State)
		}
		fmt.Fprintln(w, ")")
	}
}

func printFacts(w io.Writer, facts []ir.Fact) {
	if len(facts) == 0 {
		return
	}
	fmt.Fprintln(w, "Active states:")
	for _, f := range facts {
		hot := ""
		if f.Hot {
			hot = " (hot)"
		}
		fmt.Fprintf(w, "  %s.%s%s\n", f.Monitor, ir.FormatArgs(f.Name, f.Args), hot)
	}
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute (as in unit tests).
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
