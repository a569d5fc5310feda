package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/tracemon/internal/engine"
	"github.com/roach88/tracemon/internal/monitor"
	"github.com/roach88/tracemon/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database    string
	RunID       string // optional - specific run only
	StopOnError bool
	MaxStates   int
}

// ReplayReport holds the replay result of every run.
type ReplayReport struct {
	Runs         []*engine.ReplayResult `json:"runs"`
	TotalRuns    int                    `json:"total_runs"`
	AllIdentical bool                   `json:"all_identical"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <specs-dir>",
		Short: "Re-verify stored runs and check the verdicts are identical",
		Long: `Replay stored runs against the specs and compare the violations.

Each run's events are verified again with their stored seqs under the
stored run id, and the replayed violations are compared with the
recorded ones. With unchanged specs this proves verification is
deterministic. With changed specs it shows how the change affects old
traces. Pass the same --stop-on-error and --max-states the run was
recorded with.

Exit codes:
  0 - Every run replayed identically
  1 - At least one run diverged
  2 - Command error (database not found, unknown run, invalid specs)

Examples:
  tracemon replay ./specs --db ./runs.db
  tracemon replay ./specs --db ./runs.db --run 0190a...
  tracemon replay ./specs --db ./runs.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "replay this run only")
	cmd.Flags().BoolVar(&opts.StopOnError, "stop-on-error", false, "abort at the first violation")
	cmd.Flags().IntVar(&opts.MaxStates, "max-states", engine.DefaultMaxStates, "state quota (0 disables)")

	return cmd
}

func runReplay(opts *ReplayOptions, specsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, err.Error())
	}
	defer st.Close()

	specs, err := compileSpecs(specsDir)
	if err != nil {
		return failLoad(formatter, err)
	}

	var runIDs []string
	if opts.RunID != "" {
		runIDs = []string{opts.RunID}
	} else {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDatabase, err.Error())
		}
		for _, r := range runs {
			runIDs = append(runIDs, r.ID)
		}
	}

	engOpts := []engine.EngineOption{engine.WithMaxStates(opts.MaxStates)}
	if opts.StopOnError {
		engOpts = append(engOpts, engine.WithMonitorOptions(monitor.WithStopOnError(true)))
	}

	report := ReplayReport{AllIdentical: true, Runs: []*engine.ReplayResult{}}
	for _, id := range runIDs {
		formatter.VerboseLog("Replaying run %s", id)
		res, err := engine.Replay(ctx, st, id, specs, engOpts...)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("run not found: %s", id))
			}
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error())
		}
		if !res.SpecHashMatch {
			slog.Warn("specs changed since the run was recorded", "run_id", id)
		}
		report.Runs = append(report.Runs, res)
		report.AllIdentical = report.AllIdentical && res.Identical
	}
	report.TotalRuns = len(report.Runs)

	return outputReplay(formatter, report)
}

// openExistingStore opens a database that must already exist. store.Open
// would silently create an empty one.
func openExistingStore(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database not found: %s", path)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return st, nil
}

func outputReplay(formatter *OutputFormatter, report ReplayReport) error {
	diverged := 0
	for _, r := range report.Runs {
		if !r.Identical {
			diverged++
		}
	}
	msg := fmt.Sprintf("%d of %d run(s) diverged", diverged, report.TotalRuns)

	if formatter.JSON() {
		if report.AllIdentical {
			return formatter.Success(report)
		}
		if err := formatter.Failure("E_NONDETERMINISTIC", msg, report); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}

	w := formatter.Writer
	if report.TotalRuns == 0 {
		fmt.Fprintln(w, "No runs found.")
		return nil
	}
	for _, r := range report.Runs {
		mark := "✓"
		if !r.Identical {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s: %d event(s), %d violation(s)", mark, r.RunID, r.Events, len(r.Replayed))
		if !r.SpecHashMatch {
			fmt.Fprint(w, " [specs changed]")
		}
		fmt.Fprintln(w)
		if r.Difference != "" {
			fmt.Fprintf(w, "  %s\n", r.Difference)
		}
	}
	fmt.Fprintln(w)

	if !report.AllIdentical {
		fmt.Fprintf(w, "✗ %s\n", msg)
		return NewExitError(ExitFailure, msg)
	}
	fmt.Fprintf(w, "✓ All %d run(s) replayed identically\n", report.TotalRuns)
	return nil
}
