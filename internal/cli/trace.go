package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/queryir"
	"github.com/roach88/tracemon/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string
	Monitor  string   // restricts --fact queries to one monitor
	Fact     string   // fact (state or during) name to query
	Where    []string // field=value filters for --fact
	Select   []string // fields to project from matching facts
}

// TraceResult holds everything stored for one run.
type TraceResult struct {
	Run        ir.Run         `json:"run"`
	Events     []ir.Event     `json:"events"`
	Violations []ir.Violation `json:"violations"`
	Facts      []ir.Fact      `json:"facts"`
}

// FactQueryResult holds the facts matching a --fact query.
type FactQueryResult struct {
	RunID   string            `json:"run_id"`
	Query   string            `json:"query"`
	Matches []store.FactMatch `json:"matches"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show stored runs, their events, violations and final states",
		Long: `Show what a recorded run contains.

Without --run, lists every stored run. With --run, prints the run's
events in seq order with the violations each produced, followed by the
states still active when the run ended.

--fact queries that final snapshot: it selects the active states (or
durings that were on) with the given name, filtered by --where
field=value pairs. --select projects fields of the matches.

Examples:
  tracemon trace --db ./runs.db
  tracemon trace --db ./runs.db --run 0190a...
  tracemon trace --db ./runs.db --run 0190a... --fact Locked --where l=8 --select t`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to show")
	cmd.Flags().StringVar(&opts.Monitor, "monitor", "", "restrict --fact to this monitor")
	cmd.Flags().StringVar(&opts.Fact, "fact", "", "query final states with this name (requires --run)")
	cmd.Flags().StringArrayVar(&opts.Where, "where", nil, "field=value filter for --fact (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Select, "select", nil, "field to project from --fact matches (repeatable)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	if opts.Fact != "" && opts.RunID == "" {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "--fact requires --run")
	}

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, err.Error())
	}
	defer st.Close()

	if opts.RunID == "" {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDatabase, err.Error())
		}
		return outputRuns(formatter, runs)
	}

	if opts.Fact != "" {
		pattern, err := factPattern(opts.Fact, opts.Where)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error())
		}
		if _, err := st.ReadRun(ctx, opts.RunID); err != nil {
			return failRun(formatter, opts.RunID, err)
		}
		var bindings map[string]string
		if len(opts.Select) > 0 {
			bindings = make(map[string]string, len(opts.Select))
			for _, f := range opts.Select {
				bindings[f] = f
			}
		}
		matches, err := st.QueryFacts(ctx, opts.RunID, opts.Monitor, queryir.FromPattern(pattern, bindings), nil)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDatabase, err.Error())
		}
		return outputFactQuery(formatter, FactQueryResult{
			RunID:   opts.RunID,
			Query:   ir.FormatArgs(pattern.Fact, pattern.Where),
			Matches: matches,
		})
	}

	log, err := st.ReadRunLog(ctx, opts.RunID)
	if err != nil {
		return failRun(formatter, opts.RunID, err)
	}
	return outputTrace(formatter, TraceResult{
		Run:        log.Run,
		Events:     log.Events,
		Violations: log.Violations,
		Facts:      log.Facts,
	})
}

func failRun(formatter *OutputFormatter, runID string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("run not found: %s", runID))
	}
	return formatter.Fail(ExitCommandError, ErrCodeDatabase, err.Error())
}

// factPattern builds the pattern for --fact and --where.
func factPattern(fact string, where []string) (ir.FactPattern, error) {
	p := ir.FactPattern{Fact: fact}
	if len(where) == 0 {
		return p, nil
	}
	p.Where = make(ir.Object, len(where))
	for _, w := range where {
		field, val, ok := strings.Cut(w, "=")
		if !ok || field == "" {
			return p, fmt.Errorf("invalid --where %q: want field=value", w)
		}
		p.Where[field] = parseArgValue(val)
	}
	return p, nil
}

func outputRuns(formatter *OutputFormatter, runs []ir.Run) error {
	if formatter.JSON() {
		return formatter.Success(runs)
	}
	w := formatter.Writer
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %-8s  %d event(s), %d error(s)\n", r.ID, r.Status, r.Events, r.Errors)
	}
	return nil
}

func outputTrace(formatter *OutputFormatter, tr TraceResult) error {
	if formatter.JSON() {
		return formatter.Success(tr)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Run %s (%s)\n", tr.Run.ID, tr.Run.Status)
	fmt.Fprintf(w, "  spec hash: %s\n", tr.Run.SpecHash)
	fmt.Fprintf(w, "  engine %s, IR %s\n\n", tr.Run.EngineVersion, tr.Run.IRVersion)

	bySeq := make(map[int64][]ir.Violation)
	var atEnd []ir.Violation
	for _, v := range tr.Violations {
		if v.Seq == 0 {
			atEnd = append(atEnd, v)
			continue
		}
		bySeq[v.Seq] = append(bySeq[v.Seq], v)
	}

	fmt.Fprintln(w, "Timeline:")
	for _, ev := range tr.Events {
		fmt.Fprintf(w, "  [%d] %s\n", ev.Seq, ev.String())
		for _, v := range bySeq[ev.Seq] {
			fmt.Fprintf(w, "      ✗ [%s] %s: %s\n", v.Kind, v.Monitor, v.Message)
		}
	}
	if tr.Run.Status != ir.RunRunning {
		fmt.Fprintln(w, "  [end]")
		for _, v := range atEnd {
			fmt.Fprintf(w, "      ✗ [%s] %s: %s\n", v.Kind, v.Monitor, v.Message)
		}
	}
	fmt.Fprintln(w)

	printFacts(w, tr.Facts)
	fmt.Fprintf(w, "Stats: %d event(s), %d violation(s), %d active state(s)\n",
		len(tr.Events), len(tr.Violations), len(tr.Facts))
	return nil
}

func outputFactQuery(formatter *OutputFormatter, res FactQueryResult) error {
	if formatter.JSON() {
		return formatter.Success(res)
	}
	w := formatter.Writer
	if len(res.Matches) == 0 {
		fmt.Fprintf(w, "No facts match %s\n", res.Query)
		return nil
	}
	for _, m := range res.Matches {
		fmt.Fprintf(w, "%s.%s", m.Monitor, ir.FormatArgs(m.Name, m.Args))
		if len(m.Bindings) > 0 {
			fmt.Fprintf(w, "  -> %s", formatBindings(m.Bindings))
		}
		fmt.Fprintln(w)
	}
	return nil
}

func formatBindings(b ir.Object) string {
	parts := make([]string, 0, len(b))
	for _, k := range b.SortedKeys() {
		parts = append(parts, k+"="+ir.Format(b[k]))
	}
	return strings.Join(parts, ", ")
}
