package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/tracemon/internal/engine"
	"github.com/roach88/tracemon/internal/live"
	"github.com/roach88/tracemon/internal/monitor"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	EngineFlags
	Addr       string
	MaxClients int
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve <specs-dir>",
		Short: "Verify a live event stream over websockets",
		Long: `Start the engine behind a websocket server.

Producers send JSON events to /events and get one ack per event.
Observers connect to /violations to receive violations as they happen.
/status reports the run id, queue length and violation count.

On Ctrl-C the server stops accepting events, the engine drains its
queue, the run is ended and the result is printed.

Examples:
  tracemon serve ./specs --addr :8080
  tracemon serve ./specs --addr :8080 --db ./runs.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, args[0], cmd)
		},
	}

	opts.EngineFlags.register(cmd)
	cmd.Flags().StringVar(&opts.Addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().IntVar(&opts.MaxClients, "max-clients", 100, "maximum concurrent websocket connections")

	return cmd
}

func runServe(opts *ServeOptions, specsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	specs, err := compileSpecs(specsDir)
	if err != nil {
		return failLoad(formatter, err)
	}
	slog.Info("specs compiled", "monitors", len(specs))

	engOpts, closeStore, err := opts.engineOptions()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, err.Error())
	}
	defer closeStore()

	eng, err := engine.New(specs, engOpts...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error())
	}

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	// The loop gets its own context so it drains the queue after the
	// server has stopped instead of dropping accepted events.
	runErr := make(chan error, 1)
	go func() {
		err := eng.Run(context.Background())
		if err != nil {
			// An aborted run accepts no more events.
			cancel()
		}
		runErr <- err
	}()

	srv := live.NewServer(eng,
		live.WithLogger(slog.Default()),
		live.WithMaxClients(opts.MaxClients),
	)

	fmt.Fprintf(formatter.GetErrWriter(), "Run %s listening on %s. Press Ctrl-C to stop.\n", eng.RunID(), opts.Addr)
	serveErr := srv.ListenAndServe(ctx, opts.Addr)

	eng.Stop()
	loopErr := <-runErr
	if loopErr != nil && !monitor.IsAbort(loopErr) && !engine.IsQuotaError(loopErr) {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, fmt.Sprintf("engine error: %v", loopErr))
	}

	res, err := eng.End(context.Background())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, fmt.Sprintf("ending run: %v", err))
	}
	if serveErr != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("server error: %v", serveErr))
	}

	slog.Info("engine stopped gracefully")
	return outputCheckResult(formatter, CheckResult{Result: res})
}
