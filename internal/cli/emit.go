package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/live"
)

// EmitOptions holds flags for the emit command.
type EmitOptions struct {
	*RootOptions
	Addr    string
	Args    string   // JSON object
	Arg     []string // key=value pairs, merged over Args
	Timeout time.Duration
}

// NewEmitCommand creates the emit command.
func NewEmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "emit <event>",
		Short: "Send one event to a running server",
		Long: `Send one event to the /events endpoint of a running "tracemon serve".

Arguments come from --args (a JSON object) and --arg key=value pairs.
--arg values that parse as integers or booleans are sent as such; use
--args for strings that look like numbers.

Examples:
  tracemon emit acquire --arg t=1 --arg l=8
  tracemon emit acquire --args '{"t":1,"l":8}' --addr ws://localhost:8080`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmit(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "127.0.0.1:8080", "server address (host:port or ws:// URL)")
	cmd.Flags().StringVar(&opts.Args, "args", "{}", "event arguments as JSON")
	cmd.Flags().StringArrayVar(&opts.Arg, "arg", nil, "event argument as key=value (repeatable)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "connection timeout")

	return cmd
}

func runEmit(opts *EmitOptions, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	args, err := parseEventArgs(opts.Args, opts.Arg)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error())
	}
	ev := ir.Event{Name: name, Args: args}

	ctx, cancel := context.WithTimeout(commandContext(cmd), opts.Timeout)
	defer cancel()

	client, err := live.Dial(ctx, opts.Addr)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("connecting to %s: %v", opts.Addr, err))
	}
	defer client.Close()

	if err := client.Send(ev); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, err.Error())
	}

	formatter.VerboseLog("Sent %s to %s", ev.String(), opts.Addr)
	if formatter.JSON() {
		return formatter.Success(ev)
	}
	fmt.Fprintf(formatter.Writer, "✓ Sent %s\n", ev.String())
	return nil
}

// parseEventArgs merges --arg pairs over the --args JSON object.
func parseEventArgs(raw string, pairs []string) (ir.Object, error) {
	var args ir.Object
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid --args JSON: %w", err)
	}
	if args == nil {
		args = ir.Object{}
	}
	for _, p := range pairs {
		key, val, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --arg %q: want key=value", p)
		}
		args[key] = parseArgValue(val)
	}
	return args, nil
}

func parseArgValue(s string) ir.Value {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ir.Int(n)
	}
	switch s {
	case "true":
		return ir.Bool(true)
	case "false":
		return ir.Bool(false)
	}
	return ir.String(s)
}
