package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/tracemon/internal/compiler"
	"github.com/roach88/tracemon/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult holds the compiled monitors.
type CompilationResult struct {
	SpecHash string           `json:"spec_hash"`
	Roots    []string         `json:"roots"`
	Monitors []ir.MonitorSpec `json:"monitors"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <specs-dir>",
		Short: "Compile CUE monitor specs to IR",
		Long: `Compile CUE monitor specs to the JSON IR the engine runs.

The output carries the spec hash recorded with every run, so a stored
run can be matched to the specs that produced it. Use --output to write
the IR to a file (.json, or .yaml/.yml for YAML).`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, specsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loadResult, loadErrors := LoadSpecs(specsDir, LoadModeCollectAll)
	if loadResult == nil {
		return failLoad(formatter, loadErrors[0])
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, specsDir)
	for _, m := range loadResult.Monitors {
		formatter.VerboseLog("Compiled monitor: %s", m.Name)
	}

	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	hash, err := ir.SpecHash(loadResult.Monitors)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error())
	}
	result := &CompilationResult{
		SpecHash: hash,
		Roots:    compiler.Roots(loadResult.Monitors),
		Monitors: loadResult.Monitors,
	}

	if opts.Output != "" {
		if err := writeIRToFile(result, opts.Output); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d monitor(s)\n\n", len(result.Monitors))
	fmt.Fprintln(w, "Monitors:")
	for _, m := range result.Monitors {
		fmt.Fprintf(w, "  %s: %d state(s), %d during(s), %d invariant(s)",
			m.Name, len(m.States), len(m.Durings), len(m.Invariants))
		if m.Scope.Mode == ir.ScopeKeyed {
			fmt.Fprintf(w, ", keyed by %s", m.Scope.Key)
		}
		if len(m.Monitors) > 0 {
			fmt.Fprintf(w, ", children %v", m.Monitors)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Spec hash: %s\n", result.SpecHash)

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote IR to %s\n", outputFile)
	}
	return nil
}

// outputCompileErrors outputs every compilation error.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	msg := fmt.Sprintf("compilation failed with %d error(s)", len(errs))
	if formatter.JSON() {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}
		if err := formatter.Failure(cliErrors[0].Code, cliErrors[0].Message, cliErrors); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, msg)
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		code, message := parseCompileError(err)
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	return NewExitError(ExitCommandError, msg)
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		if loadErr.Field != "" {
			return loadErr.Code, loadErr.Field + ": " + loadErr.Message
		}
		return loadErr.Code, loadErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// writeIRToFile writes the compilation result as indented JSON, or as
// YAML when the file name asks for it.
func writeIRToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling IR: %w", err)
	}

	switch filepath.Ext(filename) {
	case ".yaml", ".yml":
		// Go through the JSON form so the YAML keys match the json tags.
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("converting IR: %w", err)
		}
		if data, err = yaml.Marshal(doc); err != nil {
			return fmt.Errorf("marshaling IR as YAML: %w", err)
		}
	default:
		data = append(data, '\n')
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
