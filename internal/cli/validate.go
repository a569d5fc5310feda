package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tracemon/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Monitors int                        `json:"monitors"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.Warning         `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <specs-dir>",
		Short: "Validate monitor specs without compiling them",
		Long: `Validate CUE monitor specs.

Checks every monitor against the schema (states, targets, parameters,
fact patterns, invariants) and checks the monitor hierarchy for unknown,
shared and cyclic children. Every error is reported, not just the first.
Unreachable states are reported as warnings.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, specsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	loadResult, loadErrors := LoadSpecs(specsDir, LoadModeCollectAll)
	if loadResult == nil {
		return failLoad(formatter, loadErrors[0])
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, specsDir)
	for _, m := range loadResult.Monitors {
		formatter.VerboseLog("Validated monitor: %s", m.Name)
	}

	result := ValidationResult{
		Valid:    len(loadErrors) == 0,
		Monitors: len(loadResult.Monitors),
		Warnings: loadResult.Warnings,
	}
	for _, err := range loadErrors {
		result.Errors = append(result.Errors, toValidationError(err))
	}

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// failLoad reports an error that stopped loading altogether.
func failLoad(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return formatter.Fail(ExitCommandError, loadErr.Code, loadErr.Message)
	}
	return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error())
}

func toValidationError(err error) compiler.ValidationError {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		v := compiler.ValidationError{
			Field:   loadErr.Field,
			Message: loadErr.Message,
			Code:    loadErr.Code,
		}
		if loadErr.Pos.IsValid() {
			v.Line = loadErr.Pos.Line()
		}
		return v
	}
	return compiler.ValidationError{Message: err.Error(), Code: ErrCodeGeneric}
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ All specs valid (%d monitor(s))\n", result.Monitors)
	printWarnings(formatter, result.Warnings)
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	msg := fmt.Sprintf("validation failed with %d error(s)", len(result.Errors))
	if formatter.JSON() {
		first := result.Errors[0]
		if err := formatter.Failure(first.Code, first.Message, result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range result.Errors {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		if err.Field != "" {
			fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
		} else {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
		}
	}
	printWarnings(formatter, result.Warnings)

	return NewExitError(ExitFailure, msg)
}

func printWarnings(formatter *OutputFormatter, warnings []compiler.Warning) {
	for _, w := range warnings {
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n", w.Level, w.Monitor, w.Message)
	}
}

// ValidateSpecsDir validates all specs in a directory and returns every
// validation error. The error return is set only when the directory
// could not be loaded.
func ValidateSpecsDir(specsDir string) ([]compiler.ValidationError, error) {
	loadResult, loadErrors := LoadSpecs(specsDir, LoadModeCollectAll)
	if loadResult == nil {
		return nil, loadErrors[0]
	}
	var out []compiler.ValidationError
	for _, err := range loadErrors {
		out = append(out, toValidationError(err))
	}
	return out, nil
}
