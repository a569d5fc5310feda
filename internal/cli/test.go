package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tracemon/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Scenarios string // directory of extra scenario files
	Update    bool   // regenerate golden files
	Filter    string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Source string   `json:"source"` // "example" or the scenario file
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Skipped   int              `json:"skipped"` // examples without a scenario
	Total     int              `json:"total"`
}

func (r *TestResult) add(s ScenarioResult) {
	r.Scenarios = append(r.Scenarios, s)
	r.Total++
	if s.Pass {
		r.Passed++
	} else {
		r.Failed++
	}
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <specs-dir>",
		Short: "Run the monitors' example scenarios",
		Long: `Run the scenarios the monitors' examples point to.

Every example with a scenario file is loaded, run against the specs and
its assertions checked. Examples without a scenario are counted as
skipped. --scenarios runs every YAML file of another directory too;
when a scenario has a golden file (golden/<name>.golden next to it) the
trace must match it byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, invalid specs)

Examples:
  tracemon test ./specs
  tracemon test ./specs --scenarios ./scenarios --filter "lock-*"
  tracemon test ./specs --scenarios ./scenarios --update`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Scenarios, "scenarios", "", "directory of additional scenario files")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenario files by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, specsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	specs, err := compileSpecs(specsDir)
	if err != nil {
		return failLoad(formatter, err)
	}

	result := TestResult{Scenarios: []ScenarioResult{}}

	examples, err := harness.ValidateExamples(ctx, specs, specsDir)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error())
	}
	result.Skipped = examples.Skipped
	failures := make(map[string][]string)
	for _, f := range examples.Failures {
		key := f.Monitor + ": " + f.Example
		failures[key] = append(failures[key], f.Error)
	}
	for _, spec := range specs {
		for _, ex := range spec.Examples {
			if ex.Scenario == "" {
				continue
			}
			key := spec.Name + ": " + ex.Description
			result.add(ScenarioResult{
				Name:   key,
				Source: "example",
				Pass:   len(failures[key]) == 0,
				Errors: failures[key],
			})
		}
	}

	if opts.Scenarios != "" {
		if _, err := os.Stat(opts.Scenarios); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("scenarios directory not found: %s", opts.Scenarios))
		}
		files, err := findScenarioFiles(opts.Scenarios, opts.Filter)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeScanError, err.Error())
		}
		for _, file := range files {
			result.add(runScenarioFile(opts, file))
		}
	}

	if formatter.JSON() {
		return outputTestJSON(formatter, result)
	}
	return outputTestText(formatter, result)
}

// findScenarioFiles finds all YAML scenario files in a directory,
// skipping golden directories.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == "golden" {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})

	return files, err
}

// runScenarioFile runs one scenario file and compares it with its golden
// file, if there is one.
func runScenarioFile(opts *TestOptions, file string) ScenarioResult {
	res := ScenarioResult{Name: filepath.Base(file), Source: file}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		res.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return res
	}
	res.Name = scenario.Name

	result, err := harness.Run(scenario)
	if err != nil {
		res.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return res
	}

	data, err := harness.MarshalSnapshot(harness.Snapshot(scenario.Name, result))
	if err != nil {
		res.Errors = []string{fmt.Sprintf("failed to marshal trace: %v", err)}
		return res
	}

	goldenPath := goldenFilePath(file)
	switch {
	case opts.Update:
		if err := os.MkdirAll(filepath.Dir(goldenPath), 0o755); err != nil {
			res.Errors = []string{fmt.Sprintf("failed to create golden directory: %v", err)}
			return res
		}
		if err := os.WriteFile(goldenPath, data, 0o644); err != nil {
			res.Errors = []string{fmt.Sprintf("failed to update golden file: %v", err)}
			return res
		}
	default:
		golden, err := os.ReadFile(goldenPath)
		switch {
		case os.IsNotExist(err):
			// assertions only
		case err != nil:
			res.Errors = []string{fmt.Sprintf("failed to read golden file: %v", err)}
			return res
		case !bytes.Equal(golden, data):
			res.Errors = append(res.Errors, "trace does not match golden file (run with --update to regenerate)")
		}
	}

	res.Errors = append(res.Errors, result.Errors...)
	res.Pass = result.Pass && len(res.Errors) == 0
	return res
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(formatter *OutputFormatter, result TestResult) error {
	if result.Failed == 0 {
		return formatter.Success(result)
	}
	msg := fmt.Sprintf("%d scenario(s) failed", result.Failed)
	if err := formatter.Failure("E_TEST_FAILED", msg, result); err != nil {
		return err
	}
	return NewExitError(ExitFailure, msg)
}

// outputTestText outputs the test result as text.
func outputTestText(formatter *OutputFormatter, result TestResult) error {
	w := formatter.Writer

	for _, s := range result.Scenarios {
		if s.Pass {
			fmt.Fprintf(w, "✓ %s\n", s.Name)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", s.Name)
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d skipped, %d total\n",
		result.Passed, result.Failed, result.Skipped, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
