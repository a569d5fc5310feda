package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/tracemon/internal/ir"
)

// ScenarioNotFoundError is returned when an example's scenario file doesn't exist.
type ScenarioNotFoundError struct {
	Monitor      string
	Example      string
	ScenarioPath string
	ResolvedPath string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf(
		"monitor %s example %q references scenario file %q which does not exist (resolved to: %s)",
		e.Monitor,
		e.Example,
		e.ScenarioPath,
		e.ResolvedPath,
	)
}

// ExtractScenario resolves an example's scenario file relative to specDir.
// An example with only a description has no scenario and yields "".
func ExtractScenario(monitorName string, example ir.Example, specDir string) (string, error) {
	if example.Scenario == "" {
		return "", nil
	}

	scenarioPath := example.Scenario
	if !filepath.IsAbs(scenarioPath) {
		scenarioPath = filepath.Join(specDir, scenarioPath)
	}

	if _, err := os.Stat(scenarioPath); os.IsNotExist(err) {
		return "", &ScenarioNotFoundError{
			Monitor:      monitorName,
			Example:      example.Description,
			ScenarioPath: example.Scenario,
			ResolvedPath: scenarioPath,
		}
	}
	return scenarioPath, nil
}

// ValidationResult contains results from running monitor examples.
type ValidationResult struct {
	TotalExamples  int              `json:"total_examples"`
	TotalScenarios int              `json:"total_scenarios"`
	Passed         int              `json:"passed"`
	Failed         int              `json:"failed"`
	Skipped        int              `json:"skipped"` // Examples without scenarios
	Failures       []ExampleFailure `json:"failures,omitempty"`
}

// OK reports whether every scenario passed.
func (r *ValidationResult) OK() bool { return r.Failed == 0 }

// ExampleFailure is an example whose scenario failed to load, run or pass.
type ExampleFailure struct {
	Monitor      string `json:"monitor"`
	Example      string `json:"example"`
	ScenarioPath string `json:"scenario_path"`
	Error        string `json:"error"`
}

// ValidateExamples runs the scenario of every example in specs.
//
// For each monitor with examples:
//  1. Resolve the scenario path against specDir
//  2. Load the scenario
//  3. Run it via RunContext
//  4. Collect and report results
func ValidateExamples(ctx context.Context, specs []ir.MonitorSpec, specDir string) (*ValidationResult, error) {
	result := &ValidationResult{}

	for _, spec := range specs {
		for _, example := range spec.Examples {
			result.TotalExamples++

			fail := func(path, msg string) {
				result.Failed++
				result.Failures = append(result.Failures, ExampleFailure{
					Monitor:      spec.Name,
					Example:      example.Description,
					ScenarioPath: path,
					Error:        msg,
				})
			}

			scenarioPath, err := ExtractScenario(spec.Name, example, specDir)
			if err != nil {
				fail(example.Scenario, err.Error())
				continue
			}
			if scenarioPath == "" {
				result.Skipped++
				continue
			}
			result.TotalScenarios++

			scenario, err := LoadScenario(scenarioPath)
			if err != nil {
				fail(scenarioPath, fmt.Sprintf("failed to load scenario: %v", err))
				continue
			}

			runResult, err := RunContext(ctx, scenario)
			if err != nil {
				fail(scenarioPath, fmt.Sprintf("scenario execution failed: %v", err))
				continue
			}

			if !runResult.Pass {
				fail(scenarioPath, fmt.Sprintf("scenario assertions failed: %v", runResult.Errors))
				continue
			}

			result.Passed++
		}
	}

	return result, nil
}
