package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted trace with the verdicts it must produce.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are named after it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs is the directory of CUE monitors to verify against.
	// Relative paths are resolved against the scenario file's directory.
	Specs string `yaml:"specs"`

	// RunID is an optional fixed run id. If empty, "test-run-default".
	RunID string `yaml:"run_id,omitempty"`

	// StopOnError aborts the run at the first violation.
	StopOnError bool `yaml:"stop_on_error,omitempty"`

	// MaxStates overrides the engine's state quota when positive.
	MaxStates int `yaml:"max_states,omitempty"`

	// Events is the trace, in order.
	Events []EventStep `yaml:"events"`

	// Assertions are checked after the run has ended.
	Assertions []Assertion `yaml:"assertions"`
}

// EventStep is one event of a scenario trace.
type EventStep struct {
	// Event is the event name.
	Event string `yaml:"event"`

	// Args are the event arguments. Values are converted to ir.Value.
	Args map[string]any `yaml:"args,omitempty"`

	// Seq optionally pins the event's seq. It must be greater than every
	// seq before it; gaps are allowed.
	Seq int64 `yaml:"seq,omitempty"`

	// ExpectErrors, if set, is the run's error count right after this event.
	ExpectErrors *int `yaml:"expect_errors,omitempty"`
}

// Assertion is a check on the ended run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Count is the expected error count (error_count).
	Count *int `yaml:"count,omitempty"`

	// Monitor scopes violation, fact and during assertions. For facts an
	// empty monitor searches every monitor.
	Monitor string `yaml:"monitor,omitempty"`

	// Kind, Message and Seq select a violation; unset fields match anything.
	// Seq 0 selects violations reported at the end of the run.
	Kind    string `yaml:"kind,omitempty"`
	Message string `yaml:"message,omitempty"`
	Seq     *int64 `yaml:"seq,omitempty"`

	// Fact and Where form a fact pattern (fact_present, fact_absent).
	// Where values are literals.
	Fact  string         `yaml:"fact,omitempty"`
	Where map[string]any `yaml:"where,omitempty"`

	// During names an interval (during_on). On defaults to true.
	During string `yaml:"during,omitempty"`
	On     *bool  `yaml:"on,omitempty"`
}

// Assertion type constants.
const (
	AssertErrorCount  = "error_count"
	AssertViolation   = "violation"
	AssertFactPresent = "fact_present"
	AssertFactAbsent  = "fact_absent"
	AssertDuringOn    = "during_on"
)

// LoadScenario reads a scenario file, resolving its specs directory
// against the file's own directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving a relative specs directory against basePath.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Specs != "" && !filepath.IsAbs(scenario.Specs) && basePath != "" {
		scenario.Specs = filepath.Join(basePath, scenario.Specs)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Specs == "" {
		return fmt.Errorf("specs directory is required")
	}
	info, err := os.Stat(s.Specs)
	if err != nil {
		return fmt.Errorf("specs directory not found: %s", s.Specs)
	}
	if !info.IsDir() {
		return fmt.Errorf("specs is not a directory: %s", s.Specs)
	}

	if len(s.Events) == 0 {
		return fmt.Errorf("events list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.MaxStates < 0 {
		return fmt.Errorf("max_states must be non-negative")
	}

	var lastSeq int64
	for i, step := range s.Events {
		if step.Event == "" {
			return fmt.Errorf("events[%d]: event is required", i)
		}
		if step.Seq < 0 {
			return fmt.Errorf("events[%d]: seq must be positive", i)
		}
		if step.Seq != 0 {
			if step.Seq <= lastSeq {
				return fmt.Errorf("events[%d]: seq %d is not after %d", i, step.Seq, lastSeq)
			}
			lastSeq = step.Seq
		} else {
			lastSeq++
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertErrorCount:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for error_count", index)
		}
		if *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for error_count", index)
		}
	case AssertViolation:
		if a.Monitor == "" && a.Kind == "" && a.Message == "" && a.Seq == nil {
			return fmt.Errorf("assertions[%d]: violation needs at least one of monitor, kind, message, seq", index)
		}
	case AssertFactPresent, AssertFactAbsent:
		if a.Fact == "" {
			return fmt.Errorf("assertions[%d]: fact is required for %s", index, a.Type)
		}
	case AssertDuringOn:
		if a.Monitor == "" || a.During == "" {
			return fmt.Errorf("assertions[%d]: monitor and during are required for during_on", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
