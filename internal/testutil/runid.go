package testutil

// FixedRunIDGenerator returns the same run id every time.
//
// Event and violation ids hash the run id, so a scenario run with a fixed
// id produces byte-identical traces and can be compared with a golden file.
// Unlike engine.FixedGenerator, which hands out a list once, this generator
// never runs out, so a scenario can be run any number of times.
//
// Thread-safety: FixedRunIDGenerator is stateless and safe for concurrent use.
type FixedRunIDGenerator struct {
	id string
}

// NewFixedRunIDGenerator creates a generator for id.
//
// The id is typically set in the scenario YAML:
//
//	run_id: "scenario-lock-order"
//
// If id is empty, Generate returns "test-run-default".
func NewFixedRunIDGenerator(id string) *FixedRunIDGenerator {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunIDGenerator{id: id}
}

// Generate returns the fixed run id. Implements engine.RunIDGenerator.
func (g *FixedRunIDGenerator) Generate() string {
	return g.id
}
