// Package harness runs monitors against scripted event traces.
//
// A scenario names a specs directory, a list of events and the assertions
// that must hold once the run has ended. The harness compiles the specs,
// feeds the events through a real engine.Engine backed by an in-memory
// store, ends the run and evaluates the assertions against the verdicts,
// the recorded fact snapshot and the live monitor tree.
//
// # Scenario Format
//
//	name: double_acquire
//	description: "Acquiring a held lock is a safety violation"
//	specs: ../specs            # directory, relative to the scenario file
//	run_id: scenario-double    # optional, default "test-run-default"
//	stop_on_error: false       # optional
//	events:
//	  - event: acquire
//	    args: {thread: 1, lock: 7}
//	  - event: acquire
//	    args: {thread: 2, lock: 7}
//	    seq: 10                 # optional explicit seq
//	    expect_errors: 1        # optional error count after this event
//	assertions:
//	  - type: error_count
//	    count: 2
//	  - type: violation
//	    monitor: Locks
//	    kind: safety
//	    message: lock already held
//	    seq: 10
//	  - type: fact_present
//	    monitor: Locks
//	    fact: Locked
//	    where: {l: 7}
//	  - type: during_on
//	    monitor: Locks
//	    during: Critical
//	    on: false
//
// # Assertion Types
//
//   - error_count: total violations of the run
//   - violation: some violation matches every given field
//   - fact_present / fact_absent: a fact query against the final snapshot
//   - during_on: the state of a during interval at the end of the run
//
// # Deterministic Testing
//
// Every scenario runs with a fixed run id and testutil.DeterministicClock,
// so two runs of a scenario produce identical traces and violation ids.
// RunWithGolden compares the trace with a goldie fixture.
//
// # Examples
//
// Monitors link scenarios through their examples field. ValidateExamples
// runs every linked scenario of a spec set; it backs `tracemon test`.
package harness
