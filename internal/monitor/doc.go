// Package monitor implements the runtime-verification engine.
//
// A Monitor checks a stream of events against a specification made of
// states. Every state has a transition function from an event to an
// optional set of successor states and a finality flag. The monitor keeps
// the set of currently active states (the state soup) and advances all of
// them on every event:
//
//	soup' = (soup - fired) ∪ successors
//
// Three specification styles share this one semantics:
//
//   - Explicit state machines: user types implementing State, usually
//     delegating to a Behavior so they can carry data (facts).
//   - Temporal operators: Watch, Always, Hot, Next, WeakNext, Unless,
//     Until and During build anonymous states from a transition table.
//   - Fact queries: Exists and Find treat the soup as a fact base, so a
//     transition can branch on whether a fact of a given shape holds.
//
// # Sentinels
//
// Ok and Error are never stored in the soup. Reaching Ok closes a branch
// with no remaining obligation; reaching Error records a safety violation.
//
// # Violations
//
// Safety violations come from Error targets, liveness violations from
// non-final states left in the soup at End, invariant violations from
// registered predicates that are false after an event. Each one increments
// the error counter and invokes the violation handler. With stop-on-error
// the first violation aborts verification and Verify/End return an
// *AbortError from then on.
//
// # Concurrency
//
// A Monitor is not synchronized. Callers must serialize Verify and End;
// engine.Engine does so with a single-writer loop.
package monitor
