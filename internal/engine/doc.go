// Package engine runs declarative monitors.
//
// Build turns a validated spec set into a monitor tree: every declared
// state becomes a fact type whose instances live in the monitor's soup,
// durings and invariants are registered on their monitor, and top-level
// monitors hang under a root. Engine drives that tree from an event stream.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// All verification happens in one goroutine. This ensures:
// - Events are verified in the order they were stamped
// - Reproducible run log on replay
// - Monitors need no locking
//
// Event Processing Flow:
// 1. Events enqueued to FIFO queue (websocket connections, trace readers)
// 2. Engine.Run() dequeues events one at a time
// 3. Process() stamps seq from the logical clock and records the event
// 4. The root monitor verifies the event; violations are recorded and
// published to listeners
// 5. The state quota is checked
//
// Engine.End closes the run: liveness violations, fact snapshot, status.
//
// Transition cases:
// A case applies when the event name matches, its bind arguments are
// present, its match templates hold, every if pattern and no unless_fact
// pattern matches a fact, and its find (if any) matches a fact or has an
// else. Fact patterns are evaluated with queryir against the soup as it
// was before the event.
package engine
