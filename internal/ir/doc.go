// Package ir holds the canonical data types of tracemon: constrained
// values, events, compiled monitor specs and the records written to the
// run store.
//
// ir imports nothing internal; every other package may import it.
//
// Constraints:
//   - no float values anywhere, integers are int64
//   - JSON tags use snake_case
//   - ordering uses the logical clock (seq), never wall-clock time
//   - content-addressed ids hash RFC 8785 canonical JSON with a domain
//     prefix (see hash.go)
package ir
