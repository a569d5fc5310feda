// Package queryir is the fact pattern language of declarative monitors.
//
// A pattern selects facts (active declarative states) by name and field
// values and may bind fields to variables. The same Query is evaluated two
// ways:
//
//	[fact pattern] → [queryir.Select] → Eval over the live soup
//	                                  → querysql over stored snapshots
//
// Query and Predicate are sealed with marker methods so both backends can
// switch on every node type. The fragment is Select with Equals,
// BoundEquals and And; anything richer is expressed with nested find
// transitions.
package queryir
