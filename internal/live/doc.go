// Package live feeds a running engine from websocket connections.
//
// Producers connect to /events and send one JSON event per message:
//
//	{"name": "acquire", "args": {"thread": 1, "lock": 7}}
//
// Each message is answered with an ack or an error. Accepted events are
// queued on the engine; its Run loop stamps and verifies them.
//
// Observers connect to /violations and receive every violation as it is
// reported:
//
//	{"type": "violation", "data": {"monitor": "Locks", "kind": "safety", ...}}
//
// Broadcasting never blocks the engine. A subscriber that falls behind
// loses messages rather than stalling verification.
package live
