// Package uci drives a chess engine under test over its text protocol.
//
// The engine is a stateful collaborator reached only through newline
// terminated commands on stdin and lines on stdout:
//
//	-> uci
//	<- uciok
//	-> position fen <position>
//	-> perft <depth> tt
//	<- depth:<d>;time:<ms>;nodes:<count>;nps:<n>
//
// Engine abstracts the transport. Process is the production implementation
// backed by a subprocess; package ucitest provides a scripted in-memory
// double.
//
// Session layers the protocol state machine on top of an Engine:
//
//	Unstarted -> Spawned -> HandshakeComplete -> Ready <-> AwaitingResponse -> Closed
//
// Faulted is terminal and reachable from every non-terminal state. A session
// faults when the engine cannot be spawned, misses the handshake, times out on
// a perft request, or exits unexpectedly. A wrong node count does not fault
// the session: the engine answered, so the next request is still meaningful.
package uci
