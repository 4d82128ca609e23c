package uci

import "fmt"

// State is a session lifecycle state.
type State int

const (
	StateUnstarted State = iota
	StateSpawned
	StateHandshakeComplete
	StateReady
	StateAwaitingResponse
	StateClosed
	StateFaulted
)

var stateNames = map[State]string{
	StateUnstarted:         "unstarted",
	StateSpawned:           "spawned",
	StateHandshakeComplete: "handshake_complete",
	StateReady:             "ready",
	StateAwaitingResponse:  "awaiting_response",
	StateClosed:            "closed",
	StateFaulted:           "faulted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFaulted
}

// allowedTransitions lists the forward edges of the lifecycle.
// Every non-terminal state may also move to Faulted or Closed.
var allowedTransitions = map[State]map[State]struct{}{
	StateUnstarted: {
		StateSpawned: {},
	},
	StateSpawned: {
		StateHandshakeComplete: {},
	},
	StateHandshakeComplete: {
		StateAwaitingResponse: {},
	},
	StateReady: {
		StateAwaitingResponse: {},
	},
	StateAwaitingResponse: {
		StateReady: {},
	},
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFaulted || to == StateClosed {
		return true
	}
	_, ok := allowedTransitions[from][to]
	return ok
}
