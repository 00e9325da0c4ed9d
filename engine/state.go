package engine

import "fmt"

// State is a state of the synchronization engine.
type State int

const (
	// Handshaking is the initial state, until the peer's offset unit is known.
	Handshaking State = iota

	// Synchronized is the steady state where updates flow both ways.
	Synchronized

	// Resyncing waits for a whole file after an error or a revision gap.
	Resyncing

	// Closed is terminal.
	Closed

	// Faulted is entered when an update cannot be applied even after transform.
	// It is left immediately for Resyncing.
	Faulted
)

func (s State) String() string {
	switch s {
	case Handshaking:
		return "handshaking"
	case Synchronized:
		return "synchronized"
	case Resyncing:
		return "resyncing"
	case Closed:
		return "closed"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
