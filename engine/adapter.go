package engine

import "github.com/burntcarrot/smartshare/ot"

// EditorAdapter is the host editor surface a session mirrors its document into.
type EditorAdapter interface {
	// CurrentText returns the whole buffer as the editor currently shows it.
	CurrentText() string

	// ApplyPatch replaces a span of the editor buffer. A failure is logged by
	// the engine and never changes protocol state.
	ApplyPatch(m ot.TextModification) error

	// OnLocalEdit registers the callback invoked for every edit the user makes.
	OnLocalEdit(callback func(m ot.TextModification))
}

// Sender writes one encoded message to the peer.
type Sender interface {
	Send(data []byte) error
}

// Transport carries encoded messages between a session and its peer.
type Transport interface {
	Sender

	// OnMessage registers the callback invoked for every message received.
	OnMessage(callback func(data []byte))

	// OnDisconnect registers the callback invoked once the peer is gone.
	OnDisconnect(callback func())
}
