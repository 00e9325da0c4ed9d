package commons

import (
	"github.com/burntcarrot/smartshare/ot"
)

// RevisionUnknown marks a revision field that was absent on the wire. The
// receiver infers it from message order.
const RevisionUnknown = -1

// Message represents a message sent over the wire. The set of messages is
// closed: Update, Declare, Error, RequestFile, File and Ack.
type Message interface {
	// Action returns the wire discriminator of the message.
	Action() Action

	isMessage()
}

// Action represents the message type.
type Action string

// Currently, smartshare supports 6 message types:
// - update (for edits made against a base revision)
// - declare (for the offset unit handshake)
// - error (for protocol violations and rejected operations)
// - request_file (for requesting the whole document)
// - file (for sending the whole document)
// - ack (for confirming applied revisions)

const (
	UpdateAction      Action = "update"
	DeclareAction     Action = "declare"
	ErrorAction       Action = "error"
	RequestFileAction Action = "request_file"
	FileAction        Action = "file"
	AckAction         Action = "ack"
)

// Update carries an ordered list of modifications, each applied to the state
// produced by the previous one.
type Update struct {
	Changes []ot.TextModification

	// BaseRevision is the revision the changes were made against.
	BaseRevision int
}

// Declare announces the offset unit used by the sender.
type Declare struct {
	Unit ot.OffsetUnit
}

// Error signals a protocol violation or a rejected operation.
type Error struct {
	Reason string
}

// RequestFile asks the peer for its whole document.
type RequestFile struct{}

// File carries a whole document.
type File struct {
	Text     string
	Revision int
}

// Ack confirms that the sender has applied everything up to Revision.
type Ack struct {
	Revision int
}

func (Update) Action() Action      { return UpdateAction }
func (Declare) Action() Action     { return DeclareAction }
func (Error) Action() Action       { return ErrorAction }
func (RequestFile) Action() Action { return RequestFileAction }
func (File) Action() Action        { return FileAction }
func (Ack) Action() Action         { return AckAction }

func (Update) isMessage()      {}
func (Declare) isMessage()     {}
func (Error) isMessage()       {}
func (RequestFile) isMessage() {}
func (File) isMessage()        {}
func (Ack) isMessage()         {}
