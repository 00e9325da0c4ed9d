// Package engine implements the per-session synchronization state machine
// that keeps a local editor buffer convergent with an authoritative peer.
package engine

import (
	"errors"
	"fmt"

	"github.com/burntcarrot/smartshare/commons"
	"github.com/burntcarrot/smartshare/ot"
	"github.com/sirupsen/logrus"
)

var (
	// ErrDisconnected is returned by Session.Run once the transport is gone.
	ErrDisconnected = errors.New("transport disconnected")

	// ErrAdapterApply indicates that the editor rejected a patch.
	ErrAdapterApply = errors.New("adapter apply failure")
)

// Config configures an Engine.
type Config struct {
	// Unit is the offset unit of the local editor.
	Unit ot.OffsetUnit

	// Join asks the peer for its document instead of sharing the editor's.
	Join bool

	Logger logrus.FieldLogger
}

// Engine is the synchronization state machine of one session. It is not safe
// for concurrent use: Session feeds it one event at a time.
type Engine struct {
	adapter EditorAdapter
	sender  Sender
	logger  logrus.FieldLogger
	join    bool
	state   State

	local    ot.OffsetUnit
	remote   ot.OffsetUnit
	declared bool

	// doc mirrors the editor: shadow with every pending edit applied.
	doc *ot.Document

	// shadow is the last state confirmed by the peer.
	shadow *ot.Document

	pending *pendingQueue
}

// New returns an engine in the Handshaking state.
func New(adapter EditorAdapter, sender Sender, cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Engine{
		adapter: adapter,
		sender:  sender,
		logger:  logger,
		join:    cfg.Join,
		state:   Handshaking,
		local:   cfg.Unit,
		remote:  ot.Bytes,
		doc:     ot.NewDocument(cfg.Unit),
		shadow:  ot.NewDocument(cfg.Unit),
		pending: &pendingQueue{},
	}
}

// State returns the current state.
func (e *Engine) State() State {
	return e.state
}

// Text returns the local document.
func (e *Engine) Text() string {
	return e.doc.Text()
}

// Revision returns the last revision confirmed by the peer.
func (e *Engine) Revision() int {
	return e.shadow.Revision()
}

// Pending returns how many local edits await an ack.
func (e *Engine) Pending() int {
	return e.pending.len()
}

// RemoteUnit returns the offset unit the peer declared, Bytes if it never did.
func (e *Engine) RemoteUnit() ot.OffsetUnit {
	return e.remote
}

// Start opens the handshake. A joining engine asks for the peer's document,
// otherwise the editor's text is shared as revision 0.
func (e *Engine) Start() {
	e.send(commons.Declare{Unit: e.local})

	if e.join {
		e.send(commons.RequestFile{})
		return
	}

	text := e.adapter.CurrentText()
	e.doc.Reset(text, 0)
	e.shadow.Reset(text, 0)
	e.send(commons.File{Text: text, Revision: 0})
}

// Close moves the engine to Closed and discards pending edits.
func (e *Engine) Close() {
	e.state = Closed
	e.pending.clear()
	e.logger.WithField("revision", e.shadow.Revision()).Info("session closed")
}

func (e *Engine) send(msg commons.Message) {
	data, err := commons.Encode(msg)
	if err != nil {
		e.logger.WithError(err).Error("failed to encode message")
		return
	}
	if err := e.sender.Send(data); err != nil {
		e.logger.WithError(err).WithField("action", msg.Action()).Error("failed to send message")
	}
}

func (e *Engine) setState(s State) {
	if e.state != s {
		e.logger.WithFields(logrus.Fields{"from": e.state, "state": s}).Debug("state change")
	}
	e.state = s
}

// HandleMessage processes one encoded message from the peer.
func (e *Engine) HandleMessage(data []byte) {
	if e.state == Closed {
		return
	}

	msg, err := commons.Decode(data)
	if err != nil {
		e.logger.WithError(err).Warn("dropping message")
		e.send(commons.Error{Reason: err.Error()})
		return
	}

	if e.state == Handshaking {
		if d, ok := msg.(commons.Declare); ok {
			e.remote = d.Unit
			e.declared = true
			e.finishHandshake()
			return
		}
		// The peer never declares, so it speaks bytes.
		e.finishHandshake()
	}

	switch m := msg.(type) {
	case commons.Update:
		e.handleUpdate(m)
	case commons.Declare:
		e.handleDeclare(m)
	case commons.Error:
		e.handleError(m)
	case commons.RequestFile:
		e.send(commons.File{Text: e.shadow.Text(), Revision: e.shadow.Revision()})
	case commons.File:
		e.handleFile(m)
	case commons.Ack:
		e.handleAck(m)
	}
}

func (e *Engine) finishHandshake() {
	e.logger.WithFields(logrus.Fields{"local": e.local, "remote": e.remote}).Info("handshake complete")

	if e.join {
		e.setState(Resyncing)
		return
	}
	e.setState(Synchronized)
	e.flush()
}

func (e *Engine) handleDeclare(m commons.Declare) {
	if m.Unit == e.remote {
		return
	}
	e.logger.WithFields(logrus.Fields{"declared": m.Unit, "remote": e.remote}).Warn("peer redeclared its offset unit")
	e.send(commons.Error{Reason: fmt.Sprintf("offset unit is already %s", e.remote)})
}

func (e *Engine) handleError(m commons.Error) {
	e.logger.WithField("reason", m.Reason).Warn("peer reported an error")
	if e.state != Resyncing {
		e.resync()
	}
}

func (e *Engine) handleUpdate(m commons.Update) {
	if e.state != Synchronized {
		e.logger.WithField("state", e.state).Debug("ignoring update")
		return
	}

	base := m.BaseRevision
	if base == commons.RevisionUnknown {
		base = e.shadow.Revision()
	}
	if base != e.shadow.Revision() {
		e.logger.WithFields(logrus.Fields{"base": base, "revision": e.shadow.Revision()}).Warn("revision gap")
		e.resync()
		return
	}

	changes, err := ot.ConvertAll(e.shadow.Text(), m.Changes, e.remote, e.local)
	if err != nil {
		e.fault(err)
		return
	}

	shadow := e.shadow.Clone()
	if _, err := shadow.ApplyAll(changes); err != nil {
		e.fault(err)
		return
	}

	pending := e.pending.clone()
	rebased := pending.rebase(e.local, changes)

	doc := e.doc.Clone()
	if _, err := doc.ApplyAll(rebased); err != nil {
		e.fault(err)
		return
	}

	e.doc, e.shadow, e.pending = doc, shadow, pending

	for _, c := range rebased {
		e.applyToEditor(c)
	}

	e.logger.WithFields(logrus.Fields{"revision": e.shadow.Revision(), "changes": len(changes)}).Debug("applied remote update")
	e.send(commons.Ack{Revision: e.shadow.Revision()})
}

func (e *Engine) handleAck(m commons.Ack) {
	if e.state != Synchronized || !e.pending.inflight() {
		e.logger.WithFields(logrus.Fields{"state": e.state, "revision": m.Revision}).Debug("ignoring ack")
		return
	}

	rev := m.Revision
	if rev == commons.RevisionUnknown {
		rev = e.shadow.Revision() + len(e.pending.inflightChanges())
	}
	if rev < e.shadow.Revision() {
		e.logger.WithFields(logrus.Fields{"acked": rev, "revision": e.shadow.Revision()}).Warn("ack behind confirmed revision")
		e.resync()
		return
	}

	acked := e.pending.ackThrough(rev)
	if _, err := e.shadow.ApplyAll(acked); err != nil {
		e.fault(err)
		return
	}
	// The peer may count a rebased edit differently; its revision wins.
	e.shadow.Reset(e.shadow.Text(), rev)

	e.flush()
}

func (e *Engine) handleFile(m commons.File) {
	rev := m.Revision
	if rev == commons.RevisionUnknown {
		rev = 0
	}

	e.doc.Reset(m.Text, rev)
	e.shadow.Reset(m.Text, rev)
	e.pending.clear()
	e.setState(Synchronized)

	current := e.adapter.CurrentText()
	if current != m.Text {
		e.applyToEditor(ot.TextModification{Offset: 0, Delete: e.local.Len(current), Text: m.Text})
	}

	e.logger.WithField("revision", rev).Info("document replaced")
}

// HandleLocalEdit records an edit the user made in the editor.
func (e *Engine) HandleLocalEdit(m ot.TextModification) {
	// A joining editor is about to be replaced by the peer's document.
	if e.state == Closed || e.state == Resyncing || (e.state == Handshaking && e.join) {
		e.logger.WithFields(logrus.Fields{"state": e.state, "change": m}).Debug("dropping local edit")
		return
	}
	if m.IsNoop() {
		return
	}

	if err := e.doc.Apply(m); err != nil {
		e.logger.WithError(err).Warn("local edit does not fit the document")
		e.resync()
		return
	}
	e.pending.push(m)

	if e.state == Synchronized {
		e.flush()
	}
}

// flush sends the pending edits unless an update is already awaiting its ack.
func (e *Engine) flush() {
	if e.pending.inflight() || e.pending.len() == 0 {
		return
	}

	base := e.shadow.Revision()
	changes := e.pending.flush(base)
	if len(changes) == 0 {
		// Every pending edit was cancelled out by remote edits.
		e.pending.clear()
		return
	}

	converted, err := ot.ConvertAll(e.shadow.Text(), changes, e.local, e.remote)
	if err != nil {
		e.fault(err)
		return
	}
	e.send(commons.Update{Changes: converted, BaseRevision: base})
}

func (e *Engine) applyToEditor(m ot.TextModification) {
	if err := e.adapter.ApplyPatch(m); err != nil {
		e.logger.WithError(fmt.Errorf("%w: %v", ErrAdapterApply, err)).WithField("change", m).Warn("editor rejected patch")
	}
}

// fault reports an update that cannot be applied and resyncs.
func (e *Engine) fault(err error) {
	e.setState(Faulted)
	e.logger.WithError(err).Error("cannot apply update")
	e.send(commons.Error{Reason: err.Error()})
	e.resync()
}

// resync rolls the pending edits back out of the document and the editor,
// then asks the peer for its document.
func (e *Engine) resync() {
	changes := e.pending.changes()

	text := e.shadow.Text()
	inverses := make([]ot.TextModification, 0, len(changes))
	for _, c := range changes {
		inv, err := ot.Invert(e.local, text, c)
		if err != nil {
			break
		}
		text, _ = ot.Apply(e.local, text, c)
		inverses = append(inverses, inv)
	}

	for i := len(inverses) - 1; i >= 0; i-- {
		if err := e.doc.Apply(inverses[i]); err != nil {
			e.logger.WithError(err).Warn("rollback does not fit the document")
			e.doc.Reset(e.shadow.Text(), e.shadow.Revision())
			break
		}
		e.applyToEditor(inverses[i])
	}

	e.pending.clear()
	e.setState(Resyncing)
	e.send(commons.RequestFile{})
}
