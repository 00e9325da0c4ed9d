package hub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/burntcarrot/smartshare/commons"
	"github.com/burntcarrot/smartshare/ot"
	"github.com/burntcarrot/smartshare/store"
	"github.com/sirupsen/logrus"
)

// Client is a room's view of a connected peer.
type Client interface {
	ID() string

	// Send queues data for the peer. It reports false when the peer cannot
	// keep up, in which case the room drops it.
	Send(data []byte) bool

	// Close is called once the room no longer talks to the peer.
	Close()
}

// member is a client plus what the room knows about it.
type member struct {
	client   Client
	unit     ot.OffsetUnit
	declared bool

	// acked is the latest revision the peer is known to hold.
	acked int

	// refused is set when the room turned down the peer's file. The peer's
	// updates are measured against that file, so they are refused too until
	// it asks for the room's.
	refused bool
}

// historyEntry is one applied modification, kept to transform late updates.
type historyEntry struct {
	change  ot.TextModification
	inverse ot.TextModification
}

type opKind int

const (
	joinOp opKind = iota
	leaveOp
	messageOp
)

type op struct {
	kind   opKind
	client Client
	id     string
	data   []byte
}

// Room is the authoritative copy of one shared document. All of its state is
// owned by the goroutine running Run.
type Room struct {
	name   string
	doc    *ot.Document
	logger logrus.FieldLogger

	// history[i] moved the document from revision first+i to first+i+1.
	history []historyEntry
	first   int

	members map[string]*member

	store        store.Store
	saveInterval time.Duration
	dirty        bool

	ops  chan op
	done chan struct{}
}

func newRoom(name string, unit ot.OffsetUnit, st store.Store, saveInterval time.Duration, logger logrus.FieldLogger) *Room {
	return &Room{
		name:         name,
		doc:          ot.NewDocument(unit),
		logger:       logger.WithField("room", name),
		members:      make(map[string]*member),
		store:        st,
		saveInterval: saveInterval,
		ops:          make(chan op, 256),
		done:         make(chan struct{}),
	}
}

// load restores the last saved snapshot, if any.
func (r *Room) load(ctx context.Context) error {
	snap, err := r.store.Load(ctx, r.name)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load room %s: %w", r.name, err)
	}
	r.doc.Reset(snap.Text, snap.Revision)
	r.first = snap.Revision
	r.logger.WithField("revision", snap.Revision).Info("room restored")
	return nil
}

func (r *Room) save(ctx context.Context) {
	if !r.dirty {
		return
	}
	snap := store.Snapshot{Room: r.name, Text: r.doc.Text(), Revision: r.doc.Revision(), UpdatedAt: time.Now().UTC()}
	if err := r.store.Save(ctx, snap); err != nil {
		r.logger.WithError(err).Error("failed to save room")
		return
	}
	r.dirty = false
}

// Run processes joins, leaves and messages until ctx is cancelled, then
// saves the room and closes every remaining client.
func (r *Room) Run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.saveInterval)
	defer ticker.Stop()

	for {
		select {
		case o := <-r.ops:
			r.apply(o)
		case <-ticker.C:
			r.save(ctx)
		case <-ctx.Done():
			r.stop()
			return
		}
	}
}

func (r *Room) apply(o op) {
	switch o.kind {
	case joinOp:
		r.join(o.client)
	case leaveOp:
		r.leave(o.id)
	case messageOp:
		r.handle(o.id, o.data)
	}
}

// stop handles what is already queued, saves, and closes every client.
func (r *Room) stop() {
	for drained := false; !drained; {
		select {
		case o := <-r.ops:
			r.apply(o)
		default:
			drained = true
		}
	}

	// The run context is done, so save with a fresh one.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.save(ctx)

	for id := range r.members {
		r.leave(id)
	}
}

func (r *Room) submit(o op) {
	select {
	case r.ops <- o:
	case <-r.done:
	}
}

// Join adds c to the room.
func (r *Room) Join(c Client) {
	r.submit(op{kind: joinOp, client: c})
}

// Leave removes the client with the given ID.
func (r *Room) Leave(id string) {
	r.submit(op{kind: leaveOp, id: id})
}

// Deliver hands an encoded message from a client to the room.
func (r *Room) Deliver(id string, data []byte) {
	r.submit(op{kind: messageOp, id: id, data: data})
}

func (r *Room) join(c Client) {
	m := &member{client: c, unit: ot.Bytes, acked: r.doc.Revision()}
	r.members[c.ID()] = m
	r.logger.WithFields(logrus.Fields{"peer": c.ID(), "peers": len(r.members)}).Info("peer joined")
	r.send(m, commons.Declare{Unit: r.doc.Unit()})
}

func (r *Room) leave(id string) {
	m, ok := r.members[id]
	if !ok {
		return
	}
	delete(r.members, id)
	m.client.Close()
	r.logger.WithFields(logrus.Fields{"peer": id, "peers": len(r.members)}).Info("peer left")
	r.trim()
}

// send encodes msg for m, dropping m if its buffer is full.
func (r *Room) send(m *member, msg commons.Message) {
	data, err := commons.Encode(msg)
	if err != nil {
		r.logger.WithError(err).Error("failed to encode message")
		return
	}
	if !m.client.Send(data) {
		r.logger.WithField("peer", m.client.ID()).Warn("peer too slow, dropping it")
		r.leave(m.client.ID())
	}
}

func (r *Room) reject(m *member, format string, args ...any) {
	reason := fmt.Sprintf(format, args...)
	r.logger.WithFields(logrus.Fields{"peer": m.client.ID(), "reason": reason}).Warn("rejected message")
	r.send(m, commons.Error{Reason: reason})
}

func (r *Room) handle(id string, data []byte) {
	m, ok := r.members[id]
	if !ok {
		return
	}

	msg, err := commons.Decode(data)
	if err != nil {
		r.reject(m, "%v", err)
		return
	}

	switch msg := msg.(type) {
	case commons.Update:
		if m.refused {
			r.reject(m, "update against a refused file; request the room's file first")
			return
		}
		r.handleUpdate(m, msg)
	case commons.Declare:
		if !m.declared {
			m.unit, m.declared = msg.Unit, true
		} else if msg.Unit != m.unit {
			r.reject(m, "offset unit is already %s", m.unit)
		}
	case commons.Error:
		r.logger.WithFields(logrus.Fields{"peer": id, "reason": msg.Reason}).Warn("peer reported an error")
	case commons.RequestFile:
		m.refused = false
		r.send(m, commons.File{Text: r.doc.Text(), Revision: r.doc.Revision()})
	case commons.File:
		r.handleFile(m, msg)
	case commons.Ack:
		if msg.Revision != commons.RevisionUnknown && msg.Revision <= r.doc.Revision() && msg.Revision > m.acked {
			m.acked = msg.Revision
			r.trim()
		}
	}
}

// textAt rebuilds the document as it was at rev by undoing newer history.
func (r *Room) textAt(rev int) (string, error) {
	text := r.doc.Text()
	for i := len(r.history) - 1; i >= rev-r.first; i-- {
		var err error
		if text, err = ot.Apply(r.doc.Unit(), text, r.history[i].inverse); err != nil {
			return "", err
		}
	}
	return text, nil
}

func (r *Room) handleUpdate(m *member, u commons.Update) {
	base := u.BaseRevision
	if base == commons.RevisionUnknown {
		base = m.acked
	}
	if base > r.doc.Revision() || base < r.first {
		r.reject(m, "base revision %d outside [%d, %d]", base, r.first, r.doc.Revision())
		return
	}

	text, err := r.textAt(base)
	if err != nil {
		r.logger.WithError(err).Error("history does not rewind")
		r.reject(m, "cannot rebuild revision %d", base)
		return
	}
	changes, err := ot.ConvertAll(text, u.Changes, m.unit, r.doc.Unit())
	if err != nil {
		r.reject(m, "%v", err)
		return
	}

	concurrent := make([]ot.TextModification, 0, r.doc.Revision()-base)
	for _, h := range r.history[base-r.first:] {
		concurrent = append(concurrent, h.change)
	}
	_, changes = ot.TransformPatch(r.doc.Unit(), concurrent, changes, true)

	before, beforeRev := r.doc.Text(), r.doc.Revision()
	inverses, err := r.doc.ApplyAll(changes)
	if err != nil {
		r.reject(m, "%v", err)
		return
	}
	for i, c := range changes {
		r.history = append(r.history, historyEntry{change: c, inverse: inverses[i]})
	}
	r.dirty = true

	m.acked = r.doc.Revision()
	r.send(m, commons.Ack{Revision: r.doc.Revision()})

	r.logger.WithFields(logrus.Fields{"peer": m.client.ID(), "revision": r.doc.Revision(), "changes": len(changes)}).Debug("applied update")

	if len(changes) > 0 {
		for id, other := range r.members {
			if id == m.client.ID() {
				continue
			}
			converted, err := ot.ConvertAll(before, changes, r.doc.Unit(), other.unit)
			if err != nil {
				r.logger.WithError(err).Error("failed to convert broadcast")
				continue
			}
			r.send(other, commons.Update{Changes: converted, BaseRevision: beforeRev})
		}
	}

	r.trim()
}

// handleFile seeds an empty room with the sender's document.
func (r *Room) handleFile(m *member, f commons.File) {
	if r.doc.Revision() != 0 || r.doc.Text() != "" {
		m.refused = true
		r.reject(m, "room %s already has a document", r.name)
		return
	}

	r.doc.Reset(f.Text, 0)
	r.history, r.first = nil, 0
	r.dirty = true
	r.logger.WithField("peer", m.client.ID()).Info("room seeded")

	for id, other := range r.members {
		if id != m.client.ID() {
			r.send(other, commons.File{Text: f.Text, Revision: 0})
		}
	}
}

// trim forgets history every member already holds.
func (r *Room) trim() {
	if len(r.members) == 0 {
		return
	}
	low := r.doc.Revision()
	for _, m := range r.members {
		low = min(low, m.acked)
	}
	if n := low - r.first; n > 0 {
		r.history = append([]historyEntry(nil), r.history[n:]...)
		r.first = low
	}
}
