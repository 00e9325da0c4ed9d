package engine

import "github.com/burntcarrot/smartshare/ot"

// entry is one local edit not yet acknowledged. Rebasing may split an edit, so
// an entry holds a list.
type entry struct {
	changes []ot.TextModification

	sent bool

	// baseRevision is the confirmed revision the entry was sent against.
	baseRevision int
}

// pendingQueue holds the local edits the peer has not acknowledged yet, in
// order. Sent entries always precede unsent ones.
type pendingQueue struct {
	entries []entry
}

func (q *pendingQueue) push(m ot.TextModification) {
	q.entries = append(q.entries, entry{changes: []ot.TextModification{m}})
}

func (q *pendingQueue) len() int {
	return len(q.entries)
}

// inflight reports whether an update is awaiting its ack.
func (q *pendingQueue) inflight() bool {
	return len(q.entries) > 0 && q.entries[0].sent
}

// inflightChanges returns the changes of the update awaiting its ack.
func (q *pendingQueue) inflightChanges() []ot.TextModification {
	var out []ot.TextModification
	for _, e := range q.entries {
		if e.sent {
			out = append(out, e.changes...)
		}
	}
	return out
}

// flush marks every unsent entry as sent against base and returns their changes.
func (q *pendingQueue) flush(base int) []ot.TextModification {
	var out []ot.TextModification
	for i := range q.entries {
		if q.entries[i].sent {
			continue
		}
		q.entries[i].sent = true
		q.entries[i].baseRevision = base
		out = append(out, q.entries[i].changes...)
	}
	return out
}

// ackThrough removes the sent entries whose base revision is at most rev and
// returns their changes.
func (q *pendingQueue) ackThrough(rev int) []ot.TextModification {
	var acked []ot.TextModification
	kept := q.entries[:0]
	for _, e := range q.entries {
		if e.sent && e.baseRevision <= rev {
			acked = append(acked, e.changes...)
			continue
		}
		kept = append(kept, e)
	}
	q.entries = kept
	return acked
}

// rebase transforms every entry against remote, which was applied first by
// the peer, and returns remote rebased past every entry.
func (q *pendingQueue) rebase(unit ot.OffsetUnit, remote []ot.TextModification) []ot.TextModification {
	for i := range q.entries {
		remote, q.entries[i].changes = ot.TransformPatch(unit, remote, q.entries[i].changes, true)
	}
	return remote
}

// changes returns every pending change in order.
func (q *pendingQueue) changes() []ot.TextModification {
	var out []ot.TextModification
	for _, e := range q.entries {
		out = append(out, e.changes...)
	}
	return out
}

func (q *pendingQueue) clear() {
	q.entries = nil
}

func (q *pendingQueue) clone() *pendingQueue {
	c := &pendingQueue{entries: make([]entry, len(q.entries))}
	for i, e := range q.entries {
		e.changes = append([]ot.TextModification(nil), e.changes...)
		c.entries[i] = e
	}
	return c
}
