package engine

import (
	"sync"

	"github.com/burntcarrot/smartshare/ot"
)

type eventKind int

const (
	remoteMessage eventKind = iota
	localEdit
	disconnect
)

// event is one unit of work for a session.
type event struct {
	kind eventKind
	data []byte
	mod  ot.TextModification
}

// queue is an unbounded FIFO of events. Producers never block, so adapter and
// transport callbacks stay cheap; notify holds at most one wakeup.
type queue struct {
	mu     sync.Mutex
	events []event
	notify chan struct{}
}

func newQueue() *queue {
	return &queue{notify: make(chan struct{}, 1)}
}

func (q *queue) push(ev event) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// drain removes and returns every queued event in order.
func (q *queue) drain() []event {
	q.mu.Lock()
	defer q.mu.Unlock()

	events := q.events
	q.events = nil
	return events
}
