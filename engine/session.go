package engine

import (
	"context"

	"github.com/burntcarrot/smartshare/ot"
)

// Session binds one engine to one editor adapter and one transport. Remote
// messages, local edits and disconnects go through a single queue, so the
// engine only ever sees one event at a time.
type Session struct {
	engine *Engine
	events *queue
}

// NewSession registers the session's callbacks on adapter and transport.
func NewSession(adapter EditorAdapter, transport Transport, cfg Config) *Session {
	s := &Session{
		engine: New(adapter, transport, cfg),
		events: newQueue(),
	}

	adapter.OnLocalEdit(func(m ot.TextModification) {
		s.events.push(event{kind: localEdit, mod: m})
	})
	transport.OnMessage(func(data []byte) {
		s.events.push(event{kind: remoteMessage, data: data})
	})
	transport.OnDisconnect(func() {
		s.events.push(event{kind: disconnect})
	})

	return s
}

// Run starts the handshake and processes events until the transport
// disconnects or ctx is cancelled. It returns ErrDisconnected or ctx.Err().
func (s *Session) Run(ctx context.Context) error {
	s.engine.Start()

	for {
		select {
		case <-ctx.Done():
			s.engine.Close()
			return ctx.Err()
		case <-s.events.notify:
		}

		for _, ev := range s.events.drain() {
			switch ev.kind {
			case remoteMessage:
				s.engine.HandleMessage(ev.data)
			case localEdit:
				s.engine.HandleLocalEdit(ev.mod)
			case disconnect:
				s.engine.Close()
				return ErrDisconnected
			}
		}
	}
}
