package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// sendBuffer is how many messages may wait for a slow peer.
	sendBuffer = 256

	writeWait      = 10 * time.Second
	maxMessageSize = 8 << 20
)

// peer is a websocket connection attached to a room.
type peer struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	logger logrus.FieldLogger

	closeOnce sync.Once
}

func newPeer(id string, conn *websocket.Conn, logger logrus.FieldLogger) *peer {
	return &peer{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		logger: logger.WithField("peer", id),
	}
}

func (p *peer) ID() string {
	return p.id
}

// Send never blocks the room.
func (p *peer) Send(data []byte) bool {
	select {
	case p.send <- data:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which closes the connection.
func (p *peer) Close() {
	p.closeOnce.Do(func() {
		close(p.send)
	})
}

// readPump hands every message to the room until the connection fails.
func (p *peer) readPump(room *Room) {
	p.conn.SetReadLimit(maxMessageSize)
	for {
		_, message, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.logger.WithError(err).Warn("websocket error")
			}
			return
		}
		room.Deliver(p.id, message)
	}
}

// writePump writes queued messages until the room closes the peer.
func (p *peer) writePump() {
	defer p.conn.Close()

	for message := range p.send {
		_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := p.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			p.logger.WithError(err).Warn("error sending message to peer")
			// The read pump fails next and the room drops the peer.
			return
		}
	}

	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = p.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
