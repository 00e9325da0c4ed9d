// Package transport carries encoded messages over a WebSocket connection.
package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const writeWait = 10 * time.Second

// Conn is a WebSocket connection to a hub room. Writes are serialized; reads
// happen on the goroutine running ReadLoop.
type Conn struct {
	conn   *websocket.Conn
	logger logrus.FieldLogger

	mu sync.Mutex // guards writes

	onMessage    func([]byte)
	onDisconnect func()
}

// New wraps an established connection.
func New(conn *websocket.Conn, logger logrus.FieldLogger) *Conn {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Conn{
		conn:         conn,
		logger:       logger,
		onMessage:    func([]byte) {},
		onDisconnect: func() {},
	}
}

// Dial connects to url, retrying with exponential backoff until maxElapsed
// has passed or ctx is done.
func Dial(ctx context.Context, url string, maxElapsed time.Duration, logger logrus.FieldLogger) (*Conn, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 2 * time.Minute,
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed

	var conn *websocket.Conn
	dial := func() error {
		var err error
		conn, _, err = dialer.DialContext(ctx, url, nil)
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.WithError(err).WithField("retry_in", wait).Warn("connection failed")
	}

	if err := backoff.RetryNotify(dial, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, err
	}
	return New(conn, logger), nil
}

// Send writes one message.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// OnMessage registers the callback run for every message. It must be set
// before ReadLoop starts.
func (c *Conn) OnMessage(callback func([]byte)) {
	c.onMessage = callback
}

// OnDisconnect registers the callback run once the connection is gone. It
// must be set before ReadLoop starts.
func (c *Conn) OnDisconnect(callback func()) {
	c.onDisconnect = callback
}

// ReadLoop reads messages until the connection fails, then reports the
// disconnect.
func (c *Conn) ReadLoop() {
	defer c.onDisconnect()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.WithError(err).Error("websocket error")
			}
			return
		}
		c.onMessage(data)
	}
}

// Close says goodbye to the peer and closes the connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.mu.Unlock()

	return c.conn.Close()
}
