package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
)

// echoServer echoes every message, then hangs up after the second one.
func echoServer(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v\n", err)
			return
		}
		defer conn.Close()

		for i := 0; i < 2; i++ {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	}))
}

func TestConn(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, err := Dial(context.Background(), url, time.Second, logger)
	if err != nil {
		t.Fatalf("dial: %v\n", err)
	}
	defer c.Close()

	received := make(chan string, 2)
	disconnected := make(chan struct{})
	c.OnMessage(func(data []byte) { received <- string(data) })
	c.OnDisconnect(func() { close(disconnected) })
	go c.ReadLoop()

	for _, msg := range []string{`{"action":"request_file"}`, `{"action":"ack"}`} {
		if err := c.Send([]byte(msg)); err != nil {
			t.Fatalf("send: %v\n", err)
		}
		select {
		case got := <-received:
			if got != msg {
				t.Errorf("got = %s, expected = %s\n", got, msg)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %s\n", msg)
		}
	}

	select {
	case <-disconnected:
	case <-time.After(5 * time.Second):
		t.Fatalf("expected a disconnect once the server hung up\n")
	}
}

func TestDialGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	logger, _ := test.NewNullLogger()
	if _, err := Dial(context.Background(), url, 200*time.Millisecond, logger); err == nil {
		t.Errorf("expected an error when nothing listens\n")
	}
}
