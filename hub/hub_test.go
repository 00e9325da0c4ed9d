package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/burntcarrot/smartshare/commons"
	"github.com/burntcarrot/smartshare/ot"
	"github.com/burntcarrot/smartshare/store"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// TestHubPersistsRooms checks that a room is saved when its last peer leaves
// and restored by the next join.
func TestHubPersistsRooms(t *testing.T) {
	st := store.NewMemoryStore()
	h := New(st, Config{Unit: ot.Bytes, SaveInterval: time.Hour, Logger: quietLogger()})

	room, err := h.acquire(context.Background(), "notes")
	if err != nil {
		t.Fatalf("error: %v\n", err)
	}
	c := &testClient{id: "c"}
	room.Join(c)
	data, _ := commons.Encode(commons.File{Text: "hello", Revision: 0})
	room.Deliver("c", data)
	data, _ = commons.Encode(commons.Update{Changes: []ot.TextModification{{Offset: 5, Text: "!"}}, BaseRevision: 0})
	room.Deliver("c", data)
	h.release("notes")

	if h.Rooms() != 0 {
		t.Errorf("got = %v, expected = 0\n", h.Rooms())
	}
	if !c.closed {
		t.Errorf("expected the client to be closed with the room\n")
	}

	snap, err := st.Load(context.Background(), "notes")
	if err != nil {
		t.Fatalf("error: %v\n", err)
	}
	got := []any{snap.Text, snap.Revision}
	want := []any{"hello!", 1}
	if !cmp.Equal(got, want) {
		t.Errorf("got != want; diff = %v\n", cmp.Diff(got, want))
	}

	room, err = h.acquire(context.Background(), "notes")
	if err != nil {
		t.Fatalf("error: %v\n", err)
	}
	defer h.Close()
	if room.doc.Text() != "hello!" || room.doc.Revision() != 1 || room.first != 1 {
		t.Errorf("got = (%q, %v, %v), expected = (%q, 1, 1)\n", room.doc.Text(), room.doc.Revision(), room.first, "hello!")
	}
}

func TestNewDefaults(t *testing.T) {
	h := New(store.NewMemoryStore(), Config{Unit: ot.Chars})
	defer h.Close()

	got := []any{h.cfg.Unit, h.cfg.SaveInterval, h.logger != nil, h.Rooms()}
	want := []any{ot.Chars, 10 * time.Second, true, 0}
	if !cmp.Equal(got, want) {
		t.Errorf("got != want; diff = %v\n", cmp.Diff(got, want))
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) commons.Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v\n", err)
	}
	msg, err := commons.Decode(data)
	if err != nil {
		t.Fatalf("decode %s: %v\n", data, err)
	}
	return msg
}

func writeMessage(t *testing.T, conn *websocket.Conn, msg commons.Message) {
	t.Helper()
	data, err := commons.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v\n", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v\n", err)
	}
}

func TestHubServeHTTP(t *testing.T) {
	h := New(store.NewMemoryStore(), Config{Unit: ot.Chars, Logger: quietLogger()})
	defer h.Close()

	router := mux.NewRouter()
	router.Handle("/rooms/{room}", h)
	router.HandleFunc("/healthz", h.Healthz)
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/rooms/notes"
	host, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v\n", err)
	}
	defer host.Close()
	guest, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v\n", err)
	}
	defer guest.Close()

	if got := readMessage(t, host); !cmp.Equal(got, commons.Message(commons.Declare{Unit: ot.Chars})) {
		t.Errorf("got = %v, expected a declare\n", got)
	}
	if got := readMessage(t, guest); !cmp.Equal(got, commons.Message(commons.Declare{Unit: ot.Chars})) {
		t.Errorf("got = %v, expected a declare\n", got)
	}

	writeMessage(t, host, commons.Declare{Unit: ot.Chars})
	writeMessage(t, host, commons.File{Text: "héllo", Revision: 0})
	if got := readMessage(t, guest); !cmp.Equal(got, commons.Message(commons.File{Text: "héllo", Revision: 0})) {
		t.Errorf("got = %v, expected the seeded file\n", got)
	}

	writeMessage(t, host, commons.Update{Changes: []ot.TextModification{{Offset: 5, Text: "!"}}, BaseRevision: 0})
	if got := readMessage(t, host); !cmp.Equal(got, commons.Message(commons.Ack{Revision: 1})) {
		t.Errorf("got = %v, expected an ack\n", got)
	}
	// The guest never declared, so it gets bytes.
	want := commons.Update{Changes: []ot.TextModification{{Offset: 6, Text: "!"}}, BaseRevision: 0}
	if got := readMessage(t, guest); !cmp.Equal(got, commons.Message(want)) {
		t.Errorf("got != want; diff = %v\n", cmp.Diff(got, commons.Message(want)))
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok rooms=1\n" {
		t.Errorf("got = (%v, %q), expected = (200, %q)\n", rec.Code, rec.Body.String(), "ok rooms=1\n")
	}
}
