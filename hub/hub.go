// Package hub is the authoritative side of a session: it keeps one document
// per room, orders concurrent updates, and fans them out to every peer.
package hub

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/burntcarrot/smartshare/ot"
	"github.com/burntcarrot/smartshare/store"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// DefaultRoom is used when a request names no room.
const DefaultRoom = "default"

// Config configures a Hub.
type Config struct {
	// Unit is the offset unit rooms keep their documents in.
	Unit ot.OffsetUnit

	// SaveInterval is how often a changed room is saved.
	SaveInterval time.Duration

	Logger logrus.FieldLogger
}

// roomHandle counts the connections using a running room.
type roomHandle struct {
	room   *Room
	refs   int
	cancel context.CancelFunc
}

// Hub runs one Room per name, started on first join and stopped, then saved,
// when its last peer leaves.
type Hub struct {
	store  store.Store
	cfg    Config
	logger logrus.FieldLogger

	// Any origin may open a room.
	upgrader websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]*roomHandle
}

// New returns a hub saving rooms to st. A zero SaveInterval saves every
// ten seconds and a nil Logger logs to the standard logrus logger.
func New(st store.Store, cfg Config) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.SaveInterval <= 0 {
		cfg.SaveInterval = 10 * time.Second
	}

	return &Hub{
		store:  st,
		cfg:    cfg,
		logger: cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		rooms: make(map[string]*roomHandle),
	}
}

// acquire returns the running room called name, starting it if needed.
func (h *Hub) acquire(ctx context.Context, name string) (*Room, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rh, ok := h.rooms[name]; ok {
		rh.refs++
		return rh.room, nil
	}

	room := newRoom(name, h.cfg.Unit, h.store, h.cfg.SaveInterval, h.logger)
	if err := room.load(ctx); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	h.rooms[name] = &roomHandle{room: room, refs: 1, cancel: cancel}
	go room.Run(runCtx)

	return room, nil
}

// release drops one reference to the room. The last one stops the room and
// waits until it is saved, so that a new room of the same name loads it.
func (h *Hub) release(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rh, ok := h.rooms[name]
	if !ok {
		return
	}
	rh.refs--
	if rh.refs > 0 {
		return
	}
	rh.cancel()
	<-rh.room.done
	delete(h.rooms, name)
}

// Rooms returns how many rooms are running.
func (h *Hub) Rooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Close stops and saves every room.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for name, rh := range h.rooms {
		rh.cancel()
		<-rh.room.done
		delete(h.rooms, name)
	}
}

// ServeHTTP upgrades the request to a WebSocket and attaches it to the room
// named by the "room" route variable.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["room"]
	if name == "" {
		name = DefaultRoom
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("error upgrading connection to websocket")
		return
	}

	room, err := h.acquire(r.Context(), name)
	if err != nil {
		h.logger.WithError(err).WithField("room", name).Error("failed to open room")
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "room unavailable"))
		conn.Close()
		return
	}
	defer h.release(name)

	p := newPeer(uuid.NewString(), conn, h.logger.WithField("room", name))
	room.Join(p)

	go p.writePump()
	p.readPump(room)

	room.Leave(p.ID())
}

// Healthz reports liveness and the number of running rooms.
func (h *Hub) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "ok rooms=%d\n", h.Rooms())
}
