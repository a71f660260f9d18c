// apps/go-server/internal/httpserver/hub.go
//
// WebSocket fan-out for the player-facing display. Each watched game gets
// its own hub so separate sessions never see each other's events. Engines
// push events in; every connected display client gets a JSON copy. Slow or
// dead clients are dropped rather than allowed to stall the game.
//
// Hub lifecycle: a hub exists only while someone is watching. Broadcasting
// to an unwatched game is a cheap no-op — no hub, no goroutine. When the
// last watcher leaves (or gets dropped), run() removes the hub from the
// manager and exits.

package httpserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/treliann/simon/apps/go-server/internal/game"
)

const (
	writeWait      = 5 * time.Second
	sendBufferSize = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// client is one connected display.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// hub fans events out to the clients watching one game.
type hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{} // closed when run() exits
	clients    map[*client]bool
	onEmpty    func() // removes this hub from its manager
}

func newHub(onEmpty func()) *hub {
	return &hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
		clients:    make(map[*client]bool),
		onEmpty:    onEmpty,
	}
}

// run owns the client set. It exits once the hub has had a watcher and lost
// its last one, removing itself from the manager on the way out.
func (h *hub) run() {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			if len(h.clients) == 0 {
				h.onEmpty()
				return
			}
		case msg := <-h.broadcast:
			dropped := false
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Client can't keep up with playback; cut it loose.
					delete(h.clients, c)
					close(c.send)
					dropped = true
				}
			}
			if dropped && len(h.clients) == 0 {
				h.onEmpty()
				return
			}
		}
	}
}

// add registers a client, reporting false if the hub already shut down (the
// caller then grabs a fresh hub and retries).
func (h *hub) add(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// remove unregisters a client; safe even if the hub has already exited.
func (h *hub) remove(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// hubManager holds a hub per watched game ID, so each watched game is its
// own isolated session.
type hubManager struct {
	mu   sync.Mutex
	hubs map[string]*hub
}

func newHubManager() *hubManager {
	return &hubManager{hubs: make(map[string]*hub)}
}

// getHub returns the game's hub, creating and starting one if needed.
// Only the watch handler calls this; broadcasts never materialize a hub.
func (hm *hubManager) getHub(gameID string) *hub {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if h, ok := hm.hubs[gameID]; ok {
		return h
	}
	var h *hub
	h = newHub(func() {
		hm.mu.Lock()
		// A fresh hub may already have replaced this one; only reap ourselves.
		if hm.hubs[gameID] == h {
			delete(hm.hubs, gameID)
		}
		hm.mu.Unlock()
	})
	hm.hubs[gameID] = h
	go h.run()
	return h
}

// count reports how many hubs are live (test hook).
func (hm *hubManager) count() int {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	return len(hm.hubs)
}

// Broadcast pushes one engine event to the displays watching the game.
// A game nobody is watching has no hub, and the event is simply dropped.
func (hm *hubManager) Broadcast(gameID string, ev game.Event) {
	hm.mu.Lock()
	h := hm.hubs[gameID]
	hm.mu.Unlock()
	if h == nil {
		return
	}

	msg, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("marshal display event")
		return
	}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	default:
		// Display lagging behind playback; dropping a frame beats blocking
		// the engine's timer callback.
		log.Warn().Str("gameId", gameID).Msg("display event dropped")
	}
}

// serveWatch upgrades the request and attaches the client to the game's hub.
func (hm *hubManager) serveWatch(w http.ResponseWriter, r *http.Request, gameID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}
	// Retry once past a hub that shut down between lookup and registration.
	var h *hub
	for {
		h = hm.getHub(gameID)
		if h.add(c) {
			break
		}
	}

	go c.writePump()
	c.readPump(h)
}

// writePump serializes writes to the connection (gorilla allows only one
// concurrent writer).
func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump discards inbound frames; the display is read-only. It exists to
// notice the peer going away.
func (c *client) readPump(h *hub) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
