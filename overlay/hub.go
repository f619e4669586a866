// Package overlay owns the websocket transport between the bot and its browser
// overlay: a broadcast hub for the server role and a self-healing feed client
// for satellite processes consuming the event stream.
package overlay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/stream-herald/event"
	"github.com/onnwee/stream-herald/telemetry"
)

const (
	// writeWait bounds a single frame write to a client.
	writeWait = 10 * time.Second
	// pongWait is how long a client may stay silent before it is considered dead.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = 10 * time.Second
	// sendBuffer is the per-client outbound queue; a client that falls this far
	// behind is dropped rather than allowed to stall the broadcast.
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The overlay is served from a different origin in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans every published event out to all connected overlay clients. It
// implements event.Sink so the bus dispatch loop can drain straight into it.
type Hub struct {
	register   chan *hubClient
	unregister chan *hubClient
	broadcast  chan []byte
	count      chan int
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *hubClient),
		unregister: make(chan *hubClient),
		broadcast:  make(chan []byte, 64),
		count:      make(chan int),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is canceled. All membership changes and
// fan-out happen on this goroutine, so no lock is needed.
func (h *Hub) Run(ctx context.Context) {
	clients := make(map[*hubClient]struct{})
	defer func() {
		for c := range clients {
			close(c.send)
		}
		close(h.done)
		slog.Info("overlay hub stopped")
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			clients[c] = struct{}{}
			telemetry.SetOverlayClients(len(clients))
			slog.Info("overlay client connected", slog.Int("clients", len(clients)))
		case c := <-h.unregister:
			if _, ok := clients[c]; ok {
				delete(clients, c)
				close(c.send)
				telemetry.SetOverlayClients(len(clients))
				slog.Info("overlay client disconnected", slog.Int("clients", len(clients)))
			}
		case msg := <-h.broadcast:
			telemetry.TimeFunc(telemetry.BroadcastDuration, func() {
				for c := range clients {
					select {
					case c.send <- msg:
					default:
						// Slow consumer: drop it so the others keep receiving.
						delete(clients, c)
						close(c.send)
						slog.Warn("dropping slow overlay client", slog.Int("clients", len(clients)))
					}
				}
			})
			telemetry.SetOverlayClients(len(clients))
		case h.count <- len(clients):
		}
	}
}

// Broadcast serializes the event and queues it for fan-out. Satisfies event.Sink.
func (h *Hub) Broadcast(e event.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		slog.Error("marshal event", slog.Any("err", err), slog.String("type", e.Type))
		return
	}
	select {
	case h.broadcast <- data:
		telemetry.EventBroadcast()
	case <-h.done:
	}
}

// ClientCount reports the number of connected clients, for the status endpoint.
// Returns 0 once the hub has stopped.
func (h *Hub) ClientCount() int {
	select {
	case n := <-h.count:
		return n
	case <-h.done:
		return 0
	}
}

// ServeWS upgrades an overlay connection and attaches it to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.Any("err", err))
		return
	}
	c := &hubClient{conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump(h)
}

// readPump drains inbound frames. Overlay clients only send heartbeats; the
// pump exists to notice closure and to service pong handlers.
func (c *hubClient) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("overlay client read error", slog.Any("err", err))
			}
			return
		}
		// Any well-formed frame counts as liveness; content is ignored.
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &probe); err != nil {
			slog.Debug("malformed overlay frame dropped", slog.Any("err", err))
			continue
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

func (c *hubClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
