package render

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/banshee-data/adcscope/internal/monitoring"
)

const (
	// DefaultMaxPoints caps the points per trace sent to websocket clients.
	DefaultMaxPoints = 1000

	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
	sendBuffer    = 4
)

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub pushes every presented frame to connected websocket clients as JSON.
// A client that cannot keep up misses frames rather than slowing the loop.
type Hub struct {
	MaxPoints int

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*hubClient
	closed  bool
	wg      sync.WaitGroup
}

// NewHub creates a hub decimating frames to maxPoints points per trace.
func NewHub(maxPoints int) *Hub {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	return &Hub{
		MaxPoints: maxPoints,
		upgrader: websocket.Upgrader{
			// Viewers are local dashboards; accept any origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*hubClient),
	}
}

// Present implements Display.
func (h *Hub) Present(f Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return
	}

	data, err := json.Marshal(Decimate(f, h.MaxPoints))
	if err != nil {
		monitoring.Logf("render: marshal frame: %v", err)
		return
	}
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams frames until the client goes
// away or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Debugf("render: websocket upgrade: %v", err)
		return
	}

	id := uuid.NewString()
	c := &hubClient{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[id] = c
	h.wg.Add(1)
	h.mu.Unlock()

	monitoring.Debugf("render: websocket client %s connected from %s", id, r.RemoteAddr)

	go func() {
		defer h.wg.Done()
		h.writer(c)
	}()

	// Clients never send anything meaningful; reading keeps control frames
	// flowing and tells us when the peer disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				monitoring.Debugf("render: websocket client %s: %v", id, err)
			}
			break
		}
	}
	h.remove(id)
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		close(c.send)
		delete(h.clients, id)
	}
}

func (h *Hub) writer(c *hubClient) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

// Close disconnects all clients and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
	h.mu.Unlock()
	h.wg.Wait()
}
