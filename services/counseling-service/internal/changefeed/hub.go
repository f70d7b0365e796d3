// Package changefeed pushes appointment change notifications to connected
// browsers. Delivery is best effort: a client that cannot keep up is
// disconnected and is expected to reload.
package changefeed

import (
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/md-rashed-zaman/pastoralcare/libs/metrics"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/storage"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

type client struct {
	churchID string
	conn     *websocket.Conn
	send     chan storage.Change
}

type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *metrics.Collector

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub accepts upgrades from allowedOrigins; "*" or an empty list allows
// any origin.
func NewHub(allowedOrigins []string, logger *slog.Logger, m *metrics.Collector) *Hub {
	h := &Hub{
		logger:  logger,
		metrics: m,
		clients: make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
				return true
			}
			return slices.Contains(allowedOrigins, origin)
		},
	}
	return h
}

// Publish fans c out to every client of the same church.
func (h *Hub) Publish(c storage.Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		if cl.churchID != c.ChurchID {
			continue
		}
		select {
		case cl.send <- c:
		default:
			h.logger.Warn("dropping slow change feed client", "church_id", cl.churchID)
			h.removeLocked(cl)
		}
	}
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Serve upgrades the request and streams changes of churchID until the
// client goes away. The caller authenticates before calling it.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, churchID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "err", err)
		return
	}
	cl := &client{churchID: churchID, conn: conn, send: make(chan storage.Change, sendBuffer)}
	h.add(cl)

	go h.writePump(cl)
	h.readPump(cl)
}

func (h *Hub) add(cl *client) {
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.FeedClients.Inc()
	}
}

func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(cl)
}

func (h *Hub) removeLocked(cl *client) {
	if _, ok := h.clients[cl]; !ok {
		return
	}
	delete(h.clients, cl)
	close(cl.send)
	if h.metrics != nil {
		h.metrics.FeedClients.Dec()
	}
}

// readPump only exists to process pongs and notice disconnects; clients
// never send anything meaningful.
func (h *Hub) readPump(cl *client) {
	defer func() {
		h.remove(cl)
		_ = cl.conn.Close()
	}()
	cl.conn.SetReadLimit(512)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()
	for {
		select {
		case change, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteJSON(change); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Shutdown closes every client connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		h.removeLocked(cl)
	}
}
