package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"CoinPull/internal/domain/models"
	drepo "CoinPull/internal/domain/repository"
	xlogger "CoinPull/pkg/logger"
)

const (
	clientBuffer = 16
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
)

// ProgressHub fans collector progress out to websocket clients. A client
// whose buffer is full is dropped rather than slowing the collector.
type ProgressHub struct {
	logger   *xlogger.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*hubClient]struct{}
	last    *models.Progress
}

type hubClient struct {
	conn *websocket.Conn
	send chan models.Progress
	once sync.Once
}

func (c *hubClient) close() {
	c.once.Do(func() { close(c.send) })
}

func NewProgressHub(logger *xlogger.Logger) *ProgressHub {
	return &ProgressHub{
		logger:  logger,
		clients: make(map[*hubClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

var _ drepo.ProgressSink = (*ProgressHub)(nil)

func (h *ProgressHub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/progress", h.Serve)
}

// OnProgress broadcasts p to every connected client.
func (h *ProgressHub) OnProgress(p models.Progress) {
	h.mu.Lock()
	defer h.mu.Unlock()

	last := p
	h.last = &last
	for c := range h.clients {
		select {
		case c.send <- p:
		default:
			h.logger.Warn("progress client too slow, dropping")
			delete(h.clients, c)
			c.close()
		}
	}
}

// Clients returns the number of connected clients.
func (h *ProgressHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Serve upgrades the request and streams progress events as JSON. A new
// client first receives the latest event, if any.
func (h *ProgressHub) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}

	client := &hubClient{conn: conn, send: make(chan models.Progress, clientBuffer)}
	h.mu.Lock()
	if h.last != nil {
		client.send <- *h.last
	}
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("progress client connected", xlogger.String("remote", c.RealIP()))

	go h.readLoop(client)
	h.writeLoop(client)
	return nil
}

// readLoop only services control frames; it ends when the peer goes away.
func (h *ProgressHub) readLoop(c *hubClient) {
	defer h.remove(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *ProgressHub) writeLoop(c *hubClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case p, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(p); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

func (h *ProgressHub) remove(c *hubClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// Close disconnects every client.
func (h *ProgressHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}
