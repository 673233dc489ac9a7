package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512
)

// HubConfig paces the stream. Zero values take the package defaults.
type HubConfig struct {
	Interval       time.Duration
	PingPeriod     time.Duration
	SendBuffer     int
	AllowedOrigins []string
}

// Hub streams simulated samples to websocket clients. The client set is owned by Run.
type Hub struct {
	cfg      HubConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader

	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	done       chan struct{}
	connected  atomic.Int64
}

type client struct {
	id      string
	caseID  string
	conn    *websocket.Conn
	send    chan []byte
	sim     *Simulator
	started time.Time
}

// NewHub returns a hub that streams once Run is started.
func NewHub(cfg HubConfig, logger *zap.Logger) *Hub {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = 30 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	h := &Hub{
		cfg:        cfg,
		logger:     logger,
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:     h.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return h
}

// Clients reports the number of connected streams.
func (h *Hub) Clients() int {
	return int(h.connected.Load())
}

// Run owns the client set until ctx is cancelled, then closes every stream.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.Interval)
	defer func() {
		ticker.Stop()
		for c := range h.clients {
			h.drop(c)
		}
		close(h.done)
		h.logger.Info("telemetry hub stopped")
	}()

	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.connected.Add(1)
			h.logger.Info("telemetry client connected",
				zap.String("client_id", c.id), zap.String("case_id", c.caseID), zap.Int("total", len(h.clients)))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.logger.Info("telemetry client disconnected",
					zap.String("client_id", c.id), zap.Int("total", len(h.clients)))
			}

		case now := <-ticker.C:
			for c := range h.clients {
				sample := c.sim.At(now.Sub(c.started))
				sample.CaseID = c.caseID
				sample.Timestamp = now.UTC()
				payload, err := json.Marshal(sample)
				if err != nil {
					h.logger.Error("encode telemetry sample", zap.Error(err))
					continue
				}
				select {
				case c.send <- payload:
				default:
					h.logger.Warn("telemetry client too slow, dropping", zap.String("client_id", c.id))
					h.drop(c)
				}
			}

		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	h.connected.Add(-1)
}

// ServeStream upgrades the request and streams a trace for caseID around baseline.
func (h *Hub) ServeStream(w http.ResponseWriter, r *http.Request, caseID string, baseline float64, seed int64) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{
		id:      uuid.NewString(),
		caseID:  caseID,
		conn:    conn,
		send:    make(chan []byte, h.cfg.SendBuffer),
		sim:     NewSimulator(baseline, seed),
		started: time.Now(),
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug("websocket write failed", zap.String("client_id", c.id), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only services control frames; clients never send data.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	pongWait := h.cfg.PingPeriod * 10 / 9
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read failed", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
