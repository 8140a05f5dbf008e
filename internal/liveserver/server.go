// Package liveserver publishes a running backtest's bars/annotation/trades
// to a browser dashboard over HTTP+WebSocket, grounded on an
// internal/api Server/Hub but retargeted at the detector's Annotation
// projection instead of an order/risk/agent event stream. This
// is the "external queue" a live-publish payload describes — here
// the queue is a websocket broadcast fanned out to every connected client.
package liveserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/atlas-desktop/ict-backtester/pkg/types"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Payload is the JSON object pushed to every connected client, matching the
// `{bars, annotation, trades, options}` shape.
type Payload struct {
	Bars        []types.Candle   `json:"bars"`
	Annotation  types.Annotation `json:"annotation"`
	Trades      []types.Trade    `json:"trades"`
	Options     types.Options    `json:"options"`
	PublishedAt time.Time        `json:"publishedAt"`
}

// client is one connected WebSocket subscriber.
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

// closeSend closes the send channel exactly once, safe to call from both
// the publisher (full-buffer drop) and the reader's disconnect cleanup.
func (c *client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Server exposes GET /snapshot (last published payload) and GET /ws (a
// live feed, one message per Publish call) over gorilla/mux, wrapped in
// rs/cors so a browser dashboard on a different origin can connect.
type Server struct {
	mu       sync.RWMutex
	logger   *zap.Logger
	router   *mux.Router
	upgrader websocket.Upgrader
	clients  map[*client]bool
	last     *Payload
	httpSrv  *http.Server
}

// NewServer constructs a Server bound to addr. metricsHandler, when
// non-nil, is mounted at GET /metrics on the same router.
func NewServer(logger *zap.Logger, addr string, metricsHandler http.Handler) *Server {
	s := &Server{
		logger:  logger,
		router:  mux.NewRouter(),
		clients: make(map[*client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	s.router.HandleFunc("/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	if metricsHandler != nil {
		s.router.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}

	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)

	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	return s
}

// Start runs the HTTP server, blocking until it stops or errors. Intended
// to be called in its own goroutine; the deterministic driver never waits
// on it (spec's live-publish boundary is best-effort/non-blocking).
func (s *Server) Start() error {
	s.logger.Info("starting live publish server", zap.String("addr", s.httpSrv.Addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("liveserver: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down, closing all open WebSocket
// connections first.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	for c := range s.clients {
		c.closeSend()
		c.conn.Close()
		delete(s.clients, c)
	}
	s.mu.Unlock()

	return s.httpSrv.Shutdown(ctx)
}

// Publish stores p as the latest snapshot and fans it out to every
// connected WebSocket client. A client whose send buffer is full is
// dropped rather than blocking the publisher. cmd/backtester calls it once,
// with the final snapshot, after the run completes.
func (s *Server) Publish(p Payload) {
	p.PublishedAt = p.PublishedAt.UTC()

	body, err := json.Marshal(p)
	if err != nil {
		s.logger.Warn("failed to marshal live payload", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.last = &p
	for c := range s.clients {
		select {
		case c.send <- body:
		default:
			c.closeSend()
			delete(s.clients, c)
		}
	}
	s.mu.Unlock()
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if last == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	json.NewEncoder(w).Encode(last)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 16)}

	s.mu.Lock()
	s.clients[c] = true
	last := s.last
	s.mu.Unlock()

	if last != nil {
		if body, err := json.Marshal(last); err == nil {
			c.send <- body
		}
	}

	go s.writePump(c)
	go s.readPump(c)
}

// writePump drains a client's send channel onto its connection until the
// channel is closed by Publish or Stop.
func (s *Server) writePump(c *client) {
	defer c.conn.Close()
	for body := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump discards inbound messages (this feed is publish-only) and
// deregisters the client once the connection drops.
func (s *Server) readPump(c *client) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		c.closeSend()
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
