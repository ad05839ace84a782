// ABOUTME: Status API: websocket push of pipeline snapshots for local tooling
// ABOUTME: One upgrader, a client registry, broadcast on every monitor tick
package statusapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidepool-labs/urtp-streamer/internal/pipeline"
)

// wireSnapshot is the JSON shape pushed to connected clients; it mirrors
// pipeline.Snapshot but keeps the wire format independent of internal field
// names.
type wireSnapshot struct {
	At time.Time `json:"at"`

	PoolSize      int `json:"pool_size"`
	PoolAvailable int `json:"pool_available"`

	GainShift         int `json:"gain_shift"`
	GainUnusedBitsMin int `json:"gain_unused_bits_min"`

	SenderState    string `json:"sender_state"`
	SentDatagrams  int64  `json:"sent_datagrams"`
	SendFailures   int64  `json:"send_failures"`
	LastSendMicros int64  `json:"last_send_micros"`
}

func toWire(s pipeline.Snapshot) wireSnapshot {
	return wireSnapshot{
		At:                s.At,
		PoolSize:          s.PoolSize,
		PoolAvailable:     s.PoolAvailable,
		GainShift:         s.GainShift,
		GainUnusedBitsMin: s.GainUnusedBitsMin,
		SenderState:       s.SenderState.String(),
		SentDatagrams:     s.SentDatagrams,
		SendFailures:      s.SendFailures,
		LastSendMicros:    s.LastSendElapsed.Microseconds(),
	}
}

// Server exposes a single websocket endpoint that pushes every monitor
// snapshot to all currently-connected clients. It is local monitoring
// tooling, not part of the URTP wire protocol itself.
type Server struct {
	addr     string
	monitor  *pipeline.Monitor
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}

	httpServer *http.Server
}

// NewServer creates a status API bound to addr (host:port), pushing
// snapshots from monitor.
func NewServer(addr string, monitor *pipeline.Monitor) *Server {
	return &Server{
		addr:    addr,
		monitor: monitor,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Run serves the websocket endpoint and relays snapshots until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleWebSocket)

	s.httpServer = &http.Server{Addr: s.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	go s.relay(ctx)

	select {
	case <-ctx.Done():
		s.httpServer.Close()
		return nil
	case err := <-errCh:
		return fmt.Errorf("statusapi: %w", err)
	}
}

func (s *Server) relay(ctx context.Context) {
	snapshots := s.monitor.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			s.broadcast(toWire(snap))
		}
	}
}

func (s *Server) broadcast(snap wireSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("statusapi: marshal snapshot: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(s.clients, conn)
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("statusapi: upgrade failed: %v", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	// Clients are receive-only; drain their reads so the underlying
	// connection notices a close.
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
