// Package stream broadcasts simulation telemetry to websocket observers.
package stream

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// Server accepts websocket observers and pushes every published payload to
// all of them. Slow or broken clients are dropped.
type Server struct {
	log zerolog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewServer builds an empty broadcaster.
func NewServer(log zerolog.Logger) *Server {
	return &Server{
		log:     log,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Serve starts an HTTP listener exposing the /ws endpoint.
func (s *Server) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()
	s.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("observer connected")
}

// Publish marshals the payload once and writes it to every observer.
func (s *Server) Publish(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Msg("marshal telemetry")
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

// Close disconnects every observer.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		conn.Close()
		delete(s.clients, conn)
	}
}
