package statusfeed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aurora-dispenser/aurora-sync/internal/logging"
)

// Path is where the feed is served.
const Path = "/status"

// Server serves a Hub on a TCP address.
type Server struct {
	hub      *Hub
	addr     string
	httpSrv  *http.Server
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer creates a server for hub listening on addr (host:port).
func NewServer(addr string, hub *Hub) *Server {
	mux := http.NewServeMux()
	mux.Handle(Path, hub)

	return &Server{
		hub:  hub,
		addr: addr,
		httpSrv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener

	logging.Info("Status feed listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", Path),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Status feed stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown disconnects subscribers and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	// Hijacked WebSocket connections are not tracked by http.Server.
	s.hub.Close()

	err := s.httpSrv.Shutdown(ctx)
	s.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to stop status feed: %w", err)
	}
	logging.Info("Status feed stopped")
	return nil
}
