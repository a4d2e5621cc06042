package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/rs/cors"
)

const shutdownTimeout = 5 * time.Second

// server is an HTTP server that reports the address it actually listens on.
type server struct {
	name    string
	handler http.Handler
	log     log.Logger

	mu     sync.Mutex
	srv    *http.Server
	addr   net.Addr
	closed chan struct{}
}

func newServer(name string, handler http.Handler, logger log.Logger) *server {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return &server{
		name:    name,
		handler: c.Handler(handler),
		log:     logger.New("server", name),
	}
}

// Start listens on addr and serves in the background.
func (s *server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}
	closed := make(chan struct{})

	s.mu.Lock()
	s.srv, s.addr, s.closed = srv, ln.Addr(), closed
	s.mu.Unlock()

	s.log.Info("Starting server", "addr", ln.Addr().String())
	go func() {
		defer close(closed)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Server failed", "err", err)
		}
	}()
	return nil
}

// Addr is the listening address, or nil before Start.
func (s *server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, closed := s.srv, s.closed
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(ctx)
	<-closed
	return err
}
