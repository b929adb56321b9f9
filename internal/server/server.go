// Package server hosts the HTTP services behind a host based router.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/hostrouter"
)

const (
	defaultAddr     = ":8080"
	shutdownTimeout = 10 * time.Second
)

// AnyHost routes requests whatever their Host header.
const AnyHost = "*"

type Server struct {
	*http.Server

	hostRouter hostrouter.Routes
}

// New creates a server listening on addr, ":8080" when empty.
func New(addr string) *Server {
	if addr == "" {
		addr = defaultAddr
	}

	hr := hostrouter.New()

	s := &Server{
		Server: &http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		hostRouter: hr,
	}

	r := chi.NewRouter()
	r.Mount("/", hr)
	s.Server.Handler = r

	return s
}

// RegisterDomain serves router for requests addressed to domain, or to any host with AnyHost.
func (s *Server) RegisterDomain(domain string, router chi.Router) {
	s.hostRouter.Map(domain, router)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}
