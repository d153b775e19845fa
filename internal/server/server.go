// Package server exposes a local artifact store over the HTTP cache
// contract, so one machine's store can back another machine's remote tier.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.trai.ch/memo/internal/core/ports"
)

// Server speaks HEAD/GET/PUT /cache/{digest} plus POST /analytics on top
// of a ports.LocalStore.
type Server struct {
	store ports.LocalStore
	log   ports.Logger
	http  *http.Server
}

// New creates a server listening on addr once Run is called.
func New(addr string, store ports.LocalStore, log ports.Logger) *Server {
	s := &Server{store: store, log: log}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler, also usable without Run for
// in-process testing.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("HEAD /cache/{digest}", s.handleHas)
	mux.HandleFunc("GET /cache/{digest}", s.handleGet)
	mux.HandleFunc("PUT /cache/{digest}", s.handlePut)
	mux.HandleFunc("POST /analytics", s.handleAnalytics)
	return s.versioned(mux)
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info(fmt.Sprintf("cache server listening on %s", s.http.Addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}
