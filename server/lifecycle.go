package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/recipebox/recipebox/errors"
	"github.com/recipebox/recipebox/logger"
)

func (s *Server) getState() ServerState {
	return ServerState(s.state.Load())
}

func (s *Server) setState(state ServerState) {
	s.state.Store(int32(state))
	s.logger.Infow("Server state changed", "new_state", state.String())
}

// ListenAndServe listens on addr and serves until Stop.
func (s *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", addr)
	}
	return s.Serve(l)
}

// Serve serves on l until Stop. It returns nil after a graceful stop.
func (s *Server) Serve(l net.Listener) error {
	hs := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = hs
	s.mu.Unlock()
	if s.getState() != ServerStateRunning {
		l.Close()
		return nil
	}

	s.logger.Infow("Server ready", logger.FieldAddr, l.Addr().String())
	if err := hs.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serve http")
	}
	return nil
}

// Stop drains in-flight uploads, then closes every push connection. Uploads
// keep broadcasting while they drain.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Infow("Initiating server shutdown")
	s.setState(ServerStateDraining)

	s.mu.Lock()
	hs := s.httpServer
	s.mu.Unlock()

	var shutdownErr error
	if hs != nil {
		if err := hs.Shutdown(ctx); err != nil {
			shutdownErr = errors.Wrap(err, "shutdown http server")
		}
	}

	// Hijacked connections are not closed by Shutdown.
	s.mu.Lock()
	toClose := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		toClose = append(toClose, c)
	}
	s.mu.Unlock()
	if len(toClose) > 0 {
		s.logger.Infow("Closing push connections", logger.FieldCount, len(toClose))
		for _, c := range toClose {
			c.conn.Close()
		}
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(ShutdownTimeout):
		s.logger.Warnw("Connection goroutines did not stop in time", "timeout", ShutdownTimeout)
	case <-ctx.Done():
		s.logger.Warnw("Shutdown context expired before connection goroutines stopped")
	}

	s.setState(ServerStateStopped)
	s.logger.Infow("Server shutdown complete", "broadcast_drops", s.registry.Drops())
	return shutdownErr
}
