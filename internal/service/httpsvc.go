package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// HTTPService adapts an http.Handler into a Service, for auxiliary
// endpoints that are plain HTTP servers (metrics exporters, debug
// consoles).
type HTTPService struct {
	handler http.Handler

	mu   sync.Mutex
	srv  *http.Server
	ln   net.Listener
	done bool
}

// NewHTTP wraps handler as a startable service.
func NewHTTP(handler http.Handler) *HTTPService {
	return &HTTPService{handler: handler}
}

// Listen binds the service and begins serving in the background.
func (s *HTTPService) Listen(host string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return errors.New("service is stopped")
	}
	if s.ln != nil {
		return errors.New("service is already listening")
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)))
	if err != nil {
		return err
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() { _ = s.srv.Serve(ln) }()
	return nil
}

// Port reports the bound port, 0 before Listen.
func (s *HTTPService) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return 0
	}
	if ta, ok := s.ln.Addr().(*net.TCPAddr); ok {
		return ta.Port
	}
	return 0
}

// Stop shuts the server down, waiting briefly for in-flight requests.
func (s *HTTPService) Stop() error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil
	}
	s.done = true
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return srv.Close()
	}
	return nil
}

var _ Service = (*HTTPService)(nil)
