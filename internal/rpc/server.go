// Package rpc is the generic request-dispatch base a server node composes
// with. It speaks newline-delimited JSON frames over TCP: one request per
// line, one response per line. The cluster protocol built on top of it is
// defined by the handlers the node registers.
package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// HandlerFunc serves one operation. params is the raw payload; when the
// server deserializes, it has already been validated as JSON.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

type request struct {
	Op     string          `json:"op"`
	Params json.RawMessage `json:"params,omitempty"`
}

type response struct {
	OK     bool            `json:"ok"`
	Result any             `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Raw    json.RawMessage `json:"raw,omitempty"`
}

// Server dispatches incoming requests to named handlers.
type Server struct {
	logger      *slog.Logger
	deserialize bool

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	blocked  map[string]struct{}
	ln       net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

func NewServer(logger *slog.Logger, deserialize bool) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:      logger,
		deserialize: deserialize,
		handlers:    make(map[string]HandlerFunc),
		blocked:     make(map[string]struct{}),
		conns:       make(map[net.Conn]struct{}),
	}
}

// Handle registers fn under op, replacing any previous handler.
func (s *Server) Handle(op string, fn HandlerFunc) {
	s.mu.Lock()
	s.handlers[op] = fn
	s.mu.Unlock()
}

// Block refuses the named operations with an error instead of dispatching.
func (s *Server) Block(ops ...string) {
	s.mu.Lock()
	for _, op := range ops {
		s.blocked[op] = struct{}{}
	}
	s.mu.Unlock()
}

// Listen binds the server and starts accepting in the background.
func (s *Server) Listen(host string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("rpc server is closed")
	}
	if s.ln != nil {
		return errors.New("rpc server is already listening")
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)))
	if err != nil {
		return err
	}
	s.ln = ln
	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Addr returns the bound listen address, or "" before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Port returns the bound port, or 0 before Listen.
func (s *Server) Port() int {
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

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	sc := bufio.NewScanner(conn)
	enc := json.NewEncoder(conn)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		resp := s.dispatch(context.Background(), line)
		if err := enc.Encode(resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, line []byte) response {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		return response{Error: "malformed request: " + err.Error()}
	}
	s.mu.Lock()
	fn, ok := s.handlers[req.Op]
	_, isBlocked := s.blocked[req.Op]
	s.mu.Unlock()
	if isBlocked {
		return response{Error: fmt.Sprintf("operation %q is blocked", req.Op)}
	}
	if !ok {
		return response{Error: fmt.Sprintf("unknown operation %q", req.Op)}
	}
	if !s.deserialize {
		// pass the payload through untouched; the handler owns decoding
		res, err := fn(ctx, req.Params)
		return wrap(res, err)
	}
	if len(req.Params) > 0 && !json.Valid(req.Params) {
		return response{Error: "invalid params payload"}
	}
	res, err := fn(ctx, req.Params)
	return wrap(res, err)
}

func wrap(res any, err error) response {
	if err != nil {
		return response{Error: err.Error()}
	}
	return response{OK: true, Result: res}
}

// Stop closes the listener and every open connection, then waits for the
// serving goroutines to drain. It is idempotent.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.ln
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	for _, c := range conns {
		_ = c.Close()
	}
	s.wg.Wait()
	return err
}
