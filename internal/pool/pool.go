package pool

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// DefaultLimit caps concurrent outbound connections when the node does not
// configure one.
const DefaultLimit = 512

// Config carries the node options forwarded verbatim to the pool.
type Config struct {
	Limit         int
	Deserialize   bool
	ConnectArgs   map[string]any
	Serializers   []string
	Deserializers []string
	Timeout       time.Duration
}

// ConnectionPool manages outbound peer connections for exactly one node.
// The wire protocol running over the connections belongs to the RPC layer;
// the pool only dials, tracks and closes them.
type ConnectionPool struct {
	cfg Config

	mu      sync.Mutex
	started bool
	closed  bool
	sem     chan struct{}
	conns   map[net.Conn]struct{}
}

func New(cfg Config) *ConnectionPool {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	return &ConnectionPool{
		cfg:   cfg,
		conns: make(map[net.Conn]struct{}),
	}
}

// Start prepares the pool for dialing. Calling Start on a started pool is a
// no-op; calling it on a closed pool is an error.
func (p *ConnectionPool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("connection pool is closed")
	}
	if p.started {
		return nil
	}
	p.sem = make(chan struct{}, p.cfg.Limit)
	p.started = true
	return nil
}

// Connect dials addr, respecting the pool's connection limit and timeout.
func (p *ConnectionPool) Connect(ctx context.Context, addr string) (net.Conn, error) {
	p.mu.Lock()
	if !p.started || p.closed {
		p.mu.Unlock()
		return nil, errors.New("connection pool is not running")
	}
	sem := p.sem
	p.mu.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		<-sem
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = conn.Close()
		<-sem
		return nil, errors.New("connection pool is closed")
	}
	p.conns[conn] = struct{}{}
	p.mu.Unlock()
	return conn, nil
}

// Release closes conn and returns its slot to the pool.
func (p *ConnectionPool) Release(conn net.Conn) {
	if conn == nil {
		return
	}
	p.mu.Lock()
	_, tracked := p.conns[conn]
	delete(p.conns, conn)
	sem := p.sem
	p.mu.Unlock()
	_ = conn.Close()
	if tracked && sem != nil {
		<-sem
	}
}

// Active reports the number of tracked connections.
func (p *ConnectionPool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// Limit reports the configured connection cap.
func (p *ConnectionPool) Limit() int { return p.cfg.Limit }

// Deserialize reports whether payloads received over pooled connections
// should be decoded by the RPC layer.
func (p *ConnectionPool) Deserialize() bool { return p.cfg.Deserialize }

// Close closes every tracked connection. It is idempotent.
func (p *ConnectionPool) Close(_ context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	conns := make([]net.Conn, 0, len(p.conns))
	for c := range p.conns {
		conns = append(conns, c)
	}
	p.conns = make(map[net.Conn]struct{})
	p.mu.Unlock()

	var errs []error
	for _, c := range conns {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
