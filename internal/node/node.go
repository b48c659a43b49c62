// Package node implements the lifecycle shared by every cluster
// participant: an awaitable, idempotent start/stop state machine that owns
// the node's outbound connection pool, its auxiliary services and its
// in-memory log capture.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/gridnode/internal/logbuf"
	"github.com/loykin/gridnode/internal/metrics"
	"github.com/loykin/gridnode/internal/pool"
	"github.com/loykin/gridnode/internal/version"
)

// closeGrace bounds the best-effort close forced by a startup timeout.
const closeGrace = 1 * time.Second

// Pool is the outbound connection pool collaborator. The node owns exactly
// one and drives its lifetime; the wire protocol behind it is out of scope
// here.
type Pool interface {
	Start(ctx context.Context) error
	Close(ctx context.Context) error
}

// Options configures a Node. Zero values select the documented defaults.
type Options struct {
	// NodeType names the node kind in errors and metrics ("Worker",
	// "Scheduler"). Defaults to "Node".
	NodeType string

	ConnectionLimit int
	Deserialize     bool
	ConnectArgs     map[string]any
	Serializers     []string
	Deserializers   []string
	// Timeout is forwarded to the connection pool.
	Timeout time.Duration
	// DeathTimeout bounds Await; zero means unbounded.
	DeathTimeout time.Duration

	// LogLength and LogFormat configure the in-memory log capture.
	LogLength int
	LogFormat string
	// Handler is the base slog handler captured records forward to.
	// Defaults to the handler of slog.Default().
	Handler slog.Handler

	// Pool overrides the connection pool, for composition and tests.
	Pool Pool
}

// Node is the base lifecycle for cluster participants. It owns one
// connection pool, created eagerly at construction and released at close.
// A Node is not shared between goroutines during Start/Close; Status and
// log retrieval are safe concurrently.
type Node struct {
	nodeType     string
	deathTimeout time.Duration

	pool    Pool
	capture *logbuf.Capture
	logger  *slog.Logger

	mu     sync.Mutex
	status Status

	// startHook and closeHook let the server variant extend the startup
	// and teardown sequences while sharing one state machine. timeoutHook
	// observes startup timeouts after the forced close.
	startHook   func(ctx context.Context) error
	closeHook   func(ctx context.Context) error
	timeoutHook func()
}

// New builds a Node and its connection pool.
func New(opts Options) *Node {
	if opts.NodeType == "" {
		opts.NodeType = "Node"
	}
	if opts.Handler == nil {
		opts.Handler = slog.Default().Handler()
	}
	capture := logbuf.New(opts.Handler, opts.NodeType, opts.LogLength, opts.LogFormat)

	p := opts.Pool
	if p == nil {
		p = pool.New(pool.Config{
			Limit:         opts.ConnectionLimit,
			Deserialize:   opts.Deserialize,
			ConnectArgs:   opts.ConnectArgs,
			Serializers:   opts.Serializers,
			Deserializers: opts.Deserializers,
			Timeout:       opts.Timeout,
		})
	}

	n := &Node{
		nodeType:     opts.NodeType,
		deathTimeout: opts.DeathTimeout,
		pool:         p,
		capture:      capture,
		logger:       slog.New(capture),
		status:       StatusCreated,
	}
	metrics.SetNodeState(n.nodeType, string(StatusCreated), true)
	return n
}

// NodeType reports the configured node kind.
func (n *Node) NodeType() string { return n.nodeType }

// Logger returns the node's logger. Records logged through it are captured
// by the in-memory buffer before reaching the base handler.
func (n *Node) Logger() *slog.Logger { return n.logger }

// Pool returns the owned connection pool.
func (n *Node) Pool() Pool { return n.pool }

// DeathTimeout reports the startup bound applied by Await.
func (n *Node) DeathTimeout() time.Duration { return n.deathTimeout }

// Status returns the current lifecycle state.
func (n *Node) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

func (n *Node) setStatus(s Status) {
	n.mu.Lock()
	prev := n.status
	n.status = s
	n.mu.Unlock()
	metrics.SetNodeState(n.nodeType, string(prev), false)
	metrics.SetNodeState(n.nodeType, string(s), true)
}

// Start drives the startup sequence. It is idempotent: starting a running
// node returns immediately with no side effects. Starting a closing or
// closed node fails with ErrInvalidState. On a startup failure the node is
// closed best-effort before the error is returned.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	switch n.status {
	case StatusRunning:
		n.mu.Unlock()
		return nil
	case StatusStarting:
		n.mu.Unlock()
		return fmt.Errorf("start %s: already starting: %w", n.nodeType, ErrInvalidState)
	case StatusClosing, StatusClosed:
		st := n.status
		n.mu.Unlock()
		return fmt.Errorf("start %s while %s: %w", n.nodeType, st, ErrInvalidState)
	}
	n.status = StatusStarting
	n.mu.Unlock()
	metrics.SetNodeState(n.nodeType, string(StatusCreated), false)
	metrics.SetNodeState(n.nodeType, string(StatusStarting), true)

	if err := n.runStart(ctx); err != nil {
		cctx, cancel := context.WithTimeout(context.Background(), closeGrace)
		defer cancel()
		_ = n.Close(cctx)
		return err
	}

	n.mu.Lock()
	if n.status != StatusStarting {
		// a concurrent close won the race; report the node unusable
		st := n.status
		n.mu.Unlock()
		return fmt.Errorf("start %s interrupted by %s: %w", n.nodeType, st, ErrInvalidState)
	}
	n.status = StatusRunning
	n.mu.Unlock()
	metrics.SetNodeState(n.nodeType, string(StatusStarting), false)
	metrics.SetNodeState(n.nodeType, string(StatusRunning), true)
	metrics.IncNodeStart(n.nodeType)
	return nil
}

// runStart is the startup sequence proper: the pool first, then whatever
// the composing variant hooks in. Ordering is part of the contract.
func (n *Node) runStart(ctx context.Context) error {
	if err := n.pool.Start(ctx); err != nil {
		return fmt.Errorf("start connection pool: %w", err)
	}
	if n.startHook != nil {
		if err := n.startHook(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Await starts the node under its death timeout. Without a timeout it is
// plain Start. With one, a startup that overruns is torn down best-effort
// (bounded, errors suppressed) and surfaced as *StartupTimeoutError.
func (n *Node) Await(ctx context.Context) error {
	if n.Status() == StatusRunning {
		return nil
	}
	if n.deathTimeout <= 0 {
		return n.Start(ctx)
	}

	tctx, cancel := context.WithTimeout(ctx, n.deathTimeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- n.Start(tctx) }()

	select {
	case err := <-done:
		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return n.timeoutFailure()
		}
		return err
	case <-tctx.Done():
		if ctx.Err() != nil {
			// caller cancellation, not the death timeout
			n.bestEffortClose()
			return ctx.Err()
		}
		return n.timeoutFailure()
	}
}

func (n *Node) timeoutFailure() error {
	n.bestEffortClose()
	metrics.IncStartupTimeout(n.nodeType)
	if n.timeoutHook != nil {
		n.timeoutHook()
	}
	return &StartupTimeoutError{NodeType: n.nodeType, Timeout: n.deathTimeout}
}

// bestEffortClose tears the node down after a failed startup. Errors are
// suppressed in favor of the startup error being surfaced.
func (n *Node) bestEffortClose() {
	ctx, cancel := context.WithTimeout(context.Background(), closeGrace)
	defer cancel()
	_ = n.Close(ctx)
}

// Run awaits the node, invokes fn, and closes the node on every exit path
// including panics. It returns fn's error joined with any close failure.
func (n *Node) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := n.Await(ctx); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			n.bestEffortClose()
			panic(r)
		}
	}()
	err := fn(ctx)
	return errors.Join(err, n.Close(context.WithoutCancel(ctx)))
}

// Close releases the node: services first (via the close hook), then the
// connection pool, then the log capture. It is idempotent and keeps going
// past individual failures, returning them joined rather than discarding
// them.
func (n *Node) Close(ctx context.Context) error {
	n.mu.Lock()
	switch n.status {
	case StatusClosed, StatusClosing:
		n.mu.Unlock()
		return nil
	}
	prev := n.status
	n.status = StatusClosing
	n.mu.Unlock()
	metrics.SetNodeState(n.nodeType, string(prev), false)
	metrics.SetNodeState(n.nodeType, string(StatusClosing), true)

	var errs []error
	if n.closeHook != nil {
		if err := n.closeHook(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := n.pool.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close connection pool: %w", err))
	}
	n.capture.Detach()

	n.mu.Lock()
	n.status = StatusClosed
	n.mu.Unlock()
	metrics.SetNodeState(n.nodeType, string(StatusClosing), false)
	metrics.SetNodeState(n.nodeType, string(StatusClosed), true)
	return errors.Join(errs...)
}

// Logs returns captured log entries: all of them oldest-first when n <= 0,
// or the n most recent newest-first. See logbuf.Capture.Entries for why the
// ordering differs.
func (n *Node) Logs(count int) []logbuf.Entry {
	return n.capture.Entries(count)
}

// Versions reports the version information peers use to spot environment
// skew.
func (n *Node) Versions(packages []string) version.Report {
	return version.Get(packages)
}
