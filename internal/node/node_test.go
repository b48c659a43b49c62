package node

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePool struct {
	mu       sync.Mutex
	starts   int
	closes   int
	startErr error
	closeErr error
	// blockStart makes Start wait for ctx cancellation, simulating a
	// startup that never completes.
	blockStart bool
}

func (p *fakePool) Start(ctx context.Context) error {
	p.mu.Lock()
	p.starts++
	block, err := p.blockStart, p.startErr
	p.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (p *fakePool) Close(_ context.Context) error {
	p.mu.Lock()
	p.closes++
	err := p.closeErr
	p.mu.Unlock()
	return err
}

func (p *fakePool) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.starts, p.closes
}

func quietHandler() slog.Handler {
	return slog.NewTextHandler(io.Discard, nil)
}

func newTestNode(p Pool, opts Options) *Node {
	opts.Handler = quietHandler()
	opts.Pool = p
	return New(opts)
}

func TestStartTransitionsToRunning(t *testing.T) {
	p := &fakePool{}
	n := newTestNode(p, Options{NodeType: "Worker"})
	require.Equal(t, StatusCreated, n.Status())

	require.NoError(t, n.Start(t.Context()))
	assert.Equal(t, StatusRunning, n.Status())
	starts, _ := p.counts()
	assert.Equal(t, 1, starts)

	require.NoError(t, n.Close(t.Context()))
}

func TestStartOnRunningIsIdempotent(t *testing.T) {
	p := &fakePool{}
	n := newTestNode(p, Options{})
	require.NoError(t, n.Start(t.Context()))

	// a second start must be a no-op, not a second startup sequence
	require.NoError(t, n.Start(t.Context()))
	starts, _ := p.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, StatusRunning, n.Status())

	require.NoError(t, n.Close(t.Context()))
}

func TestStartAfterCloseFails(t *testing.T) {
	n := newTestNode(&fakePool{}, Options{})
	require.NoError(t, n.Start(t.Context()))
	require.NoError(t, n.Close(t.Context()))

	err := n.Start(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStartFailureClosesNode(t *testing.T) {
	boom := errors.New("no route to scheduler")
	p := &fakePool{startErr: boom}
	n := newTestNode(p, Options{NodeType: "Worker"})

	err := n.Start(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StatusClosed, n.Status())
	_, closes := p.counts()
	assert.Equal(t, 1, closes)
}

func TestStartHookFailureSurfacesAndCloses(t *testing.T) {
	p := &fakePool{}
	n := newTestNode(p, Options{})
	boom := errors.New("bind failed")
	n.startHook = func(context.Context) error { return boom }

	err := n.Start(t.Context())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StatusClosed, n.Status())
}

func TestAwaitWithoutTimeoutStarts(t *testing.T) {
	n := newTestNode(&fakePool{}, Options{})
	require.NoError(t, n.Await(t.Context()))
	assert.Equal(t, StatusRunning, n.Status())
	require.NoError(t, n.Close(t.Context()))
}

func TestAwaitOnRunningNodeReturnsImmediately(t *testing.T) {
	p := &fakePool{}
	n := newTestNode(p, Options{DeathTimeout: time.Hour})
	require.NoError(t, n.Start(t.Context()))

	require.NoError(t, n.Await(t.Context()))
	starts, _ := p.counts()
	assert.Equal(t, 1, starts)
	require.NoError(t, n.Close(t.Context()))
}

func TestAwaitDeathTimeout(t *testing.T) {
	p := &fakePool{blockStart: true}
	n := newTestNode(p, Options{NodeType: "Worker", DeathTimeout: 50 * time.Millisecond})

	err := n.Await(t.Context())
	require.Error(t, err)

	var te *StartupTimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "Worker", te.NodeType)
	assert.Equal(t, 50*time.Millisecond, te.Timeout)
	assert.Contains(t, err.Error(), "failed to start in")

	// the overrun startup must have been torn down
	assert.Equal(t, StatusClosed, n.Status())
	_, closes := p.counts()
	assert.Equal(t, 1, closes)
}

func TestAwaitCallerCancellation(t *testing.T) {
	p := &fakePool{blockStart: true}
	n := newTestNode(p, Options{DeathTimeout: time.Hour})

	ctx, cancel := context.WithCancel(t.Context())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := n.Await(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	// caller cancellation is not a death timeout
	var te *StartupTimeoutError
	assert.False(t, errors.As(err, &te))
}

func TestRunClosesOnEveryPath(t *testing.T) {
	n := newTestNode(&fakePool{}, Options{})
	ran := false
	err := n.Run(t.Context(), func(context.Context) error {
		ran = true
		assert.Equal(t, StatusRunning, n.Status())
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, StatusClosed, n.Status())
}

func TestRunJoinsBodyError(t *testing.T) {
	n := newTestNode(&fakePool{}, Options{})
	boom := errors.New("work failed")
	err := n.Run(t.Context(), func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StatusClosed, n.Status())
}

func TestRunSkipsBodyWhenStartupFails(t *testing.T) {
	boom := errors.New("startup failed")
	n := newTestNode(&fakePool{startErr: boom}, Options{})
	ran := false
	err := n.Run(t.Context(), func(context.Context) error {
		ran = true
		return nil
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, ran)
}

func TestRunClosesOnPanic(t *testing.T) {
	n := newTestNode(&fakePool{}, Options{})
	require.Panics(t, func() {
		_ = n.Run(context.Background(), func(context.Context) error {
			panic("worker exploded")
		})
	})
	assert.Equal(t, StatusClosed, n.Status())
}

func TestCloseIsIdempotent(t *testing.T) {
	p := &fakePool{}
	n := newTestNode(p, Options{})
	require.NoError(t, n.Start(t.Context()))

	require.NoError(t, n.Close(t.Context()))
	require.NoError(t, n.Close(t.Context()))
	_, closes := p.counts()
	assert.Equal(t, 1, closes)
	assert.Equal(t, StatusClosed, n.Status())
}

func TestCloseReportsPoolError(t *testing.T) {
	boom := errors.New("pool stuck")
	n := newTestNode(&fakePool{closeErr: boom}, Options{})
	require.NoError(t, n.Start(t.Context()))

	err := n.Close(t.Context())
	require.ErrorIs(t, err, boom)
	// the node still reaches closed; teardown keeps going past failures
	assert.Equal(t, StatusClosed, n.Status())
}

func TestCloseNeverStartedNode(t *testing.T) {
	p := &fakePool{}
	n := newTestNode(p, Options{})
	require.NoError(t, n.Close(t.Context()))
	_, closes := p.counts()
	assert.Equal(t, 1, closes)
}

func TestLogsOrdering(t *testing.T) {
	n := newTestNode(&fakePool{}, Options{LogLength: 10})
	for _, msg := range []string{"first", "second", "third"} {
		n.Logger().Info(msg)
	}

	all := n.Logs(0)
	require.Len(t, all, 3)
	assert.Contains(t, all[0].Message, "first")
	assert.Contains(t, all[2].Message, "third")

	recent := n.Logs(2)
	require.Len(t, recent, 2)
	assert.Contains(t, recent[0].Message, "third")
	assert.Contains(t, recent[1].Message, "second")
}

func TestVersionsReportsHost(t *testing.T) {
	n := newTestNode(&fakePool{}, Options{})
	rep := n.Versions([]string{"no/such/package"})
	assert.NotEmpty(t, rep.Host.GoVersion)
	assert.Equal(t, "MISSING", rep.Packages["no/such/package"])
}
