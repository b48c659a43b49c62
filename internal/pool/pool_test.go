package pool

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartIdempotent(t *testing.T) {
	p := New(Config{Limit: 4})
	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.Close(ctx))
	require.Error(t, p.Start(ctx))
}

func TestCloseIdempotent(t *testing.T) {
	p := New(Config{})
	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.Close(ctx))
	require.NoError(t, p.Close(ctx))
}

func TestConnectAndRelease(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()

	p := New(Config{Limit: 2, Timeout: 2 * time.Second})
	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	defer func() { _ = p.Close(ctx) }()

	conn, err := p.Connect(ctx, ln.Addr().String())
	require.NoError(t, err)
	assert.Equal(t, 1, p.Active())
	p.Release(conn)
	assert.Equal(t, 0, p.Active())
}

func TestConnectLimitRespectsContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			defer func() { _ = c.Close() }()
		}
	}()

	p := New(Config{Limit: 1})
	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	defer func() { _ = p.Close(ctx) }()

	conn, err := p.Connect(ctx, ln.Addr().String())
	require.NoError(t, err)
	defer p.Release(conn)

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = p.Connect(short, ln.Addr().String())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConnectBeforeStart(t *testing.T) {
	p := New(Config{})
	_, err := p.Connect(context.Background(), "127.0.0.1:1")
	require.Error(t, err)
}

func TestDefaults(t *testing.T) {
	p := New(Config{})
	assert.Equal(t, DefaultLimit, p.Limit())
	assert.False(t, p.Deserialize())
}
