package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func roundTrip(t *testing.T, addr string, req string) response {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	_, err = conn.Write([]byte(req + "\n"))
	require.NoError(t, err)
	sc := bufio.NewScanner(conn)
	require.True(t, sc.Scan())
	var resp response
	require.NoError(t, json.Unmarshal(sc.Bytes(), &resp))
	return resp
}

func TestDispatch(t *testing.T) {
	s := NewServer(testLogger(), true)
	s.Handle("echo", func(_ context.Context, params json.RawMessage) (any, error) {
		var m map[string]string
		if err := json.Unmarshal(params, &m); err != nil {
			return nil, err
		}
		return m["msg"], nil
	})
	require.NoError(t, s.Listen("127.0.0.1", 0))
	defer func() { _ = s.Stop() }()
	require.NotZero(t, s.Port())

	resp := roundTrip(t, s.Addr(), `{"op":"echo","params":{"msg":"hello"}}`)
	assert.True(t, resp.OK)
	assert.Equal(t, "hello", resp.Result)
}

func TestUnknownAndBlockedOps(t *testing.T) {
	s := NewServer(testLogger(), true)
	s.Handle("secret", func(context.Context, json.RawMessage) (any, error) { return "x", nil })
	s.Block("secret")
	require.NoError(t, s.Listen("127.0.0.1", 0))
	defer func() { _ = s.Stop() }()

	resp := roundTrip(t, s.Addr(), `{"op":"nope"}`)
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "unknown operation")

	resp = roundTrip(t, s.Addr(), `{"op":"secret"}`)
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "blocked")
}

func TestHandlerError(t *testing.T) {
	s := NewServer(testLogger(), true)
	s.Handle("fail", func(context.Context, json.RawMessage) (any, error) {
		return nil, errors.New("handler broke")
	})
	require.NoError(t, s.Listen("127.0.0.1", 0))
	defer func() { _ = s.Stop() }()

	resp := roundTrip(t, s.Addr(), `{"op":"fail"}`)
	assert.False(t, resp.OK)
	assert.Equal(t, "handler broke", resp.Error)
}

func TestStopIdempotent(t *testing.T) {
	s := NewServer(testLogger(), true)
	require.NoError(t, s.Listen("127.0.0.1", 0))
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	assert.Error(t, s.Listen("127.0.0.1", 0))
}

func TestListenTwice(t *testing.T) {
	s := NewServer(testLogger(), true)
	require.NoError(t, s.Listen("127.0.0.1", 0))
	defer func() { _ = s.Stop() }()
	assert.Error(t, s.Listen("127.0.0.1", 0))
}
