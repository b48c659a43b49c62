package gridnode

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/gridnode/internal/config"
	"github.com/loykin/gridnode/internal/service"
)

type nopPool struct{}

func (nopPool) Start(context.Context) error { return nil }
func (nopPool) Close(context.Context) error { return nil }

func TestServerOptionsFromConfig(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	opts := ServerOptionsFromConfig("Worker", cfg, nil)
	assert.Equal(t, "Worker", opts.NodeType)
	assert.Equal(t, "0.0.0.0:8786", opts.Listen)
	assert.Equal(t, 512, opts.ConnectionLimit)
	assert.Equal(t, 10000, opts.LogLength)
	assert.Equal(t, 8787, opts.Dashboard.DefaultPort)
	assert.Equal(t, 10*time.Second, opts.Timeout)
}

func TestServerFromConfigLifecycle(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	opts := ServerOptionsFromConfig("Worker", cfg, nil)
	opts.Listen = "127.0.0.1:0"
	opts.Pool = nopPool{}
	opts.DisableDashboard = true

	n := NewServer(opts)
	require.NoError(t, n.Start(t.Context()))
	assert.Equal(t, StatusRunning, n.Status())
	assert.NotEmpty(t, n.ListenAddress())
	require.NoError(t, n.Close(t.Context()))
	assert.Equal(t, StatusClosed, n.Status())
}

func TestServicesFromConfigBuiltinMetricsKind(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	cfg.Services = []config.ServiceConfig{
		{Name: "prometheus", Kind: "metrics", Port: 0},
	}

	spec := ServicesFromConfig(cfg)
	require.Len(t, spec, 1)
	svc, err := spec[0].New(nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Stop() })
	require.NoError(t, svc.Listen("127.0.0.1", 0))
	assert.NotZero(t, svc.Port())
}

func TestServicesFromConfigUnknownKindFailsAtConstruction(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	cfg.Services = []config.ServiceConfig{
		{Name: "mystery", Kind: "no-such-kind"},
	}

	spec := ServicesFromConfig(cfg)
	require.Len(t, spec, 1)
	_, err = spec[0].New(nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown service kind")
}

func TestRegisterServiceKind(t *testing.T) {
	RegisterServiceKind("test-kind", func(service.Owner, map[string]any) (service.Service, error) {
		return service.NewHTTP(nil), nil
	})

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	cfg.Services = []config.ServiceConfig{{Name: "custom", Kind: "test-kind"}}

	spec := ServicesFromConfig(cfg)
	require.Len(t, spec, 1)
	_, err = spec[0].New(nil, nil)
	require.NoError(t, err)
}

func TestSinksFromConfig(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	sinks, err := SinksFromConfig(cfg)
	require.NoError(t, err)
	assert.Nil(t, sinks)

	cfg.History.Enabled = true
	cfg.History.Backend = "sqlite"
	cfg.History.DSN = "sqlite://:memory:"
	sinks, err = SinksFromConfig(cfg)
	require.NoError(t, err)
	require.Len(t, sinks, 1)
}
