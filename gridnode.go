// Package gridnode is the embedding facade: node lifecycle, service
// declarations, dashboard and history wiring re-exported for external
// consumers.
package gridnode

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/gridnode/internal/config"
	"github.com/loykin/gridnode/internal/dashboard"
	"github.com/loykin/gridnode/internal/history"
	"github.com/loykin/gridnode/internal/history/factory"
	"github.com/loykin/gridnode/internal/logger"
	"github.com/loykin/gridnode/internal/metrics"
	"github.com/loykin/gridnode/internal/node"
	"github.com/loykin/gridnode/internal/service"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Node = node.Node

type ServerNode = node.ServerNode

type Options = node.Options

type ServerOptions = node.ServerOptions

type Status = node.Status

type StartupTimeoutError = node.StartupTimeoutError

const (
	StatusCreated  = node.StatusCreated
	StatusStarting = node.StatusStarting
	StatusRunning  = node.StatusRunning
	StatusClosing  = node.StatusClosing
	StatusClosed   = node.StatusClosed
)

var ErrInvalidState = node.ErrInvalidState

type Config = config.Config

type HistoryConfig = config.HistoryConfig

type HistorySink = history.Sink

type ServiceSpec = service.Spec

type ServiceDecl = service.Decl

type ServiceConstructor = service.Constructor

type ServiceOwner = service.Owner

type Service = service.Service

// DashboardKey is the registry key the dashboard is always registered
// under.
const DashboardKey = dashboard.Key

// NewHTTPService wraps an http.Handler as a startable service, for
// declaring custom HTTP endpoints alongside a node.
func NewHTTPService(handler http.Handler) Service { return service.NewHTTP(handler) }

// New builds a base node: lifecycle, connection pool and log capture, no
// listeners.
func New(opts Options) *Node { return node.New(opts) }

// NewServer builds a server node: the base lifecycle composed with a
// dispatch server, declared services and the dashboard.
func NewServer(opts ServerOptions) *ServerNode { return node.NewServer(opts) }

// LoadConfig reads a TOML configuration file. An empty path yields the
// defaults plus GRIDNODE_* environment overrides.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// SetupLogging builds the node's base slog handler from cfg.Log: a rotating
// file when one is configured, colorized stderr otherwise. The closer
// releases the log file.
func SetupLogging(cfg *Config) (slog.Handler, io.Closer) {
	return logger.Setup(cfg.Log)
}

// ServerOptionsFromConfig assembles ServerOptions from a loaded
// configuration. handler may be nil; services declared in cfg are resolved
// through the kind registry.
func ServerOptionsFromConfig(nodeType string, cfg *Config, handler slog.Handler) ServerOptions {
	return ServerOptions{
		Options: Options{
			NodeType:        nodeType,
			ConnectionLimit: cfg.Node.ConnectionLimit,
			Deserialize:     cfg.Node.Deserialize,
			Timeout:         cfg.Node.Timeout,
			DeathTimeout:    cfg.Node.DeathTimeout,
			LogLength:       cfg.Admin.LogLength,
			LogFormat:       cfg.Admin.LogFormat,
			Handler:         handler,
		},
		Listen:   cfg.Node.Listen,
		Services: ServicesFromConfig(cfg),
		Dashboard: dashboard.Config{
			Address:     cfg.Dashboard.Address,
			DefaultPort: cfg.Dashboard.DefaultPort,
			TLS:         cfg.Dashboard.TLS,
		},
	}
}

// Service kinds map the "kind" field of configured services to
// constructors. Kinds registered here are available to every node in the
// process.
var (
	kindMu sync.RWMutex
	kinds  = map[string]ServiceConstructor{
		"metrics": func(service.Owner, map[string]any) (service.Service, error) {
			return service.NewHTTP(metrics.Handler()), nil
		},
	}
)

// RegisterServiceKind makes a constructor available to configuration-
// declared services under the given kind.
func RegisterServiceKind(kind string, ctor ServiceConstructor) {
	kindMu.Lock()
	kinds[kind] = ctor
	kindMu.Unlock()
}

// ServicesFromConfig turns cfg.Services into a service spec. A declaration
// with an unknown kind yields a constructor that fails, so it is isolated
// at startup like any other broken service rather than rejected up front.
func ServicesFromConfig(cfg *Config) ServiceSpec {
	spec := make(ServiceSpec, 0, len(cfg.Services))
	for _, sc := range cfg.Services {
		kindMu.RLock()
		ctor, ok := kinds[sc.Kind]
		kindMu.RUnlock()
		if !ok {
			kind := sc.Kind
			ctor = func(service.Owner, map[string]any) (service.Service, error) {
				return nil, fmt.Errorf("unknown service kind %q", kind)
			}
		}
		spec = append(spec, ServiceDecl{Name: sc.Name, Port: sc.Port, New: ctor, Opts: sc.Opts})
	}
	return spec
}

// SinksFromConfig builds the configured history sink, nil when history is
// disabled.
func SinksFromConfig(cfg *Config) ([]HistorySink, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	sink, err := factory.NewSinkFromDSN(cfg.History.DSN)
	if err != nil {
		return nil, fmt.Errorf("history sink: %w", err)
	}
	return []HistorySink{sink}, nil
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
