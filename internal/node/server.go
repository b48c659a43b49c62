package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/loykin/gridnode/internal/dashboard"
	"github.com/loykin/gridnode/internal/history"
	"github.com/loykin/gridnode/internal/httpd"
	"github.com/loykin/gridnode/internal/logbuf"
	"github.com/loykin/gridnode/internal/rpc"
	"github.com/loykin/gridnode/internal/service"
	"github.com/loykin/gridnode/internal/version"
)

// ServerOptions configures a ServerNode.
type ServerOptions struct {
	Options

	// Listen is the primary protocol address, "host:port". A port of 0
	// picks any free port.
	Listen string
	// Services declares the auxiliary services started with the node.
	Services service.Spec
	// Dashboard configures the management endpoint. Its NodeListenAddr
	// is filled in from the live server at startup.
	Dashboard dashboard.Config
	// DisableDashboard skips the management endpoint entirely.
	DisableDashboard bool
	// Routes overrides the dashboard application. Defaults to the
	// standard management routes over this node.
	Routes http.Handler
	// BlockedHandlers lists dispatch operations to refuse.
	BlockedHandlers []string
}

// ServerNode is a server participant in the cluster: the base Node
// lifecycle composed with a request-dispatch server, a service registry and
// the dashboard endpoint. The two are separate values by design; the
// dispatch server is a collaborator, not a base class.
type ServerNode struct {
	*Node

	srv      *rpc.Server
	registry *service.Registry
	opts     ServerOptions

	sinkMu sync.Mutex
	sinks  []history.Sink
}

// NewServer builds a ServerNode. The connection pool is created eagerly;
// nothing listens until Start.
func NewServer(opts ServerOptions) *ServerNode {
	if opts.NodeType == "" {
		opts.NodeType = "ServerNode"
	}
	s := &ServerNode{opts: opts}
	s.Node = New(opts.Options)
	s.srv = rpc.NewServer(s.Logger(), opts.Deserialize)
	s.srv.Block(opts.BlockedHandlers...)
	s.registry = service.NewRegistry(s, s.Logger())
	s.Node.startHook = s.startServer
	s.Node.closeHook = s.closeServer
	s.Node.timeoutHook = func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeGrace)
		defer cancel()
		s.record(ctx, history.EventTimeout, fmt.Sprintf("startup exceeded %s", opts.DeathTimeout))
	}
	s.registerHandlers()
	return s
}

// registerHandlers wires the operations peers may invoke over the dispatch
// server.
func (s *ServerNode) registerHandlers() {
	s.srv.Handle("identity", func(_ context.Context, _ json.RawMessage) (any, error) {
		return map[string]string{
			"type":    s.NodeType(),
			"status":  string(s.Status()),
			"address": s.ListenAddress(),
		}, nil
	})
	s.srv.Handle("versions", func(_ context.Context, params json.RawMessage) (any, error) {
		var req struct {
			Packages []string `json:"packages"`
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, err
			}
		}
		return s.Versions(req.Packages), nil
	})
	s.srv.Handle("get_logs", func(_ context.Context, params json.RawMessage) (any, error) {
		var req struct {
			N int `json:"n"`
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, err
			}
		}
		if req.N < 0 {
			return nil, fmt.Errorf("n must not be negative, got %d", req.N)
		}
		return s.Logs(req.N), nil
	})
	s.srv.Handle("service_ports", func(_ context.Context, _ json.RawMessage) (any, error) {
		return s.ServicePorts(), nil
	})
}

// startServer is the server-variant startup sequence, run after the
// connection pool has started: bind the dispatch server, start declared
// services, then bring up the dashboard.
func (s *ServerNode) startServer(ctx context.Context) error {
	host, port, err := splitListen(s.opts.Listen)
	if err != nil {
		return fmt.Errorf("node listen address: %w", err)
	}
	if err := s.srv.Listen(host, port); err != nil {
		return fmt.Errorf("bind %s on %s: %w", s.NodeType(), s.opts.Listen, err)
	}

	s.registry.StartServices(s.opts.Services, host)

	if !s.opts.DisableDashboard {
		routes := s.opts.Routes
		if routes == nil {
			routes = httpd.NewRouter(httpdView{s}, "").Handler()
		}
		dcfg := s.opts.Dashboard
		dcfg.NodeListenAddr = s.srv.Addr()
		d, err := dashboard.Start(routes, dcfg, s.Logger())
		if err != nil {
			return fmt.Errorf("start dashboard: %w", err)
		}
		s.registry.Register(dashboard.Key, d)
		if d.Fallback() {
			s.Logger().Info("dashboard bound on fallback port", "port", d.Port())
		}
	}

	s.record(ctx, history.EventStart, "")
	return nil
}

// closeServer tears the server surfaces down before the pool closes.
// Failures are collected, not discarded, and never stop the teardown.
func (s *ServerNode) closeServer(ctx context.Context) error {
	var errs []error
	if err := s.registry.StopServices(); err != nil {
		errs = append(errs, err)
	}
	if err := s.srv.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop dispatch server: %w", err))
	}
	s.record(ctx, history.EventStop, "")
	return errors.Join(errs...)
}

// SetHistorySinks configures lifecycle-event sinks. Passing none clears the
// list.
func (s *ServerNode) SetHistorySinks(sinks ...history.Sink) {
	s.sinkMu.Lock()
	s.sinks = append([]history.Sink(nil), sinks...)
	s.sinkMu.Unlock()
}

func (s *ServerNode) record(ctx context.Context, t history.EventType, detail string) {
	s.sinkMu.Lock()
	sinks := append([]history.Sink(nil), s.sinks...)
	s.sinkMu.Unlock()
	if len(sinks) == 0 {
		return
	}
	e := history.Event{
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Node:       s.NodeType(),
		Address:    s.ListenAddress(),
		Detail:     detail,
	}
	for _, sink := range sinks {
		if err := sink.Send(ctx, e); err != nil {
			s.Logger().Warn("history sink rejected event", "event", string(t), "error", err)
		}
	}
}

// ListenAddress reports the dispatch server's bound address, "" before
// start.
func (s *ServerNode) ListenAddress() string { return s.srv.Addr() }

// Port reports the dispatch server's bound port, 0 before start.
func (s *ServerNode) Port() int { return s.srv.Port() }

// ServicePorts maps each live service key to its bound port. It is
// recomputed from the registry on every call.
func (s *ServerNode) ServicePorts() map[string]int { return s.registry.Ports() }

// Registry exposes the service registry for declaring handles after
// construction.
func (s *ServerNode) Registry() *service.Registry { return s.registry }

// Dashboard returns the live dashboard handle, or nil when disabled or not
// started.
func (s *ServerNode) Dashboard() *dashboard.Dashboard {
	d, _ := s.registry.Get(dashboard.Key).(*dashboard.Dashboard)
	return d
}

// RPC returns the dispatch server for registering additional operations.
func (s *ServerNode) RPC() *rpc.Server { return s.srv }

// httpdView adapts the node to the dashboard routes, which want the
// status as a plain string.
type httpdView struct{ s *ServerNode }

func (v httpdView) NodeType() string                          { return v.s.NodeType() }
func (v httpdView) Status() string                            { return string(v.s.Status()) }
func (v httpdView) ListenAddress() string                     { return v.s.ListenAddress() }
func (v httpdView) Logs(n int) []logbuf.Entry                 { return v.s.Logs(n) }
func (v httpdView) ServicePorts() map[string]int              { return v.s.ServicePorts() }
func (v httpdView) Versions(packages []string) version.Report { return v.s.Versions(packages) }

func splitListen(listen string) (string, int, error) {
	if listen == "" {
		return "", 0, nil
	}
	host, portStr, err := net.SplitHostPort(listen)
	if err != nil {
		// a bare host is allowed; the port defaults to 0
		return service.CleanHost(listen), 0, nil
	}
	port := 0
	if portStr != "" {
		port, err = strconv.Atoi(portStr)
		if err != nil {
			return "", 0, fmt.Errorf("invalid port %q", portStr)
		}
	}
	return service.CleanHost(host), port, nil
}

var _ service.Owner = (*ServerNode)(nil)
var _ httpd.Node = httpdView{}
