// Package dashboard binds the node's HTTP(S) management endpoint. The
// routes it serves come from the caller (internal/httpd); this package only
// owns TLS setup, the bind-with-fallback algorithm and the server lifetime.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/loykin/gridnode/internal/config"
	"github.com/loykin/gridnode/internal/metrics"
	"github.com/loykin/gridnode/internal/service"
	"github.com/loykin/gridnode/internal/tlsutil"
)

// Key is the reserved service-registry key for the dashboard endpoint.
const Key = "dashboard"

// Config resolves where the dashboard should bind.
type Config struct {
	// Address is the requested dashboard address: "host:port", ":port",
	// "host", or empty for the default port.
	Address string
	// DefaultPort is used when Address is empty.
	DefaultPort int
	// NodeListenAddr is the node's own listen address; its host is used
	// when the dashboard address carries no host of its own.
	NodeListenAddr string
	TLS            config.TLSConfig
}

// Dashboard is a live, bound dashboard endpoint. It satisfies the registry's
// Handle interface and is registered under Key.
type Dashboard struct {
	srv      *http.Server
	ln       net.Listener
	host     string
	port     int
	fallback bool
	tls      bool
}

// Start builds the endpoint, binds it and begins serving handler. A bind
// failure on the requested port is retried exactly once on an ephemeral
// port; only a failure of that retry is returned as an error.
func Start(handler http.Handler, cfg Config, logger *slog.Logger) (*Dashboard, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tlsConf, err := tlsutil.ServerConfig(cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("dashboard TLS setup: %w", err)
	}

	host, port, err := resolveAddress(cfg)
	if err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)))
	fallback := false
	if err != nil {
		// Requested port unavailable: retry once on any free port,
		// preserving the resolved host.
		fallback = true
		metrics.IncDashboardFallback()
		ln, err = net.Listen("tcp", net.JoinHostPort(host, "0"))
		if err != nil {
			return nil, fmt.Errorf("bind dashboard on %s: %w", host, err)
		}
	}
	actual := ln.Addr().(*net.TCPAddr).Port

	if fallback && cfg.Address != "" {
		logger.Warn("dashboard port is already in use, perhaps another node is running; "+
			"hosting the dashboard on a fallback port",
			"requested_port", port, "port", actual)
	}

	d := &Dashboard{
		srv: &http.Server{
			Handler:           handler,
			TLSConfig:         tlsConf,
			ReadHeaderTimeout: 10 * time.Second,
		},
		ln:       ln,
		host:     host,
		port:     actual,
		fallback: fallback,
		tls:      tlsConf != nil,
	}
	go d.serve()
	return d, nil
}

func (d *Dashboard) serve() {
	var err error
	if d.tls {
		err = d.srv.ServeTLS(d.ln, "", "")
	} else {
		err = d.srv.Serve(d.ln)
	}
	_ = err // http.ErrServerClosed after Stop; the listener owns reporting
}

// Port reports the actually bound port, queried from the live listener at
// bind time.
func (d *Dashboard) Port() int { return d.port }

// Addr returns the bound "host:port".
func (d *Dashboard) Addr() string { return d.ln.Addr().String() }

// Fallback reports whether the bind used an ephemeral port instead of the
// requested one.
func (d *Dashboard) Fallback() bool { return d.fallback }

// TLSEnabled reports whether the endpoint serves HTTPS.
func (d *Dashboard) TLSEnabled() bool { return d.tls }

// Stop shuts the endpoint down. Idempotent.
func (d *Dashboard) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return d.srv.Close()
	}
	return nil
}

// resolveAddress applies the dashboard address rules: explicit address,
// else the default port, with a missing host inferred from the node's own
// listen address.
func resolveAddress(cfg Config) (string, int, error) {
	host := ""
	port := cfg.DefaultPort
	if cfg.Address != "" {
		// a bare port number means "default host, that port"
		if p, err := strconv.Atoi(cfg.Address); err == nil {
			port = p
		} else {
			h, p, err := service.Resolve(cfg.Address, "")
			if err != nil {
				return "", 0, fmt.Errorf("dashboard address: %w", err)
			}
			host, port = h, p
		}
	}
	if host == "" && cfg.NodeListenAddr != "" {
		if h, _, err := net.SplitHostPort(cfg.NodeListenAddr); err == nil {
			host = service.CleanHost(h)
		}
	}
	return host, port, nil
}

var _ service.Handle = (*Dashboard)(nil)
