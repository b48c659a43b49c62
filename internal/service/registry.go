package service

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/loykin/gridnode/internal/metrics"
)

// Registry owns the live service handles of one node. It is not shared
// between nodes.
type Registry struct {
	owner  Owner
	logger *slog.Logger

	mu       sync.Mutex
	services map[string]Handle
}

func NewRegistry(owner Owner, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		owner:    owner,
		logger:   logger,
		services: make(map[string]Handle),
	}
}

// StartServices resolves, constructs and binds every declared service in
// declaration order. Individual failures are never fatal: they are logged
// as warnings naming the service and the attempted port, and startup moves
// on to the next declaration.
func (r *Registry) StartServices(spec Spec, defaultHost string) {
	defaultHost = CleanHost(defaultHost)
	for _, d := range spec {
		host, port, err := Resolve(d.Port, defaultHost)
		if err != nil {
			r.warn(d.Name, d.Port, err)
			continue
		}
		if d.New == nil {
			r.warn(d.Name, port, errors.New("no constructor declared"))
			continue
		}
		svc, err := d.New(r.owner, d.Opts)
		if err != nil {
			r.warn(d.Name, port, err)
			continue
		}
		if err := svc.Listen(host, port); err != nil {
			r.warn(d.Name, port, err)
			continue
		}
		r.Register(d.Name, svc)
	}
}

func (r *Registry) warn(name string, port any, err error) {
	metrics.IncServiceStartFailure(name)
	r.logger.Warn("could not launch service",
		"service", name, "port", fmt.Sprintf("%v", port), "error", err)
}

// Register stores a live handle under name, replacing any previous handle
// with that name.
func (r *Registry) Register(name string, svc Handle) {
	r.mu.Lock()
	r.services[name] = svc
	r.mu.Unlock()
	metrics.SetServicesRunning(r.Len())
}

// Get returns the live handle registered under name, or nil.
func (r *Registry) Get(name string) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.services[name]
}

// StopServices stops every registered handle and removes it. Iteration
// order is unspecified; services must not rely on shutdown ordering. Errors
// are collected and returned joined so callers can report them without
// aborting the remaining stops.
func (r *Registry) StopServices() error {
	r.mu.Lock()
	handles := make(map[string]Handle, len(r.services))
	for name, svc := range r.services {
		handles[name] = svc
	}
	r.services = make(map[string]Handle)
	r.mu.Unlock()

	var errs []error
	for name, svc := range handles {
		if err := svc.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop service %s: %w", name, err))
		}
	}
	metrics.SetServicesRunning(0)
	return errors.Join(errs...)
}

// Ports is a read-only projection of the registry: the bound port of every
// live handle. It is recomputed on each call, never cached.
func (r *Registry) Ports() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.services))
	for name, svc := range r.services {
		out[name] = svc.Port()
	}
	return out
}

// Len reports the number of live handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.services)
}
