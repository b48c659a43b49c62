package service

import "log/slog"

// Handle is a live, bound service as the registry tracks it. Endpoints
// bound elsewhere (the dashboard) register a Handle directly.
type Handle interface {
	// Port reports the bound port.
	Port() int
	// Stop releases the service's listener and resources.
	Stop() error
}

// Service is an auxiliary network endpoint started alongside a node's
// primary protocol server (dashboard, metrics exporter, debug console).
type Service interface {
	Handle
	// Listen binds the service to the resolved address. A port of 0 asks
	// the kernel for any free port.
	Listen(host string, port int) error
}

// Owner is the node a service belongs to. Services receive their owner at
// construction time and may assert it to a richer node interface.
type Owner interface {
	Logger() *slog.Logger
}

// Constructor builds a service instance for owner with the declared
// keyword options. Construction must not bind; binding happens in Listen.
type Constructor func(owner Owner, opts map[string]any) (Service, error)

// Decl declares one service: its registry key, its port spec (any shape
// accepted by Resolve), its constructor and options.
type Decl struct {
	Name string
	Port any
	New  Constructor
	Opts map[string]any
}

// Spec is an ordered list of service declarations. Startup follows
// declaration order; shutdown order is unspecified.
type Spec []Decl
