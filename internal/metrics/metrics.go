package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	nodeStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gridnode",
			Subsystem: "node",
			Name:      "starts_total",
			Help:      "Number of completed node startups.",
		}, []string{"type"},
	)
	nodeState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gridnode",
			Subsystem: "node",
			Name:      "state",
			Help:      "Current lifecycle state of the node (1 = active state, 0 = inactive).",
		}, []string{"type", "state"},
	)
	startupTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gridnode",
			Subsystem: "node",
			Name:      "startup_timeouts_total",
			Help:      "Number of startups aborted by the death timeout.",
		}, []string{"type"},
	)
	servicesRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gridnode",
			Subsystem: "service",
			Name:      "running",
			Help:      "Current number of live auxiliary services.",
		},
	)
	serviceStartFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gridnode",
			Subsystem: "service",
			Name:      "start_failures_total",
			Help:      "Number of auxiliary services that failed to start.",
		}, []string{"service"},
	)
	dashboardFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gridnode",
			Subsystem: "dashboard",
			Name:      "port_fallbacks_total",
			Help:      "Number of dashboard binds that fell back to an ephemeral port.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{nodeStarts, nodeState, startupTimeouts, servicesRunning, serviceStartFailures, dashboardFallbacks}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncNodeStart(nodeType string) {
	if regOK.Load() {
		nodeStarts.WithLabelValues(nodeType).Inc()
	}
}

func IncStartupTimeout(nodeType string) {
	if regOK.Load() {
		startupTimeouts.WithLabelValues(nodeType).Inc()
	}
}

func SetNodeState(nodeType, state string, active bool) {
	if regOK.Load() {
		var value float64
		if active {
			value = 1
		}
		nodeState.WithLabelValues(nodeType, state).Set(value)
	}
}

func SetServicesRunning(n int) {
	if regOK.Load() {
		servicesRunning.Set(float64(n))
	}
}

func IncServiceStartFailure(service string) {
	if regOK.Load() {
		serviceStartFailures.WithLabelValues(service).Inc()
	}
}

func IncDashboardFallback() {
	if regOK.Load() {
		dashboardFallbacks.Inc()
	}
}
