package observability

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/aretw0/mqlua/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the node lifecycle collectors.
type Metrics struct {
	registry *prometheus.Registry

	started     prometheus.Counter
	terminated  prometheus.Counter
	failed      prometheus.Counter
	active      prometheus.Gauge
	spawnErrors *prometheus.CounterVec
	duration    prometheus.Histogram

	mu   sync.Mutex
	snap Snapshot
}

// Snapshot is a point-in-time view of the counters, served by the admin
// endpoint as JSON.
type Snapshot struct {
	Started     uint64            `json:"started"`
	Terminated  uint64            `json:"terminated"`
	Failed      uint64            `json:"failed"`
	Active      int64             `json:"active"`
	SpawnErrors map[string]uint64 `json:"spawn_errors"`
	LastExit    *domain.NodeEvent `json:"last_exit,omitempty"`
}

// NewMetrics creates the collectors and registers them on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mqlua_nodes_started_total",
			Help: "Total number of nodes started",
		}),
		terminated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mqlua_nodes_terminated_total",
			Help: "Total number of nodes that terminated, successfully or not",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mqlua_nodes_failed_total",
			Help: "Total number of nodes whose program raised an error",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mqlua_nodes_active",
			Help: "Number of nodes currently running",
		}),
		spawnErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mqlua_spawn_errors_total",
				Help: "Spawn failures by kind",
			},
			[]string{"kind"},
		),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mqlua_node_duration_seconds",
			Help:    "Run time of nodes",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		snap: Snapshot{SpawnErrors: make(map[string]uint64)},
	}
	m.registry.MustRegister(m.started, m.terminated, m.failed, m.active, m.spawnErrors, m.duration)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Hooks returns lifecycle hooks that feed the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeStart: func(_ context.Context, _ *domain.NodeEvent) {
			m.started.Inc()
			m.active.Inc()
			m.mu.Lock()
			m.snap.Started++
			m.snap.Active++
			m.mu.Unlock()
		},
		OnNodeExit: func(_ context.Context, e *domain.NodeEvent) {
			m.terminated.Inc()
			m.active.Dec()
			m.duration.Observe(e.Duration.Seconds())
			if e.Failed {
				m.failed.Inc()
			}
			last := *e
			m.mu.Lock()
			m.snap.Terminated++
			m.snap.Active--
			if e.Failed {
				m.snap.Failed++
			}
			m.snap.LastExit = &last
			m.mu.Unlock()
		},
		OnSpawnError: func(_ context.Context, _ string, err error) {
			kind := SpawnErrorKind(err)
			m.spawnErrors.WithLabelValues(kind).Inc()
			m.mu.Lock()
			m.snap.SpawnErrors[kind]++
			m.mu.Unlock()
		},
	}
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.snap
	s.SpawnErrors = make(map[string]uint64, len(m.snap.SpawnErrors))
	for k, v := range m.snap.SpawnErrors {
		s.SpawnErrors[k] = v
	}
	return s
}

// SpawnErrorKind maps a spawn error to a metric label.
func SpawnErrorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrLoad):
		return "load"
	case errors.Is(err, domain.ErrMarshalType):
		return "marshal"
	case errors.Is(err, domain.ErrRecursionLimit):
		return "recursion"
	case errors.Is(err, domain.ErrThreadCreation):
		return "thread"
	default:
		return "other"
	}
}

// Chain combines several hook sets; each callback runs in argument order.
func Chain(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var starts, exits []func(context.Context, *domain.NodeEvent)
	var spawnErrs []func(context.Context, string, error)
	for _, h := range sets {
		if h.OnNodeStart != nil {
			starts = append(starts, h.OnNodeStart)
		}
		if h.OnNodeExit != nil {
			exits = append(exits, h.OnNodeExit)
		}
		if h.OnSpawnError != nil {
			spawnErrs = append(spawnErrs, h.OnSpawnError)
		}
	}

	var out domain.LifecycleHooks
	if len(starts) > 0 {
		out.OnNodeStart = func(ctx context.Context, e *domain.NodeEvent) {
			for _, f := range starts {
				f(ctx, e)
			}
		}
	}
	if len(exits) > 0 {
		out.OnNodeExit = func(ctx context.Context, e *domain.NodeEvent) {
			for _, f := range exits {
				f(ctx, e)
			}
		}
	}
	if len(spawnErrs) > 0 {
		out.OnSpawnError = func(ctx context.Context, path string, err error) {
			for _, f := range spawnErrs {
				f(ctx, path, err)
			}
		}
	}
	return out
}

// LogHooks returns hooks that write lifecycle transitions to logger at debug
// level. Script errors themselves are logged by the node runtime.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeStart: func(_ context.Context, e *domain.NodeEvent) {
			logger.Debug("node started", "node", e.NodeID, "path", e.Path, "args", e.Args)
		},
		OnNodeExit: func(_ context.Context, e *domain.NodeEvent) {
			logger.Debug("node terminated", "node", e.NodeID, "path", e.Path, "duration", e.Duration, "failed", e.Failed)
		},
		OnSpawnError: func(_ context.Context, path string, err error) {
			logger.Debug("spawn failed", "path", path, "kind", SpawnErrorKind(err), "err", err)
		},
	}
}
