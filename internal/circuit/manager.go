package circuit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"civicgate/internal/audit"
	"civicgate/internal/platform/config"
	"civicgate/internal/platform/metrics"
)

// Manager owns one breaker per downstream dependency. Breakers are created
// lazily with the per-dependency configuration, or defaults for dependencies
// that were never tuned.
type Manager struct {
	mu             sync.Mutex
	breakers       map[string]*Breaker
	configs        map[string]config.BreakerConfig
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher audit.Publisher
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger passed to every breaker.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics wires breaker state and failure metrics.
func WithMetrics(metrics *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithAuditPublisher records breaker open/close transitions in the security
// audit trail.
func WithAuditPublisher(pub audit.Publisher) ManagerOption {
	return func(m *Manager) {
		m.auditPublisher = pub
	}
}

// NewManager constructs a Manager with per-dependency configurations.
func NewManager(configs map[string]config.BreakerConfig, opts ...ManagerOption) *Manager {
	m := &Manager{
		breakers: make(map[string]*Breaker),
		configs:  configs,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the breaker for a dependency, creating it on first use.
func (m *Manager) Get(service string) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.breakers[service]; ok {
		return b
	}

	opts := []Option{WithLogger(m.logger)}
	if cfg, ok := m.configs[service]; ok {
		opts = append(opts, WithConfig(cfg))
	}
	b := New(service, opts...)

	if m.metrics != nil {
		m.metrics.BreakerState.WithLabelValues(service).Set(0)
		b.Subscribe(func(event Event) {
			switch event {
			case EventFailure:
				m.metrics.BreakerFailures.WithLabelValues(service).Inc()
			case EventBreak:
				m.metrics.BreakerFailures.WithLabelValues(service).Inc()
				m.metrics.BreakerState.WithLabelValues(service).Set(1)
			case EventSuccess:
				m.metrics.BreakerState.WithLabelValues(service).Set(0)
			}
		})
	}

	// Open/close transitions go to the audit trail. The breaker reports call
	// outcomes, not transitions, so track the open edge here.
	var wasOpen atomic.Bool
	b.Subscribe(func(event Event) {
		switch event {
		case EventBreak:
			if !wasOpen.Swap(true) {
				audit.Emit(context.Background(), m.logger, m.auditPublisher,
					audit.ActionBreakerOpened, map[string]string{"service": service})
			}
		case EventSuccess:
			if wasOpen.Swap(false) {
				audit.Emit(context.Background(), m.logger, m.auditPublisher,
					audit.ActionBreakerClosed, map[string]string{"service": service})
			}
		}
	})

	m.breakers[service] = b
	return b
}

// Health returns snapshots for every breaker created so far.
func (m *Manager) Health() []Health {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Health, 0, len(m.breakers))
	for _, b := range m.breakers {
		out = append(out, b.Health())
	}
	return out
}

// Healthy reports false if any breaker is open.
func (m *Manager) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range m.breakers {
		if !b.IsHealthy() {
			return false
		}
	}
	return true
}
