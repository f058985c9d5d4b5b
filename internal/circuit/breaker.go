// Package circuit wraps calls to downstream dependencies with a circuit
// breaker: failures are counted, a tripped breaker fails fast instead of
// calling a known-bad service, and a half-open probe tests recovery with a
// single trial call.
package circuit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"civicgate/internal/platform/config"
)

// State is the breaker state machine position.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Event is the tag delivered to listeners on every call outcome.
type Event string

const (
	EventSuccess Event = "success"
	EventFailure Event = "failure"
	EventBreak   Event = "break"
)

// OpenError is returned when the breaker short-circuits a call. It carries the
// dependency name and the failure that tripped the breaker so operators can
// tell "known bad, fast-failed" apart from "just failed this one time".
type OpenError struct {
	Service string
	LastErr error
}

func (e *OpenError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("circuit open for %s: %v", e.Service, e.LastErr)
	}
	return fmt.Sprintf("circuit open for %s", e.Service)
}

func (e *OpenError) Unwrap() error {
	return e.LastErr
}

// Health is a point-in-time snapshot for readiness reporting.
type Health struct {
	Service       string     `json:"service"`
	State         State      `json:"state"`
	Healthy       bool       `json:"healthy"`
	FailureCount  int        `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
}

// Breaker guards calls to a single downstream dependency.
type Breaker struct {
	service string
	cfg     config.BreakerConfig
	logger  *slog.Logger
	nowFn   func() time.Time

	mu            sync.Mutex
	state         State
	failureCount  int
	lastErr       error
	lastFailureAt *time.Time
	lastSuccessAt *time.Time
	probeInFlight bool
	listeners     map[int]func(Event)
	nextListener  int
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Breaker) {
		b.logger = logger
	}
}

// WithConfig overrides the default thresholds.
func WithConfig(cfg config.BreakerConfig) Option {
	return func(b *Breaker) {
		if cfg.FailureThreshold > 0 {
			b.cfg.FailureThreshold = cfg.FailureThreshold
		}
		if cfg.HalfOpenAfter > 0 {
			b.cfg.HalfOpenAfter = cfg.HalfOpenAfter
		}
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		b.nowFn = now
	}
}

// New constructs a closed breaker for the named dependency with defaults of
// 5 failures and a 30 second cooldown.
func New(service string, opts ...Option) *Breaker {
	b := &Breaker{
		service: service,
		cfg: config.BreakerConfig{
			FailureThreshold: 5,
			HalfOpenAfter:    30 * time.Second,
		},
		nowFn:     time.Now,
		state:     StateClosed,
		listeners: make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Execute runs fn under the breaker. When the breaker is open and the cooldown
// has not elapsed, fn is never invoked and an *OpenError is returned. State is
// only mutated after fn resolves; a caller that abandons its context does not
// retroactively affect bookkeeping. A panic in fn is recorded as a failure
// before it propagates, so a panicking probe cannot wedge the breaker.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	ownsProbe, err := b.beforeCall()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			b.afterCall(fmt.Errorf("call panicked: %v", r), ownsProbe)
			panic(r)
		}
	}()

	err = fn(ctx)
	b.afterCall(err, ownsProbe)
	return err
}

// beforeCall admits or rejects the call and moves OPEN to HALF_OPEN when the
// cooldown has elapsed. Only one probe is admitted at a time while half-open;
// ownsProbe marks the call holding that slot so only it releases the slot.
func (b *Breaker) beforeCall() (ownsProbe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return false, nil
	case StateHalfOpen:
		if b.probeInFlight {
			return false, &OpenError{Service: b.service, LastErr: b.lastErr}
		}
		b.probeInFlight = true
		return true, nil
	default: // StateOpen
		// A stale call finishing with a failure can reopen the breaker while
		// the probe is still running; its slot stays held until it resolves.
		if b.probeInFlight || b.lastFailureAt == nil || b.nowFn().Sub(*b.lastFailureAt) < b.cfg.HalfOpenAfter {
			return false, &OpenError{Service: b.service, LastErr: b.lastErr}
		}
		b.state = StateHalfOpen
		b.probeInFlight = true
		if b.logger != nil {
			b.logger.Info("circuit half-open, probing", "service", b.service)
		}
		return true, nil
	}
}

// afterCall records the outcome and notifies listeners outside the lock.
func (b *Breaker) afterCall(err error, ownsProbe bool) {
	b.mu.Lock()

	now := b.nowFn()
	if ownsProbe {
		b.probeInFlight = false
	}

	var event Event
	if err == nil {
		b.failureCount = 0
		b.lastErr = nil
		b.lastSuccessAt = &now
		if b.state != StateClosed {
			if b.logger != nil {
				b.logger.Info("circuit closed", "service", b.service)
			}
			b.state = StateClosed
		}
		event = EventSuccess
	} else {
		b.failureCount++
		b.lastErr = err
		b.lastFailureAt = &now
		if b.state == StateHalfOpen || b.failureCount >= b.cfg.FailureThreshold {
			if b.state != StateOpen && b.logger != nil {
				b.logger.Warn("circuit opened",
					"service", b.service,
					"failure_count", b.failureCount,
					"error", err,
				)
			}
			b.state = StateOpen
			event = EventBreak
		} else {
			event = EventFailure
		}
	}

	listeners := make([]func(Event), 0, len(b.listeners))
	for _, l := range b.listeners {
		listeners = append(listeners, l)
	}
	b.mu.Unlock()

	for _, l := range listeners {
		b.notify(l, event)
	}
}

// notify invokes one listener inside its own panic boundary so a broken
// listener can neither corrupt breaker state nor reach the Execute caller.
func (b *Breaker) notify(listener func(Event), event Event) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Error("circuit breaker listener panicked",
				"service", b.service,
				"event", string(event),
				"panic", fmt.Sprint(r),
			)
		}
	}()
	listener(event)
}

// Subscribe registers a listener for call outcome events and returns its
// removal function.
func (b *Breaker) Subscribe(listener func(Event)) (remove func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextListener
	b.nextListener++
	b.listeners[id] = listener

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

// Service returns the guarded dependency name.
func (b *Breaker) Service() string {
	return b.service
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsHealthy reports true unless the breaker is open.
func (b *Breaker) IsHealthy() bool {
	return b.State() != StateOpen
}

// Health returns a structured snapshot.
func (b *Breaker) Health() Health {
	b.mu.Lock()
	defer b.mu.Unlock()

	h := Health{
		Service:      b.service,
		State:        b.state,
		Healthy:      b.state != StateOpen,
		FailureCount: b.failureCount,
	}
	if b.lastFailureAt != nil {
		at := *b.lastFailureAt
		h.LastFailureAt = &at
	}
	if b.lastSuccessAt != nil {
		at := *b.lastSuccessAt
		h.LastSuccessAt = &at
	}
	return h
}

// Config returns a copy of the breaker configuration.
func (b *Breaker) Config() config.BreakerConfig {
	return b.cfg
}
