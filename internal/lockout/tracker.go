package lockout

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"civicgate/internal/audit"
	"civicgate/internal/platform/config"
	"civicgate/internal/platform/metrics"
	dErrors "civicgate/pkg/domain-errors"
	"civicgate/pkg/platform/privacy"
	"civicgate/pkg/requestcontext"
)

// Tracker enforces the brute-force lockout policy over a Store. Identifiers
// are normalized (lowercase, trimmed) before every store access, so matching
// is case-insensitive by design.
type Tracker struct {
	store          Store
	logger         *slog.Logger
	auditPublisher audit.Publisher
	metrics        *metrics.Metrics
	cfg            config.LockoutConfig
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithAuditPublisher sets the security audit sink.
func WithAuditPublisher(pub audit.Publisher) Option {
	return func(t *Tracker) {
		t.auditPublisher = pub
	}
}

// WithMetrics wires the failed-attempt and lockout counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) {
		t.metrics = m
	}
}

// WithConfig overrides the default lockout policy.
func WithConfig(cfg config.LockoutConfig) Option {
	return func(t *Tracker) {
		t.cfg = cfg
	}
}

// New constructs a Tracker with the default policy: 5 attempts, 15 minute lock.
func New(store Store, opts ...Option) (*Tracker, error) {
	if store == nil {
		return nil, errors.New("lockout store is required")
	}

	t := &Tracker{
		store: store,
		cfg: config.LockoutConfig{
			MaxAttempts:     5,
			LockoutDuration: 15 * time.Minute,
			SweepInterval:   5 * time.Minute,
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Normalize lowercases and trims an identifier so "Test@Example.com" and
// "test@example.com" share one record.
func Normalize(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// RecordFailedAttempt increments the failure counter for the identifier and
// returns true when the identifier is locked after this attempt. The lock is
// applied exactly when the post-increment count reaches the threshold; attempts
// made while already locked do not extend the lock window.
func (t *Tracker) RecordFailedAttempt(ctx context.Context, identifier, sourceAddr string) (bool, error) {
	key := Normalize(identifier)

	record, err := t.store.RecordFailure(ctx, key)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record lockout attempt")
	}

	now := requestcontext.Now(ctx)

	if t.metrics != nil {
		t.metrics.FailedAttempts.Inc()
	}

	if t.logger != nil {
		t.logger.WarnContext(ctx, "failed login attempt",
			"identifier", privacy.MaskIdentifier(key),
			"source", privacy.AnonymizeIP(sourceAddr),
			"failed_attempts", record.FailedAttempts,
		)
	}

	if record.FailedAttempts < t.cfg.MaxAttempts {
		return false, nil
	}

	if !record.IsLockedAt(now) {
		until := now.Add(t.cfg.LockoutDuration)
		record.LockedUntil = &until
		if err := t.store.Update(ctx, record); err != nil {
			return true, dErrors.Wrap(err, dErrors.CodeInternal, "failed to apply lockout")
		}
		if t.metrics != nil {
			t.metrics.LockoutsTriggered.Inc()
		}
		audit.Emit(ctx, t.logger, t.auditPublisher, audit.ActionLockoutTriggered, map[string]string{
			"identifier":   privacy.MaskIdentifier(key),
			"source":       privacy.AnonymizeIP(sourceAddr),
			"locked_until": until.Format(time.RFC3339),
		})
	}

	return true, nil
}

// IsLocked reports whether the identifier currently holds an active lock.
func (t *Tracker) IsLocked(ctx context.Context, identifier string) (bool, error) {
	record, err := t.store.Get(ctx, Normalize(identifier))
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read lockout record")
	}
	if record == nil {
		return false, nil
	}
	return record.IsLockedAt(requestcontext.Now(ctx)), nil
}

// RemainingLockout returns how long the identifier stays locked; zero when
// unlocked or unknown.
func (t *Tracker) RemainingLockout(ctx context.Context, identifier string) (time.Duration, error) {
	record, err := t.store.Get(ctx, Normalize(identifier))
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read lockout record")
	}
	if record == nil {
		return 0, nil
	}
	return record.RemainingAt(requestcontext.Now(ctx)), nil
}

// Clear deletes the record entirely; called on successful authentication.
func (t *Tracker) Clear(ctx context.Context, identifier string) error {
	key := Normalize(identifier)
	if err := t.store.Clear(ctx, key); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear lockout record")
	}
	audit.Emit(ctx, t.logger, t.auditPublisher, audit.ActionLockoutCleared, map[string]string{
		"identifier": privacy.MaskIdentifier(key),
	})
	return nil
}

// FailedAttempts returns the current counter, zero when unknown.
func (t *Tracker) FailedAttempts(ctx context.Context, identifier string) (int, error) {
	record, err := t.store.Get(ctx, Normalize(identifier))
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read lockout record")
	}
	if record == nil {
		return 0, nil
	}
	return record.FailedAttempts, nil
}

// CleanupExpired removes records whose last attempt is older than twice the
// lockout duration. Runs from the sweeper, never from the request path.
func (t *Tracker) CleanupExpired(ctx context.Context) (int, error) {
	cutoff := requestcontext.Now(ctx).Add(-2 * t.cfg.LockoutDuration)
	removed, err := t.store.DeleteStale(ctx, cutoff)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sweep lockout records")
	}
	if removed > 0 && t.logger != nil {
		t.logger.DebugContext(ctx, "swept stale lockout records", "removed", removed)
	}
	return removed, nil
}

// RunSweeper ticks CleanupExpired until the context is cancelled.
func (t *Tracker) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := t.CleanupExpired(ctx); err != nil && t.logger != nil {
				t.logger.ErrorContext(ctx, "lockout sweep failed", "error", err)
			}
		}
	}
}
