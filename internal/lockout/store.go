// Package lockout implements per-identifier brute-force mitigation: a failed
// attempt counter with a time-boxed lock. State lives behind the Store
// interface; the in-memory store is the default, with Redis and Postgres
// variants for deployments that want shared or durable enforcement.
package lockout

import (
	"context"
	"time"
)

// Record tracks failed authentication attempts for one normalized identifier.
type Record struct {
	Identifier     string
	FailedAttempts int
	LastAttemptAt  time.Time
	LockedUntil    *time.Time
}

// IsLockedAt reports whether the record holds an active lock at the given time.
func (r *Record) IsLockedAt(now time.Time) bool {
	return r.LockedUntil != nil && now.Before(*r.LockedUntil)
}

// RemainingAt returns the lock time left at the given time, zero if unlocked.
func (r *Record) RemainingAt(now time.Time) time.Duration {
	if r.LockedUntil == nil {
		return 0
	}
	remaining := r.LockedUntil.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Store is pure keyed I/O over lockout records. RecordFailure must be atomic
// per identifier: concurrent increments for the same identifier may not lose
// counts, so the threshold check in the tracker sees the true combined total.
// Lock decisions belong to the Tracker, not the store.
type Store interface {
	// RecordFailure increments the failure counter, stamps the attempt time,
	// and returns the updated record, creating it if absent.
	RecordFailure(ctx context.Context, identifier string) (*Record, error)
	// Get returns the record, or nil without error when unknown.
	Get(ctx context.Context, identifier string) (*Record, error)
	// Update persists a mutated record (used to apply the lock).
	Update(ctx context.Context, record *Record) error
	// Clear removes the record entirely; clearing an unknown identifier is a no-op.
	Clear(ctx context.Context, identifier string) error
	// DeleteStale removes records whose last attempt predates the cutoff and
	// returns how many were removed.
	DeleteStale(ctx context.Context, cutoff time.Time) (int, error)
}
