// Package audit records security-relevant events: lockouts, CSRF rejections,
// circuit breaker transitions, shutdown. Publishing is fire-and-forget from the
// request path; a publisher failure is logged and never propagated to callers.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"civicgate/pkg/requestcontext"
)

// Actions emitted by the gateway core.
const (
	ActionLockoutTriggered = "lockout_triggered"
	ActionLockoutCleared   = "lockout_cleared"
	ActionLoginFailed      = "login_failed"
	ActionCSRFRejected     = "csrf_rejected"
	ActionBreakerOpened    = "circuit_breaker_opened"
	ActionBreakerClosed    = "circuit_breaker_closed"
	ActionShutdownStarted  = "shutdown_started"
)

// Event is a single security audit record.
type Event struct {
	ID         string            `json:"id"`
	Action     string            `json:"action"`
	OccurredAt time.Time         `json:"occurred_at"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// Publisher delivers audit events to a sink.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
	Close() error
}

// Emit builds an event and publishes it, logging (never returning) failures.
// A nil publisher degrades to log-only so callers don't need nil checks.
func Emit(ctx context.Context, logger *slog.Logger, pub Publisher, action string, fields map[string]string) {
	event := Event{
		ID:         uuid.NewString(),
		Action:     action,
		OccurredAt: requestcontext.Now(ctx),
		Fields:     fields,
	}

	if logger != nil {
		attrs := make([]any, 0, 2+2*len(fields))
		attrs = append(attrs, "audit_action", action)
		for k, v := range fields {
			attrs = append(attrs, k, v)
		}
		logger.InfoContext(ctx, "security audit event", attrs...)
	}

	if pub == nil {
		return
	}
	if err := pub.Emit(ctx, event); err != nil && logger != nil {
		logger.ErrorContext(ctx, "failed to publish audit event",
			"audit_action", action,
			"error", err,
		)
	}
}
