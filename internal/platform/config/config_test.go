package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := FromEnv()

		assert.Equal(t, ":8080", cfg.Addr)

		assert.Equal(t, 5, cfg.Lockout.MaxAttempts)
		assert.Equal(t, 15*time.Minute, cfg.Lockout.LockoutDuration)
		assert.Equal(t, "memory", cfg.Lockout.Store)

		assert.True(t, cfg.CSRF.Enabled)
		assert.Equal(t, "csrf-token", cfg.CSRF.CookieName)
		assert.Equal(t, "x-csrf-token", cfg.CSRF.HeaderName)
		assert.Equal(t, "strict", cfg.CSRF.SameSite)

		assert.Empty(t, cfg.Signer.Secret)
		assert.Equal(t, "civic-gateway", cfg.Signer.ClientID)

		assert.Equal(t, 5, cfg.Breakers["knowledge-search"].FailureThreshold)
		assert.Equal(t, 60*time.Second, cfg.Breakers["civic-records"].HalfOpenAfter)
		assert.Equal(t, 3, cfg.Breakers["documents"].FailureThreshold)

		assert.Equal(t, 10*time.Second, cfg.Shutdown.DrainTimeout)
		assert.Nil(t, cfg.Kafka.Brokers)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("GATEWAY_ADDR", ":9090")
		t.Setenv("LOCKOUT_MAX_ATTEMPTS", "3")
		t.Setenv("LOCKOUT_DURATION", "30m")
		t.Setenv("LOCKOUT_STORE", "redis")
		t.Setenv("CSRF_ENABLED", "false")
		t.Setenv("GATEWAY_HMAC_SECRET", "shared-secret")
		t.Setenv("BREAKER_DOCUMENTS_THRESHOLD", "7")
		t.Setenv("SHUTDOWN_DRAIN_TIMEOUT", "25s")
		t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092")

		cfg := FromEnv()

		assert.Equal(t, ":9090", cfg.Addr)
		assert.Equal(t, 3, cfg.Lockout.MaxAttempts)
		assert.Equal(t, 30*time.Minute, cfg.Lockout.LockoutDuration)
		assert.Equal(t, "redis", cfg.Lockout.Store)
		assert.False(t, cfg.CSRF.Enabled)
		assert.Equal(t, "shared-secret", cfg.Signer.Secret)
		assert.Equal(t, 7, cfg.Breakers["documents"].FailureThreshold)
		assert.Equal(t, 25*time.Second, cfg.Shutdown.DrainTimeout)
		assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
	})

	t.Run("malformed values fall back to defaults", func(t *testing.T) {
		t.Setenv("LOCKOUT_MAX_ATTEMPTS", "not-a-number")
		t.Setenv("LOCKOUT_DURATION", "soon")
		t.Setenv("CSRF_ENABLED", "maybe")

		cfg := FromEnv()

		assert.Equal(t, 5, cfg.Lockout.MaxAttempts)
		assert.Equal(t, 15*time.Minute, cfg.Lockout.LockoutDuration)
		assert.True(t, cfg.CSRF.Enabled)
	})
}
