// Package config builds the gateway configuration from environment variables
// so main stays lean. Every knob has a default suitable for local development;
// production deployments override through the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration for the gateway process.
type Config struct {
	Addr string

	Lockout  LockoutConfig
	CSRF     CSRFConfig
	Signer   SignerConfig
	Breakers map[string]BreakerConfig
	Shutdown ShutdownConfig

	Downstream DownstreamConfig

	JWTSigningKey string
	JWTIssuer     string

	Redis    RedisConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig
}

// LockoutConfig controls the brute-force lockout tracker.
type LockoutConfig struct {
	MaxAttempts     int
	LockoutDuration time.Duration
	SweepInterval   time.Duration
	// Store selects the backing store: "memory" (default), "redis", "postgres".
	Store string
}

// CSRFConfig controls the double-submit cookie guard.
type CSRFConfig struct {
	Enabled      bool
	CookieName   string
	HeaderName   string
	TokenMaxAge  time.Duration
	CookieDomain string
	SecureCookie bool
	SameSite     string
}

// SignerConfig controls outbound request signing.
type SignerConfig struct {
	Secret   string
	ClientID string
}

// BreakerConfig is the per-dependency circuit breaker tuning.
type BreakerConfig struct {
	FailureThreshold int
	HalfOpenAfter    time.Duration
}

// ShutdownConfig bounds the connection drain window.
type ShutdownConfig struct {
	DrainTimeout time.Duration
}

// DownstreamConfig holds the internal service endpoints the gateway fans out to.
type DownstreamConfig struct {
	KnowledgeSearchURL string
	CivicRecordsURL    string
	DocumentsURL       string
}

// RedisConfig configures the optional Redis-backed lockout store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig configures the optional Postgres-backed lockout store.
type PostgresConfig struct {
	URL string
}

// KafkaConfig configures the security audit publisher. Empty brokers means
// audit events go to the structured log only.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr: envString("GATEWAY_ADDR", ":8080"),
		Lockout: LockoutConfig{
			MaxAttempts:     envInt("LOCKOUT_MAX_ATTEMPTS", 5),
			LockoutDuration: envDuration("LOCKOUT_DURATION", 15*time.Minute),
			SweepInterval:   envDuration("LOCKOUT_SWEEP_INTERVAL", 5*time.Minute),
			Store:           envString("LOCKOUT_STORE", "memory"),
		},
		CSRF: CSRFConfig{
			Enabled:      envBool("CSRF_ENABLED", true),
			CookieName:   envString("CSRF_COOKIE_NAME", "csrf-token"),
			HeaderName:   envString("CSRF_HEADER_NAME", "x-csrf-token"),
			TokenMaxAge:  envDuration("CSRF_TOKEN_MAX_AGE", 24*time.Hour),
			CookieDomain: os.Getenv("CSRF_COOKIE_DOMAIN"),
			SecureCookie: envBool("CSRF_SECURE_COOKIE", false),
			SameSite:     envString("CSRF_SAME_SITE", "strict"),
		},
		Signer: SignerConfig{
			Secret:   os.Getenv("GATEWAY_HMAC_SECRET"),
			ClientID: envString("GATEWAY_CLIENT_ID", "civic-gateway"),
		},
		Breakers: map[string]BreakerConfig{
			"knowledge-search": {
				FailureThreshold: envInt("BREAKER_KNOWLEDGE_THRESHOLD", 5),
				HalfOpenAfter:    envDuration("BREAKER_KNOWLEDGE_HALF_OPEN_AFTER", 30*time.Second),
			},
			"civic-records": {
				FailureThreshold: envInt("BREAKER_RECORDS_THRESHOLD", 5),
				// Regional record systems recover slowly; give them a longer cooldown.
				HalfOpenAfter: envDuration("BREAKER_RECORDS_HALF_OPEN_AFTER", 60*time.Second),
			},
			"documents": {
				FailureThreshold: envInt("BREAKER_DOCUMENTS_THRESHOLD", 3),
				HalfOpenAfter:    envDuration("BREAKER_DOCUMENTS_HALF_OPEN_AFTER", 15*time.Second),
			},
		},
		Shutdown: ShutdownConfig{
			DrainTimeout: envDuration("SHUTDOWN_DRAIN_TIMEOUT", 10*time.Second),
		},
		Downstream: DownstreamConfig{
			KnowledgeSearchURL: envString("KNOWLEDGE_SEARCH_URL", "http://knowledge-search.internal/graphql"),
			CivicRecordsURL:    envString("CIVIC_RECORDS_URL", "http://civic-records.internal/graphql"),
			DocumentsURL:       envString("DOCUMENTS_URL", "http://documents.internal/graphql"),
		},
		JWTSigningKey: envString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:     envString("JWT_ISSUER", "civicgate"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			URL: os.Getenv("POSTGRES_URL"),
		},
		Kafka: KafkaConfig{
			Brokers: envStrings("KAFKA_BROKERS"),
			Topic:   envString("KAFKA_AUDIT_TOPIC", "civicgate.security-audit"),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envStrings(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
