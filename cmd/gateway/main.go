// Command gateway runs the civic-data API gateway core: the request-trust and
// resilience boundary in front of the internal services. main wires
// dependencies and keeps the server lifecycle small; behavior lives in the
// internal packages.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"civicgate/internal/audit"
	"civicgate/internal/auth"
	"civicgate/internal/circuit"
	"civicgate/internal/csrf"
	"civicgate/internal/downstream"
	"civicgate/internal/lockout"
	"civicgate/internal/platform/config"
	"civicgate/internal/platform/httpserver"
	"civicgate/internal/platform/logger"
	"civicgate/internal/platform/metrics"
	platformpostgres "civicgate/internal/platform/postgres"
	platformredis "civicgate/internal/platform/redis"
	"civicgate/internal/shutdown"
	"civicgate/internal/signer"
	"civicgate/internal/token"
	httptransport "civicgate/internal/transport/http"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auditPublisher := newAuditPublisher(ctx, cfg, log)
	if auditPublisher != nil {
		defer auditPublisher.Close()
	}

	store, cleanup, err := newLockoutStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize lockout store", "error", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	tracker, err := lockout.New(store,
		lockout.WithLogger(log),
		lockout.WithAuditPublisher(auditPublisher),
		lockout.WithMetrics(m),
		lockout.WithConfig(cfg.Lockout),
	)
	if err != nil {
		log.Error("failed to initialize lockout tracker", "error", err)
		os.Exit(1)
	}

	breakers := circuit.NewManager(cfg.Breakers,
		circuit.WithManagerLogger(log),
		circuit.WithMetrics(m),
		circuit.WithAuditPublisher(auditPublisher),
	)

	sgn := signer.New(cfg.Signer.Secret, cfg.Signer.ClientID, signer.WithLogger(log))
	client := downstream.New(breakers, sgn,
		downstream.WithLogger(log),
		downstream.WithMetrics(m),
	)

	users := auth.NewInMemoryUserStore()
	seedUsers(users, log)

	tokens := token.NewService(cfg.JWTSigningKey, cfg.JWTIssuer)
	authService, err := auth.New(users, tracker, tokens,
		auth.WithLogger(log),
		auth.WithAuditPublisher(auditPublisher),
	)
	if err != nil {
		log.Error("failed to initialize auth service", "error", err)
		os.Exit(1)
	}

	guard := csrf.New(cfg.CSRF,
		csrf.WithLogger(log),
		csrf.WithMetrics(m),
		csrf.WithAuditPublisher(auditPublisher),
	)

	coordinator := shutdown.New(cfg.Shutdown.DrainTimeout,
		shutdown.WithLogger(log),
		shutdown.WithMetrics(m),
		shutdown.WithAuditPublisher(auditPublisher),
	)

	handler := httptransport.NewHandler(authService, tracker, breakers, coordinator, client, tokens, cfg.Downstream, log)
	router := httptransport.NewRouter(handler, guard)

	srv := httpserver.New(cfg.Addr, router)
	coordinator.SetHTTPServer(srv)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting civicgate", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		tracker.RunSweeper(gctx)
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		select {
		case sig := <-quit:
			coordinator.OnShutdown(sig.String())
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("civicgate stopped")
}

// newAuditPublisher returns the Kafka publisher when brokers are configured,
// nil (log-only auditing) otherwise.
func newAuditPublisher(ctx context.Context, cfg config.Config, log *slog.Logger) audit.Publisher {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil
	}
	pub, err := audit.NewKafkaPublisher(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic,
		audit.WithKafkaLogger(log),
	)
	if err != nil {
		log.Warn("kafka audit publisher unavailable, falling back to log-only auditing", "error", err)
		return nil
	}
	return pub
}

// newLockoutStore selects the lockout store backend from configuration.
func newLockoutStore(ctx context.Context, cfg config.Config, log *slog.Logger) (lockout.Store, func(), error) {
	switch cfg.Lockout.Store {
	case "redis":
		client, err := platformredis.New(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		if client == nil {
			log.Warn("redis lockout store selected but REDIS_URL is empty, using in-memory store")
			return lockout.NewInMemoryStore(), nil, nil
		}
		store := lockout.NewRedisStore(client, 2*cfg.Lockout.LockoutDuration)
		return store, func() { _ = client.Close() }, nil
	case "postgres":
		pool, err := platformpostgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		if pool == nil {
			log.Warn("postgres lockout store selected but POSTGRES_URL is empty, using in-memory store")
			return lockout.NewInMemoryStore(), nil, nil
		}
		return lockout.NewPostgres(pool), pool.Close, nil
	default:
		return lockout.NewInMemoryStore(), nil, nil
	}
}

// seedUsers loads the bootstrap credential set. Production deployments point
// the gateway at the real user service; the seed exists for local development
// and smoke tests.
func seedUsers(users *auth.InMemoryUserStore, log *slog.Logger) {
	email := os.Getenv("SEED_USER_EMAIL")
	hash := os.Getenv("SEED_USER_PASSWORD_HASH")
	if email == "" || hash == "" {
		log.Warn("no seed user configured, login will reject all credentials")
		return
	}
	users.Seed(&auth.User{
		ID:           "seed-user",
		Email:        email,
		PasswordHash: hash,
	})
}
