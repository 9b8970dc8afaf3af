// Package app assembles the booking service from an Environment.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/consultdesk/libs/auth"
	"github.com/md-rashed-zaman/consultdesk/libs/db"
	"github.com/md-rashed-zaman/consultdesk/libs/grpcx"
	"github.com/md-rashed-zaman/consultdesk/libs/httpx"
	"github.com/md-rashed-zaman/consultdesk/libs/kafkax"
	"github.com/md-rashed-zaman/consultdesk/libs/runtime"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/directory"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/identity"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/storage/memory"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/storage/postgres"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

type App struct {
	Env     Environment
	Logger  *slog.Logger
	Handler http.Handler
	Relay   *outbox.Relay
	Booking *booking.Service

	grpcServer *grpc.Server
	health     *health.Server
	closers    []func()
}

// Build connects every dependency the environment selects. On error, whatever was opened is
// closed again.
func Build(ctx context.Context, env Environment, logger *slog.Logger) (*App, error) {
	a := &App{Env: env, Logger: logger}
	built := false
	defer func() {
		if !built {
			a.Close()
		}
	}()

	zone, err := clock.LoadZone(env.Timezone)
	if err != nil {
		return nil, err
	}

	var checks []runtime.ReadyCheck

	var store storage.Store
	if env.Mode == ModeMock {
		store = memory.New()
	} else {
		pool, err := db.Open(ctx, env.DatabaseURL, db.Options{MaxConns: int32(env.DBMaxConns)})
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.onClose(pool.Close)
		pg := postgres.New(pool)
		if err := pg.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate booking schema: %w", err)
		}
		store = pg
	}
	checks = append(checks, runtime.ReadyCheck{Name: "db", Check: store.Ping})

	gdb, err := directory.Open(env.DirectoryDriver, env.DirectoryDSN)
	if err != nil {
		return nil, fmt.Errorf("open directory: %w", err)
	}
	a.onClose(func() { _ = directory.Close(gdb) })
	dir := directory.NewRepository(gdb)
	if err := dir.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate directory: %w", err)
	}
	checks = append(checks, runtime.ReadyCheck{Name: "directory", Check: directory.Ping(gdb)})

	var provider identity.Provider
	if env.Mode == ModeMock {
		provider = identity.NewMockProvider()
	} else {
		provider, err = identity.NewCognitoProvider(ctx, env.CognitoRegion, env.CognitoUserPoolID)
		if err != nil {
			return nil, err
		}
	}

	sink, err := a.buildSink(env, logger)
	if err != nil {
		return nil, err
	}
	if env.NotifySink == SinkKafka {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(env.KafkaBrokers)})
	}

	a.Booking = booking.NewService(store, dir, zone, logger, booking.Config{
		WorkerLimit:     env.WorkerLimit,
		DefaultDuration: env.DefaultDuration,
	})
	reconciler := identity.NewReconciler(provider, dir, logger, identity.Config{
		CallTimeout:     env.IdentityTimeout,
		WorkerLimit:     env.WorkerLimit,
		SyncSendsInvite: env.SyncSendsInvite,
	})
	a.Relay = outbox.NewRelay(store, sink, logger, env.Outbox)

	var jwks *auth.JWKSClient
	if env.JWKSURL != "" {
		jwks = auth.NewJWKSClient(env.JWKSURL, env.JWKSCacheTTL)
	}
	verifier := auth.NewVerifier(auth.VerifierConfig{
		HS256Secret: env.JWTSecret,
		JWKS:        jwks,
		Issuer:      env.JWTIssuer,
		Audience:    env.JWTAudience,
	})

	rateLimit, rateCheck := a.rateLimiter(env, logger)
	if rateCheck != nil {
		checks = append(checks, *rateCheck)
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	rpc := handlers.NewRPCHandler(a.Booking, reconciler, dir, logger)
	mux.Handle("/api/v1/rpc", httpx.Chain(handlers.RequireBearer(verifier, env.AdminGroup, rpc), rateLimit))

	handler := httpx.Chain(mux,
		httpx.WithCORS(env.CORS),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(env.BodyLimitBytes),
		httpx.WithTimeout(env.RequestTimeout),
	)
	a.Handler = otelhttp.NewHandler(handler, "booking")

	a.grpcServer, a.health = grpcx.NewServer(logger)
	built = true
	return a, nil
}

func (a *App) buildSink(env Environment, logger *slog.Logger) (outbox.Sink, error) {
	switch env.NotifySink {
	case SinkSMTP:
		mailer, err := notify.NewSMTPMailer(env.SMTP)
		if err != nil {
			return nil, err
		}
		return notify.NewEmailSink(mailer, logger), nil
	case SinkKafka:
		w := kafkax.NewWriter(env.KafkaBrokers)
		a.onClose(func() { _ = w.Close() })
		return outbox.NewKafkaSink(w), nil
	default:
		return notify.NewLogSink(logger), nil
	}
}

// rateLimiter prefers shared Redis counters; without REDIS_ADDR each replica limits alone.
func (a *App) rateLimiter(env Environment, logger *slog.Logger) (httpx.Middleware, *runtime.ReadyCheck) {
	if env.RedisAddr == "" {
		return httpx.RateLimit(httpx.NewMemoryLimiter(env.RateLimitPerMinute, time.Minute), httpx.BearerOrIP, logger, true), nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     env.RedisAddr,
		Password: env.RedisPassword,
		DB:       env.RedisDB,
	})
	a.onClose(func() { _ = rdb.Close() })
	logger.Info("rate limiting enabled (redis)", "per_minute", env.RateLimitPerMinute, "redis_addr", env.RedisAddr)
	limiter := httpx.NewRedisLimiter(rdb, env.RateLimitPerMinute, time.Minute, env.Service+":rl")
	check := runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }}
	return httpx.RateLimit(limiter, httpx.BearerOrIP, logger, env.RateLimitFailOpen), &check
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Run serves HTTP and gRPC and drives the outbox relay until ctx is done.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Relay.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return grpcx.Serve(ctx, a.grpcServer, a.health, ":"+a.Env.GRPCPort, a.Logger, a.Env.ShutdownGrace)
	})
	g.Go(func() error {
		runtime.ServeHTTP(ctx, &http.Server{
			Addr:              ":" + a.Env.Port,
			Handler:           a.Handler,
			ReadHeaderTimeout: 5 * time.Second,
		}, a.Logger, a.Env.ShutdownGrace)
		return nil
	})
	return g.Wait()
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
