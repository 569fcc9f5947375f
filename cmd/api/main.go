package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/app"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/event"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/revocation"
	revocationrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/revocation/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

func main() {
	cfg, warnings, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	lg, err := utilities.Init(utilities.Config{Level: cfg.Log.Level, Dev: cfg.Log.Dev, File: cfg.Log.File})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	for _, w := range warnings {
		sugar.Warn(w)
	}

	if err := run(cfg, sugar); err != nil {
		sugar.Errorw("service stopped with error", "err", err)
		_ = lg.Sync()
		os.Exit(1)
	}
	sugar.Info("goodbye")
}

func run(cfg config.AppConfig, sugar *zap.SugaredLogger) error {
	sugar.Info("starting service-auth-go")

	db, err := database.Connect(database.Config{
		DSN:            cfg.DB.URL,
		MaxConns:       cfg.DB.MaxConns,
		Timeout:        cfg.DB.Timeout,
		TimeZone:       cfg.DB.TimeZone,
		ClientEncoding: cfg.DB.ClientEncoding,
	})
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hasher := user.BcryptHasher{}
	if err := app.Migrate(ctx, db, app.MigrateOptions{SeedAdmin: cfg.Auth.SeedAdmin, Hasher: hasher, Timeout: cfg.DB.Timeout}, sugar); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	codec, err := auth.NewCodec(auth.CodecConfig{SigningKey: []byte(cfg.Auth.SigningKey), TTL: cfg.Auth.TTL()})
	if err != nil {
		return fmt.Errorf("token codec: %w", err)
	}

	var ledgerOpts []revocation.Option
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			// the cache is optional; the ledger falls through to postgres on every error
			sugar.Warnw("redis unreachable, revocation cache degraded", "addr", cfg.Redis.Addr, "err", err)
		}
		ledgerOpts = append(ledgerOpts, revocation.WithCache(revocation.NewRedisCache(rdb), codec.TTL()))
		sugar.Infow("revocation cache enabled", "addr", cfg.Redis.Addr)
	}
	ledger := revocation.NewLedger(revocationrepo.NewRevocationRepo(db, cfg.DB.Timeout), sugar, ledgerOpts...)

	transport := event.NewAMQPTransport(cfg.RabbitMQ.DialURL(), cfg.RabbitMQ.Queue, cfg.RabbitMQ.Node, sugar)
	defer transport.Close()
	publisher := event.NewAsyncPublisher(transport, cfg.RabbitMQ.QueueSize, sugar, m)

	authority := session.NewAuthority(session.Options{
		Users:   userrepo.NewUserRepo(db, cfg.DB.Timeout),
		Ledger:  ledger,
		Codec:   codec,
		Hasher:  hasher,
		Events:  publisher,
		Logger:  sugar,
		Metrics: m,
	})

	limiter := router.NewIPRateLimiter(cfg.HTTP.LoginRate, cfg.HTTP.LoginBurst)
	if err := limiter.TrustProxies(cfg.HTTP.TrustedProxies); err != nil {
		return fmt.Errorf("configure trusted proxies: %w", err)
	}
	srv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: router.RegisterRoutes(router.Deps{
			Logger:   sugar,
			Session:  session.NewHandler(authority, sugar),
			Metrics:  m,
			Gatherer: reg,
			Limiter:  limiter,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sugar.Infow("http server listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sugar.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			sugar.Warnw("http server shutdown failed", "err", err)
		}
		return nil
	})
	// the publisher outlives the server so events from in-flight requests are flushed
	pubCtx, stopPublisher := context.WithCancel(context.Background())
	pubDone := make(chan error, 1)
	go func() { pubDone <- publisher.Run(pubCtx) }()
	g.Go(func() error { return limiter.RunPruner(gctx, time.Minute) })

	err = g.Wait()
	stopPublisher()
	<-pubDone
	return err
}
