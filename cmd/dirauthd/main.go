package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/goliatone/go-router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	dirauth "github.com/goliatone/go-dirauth"
	"github.com/goliatone/go-dirauth/api"
	"github.com/goliatone/go-dirauth/directory"
	"github.com/goliatone/go-dirauth/metrics"
	"github.com/goliatone/go-dirauth/middleware/jwtware"
	"github.com/goliatone/go-dirauth/profiles"
	"github.com/goliatone/go-dirauth/profiles/mongostore"
	"github.com/goliatone/go-dirauth/profiles/sqlstore"
)

func main() {
	cfg, err := dirauth.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("dirauthd stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

type profileBackend interface {
	profiles.Backend
	close(ctx context.Context) error
}

type mongoBackend struct{ *mongostore.Backend }

func (b mongoBackend) close(ctx context.Context) error { return b.Close(ctx) }

type sqlBackend struct{ *sqlstore.Backend }

func (b sqlBackend) close(context.Context) error { return b.Close() }

func openProfiles(ctx context.Context, cfg *dirauth.Config) (profileBackend, error) {
	pc := cfg.Profiles
	switch pc.Backend {
	case dirauth.BackendSQLite:
		b, err := sqlstore.Open(sqlstore.Config{
			DSN:         pc.SQLiteDSN,
			Debug:       cfg.Debug,
			PingTimeout: pc.Timeout,
		})
		if err != nil {
			return nil, err
		}
		if err := b.Migrate(ctx); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("migrate profiles: %w", err)
		}
		return sqlBackend{b}, nil
	default:
		b, err := mongostore.Connect(ctx, pc.MongoURL, pc.Database, pc.Timeout)
		if err != nil {
			return nil, err
		}
		if err := b.EnsureIndexes(ctx); err != nil {
			// the store keeps working without indexes
			slog.Warn("profile indexes not created", "error", err)
		}
		return mongoBackend{b}, nil
	}
}

func run(ctx context.Context, cfg *dirauth.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	dir := directory.New(&cfg.Directory, directory.WithLogger(logger.With("component", "directory")))

	backend, err := openProfiles(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open profile store: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := backend.close(closeCtx); err != nil {
			logger.Warn("profile store close failed", "error", err)
		}
	}()

	store := profiles.NewStore(backend,
		profiles.WithTimeout(cfg.Profiles.Timeout),
		profiles.WithLogger(logger.With("component", "profiles")),
	)

	tokens, err := dirauth.NewTokenService(&cfg.Token, dirauth.WithTokenLogger(logger.With("component", "tokens")))
	if err != nil {
		return err
	}

	auther := dirauth.NewAuther(cfg, dir, store, tokens).
		WithLogger(logger.With("component", "auther")).
		WithMetrics(collector)

	gateLogger := dirauth.WithGateLogger(logger.With("component", "gate"))
	gateMetrics := dirauth.WithGateMetrics(collector)
	sessionGate := dirauth.NewSessionGate(tokens, dir, gateLogger, gateMetrics)
	memberGate := dirauth.NewGroupGate(tokens, dir, cfg.Gates.MemberGroup, gateLogger, gateMetrics)
	adminGate := dirauth.NewGroupGate(tokens, dir, cfg.Gates.AdminGroup, gateLogger, gateMetrics)

	throttle := api.NewLoginThrottle(api.ThrottleConfig{
		RatePerMinute: cfg.HTTP.LoginRatePerMinute,
		Burst:         cfg.HTTP.LoginBurst,
	})
	defer throttle.Stop()

	controller := api.NewController(auther, dirauth.NewRegisterIdentityHandler(auther),
		api.WithDebug(cfg.Debug),
		api.WithControllerLogger(logger.With("component", "api")),
		api.WithThrottle(throttle),
		api.WithBanner(cfg.HTTP.ServiceName, cfg.HTTP.Version),
	)

	origins := strings.Join(cfg.HTTP.CORSOrigins, ",")
	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		app := router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:               cfg.HTTP.ServiceName,
			DisableStartupMessage: true,
		}))
		app.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowCredentials: true,
		}))
		return app
	})

	api.RegisterRoutes(srv.Router(), controller, api.Guards{
		Session: jwtware.New(jwtware.Config{Gate: sessionGate}),
		Member:  jwtware.New(jwtware.Config{Gate: memberGate}),
		Admin:   jwtware.New(jwtware.Config{Gate: adminGate}),
	})

	metricsSrv := &http.Server{
		Addr:              cfg.HTTP.MetricsAddr,
		Handler:           metrics.SetupMetricsRoute(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTP.Addr)
		if err := srv.Serve(cfg.HTTP.Addr); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		logger.Info("metrics listening", "addr", cfg.HTTP.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("http shutdown failed", "error", serr)
	}
	if serr := metricsSrv.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("metrics shutdown failed", "error", serr)
	}

	return err
}
