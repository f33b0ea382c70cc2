package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Mindburn-Labs/leadgrid/pkg/api"
	"github.com/Mindburn-Labs/leadgrid/pkg/audit"
	"github.com/Mindburn-Labs/leadgrid/pkg/config"
	"github.com/Mindburn-Labs/leadgrid/pkg/dedup"
	"github.com/Mindburn-Labs/leadgrid/pkg/distributor"
	"github.com/Mindburn-Labs/leadgrid/pkg/lead"
	"github.com/Mindburn-Labs/leadgrid/pkg/lifecycle"
	"github.com/Mindburn-Labs/leadgrid/pkg/notify"
	"github.com/Mindburn-Labs/leadgrid/pkg/observability"
	"github.com/Mindburn-Labs/leadgrid/pkg/store"

	_ "github.com/lib/pq" // Postgres driver
)

// services holds the wired pipeline for the server and the one-shot
// commands.
type services struct {
	cfg      *config.Config
	store    store.Store
	auditor  audit.Logger
	notifier notify.Notifier
	dist     *distributor.Distributor
	ctrl     *lifecycle.Controller
	logger   *slog.Logger

	closers []func() error
}

func (s *services) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// openStore picks the backend from DATABASE_URL: a postgres URL, an SQLite
// file path, or in-memory when unset.
func openStore(ctx context.Context, cfg *config.Config, svc *services) (store.Store, error) {
	switch {
	case strings.HasPrefix(cfg.DatabaseURL, "postgres://"), strings.HasPrefix(cfg.DatabaseURL, "postgresql://"):
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		svc.closers = append(svc.closers, db.Close)
		pg := store.NewPostgres(db)
		if err := pg.Init(ctx); err != nil {
			return nil, fmt.Errorf("init postgres schema: %w", err)
		}
		return pg, nil
	case cfg.DatabaseURL != "":
		sq, err := store.OpenSQLite(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		svc.closers = append(svc.closers, sq.Close)
		return sq, nil
	default:
		return store.NewMemory(), nil
	}
}

// buildServices wires the whole pipeline from config. obs may be nil; the
// one-shot commands run without telemetry.
func buildServices(ctx context.Context, cfg *config.Config, obs *observability.Provider) (*services, error) {
	svc := &services{cfg: cfg, logger: newLogger(cfg.LogLevel)}
	slog.SetDefault(svc.logger)

	st, err := openStore(ctx, cfg, svc)
	if err != nil {
		svc.close()
		return nil, err
	}
	svc.store = st

	clock := lead.SystemClock()
	ids := lead.UUIDGenerator()
	svc.auditor = audit.NewLogger(st, clock, ids)

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			svc.close()
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		svc.closers = append(svc.closers, client.Close)
		svc.notifier = notify.NewRedisQueue(client, "")
	} else {
		svc.notifier = notify.NewQueue(0, svc.logger)
	}

	var metrics distributor.Metrics
	if obs != nil {
		metrics = obs
	}
	svc.dist = distributor.New(distributor.Config{
		Store:    st,
		Notifier: svc.notifier,
		Auditor:  svc.auditor,
		Clock:    clock,
		IDs:      ids,
		Logger:   svc.logger,
		Metrics:  metrics,
		RetryMax: cfg.DistributionRetries,
	})
	svc.ctrl = lifecycle.New(lifecycle.Config{
		Store:       st,
		Distributor: svc.dist,
		Notifier:    svc.notifier,
		Auditor:     svc.auditor,
		Clock:       clock,
		IDs:         ids,
		Logger:      svc.logger,
	})
	return svc, nil
}

func loadProfiles(cfg *config.Config, logger *slog.Logger) map[string]*config.MappingProfile {
	if cfg.MappingProfileDir == "" {
		return nil
	}
	profiles, err := config.LoadAllMappingProfiles(cfg.MappingProfileDir)
	if err != nil {
		logger.Error("mapping profiles failed to load", "dir", cfg.MappingProfileDir, "error", err)
		return nil
	}
	logger.Info("mapping profiles loaded", "count", len(profiles))
	return profiles
}

func runServer(stdout, stderr io.Writer) int {
	ctx := context.Background()
	cfg := config.Load()

	var obs *observability.Provider
	if cfg.OTLPEndpoint != "" {
		obsCfg := observability.DefaultConfig()
		obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
		obsCfg.Insecure = true
		var err error
		obs, err = observability.New(ctx, obsCfg)
		if err != nil {
			fmt.Fprintf(stderr, "observability init failed, continuing without: %v\n", err)
			obs = nil
		} else {
			defer func() {
				shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = obs.Shutdown(shutCtx)
			}()
		}
	}

	svc, err := buildServices(ctx, cfg, obs)
	if err != nil {
		fmt.Fprintf(stderr, "startup failed: %v\n", err)
		return 1
	}
	defer svc.close()

	profiles := loadProfiles(cfg, svc.logger)
	var pipelineMetrics api.PipelineMetrics
	if obs != nil {
		pipelineMetrics = obs
	}
	webhook := api.NewWebhookHandler(api.WebhookConfig{
		Store:       svc.store,
		Dedup:       dedup.New(svc.store, lead.SystemClock(), cfg.DedupWindow),
		Distributor: svc.dist,
		Auditor:     svc.auditor,
		Logger:      svc.logger,
		Metrics:     pipelineMetrics,
		Deadline:    cfg.PipelineDeadline,
		Profiles:    profiles,
	})

	handler := api.NewRouter(api.RouterConfig{
		Webhook:  webhook,
		Mobile:   api.NewMobileHandler(svc.store, svc.ctrl),
		Admin:    api.NewAdminHandler(svc.store, svc.dist, svc.ctrl, profiles),
		JWT:      api.NewJWTValidator(cfg.JWTSecret),
		AdminKey: cfg.AdminAPIKey,
		Obs:      obs,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		svc.logger.Info("server listening", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(stderr, "server failed: %v\n", err)
			return 1
		}
	case sig := <-sigCh:
		svc.logger.Info("shutting down", "signal", sig.String())
		shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			fmt.Fprintf(stderr, "shutdown incomplete: %v\n", err)
			return 1
		}
	}

	fmt.Fprintln(stdout, "bye")
	return 0
}
