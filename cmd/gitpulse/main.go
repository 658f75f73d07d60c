package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/gitpulse/gitpulse/internal/config"
	"github.com/gitpulse/gitpulse/internal/dedup"
	"github.com/gitpulse/gitpulse/internal/github"
	"github.com/gitpulse/gitpulse/internal/handlers"
	"github.com/gitpulse/gitpulse/internal/logging"
	"github.com/gitpulse/gitpulse/internal/messaging"
	natsclient "github.com/gitpulse/gitpulse/internal/messaging/nats"
	"github.com/gitpulse/gitpulse/internal/middleware"
	"github.com/gitpulse/gitpulse/internal/repository"
	"github.com/gitpulse/gitpulse/internal/server"
	"github.com/gitpulse/gitpulse/internal/service"
	"github.com/gitpulse/gitpulse/internal/ws"
)

var (
	configPath     string
	migrationsPath string
)

var rootCmd = &cobra.Command{
	Use:   "gitpulse",
	Short: "GitHub repository activity monitor",
	Long:  "gitpulse ingests GitHub commits, issues, and releases into PostgreSQL and fans out change notifications to WebSocket clients and NATS.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server and background reconciler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return runMigrations(cfg.Database.Postgres.ConnString())
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconciliation cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReconcileOnce()
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&migrationsPath, "migrations", "migrations", "path to migration files")
	rootCmd.AddCommand(serveCmd, migrateCmd, reconcileCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("gitpulse"))
	logging.SetDefault(logger)

	slog.Info("starting gitpulse",
		slog.Int("port", cfg.Server.Port),
		slog.String("repository", cfg.GitHub.Owner+"/"+cfg.GitHub.Repo),
		slog.String("log_level", cfg.Logging.Level),
	)

	if err := runMigrations(cfg.Database.Postgres.ConnString()); err != nil {
		return err
	}

	repo, err := repository.NewPostgresRepository(context.Background(), cfg.Database.Postgres.ConnString())
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer repo.Close()

	bus, err := natsclient.NewClient(natsclient.Config{
		URL:           cfg.NATS.URL,
		Name:          cfg.NATS.Name,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer bus.Close()

	// Log bus traffic on our own subject at debug level, mirroring what
	// downstream consumers see.
	if _, err := bus.Subscribe(cfg.NATS.Subject, func(ctx context.Context, msg *messaging.Message) error {
		slog.Debug("bus message", slog.String("subject", msg.Subject), slog.Int("bytes", len(msg.Data)))
		return nil
	}); err != nil {
		slog.Warn("failed to subscribe to bus subject", slog.String("error", err.Error()))
	}

	cache := newKeyCache(cfg)
	defer cache.Close()

	hub := ws.NewHub(originChecker(cfg.CORS.OriginList()))

	ghClient := github.NewClient(github.Config{
		BaseURL: cfg.GitHub.BaseURL,
		Token:   cfg.GitHub.Token,
		Owner:   cfg.GitHub.Owner,
		Repo:    cfg.GitHub.Repo,
		Timeout: cfg.GitHub.Timeout,
	})

	svc := service.NewService(repo, hub, bus, cfg.NATS.Subject)
	reconciler := service.NewReconciler(ghClient, svc, repo, cache)

	reconcileCtx, stopReconcile := context.WithCancel(context.Background())
	defer stopReconcile()
	if cfg.Reconcile.Enabled {
		go reconciler.Run(reconcileCtx, cfg.Reconcile.Interval)
	} else {
		slog.Info("background reconciliation disabled")
	}

	handler := handlers.NewHandler(svc, reconciler, repo)
	router := server.NewRouter(handler, hub, middleware.CORSConfig{
		AllowedOrigins:   cfg.CORS.OriginList(),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("gitpulse listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		slog.Info("shutting down", slog.String("signal", sig.String()))
	}

	stopReconcile()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

func runReconcileOnce() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("gitpulse"))
	logging.SetDefault(logger)

	repo, err := repository.NewPostgresRepository(context.Background(), cfg.Database.Postgres.ConnString())
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer repo.Close()

	bus, err := natsclient.NewClient(natsclient.Config{
		URL:           cfg.NATS.URL,
		Name:          cfg.NATS.Name + "-reconcile",
		MaxReconnects: 3,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer bus.Close()

	cache := newKeyCache(cfg)
	defer cache.Close()

	ghClient := github.NewClient(github.Config{
		BaseURL: cfg.GitHub.BaseURL,
		Token:   cfg.GitHub.Token,
		Owner:   cfg.GitHub.Owner,
		Repo:    cfg.GitHub.Repo,
		Timeout: cfg.GitHub.Timeout,
	})

	hub := ws.NewHub(nil)
	svc := service.NewService(repo, hub, bus, cfg.NATS.Subject)
	reconciler := service.NewReconciler(ghClient, svc, repo, cache)

	created, err := reconciler.Reconcile(context.Background())
	if err != nil {
		return fmt.Errorf("reconciliation failed after %d creates: %w", created, err)
	}

	slog.Info("reconciliation complete", slog.Int("created", created))
	return nil
}

func runMigrations(connString string) error {
	slog.Info("running database migrations")
	m, err := migrate.New("file://"+migrationsPath, connString)
	if err != nil {
		return fmt.Errorf("initialize migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations completed")
	return nil
}

// newKeyCache builds the dedup cache from config, falling back to a no-op
// cache when Redis is disabled or unreachable.
func newKeyCache(cfg *config.Config) dedup.KeyCache {
	if !cfg.Dedup.Enabled {
		return dedup.NoopCache{}
	}
	cache, err := dedup.NewRedisCache(cfg.Dedup.RedisURL, cfg.Dedup.TTL)
	if err != nil {
		slog.Warn("dedup cache unavailable, continuing without it", slog.String("error", err.Error()))
		return dedup.NoopCache{}
	}
	slog.Info("dedup cache enabled", slog.String("redis_url", cfg.Dedup.RedisURL))
	return cache
}

// originChecker builds the WebSocket origin check from the CORS allowlist.
func originChecker(origins []string) func(r *http.Request) bool {
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
