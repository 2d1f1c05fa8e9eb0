package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/DukeRupert/pixeldraft/internal"
	"github.com/DukeRupert/pixeldraft/internal/account"
	"github.com/DukeRupert/pixeldraft/internal/catalog"
	"github.com/DukeRupert/pixeldraft/internal/domain"
	"github.com/DukeRupert/pixeldraft/internal/entitlement"
	"github.com/DukeRupert/pixeldraft/internal/handler"
	"github.com/DukeRupert/pixeldraft/internal/ledger"
	"github.com/DukeRupert/pixeldraft/internal/metrics"
	"github.com/DukeRupert/pixeldraft/internal/middleware"
	"github.com/DukeRupert/pixeldraft/internal/notify"
	"github.com/DukeRupert/pixeldraft/internal/session"
	"github.com/DukeRupert/pixeldraft/internal/storage"
)

// backends holds the stores chosen by LEDGER_BACKEND.
type backends struct {
	ledger    ledger.Ledger
	directory account.Directory
	checks    map[string]handler.HealthCheck
	closers   []func() error
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i]()
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Load the tier catalog; a malformed table refuses to start
	cat, err := loadCatalog(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("catalog initialization failed: %w", err)
	}
	logger.Info("Catalog loaded", "source", cfg.CatalogSource, "tiers", len(cat.Tiers()))

	// Open the usage ledger and account directory
	seed, err := account.ParseSeed(cfg.Accounts)
	if err != nil {
		return fmt.Errorf("ACCOUNTS: %w", err)
	}
	stores, err := openBackends(ctx, cfg, seed, logger)
	if err != nil {
		return fmt.Errorf("ledger initialization failed: %w", err)
	}
	defer stores.close()
	logger.Info("Ledger ready", "backend", cfg.LedgerBackend, "timeout", cfg.LedgerTimeout)

	// Entitlement resolution
	devMode := entitlement.NewDevMode(cfg.DevMode)
	resolver, err := entitlement.NewResolver(entitlement.Config{
		Catalog:       cat,
		Ledger:        ledger.WithMetrics(stores.ledger, cfg.LedgerBackend),
		DevMode:       devMode,
		LedgerTimeout: cfg.LedgerTimeout,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("resolver initialization failed: %w", err)
	}
	if cfg.DevMode {
		logger.Warn("Dev mode enabled, sessions may simulate other tiers")
	}

	// Sessions
	sessions := session.NewStore(cfg.SessionTTL, logger)
	go sessions.Run(ctx, 10*time.Minute)

	// Quota notifications
	dispatcher, err := newDispatcher(cfg, logger)
	if err != nil {
		return fmt.Errorf("notification initialization failed: %w", err)
	}
	dispatcher.Start(ctx)
	notifier := notify.NewNotifier(cfg.WarningThresholds)

	// Initialize middleware
	isSecure := !cfg.IsDevelopment()
	entitlementMw := middleware.NewEntitlementMiddleware(stores.directory, resolver, sessions, logger)
	csrfMw := middleware.NewCSRFMiddleware(logger, isSecure)
	consumeLimiter := middleware.NewRateLimiter(cfg.ConsumeRateLimit, cfg.ConsumeRateWindow, logger)
	defer consumeLimiter.Stop()
	rateLimitMw := middleware.NewRateLimitMiddleware(consumeLimiter, logger)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)
	metricsAuthMw := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)

	// Initialize handlers
	entitlementHandler := handler.NewEntitlementHandler(sessions, notifier, dispatcher, logger, isSecure)
	catalogHandler := handler.NewCatalogHandler(cat, logger)
	healthHandler := handler.NewHealthHandler(stores.checks, cfg.LedgerTimeout, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Ops
	healthHandler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", metricsAuthMw.Handler(promhttp.Handler()))

	// Public pricing table
	catalogHandler.RegisterRoutes(mux)

	// Entitlement API (account resolved from the gateway header)
	entitlementHandler.RegisterRoutes(mux, entitlementMw.RequireAccount, csrfMw.Protect, rateLimitMw.Limit)

	// Everything else answers with a JSON 404
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		handler.NotFoundResponse(w, r, logger)
	})

	// Metrics wraps everything so it can label by the matched route
	root := middleware.Stack(metrics.Middleware, loggingMw.Handler, securityMw.Handler)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// SIGHUP re-reads DEV_MODE
	hupChan := make(chan os.Signal, 1)
	signal.Notify(hupChan, syscall.SIGHUP)
	go watchDevMode(ctx, hupChan, cfg, devMode, logger)

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or a failed listener
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
	case err := <-serverErr:
		logger.Error("Server failed", "error", err)
	}

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	// Deliver what is already queued before closing the stores
	dispatcher.Stop()
	cancel()

	logger.Info("Graceful shutdown complete")
	return nil
}

// loadCatalog builds the catalog from the configured source.
func loadCatalog(ctx context.Context, cfg *internal.Config, logger *slog.Logger) (*catalog.Catalog, error) {
	if cfg.CatalogSource == internal.CatalogBuiltin {
		return catalog.Builtin()
	}

	store, err := storage.New(storage.Config{
		Provider: cfg.CatalogSource,
		Local:    storage.LocalConfig{BasePath: cfg.LocalStoragePath},
		R2: storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
		},
	}, logger)
	if err != nil {
		return nil, err
	}

	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return catalog.FromStorage(loadCtx, store, cfg.CatalogKey)
}

// openBackends opens the ledger backend and the account directory that
// lives beside it. Seed accounts are loaded into whichever directory is used.
func openBackends(ctx context.Context, cfg *internal.Config, seed []domain.Account, logger *slog.Logger) (*backends, error) {
	b := &backends{checks: make(map[string]handler.HealthCheck)}

	switch cfg.LedgerBackend {
	case internal.LedgerPostgres, internal.LedgerSQLite:
		db, dialect, migrateDialect, err := openDatabase(cfg)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)

		if err := internal.RunMigrations(db, migrateDialect); err != nil {
			b.close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}

		l, err := ledger.NewSQLLedger(db, dialect, logger)
		if err != nil {
			b.close()
			return nil, err
		}
		dir := account.NewSQLDirectory(db, dialect == ledger.DialectPostgres)
		for _, a := range seed {
			if err := dir.Upsert(ctx, a); err != nil {
				b.close()
				return nil, fmt.Errorf("seed account %q: %w", a.ID, err)
			}
		}
		b.ledger, b.directory = l, dir
		b.checks["database"] = db.PingContext

	case internal.LedgerRedis:
		client, err := ledger.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, client.Close)
		b.ledger = ledger.NewRedisLedger(client, cfg.RedisKeyPrefix, logger)
		b.directory = account.NewMemory(seed...)
		b.checks["redis"] = func(ctx context.Context) error {
			return pingRedis(ctx, client)
		}

	default:
		b.ledger = ledger.NewMemory()
		b.directory = account.NewMemory(seed...)
	}

	return b, nil
}

func openDatabase(cfg *internal.Config) (*sql.DB, ledger.Dialect, string, error) {
	if cfg.LedgerBackend == internal.LedgerPostgres {
		db, err := internal.OpenPostgres(cfg.DatabaseUrl)
		return db, ledger.DialectPostgres, "postgres", err
	}
	db, err := internal.OpenSQLite(cfg.SQLitePath)
	return db, ledger.DialectSQLite, "sqlite3", err
}

func pingRedis(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}

// newDispatcher wires the notification sinks: always the log, plus email
// when an SMTP host is configured.
func newDispatcher(cfg *internal.Config, logger *slog.Logger) (*notify.Dispatcher, error) {
	sinks := []notify.Sink{notify.NewLogSink(logger)}

	if cfg.SMTPHost != "" {
		email, err := notify.NewEmailSink(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}, cfg.UpgradeURL, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, email)
		logger.Info("Email notifications enabled", "smtp_host", cfg.SMTPHost)
	}

	dc := notify.DefaultConfig()
	dc.Concurrency = cfg.NotifyWorkers
	dc.QueueSize = cfg.NotifyQueueSize
	dc.MaxAttempts = cfg.NotifyMaxAttempts
	return notify.NewDispatcher(dc, logger, sinks...)
}

// watchDevMode flips the dev mode flag on SIGHUP. Production never enables it.
func watchDevMode(ctx context.Context, hup <-chan os.Signal, cfg *internal.Config, devMode *entitlement.DevMode, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			enabled := internal.ReloadDevMode(devMode.Enabled())
			if enabled && cfg.Env == "production" {
				logger.Warn("Ignoring DEV_MODE=true in production")
				enabled = false
			}
			if devMode.Set(enabled) {
				logger.Info("Dev mode reloaded", "enabled", enabled)
			}
		}
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
