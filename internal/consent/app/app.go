package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/smtp"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aussiebroadwan/consent/internal/consent/audit"
	httpapi "github.com/aussiebroadwan/consent/internal/consent/http"
	"github.com/aussiebroadwan/consent/internal/consent/notify"
	"github.com/aussiebroadwan/consent/internal/consent/obs"
	"github.com/aussiebroadwan/consent/internal/consent/service"
	"github.com/aussiebroadwan/consent/internal/consent/store"
	"github.com/aussiebroadwan/consent/internal/consent/store/drivers/postgres"
	"github.com/aussiebroadwan/consent/internal/consent/store/drivers/sqlite"
	"github.com/aussiebroadwan/consent/pkg/jwtx"
	"github.com/aussiebroadwan/consent/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the consent service with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	keys     *jwtx.KeySet
	verifier jwtx.Verifier
	metrics  *obs.Metrics

	// stops the JWKS refresher
	cancelKeys context.CancelFunc

	// Services
	catalogService   *service.CatalogService
	ledgerService    *service.LedgerService
	directoryService *service.DirectoryService
	bootstrapService *service.BootstrapService
	reminderService  *service.ReminderService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "consent-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	keyCtx, cancel := context.WithCancel(context.Background())
	keys, verifier, err := InitVerifier(keyCtx, app.cfg, app.logger)
	if err != nil {
		cancel()
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize token verification: %w", err)
	}
	app.keys, app.verifier, app.cancelKeys = keys, verifier, cancel

	app.initServices()

	if err := app.seed(); err != nil {
		cancel()
		_ = app.db.Close()
		return nil, err
	}

	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.reminderService.Start()

	app.logger.Info("consent service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			app.reminderService.Stop()
			app.cancelKeys()
			_ = app.db.Close()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down consent service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.reminderService.Stop()
	app.cancelKeys()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("consent service stopped")
	return nil
}

// initDatabase opens the configured driver and applies migrations
func (app *Application) initDatabase() error {
	var (
		db  store.Store
		err error
	)
	switch app.cfg.DBDriver {
	case "postgres":
		db, err = postgres.NewStore(app.cfg.PostgresDSN)
	default:
		db, err = sqlite.NewStore(fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", app.cfg.DatabaseFile))
	}
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.DBDriver)
	return nil
}

// initServices builds the integrations and business services
func (app *Application) initServices() {
	app.metrics = obs.New()
	app.metrics.SetBuildInfo(BuildVersion)

	notifier := &notify.Notifier{}
	if app.cfg.SMTPAddr != "" {
		var auth smtp.Auth
		if app.cfg.SMTPUsername != "" {
			host, _, _ := strings.Cut(app.cfg.SMTPAddr, ":")
			auth = smtp.PlainAuth("", app.cfg.SMTPUsername, app.cfg.SMTPPassword, host)
		}
		notifier.Mail = notify.NewSMTP(app.cfg.SMTPAddr, app.cfg.SMTPFrom, auth)
		app.logger.Info("email notifications enabled", "addr", app.cfg.SMTPAddr)
	}
	if app.cfg.SlackWebhookURL != "" {
		notifier.Chat = notify.NewSlackWebhook(app.cfg.SlackWebhookURL)
		app.logger.Info("slack notifications enabled")
	}

	integrations := service.Integrations{
		Analytics:     app.metrics,
		Notifications: notifier,
		Audit:         audit.New(os.Stdout, "consent-service"),
	}

	app.catalogService = &service.CatalogService{Store: app.db, Integrations: integrations}
	app.ledgerService = &service.LedgerService{Store: app.db, Integrations: integrations}
	app.directoryService = &service.DirectoryService{Store: app.db, Integrations: integrations}
	app.bootstrapService = &service.BootstrapService{Store: app.db}

	app.reminderService = service.NewReminderService(
		app.db,
		notifier,
		app.logger,
		app.cfg.ReminderInterval,
	)
	app.reminderService.SlackChannel = app.cfg.SlackChannel
}

// seed loads CONSENT_SEED_FILE into an empty store
func (app *Application) seed() error {
	if app.cfg.SeedFile == "" {
		return nil
	}
	ctx := slogx.WithContext(context.Background(), app.logger)

	done, err := app.bootstrapService.IsBootstrapped(ctx)
	if err != nil {
		return fmt.Errorf("failed to check bootstrap state: %w", err)
	}
	if done {
		app.logger.Info("store already seeded, skipping seed file", "path", app.cfg.SeedFile)
		return nil
	}

	seed, err := service.LoadSeedFile(app.cfg.SeedFile)
	if err != nil {
		return err
	}
	if err := app.bootstrapService.Bootstrap(ctx, seed); err != nil {
		return fmt.Errorf("failed to seed store: %w", err)
	}
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keys,
		app.verifier,
		BuildVersion,
		app.db,
		app.metrics,
		app.logger,
	)

	router.CatalogService = app.catalogService
	router.LedgerService = app.ledgerService
	router.DirectoryService = app.directoryService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
