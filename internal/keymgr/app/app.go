package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/fluxtrade/keymgr/internal/keymgr/http"
	"github.com/fluxtrade/keymgr/internal/keymgr/notify"
	"github.com/fluxtrade/keymgr/internal/keymgr/secret"
	"github.com/fluxtrade/keymgr/internal/keymgr/service"
	"github.com/fluxtrade/keymgr/internal/keymgr/store"
	"github.com/fluxtrade/keymgr/internal/keymgr/store/drivers/sqlite"
	"github.com/fluxtrade/keymgr/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the key manager with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db      store.Store
	secrets secret.Store
	gateway notify.Gateway

	lifecycleService *service.LifecycleService
	scannerService   *service.ScannerService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "keymgr",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initSecrets(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initGateway()
	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.scannerService.Start()

	app.logger.Info("key manager starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
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

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down key manager...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Stop the scanner before closing the store so an in-flight pass
	// finishes cleanly.
	app.scannerService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("key manager stopped")
	return nil
}

func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initSecrets() error {
	switch app.cfg.SecretBackend {
	case "vault":
		vs, err := secret.NewVaultStore(secret.VaultConfig{
			Address: app.cfg.VaultAddress,
			Token:   app.cfg.VaultToken,
			Mount:   app.cfg.VaultMount,
			Prefix:  app.cfg.VaultPrefix,
		}, app.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize vault secret store: %w", err)
		}
		app.secrets = vs
		app.logger.Info("vault secret store enabled", "mount", app.cfg.VaultMount, "prefix", app.cfg.VaultPrefix)
	case "memory":
		app.secrets = secret.NewMemoryStore()
		app.logger.Warn("in-memory secret store enabled; secrets will not survive restarts")
	default:
		return fmt.Errorf("unknown secret backend %q", app.cfg.SecretBackend)
	}
	return nil
}

func (app *Application) initGateway() {
	if app.cfg.WebhookURL != "" {
		app.gateway = notify.NewWebhookGateway(app.cfg.WebhookURL)
		app.logger.Info("webhook notification gateway enabled")
		return
	}
	app.gateway = notify.NewLogGateway(app.logger)
}

func (app *Application) initServices() {
	app.lifecycleService = service.NewLifecycleService(
		app.db,
		app.secrets,
		app.gateway,
		app.logger,
		app.cfg.DefaultLifetime,
	)

	app.scannerService = service.NewScannerService(
		app.lifecycleService,
		app.db,
		app.logger,
		app.cfg.ScanInterval,
		app.cfg.WarningWindow,
	)
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.secrets, app.logger)
	router.LifecycleService = app.lifecycleService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
