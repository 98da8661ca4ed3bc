// Package cli provides process bootstrap shared by the fintrack commands:
// environment, configuration, settings, logging and the wired core.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"fintrack/internal/backend"
	"fintrack/internal/backup"
	"fintrack/internal/commit"
	"fintrack/internal/config"
	"fintrack/internal/grid"
	"fintrack/internal/ledger"
	applog "fintrack/internal/log"
	"fintrack/internal/lookup"
	"fintrack/internal/settings"
)

// SetupLogger builds the component logger factory. Components listed in
// debug log at Debug level whatever the base level. The app logger becomes
// the slog default.
func SetupLogger(level string, debug []string, out io.Writer) *applog.Factory {
	f := applog.NewFactory(applog.Config{
		Level:  applog.ParseLevel(level),
		Output: out,
		Debug:  debug,
	})
	applog.SetDefault(f.For(applog.ComponentApp))
	return f
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration from the environment and
// validates it. A non-empty backend overrides DATA_BACKEND.
func LoadAndValidateConfig(backend string) (*config.Config, error) {
	cfg := config.Load()
	if backend != "" {
		cfg.DataBackend = backend
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// App is the wired core for one process.
type App struct {
	Config   *config.Config
	Settings *settings.Settings
	Logs     *applog.Factory
	Logger   *applog.Logger

	Backend *backend.BackendResult
	Lookups *lookup.Resolver
	Grid    *grid.Model
	Commit  *commit.Coordinator
	// Backup is nil for the memory backend.
	Backup *backup.Service
}

// Options tune Bootstrap from command-line flags.
type Options struct {
	// Backend overrides the configured data backend when set.
	Backend string
	// LogOutput receives log lines. Defaults to stderr.
	LogOutput io.Writer
}

// Bootstrap reads configuration and settings, opens the store, seeds the
// fallback categories and loads the grid.
func Bootstrap(ctx context.Context, opts Options) (*App, error) {
	LoadEnvFile()
	cfg, err := LoadAndValidateConfig(opts.Backend)
	if err != nil {
		return nil, err
	}
	st, err := settings.Load(cfg.SettingsFile)
	if err != nil {
		return nil, err
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}
	logs := SetupLogger(cfg.LogLevel, st.Debug, opts.LogOutput)
	logger := logs.For(applog.ComponentApp)

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logs.For(applog.ComponentBackend), logs.For(applog.ComponentStorage)).
		CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, Settings: st, Logs: logs, Logger: logger, Backend: res}
	if res.SQLite != nil {
		app.Backup = backup.New(res.SQLite, backup.Options{
			Dir:         cfg.BackupDir,
			MinInterval: cfg.BackupMinInterval,
			Keep:        cfg.BackupKeep,
			Logger:      logs.For(applog.ComponentBackup),
		})
	}

	app.Lookups = lookup.New(res.Store, res.Store, lookup.Options{
		Currency:            cfg.DefaultCurrency,
		GlobalSubCategories: cfg.GlobalSubCategories,
		Logger:              logs.For(applog.ComponentLookup),
	})
	if err := app.Lookups.Refresh(ctx); err != nil {
		app.Close()
		return nil, err
	}
	if err := app.Lookups.EnsureUncategorized(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("seed fallback categories: %w", err)
	}

	app.Grid = grid.NewModel(res.Store, app.Lookups, ledger.New(logs.For(applog.ComponentLedger)), grid.Options{
		Defaults: st.RowDefaults(),
		Logger:   logs.For(applog.ComponentGrid),
	})
	if err := app.Grid.Load(ctx); err != nil {
		app.Close()
		return nil, err
	}
	app.Commit = commit.New(res.Store, app.Lookups, logs.For(applog.ComponentCommit))

	logger.InfoContext(ctx, "Started",
		applog.FieldOperation, applog.OpStartup,
		applog.FieldBackend, cfg.DataBackend,
		"rows", app.Grid.Len())
	return app, nil
}

// StartupBackup takes a backup when one is due and the configuration asks
// for it. Failures are logged, never fatal.
func (a *App) StartupBackup(ctx context.Context) {
	if a.Backup == nil || !a.Config.BackupOnStart {
		return
	}
	if _, err := a.Backup.MaybeBackup(ctx); err != nil {
		a.Logger.WarnContext(ctx, "Startup backup failed",
			applog.FieldOperation, applog.OpBackup, applog.FieldError, err)
	}
}

// Close releases the store.
func (a *App) Close() error {
	if a.Backend != nil && a.Backend.Cleanup != nil {
		return a.Backend.Cleanup()
	}
	return nil
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. The
// cleanup function runs once, before cancellation.
func GracefulShutdown(parent context.Context, logger *applog.Logger, cleanup func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String(), applog.FieldOperation, applog.OpShutdown)
			if cleanup != nil {
				cleanup()
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
