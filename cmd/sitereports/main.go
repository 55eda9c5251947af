package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"sitereports/internal/backend"
	"sitereports/internal/cache"
	"sitereports/internal/cli"
	apphttp "sitereports/internal/http"
	applog "sitereports/internal/log"
	"sitereports/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration",
			applog.FieldErrorType, applog.ErrorTypeConfiguration, applog.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.Logger.With(applog.FieldComponent, applog.ComponentBackend)).
		CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "source", backendCfg.Source)
		os.Exit(1)
	}

	registry := services.NewSessionRegistry(res.Fetcher, res.Preferences, res.Publisher, services.SessionConfig{
		MaxSessions: cfg.MaxSessions,
		TTL:         cfg.SessionTTL,
	})

	// Sweep idle sessions; their preferences stay in storage.
	caches := cache.NewManager()
	caches.Register(registry.Cleaner())
	caches.StartCleanup(time.Minute)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Registry:       registry,
		Ready:          res.Ping,
		Logger:         logger,
		TrustedProxies: cfg.TrustedProxies,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		caches.Stop()
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	logger.Info("Starting sitereports server",
		applog.FieldOperation, applog.OpStartup,
		"port", cfg.Port,
		"data_source", cfg.DataSource,
		"preferences", cfg.PreferencesBackend,
		"amqp_enabled", res.Publisher != nil)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
