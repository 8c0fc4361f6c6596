// Package main is the entrypoint for the visitgate HTTP server.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/sajpe/visitgate/internal/app"
	"github.com/sajpe/visitgate/internal/config"
	"github.com/sajpe/visitgate/internal/handler"
	"github.com/sajpe/visitgate/internal/metrics"
	"github.com/sajpe/visitgate/internal/middleware"
	"github.com/sajpe/visitgate/internal/network"
	"github.com/sajpe/visitgate/internal/server"
)

func main() {
	ctx := context.Background()

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)
	recorder := metrics.NewPrometheus()

	a, err := app.New(ctx, cfg, logger, recorder, app.Options{})
	if err != nil {
		logger.Error("failed to initialise", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// Interface values must stay nil for stores that are not configured.
	var db, redis handler.HealthChecker
	var limiter middleware.IPLimiter
	if a.Repo != nil {
		db = a.Repo
	}
	if a.Cache != nil {
		redis = a.Cache
		limiter = a.Cache
	}

	trusted, err := network.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		logger.Error("invalid trusted proxies", "error", err)
		os.Exit(1)
	}

	r := handler.NewRouter(handler.RouterConfig{
		Runner:  a.Pipeline,
		Race:    a.Race,
		Health:  handler.NewHealthHandler(db, redis),
		Metrics: recorder.Handler(),
		RateLimit: middleware.RateLimitConfig{
			Enabled:  cfg.RateLimitEnabled,
			RPS:      cfg.RateLimitRPS,
			Burst:    cfg.RateLimitBurst,
			Limiter:  limiter,
			Logger:   logger,
			Recorder: recorder,
		},
		Security:       middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()},
		MaxBodySize:    cfg.MaxRequestBodySize,
		AllowedOrigins: cfg.GetCORSAllowedOrigins(),
		TrustedProxies: trusted,
		Logger:         logger,
	})

	srv := server.New(r, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)
	// Stops the worker and drains reports once HTTP traffic has stopped.
	srv.OnShutdown("pipeline", a.Shutdown)

	if a.Worker != nil {
		go func() {
			if err := a.Worker.Run(ctx); err != nil {
				logger.Error("visit worker stopped", "error", err)
			}
		}()
	} else {
		logger.Info("visit worker disabled",
			"database", a.Repo != nil,
			"redis", a.Cache != nil,
			"enabled", cfg.WorkerEnabled,
		)
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"tablet_policy", cfg.TabletPolicy,
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
