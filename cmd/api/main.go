package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/movewell/physio-platform/internal/api/router"
	"github.com/movewell/physio-platform/internal/app/bootstrap"
	"github.com/movewell/physio-platform/internal/appointment"
	appconfig "github.com/movewell/physio-platform/internal/config"
	httpmiddleware "github.com/movewell/physio-platform/internal/http/middleware"
	"github.com/movewell/physio-platform/internal/observability/metrics"
	"github.com/movewell/physio-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting physio-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)

	repo, err := bootstrap.BuildRepository(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	engine, err := bootstrap.BuildScheduleEngine(cfg)
	if err != nil {
		logger.Error("invalid schedule configuration", "error", err)
		os.Exit(1)
	}

	calendars, err := bootstrap.BuildCalendarProvider(cfg, redisClient, logger)
	if err != nil {
		logger.Error("failed to build calendar provider", "error", err)
		os.Exit(1)
	}
	if calendars == nil {
		logger.Error("calendar provider is required; set GOOGLE_SERVICE_ACCOUNT_EMAIL and GOOGLE_PRIVATE_KEY")
		os.Exit(1)
	}

	video := bootstrap.BuildVideoClient(cfg, logger)
	notifier := bootstrap.BuildNotifier(cfg, logger)

	registry := prometheus.NewRegistry()
	bookingMetrics := metrics.NewBookingMetrics(registry)

	svc := appointment.NewService(repo, calendars, video, engine, notifier, bookingMetrics, logger.Component("appointment"))
	handler := appointment.NewHandler(svc, logger.Component("http"))

	r := router.New(&router.Config{
		Logger:             logger,
		AppointmentHandler: handler,
		AuthSecret:         cfg.AuthJWTSecret,
		RateLimiter:        httpmiddleware.NewFixedWindow(cfg.RateLimitRequests, cfg.RateLimitWindow),
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if redisClient != nil {
		_ = redisClient.Close()
	}

	logger.Info("server stopped")
}
