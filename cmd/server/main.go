package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/skyfield-labs/weather-report-agent/internal/api"
	"github.com/skyfield-labs/weather-report-agent/internal/config"
	"github.com/skyfield-labs/weather-report-agent/internal/scheduler"
	"github.com/skyfield-labs/weather-report-agent/internal/services"
	"github.com/skyfield-labs/weather-report-agent/internal/specs"
	"github.com/skyfield-labs/weather-report-agent/pkg/client"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	zap.ReplaceGlobals(logger)
	logger.Info("Starting Weather Report Agent")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Correlation state for asynchronous provider deliveries
	callbacks := client.NewCallbackRegistry()

	// Provider factory with shared transport defaults
	factory := client.NewFactory(services.DefaultRegistryEntries(cfg), client.Deps{
		Logger:     logger,
		HTTPClient: &http.Client{},
		Callbacks:  callbacks,
		Transport: client.TransportConfig{
			MaxRetries:     cfg.Retry.MaxRetries,
			RetryDelay:     cfg.Retry.Delay,
			AttemptTimeout: cfg.Retry.AttemptTimeout,
			BreakerTimeout: cfg.CircuitBreaker.Timeout,
		},
	})

	cache := services.NewDatasetCache(cfg.Cache.Duration, cfg.Cache.MaxSize, logger)
	reports := services.NewReportService(factory, cache, logger)

	// Administrative provider specs, seeded with the SatSource integration
	providerSpecs := specs.NewRegistry()
	if err := providerSpecs.Upsert(specs.SatSourceSpec("sat-source", cfg.SatSource.APIKey)); err != nil {
		logger.Fatal("Failed to seed provider specs", zap.Error(err))
	}

	// Prefetch scheduler
	var prefetch *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		prefetch = scheduler.New(reports, cfg.Scheduler.Locations, cfg.Scheduler.WindowDays, logger)
		if err := prefetch.Start(cfg.Scheduler.CronSpec); err != nil {
			logger.Fatal("Failed to start prefetch scheduler", zap.Error(err))
		}
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorHandler: errorHandler,
	})

	// Setup handlers and routes
	handler := api.NewHandler(reports, providerSpecs, callbacks, cfg.Server.PublicBaseURL, logger)
	api.SetupRoutes(app, handler, logger)

	// Start server in goroutine
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Info("Starting server", zap.String("address", addr))

		if err := app.Listen(addr); err != nil {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if prefetch != nil {
		prefetch.Stop()
	}
	cache.Stop()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func errorHandler(c *fiber.Ctx, err error) error {
	zap.L().Error("HTTP error",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err))

	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   err.Error(),
		"success": false,
	})
}
