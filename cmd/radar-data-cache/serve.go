package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	httpapi "github.com/i474232898/radar-data-cache/internal/api/http"
	"github.com/i474232898/radar-data-cache/internal/logging"
	"github.com/i474232898/radar-data-cache/internal/radar"
	"github.com/i474232898/radar-data-cache/internal/radar/providers"
	"github.com/i474232898/radar-data-cache/internal/scheduler"
	"github.com/i474232898/radar-data-cache/internal/store"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and HTTP API (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx)
		},
	}
}

func runServe(parent context.Context, cc *commandContext) error {
	cfg := cc.cfg
	log := cc.logger

	cache, err := store.NewFileCache(cfg.CacheDir, cfg.APIKey, cfg.StoredCount,
		store.WithExtension(cfg.FileExtension),
		store.WithLogger(log),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := cache.Close(); err != nil {
			log.Warn("failed to release radar cache", logging.Error(err))
		}
	}()

	httpClient := cc.httpClient()
	urls := providers.NewFMIURLBuilder(cfg.WMSURL, cfg.Variable, cfg.Width, cfg.Height)
	fetcher := providers.NewHTTPFetcher(httpClient, log)
	catalog := providers.NewFMICatalog(httpClient, cfg.APIKey, cfg.WFSURL, cfg.StoredQuery, log)

	// Core service orchestrating the cache and the FMI providers.
	service := radar.NewService(cache, urls, fetcher, catalog, log, radar.WithFetchTimeout(cfg.FetchTimeout))

	sched := scheduler.New(service, scheduler.Config{
		Interval: cfg.FetchInterval,
		Cron:     cfg.FetchCron,
		Timeout:  cfg.FetchTimeout,
	}, log)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "radar-data-cache",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          cfg.FetchTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(logger.New())
	app.Use(recover.New())

	httpapi.RegisterHealth(app, service, sched)
	httpapi.RegisterRoutes(app, service)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("fiber server stopped", logging.Error(err))
		}
	}()
	log.Info("radar-data-cache listening",
		logging.String("port", cfg.Port),
		logging.String("cache_dir", cache.Dir()),
	)

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warn("error during shutdown", logging.Error(err))
	}
	return nil
}
