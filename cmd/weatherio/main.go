package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"

	httpapi "github.com/InOutLake/weatherio/internal/api/http"
	"github.com/InOutLake/weatherio/internal/config"
	"github.com/InOutLake/weatherio/internal/forecast"
	"github.com/InOutLake/weatherio/internal/refresh"
	"github.com/InOutLake/weatherio/internal/scheduler"
	"github.com/InOutLake/weatherio/internal/store"
	"github.com/InOutLake/weatherio/internal/upstream"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Durable store. Falls back to the in-memory store when no database is
	// configured or reachable.
	var (
		st  forecast.Store
		reg forecast.Registry
	)
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pg, pool, err := connectPostgres(ctx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			log.Printf("could not connect to database: %v; using in-memory store", err)
		} else {
			defer pool.Close()
			st, reg = pg, pg
			log.Println("connected to PostgreSQL")
		}
	}
	if st == nil {
		mem := store.NewMemoryStore()
		st, reg = mem, mem
	}

	// Shared HTTP client for outbound upstream calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	client := upstream.NewClient(httpClient, upstream.Config{
		BaseURL:     cfg.UpstreamBaseURL,
		MaxAttempts: cfg.UpstreamRetryAttempts,
		RetryWait:   cfg.UpstreamRetryWait,
	})

	// Core service orchestrating store, registry and upstream.
	service := forecast.NewService(st, reg, client)

	// Background refresh loop keeping every cached series fresh.
	coordinator := refresh.New(st, client, cfg.RefreshInterval, cfg.RefreshPageSize)
	coordinator.Start()

	// Periodic store health/staleness report.
	monitor := scheduler.NewMonitor(st, cfg.MonitorInterval)
	if err := monitor.Start(); err != nil {
		log.Fatalf("failed to start monitor: %v", err)
	}
	defer monitor.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "weatherio",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
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

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weatherio",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, service)

	// Start server with graceful shutdown
	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := coordinator.Stop(shutdownCtx); err != nil {
		log.Printf("refresh loop did not stop cleanly: %v", err)
	}
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}

func connectPostgres(ctx context.Context, dsn string) (*store.PostgresStore, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	pg := store.NewPostgresStore(pool)
	if err := pg.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pg, pool, nil
}
