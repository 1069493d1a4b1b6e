package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	httpapi "github.com/i474232898/pm25-forecast/internal/api/http"
	"github.com/i474232898/pm25-forecast/internal/config"
	"github.com/i474232898/pm25-forecast/internal/forecast"
	"github.com/i474232898/pm25-forecast/internal/forecast/providers"
	"github.com/i474232898/pm25-forecast/internal/logging"
	"github.com/i474232898/pm25-forecast/internal/publish"
	"github.com/i474232898/pm25-forecast/internal/scheduler"
	"github.com/i474232898/pm25-forecast/internal/store"
)

const serviceName = "pm25-forecast"

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, serviceName)

	// Shared HTTP client for outbound feed and model calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// In-memory history of every registered station.
	memStore := store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge)
	memStore.Register(cfg.Stations.Known()...)

	previous, closePrevious := openPrevious(cfg, logger)
	defer closePrevious()

	anchors := newAnchorSource(cfg, httpClient, logger)

	var model forecast.Model = providers.PersistenceModel{}
	if cfg.ModelURL != "" {
		model = providers.NewInferenceClient(httpClient, cfg.ModelURL, cfg.ModelRPS)
	}
	logger.Info().Str("anchors", anchors.Name()).Str("model", model.Name()).Msg("providers configured")

	var publishers []forecast.Publisher
	if cfg.PublishDir != "" {
		publishers = append(publishers, publish.NewFilePublisher(cfg.PublishDir, logger))
	}

	// Core service reconciling model output against the anchors.
	reconciler := forecast.NewReconciler(cfg.Params, model, cfg.ModelConcurrency, logger)
	service := forecast.NewService(
		forecast.ServiceConfig{HistoryWindow: cfg.HistoryWindow, Stabilize: cfg.Stabilize},
		anchors,
		memStore,
		previous,
		memStore,
		reconciler,
		logger,
		publishers...,
	)

	// Scheduler that periodically runs a publishing cycle.
	sched := scheduler.New(service, cfg.CycleInterval, cfg.CycleTimeout, logger)
	if err := sched.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               serviceName,
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
	app.Use(fiberlogger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": serviceName,
		})
	})

	httpapi.RegisterRoutes(app, service)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error().Err(err).Msg("fiber server stopped")
		}
	}()
	logger.Info().Str("port", cfg.Port).Msg("listening")

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
	}
}

func newAnchorSource(cfg *config.AppConfig, client *http.Client, logger zerolog.Logger) forecast.AnchorSource {
	pollutant := cfg.Params.DefaultPollutant
	if strings.EqualFold(cfg.CPCBFeedURL, "off") {
		return providers.NewSafetyFile(cfg.SafetyFile, pollutant)
	}

	var aliases []providers.Alias
	for _, st := range cfg.Stations.Stations {
		if len(st.Aliases) > 0 {
			aliases = append(aliases, providers.Alias{StationID: st.ID, Contains: st.Aliases})
		}
	}
	matcher := providers.NewStationMatcher(cfg.Stations.IDs(), aliases, cfg.Stations.Suffix)

	state := cfg.CPCBState
	if state == "" {
		state = cfg.Stations.State
	}
	return providers.NewCPCBFeed(client, providers.CPCBFeedConfig{
		URL:          cfg.CPCBFeedURL,
		State:        state,
		Pollutant:    pollutant,
		SnapshotPath: cfg.SnapshotPath,
	}, matcher, logger)
}

// openPrevious selects the store for previous-cycle vectors. Any backend that
// cannot be reached falls back to memory so the service still starts.
func openPrevious(cfg *config.AppConfig, logger zerolog.Logger) (forecast.PreviousStore, func()) {
	noop := func() {}

	switch cfg.PreviousStore {
	case "sqlite":
		db, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			logger.Error().Err(err).Str("path", cfg.SQLitePath).Msg("sqlite unavailable; using memory")
			break
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		prev, err := store.NewSQLitePrevious(ctx, db)
		if err != nil {
			_ = db.Close()
			logger.Error().Err(err).Msg("sqlite schema failed; using memory")
			break
		}
		return prev, closeDB(db, logger)

	case "valkey":
		client, err := store.NewValkeyClient(cfg.ValkeyAddr)
		if err != nil {
			logger.Error().Err(err).Str("addr", cfg.ValkeyAddr).Msg("valkey unavailable; using memory")
			break
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
			client.Close()
			logger.Error().Err(err).Str("addr", cfg.ValkeyAddr).Msg("valkey ping failed; using memory")
			break
		}
		return store.NewValkeyPrevious(client, cfg.ValkeyPrefix, cfg.ValkeyTTL), client.Close
	}

	return store.NewMemoryPrevious(), noop
}

func closeDB(db *sql.DB, logger zerolog.Logger) func() {
	return func() {
		if err := db.Close(); err != nil {
			logger.Error().Err(err).Msg("closing sqlite")
		}
	}
}
