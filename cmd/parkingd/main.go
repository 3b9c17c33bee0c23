package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"parking-backend/config"
	"parking-backend/internal/api"
	"parking-backend/internal/bus"
	"parking-backend/internal/db"
	"parking-backend/internal/events"
	"parking-backend/internal/jobs"
	"parking-backend/internal/model"
	"parking-backend/internal/notification"
	"parking-backend/internal/parse"
	"parking-backend/internal/store"
	"parking-backend/internal/tariff"
)

func main() {
	app := &cli.App{
		Name:  "parkingd",
		Usage: "Parking lot cubicle allocation and billing backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "./config/config.yaml",
				Usage:   "Path to the YAML configuration file",
				EnvVars: []string{"CONFIG_PATH"},
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the event listener, periodic jobs and HTTP API",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "Create or update the database schema and exit",
				Action: migrate,
			},
			{
				Name:   "provision",
				Usage:  "Seed default tariffs and create configured cubicles, then exit",
				Action: provision,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("parkingd failed")
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}
	setupLogger(cfg.Log)
	log.Info().Str("path", path).Msg("configuration loaded")
	return cfg, nil
}

func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func newStores(cfg *config.Config, gormDB *gorm.DB) (store.Store, tariff.Store) {
	tariffs := tariff.NewGormStore(gormDB, time.Duration(cfg.Server.CacheTTLSeconds)*time.Second)
	ledger := store.NewGormStore(gormDB, store.Options{
		Classes:      parse.Classes(cfg.Parking.Classes),
		CarClass:     cfg.Parking.CarClass,
		GraceMinutes: cfg.Parking.GraceMinutes,
		Tariffs:      tariffs,
	})
	return ledger, tariffs
}

// bootstrap seeds missing tariffs and creates missing cubicles. Existing rows
// are never modified.
func bootstrap(ctx context.Context, cfg *config.Config, ledger store.Store, tariffs tariff.Store) error {
	defaults := make([]model.Tariff, 0, len(cfg.Parking.DefaultTariffs))
	for _, t := range cfg.Parking.DefaultTariffs {
		defaults = append(defaults, model.Tariff{
			VehicleClass:   t.VehicleClass,
			FirstHour:      t.FirstHour,
			SubsequentHour: t.SubsequentHour,
		})
	}
	if err := tariffs.Seed(ctx, defaults); err != nil {
		return err
	}

	created, err := ledger.Provision(ctx, cfg.Parking.Cubicles)
	if err != nil {
		return err
	}
	log.Info().Int("created", created).Int("configured", len(cfg.Parking.Cubicles)).Msg("cubicles provisioned")
	return nil
}

func migrate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	_, err = db.Init(&cfg.Database)
	return err
}

func provision(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return err
	}
	ledger, tariffs := newStores(cfg, gormDB)
	return bootstrap(c.Context, cfg, ledger, tariffs)
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledger, tariffs := newStores(cfg, gormDB)
	if err := bootstrap(ctx, cfg, ledger, tariffs); err != nil {
		return fmt.Errorf("failed to bootstrap: %w", err)
	}
	log.Info().Int("grace_minutes", cfg.Parking.GraceMinutes).
		Msg("billing grace period and reservation expiry threshold")

	// Alerts are optional; without VAPID keys nothing is queued.
	var alerts notification.Dispatcher
	var pool *notification.WorkerPool
	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool = notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		pool.Start(ctx)
		alerts = pool
	} else {
		log.Warn().Msg("VAPID keys are not configured; operator alerts are disabled")
	}

	// Background work must finish before the database is closed.
	var background sync.WaitGroup
	spawn := func(run func(context.Context)) {
		background.Add(1)
		go func() {
			defer background.Done()
			run(ctx)
		}()
	}
	var client *bus.Client
	drain := func() {
		stop()
		background.Wait()
		if client != nil {
			client.Close()
		}
		if pool != nil {
			pool.Wait()
		}
		closeDB(gormDB)
	}

	spawn(jobs.NewLoop(jobs.NewSweeper(ledger, cfg.Parking.GraceMinutes, alerts), cfg.Parking.SweepInterval).Run)

	if cfg.MQTT.Enabled {
		topics := cfg.MQTT.Topics
		client = bus.NewClient(cfg.MQTT, events.Subscriptions(topics))
		if err := client.Connect(ctx); err != nil {
			drain()
			return err
		}
		log.Info().Str("broker", cfg.MQTT.Broker).Msg("connected to mqtt broker")

		router := events.NewRouter(topics, cfg.Parking,
			events.NewAllocator(ledger, client, alerts, topics.BarrierControl),
			events.NewReconciler(ledger, topics.OccupancyPrefix))
		messages := client.Messages()
		spawn(func(ctx context.Context) { router.Run(ctx, messages) })

		broadcaster := jobs.NewBroadcaster(ledger, client, topics.DisplayStatus,
			parse.Classes(cfg.Parking.Classes), cfg.Parking.CarClass)
		spawn(jobs.NewLoop(broadcaster, cfg.Parking.BroadcastInterval).Run)
	} else {
		log.Warn().Msg("mqtt is disabled; arrivals and sensor reports will not be processed")
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(cfg.Server, ledger, tariffs, webpushOptions),
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received, stopping services")
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server failed")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown")
	}
	drain()

	log.Info().Msg("server gracefully stopped")
	return nil
}

func closeDB(gormDB *gorm.DB) {
	if sqlDB, err := gormDB.DB(); err == nil {
		sqlDB.Close()
	}
}
