package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roomheat/internal/config"
	"roomheat/internal/handlers"
	"roomheat/internal/logger"
	"roomheat/internal/mqtt"
	"roomheat/internal/provider/newbook"
	"roomheat/internal/registry"
	"roomheat/internal/repository"
	"roomheat/internal/server"
	"roomheat/internal/service"

	"github.com/robfig/cron/v3"
)

// Maintenance schedules: full provider resync at 03:00, event-log prune
// half an hour later.
const (
	resyncSpec = "0 3 * * *"
	pruneSpec  = "30 3 * * *"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}
	log := logger.Get(cfg.LogLevel)

	// open DB
	db, err := openDB(cfg, log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// connect broker
	broker, err := mqtt.Connect(mqtt.Options{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
	}, log)
	if err != nil {
		log.Fatalw("failed to connect mqtt broker", "err", err)
	}

	// wire dependencies
	repos := repository.NewRepository(db)
	reg := registry.New(cfg.RoomDefaults())
	provider := newbook.NewClient(newbook.Options{
		BaseURL:  cfg.Provider.BaseURL,
		APIKey:   cfg.Provider.APIKey,
		Region:   cfg.Provider.Region,
		Username: cfg.Provider.Username,
		Password: cfg.Provider.Password,
		Timeout:  cfg.Provider.Timeout,
	}, log)
	services := service.NewService(service.Deps{
		Repos:     repos,
		Registry:  reg,
		Publisher: broker,
		Provider:  provider,
		Cfg:       cfg,
		Log:       log,
	})
	apiHandler := handlers.NewHandler(services, log)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// replay persisted state before anything is allowed to dispatch
	restoreState(ctx, services, log)

	// inbound valve traffic
	if err := broker.Subscribe(mqtt.TopicFilter, services.Listener.Handle); err != nil {
		log.Fatalw("failed to subscribe to valve topics", "err", err)
	}

	// background loops; each makes its first pass immediately
	go services.Bookings.Run(ctx, cfg.Bookings.RefreshInterval)
	go services.Controller.Run(ctx, cfg.Heating.EvaluateInterval)
	go services.Health.Run(ctx, cfg.Health.SweepInterval)

	maint := startMaintenance(ctx, services, cfg, log)

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, cfg.Port, apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, broker, services, maint, log)
}

// openDB initializes the SQLite database using configuration.
func openDB(cfg *config.Config, log *logger.Logger) (*sql.DB, error) {
	dbPath := cfg.DB.Path
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", "roomheat.db")
		dbPath = "roomheat.db"
	}
	return repository.InitDB(dbPath)
}

// restoreState replays persisted bookings, per-room control state and
// valve health. Failures degrade to defaults rather than aborting: the
// first provider refresh rebuilds what a stale DB could not.
func restoreState(ctx context.Context, services *service.Service, log *logger.Logger) {
	if err := services.Bookings.Restore(ctx); err != nil {
		log.Warnw("booking snapshot restore failed", "err", err)
	}
	if err := services.Controller.Restore(ctx); err != nil {
		log.Warnw("room control restore failed", "err", err)
	}
	if err := services.Health.Restore(ctx); err != nil {
		log.Warnw("valve health restore failed", "err", err)
	}
}

// startMaintenance schedules the nightly provider resync and event-log
// prune.
func startMaintenance(ctx context.Context, services *service.Service, cfg *config.Config, log *logger.Logger) *cron.Cron {
	c := cron.New()

	if _, err := c.AddFunc(resyncSpec, func() {
		if _, err := services.Bookings.Refresh(ctx); err != nil {
			log.Warnw("nightly resync failed", "err", err)
			return
		}
		services.Controller.Evaluate(ctx)
	}); err != nil {
		log.Fatalw("failed to schedule nightly resync", "err", err)
	}

	retention := cfg.Events.Retention
	if _, err := c.AddFunc(pruneSpec, func() {
		if _, err := services.EventLog.Prune(ctx, retention); err != nil {
			log.Errorw("event prune failed", "err", err)
		}
	}); err != nil {
		log.Fatalw("failed to schedule event prune", "err", err)
	}

	c.Start()
	return c
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, broker *mqtt.Client,
	services *service.Service, maint *cron.Cron, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down...")

	// stop background loops and scheduled jobs
	cancel()
	maint.Stop()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}

	// stop the valve actors, then drop the broker session
	services.Dispatcher.Shutdown()
	broker.Close()
}
