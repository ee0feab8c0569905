package service

import (
	"context"
	"errors"
	"time"

	"roomheat/internal/config"
	"roomheat/internal/logger"
	"roomheat/internal/models"
	"roomheat/internal/mqtt"
	"roomheat/internal/registry"
	"roomheat/internal/repository"
)

// ErrUnknownRoom is returned by room-scoped operations for rooms the
// provider catalog has never mentioned.
var ErrUnknownRoom = errors.New("unknown room")

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Bookings owns the provider snapshot: the periodic refresh loop, manual
// refresh, and lookups against the current (possibly stale) snapshot.
type Bookings interface {
	Run(ctx context.Context, interval time.Duration)
	Refresh(ctx context.Context) (RefreshResult, error)
	Restore(ctx context.Context) error
	Current() models.Snapshot
	BookingFor(room models.RoomID) (models.Booking, bool)
}

// Controller drives room heating state and applies operator overrides.
// Valve commands leave only through here and the dispatcher.
type Controller interface {
	Run(ctx context.Context, tick time.Duration)
	Evaluate(ctx context.Context)
	Restore(ctx context.Context) error
	SetAutoMode(ctx context.Context, room models.RoomID, enabled bool) error
	ForceTemperature(ctx context.Context, room models.RoomID, targetC float64) error
	SyncValves(ctx context.Context, room models.RoomID, targetC float64) error
	RetryUnresponsive(ctx context.Context) (int, error)
}

// Health classifies valve delivery health and sweeps for silent valves.
type Health interface {
	Run(ctx context.Context, sweep time.Duration)
	Restore(ctx context.Context) error
	Summary() models.HealthSummary
}

// Monitoring exposes read-only room and valve views for the HTTP layer.
type Monitoring interface {
	Rooms(ctx context.Context) []RoomStatus
	Room(ctx context.Context, id models.RoomID) (RoomStatus, error)
	Valves(ctx context.Context) []models.Valve
	LastRefresh() time.Time
}

// EventLog exposes the append-only room event log with filtering.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.RoomEvent, error)
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

// Service aggregates all sub-services. The loop-bearing ones (Bookings,
// Controller, Health) are started individually from main; operator
// operations are promoted onto the aggregate.
type Service struct {
	Bookings
	Controller
	Health
	Monitoring
	EventLog
	Authorization

	Dispatcher *Dispatcher
	Listener   *Listener
}

// Deps is everything NewService needs to wire the sub-services together.
type Deps struct {
	Repos     *repository.Repository
	Registry  *registry.Registry
	Publisher mqtt.ClientAPI
	Provider  BookingProvider
	Cfg       *config.Config
	Log       *logger.Logger
}

func NewService(d Deps) *Service {
	health := NewHealthService(d.Registry, d.Repos.Health, d.Repos.Events, HealthTuning{
		SilenceThreshold:  d.Cfg.Health.SilenceThreshold,
		AutoRetry:         d.Cfg.Dispatch.AutoRetryUnresponsive,
		AutoRetryInterval: d.Cfg.Dispatch.AutoRetryInterval,
	}, d.Log)

	dispatcher := NewDispatcher(DispatcherConfig{
		MaxAttempts: d.Cfg.Dispatch.MaxAttempts,
		AckWindow:   d.Cfg.Dispatch.CommandTimeout,
	}, d.Publisher, d.Registry, d.Repos.Events, health, d.Log)

	bookings := NewBookingService(d.Provider, d.Repos.Bookings, d.Repos.Events,
		d.Registry, d.Cfg.Bookings.HorizonDays, d.Log)

	controller := NewControlService(d.Registry, bookings, dispatcher,
		d.Repos.Control, d.Repos.Events, d.Cfg, d.Log)
	health.SetRetry(controller.RetryUnresponsive)

	listener := NewListener(d.Registry, dispatcher, d.Repos.Events,
		d.Cfg.Health.BatteryLowPercent, d.Cfg.Health.BatteryCriticalPercent, d.Log)

	return &Service{
		Bookings:      bookings,
		Controller:    controller,
		Health:        health,
		Monitoring:    NewMonitoringService(d.Registry, bookings, d.Cfg.Health.GuestOverrideWindow),
		EventLog:      NewEventLogService(d.Repos.Events, d.Log),
		Authorization: NewAuthService(d.Repos.Auth, d.Cfg.Auth.SigningKey, d.Cfg.Auth.TokenTTL),
		Dispatcher:    dispatcher,
		Listener:      listener,
	}
}
