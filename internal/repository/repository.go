package repository

import (
	"context"
	"database/sql"
	"time"

	"roomheat/internal/models"
	"roomheat/internal/repository/db"
)

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*models.User, error)
}

type ControlRepo interface {
	Save(ctx context.Context, c models.RoomControl) error
	LoadAll(ctx context.Context) ([]models.RoomControl, error)
}

type HealthRepo interface {
	Save(ctx context.Context, h models.ValveHealth) error
	LoadAll(ctx context.Context) ([]models.ValveHealth, error)
}

type BookingRepo interface {
	Replace(ctx context.Context, snap models.Snapshot) error
	Load(ctx context.Context) (models.Snapshot, error)
}

type EventRepo interface {
	Append(ctx context.Context, e models.RoomEvent) error
	List(ctx context.Context, q models.EventQuery) ([]models.RoomEvent, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

type Repository struct {
	Control  ControlRepo
	Health   HealthRepo
	Bookings BookingRepo
	Events   EventRepo
	Auth     Authorization
}

func NewRepository(sqldb *sql.DB) *Repository {
	return &Repository{
		Control:  NewControlSQLite(sqldb),
		Health:   NewHealthSQLite(sqldb),
		Bookings: NewBookingSQLite(sqldb),
		Events:   NewEventSQLite(sqldb),
		Auth:     NewUserRepository(sqldb),
	}
}

// InitDB opens the SQLite database and applies the schema.
func InitDB(path string) (*sql.DB, error) {
	return db.InitDB(path)
}
