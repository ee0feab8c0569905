package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens/creates a SQLite DB file and ensures tables exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// Conservative pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is not great with many writers
	db.SetMaxIdleConns(1)

	// Pragmas to improve reliability
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA journal_mode=WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA foreign_keys=ON: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA busy_timeout=5000: %w", err)
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Fail fast if the DB cannot be reached
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

const sqliteDriverName = "sqlite"

const schemaRoomControl = `
CREATE TABLE IF NOT EXISTS room_control (
    room_id TEXT PRIMARY KEY,
    state TEXT NOT NULL,
    auto_mode BOOLEAN NOT NULL,
    forced BOOLEAN NOT NULL,
    target_c REAL NOT NULL,
    booking_ref TEXT,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaValveHealth = `
CREATE TABLE IF NOT EXISTS valve_health (
    room_id TEXT NOT NULL,
    location TEXT NOT NULL,
    state TEXT NOT NULL,
    consecutive_failures INTEGER NOT NULL,
    retries_24h INTEGER NOT NULL,
    last_ack_at TIMESTAMP,
    last_attempt_at TIMESTAMP,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (room_id, location)
);
`

const schemaBookings = `
CREATE TABLE IF NOT EXISTS bookings (
    room_id TEXT PRIMARY KEY,
    reference TEXT NOT NULL,
    status TEXT NOT NULL,
    arrival TIMESTAMP,
    departure TIMESTAMP,
    arrival_date TIMESTAMP NOT NULL,
    departure_date TIMESTAMP NOT NULL,
    guest_name TEXT,
    adults INTEGER NOT NULL DEFAULT 0,
    children INTEGER NOT NULL DEFAULT 0,
    fetched_at TIMESTAMP NOT NULL
);
`

const schemaRoomEvents = `
CREATE TABLE IF NOT EXISTS room_events (
    id TEXT PRIMARY KEY,
    occurred_at TIMESTAMP NOT NULL,
    room_id TEXT,
    type TEXT NOT NULL,
    message TEXT NOT NULL,
    meta TEXT
);
CREATE INDEX IF NOT EXISTS idx_room_events_occurred ON room_events (occurred_at);
CREATE INDEX IF NOT EXISTS idx_room_events_room ON room_events (room_id, occurred_at);
`

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL
);
`

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		// In case of panic, rollback to avoid leaving an open transaction
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{
		schemaRoomControl,
		schemaValveHealth,
		schemaBookings,
		schemaRoomEvents,
		schemaUsers,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}
