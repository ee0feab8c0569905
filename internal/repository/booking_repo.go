package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"roomheat/internal/models"
)

type BookingSQLite struct {
	db *sql.DB
}

func NewBookingSQLite(db *sql.DB) *BookingSQLite {
	return &BookingSQLite{db: db}
}

var _ BookingRepo = (*BookingSQLite)(nil)

const (
	insertBookingSQL = `
		INSERT INTO bookings (room_id, reference, status, arrival, departure, arrival_date, departure_date, guest_name, adults, children, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectBookingsSQL = `
		SELECT room_id, reference, status, arrival, departure, arrival_date, departure_date, guest_name, adults, children, fetched_at
		FROM bookings
	`
)

// Replace swaps the persisted snapshot for a new one in a single
// transaction, so a crashed refresh never leaves a half-written table.
func (r *BookingSQLite) Replace(ctx context.Context, snap models.Snapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bookings transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM bookings`); err != nil {
		return fmt.Errorf("clear bookings: %w", err)
	}

	fetched := snap.FetchedAt.UTC()
	for roomID, b := range snap.Bookings {
		if _, err := tx.ExecContext(ctx, insertBookingSQL,
			roomID,
			b.Reference,
			b.Status,
			nullableTime(timeOrZero(b.Arrival)),
			nullableTime(timeOrZero(b.Departure)),
			b.ArrivalDate.UTC(),
			b.DepartureDate.UTC(),
			b.GuestName,
			b.Adults,
			b.Children,
			fetched,
		); err != nil {
			return fmt.Errorf("insert booking for room %s: %w", roomID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bookings transaction: %w", err)
	}
	return nil
}

// Load fetches the persisted snapshot. A missing snapshot comes back
// with a zero FetchedAt and no bookings.
func (r *BookingSQLite) Load(ctx context.Context) (models.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, selectBookingsSQL)
	if err != nil {
		return models.Snapshot{}, err
	}
	defer rows.Close()

	snap := models.Snapshot{Bookings: make(map[models.RoomID]models.Booking)}
	for rows.Next() {
		var b models.Booking
		var arrival, departure sql.NullTime
		var fetched time.Time
		if err := rows.Scan(
			&b.RoomID,
			&b.Reference,
			&b.Status,
			&arrival,
			&departure,
			&b.ArrivalDate,
			&b.DepartureDate,
			&b.GuestName,
			&b.Adults,
			&b.Children,
			&fetched,
		); err != nil {
			return models.Snapshot{}, err
		}
		if arrival.Valid {
			t := arrival.Time.UTC()
			b.Arrival = &t
		}
		if departure.Valid {
			t := departure.Time.UTC()
			b.Departure = &t
		}
		b.ArrivalDate = b.ArrivalDate.UTC()
		b.DepartureDate = b.DepartureDate.UTC()
		snap.Bookings[b.RoomID] = b
		if fetched.After(snap.FetchedAt) {
			snap.FetchedAt = fetched.UTC()
		}
	}
	if err := rows.Err(); err != nil {
		return models.Snapshot{}, err
	}
	return snap, nil
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
