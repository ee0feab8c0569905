package repository

import (
	"context"
	"database/sql"
	"time"

	"roomheat/internal/models"
)

type HealthSQLite struct {
	db *sql.DB
}

func NewHealthSQLite(db *sql.DB) *HealthSQLite {
	return &HealthSQLite{db: db}
}

var _ HealthRepo = (*HealthSQLite)(nil)

const (
	upsertHealthSQL = `
		INSERT INTO valve_health (room_id, location, state, consecutive_failures, retries_24h, last_ack_at, last_attempt_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(room_id, location) DO UPDATE SET
			state=excluded.state,
			consecutive_failures=excluded.consecutive_failures,
			retries_24h=excluded.retries_24h,
			last_ack_at=excluded.last_ack_at,
			last_attempt_at=excluded.last_attempt_at,
			updated_at=excluded.updated_at
	`

	selectHealthSQL = `
		SELECT room_id, location, state, consecutive_failures, retries_24h, last_ack_at, last_attempt_at, updated_at
		FROM valve_health ORDER BY room_id, location
	`
)

// nullableTime maps a zero time to NULL.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// Save upserts one valve's health row.
func (r *HealthSQLite) Save(ctx context.Context, h models.ValveHealth) error {
	tsUTC := h.UpdatedAt
	if tsUTC.IsZero() {
		tsUTC = time.Now().UTC()
	} else {
		tsUTC = tsUTC.UTC()
	}

	_, err := r.db.ExecContext(ctx, upsertHealthSQL,
		h.Valve.Room,
		h.Valve.Location,
		h.State,
		h.ConsecutiveFailures,
		h.RetriesLast24h,
		nullableTime(h.LastAckAt),
		nullableTime(h.LastAttemptAt),
		tsUTC,
	)
	return err
}

// LoadAll fetches every valve's health row.
func (r *HealthSQLite) LoadAll(ctx context.Context) ([]models.ValveHealth, error) {
	rows, err := r.db.QueryContext(ctx, selectHealthSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.ValveHealth, 0, 32)
	for rows.Next() {
		var h models.ValveHealth
		var lastAck, lastAttempt sql.NullTime
		if err := rows.Scan(
			&h.Valve.Room,
			&h.Valve.Location,
			&h.State,
			&h.ConsecutiveFailures,
			&h.RetriesLast24h,
			&lastAck,
			&lastAttempt,
			&h.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if lastAck.Valid {
			h.LastAckAt = lastAck.Time.UTC()
		}
		if lastAttempt.Valid {
			h.LastAttemptAt = lastAttempt.Time.UTC()
		}
		h.UpdatedAt = h.UpdatedAt.UTC()
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
