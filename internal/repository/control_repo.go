package repository

import (
	"context"
	"database/sql"
	"time"

	"roomheat/internal/models"
)

type ControlSQLite struct {
	db *sql.DB
}

func NewControlSQLite(db *sql.DB) *ControlSQLite {
	return &ControlSQLite{db: db}
}

var _ ControlRepo = (*ControlSQLite)(nil)

const (
	upsertControlSQL = `
		INSERT INTO room_control (room_id, state, auto_mode, forced, target_c, booking_ref, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(room_id) DO UPDATE SET
			state=excluded.state,
			auto_mode=excluded.auto_mode,
			forced=excluded.forced,
			target_c=excluded.target_c,
			booking_ref=excluded.booking_ref,
			updated_at=excluded.updated_at
	`

	selectControlsSQL = `
		SELECT room_id, state, auto_mode, forced, target_c, booking_ref, updated_at
		FROM room_control ORDER BY room_id
	`
)

// Save upserts one room's control row.
func (r *ControlSQLite) Save(ctx context.Context, c models.RoomControl) error {
	// timestamps are persisted as UTC; set if zero
	tsUTC := c.UpdatedAt
	if tsUTC.IsZero() {
		tsUTC = time.Now().UTC()
	} else {
		tsUTC = tsUTC.UTC()
	}

	_, err := r.db.ExecContext(ctx, upsertControlSQL,
		c.RoomID,
		c.State,
		c.AutoMode,
		c.Forced,
		c.TargetC,
		c.BookingRef,
		tsUTC,
	)
	return err
}

// LoadAll fetches every room's control row; an empty table yields an
// empty slice, not an error.
func (r *ControlSQLite) LoadAll(ctx context.Context) ([]models.RoomControl, error) {
	rows, err := r.db.QueryContext(ctx, selectControlsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.RoomControl, 0, 32)
	for rows.Next() {
		var c models.RoomControl
		var ref sql.NullString
		if err := rows.Scan(
			&c.RoomID,
			&c.State,
			&c.AutoMode,
			&c.Forced,
			&c.TargetC,
			&ref,
			&c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		c.BookingRef = ref.String
		c.UpdatedAt = c.UpdatedAt.UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
