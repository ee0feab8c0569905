package repository_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"roomheat/internal/models"
	"roomheat/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestBookingSQLite_Replace_SwapsInsideTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer func(db *sql.DB) {
		err := db.Close()
		if err != nil {

		}
	}(db)

	repo := repository.NewBookingSQLite(db)

	locTokyo, _ := time.LoadLocation("Asia/Tokyo")
	arrival := time.Date(2026, 3, 3, 18, 30, 0, 0, locTokyo)
	fetched := time.Date(2026, 3, 1, 6, 0, 0, 0, locTokyo)

	snap := models.Snapshot{
		FetchedAt: fetched,
		Bookings: map[models.RoomID]models.Booking{
			"7": {
				Reference:     "REF-42",
				RoomID:        "7",
				Status:        models.StatusConfirmed,
				Arrival:       &arrival, // explicit datetime from the provider
				Departure:     nil,      // date-only departure
				ArrivalDate:   time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
				DepartureDate: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
				GuestName:     "Grace Hopper",
				Adults:        2,
				Children:      1,
			},
		},
	}

	isUTCOf := func(want time.Time) sqlmockArgumentFunc {
		return func(v driver.Value) bool {
			tm, ok := v.(time.Time)
			if !ok {
				return false
			}
			return tm.Equal(want) && tm.Location() == time.UTC
		}
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM bookings")).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bookings")).
		WithArgs(
			"7",
			"REF-42",
			"confirmed",
			isUTCOf(arrival.UTC()),
			nil, // date-only departure stored as NULL
			isUTCOf(snap.Bookings["7"].ArrivalDate),
			isUTCOf(snap.Bookings["7"].DepartureDate),
			"Grace Hopper",
			2,
			1,
			isUTCOf(fetched.UTC()),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := repo.Replace(context.Background(), snap); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBookingSQLite_Replace_RollsBackOnInsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer func(db *sql.DB) {
		err := db.Close()
		if err != nil {

		}
	}(db)

	repo := repository.NewBookingSQLite(db)

	snap := models.Snapshot{
		FetchedAt: time.Now(),
		Bookings: map[models.RoomID]models.Booking{
			"7": {
				Reference:     "REF-42",
				RoomID:        "7",
				Status:        models.StatusConfirmed,
				ArrivalDate:   time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
				DepartureDate: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
			},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM bookings")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bookings")).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = repo.Replace(context.Background(), snap)
	if err == nil || !strings.Contains(err.Error(), "room 7") {
		t.Fatalf("Replace() expected insert error naming the room, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBookingSQLite_Load_MapsNullTimesToNilPointers(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer func(db *sql.DB) {
		err := db.Close()
		if err != nil {

		}
	}(db)

	repo := repository.NewBookingSQLite(db)

	arrival := time.Date(2026, 3, 3, 18, 30, 0, 0, time.UTC)
	fetchedOld := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	fetchedNew := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)

	cols := []string{"room_id", "reference", "status", "arrival", "departure", "arrival_date", "departure_date", "guest_name", "adults", "children", "fetched_at"}
	rows := sqlmock.NewRows(cols).
		AddRow("7", "REF-42", "confirmed", arrival, nil,
			time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
			"Grace Hopper", 2, 1, fetchedOld).
		AddRow("12", "REF-43", "arrived", nil, nil,
			time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
			"Ada Lovelace", 1, 0, fetchedNew)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT room_id, reference, status, arrival, departure, arrival_date, departure_date, guest_name, adults, children, fetched_at")).
		WillReturnRows(rows)

	snap, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if len(snap.Bookings) != 2 {
		t.Fatalf("Load() want 2 bookings, got %d", len(snap.Bookings))
	}

	b7 := snap.Bookings["7"]
	if b7.Arrival == nil || !b7.Arrival.Equal(arrival) {
		t.Fatalf("Load() expected explicit arrival, got %v", b7.Arrival)
	}
	if b7.Departure != nil {
		t.Fatalf("Load() NULL departure should be nil pointer, got %v", b7.Departure)
	}

	b12 := snap.Bookings["12"]
	if b12.Arrival != nil || b12.Status != models.StatusArrived {
		t.Fatalf("Load() unexpected second booking: %+v", b12)
	}

	// FetchedAt is the newest row's stamp.
	if !snap.FetchedAt.Equal(fetchedNew) {
		t.Fatalf("Load() FetchedAt want %v, got %v", fetchedNew, snap.FetchedAt)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBookingSQLite_Load_EmptyTableYieldsZeroFetchedAt(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer func(db *sql.DB) {
		err := db.Close()
		if err != nil {

		}
	}(db)

	repo := repository.NewBookingSQLite(db)

	cols := []string{"room_id", "reference", "status", "arrival", "departure", "arrival_date", "departure_date", "guest_name", "adults", "children", "fetched_at"}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT room_id, reference, status, arrival, departure, arrival_date, departure_date, guest_name, adults, children, fetched_at")).
		WillReturnRows(sqlmock.NewRows(cols))

	snap, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if !snap.FetchedAt.IsZero() || len(snap.Bookings) != 0 {
		t.Fatalf("Load() expected empty snapshot, got %+v", snap)
	}
}
