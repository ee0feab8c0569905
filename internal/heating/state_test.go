package heating

import (
	"testing"
	"time"

	"roomheat/internal/models"
)

func confirmedBooking() (models.Booking, models.HeatingSchedule) {
	b := models.Booking{
		Reference:     "B-200",
		RoomID:        "7",
		Status:        models.StatusConfirmed,
		ArrivalDate:   day(2026, time.March, 3),
		DepartureDate: day(2026, time.March, 4),
	}
	sched, err := BuildSchedule(b, defaultConfig())
	if err != nil {
		panic(err)
	}
	return b, sched
}

func TestResolveState_PriorityOverrides(t *testing.T) {
	t.Parallel()

	b, sched := confirmedBooking()

	tests := []struct {
		name   string
		status models.BookingStatus
		now    time.Time
		want   models.RoomState
	}{
		{
			// Walk-in: occupancy wins even days before the schedule says so.
			name:   "arrived before heating window",
			status: models.StatusArrived,
			now:    at(2026, time.March, 3, 6, 0),
			want:   models.StateOccupied,
		},
		{
			name:   "arrived during cooling window",
			status: models.StatusArrived,
			now:    at(2026, time.March, 4, 9, 45),
			want:   models.StateOccupied,
		},
		{
			name:   "departed during occupied window",
			status: models.StatusDeparted,
			now:    at(2026, time.March, 3, 20, 0),
			want:   models.StateCoolingDown,
		},
		{
			name:   "departed before arrival",
			status: models.StatusDeparted,
			now:    at(2026, time.March, 3, 8, 0),
			want:   models.StateCoolingDown,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			booking := b
			booking.Status = tc.status
			if got := ResolveState(&booking, &sched, tc.now); got != tc.want {
				t.Errorf("ResolveState() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestResolveState_ScheduleWindows(t *testing.T) {
	t.Parallel()

	b, sched := confirmedBooking()

	tests := []struct {
		name string
		now  time.Time
		want models.RoomState
	}{
		{"well before heating start", at(2026, time.March, 3, 9, 0), models.StateBooked},
		{"just before heating start", at(2026, time.March, 3, 12, 59), models.StateBooked},
		{"at heating start", at(2026, time.March, 3, 13, 0), models.StateHeatingUp},
		{"between heating start and arrival", at(2026, time.March, 3, 14, 30), models.StateHeatingUp},
		{"at arrival", at(2026, time.March, 3, 15, 0), models.StateOccupied},
		{"overnight", at(2026, time.March, 4, 2, 0), models.StateOccupied},
		{"just before cooling start", at(2026, time.March, 4, 9, 29), models.StateOccupied},
		{"at cooling start", at(2026, time.March, 4, 9, 30), models.StateCoolingDown},
		{"after departure", at(2026, time.March, 4, 11, 0), models.StateCoolingDown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ResolveState(&b, &sched, tc.now); got != tc.want {
				t.Errorf("ResolveState(%v) = %v, want %v", tc.now, got, tc.want)
			}
		})
	}
}

func TestResolveState_VacantCases(t *testing.T) {
	t.Parallel()

	b, sched := confirmedBooking()
	now := at(2026, time.March, 3, 16, 0)

	t.Run("nil booking", func(t *testing.T) {
		t.Parallel()
		if got := ResolveState(nil, nil, now); got != models.StateVacant {
			t.Errorf("ResolveState(nil) = %v, want vacant", got)
		}
	})

	t.Run("expired booking", func(t *testing.T) {
		t.Parallel()
		expired := b
		if got := ResolveState(&expired, &sched, at(2026, time.March, 6, 12, 0)); got != models.StateVacant {
			t.Errorf("ResolveState(expired) = %v, want vacant", got)
		}
	})

	t.Run("unrecognized status", func(t *testing.T) {
		t.Parallel()
		other := b
		other.Status = models.NormalizeStatus("Owner_Occupied")
		if got := ResolveState(&other, &sched, now); got != models.StateVacant {
			t.Errorf("ResolveState(owner_occupied) = %v, want vacant", got)
		}
	})

	t.Run("cancelled status", func(t *testing.T) {
		t.Parallel()
		cancelled := b
		cancelled.Status = models.StatusCancelled
		if got := ResolveState(&cancelled, &sched, now); got != models.StateVacant {
			t.Errorf("ResolveState(cancelled) = %v, want vacant", got)
		}
	})

	t.Run("active booking without schedule", func(t *testing.T) {
		t.Parallel()
		if got := ResolveState(&b, nil, now); got != models.StateVacant {
			t.Errorf("ResolveState(no schedule) = %v, want vacant", got)
		}
	})
}

func TestResolveState_CaseInsensitiveStatus(t *testing.T) {
	t.Parallel()

	b, sched := confirmedBooking()
	b.Status = models.NormalizeStatus("  ARRIVED ")
	if got := ResolveState(&b, &sched, at(2026, time.March, 3, 6, 0)); got != models.StateOccupied {
		t.Errorf("ResolveState(ARRIVED) = %v, want occupied", got)
	}
}

func TestResolveState_Idempotent(t *testing.T) {
	t.Parallel()

	b, sched := confirmedBooking()
	now := at(2026, time.March, 3, 14, 0)

	first := ResolveState(&b, &sched, now)
	second := ResolveState(&b, &sched, now)
	if first != second {
		t.Fatalf("ResolveState not idempotent: %v then %v", first, second)
	}
	if first != models.StateHeatingUp {
		t.Fatalf("ResolveState() = %v, want heating_up", first)
	}
}
