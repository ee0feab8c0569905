package service

import (
	"context"
	"time"

	"roomheat/internal/heating"
	"roomheat/internal/models"
	"roomheat/internal/registry"
)

// RoomStatus is the assembled read-model for one room.
type RoomStatus struct {
	Room            models.Room             `json:"room"`
	State           models.RoomState        `json:"state"`
	ShouldHeat      bool                    `json:"should_heat"`
	TargetC         float64                 `json:"target_c"`
	Booking         *models.Booking         `json:"booking,omitempty"`
	Schedule        *models.HeatingSchedule `json:"schedule,omitempty"`
	NightsTotal     int                     `json:"nights_total,omitempty"`
	CurrentNight    int                     `json:"current_night,omitempty"`
	Valves          []models.Valve          `json:"valves"`
	GuestAdjustedAt *time.Time              `json:"guest_adjusted_at,omitempty"`
	GuestHold       bool                    `json:"guest_hold,omitempty"`
}

// MonitoringService assembles read-only views from the registry and the
// booking snapshot. It never dispatches anything.
type MonitoringService struct {
	reg         *registry.Registry
	bookings    Bookings
	guestWindow time.Duration
	nowFn       func() time.Time
}

func NewMonitoringService(reg *registry.Registry, bookings Bookings, guestWindow time.Duration) *MonitoringService {
	return &MonitoringService{reg: reg, bookings: bookings, guestWindow: guestWindow, nowFn: time.Now}
}

var _ Monitoring = (*MonitoringService)(nil)

// Rooms returns the status of every known room, ordered by room id.
func (s *MonitoringService) Rooms(ctx context.Context) []RoomStatus {
	rooms := s.reg.Rooms()
	out := make([]RoomStatus, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, s.status(room))
	}
	return out
}

// Room returns one room's status.
func (s *MonitoringService) Room(ctx context.Context, id models.RoomID) (RoomStatus, error) {
	room, ok := s.reg.Room(id)
	if !ok {
		return RoomStatus{}, ErrUnknownRoom
	}
	return s.status(room), nil
}

// Valves returns every valve's display copy.
func (s *MonitoringService) Valves(ctx context.Context) []models.Valve {
	return s.reg.AllValves()
}

// LastRefresh returns when the current booking snapshot was fetched.
func (s *MonitoringService) LastRefresh() time.Time {
	return s.bookings.Current().FetchedAt
}

func (s *MonitoringService) status(room models.Room) RoomStatus {
	st := RoomStatus{
		Room:   room,
		State:  s.reg.RoomState(room.ID),
		Valves: s.reg.RoomValves(room.ID),
	}

	var bp *models.Booking
	if b, ok := s.bookings.BookingFor(room.ID); ok {
		bp = &b
		st.Booking = bp
		st.NightsTotal = b.TotalNights()
		st.CurrentNight = b.CurrentNight(s.nowFn())
		if b.Status.Active() {
			if sched, err := heating.BuildSchedule(b, room.Config); err == nil {
				st.Schedule = &sched
			}
		}
	}

	decision := heating.Evaluate(room.Config, bp, st.State)
	st.ShouldHeat = decision.ShouldHeat
	st.TargetC = decision.TargetC
	if room.Config.Forced {
		st.TargetC = room.Config.ForcedTempC
	}

	// Surface guest activity: the hold flag marks an occupied room whose
	// guest touched a valve within the display window.
	if at, ok := s.reg.LastGuestAdjustment(room.ID); ok {
		t := at
		st.GuestAdjustedAt = &t
		st.GuestHold = st.State == models.StateOccupied &&
			s.guestWindow > 0 && s.nowFn().Sub(at) <= s.guestWindow
	}
	return st
}
