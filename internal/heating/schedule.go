// Package heating holds the pure decision core: schedule derivation, room
// state resolution, the heat/no-heat evaluator and the origin classifier.
// Everything here is a function of its arguments; callers own all state.
package heating

import (
	"errors"
	"fmt"
	"time"

	"roomheat/internal/models"
)

// ErrInvalidSchedule marks a booking whose effective arrival falls after
// its effective departure. The room is treated as vacant until the booking
// is corrected upstream.
var ErrInvalidSchedule = errors.New("invalid schedule: arrival after departure")

// BuildSchedule derives the heating/cooling boundary timestamps for one
// booking.
//
// Effective arrival is the earlier of the provider's explicit arrival and
// the arrival date combined with the room's default arrival time of day;
// effective departure is the later of the explicit departure and the date
// with the default departure time. The heating offset is subtracted from
// arrival, the cooling offset added to departure. A negative cooling
// offset makes cooling start before checkout; that is an energy-saving
// mode, not an error.
func BuildSchedule(b models.Booking, cfg models.RoomConfig) (models.HeatingSchedule, error) {
	arrival := b.ArrivalDate.Add(cfg.DefaultArrival)
	if b.Arrival != nil && b.Arrival.Before(arrival) {
		arrival = *b.Arrival
	}

	departure := b.DepartureDate.Add(cfg.DefaultDeparture)
	if b.Departure != nil && b.Departure.After(departure) {
		departure = *b.Departure
	}

	if arrival.After(departure) {
		return models.HeatingSchedule{}, fmt.Errorf("%w: booking %s arrives %s, departs %s",
			ErrInvalidSchedule, b.Reference, arrival.Format(time.RFC3339), departure.Format(time.RFC3339))
	}

	return models.HeatingSchedule{
		EffectiveArrival:   arrival,
		EffectiveDeparture: departure,
		HeatingStart:       arrival.Add(-cfg.HeatingOffset),
		CoolingStart:       departure.Add(cfg.CoolingOffset),
	}, nil
}
