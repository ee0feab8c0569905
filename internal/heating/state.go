package heating

import (
	"time"

	"roomheat/internal/models"
)

// ResolveState maps (booking, schedule, now) to a room state. Pure and
// idempotent: identical inputs always yield the identical state.
//
// Priority order, first match wins:
//  1. no booking, or an expired one → vacant
//  2. status departed → cooling_down, regardless of the schedule
//  3. status arrived → occupied, regardless of the schedule (walk-ins)
//  4. confirmed/unconfirmed → compare now against the schedule boundaries
//  5. any other status → vacant
//
// A nil schedule with an otherwise active booking means the schedule could
// not be derived; the room is vacant until the booking is corrected.
func ResolveState(b *models.Booking, sched *models.HeatingSchedule, now time.Time) models.RoomState {
	if b == nil || b.Expired(now) {
		return models.StateVacant
	}

	switch b.Status {
	case models.StatusDeparted:
		return models.StateCoolingDown
	case models.StatusArrived:
		return models.StateOccupied
	case models.StatusConfirmed, models.StatusUnconfirmed:
		// fall through to the schedule comparison
	default:
		return models.StateVacant
	}

	if sched == nil {
		return models.StateVacant
	}

	switch {
	case now.Before(sched.HeatingStart):
		return models.StateBooked
	case now.Before(sched.EffectiveArrival):
		return models.StateHeatingUp
	case now.Before(sched.CoolingStart):
		return models.StateOccupied
	default:
		return models.StateCoolingDown
	}
}
