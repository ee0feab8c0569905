package heating

import "roomheat/internal/models"

// Decision is the output of one evaluation: whether to heat and the
// setpoint to command. Consumed at state-transition edges only; the
// evaluator itself never dispatches.
type Decision struct {
	ShouldHeat bool    `json:"should_heat"`
	TargetC    float64 `json:"target_c"`
}

// Evaluate combines the auto-mode flag, booking activity and room state.
// Heat only when automation is on, the booking is active and the room is
// in a heating phase; the target is the occupied temperature then, the
// vacant temperature otherwise.
func Evaluate(cfg models.RoomConfig, b *models.Booking, state models.RoomState) Decision {
	active := b != nil && b.Status.Active()
	heatingPhase := state == models.StateHeatingUp || state == models.StateOccupied

	if cfg.AutoMode && active && heatingPhase {
		return Decision{ShouldHeat: true, TargetC: cfg.OccupiedTempC}
	}
	return Decision{ShouldHeat: false, TargetC: cfg.VacantTempC}
}
