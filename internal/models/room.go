package models

import (
	"sort"
	"time"
)

// RoomID is the booking provider's room identifier, stable for the life of the room.
type RoomID string

// Location tags a valve's position within a room.
type Location string

const (
	LocationBedroom  Location = "bedroom"
	LocationBathroom Location = "bathroom"
	// Numbered variants (bedroom1, bedroom2, ...) are valid Locations too;
	// only the bathroom tag changes behavior.
)

// IsBathroom reports whether the location is the bathroom tag.
func (l Location) IsBathroom() bool { return l == LocationBathroom }

// ValveID identifies a valve as (room, location). Used as a map key; the
// transport-topic string encoding lives in the mqtt package, not here.
type ValveID struct {
	Room     RoomID   `json:"room_id"`
	Location Location `json:"location"`
}

func (v ValveID) String() string {
	return string(v.Room) + "/" + string(v.Location)
}

// RoomState is the heating phase of a room. Recomputed each evaluation
// pass as a pure function of (booking, config, now); never stored as the
// source of truth.
type RoomState string

const (
	StateVacant      RoomState = "vacant"
	StateBooked      RoomState = "booked"
	StateHeatingUp   RoomState = "heating_up"
	StateOccupied    RoomState = "occupied"
	StateCoolingDown RoomState = "cooling_down"
)

// RoomConfig is the per-room knobs fed into every evaluator call. Forced
// and ForcedTempC record an operator override; forcing always turns auto
// mode off, and re-enabling auto mode clears the override.
type RoomConfig struct {
	AutoMode         bool          `json:"auto_mode"`
	Forced           bool          `json:"forced,omitempty"`
	ForcedTempC      float64       `json:"forced_temp_c,omitempty"`
	HeatingOffset    time.Duration `json:"heating_offset"`    // subtracted from effective arrival
	CoolingOffset    time.Duration `json:"cooling_offset"`    // added to effective departure; may be negative
	OccupiedTempC    float64       `json:"occupied_temp_c"`   // °C
	VacantTempC      float64       `json:"vacant_temp_c"`     // °C
	DefaultArrival   time.Duration `json:"default_arrival"`   // time of day, offset from midnight
	DefaultDeparture time.Duration `json:"default_departure"` // time of day, offset from midnight
	SyncEnabled      bool          `json:"sync_enabled"`
	ExcludeBathroom  bool          `json:"exclude_bathroom"`
}

// Room ties a provider room to its valves and configuration.
type Room struct {
	ID       RoomID     `json:"id"`
	Name     string     `json:"name,omitempty"`     // provider site name
	Category string     `json:"category,omitempty"` // provider site category
	Config   RoomConfig `json:"config"`
	Valves   []ValveID  `json:"valves,omitempty"`
}

// PrimaryValve returns the valve that owns a room-level transition when
// fan-out is disabled: the first non-bathroom valve in location order,
// falling back to the first valve of any kind.
func (r Room) PrimaryValve() (ValveID, bool) {
	if len(r.Valves) == 0 {
		return ValveID{}, false
	}
	ordered := append([]ValveID(nil), r.Valves...)
	SortValves(ordered)
	for _, v := range ordered {
		if !v.Location.IsBathroom() {
			return v, true
		}
	}
	return ordered[0], true
}

// SyncTargets returns the valves a room-level temperature change fans out
// to, in dispatch order. With sync disabled only the primary valve moves;
// with sync enabled every non-bathroom valve moves, and the bathroom valve
// joins unless excluded.
func (r Room) SyncTargets() []ValveID {
	if !r.Config.SyncEnabled {
		if primary, ok := r.PrimaryValve(); ok {
			return []ValveID{primary}
		}
		return nil
	}
	targets := make([]ValveID, 0, len(r.Valves))
	for _, v := range r.Valves {
		if v.Location.IsBathroom() && r.Config.ExcludeBathroom {
			continue
		}
		targets = append(targets, v)
	}
	SortValves(targets)
	return targets
}

// SortValves orders valves bedroom-first, bathroom last, numbered bedrooms
// in between by tag.
func SortValves(vs []ValveID) {
	sort.Slice(vs, func(i, j int) bool {
		a, b := vs[i], vs[j]
		if a.Location.IsBathroom() != b.Location.IsBathroom() {
			return !a.Location.IsBathroom()
		}
		if a.Location != b.Location {
			return a.Location < b.Location
		}
		return a.Room < b.Room
	})
}

// HeatingSchedule holds the boundary timestamps derived from one booking.
type HeatingSchedule struct {
	EffectiveArrival   time.Time `json:"effective_arrival"`
	EffectiveDeparture time.Time `json:"effective_departure"`
	HeatingStart       time.Time `json:"heating_start"`
	CoolingStart       time.Time `json:"cooling_start"`
}

// RoomControl is the persisted per-room control state (survives restarts).
type RoomControl struct {
	RoomID     RoomID    `json:"room_id"`
	State      RoomState `json:"state"`
	AutoMode   bool      `json:"auto_mode"`
	Forced     bool      `json:"forced"` // operator forced a temperature; auto-mode off
	TargetC    float64   `json:"target_c"`
	BookingRef string    `json:"booking_ref,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}
