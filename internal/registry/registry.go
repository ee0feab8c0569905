// Package registry keeps the in-memory picture of rooms and valves: what
// the booking provider says exists, what MQTT traffic has revealed, and
// the last telemetry seen per valve. It is the only mutable shared state
// between the transport callbacks and the control loop, so every method
// is safe for concurrent use.
package registry

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"roomheat/internal/models"
)

type valveEntry struct {
	valve     models.Valve
	lastGuest time.Time
}

type roomEntry struct {
	room   models.Room
	state  models.RoomState
	valves map[models.Location]*valveEntry
}

// Registry is the shared room/valve store.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[models.RoomID]*roomEntry
	defaults models.RoomConfig
	nowFn    func() time.Time
}

// New returns an empty registry. Rooms created by discovery or provider
// upserts start from the given default configuration.
func New(defaults models.RoomConfig) *Registry {
	return &Registry{
		rooms:    make(map[models.RoomID]*roomEntry),
		defaults: defaults,
		nowFn:    time.Now,
	}
}

func (r *Registry) entry(id models.RoomID) *roomEntry {
	e, ok := r.rooms[id]
	if !ok {
		e = &roomEntry{
			room: models.Room{
				ID:     id,
				Config: r.defaults,
			},
			state:  models.StateVacant,
			valves: make(map[models.Location]*valveEntry),
		}
		r.rooms[id] = e
	}
	return e
}

// UpsertRoom records a room from the provider's site list, keeping any
// configuration and valves already known. Returns true when the room was
// not seen before.
func (r *Registry) UpsertRoom(site models.Site) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, existed := r.rooms[models.RoomID(site.ID)]
	e := r.entry(models.RoomID(site.ID))
	e.room.Name = site.Name
	e.room.Category = site.Category
	return !existed
}

// EnsureValve records a valve discovered from traffic on its topic,
// creating a placeholder room when the provider has not listed it yet.
// Returns true when the valve was not seen before.
func (r *Registry) EnsureValve(id models.ValveID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entry(id.Room)
	if _, ok := e.valves[id.Location]; ok {
		return false
	}
	e.valves[id.Location] = &valveEntry{
		valve: models.Valve{ID: id, Health: models.HealthHealthy},
	}
	e.room.Valves = append(e.room.Valves, id)
	models.SortValves(e.room.Valves)
	return true
}

// RoomConfig returns the room's configuration.
func (r *Registry) RoomConfig(id models.RoomID) (models.RoomConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.rooms[id]
	if !ok {
		return models.RoomConfig{}, false
	}
	return e.room.Config, true
}

// SetRoomConfig replaces the room's configuration, creating the room if
// needed.
func (r *Registry) SetRoomConfig(id models.RoomID, cfg models.RoomConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(id).room.Config = cfg
}

// UpdateRoomConfig applies fn to the room's configuration under the lock
// and returns the result.
func (r *Registry) UpdateRoomConfig(id models.RoomID, fn func(*models.RoomConfig)) models.RoomConfig {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entry(id)
	fn(&e.room.Config)
	return e.room.Config
}

// SetRoomState stores the resolved state and returns the previous one.
// The changed flag drives edge-triggered dispatch: commands go out only
// on transitions.
func (r *Registry) SetRoomState(id models.RoomID, state models.RoomState) (prev models.RoomState, changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entry(id)
	prev = e.state
	e.state = state
	return prev, prev != state
}

// RoomState returns the last resolved state for the room.
func (r *Registry) RoomState(id models.RoomID) models.RoomState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.rooms[id]; ok {
		return e.state
	}
	return models.StateVacant
}

func (r *Registry) valveEntry(id models.ValveID) *valveEntry {
	e := r.entry(id.Room)
	v, ok := e.valves[id.Location]
	if !ok {
		v = &valveEntry{valve: models.Valve{ID: id, Health: models.HealthHealthy}}
		e.valves[id.Location] = v
		e.room.Valves = append(e.room.Valves, id)
		models.SortValves(e.room.Valves)
	}
	return v
}

// RecordOnline stores the valve's announced online flag.
func (r *Registry) RecordOnline(id models.ValveID, online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := r.valveEntry(id)
	v.valve.Online = online
	v.valve.LastSeen = r.nowFn()
}

// RecordTemperature stores the valve's measured room temperature.
func (r *Registry) RecordTemperature(id models.ValveID, tempC float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := r.valveEntry(id)
	v.valve.CurrentTempC = tempC
	v.valve.LastSeen = r.nowFn()
}

// RecordBattery stores the battery level and returns the previous reading
// so callers can detect threshold crossings.
func (r *Registry) RecordBattery(id models.ValveID, percent float64) (prev float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := r.valveEntry(id)
	prev = v.valve.BatteryPercent
	v.valve.BatteryPercent = percent
	v.valve.LastSeen = r.nowFn()
	return prev
}

// RecordSetpoint stores a reported target temperature. Any report not
// classified as automation stamps the guest-adjustment clock that protects
// the setting from being reverted; unknown origins count as guest.
func (r *Registry) RecordSetpoint(id models.ValveID, setpointC float64, source models.SourceClass) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := r.valveEntry(id)
	v.valve.LastKnownSetpoint = setpointC
	v.valve.LastSeen = r.nowFn()
	if source != models.SourceAutomation {
		v.lastGuest = r.nowFn()
	}
}

// RecordAck stamps a confirmed command delivery.
func (r *Registry) RecordAck(id models.ValveID, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := r.valveEntry(id)
	v.valve.LastAckAt = at
	v.valve.LastSeen = r.nowFn()
}

// SetHealth stores the classifier's verdict for the valve.
func (r *Registry) SetHealth(id models.ValveID, h models.HealthState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.valveEntry(id).valve.Health = h
}

// GuestAdjustedAfter reports whether a guest touched the valve after t.
func (r *Registry) GuestAdjustedAfter(id models.ValveID, t time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.rooms[id.Room]
	if !ok {
		return false
	}
	v, ok := e.valves[id.Location]
	if !ok {
		return false
	}
	return v.lastGuest.After(t)
}

// LastGuestAdjustment returns the most recent guest adjustment across the
// room's valves.
func (r *Registry) LastGuestAdjustment(id models.RoomID) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.rooms[id]
	if !ok {
		return time.Time{}, false
	}
	var latest time.Time
	for _, v := range e.valves {
		if v.lastGuest.After(latest) {
			latest = v.lastGuest
		}
	}
	return latest, !latest.IsZero()
}

// Valve returns a copy of the valve's last known telemetry.
func (r *Registry) Valve(id models.ValveID) (models.Valve, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.rooms[id.Room]
	if !ok {
		return models.Valve{}, false
	}
	v, ok := e.valves[id.Location]
	if !ok {
		return models.Valve{}, false
	}
	return v.valve, true
}

// RoomValves returns copies of the room's valves in dispatch order.
func (r *Registry) RoomValves(id models.RoomID) []models.Valve {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.rooms[id]
	if !ok {
		return nil
	}
	out := make([]models.Valve, 0, len(e.room.Valves))
	for _, vid := range e.room.Valves {
		if v, ok := e.valves[vid.Location]; ok {
			out = append(out, v.valve)
		}
	}
	return out
}

// AllValves returns copies of every known valve.
func (r *Registry) AllValves() []models.Valve {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.Valve
	for _, e := range r.rooms {
		for _, vid := range e.room.Valves {
			if v, ok := e.valves[vid.Location]; ok {
				out = append(out, v.valve)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID.Room != out[j].ID.Room {
			return roomLess(out[i].ID.Room, out[j].ID.Room)
		}
		return out[i].ID.Location < out[j].ID.Location
	})
	return out
}

// Room returns a copy of the room record.
func (r *Registry) Room(id models.RoomID) (models.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.rooms[id]
	if !ok {
		return models.Room{}, false
	}
	return copyRoom(e.room), true
}

// Rooms returns copies of every room, ordered by room number.
func (r *Registry) Rooms() []models.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Room, 0, len(r.rooms))
	for _, e := range r.rooms {
		out = append(out, copyRoom(e.room))
	}
	sort.Slice(out, func(i, j int) bool { return roomLess(out[i].ID, out[j].ID) })
	return out
}

func copyRoom(room models.Room) models.Room {
	out := room
	out.Valves = append([]models.ValveID(nil), room.Valves...)
	return out
}

// roomLess orders numeric room IDs numerically so room 9 sorts before
// room 10, falling back to string order for non-numeric IDs.
func roomLess(a, b models.RoomID) bool {
	ai, aerr := strconv.Atoi(string(a))
	bi, berr := strconv.Atoi(string(b))
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}
