package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"roomheat/internal/config"
	"roomheat/internal/heating"
	"roomheat/internal/logger"
	"roomheat/internal/models"
	"roomheat/internal/registry"
	"roomheat/internal/repository"
)

// Operator force-temperature bounds, matching what the TRV hardware
// accepts.
const (
	forceMinC = 5.0
	forceMaxC = 30.0
)

// ErrTargetRange is returned when an operator-supplied setpoint falls
// outside the hardware bounds.
var ErrTargetRange = fmt.Errorf("target temperature must be between %.1f and %.1f", forceMinC, forceMaxC)

// commandSink is the slice of the dispatcher the controller uses.
type commandSink interface {
	Dispatch(cmd models.Command)
	DispatchAfter(cmd models.Command, delay time.Duration)
}

// ControlService recomputes every room's heating state each tick and
// dispatches setpoints on state transitions only. Repeated evaluations in
// the same state never re-send, so a guest turning a valve down isn't
// fought by the next tick.
type ControlService struct {
	reg      *registry.Registry
	bookings Bookings
	sink     commandSink
	control  repository.ControlRepo
	events   repository.EventRepo
	log      *logger.Logger
	stagger  time.Duration
	excluded func(models.RoomID) bool
	nowFn    func() time.Time

	mu          sync.Mutex
	schedErrRef map[models.RoomID]string
}

func NewControlService(reg *registry.Registry, bookings Bookings, sink commandSink,
	control repository.ControlRepo, events repository.EventRepo,
	cfg *config.Config, log *logger.Logger) *ControlService {
	return &ControlService{
		reg:         reg,
		bookings:    bookings,
		sink:        sink,
		control:     control,
		events:      events,
		log:         log,
		stagger:     cfg.Dispatch.SyncStagger,
		excluded:    cfg.RoomExcluded,
		nowFn:       time.Now,
		schedErrRef: make(map[models.RoomID]string),
	}
}

var _ Controller = (*ControlService)(nil)

// Run evaluates immediately and then on every tick.
func (s *ControlService) Run(ctx context.Context, tick time.Duration) {
	s.Evaluate(ctx)
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Evaluate(ctx)
		}
	}
}

// Evaluate runs one pass over every known room.
func (s *ControlService) Evaluate(ctx context.Context) {
	now := s.nowFn()
	states := make(map[models.RoomState]int)
	for _, room := range s.reg.Rooms() {
		if !s.excluded(room.ID) {
			s.evaluateRoom(ctx, room, now)
		}
		states[s.reg.RoomState(room.ID)]++
	}
	setRoomStateGauges(states)
}

func (s *ControlService) evaluateRoom(ctx context.Context, room models.Room, now time.Time) {
	var (
		bp    *models.Booking
		sched *models.HeatingSchedule
	)
	if b, ok := s.bookings.BookingFor(room.ID); ok {
		bp = &b
		if b.Status.Active() {
			sc, err := heating.BuildSchedule(b, room.Config)
			if err != nil {
				s.scheduleError(ctx, room.ID, b, err)
			} else {
				sched = &sc
				s.clearScheduleError(room.ID)
			}
		}
	}

	state := heating.ResolveState(bp, sched, now)
	prev, changed := s.reg.SetRoomState(room.ID, state)
	if !changed {
		return
	}

	decision := heating.Evaluate(room.Config, bp, state)
	ref := ""
	if bp != nil {
		ref = bp.Reference
	}

	s.log.Infow("room state changed",
		"room", room.ID, "from", prev, "to", state,
		"should_heat", decision.ShouldHeat, "target_c", decision.TargetC)
	s.appendEvent(ctx, models.RoomEvent{
		RoomID:      room.ID,
		Type:        models.EventStateChange,
		Description: fmt.Sprintf("room went from %s to %s", prev, state),
		Metadata: map[string]any{
			"from": prev, "to": state,
			"booking_ref": ref, "target_c": decision.TargetC,
		},
	})

	if room.Config.AutoMode {
		s.fanOut(room, models.Command{
			TargetC:   decision.TargetC,
			Reason:    models.ReasonTransition,
			DecidedAt: now,
		})
	}
	s.persistControl(ctx, room, state, decision.TargetC, ref, now)
}

// scheduleError reports an impossible booking window once per booking
// reference, not on every tick.
func (s *ControlService) scheduleError(ctx context.Context, room models.RoomID, b models.Booking, err error) {
	s.mu.Lock()
	seen := s.schedErrRef[room] == b.Reference
	if !seen {
		s.schedErrRef[room] = b.Reference
	}
	s.mu.Unlock()
	if seen {
		return
	}

	s.log.Errorw("booking has an invalid stay window",
		"room", room, "booking_ref", b.Reference, "error", err)
	s.appendEvent(ctx, models.RoomEvent{
		RoomID:      room,
		Type:        models.EventScheduleError,
		Description: "booking " + b.Reference + " has arrival after departure; room treated as vacant",
		Metadata:    map[string]any{"booking_ref": b.Reference},
	})
}

func (s *ControlService) clearScheduleError(room models.RoomID) {
	s.mu.Lock()
	delete(s.schedErrRef, room)
	s.mu.Unlock()
}

// fanOut dispatches one command per sync target, staggered so a room's
// valves don't all wake the radio at once.
func (s *ControlService) fanOut(room models.Room, cmd models.Command) {
	targets := room.SyncTargets()
	for i, v := range targets {
		c := cmd
		c.Valve = v
		if i == 0 || s.stagger <= 0 {
			s.sink.Dispatch(c)
		} else {
			s.sink.DispatchAfter(c, time.Duration(i)*s.stagger)
		}
	}
}

func (s *ControlService) persistControl(ctx context.Context, room models.Room,
	state models.RoomState, targetC float64, ref string, now time.Time) {
	err := s.control.Save(ctx, models.RoomControl{
		RoomID:     room.ID,
		State:      state,
		AutoMode:   room.Config.AutoMode,
		Forced:     room.Config.Forced,
		TargetC:    targetC,
		BookingRef: ref,
		UpdatedAt:  now,
	})
	if err != nil {
		s.log.Errorw("persist room control", "room", room.ID, "error", err)
	}
}

// SetAutoMode flips automation for one room. Re-enabling clears any forced
// override and immediately converges the valves onto the automatic target;
// disabling leaves the valves exactly where they are.
func (s *ControlService) SetAutoMode(ctx context.Context, id models.RoomID, enabled bool) error {
	room, ok := s.reg.Room(id)
	if !ok {
		return ErrUnknownRoom
	}

	cfg := s.reg.UpdateRoomConfig(id, func(c *models.RoomConfig) {
		c.AutoMode = enabled
		if enabled {
			c.Forced = false
			c.ForcedTempC = 0
		}
	})
	room.Config = cfg

	s.log.Infow("auto mode changed", "room", id, "enabled", enabled)
	s.appendEvent(ctx, models.RoomEvent{
		RoomID:      id,
		Type:        models.EventAutoMode,
		Description: fmt.Sprintf("auto mode %s", onOff(enabled)),
		Metadata:    map[string]any{"enabled": enabled},
	})

	now := s.nowFn()
	target := s.desiredTarget(room)
	if enabled {
		s.fanOut(room, models.Command{TargetC: target, Reason: models.ReasonTransition, DecidedAt: now})
	}
	s.persistControl(ctx, room, s.reg.RoomState(id), target, s.bookingRef(id), now)
	return nil
}

// ForceTemperature pins the room to an operator-chosen setpoint and turns
// automation off. A zero target means the room's occupied default.
func (s *ControlService) ForceTemperature(ctx context.Context, id models.RoomID, targetC float64) error {
	room, ok := s.reg.Room(id)
	if !ok {
		return ErrUnknownRoom
	}
	if targetC == 0 {
		targetC = room.Config.OccupiedTempC
	}
	if targetC < forceMinC || targetC > forceMaxC {
		return ErrTargetRange
	}

	cfg := s.reg.UpdateRoomConfig(id, func(c *models.RoomConfig) {
		c.AutoMode = false
		c.Forced = true
		c.ForcedTempC = targetC
	})
	room.Config = cfg

	s.log.Infow("temperature forced", "room", id, "target_c", targetC)
	s.appendEvent(ctx, models.RoomEvent{
		RoomID:      id,
		Type:        models.EventForced,
		Description: fmt.Sprintf("temperature forced to %.1f", targetC),
		Metadata:    map[string]any{"target_c": targetC},
	})

	now := s.nowFn()
	s.fanOut(room, models.Command{TargetC: targetC, Reason: models.ReasonForce, DecidedAt: now})
	s.persistControl(ctx, room, s.reg.RoomState(id), targetC, s.bookingRef(id), now)
	return nil
}

// SyncValves pushes a setpoint to every sync target. A zero target means
// the room's current desired one. Auto mode is left untouched.
func (s *ControlService) SyncValves(ctx context.Context, id models.RoomID, targetC float64) error {
	room, ok := s.reg.Room(id)
	if !ok {
		return ErrUnknownRoom
	}
	if targetC == 0 {
		targetC = s.desiredTarget(room)
	} else if targetC < forceMinC || targetC > forceMaxC {
		return ErrTargetRange
	}
	s.log.Infow("valve sync requested", "room", id, "target_c", targetC)
	s.fanOut(room, models.Command{TargetC: targetC, Reason: models.ReasonSync, DecidedAt: s.nowFn()})
	return nil
}

// RetryUnresponsive re-issues the current desired setpoint to every
// unresponsive valve as a fresh chain, resetting its attempt counter.
func (s *ControlService) RetryUnresponsive(ctx context.Context) (int, error) {
	now := s.nowFn()
	count := 0
	for _, v := range s.reg.AllValves() {
		if v.Health != models.HealthUnresponsive {
			continue
		}
		room, ok := s.reg.Room(v.ID.Room)
		if !ok || s.excluded(room.ID) {
			continue
		}
		s.sink.Dispatch(models.Command{
			Valve:     v.ID,
			TargetC:   s.desiredTarget(room),
			Reason:    models.ReasonRetry,
			DecidedAt: now,
		})
		count++
	}
	if count > 0 {
		s.log.Infow("retrying unresponsive valves", "count", count)
	}
	return count, nil
}

// desiredTarget is the setpoint the room should currently hold: the
// forced value when the operator pinned one, otherwise the evaluator's
// output for the room's present state.
func (s *ControlService) desiredTarget(room models.Room) float64 {
	if room.Config.Forced {
		return room.Config.ForcedTempC
	}
	var bp *models.Booking
	if b, ok := s.bookings.BookingFor(room.ID); ok {
		bp = &b
	}
	return heating.Evaluate(room.Config, bp, s.reg.RoomState(room.ID)).TargetC
}

func (s *ControlService) bookingRef(id models.RoomID) string {
	if b, ok := s.bookings.BookingFor(id); ok {
		return b.Reference
	}
	return ""
}

// Restore replays persisted per-room control rows into the registry, so
// operator overrides and the last known states survive a restart.
func (s *ControlService) Restore(ctx context.Context) error {
	rows, err := s.control.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load room control: %w", err)
	}
	for _, row := range rows {
		s.reg.SetRoomState(row.RoomID, row.State)
		s.reg.UpdateRoomConfig(row.RoomID, func(c *models.RoomConfig) {
			c.AutoMode = row.AutoMode
			c.Forced = row.Forced
			if row.Forced {
				c.ForcedTempC = row.TargetC
			}
		})
	}
	if len(rows) > 0 {
		s.log.Infow("restored room control", "rooms", len(rows))
	}
	return nil
}

func (s *ControlService) appendEvent(ctx context.Context, e models.RoomEvent) {
	if err := s.events.Append(ctx, e); err != nil {
		s.log.Errorw("append event", "type", e.Type, "error", err)
	}
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
