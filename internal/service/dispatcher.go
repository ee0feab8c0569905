package service

import (
	"context"
	"math"
	"sync"
	"time"

	"roomheat/internal/logger"
	"roomheat/internal/models"
	"roomheat/internal/mqtt"
	"roomheat/internal/registry"
	"roomheat/internal/repository"
)

// ackTolerance is the slack when matching a reported setpoint against the
// pending command. TRV firmware reports in half-degree steps.
const ackTolerance = 0.01

// AttemptSink receives per-attempt delivery outcomes. Implemented by the
// health service; the dispatcher never classifies health itself.
type AttemptSink interface {
	NoteAttempt(id models.ValveID, attempt int, at time.Time)
	NoteAck(id models.ValveID, at time.Time, rtt time.Duration)
	NoteTimeout(id models.ValveID, at time.Time)
	NoteExhausted(id models.ValveID, at time.Time)
}

// DispatcherConfig tunes the retry chain. Zero fields take the defaults
// below; the backoff table is followed by FlatBackoff for the remaining
// attempts.
type DispatcherConfig struct {
	MaxAttempts int
	AckWindow   time.Duration
	Backoff     []time.Duration
	FlatBackoff time.Duration
}

func defaultBackoff() []time.Duration {
	return []time.Duration{
		30 * time.Second,
		60 * time.Second,
		120 * time.Second,
		300 * time.Second,
		600 * time.Second,
	}
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 10
	}
	if c.AckWindow == 0 {
		c.AckWindow = 60 * time.Second
	}
	if len(c.Backoff) == 0 {
		c.Backoff = defaultBackoff()
	}
	if c.FlatBackoff == 0 {
		c.FlatBackoff = 30 * time.Minute
	}
	return c
}

// backoffAfter returns the wait between attempt n (1-based) and n+1.
func (c DispatcherConfig) backoffAfter(attempt int) time.Duration {
	if attempt-1 < len(c.Backoff) {
		return c.Backoff[attempt-1]
	}
	return c.FlatBackoff
}

// sendOffsets returns each attempt's send time as an offset from the
// first send.
func (c DispatcherConfig) sendOffsets() []time.Duration {
	out := make([]time.Duration, 0, c.MaxAttempts)
	var t time.Duration
	for i := 1; i <= c.MaxAttempts; i++ {
		out = append(out, t)
		t += c.backoffAfter(i)
	}
	return out
}

type dispatchRequest struct {
	cmd   models.Command
	delay time.Duration
}

type ackSignal struct {
	setpointC float64
	at        time.Time
}

type valveActor struct {
	id   models.ValveID
	cmds chan dispatchRequest
	acks chan ackSignal
}

// Dispatcher owns all outbound valve traffic. Each valve gets one actor
// goroutine, so per-valve command state never needs a lock; a new command
// for a valve supersedes its pending chain without counting as a failure.
type Dispatcher struct {
	cfg    DispatcherConfig
	pub    mqtt.ClientAPI
	reg    *registry.Registry
	events repository.EventRepo
	sink   AttemptSink
	log    *logger.Logger
	nowFn  func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	actors  map[models.ValveID]*valveActor
	pending map[models.ValveID]models.CommandAttempt
}

func NewDispatcher(cfg DispatcherConfig, pub mqtt.ClientAPI, reg *registry.Registry,
	events repository.EventRepo, sink AttemptSink, log *logger.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		cfg:     cfg.withDefaults(),
		pub:     pub,
		reg:     reg,
		events:  events,
		sink:    sink,
		log:     log,
		nowFn:   time.Now,
		ctx:     ctx,
		cancel:  cancel,
		actors:  make(map[models.ValveID]*valveActor),
		pending: make(map[models.ValveID]models.CommandAttempt),
	}
}

// Dispatch starts (or supersedes) a command chain for the valve.
func (d *Dispatcher) Dispatch(cmd models.Command) {
	d.DispatchAfter(cmd, 0)
}

// DispatchAfter delays the first send, used to stagger room fan-outs so a
// burst of commands doesn't flood the radio network.
func (d *Dispatcher) DispatchAfter(cmd models.Command, delay time.Duration) {
	a := d.actor(cmd.Valve)
	select {
	case a.cmds <- dispatchRequest{cmd: cmd, delay: delay}:
	case <-d.ctx.Done():
	}
}

// HandleAck feeds an inbound setpoint report to the valve's actor. Reports
// that don't match a pending command are ignored there.
func (d *Dispatcher) HandleAck(id models.ValveID, setpointC float64, at time.Time) {
	d.mu.Lock()
	a, ok := d.actors[id]
	d.mu.Unlock()
	if !ok {
		return
	}
	select {
	case a.acks <- ackSignal{setpointC: setpointC, at: at}:
	default:
		// actor is busy and the buffer is full; the next report re-acks
	}
}

// Pending returns the display copy of the valve's latest attempt.
func (d *Dispatcher) Pending(id models.ValveID) (models.CommandAttempt, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	att, ok := d.pending[id]
	return att, ok
}

// Shutdown stops all actors. In-flight chains are abandoned as-is; they
// are not failures, the next evaluation after restart re-issues commands.
func (d *Dispatcher) Shutdown() {
	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) actor(id models.ValveID) *valveActor {
	d.mu.Lock()
	defer d.mu.Unlock()
	if a, ok := d.actors[id]; ok {
		return a
	}
	a := &valveActor{
		id:   id,
		cmds: make(chan dispatchRequest, 4),
		acks: make(chan ackSignal, 4),
	}
	d.actors[id] = a
	d.wg.Add(1)
	go d.runActor(a)
	return a
}

type ackWindow struct {
	attempt   int
	expiresAt time.Time
}

func (d *Dispatcher) runActor(a *valveActor) {
	defer d.wg.Done()

	var (
		chain      *models.Command
		attempt    int
		nextSend   time.Time
		windows    []ackWindow
		lastSentAt time.Time
	)

	timer := time.NewTimer(time.Hour)
	stopTimer := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}
	defer stopTimer()

	rearm := func() {
		stopTimer()
		earliest := nextSend
		if len(windows) > 0 && (earliest.IsZero() || windows[0].expiresAt.Before(earliest)) {
			earliest = windows[0].expiresAt
		}
		if earliest.IsZero() {
			return
		}
		wait := earliest.Sub(d.nowFn())
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}

	clearChain := func() {
		chain = nil
		attempt = 0
		nextSend = time.Time{}
		windows = windows[:0]
	}

	for {
		select {
		case <-d.ctx.Done():
			return

		case req := <-a.cmds:
			if chain != nil {
				d.log.Debugw("superseding pending command",
					"valve", a.id.String(), "old_target", chain.TargetC, "new_target", req.cmd.TargetC)
			}
			c := req.cmd
			clearChain()
			chain = &c
			nextSend = d.nowFn().Add(req.delay)
			rearm()

		case sig := <-a.acks:
			if chain == nil || attempt == 0 {
				continue
			}
			if math.Abs(sig.setpointC-chain.TargetC) > ackTolerance {
				continue
			}
			d.reg.RecordAck(a.id, sig.at)
			d.sink.NoteAck(a.id, sig.at, sig.at.Sub(lastSentAt))
			metricCommandsAcked.WithLabelValues(string(a.id.Room)).Inc()
			d.setPending(a.id, models.CommandAttempt{
				Command: *chain,
				Attempt: attempt,
				SentAt:  lastSentAt,
				Outcome: models.OutcomeAcknowledged,
			})
			d.appendEvent(models.RoomEvent{
				RoomID:      a.id.Room,
				Type:        models.EventCommandAck,
				Description: "valve " + a.id.String() + " confirmed setpoint",
				Metadata: map[string]any{
					"location": a.id.Location,
					"target_c": chain.TargetC,
					"attempts": attempt,
				},
			})
			d.log.Infow("command acknowledged",
				"valve", a.id.String(), "target_c", chain.TargetC, "attempts", attempt)
			clearChain()
			rearm()

		case <-timer.C:
			now := d.nowFn()

			for len(windows) > 0 && !now.Before(windows[0].expiresAt) {
				w := windows[0]
				windows = windows[1:]
				d.sink.NoteTimeout(a.id, now)
				metricCommandsTimedOut.WithLabelValues(string(a.id.Room)).Inc()
				d.log.Warnw("command attempt timed out",
					"valve", a.id.String(), "attempt", w.attempt, "max_attempts", d.cfg.MaxAttempts)
				if chain != nil && w.attempt >= d.cfg.MaxAttempts {
					d.sink.NoteExhausted(a.id, now)
					d.setPending(a.id, models.CommandAttempt{
						Command: *chain,
						Attempt: w.attempt,
						SentAt:  lastSentAt,
						Outcome: models.OutcomeExhausted,
					})
					d.appendEvent(models.RoomEvent{
						RoomID:      a.id.Room,
						Type:        models.EventCommandTimeout,
						Description: "valve " + a.id.String() + " never confirmed setpoint",
						Metadata: map[string]any{
							"location": a.id.Location,
							"target_c": chain.TargetC,
							"attempts": w.attempt,
						},
					})
					clearChain()
				}
			}

			if chain != nil && !nextSend.IsZero() && !now.Before(nextSend) {
				if d.guestHolds(*chain) {
					d.log.Infow("guest adjustment holds, dropping command",
						"valve", a.id.String(), "target_c", chain.TargetC)
					d.setPendingDropped(a.id)
					clearChain()
				} else {
					attempt++
					d.send(a.id, *chain, attempt, now)
					lastSentAt = now
					windows = append(windows, ackWindow{attempt: attempt, expiresAt: now.Add(d.cfg.AckWindow)})
					if attempt < d.cfg.MaxAttempts {
						nextSend = now.Add(d.cfg.backoffAfter(attempt))
					} else {
						nextSend = time.Time{}
					}
					d.setPending(a.id, models.CommandAttempt{
						Command:     *chain,
						Attempt:     attempt,
						SentAt:      now,
						NextRetryAt: nextSend,
						Outcome:     models.OutcomePending,
					})
				}
			}
			rearm()
		}
	}
}

// guestHolds reports whether an automation command must yield to a guest
// adjustment: the room is occupied and a guest touched the valve after the
// automation made its decision. Operator force and sync always go through.
func (d *Dispatcher) guestHolds(cmd models.Command) bool {
	if cmd.Reason == models.ReasonForce || cmd.Reason == models.ReasonSync {
		return false
	}
	if d.reg.RoomState(cmd.Valve.Room) != models.StateOccupied {
		return false
	}
	return d.reg.GuestAdjustedAfter(cmd.Valve, cmd.DecidedAt)
}

func (d *Dispatcher) send(id models.ValveID, cmd models.Command, attempt int, now time.Time) {
	topic := mqtt.CommandTopic(id)
	if err := d.pub.Publish(topic, mqtt.EncodeSetpoint(cmd.TargetC)); err != nil {
		d.log.Warnw("publish failed", "valve", id.String(), "topic", topic, "error", err)
	}
	d.sink.NoteAttempt(id, attempt, now)
	metricCommandsSent.WithLabelValues(string(id.Room)).Inc()

	if attempt == 1 {
		d.appendEvent(models.RoomEvent{
			RoomID:      id.Room,
			Type:        models.EventCommandSent,
			Description: "setpoint command sent to valve " + id.String(),
			Metadata: map[string]any{
				"location": id.Location,
				"target_c": cmd.TargetC,
				"reason":   cmd.Reason,
			},
		})
		d.log.Infow("command sent",
			"valve", id.String(), "target_c", cmd.TargetC, "reason", cmd.Reason)
	} else {
		d.log.Debugw("command retry sent",
			"valve", id.String(), "target_c", cmd.TargetC, "attempt", attempt)
	}
}

func (d *Dispatcher) setPending(id models.ValveID, att models.CommandAttempt) {
	d.mu.Lock()
	d.pending[id] = att
	d.mu.Unlock()
}

func (d *Dispatcher) setPendingDropped(id models.ValveID) {
	d.mu.Lock()
	delete(d.pending, id)
	d.mu.Unlock()
}

func (d *Dispatcher) appendEvent(e models.RoomEvent) {
	if err := d.events.Append(context.Background(), e); err != nil {
		d.log.Errorw("append event", "type", e.Type, "error", err)
	}
}
