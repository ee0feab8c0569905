package service

import (
	"context"
	"sync"
	"time"

	"roomheat/internal/logger"
	"roomheat/internal/models"
	"roomheat/internal/registry"
	"roomheat/internal/repository"
)

// Classification thresholds. Consecutive failures count un-acked attempt
// windows since the last ack; the retry window counts retries (attempt > 1)
// over the trailing 24 hours.
const (
	unresponsiveFailures = 10
	poorFailures         = 5
	degradedFailures     = 3
	poorRetries24h       = 10
	degradedRetries24h   = 5

	retryWindow = 24 * time.Hour
)

// HealthTuning carries the sweep knobs out of the config layer.
type HealthTuning struct {
	SilenceThreshold  time.Duration
	AutoRetry         bool
	AutoRetryInterval time.Duration
}

// RetryFunc re-dispatches commands to unresponsive valves. Wired to the
// controller after construction.
type RetryFunc func(ctx context.Context) (int, error)

type valveTrack struct {
	state               models.HealthState
	consecutiveFailures int
	retryTimes          []time.Time
	lastAckAt           time.Time
	lastAttemptAt       time.Time
	pendingSince        time.Time
	avgResponse         time.Duration
}

// HealthService classifies every valve from the dispatcher's outcome
// stream plus a periodic sweep for valves gone silent mid-chain. It is the
// dispatcher's AttemptSink.
type HealthService struct {
	reg    *registry.Registry
	repo   repository.HealthRepo
	events repository.EventRepo
	log    *logger.Logger
	tuning HealthTuning
	nowFn  func() time.Time

	mu            sync.Mutex
	track         map[models.ValveID]*valveTrack
	retry         RetryFunc
	lastAutoRetry time.Time
}

func NewHealthService(reg *registry.Registry, repo repository.HealthRepo,
	events repository.EventRepo, tuning HealthTuning, log *logger.Logger) *HealthService {
	if tuning.SilenceThreshold == 0 {
		tuning.SilenceThreshold = 30 * time.Minute
	}
	return &HealthService{
		reg:    reg,
		repo:   repo,
		events: events,
		log:    log,
		tuning: tuning,
		nowFn:  time.Now,
		track:  make(map[models.ValveID]*valveTrack),
	}
}

var _ AttemptSink = (*HealthService)(nil)

// SetRetry wires the controller's unresponsive-valve redispatch in after
// both services exist.
func (s *HealthService) SetRetry(fn RetryFunc) {
	s.mu.Lock()
	s.retry = fn
	s.mu.Unlock()
}

func (s *HealthService) entry(id models.ValveID) *valveTrack {
	t, ok := s.track[id]
	if !ok {
		t = &valveTrack{state: models.HealthHealthy}
		s.track[id] = t
		s.reg.SetHealth(id, models.HealthHealthy)
	}
	return t
}

// NoteAttempt records one send. Retries (attempt > 1) enter the rolling
// 24h window; the first attempt of a chain opens the pending clock.
func (s *HealthService) NoteAttempt(id models.ValveID, attempt int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.entry(id)
	t.lastAttemptAt = at
	if t.pendingSince.IsZero() {
		t.pendingSince = at
	}
	if attempt > 1 {
		t.retryTimes = append(t.retryTimes, at)
	}
	s.reclassify(id, t, at)
}

// NoteAck closes the pending clock and resets the consecutive counter.
func (s *HealthService) NoteAck(id models.ValveID, at time.Time, rtt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.entry(id)
	t.consecutiveFailures = 0
	t.pendingSince = time.Time{}
	t.lastAckAt = at
	if rtt > 0 {
		if t.avgResponse == 0 {
			t.avgResponse = rtt
		} else {
			t.avgResponse = (t.avgResponse + rtt) / 2
		}
	}
	s.reclassify(id, t, at)
}

// NoteTimeout records one attempt window expiring without an ack.
func (s *HealthService) NoteTimeout(id models.ValveID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.entry(id)
	t.consecutiveFailures++
	s.reclassify(id, t, at)
}

// NoteExhausted records a chain giving up; nothing is pending afterwards.
func (s *HealthService) NoteExhausted(id models.ValveID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.entry(id)
	t.pendingSince = time.Time{}
	s.reclassify(id, t, at)
}

// classify applies the threshold ladder, worst class first. lastSeen is
// any report on any topic; a chatty valve that won't ack is failing, not
// silent, and the consecutive counter covers it.
func classify(t *valveTrack, lastSeen, now time.Time, silence time.Duration) models.HealthState {
	retries := countSince(t.retryTimes, now.Add(-retryWindow))
	switch {
	case t.consecutiveFailures >= unresponsiveFailures:
		return models.HealthUnresponsive
	case !t.pendingSince.IsZero() && now.Sub(t.pendingSince) >= silence && !lastSeen.After(t.pendingSince):
		return models.HealthUnresponsive
	case t.consecutiveFailures >= poorFailures || retries >= poorRetries24h:
		return models.HealthPoor
	case t.consecutiveFailures >= degradedFailures || retries >= degradedRetries24h:
		return models.HealthDegraded
	default:
		return models.HealthHealthy
	}
}

func countSince(ts []time.Time, cutoff time.Time) int {
	n := 0
	for _, t := range ts {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

// reclassify is called with the lock held after every counter change.
func (s *HealthService) reclassify(id models.ValveID, t *valveTrack, now time.Time) {
	var lastSeen time.Time
	if v, ok := s.reg.Valve(id); ok {
		lastSeen = v.LastSeen
	}

	next := classify(t, lastSeen, now, s.tuning.SilenceThreshold)
	if next == t.state {
		s.persist(id, t, now)
		return
	}

	prev := t.state
	t.state = next
	s.reg.SetHealth(id, next)
	metricValveHealth.WithLabelValues(string(id.Room), string(id.Location)).Set(healthGaugeValue(next))
	s.log.Infow("valve health changed",
		"valve", id.String(), "from", prev, "to", next,
		"consecutive_failures", t.consecutiveFailures)

	switch {
	case next == models.HealthUnresponsive:
		s.appendEvent(models.RoomEvent{
			RoomID:      id.Room,
			Type:        models.EventValveUnresponsive,
			Description: "valve " + id.String() + " is unresponsive",
			Metadata: map[string]any{
				"location":             id.Location,
				"consecutive_failures": t.consecutiveFailures,
			},
		})
	case prev == models.HealthUnresponsive:
		s.appendEvent(models.RoomEvent{
			RoomID:      id.Room,
			Type:        models.EventValveRecovered,
			Description: "valve " + id.String() + " recovered",
			Metadata:    map[string]any{"location": id.Location, "now": next},
		})
	}
	s.persist(id, t, now)
}

func (s *HealthService) persist(id models.ValveID, t *valveTrack, now time.Time) {
	h := models.ValveHealth{
		Valve:               id,
		State:               t.state,
		ConsecutiveFailures: t.consecutiveFailures,
		RetriesLast24h:      countSince(t.retryTimes, now.Add(-retryWindow)),
		LastAckAt:           t.lastAckAt,
		LastAttemptAt:       t.lastAttemptAt,
		PendingSince:        t.pendingSince,
		AvgResponse:         t.avgResponse,
		UpdatedAt:           now,
	}
	if err := s.repo.Save(context.Background(), h); err != nil {
		s.log.Errorw("persist valve health", "valve", id.String(), "error", err)
	}
}

func (s *HealthService) appendEvent(e models.RoomEvent) {
	if err := s.events.Append(context.Background(), e); err != nil {
		s.log.Errorw("append event", "type", e.Type, "error", err)
	}
}

// Run sweeps periodically: prunes retry windows, re-applies the silence
// rule, and kicks the auto-retry for unresponsive valves when enabled.
func (s *HealthService) Run(ctx context.Context, sweep time.Duration) {
	t := time.NewTicker(sweep)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.sweep(ctx)
		}
	}
}

func (s *HealthService) sweep(ctx context.Context) {
	now := s.nowFn()

	s.mu.Lock()
	unresponsive := 0
	for id, t := range s.track {
		t.retryTimes = pruneBefore(t.retryTimes, now.Add(-retryWindow))
		s.reclassify(id, t, now)
		if t.state == models.HealthUnresponsive {
			unresponsive++
		}
	}
	retry := s.retry
	due := s.tuning.AutoRetry && s.tuning.AutoRetryInterval > 0 &&
		unresponsive > 0 && now.Sub(s.lastAutoRetry) >= s.tuning.AutoRetryInterval
	if due {
		s.lastAutoRetry = now
	}
	s.mu.Unlock()

	if due && retry != nil {
		n, err := retry(ctx)
		if err != nil {
			s.log.Errorw("auto-retry unresponsive valves", "error", err)
			return
		}
		s.log.Infow("auto-retry kicked", "valves", n)
	}
}

func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	out := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

// Summary counts valves per class from the registry's display copies.
func (s *HealthService) Summary() models.HealthSummary {
	var sum models.HealthSummary
	for _, v := range s.reg.AllValves() {
		switch v.Health {
		case models.HealthDegraded:
			sum.Degraded++
		case models.HealthPoor:
			sum.Poor++
		case models.HealthUnresponsive:
			sum.Unresponsive++
		default:
			sum.Healthy++
		}
		sum.Total++
	}
	return sum
}

// Restore seeds the tracker from persisted rows so a restart doesn't
// forget which valves were failing. The 24h retry window restarts empty;
// only its persisted count survives as history.
func (s *HealthService) Restore(ctx context.Context) error {
	rows, err := s.repo.LoadAll(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range rows {
		s.reg.EnsureValve(h.Valve)
		s.track[h.Valve] = &valveTrack{
			state:               h.State,
			consecutiveFailures: h.ConsecutiveFailures,
			lastAckAt:           h.LastAckAt,
			lastAttemptAt:       h.LastAttemptAt,
			avgResponse:         h.AvgResponse,
		}
		s.reg.SetHealth(h.Valve, h.State)
	}
	if len(rows) > 0 {
		s.log.Infow("restored valve health", "valves", len(rows))
	}
	return nil
}
