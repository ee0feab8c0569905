package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"roomheat/internal/logger"
	"roomheat/internal/models"
	"roomheat/internal/registry"
	"roomheat/internal/repository"
)

// BookingProvider is the slice of the PMS client the refresh loop needs.
type BookingProvider interface {
	Sites(ctx context.Context) ([]models.Site, error)
	Bookings(ctx context.Context, from, to time.Time) ([]models.Booking, error)
}

// RefreshResult summarizes one successful provider refresh.
type RefreshResult struct {
	Rooms     int       `json:"rooms"`
	Bookings  int       `json:"bookings"`
	FetchedAt time.Time `json:"fetched_at"`
}

// BookingService polls the provider and keeps the current snapshot. A
// failed refresh keeps the previous snapshot; heating decisions prefer
// stale data over none.
type BookingService struct {
	provider    BookingProvider
	repo        repository.BookingRepo
	events      repository.EventRepo
	reg         *registry.Registry
	log         *logger.Logger
	horizonDays int
	nowFn       func() time.Time

	mu   sync.RWMutex
	snap models.Snapshot
}

func NewBookingService(provider BookingProvider, repo repository.BookingRepo,
	events repository.EventRepo, reg *registry.Registry, horizonDays int, log *logger.Logger) *BookingService {
	if horizonDays <= 0 {
		horizonDays = 7
	}
	return &BookingService{
		provider:    provider,
		repo:        repo,
		events:      events,
		reg:         reg,
		log:         log,
		horizonDays: horizonDays,
		nowFn:       time.Now,
	}
}

// Run refreshes immediately and then on every interval tick. Refresh
// errors are logged and the loop keeps going with the previous snapshot.
func (s *BookingService) Run(ctx context.Context, interval time.Duration) {
	if _, err := s.Refresh(ctx); err != nil {
		s.log.Warnw("initial booking refresh failed", "error", err)
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.Refresh(ctx); err != nil {
				s.log.Warnw("booking refresh failed, keeping previous snapshot",
					"error", err, "snapshot_age", s.nowFn().Sub(s.Current().FetchedAt).Round(time.Second))
			}
		}
	}
}

// Refresh pulls the room catalog and the staying-window bookings, reduces
// them to one booking per room, and swaps the snapshot.
func (s *BookingService) Refresh(ctx context.Context) (RefreshResult, error) {
	now := s.nowFn()

	sites, err := s.provider.Sites(ctx)
	if err != nil {
		metricRefreshFailures.Inc()
		return RefreshResult{}, fmt.Errorf("refresh room catalog: %w", err)
	}
	for _, site := range sites {
		if s.reg.UpsertRoom(site) {
			s.log.Infow("room discovered", "room", site.ID, "name", site.Name)
		}
	}

	from, to := s.window(now)
	all, err := s.provider.Bookings(ctx, from, to)
	if err != nil {
		metricRefreshFailures.Inc()
		return RefreshResult{}, fmt.Errorf("refresh bookings: %w", err)
	}

	snap := models.Snapshot{
		Bookings:  selectPerRoom(all, now),
		FetchedAt: now.UTC(),
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	if err := s.repo.Replace(ctx, snap); err != nil {
		s.log.Errorw("persist booking snapshot", "error", err)
	}
	metricRefreshes.Inc()
	s.appendEvent(ctx, models.RoomEvent{
		Type:        models.EventBookingRefresh,
		Description: fmt.Sprintf("refreshed %d bookings across %d rooms", len(snap.Bookings), len(sites)),
		Metadata:    map[string]any{"rooms": len(sites), "bookings": len(snap.Bookings)},
	})
	s.log.Infow("bookings refreshed", "rooms", len(sites), "bookings", len(snap.Bookings))

	return RefreshResult{Rooms: len(sites), Bookings: len(snap.Bookings), FetchedAt: snap.FetchedAt}, nil
}

// window spans yesterday 00:00:00 through the horizon day 23:59:59, so
// overnight departures and late checkouts stay visible.
func (s *BookingService) window(now time.Time) (time.Time, time.Time) {
	y := now.AddDate(0, 0, -1)
	from := time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, now.Location())
	h := now.AddDate(0, 0, s.horizonDays)
	to := time.Date(h.Year(), h.Month(), h.Day(), 23, 59, 59, 0, now.Location())
	return from, to
}

// selectPerRoom reduces the provider's list to the booking that should
// drive each room: an arrived guest beats everything, an upcoming stay
// (earliest arrival first) beats a finished one, and a departed booking is
// kept last so cool-down still has its departure times.
func selectPerRoom(all []models.Booking, now time.Time) map[models.RoomID]models.Booking {
	out := make(map[models.RoomID]models.Booking, len(all))
	for _, b := range all {
		if b.RoomID == "" || b.Expired(now) {
			continue
		}
		cur, ok := out[b.RoomID]
		if !ok || bookingBeats(b, cur) {
			out[b.RoomID] = b
		}
	}
	return out
}

func bookingRank(b models.Booking) int {
	switch b.Status {
	case models.StatusArrived:
		return 0
	case models.StatusConfirmed, models.StatusUnconfirmed:
		return 1
	case models.StatusDeparted:
		return 2
	default:
		return 3
	}
}

func bookingBeats(a, b models.Booking) bool {
	ra, rb := bookingRank(a), bookingRank(b)
	if ra != rb {
		return ra < rb
	}
	switch ra {
	case 2:
		// between departed stays, the later departure drives cool-down
		return effectiveDepartureKey(a).After(effectiveDepartureKey(b))
	default:
		return effectiveArrivalKey(a).Before(effectiveArrivalKey(b))
	}
}

func effectiveArrivalKey(b models.Booking) time.Time {
	if b.Arrival != nil {
		return *b.Arrival
	}
	return b.ArrivalDate
}

func effectiveDepartureKey(b models.Booking) time.Time {
	if b.Departure != nil {
		return *b.Departure
	}
	return b.DepartureDate
}

// Current returns the snapshot with a copied booking map.
func (s *BookingService) Current() models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := models.Snapshot{
		FetchedAt: s.snap.FetchedAt,
		Bookings:  make(map[models.RoomID]models.Booking, len(s.snap.Bookings)),
	}
	for k, v := range s.snap.Bookings {
		cp.Bookings[k] = v
	}
	return cp
}

// BookingFor returns the room's current booking, if any.
func (s *BookingService) BookingFor(room models.RoomID) (models.Booking, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.snap.Bookings[room]
	return b, ok
}

// Restore loads the persisted snapshot so heating keeps working from
// stale data until the first refresh lands.
func (s *BookingService) Restore(ctx context.Context) error {
	snap, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load persisted bookings: %w", err)
	}
	if snap.FetchedAt.IsZero() {
		return nil
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	s.log.Infow("restored booking snapshot",
		"bookings", len(snap.Bookings), "age", s.nowFn().Sub(snap.FetchedAt).Round(time.Second))
	return nil
}

func (s *BookingService) appendEvent(ctx context.Context, e models.RoomEvent) {
	if err := s.events.Append(ctx, e); err != nil {
		s.log.Errorw("append event", "type", e.Type, "error", err)
	}
}
