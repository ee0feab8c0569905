package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"roomheat/internal/logger"
	"roomheat/internal/models"
	"roomheat/internal/repository"
)

// LogFilter narrows an event log listing. Zero values mean no constraint.
type LogFilter struct {
	From  time.Time
	To    time.Time
	Room  models.RoomID
	Type  string
	Limit int
}

type EventLogService struct {
	eventRepo repository.EventRepo
	log       *logger.Logger
	nowFn     func() time.Time
}

func NewEventLogService(eventRepo repository.EventRepo, log *logger.Logger) *EventLogService {
	return &EventLogService{eventRepo: eventRepo, log: log, nowFn: time.Now}
}

var _ EventLog = (*EventLogService)(nil)

var errInvalidTimeRange = errors.New("invalid time range: From must be <= To")

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// normalizeAndValidateFilter prepares query parameters and validates the
// time range.
func normalizeAndValidateFilter(f LogFilter) (models.EventQuery, error) {
	q := models.EventQuery{
		From:   normalizeToUTC(f.From),
		To:     normalizeToUTC(f.To),
		RoomID: models.RoomID(strings.TrimSpace(string(f.Room))),
		Type:   strings.TrimSpace(strings.ToUpper(f.Type)),
		Limit:  f.Limit,
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.From.After(q.To) {
		return models.EventQuery{}, errInvalidTimeRange
	}
	return q, nil
}

func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.RoomEvent, error) {
	q, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	return s.eventRepo.List(ctx, q)
}

// Prune deletes events older than the retention period.
func (s *EventLogService) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.nowFn().Add(-retention)
	n, err := s.eventRepo.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Infow("pruned old events", "deleted", n, "cutoff", cutoff.UTC().Format(time.RFC3339))
	}
	return n, nil
}
