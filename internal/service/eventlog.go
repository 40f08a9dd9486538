package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"fancontrol/internal/logger"
	"fancontrol/internal/models"
	"fancontrol/internal/repository"
)

const (
	defaultJournalBuffer    = 256
	defaultJournalRetention = 24 * time.Hour
	journalPruneEvery       = 10 * time.Minute
	journalWriteTimeout     = 2 * time.Second
)

// EventLogService owns the control journal. Record never blocks; a single
// writer goroutine (Run) moves events into the repository.
type EventLogService struct {
	eventRepo repository.EventRepo
	log       *logger.Logger
	queue     chan models.ControlEvent
	retention time.Duration
}

func NewEventLogService(eventRepo repository.EventRepo, log *logger.Logger) *EventLogService {
	if log == nil {
		log = logger.Nop()
	}
	return &EventLogService{
		eventRepo: eventRepo,
		log:       log,
		queue:     make(chan models.ControlEvent, defaultJournalBuffer),
		retention: defaultJournalRetention,
	}
}

var (
	errInvalidTimeRange = errors.New("invalid time range: From must be <= To")
)

// Record queues e for the writer. When the queue is full the event is dropped.
func (s *EventLogService) Record(e models.ControlEvent) {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	select {
	case s.queue <- e:
	default:
		s.log.Warnw("journal_queue_full", "type", e.Type)
	}
}

// Run writes queued events until ctx is canceled, then flushes what is left.
func (s *EventLogService) Run(ctx context.Context) error {
	prune := time.NewTicker(journalPruneEvery)
	defer prune.Stop()
	for {
		select {
		case <-ctx.Done():
			s.flush()
			return nil
		case e := <-s.queue:
			s.write(e)
		case now := <-prune.C:
			s.prune(now)
		}
	}
}

func (s *EventLogService) flush() {
	for {
		select {
		case e := <-s.queue:
			s.write(e)
		default:
			return
		}
	}
}

func (s *EventLogService) write(e models.ControlEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()
	if err := s.eventRepo.Append(ctx, e); err != nil {
		s.log.Errorw("journal_append_failed", "type", e.Type, "err", err)
	}
}

func (s *EventLogService) prune(now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()
	n, err := s.eventRepo.DeleteBefore(ctx, now.Add(-s.retention))
	if err != nil {
		s.log.Errorw("journal_prune_failed", "err", err)
		return
	}
	if n > 0 {
		s.log.Debugw("journal_pruned", "deleted", n)
	}
}

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// normalizeEventType trims spaces and uppercases the event type filter.
func normalizeEventType(s string) string {
	return strings.TrimSpace(strings.ToUpper(s))
}

// normalizeAndValidateFilter prepares query parameters and validates the time range.
func normalizeAndValidateFilter(f LogFilter) (time.Time, time.Time, string, error) {
	from := normalizeToUTC(f.From)
	to := normalizeToUTC(f.To)

	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, "", errInvalidTimeRange
	}

	eventType := normalizeEventType(f.Type)
	return from, to, eventType, nil
}

func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.ControlEvent, error) {
	from, to, typ, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	return s.eventRepo.List(ctx, from, to, typ)
}
