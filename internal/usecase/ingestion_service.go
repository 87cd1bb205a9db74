package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/lunarbet/arbscan/internal/domain/event"
	"github.com/lunarbet/arbscan/internal/platform/logging"
)

// IngestionService writes one normalized event and its quotes to storage.
// It is the single write path shared by the batch scheduler and the internal
// ingestion endpoint.
type IngestionService struct {
	events event.Repository
	logger *logging.Logger
	now    func() time.Time
}

func NewIngestionService(events event.Repository, logger *logging.Logger) *IngestionService {
	if logger == nil {
		logger = logging.Default()
	}
	return &IngestionService{
		events: events,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type IngestResult struct {
	EventID     int64 `json:"event_id"`
	OddsWritten int   `json:"odds_written"`
}

// IngestEvent normalizes, stamps lastSeenAt server-side, and upserts the
// event plus all surviving quotes.
func (s *IngestionService) IngestEvent(ctx context.Context, ev event.Event) (IngestResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.IngestionService.IngestEvent")
	defer span.End()

	if s.events == nil {
		return IngestResult{}, fmt.Errorf("%w: event repository is not configured", ErrDependencyUnavailable)
	}
	if !ev.Normalize() {
		return IngestResult{}, fmt.Errorf("%w: event has no storable lines", ErrInvalidInput)
	}

	seenAt := s.now()
	for i := range ev.Lines {
		ev.Lines[i].LastSeenAt = seenAt
	}

	eventID, err := s.events.UpsertEvent(ctx, ev)
	if err != nil {
		return IngestResult{}, fmt.Errorf("upsert event %s: %w", ev.NaturalKey(), err)
	}

	written, err := s.events.UpsertOdds(ctx, eventID, ev.Lines)
	if err != nil {
		return IngestResult{}, fmt.Errorf("upsert odds event_id=%d: %w", eventID, err)
	}

	return IngestResult{EventID: eventID, OddsWritten: written}, nil
}
