package cache

import (
	"context"

	"github.com/lunarbet/arbscan/internal/domain/event"
	basecache "github.com/lunarbet/arbscan/internal/platform/cache"
)

const bookmakersCacheKey = "odds:bookmakers"

// EventRepository decorates an event.Repository with read-through caching for
// the bookmaker catalog, which every opportunity query hits. Writes invalidate
// the cached catalog so a newly seen book shows up on the next read.
type EventRepository struct {
	next  event.Repository
	cache *basecache.Store
}

func NewEventRepository(next event.Repository, cache *basecache.Store) *EventRepository {
	return &EventRepository{next: next, cache: cache}
}

func (r *EventRepository) UpsertEvent(ctx context.Context, ev event.Event) (int64, error) {
	return r.next.UpsertEvent(ctx, ev)
}

func (r *EventRepository) UpsertOdds(ctx context.Context, eventID int64, lines []event.Line) (int, error) {
	written, err := r.next.UpsertOdds(ctx, eventID, lines)
	if written > 0 {
		r.cache.Delete(ctx, bookmakersCacheKey)
	}
	return written, err
}

func (r *EventRepository) ListWithOdds(ctx context.Context, filter event.ListFilter) ([]event.Event, error) {
	return r.next.ListWithOdds(ctx, filter)
}

func (r *EventRepository) ListBookmakers(ctx context.Context) ([]string, error) {
	v, err := r.cache.GetOrLoad(ctx, bookmakersCacheKey, func(ctx context.Context) (any, error) {
		books, err := r.next.ListBookmakers(ctx)
		if err != nil {
			return nil, err
		}
		return append([]string(nil), books...), nil
	})
	if err != nil {
		return nil, err
	}

	books, _ := v.([]string)
	return append([]string(nil), books...), nil
}

func (r *EventRepository) Ping(ctx context.Context) error {
	return r.next.Ping(ctx)
}
