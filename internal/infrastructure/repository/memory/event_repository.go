package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/lunarbet/arbscan/internal/domain/event"
)

// EventRepository is the in-memory storage used for DB-less runs and tests.
// It honors the same uniqueness semantics as the postgres implementation:
// one event per natural key, one live quote per (market, book, outcome, line).
type EventRepository struct {
	mu       sync.RWMutex
	nextID   int64
	idsByKey map[string]int64
	events   map[int64]event.Event
	odds     map[int64]map[string]event.Line
}

func NewEventRepository() *EventRepository {
	return &EventRepository{
		idsByKey: make(map[string]int64),
		events:   make(map[int64]event.Event),
		odds:     make(map[int64]map[string]event.Line),
	}
}

func (r *EventRepository) UpsertEvent(_ context.Context, ev event.Event) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := ev.NaturalKey()
	id, ok := r.idsByKey[key]
	if !ok {
		r.nextID++
		id = r.nextID
		r.idsByKey[key] = id
	}

	stored := ev
	stored.ID = id
	stored.Lines = nil
	r.events[id] = stored
	return id, nil
}

func (r *EventRepository) UpsertOdds(_ context.Context, eventID int64, lines []event.Line) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	quotes, ok := r.odds[eventID]
	if !ok {
		quotes = make(map[string]event.Line, len(lines))
		r.odds[eventID] = quotes
	}

	for _, line := range lines {
		quotes[quoteKey(line)] = line
	}
	return len(lines), nil
}

func (r *EventRepository) ListWithOdds(_ context.Context, filter event.ListFilter) ([]event.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sportAllow := make(map[string]struct{}, len(filter.Sports))
	for _, sport := range filter.Sports {
		trimmed := strings.TrimSpace(sport)
		if trimmed != "" {
			sportAllow[trimmed] = struct{}{}
		}
	}

	out := make([]event.Event, 0, len(r.events))
	for id, ev := range r.events {
		if ev.StartsAt.Before(filter.From) || ev.StartsAt.After(filter.To) {
			continue
		}
		if len(sportAllow) > 0 {
			if _, ok := sportAllow[ev.Sport]; !ok {
				continue
			}
		}

		copied := ev
		copied.Lines = make([]event.Line, 0, len(r.odds[id]))
		for _, line := range r.odds[id] {
			copied.Lines = append(copied.Lines, line)
		}
		sort.SliceStable(copied.Lines, func(i, j int) bool {
			return quoteKey(copied.Lines[i]) < quoteKey(copied.Lines[j])
		})
		out = append(out, copied)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *EventRepository) ListBookmakers(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, quotes := range r.odds {
		for _, line := range quotes {
			seen[line.Book] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for book := range seen {
		out = append(out, book)
	}
	sort.Strings(out)
	return out, nil
}

func (r *EventRepository) Ping(_ context.Context) error {
	return nil
}

func quoteKey(line event.Line) string {
	lineKey := "null"
	if line.Line != nil {
		lineKey = strconv.FormatFloat(*line.Line, 'f', -1, 64)
	}
	return strings.Join([]string{string(line.Market), line.Book, string(line.Outcome), lineKey}, "|")
}
