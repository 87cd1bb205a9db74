package memory

import (
	"context"
	"testing"
	"time"

	"github.com/lunarbet/arbscan/internal/domain/event"
)

func TestEventRepository_UpsertEventIsIdempotentPerNaturalKey(t *testing.T) {
	t.Parallel()

	repo := NewEventRepository()
	ev := event.Event{
		Sport:    "NFL",
		League:   "National Football League",
		TeamA:    "New York Jets",
		TeamB:    "Buffalo Bills",
		StartsAt: time.Date(2026, 1, 3, 18, 0, 0, 0, time.UTC),
	}

	first, err := repo.UpsertEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("first upsert error: %v", err)
	}
	second, err := repo.UpsertEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("second upsert error: %v", err)
	}
	if first != second {
		t.Fatalf("same natural key produced different ids: %d vs %d", first, second)
	}
}

func TestEventRepository_UpsertOddsLastWriteWinsPerQuote(t *testing.T) {
	t.Parallel()

	repo := NewEventRepository()
	ev := event.Event{
		Sport:    "NFL",
		League:   "National Football League",
		TeamA:    "New York Jets",
		TeamB:    "Buffalo Bills",
		StartsAt: time.Now().UTC().Add(time.Hour),
	}
	id, err := repo.UpsertEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("upsert event error: %v", err)
	}

	quote := event.Line{Book: "BookX", Market: event.MarketMoneyline, Outcome: event.OutcomeA, Price: 2.10, LastSeenAt: time.Now().UTC()}
	if _, err := repo.UpsertOdds(context.Background(), id, []event.Line{quote}); err != nil {
		t.Fatalf("upsert odds error: %v", err)
	}
	quote.Price = 2.20
	if _, err := repo.UpsertOdds(context.Background(), id, []event.Line{quote}); err != nil {
		t.Fatalf("second upsert odds error: %v", err)
	}

	listed, err := repo.ListWithOdds(context.Background(), event.ListFilter{
		From: time.Now().UTC().Add(-time.Hour),
		To:   time.Now().UTC().Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(listed) != 1 || len(listed[0].Lines) != 1 {
		t.Fatalf("unexpected listing: %+v", listed)
	}
	if listed[0].Lines[0].Price != 2.20 {
		t.Fatalf("last write must win, got price %v", listed[0].Lines[0].Price)
	}

	books, err := repo.ListBookmakers(context.Background())
	if err != nil {
		t.Fatalf("list bookmakers error: %v", err)
	}
	if len(books) != 1 || books[0] != "BookX" {
		t.Fatalf("bookmakers: %v", books)
	}
}
