package event

import (
	"context"
	"time"
)

// ListFilter narrows ListWithOdds to a start-time horizon and an optional
// sport allow-list. Book and market filtering happen in the query service.
type ListFilter struct {
	Sports []string
	From   time.Time
	To     time.Time
}

type Repository interface {
	// UpsertEvent inserts or refreshes the fixture row identified by the
	// event's natural key and returns its storage id.
	UpsertEvent(ctx context.Context, ev Event) (int64, error)
	// UpsertOdds writes one row per line, last write wins per
	// (event, market, book, outcome, line). Returns rows written.
	UpsertOdds(ctx context.Context, eventID int64, lines []Line) (int, error)
	ListWithOdds(ctx context.Context, filter ListFilter) ([]Event, error)
	ListBookmakers(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}
