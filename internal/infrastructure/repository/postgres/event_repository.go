package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lunarbet/arbscan/internal/domain/event"
	qb "github.com/lunarbet/arbscan/internal/platform/querybuilder"
)

// oddsConflictTarget mirrors the partial-expression unique index on odds:
// NULL lines collapse onto a sentinel so at most one live quote exists per
// (event, market, book, outcome, line).
const oddsConflictTarget = `(event_id, market, book, outcome, COALESCE(line, 'NaN'::double precision))`

type EventRepository struct {
	db *sqlx.DB
}

func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) UpsertEvent(ctx context.Context, ev event.Event) (int64, error) {
	insertModel := eventInsertModel{
		Sport:    ev.Sport,
		League:   ev.League,
		TeamA:    ev.TeamA,
		TeamB:    ev.TeamB,
		StartsAt: ev.StartsAt.UTC(),
	}
	query, args, err := qb.InsertModel("events", insertModel, `ON CONFLICT (sport, league, team_a, team_b, starts_at)
DO UPDATE SET updated_at = NOW()
RETURNING id`)
	if err != nil {
		return 0, fmt.Errorf("build upsert event query: %w", err)
	}

	var id int64
	if err := r.db.GetContext(ctx, &id, query, args...); err != nil {
		return 0, fmt.Errorf("upsert event: %w", err)
	}
	return id, nil
}

func (r *EventRepository) UpsertOdds(ctx context.Context, eventID int64, lines []event.Line) (int, error) {
	written := 0
	for _, line := range lines {
		insertModel := oddsInsertModel{
			EventID:           eventID,
			Market:            string(line.Market),
			Book:              line.Book,
			Outcome:           string(line.Outcome),
			Price:             line.Price,
			Line:              nullFloat(line.Line),
			ProviderUpdatedAt: line.ProviderUpdatedAt,
			LastSeenAt:        line.LastSeenAt.UTC(),
		}
		query, args, err := qb.InsertModel("odds", insertModel, `ON CONFLICT `+oddsConflictTarget+`
DO UPDATE SET
    price = EXCLUDED.price,
    provider_updated_at = EXCLUDED.provider_updated_at,
    last_seen_at = EXCLUDED.last_seen_at`)
		if err != nil {
			return written, fmt.Errorf("build upsert odds query: %w", err)
		}
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return written, fmt.Errorf("upsert odds event_id=%d book=%s: %w", eventID, line.Book, err)
		}
		written++
	}
	return written, nil
}

func (r *EventRepository) ListWithOdds(ctx context.Context, filter event.ListFilter) ([]event.Event, error) {
	conditions := []qb.Condition{
		qb.Expr("starts_at >= ?", filter.From.UTC()),
		qb.Expr("starts_at <= ?", filter.To.UTC()),
	}
	if len(filter.Sports) > 0 {
		conditions = append(conditions, qb.In("sport", toAnySlice(filter.Sports)))
	}

	query, args, err := qb.Select("*").From("events").
		Where(conditions...).
		OrderBy("starts_at", "id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list events query: %w", err)
	}

	var eventRows []eventTableModel
	if err := r.db.SelectContext(ctx, &eventRows, query, args...); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if len(eventRows) == 0 {
		return []event.Event{}, nil
	}

	eventIDs := make([]any, 0, len(eventRows))
	for _, row := range eventRows {
		eventIDs = append(eventIDs, row.ID)
	}

	query, args, err = qb.Select("*").From("odds").
		Where(qb.In("event_id", eventIDs)).
		OrderBy("event_id", "id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list odds query: %w", err)
	}

	var oddsRows []oddsTableModel
	if err := r.db.SelectContext(ctx, &oddsRows, query, args...); err != nil {
		return nil, fmt.Errorf("list odds: %w", err)
	}

	linesByEvent := make(map[int64][]event.Line, len(eventRows))
	for _, row := range oddsRows {
		linesByEvent[row.EventID] = append(linesByEvent[row.EventID], mapOddsRowToLine(row))
	}

	out := make([]event.Event, 0, len(eventRows))
	for _, row := range eventRows {
		out = append(out, event.Event{
			ID:       row.ID,
			Sport:    row.Sport,
			League:   row.League,
			TeamA:    row.TeamA,
			TeamB:    row.TeamB,
			StartsAt: row.StartsAt,
			Lines:    linesByEvent[row.ID],
		})
	}
	return out, nil
}

func (r *EventRepository) ListBookmakers(ctx context.Context) ([]string, error) {
	query, args, err := qb.Select("DISTINCT book").From("odds").OrderBy("book").ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list bookmakers query: %w", err)
	}

	var books []string
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, fmt.Errorf("list bookmakers: %w", err)
	}
	return books, nil
}

func (r *EventRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping storage: %w", err)
	}
	return nil
}

func toAnySlice(values []string) []any {
	out := make([]any, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
