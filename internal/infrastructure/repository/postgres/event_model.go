package postgres

import (
	"database/sql"
	"time"

	"github.com/lunarbet/arbscan/internal/domain/event"
)

type eventTableModel struct {
	ID        int64     `db:"id"`
	Sport     string    `db:"sport"`
	League    string    `db:"league"`
	TeamA     string    `db:"team_a"`
	TeamB     string    `db:"team_b"`
	StartsAt  time.Time `db:"starts_at"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type eventInsertModel struct {
	Sport    string    `db:"sport"`
	League   string    `db:"league"`
	TeamA    string    `db:"team_a"`
	TeamB    string    `db:"team_b"`
	StartsAt time.Time `db:"starts_at"`
}

type oddsTableModel struct {
	ID                int64           `db:"id"`
	EventID           int64           `db:"event_id"`
	Market            string          `db:"market"`
	Book              string          `db:"book"`
	Outcome           string          `db:"outcome"`
	Price             float64         `db:"price"`
	Line              sql.NullFloat64 `db:"line"`
	ProviderUpdatedAt *time.Time      `db:"provider_updated_at"`
	LastSeenAt        time.Time       `db:"last_seen_at"`
}

type oddsInsertModel struct {
	EventID           int64           `db:"event_id"`
	Market            string          `db:"market"`
	Book              string          `db:"book"`
	Outcome           string          `db:"outcome"`
	Price             float64         `db:"price"`
	Line              sql.NullFloat64 `db:"line"`
	ProviderUpdatedAt *time.Time      `db:"provider_updated_at"`
	LastSeenAt        time.Time       `db:"last_seen_at"`
}

func nullFloat(value *float64) sql.NullFloat64 {
	if value == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *value, Valid: true}
}

func floatPtr(value sql.NullFloat64) *float64 {
	if !value.Valid {
		return nil
	}
	v := value.Float64
	return &v
}

func mapOddsRowToLine(row oddsTableModel) event.Line {
	return event.Line{
		Book:              row.Book,
		Market:            event.MarketKind(row.Market),
		Outcome:           event.OutcomeKind(row.Outcome),
		Price:             row.Price,
		Line:              floatPtr(row.Line),
		ProviderUpdatedAt: row.ProviderUpdatedAt,
		LastSeenAt:        row.LastSeenAt,
	}
}
