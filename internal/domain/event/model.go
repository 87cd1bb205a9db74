package event

import (
	"math"
	"strings"
	"time"
)

// MarketKind enumerates the two-way markets the pipeline understands.
type MarketKind string

const (
	MarketMoneyline MarketKind = "MONEYLINE"
	MarketSpread    MarketKind = "SPREAD"
	MarketTotal     MarketKind = "TOTAL"
)

func (m MarketKind) Valid() bool {
	switch m {
	case MarketMoneyline, MarketSpread, MarketTotal:
		return true
	default:
		return false
	}
}

// RequiresLine reports whether a quote in this market must carry a numeric
// handicap/total value.
func (m MarketKind) RequiresLine() bool {
	return m == MarketSpread || m == MarketTotal
}

// ParseMarketKind accepts the canonical uppercase names in any casing.
func ParseMarketKind(raw string) (MarketKind, bool) {
	kind := MarketKind(strings.ToUpper(strings.TrimSpace(raw)))
	if !kind.Valid() {
		return "", false
	}
	return kind, true
}

// OutcomeKind identifies one side of a two-way market. A is the away team,
// B the home team; OVER/UNDER apply to totals only.
type OutcomeKind string

const (
	OutcomeA     OutcomeKind = "A"
	OutcomeB     OutcomeKind = "B"
	OutcomeOver  OutcomeKind = "OVER"
	OutcomeUnder OutcomeKind = "UNDER"
)

func (o OutcomeKind) Valid() bool {
	switch o {
	case OutcomeA, OutcomeB, OutcomeOver, OutcomeUnder:
		return true
	default:
		return false
	}
}

// Line is a single book's quote for one outcome of one market.
type Line struct {
	Book              string
	Market            MarketKind
	Outcome           OutcomeKind
	Price             float64
	Line              *float64
	ProviderUpdatedAt *time.Time
	LastSeenAt        time.Time
}

// Valid reports whether the quote may be stored: a finite decimal price above
// 1.0, a known market/outcome, and a numeric line for SPREAD/TOTAL.
func (l Line) Valid() bool {
	if strings.TrimSpace(l.Book) == "" {
		return false
	}
	if !l.Market.Valid() || !l.Outcome.Valid() {
		return false
	}
	if math.IsNaN(l.Price) || math.IsInf(l.Price, 0) || l.Price <= 1.0 {
		return false
	}
	if l.Market.RequiresLine() {
		if l.Line == nil || math.IsNaN(*l.Line) || math.IsInf(*l.Line, 0) {
			return false
		}
	}
	return true
}

// Event is one fixture as normalized from a provider response, identified by
// its natural key rather than any provider-assigned id.
type Event struct {
	ID       int64
	Sport    string
	League   string
	TeamA    string
	TeamB    string
	StartsAt time.Time
	Lines    []Line
}

// NaturalKey identifies the same real-world fixture across repeated fetches.
// Components are trimmed so provider whitespace drift cannot split a fixture
// into two rows.
func (e Event) NaturalKey() string {
	parts := []string{
		strings.TrimSpace(e.Sport),
		strings.TrimSpace(e.League),
		strings.TrimSpace(e.TeamA),
		strings.TrimSpace(e.TeamB),
		e.StartsAt.UTC().Format(time.RFC3339),
	}
	return strings.Join(parts, "|")
}

// Normalize trims identity fields and drops invalid lines. Returns false when
// nothing storable remains.
func (e *Event) Normalize() bool {
	e.Sport = strings.TrimSpace(e.Sport)
	e.League = strings.TrimSpace(e.League)
	e.TeamA = strings.TrimSpace(e.TeamA)
	e.TeamB = strings.TrimSpace(e.TeamB)
	if e.Sport == "" || e.TeamA == "" || e.TeamB == "" || e.StartsAt.IsZero() {
		return false
	}

	kept := e.Lines[:0]
	for _, line := range e.Lines {
		line.Book = strings.TrimSpace(line.Book)
		if !line.Valid() {
			continue
		}
		kept = append(kept, line)
	}
	e.Lines = kept

	return len(e.Lines) > 0
}
