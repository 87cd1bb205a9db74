package oddsfeed

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lunarbet/arbscan/internal/domain/event"
)

const (
	marketKeyMoneyline = "h2h"
	marketKeySpread    = "spreads"
	marketKeyTotal     = "totals"
)

var titlePattern = regexp.MustCompile(`^(.*)\(([^()]+)\)\s*$`)

type rawEvent struct {
	ID           string         `json:"id"`
	SportKey     string         `json:"sport_key"`
	SportTitle   string         `json:"sport_title"`
	CommenceTime string         `json:"commence_time"`
	HomeTeam     string         `json:"home_team"`
	AwayTeam     string         `json:"away_team"`
	Bookmakers   []rawBookmaker `json:"bookmakers"`
}

type rawBookmaker struct {
	Key        string      `json:"key"`
	Title      string      `json:"title"`
	LastUpdate string      `json:"last_update"`
	Markets    []rawMarket `json:"markets"`
}

type rawMarket struct {
	Key        string       `json:"key"`
	LastUpdate string       `json:"last_update"`
	Outcomes   []rawOutcome `json:"outcomes"`
}

type rawOutcome struct {
	Name  string `json:"name"`
	Price any    `json:"price"`
	Point any    `json:"point"`
}

func providerMarketKey(kind event.MarketKind) (string, bool) {
	switch kind {
	case event.MarketMoneyline:
		return marketKeyMoneyline, true
	case event.MarketSpread:
		return marketKeySpread, true
	case event.MarketTotal:
		return marketKeyTotal, true
	default:
		return "", false
	}
}

func marketKindFromProviderKey(key string) (event.MarketKind, bool) {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case marketKeyMoneyline:
		return event.MarketMoneyline, true
	case marketKeySpread:
		return event.MarketSpread, true
	case marketKeyTotal:
		return event.MarketTotal, true
	default:
		return "", false
	}
}

// parseSportLeague splits a combined "League Name (CODE)" title into
// (sport, league). Without a parenthetical the trimmed title serves as both.
func parseSportLeague(title string) (string, string) {
	trimmed := strings.TrimSpace(title)
	match := titlePattern.FindStringSubmatch(trimmed)
	if match == nil {
		return trimmed, trimmed
	}

	league := strings.TrimSpace(match[1])
	sport := strings.TrimSpace(match[2])
	if league == "" || sport == "" {
		return trimmed, trimmed
	}
	return sport, league
}

// mapRawEvent normalizes one provider event. Malformed quotes are dropped
// line by line; an event with no storable lines is dropped whole.
func mapRawEvent(raw rawEvent) (event.Event, bool) {
	startsAt := parseProviderTime(raw.CommenceTime)
	if startsAt == nil {
		return event.Event{}, false
	}

	sport, league := parseSportLeague(raw.SportTitle)
	out := event.Event{
		Sport:    sport,
		League:   league,
		TeamA:    strings.TrimSpace(raw.AwayTeam),
		TeamB:    strings.TrimSpace(raw.HomeTeam),
		StartsAt: startsAt.UTC(),
	}

	for _, book := range raw.Bookmakers {
		bookName := strings.TrimSpace(book.Title)
		if bookName == "" {
			bookName = strings.TrimSpace(book.Key)
		}
		for _, market := range book.Markets {
			kind, ok := marketKindFromProviderKey(market.Key)
			if !ok {
				continue
			}
			updatedAt := parseProviderTime(market.LastUpdate)
			if updatedAt == nil {
				updatedAt = parseProviderTime(book.LastUpdate)
			}

			for _, outcome := range market.Outcomes {
				mapped, ok := mapRawOutcome(kind, outcome, out.TeamA, out.TeamB)
				if !ok {
					continue
				}
				mapped.Book = bookName
				mapped.ProviderUpdatedAt = updatedAt
				out.Lines = append(out.Lines, mapped)
			}
		}
	}

	if !out.Normalize() {
		return event.Event{}, false
	}
	return out, true
}

// mapRawOutcome resolves the canonical outcome per market kind: exact team
// name match for moneyline/spread, case-insensitive over/under for totals.
// Anything else (three-way draw legs included) is dropped.
func mapRawOutcome(kind event.MarketKind, raw rawOutcome, teamA, teamB string) (event.Line, bool) {
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		return event.Line{}, false
	}

	var outcome event.OutcomeKind
	switch kind {
	case event.MarketTotal:
		switch {
		case strings.EqualFold(name, "over"):
			outcome = event.OutcomeOver
		case strings.EqualFold(name, "under"):
			outcome = event.OutcomeUnder
		default:
			return event.Line{}, false
		}
	default:
		switch name {
		case teamA:
			outcome = event.OutcomeA
		case teamB:
			outcome = event.OutcomeB
		default:
			return event.Line{}, false
		}
	}

	price, ok := asFloat64(raw.Price)
	if !ok {
		return event.Line{}, false
	}

	line := event.Line{
		Market:  kind,
		Outcome: outcome,
		Price:   price,
	}
	if kind.RequiresLine() {
		point, ok := asFloat64(raw.Point)
		if !ok {
			return event.Line{}, false
		}
		line.Line = &point
	}

	return line, true
}

func parseProviderTime(value string) *time.Time {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil
	}
	return &parsed
}

// asFloat64 coerces the loosely typed numeric fields the provider emits.
func asFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
