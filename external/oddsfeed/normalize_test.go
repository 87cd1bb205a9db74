package oddsfeed

import (
	"testing"

	"github.com/lunarbet/arbscan/internal/domain/event"
)

func TestParseSportLeague(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		title      string
		wantSport  string
		wantLeague string
	}{
		{name: "name with code", title: "National Football League (NFL)", wantSport: "NFL", wantLeague: "National Football League"},
		{name: "padded", title: "  English Premier League (EPL) ", wantSport: "EPL", wantLeague: "English Premier League"},
		{name: "no parenthetical", title: "MLB", wantSport: "MLB", wantLeague: "MLB"},
		{name: "empty code", title: "Odd Title ()", wantSport: "Odd Title ()", wantLeague: "Odd Title ()"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			sport, league := parseSportLeague(tc.title)
			if sport != tc.wantSport || league != tc.wantLeague {
				t.Fatalf("parseSportLeague(%q) = (%q, %q), want (%q, %q)", tc.title, sport, league, tc.wantSport, tc.wantLeague)
			}
		})
	}
}

func TestMapRawOutcome_MoneylineMatchesTeamNamesExactly(t *testing.T) {
	t.Parallel()

	line, ok := mapRawOutcome(event.MarketMoneyline, rawOutcome{Name: "New York Jets", Price: 2.10}, "New York Jets", "Buffalo Bills")
	if !ok || line.Outcome != event.OutcomeA {
		t.Fatalf("away team should map to outcome A, got %+v ok=%v", line, ok)
	}

	if _, ok := mapRawOutcome(event.MarketMoneyline, rawOutcome{Name: "Draw", Price: 3.40}, "New York Jets", "Buffalo Bills"); ok {
		t.Fatalf("draw outcome must be dropped")
	}

	if _, ok := mapRawOutcome(event.MarketMoneyline, rawOutcome{Name: "new york jets", Price: 2.10}, "New York Jets", "Buffalo Bills"); ok {
		t.Fatalf("moneyline outcome match is exact, case-different name must be dropped")
	}
}

func TestMapRawOutcome_TotalsMatchOverUnderCaseInsensitive(t *testing.T) {
	t.Parallel()

	line, ok := mapRawOutcome(event.MarketTotal, rawOutcome{Name: "OVER", Price: 1.95, Point: 44.5}, "A", "B")
	if !ok || line.Outcome != event.OutcomeOver || line.Line == nil || *line.Line != 44.5 {
		t.Fatalf("over mapping wrong: %+v ok=%v", line, ok)
	}

	if _, ok := mapRawOutcome(event.MarketTotal, rawOutcome{Name: "Under", Price: 1.95}, "A", "B"); ok {
		t.Fatalf("totals quote without a point must be dropped")
	}
}

func TestMapRawOutcome_CoercesNumericFields(t *testing.T) {
	t.Parallel()

	line, ok := mapRawOutcome(event.MarketSpread, rawOutcome{Name: "Buffalo Bills", Price: "1.91", Point: "-3.5"}, "New York Jets", "Buffalo Bills")
	if !ok {
		t.Fatalf("string-typed numbers must coerce")
	}
	if line.Price != 1.91 || line.Line == nil || *line.Line != -3.5 {
		t.Fatalf("coercion wrong: %+v", line)
	}

	if _, ok := mapRawOutcome(event.MarketSpread, rawOutcome{Name: "Buffalo Bills", Price: 1.91, Point: "pick"}, "New York Jets", "Buffalo Bills"); ok {
		t.Fatalf("non-numeric point must be dropped")
	}
}

func TestMapRawEvent_DropsEventsWithoutValidLines(t *testing.T) {
	t.Parallel()

	raw := rawEvent{
		SportTitle:   "National Football League (NFL)",
		CommenceTime: "2026-01-03T18:00:00Z",
		HomeTeam:     "Buffalo Bills",
		AwayTeam:     "New York Jets",
		Bookmakers: []rawBookmaker{{
			Key:   "bookx",
			Title: "BookX",
			Markets: []rawMarket{{
				Key: "h2h",
				Outcomes: []rawOutcome{
					{Name: "New York Jets", Price: 0.95},
				},
			}},
		}},
	}

	if _, ok := mapRawEvent(raw); ok {
		t.Fatalf("event with only invalid quotes must be dropped")
	}
}

func TestMapRawEvent_IgnoresUnknownMarketKeys(t *testing.T) {
	t.Parallel()

	raw := rawEvent{
		SportTitle:   "National Football League (NFL)",
		CommenceTime: "2026-01-03T18:00:00Z",
		HomeTeam:     "Buffalo Bills",
		AwayTeam:     "New York Jets",
		Bookmakers: []rawBookmaker{{
			Title: "BookX",
			Markets: []rawMarket{
				{Key: "outrights", Outcomes: []rawOutcome{{Name: "New York Jets", Price: 8.0}}},
				{Key: "h2h", Outcomes: []rawOutcome{{Name: "New York Jets", Price: 2.10}}},
			},
		}},
	}

	ev, ok := mapRawEvent(raw)
	if !ok {
		t.Fatalf("event with one valid h2h quote must survive")
	}
	if len(ev.Lines) != 1 || ev.Lines[0].Market != event.MarketMoneyline {
		t.Fatalf("unexpected lines: %+v", ev.Lines)
	}
}
