package fingerprint

import (
	"testing"

	"github.com/lunarbet/arbscan/internal/domain/event"
)

func TestHashLines_StableForIdenticalBestPrices(t *testing.T) {
	t.Parallel()

	lines := []event.Line{
		{Book: "BookX", Market: event.MarketMoneyline, Outcome: event.OutcomeA, Price: 2.10},
		{Book: "BookY", Market: event.MarketMoneyline, Outcome: event.OutcomeB, Price: 1.85},
	}
	reordered := []event.Line{lines[1], lines[0]}

	if HashLines(lines) != HashLines(reordered) {
		t.Fatalf("hash must not depend on line order")
	}

	extraWorse := append([]event.Line{
		{Book: "BookZ", Market: event.MarketMoneyline, Outcome: event.OutcomeA, Price: 1.95},
	}, lines...)
	if HashLines(lines) != HashLines(extraWorse) {
		t.Fatalf("non-best quotes must not change the hash")
	}
}

func TestHashLines_ChangesWhenBestPriceMoves(t *testing.T) {
	t.Parallel()

	before := []event.Line{
		{Book: "BookX", Market: event.MarketMoneyline, Outcome: event.OutcomeA, Price: 2.10},
		{Book: "BookY", Market: event.MarketMoneyline, Outcome: event.OutcomeB, Price: 1.85},
	}
	after := []event.Line{
		{Book: "BookX", Market: event.MarketMoneyline, Outcome: event.OutcomeA, Price: 2.15},
		{Book: "BookY", Market: event.MarketMoneyline, Outcome: event.OutcomeB, Price: 1.85},
	}

	if HashLines(before) == HashLines(after) {
		t.Fatalf("hash must change when a best price moves")
	}
}

func TestHashLines_IgnoresNonMoneylineMarkets(t *testing.T) {
	t.Parallel()

	line := 44.5
	moneylineOnly := []event.Line{
		{Book: "BookX", Market: event.MarketMoneyline, Outcome: event.OutcomeA, Price: 2.10},
	}
	withTotals := append([]event.Line{
		{Book: "BookX", Market: event.MarketTotal, Outcome: event.OutcomeOver, Price: 2.40, Line: &line},
	}, moneylineOnly...)

	if HashLines(moneylineOnly) != HashLines(withTotals) {
		t.Fatalf("totals quotes must not influence the moneyline fingerprint")
	}
}

func TestKey_CombinesNaturalKeyAndMarket(t *testing.T) {
	t.Parallel()

	got := Key("NFL|NFL|Jets|Bills|2026-01-03T18:00:00Z", event.MarketMoneyline)
	want := "NFL|NFL|Jets|Bills|2026-01-03T18:00:00Z|MONEYLINE"
	if got != want {
		t.Fatalf("Key = %q, want %q", got, want)
	}
}
