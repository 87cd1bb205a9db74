package arb

import (
	"math"
	"testing"

	"github.com/lunarbet/arbscan/internal/domain/event"
)

func floatPtr(v float64) *float64 { return &v }

func TestROI_PositiveOnlyBelowUnitImpliedProbability(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		a, b float64
		want float64
	}{
		{name: "symmetric edge", a: 2.10, b: 2.10, want: 0.05},
		{name: "break even", a: 2.0, b: 2.0, want: 0},
		{name: "negative edge", a: 1.80, b: 1.90, want: 0},
		{name: "invalid price", a: 0.95, b: 3.0, want: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := ROI(tc.a, tc.b)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("ROI(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
			if got < 0 {
				t.Fatalf("ROI must never be negative, got %v", got)
			}
		})
	}
}

func TestSplitStakes_EqualizesPayout(t *testing.T) {
	t.Parallel()

	const capital = 1000.0
	a, b := 2.10, 2.05

	stakeA, stakeB := SplitStakes(capital, a, b)
	if math.Abs(stakeA+stakeB-capital) > 1e-9 {
		t.Fatalf("stakes %v + %v do not sum to capital %v", stakeA, stakeB, capital)
	}
	if math.Abs(stakeA*a-stakeB*b) > 1e-9 {
		t.Fatalf("payouts differ: %v vs %v", stakeA*a, stakeB*b)
	}

	k := 1/a + 1/b
	wantProfit := capital/k - capital
	if math.Abs(stakeA*a-capital-wantProfit) > 1e-9 {
		t.Fatalf("profit %v, want %v", stakeA*a-capital, wantProfit)
	}
}

func TestFindTwoWayPairs_EmitsCrossBookMoneylineArb(t *testing.T) {
	t.Parallel()

	pairs := FindTwoWayPairs([]Leg{
		{Book: "BookX", Market: event.MarketMoneyline, Outcome: event.OutcomeA, Price: 2.10},
		{Book: "BookY", Market: event.MarketMoneyline, Outcome: event.OutcomeB, Price: 2.10},
		{Book: "BookZ", Market: event.MarketMoneyline, Outcome: event.OutcomeB, Price: 1.70},
	})

	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1", len(pairs))
	}
	pair := pairs[0]
	if pair.LegA.Book != "BookX" || pair.LegB.Book != "BookY" {
		t.Fatalf("unexpected legs: %+v", pair)
	}
	if math.Abs(pair.ROI-0.05) > 1e-9 {
		t.Fatalf("ROI = %v, want 0.05", pair.ROI)
	}
}

func TestFindTwoWayPairs_RejectsSameBookPairs(t *testing.T) {
	t.Parallel()

	pairs := FindTwoWayPairs([]Leg{
		{Book: "BookX", Market: event.MarketMoneyline, Outcome: event.OutcomeA, Price: 2.50},
		{Book: "BookX", Market: event.MarketMoneyline, Outcome: event.OutcomeB, Price: 2.50},
	})
	if len(pairs) != 0 {
		t.Fatalf("same-book pair must not be emitted, got %+v", pairs)
	}
}

func TestFindTwoWayPairs_RequiresExactLineMatch(t *testing.T) {
	t.Parallel()

	pairs := FindTwoWayPairs([]Leg{
		{Book: "BookX", Market: event.MarketSpread, Outcome: event.OutcomeA, Price: 2.20, Line: floatPtr(-3.5)},
		{Book: "BookY", Market: event.MarketSpread, Outcome: event.OutcomeB, Price: 2.20, Line: floatPtr(-4.0)},
	})
	if len(pairs) != 0 {
		t.Fatalf("mismatched lines must not pair, got %+v", pairs)
	}

	pairs = FindTwoWayPairs([]Leg{
		{Book: "BookX", Market: event.MarketSpread, Outcome: event.OutcomeA, Price: 2.20, Line: floatPtr(-3.5)},
		{Book: "BookY", Market: event.MarketSpread, Outcome: event.OutcomeB, Price: 2.20, Line: floatPtr(-3.5)},
	})
	if len(pairs) != 1 {
		t.Fatalf("equal lines should pair, got %d pairs", len(pairs))
	}
}

func TestFindTwoWayPairs_IgnoresSubUnitPrices(t *testing.T) {
	t.Parallel()

	pairs := FindTwoWayPairs([]Leg{
		{Book: "BookX", Market: event.MarketMoneyline, Outcome: event.OutcomeA, Price: 0.95},
		{Book: "BookY", Market: event.MarketMoneyline, Outcome: event.OutcomeB, Price: 2.10},
	})
	if len(pairs) != 0 {
		t.Fatalf("sub-unit price must never be selected, got %+v", pairs)
	}
}

func TestFindTwoWayPairs_SelectsBestPricePerSide(t *testing.T) {
	t.Parallel()

	pairs := FindTwoWayPairs([]Leg{
		{Book: "BookX", Market: event.MarketTotal, Outcome: event.OutcomeOver, Price: 2.00, Line: floatPtr(44.5)},
		{Book: "BookY", Market: event.MarketTotal, Outcome: event.OutcomeOver, Price: 2.15, Line: floatPtr(44.5)},
		{Book: "BookZ", Market: event.MarketTotal, Outcome: event.OutcomeUnder, Price: 2.05, Line: floatPtr(44.5)},
	})

	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1", len(pairs))
	}
	if pairs[0].LegA.Book != "BookY" || pairs[0].LegA.Price != 2.15 {
		t.Fatalf("best over leg not selected: %+v", pairs[0].LegA)
	}
	if pairs[0].LegB.Book != "BookZ" {
		t.Fatalf("best under leg not selected: %+v", pairs[0].LegB)
	}
}

func TestFindTwoWayPairs_OrdersByROIDescending(t *testing.T) {
	t.Parallel()

	pairs := FindTwoWayPairs([]Leg{
		{Book: "BookX", Market: event.MarketMoneyline, Outcome: event.OutcomeA, Price: 2.05},
		{Book: "BookY", Market: event.MarketMoneyline, Outcome: event.OutcomeB, Price: 2.05},
		{Book: "BookX", Market: event.MarketTotal, Outcome: event.OutcomeOver, Price: 2.30, Line: floatPtr(48.5)},
		{Book: "BookY", Market: event.MarketTotal, Outcome: event.OutcomeUnder, Price: 2.30, Line: floatPtr(48.5)},
	})

	if len(pairs) != 2 {
		t.Fatalf("got %d pairs, want 2", len(pairs))
	}
	if pairs[0].ROI < pairs[1].ROI {
		t.Fatalf("pairs not ordered by ROI: %v then %v", pairs[0].ROI, pairs[1].ROI)
	}
	if pairs[0].Market != event.MarketTotal {
		t.Fatalf("higher edge pair should come first, got %v", pairs[0].Market)
	}
}

func TestFindTwoWayPairs_DropsSpreadLegsWithoutLine(t *testing.T) {
	t.Parallel()

	pairs := FindTwoWayPairs([]Leg{
		{Book: "BookX", Market: event.MarketSpread, Outcome: event.OutcomeA, Price: 2.20},
		{Book: "BookY", Market: event.MarketSpread, Outcome: event.OutcomeB, Price: 2.20},
	})
	if len(pairs) != 0 {
		t.Fatalf("lineless spread legs must be ignored, got %+v", pairs)
	}
}
