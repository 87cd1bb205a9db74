package arb

import (
	"math"
	"sort"
	"strconv"

	"github.com/lunarbet/arbscan/internal/domain/event"
)

// Leg is one book's quoted price for one side of a two-way market.
type Leg struct {
	Book    string
	Market  event.MarketKind
	Outcome event.OutcomeKind
	Price   float64
	Line    *float64
}

// Pair is a cross-book two-way arbitrage: backing both legs at the quoted
// prices guarantees profit ROI (a fraction, 0.01 = 1%) on total stake.
type Pair struct {
	Market event.MarketKind
	Line   *float64
	LegA   Leg
	LegB   Leg
	ROI    float64
}

const moneylineKey = "ML"

// FindTwoWayPairs groups legs by (market, line), picks the best price per
// opposing side, and emits every cross-book pair with positive guaranteed
// return, ordered by descending ROI.
//
// SPREAD and TOTAL legs pair only on exactly equal line values; a 1-point
// difference is a different market. A pair whose two best legs come from the
// same book is not placeable independently and is rejected.
func FindTwoWayPairs(legs []Leg) []Pair {
	type group struct {
		market  event.MarketKind
		line    *float64
		bestOne *Leg
		bestTwo *Leg
	}

	groups := make(map[string]*group)
	order := make([]string, 0)

	for i := range legs {
		leg := legs[i]
		if !usablePrice(leg.Price) {
			continue
		}

		key, ok := groupKey(leg)
		if !ok {
			continue
		}
		g, exists := groups[key]
		if !exists {
			g = &group{market: leg.Market, line: leg.Line}
			groups[key] = g
			order = append(order, key)
		}

		switch sideOf(leg) {
		case 1:
			if g.bestOne == nil || leg.Price > g.bestOne.Price {
				g.bestOne = &legs[i]
			}
		case 2:
			if g.bestTwo == nil || leg.Price > g.bestTwo.Price {
				g.bestTwo = &legs[i]
			}
		}
	}

	pairs := make([]Pair, 0, len(groups))
	for _, key := range order {
		g := groups[key]
		if g.bestOne == nil || g.bestTwo == nil {
			continue
		}
		if g.bestOne.Book == g.bestTwo.Book {
			continue
		}

		roi := ROI(g.bestOne.Price, g.bestTwo.Price)
		if roi <= 0 {
			continue
		}

		pairs = append(pairs, Pair{
			Market: g.market,
			Line:   g.line,
			LegA:   *g.bestOne,
			LegB:   *g.bestTwo,
			ROI:    roi,
		})
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].ROI != pairs[j].ROI {
			return pairs[i].ROI > pairs[j].ROI
		}
		if pairs[i].Market != pairs[j].Market {
			return pairs[i].Market < pairs[j].Market
		}
		return lineValue(pairs[i].Line) < lineValue(pairs[j].Line)
	})

	return pairs
}

// ROI returns the guaranteed profit fraction of a two-way pair, or 0 when the
// combined implied probability leaves no edge.
func ROI(a, b float64) float64 {
	if !usablePrice(a) || !usablePrice(b) {
		return 0
	}
	k := 1/a + 1/b
	if k >= 1 {
		return 0
	}
	return 1/k - 1
}

// SplitStakes allocates capital across a pair so both outcomes pay the same
// amount, capital/k. This is the unique equal-payout allocation, not a
// risk-weighted one.
func SplitStakes(capital, p1, p2 float64) (float64, float64) {
	if capital <= 0 || !usablePrice(p1) || !usablePrice(p2) {
		return 0, 0
	}
	k := 1/p1 + 1/p2
	return capital * (1 / p1) / k, capital * (1 / p2) / k
}

func usablePrice(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p > 1.0
}

func groupKey(leg Leg) (string, bool) {
	if leg.Market == event.MarketMoneyline {
		return string(leg.Market) + "|" + moneylineKey, true
	}
	if leg.Line == nil || math.IsNaN(*leg.Line) || math.IsInf(*leg.Line, 0) {
		return "", false
	}
	return string(leg.Market) + "|" + strconv.FormatFloat(*leg.Line, 'f', -1, 64), true
}

// sideOf maps an outcome onto its slot in a two-way pair: 1 for A/OVER,
// 2 for B/UNDER, 0 for anything unpairable.
func sideOf(leg Leg) int {
	switch leg.Market {
	case event.MarketTotal:
		switch leg.Outcome {
		case event.OutcomeOver:
			return 1
		case event.OutcomeUnder:
			return 2
		}
	case event.MarketMoneyline, event.MarketSpread:
		switch leg.Outcome {
		case event.OutcomeA:
			return 1
		case event.OutcomeB:
			return 2
		}
	}
	return 0
}

func lineValue(line *float64) float64 {
	if line == nil {
		return 0
	}
	return *line
}
