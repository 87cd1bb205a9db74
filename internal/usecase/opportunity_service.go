package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/lunarbet/arbscan/internal/domain/arb"
	"github.com/lunarbet/arbscan/internal/domain/event"
	"github.com/lunarbet/arbscan/internal/platform/logging"
)

type OpportunityConfig struct {
	DefaultFreshnessMinutes int
	DefaultHorizonHours     int
	DefaultLimit            int
	MaxLimit                int
	MatcherWorkers          int
}

// OpportunityService reads stored odds and runs the authoritative matcher
// over them, regardless of how ingestion chose to persist.
type OpportunityService struct {
	events event.Repository
	logger *logging.Logger
	cfg    OpportunityConfig

	now func() time.Time
}

func NewOpportunityService(events event.Repository, logger *logging.Logger, cfg OpportunityConfig) *OpportunityService {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.DefaultFreshnessMinutes <= 0 {
		cfg.DefaultFreshnessMinutes = 30
	}
	if cfg.DefaultHorizonHours <= 0 {
		cfg.DefaultHorizonHours = 72
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 50
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 200
	}
	if cfg.MatcherWorkers <= 0 {
		cfg.MatcherWorkers = 4
	}

	return &OpportunityService{
		events: events,
		logger: logger,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type OpportunityFilter struct {
	Sports           []string
	Markets          []string
	Bookmakers       []string
	MinROIPercent    float64
	FreshnessMinutes int
	HorizonHours     int
	Limit            int
	Offset           int
}

type OpportunityLeg struct {
	Book    string   `json:"book"`
	Outcome string   `json:"outcome"`
	Price   float64  `json:"price"`
	Line    *float64 `json:"line,omitempty"`
}

type RankedOpportunity struct {
	EventID    int64          `json:"event_id"`
	Sport      string         `json:"sport"`
	League     string         `json:"league"`
	StartsAt   time.Time      `json:"starts_at"`
	TeamA      string         `json:"team_a"`
	TeamB      string         `json:"team_b"`
	Market     string         `json:"market"`
	Line       *float64       `json:"line,omitempty"`
	ROIPercent float64        `json:"roi_percent"`
	LegA       OpportunityLeg `json:"leg_a"`
	LegB       OpportunityLeg `json:"leg_b"`
}

type OpportunitySummary struct {
	EventsScanned  int `json:"events_scanned"`
	LegsConsidered int `json:"legs_considered"`
	PairsFound     int `json:"pairs_found"`
	Returned       int `json:"returned"`
}

type OpportunityList struct {
	Opportunities       []RankedOpportunity `json:"opportunities"`
	Summary             OpportunitySummary  `json:"summary"`
	AvailableBookmakers []string            `json:"available_bookmakers"`
}

// Query returns ranked two-way opportunities over stored odds. Freshness and
// the book allow-list cut legs before matching, so a stale or excluded quote
// can never be selected as a best price. The ROI threshold applies after.
func (s *OpportunityService) Query(ctx context.Context, filter OpportunityFilter) (OpportunityList, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.OpportunityService.Query")
	defer span.End()

	if s.events == nil {
		return OpportunityList{}, fmt.Errorf("%w: event repository is not configured", ErrDependencyUnavailable)
	}
	if filter.MinROIPercent < 0 {
		return OpportunityList{}, fmt.Errorf("%w: min roi percent must not be negative", ErrInvalidInput)
	}
	if filter.Offset < 0 {
		return OpportunityList{}, fmt.Errorf("%w: offset must not be negative", ErrInvalidInput)
	}

	freshness := filter.FreshnessMinutes
	if freshness <= 0 {
		freshness = s.cfg.DefaultFreshnessMinutes
	}
	horizon := filter.HorizonHours
	if horizon <= 0 {
		horizon = s.cfg.DefaultHorizonHours
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}

	marketAllow, err := buildMarketAllowSet(filter.Markets)
	if err != nil {
		return OpportunityList{}, err
	}
	bookAllow := buildAllowSet(filter.Bookmakers)

	now := s.now()
	events, err := s.events.ListWithOdds(ctx, event.ListFilter{
		Sports: normalizeList(filter.Sports, nil),
		From:   now,
		To:     now.Add(time.Duration(horizon) * time.Hour),
	})
	if err != nil {
		return OpportunityList{}, fmt.Errorf("list events with odds: %w", err)
	}

	cutoff := now.Add(-time.Duration(freshness) * time.Minute)

	type matchOutput struct {
		opportunities []RankedOpportunity
		legs          int
	}

	workers := pool.NewWithResults[matchOutput]().WithMaxGoroutines(s.cfg.MatcherWorkers)
	for _, ev := range events {
		ev := ev
		workers.Go(func() matchOutput {
			legs := legsForMatching(ev, cutoff, marketAllow, bookAllow)
			out := matchOutput{legs: len(legs)}
			for _, pair := range arb.FindTwoWayPairs(legs) {
				out.opportunities = append(out.opportunities, buildRankedOpportunity(ev, pair))
			}
			return out
		})
	}

	summary := OpportunitySummary{EventsScanned: len(events)}
	ranked := make([]RankedOpportunity, 0)
	for _, out := range workers.Wait() {
		summary.LegsConsidered += out.legs
		summary.PairsFound += len(out.opportunities)
		ranked = append(ranked, out.opportunities...)
	}

	if filter.MinROIPercent > 0 {
		kept := ranked[:0]
		for _, opp := range ranked {
			if opp.ROIPercent >= filter.MinROIPercent {
				kept = append(kept, opp)
			}
		}
		ranked = kept
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].ROIPercent != ranked[j].ROIPercent {
			return ranked[i].ROIPercent > ranked[j].ROIPercent
		}
		if ranked[i].EventID != ranked[j].EventID {
			return ranked[i].EventID < ranked[j].EventID
		}
		if ranked[i].Market != ranked[j].Market {
			return ranked[i].Market < ranked[j].Market
		}
		return lineSortValue(ranked[i].Line) < lineSortValue(ranked[j].Line)
	})

	page := paginateOpportunities(ranked, filter.Offset, limit)
	summary.Returned = len(page)

	books, err := s.events.ListBookmakers(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "list bookmakers failed", "error", err)
		books = []string{}
	}

	return OpportunityList{
		Opportunities:       page,
		Summary:             summary,
		AvailableBookmakers: books,
	}, nil
}

type StakeSplit struct {
	Capital          float64 `json:"capital"`
	PriceA           float64 `json:"price_a"`
	PriceB           float64 `json:"price_b"`
	StakeA           float64 `json:"stake_a"`
	StakeB           float64 `json:"stake_b"`
	GuaranteedPayout float64 `json:"guaranteed_payout"`
	ROIPercent       float64 `json:"roi_percent"`
}

// SplitStakes computes the equal-payout allocation for a chosen pair.
func (s *OpportunityService) SplitStakes(ctx context.Context, capital, priceA, priceB float64) (StakeSplit, error) {
	_, span := startUsecaseSpan(ctx, "usecase.OpportunityService.SplitStakes")
	defer span.End()

	if capital <= 0 {
		return StakeSplit{}, fmt.Errorf("%w: capital must be greater than zero", ErrInvalidInput)
	}
	if priceA <= 1.0 || priceB <= 1.0 {
		return StakeSplit{}, fmt.Errorf("%w: decimal prices must be greater than 1.0", ErrInvalidInput)
	}

	stakeA, stakeB := arb.SplitStakes(capital, priceA, priceB)
	return StakeSplit{
		Capital:          capital,
		PriceA:           priceA,
		PriceB:           priceB,
		StakeA:           stakeA,
		StakeB:           stakeB,
		GuaranteedPayout: stakeA * priceA,
		ROIPercent:       arb.ROI(priceA, priceB) * 100,
	}, nil
}

// legsForMatching cuts an event's stored quotes down to matcher input:
// stale quotes (by server ingestion time, never provider time) and books or
// markets outside the allow-lists are removed before best-price selection.
func legsForMatching(ev event.Event, cutoff time.Time, marketAllow map[event.MarketKind]struct{}, bookAllow map[string]struct{}) []arb.Leg {
	legs := make([]arb.Leg, 0, len(ev.Lines))
	for _, line := range ev.Lines {
		if line.LastSeenAt.Before(cutoff) {
			continue
		}
		if len(marketAllow) > 0 {
			if _, ok := marketAllow[line.Market]; !ok {
				continue
			}
		}
		if len(bookAllow) > 0 {
			if _, ok := bookAllow[strings.ToLower(strings.TrimSpace(line.Book))]; !ok {
				continue
			}
		}
		legs = append(legs, arb.Leg{
			Book:    line.Book,
			Market:  line.Market,
			Outcome: line.Outcome,
			Price:   line.Price,
			Line:    line.Line,
		})
	}
	return legs
}

func buildRankedOpportunity(ev event.Event, pair arb.Pair) RankedOpportunity {
	return RankedOpportunity{
		EventID:    ev.ID,
		Sport:      ev.Sport,
		League:     ev.League,
		StartsAt:   ev.StartsAt,
		TeamA:      ev.TeamA,
		TeamB:      ev.TeamB,
		Market:     string(pair.Market),
		Line:       pair.Line,
		ROIPercent: pair.ROI * 100,
		LegA:       OpportunityLeg{Book: pair.LegA.Book, Outcome: string(pair.LegA.Outcome), Price: pair.LegA.Price, Line: pair.LegA.Line},
		LegB:       OpportunityLeg{Book: pair.LegB.Book, Outcome: string(pair.LegB.Outcome), Price: pair.LegB.Price, Line: pair.LegB.Line},
	}
}

func buildMarketAllowSet(markets []string) (map[event.MarketKind]struct{}, error) {
	out := make(map[event.MarketKind]struct{}, len(markets))
	for _, raw := range markets {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		kind, ok := event.ParseMarketKind(raw)
		if !ok {
			return nil, fmt.Errorf("%w: unknown market %q", ErrInvalidInput, raw)
		}
		out[kind] = struct{}{}
	}
	return out, nil
}

func buildAllowSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.ToLower(strings.TrimSpace(value))
		if trimmed == "" {
			continue
		}
		out[trimmed] = struct{}{}
	}
	return out
}

func paginateOpportunities(items []RankedOpportunity, offset, limit int) []RankedOpportunity {
	if offset >= len(items) {
		return []RankedOpportunity{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func lineSortValue(line *float64) float64 {
	if line == nil {
		return 0
	}
	return *line
}
