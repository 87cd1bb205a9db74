package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/lunarbet/arbscan/internal/domain/arb"
	"github.com/lunarbet/arbscan/internal/domain/event"
	"github.com/lunarbet/arbscan/internal/domain/fingerprint"
	"github.com/lunarbet/arbscan/internal/platform/cache"
	"github.com/lunarbet/arbscan/internal/platform/logging"
)

// FetchOddsRequest describes one provider call: one sport key, one region,
// a set of markets, an optional commence-time window and book allow-list.
type FetchOddsRequest struct {
	Sport      string
	Region     string
	Markets    []event.MarketKind
	From       *time.Time
	To         *time.Time
	Bookmakers []string
}

// OddsProvider is the fetch-and-normalize contract implemented by the
// external odds feed client.
type OddsProvider interface {
	FetchOdds(ctx context.Context, req FetchOddsRequest) ([]event.Event, error)
}

type BatchConfig struct {
	Region             string
	DefaultSports      []string
	DefaultMarkets     []string
	DefaultHours       int
	DefaultTTLSeconds  int
	DefaultConcurrency int
	MaxConcurrency     int
	RetryMax           int
	RetryBaseDelay     time.Duration
	// IngestArbOnly restricts writes to events that already show a two-way
	// edge at fetch time. Off by default: the stored dataset is then a full
	// market snapshot rather than an arb-biased one.
	IngestArbOnly bool
}

// BatchService walks the sports x markets cross-product, fetching odds under
// a bounded worker pool with per-combination TTL gating, rate-limit backoff
// and quota fail-fast.
type BatchService struct {
	provider     OddsProvider
	events       event.Repository
	fingerprints fingerprint.Repository
	ingestion    *IngestionService
	ttlGate      *cache.Store
	logger       *logging.Logger
	cfg          BatchConfig

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewBatchService(
	provider OddsProvider,
	events event.Repository,
	fingerprints fingerprint.Repository,
	ingestion *IngestionService,
	ttlGate *cache.Store,
	logger *logging.Logger,
	cfg BatchConfig,
) *BatchService {
	if logger == nil {
		logger = logging.Default()
	}
	if ttlGate == nil {
		ttlGate = cache.NewStore(0)
	}
	if cfg.Region == "" {
		cfg.Region = "us"
	}
	if cfg.DefaultHours <= 0 {
		cfg.DefaultHours = 72
	}
	if cfg.DefaultTTLSeconds < 0 {
		cfg.DefaultTTLSeconds = 0
	}
	if cfg.DefaultConcurrency <= 0 {
		cfg.DefaultConcurrency = 3
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 8
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}

	return &BatchService{
		provider:     provider,
		events:       events,
		fingerprints: fingerprints,
		ingestion:    ingestion,
		ttlGate:      ttlGate,
		logger:       logger,
		cfg:          cfg,
		now:          func() time.Time { return time.Now().UTC() },
		sleep:        sleepContext,
	}
}

type BatchInput struct {
	Sports      []string `json:"sports"`
	Markets     []string `json:"markets"`
	Bookmakers  []string `json:"bookmakers"`
	Hours       int      `json:"hours"`
	TTLSeconds  int      `json:"ttl_seconds"`
	Concurrency int      `json:"concurrency"`
	DryRun      bool     `json:"dry_run"`
}

type BatchResult struct {
	OK           bool          `json:"ok"`
	TotalEvents  int           `json:"total_events"`
	TotalOdds    int           `json:"total_odds"`
	StoppedEarly bool          `json:"stopped_early"`
	Errors       []string      `json:"errors"`
	Combos       []ComboResult `json:"per_combination_details"`
}

type ComboResult struct {
	Sport      string `json:"sport"`
	Market     string `json:"market"`
	Events     int    `json:"events_processed"`
	Odds       int    `json:"odds_written"`
	Note       string `json:"note,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

const (
	batchNoteTTLSkip  = "ttl-skip"
	batchNoteNoEvents = "no-events"
	batchNoteNoArb    = "no-arb"
	batchNoteNoChange = "no-change"
	batchNoteSkipped  = "skipped"
	batchNoteError    = "error"
)

type batchTask struct {
	sport  string
	market event.MarketKind
}

// RunBatch executes the full ingest cycle. Combinations fail independently:
// per-combo errors land in Errors while the batch keeps going. Only an
// unreachable storage layer aborts the batch before any provider call.
func (s *BatchService) RunBatch(ctx context.Context, input BatchInput) (BatchResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.BatchService.RunBatch")
	defer span.End()

	if s.provider == nil || s.events == nil || s.ingestion == nil {
		return BatchResult{}, fmt.Errorf("%w: batch service is not fully configured", ErrDependencyUnavailable)
	}

	// Probe storage before burning provider quota on fetches that could
	// never be persisted.
	if err := s.events.Ping(ctx); err != nil {
		return BatchResult{}, fmt.Errorf("%w: storage is unreachable: %v", ErrDependencyUnavailable, err)
	}

	sports := normalizeList(input.Sports, s.cfg.DefaultSports)
	if len(sports) == 0 {
		return BatchResult{}, fmt.Errorf("%w: no sports requested and no defaults configured", ErrInvalidInput)
	}
	markets, err := normalizeMarkets(input.Markets, s.cfg.DefaultMarkets)
	if err != nil {
		return BatchResult{}, err
	}

	hours := input.Hours
	if hours <= 0 {
		hours = s.cfg.DefaultHours
	}
	ttlSeconds := input.TTLSeconds
	if ttlSeconds <= 0 {
		ttlSeconds = s.cfg.DefaultTTLSeconds
	}
	bookmakers := normalizeList(input.Bookmakers, nil)

	tasks := make([]batchTask, 0, len(sports)*len(markets))
	for _, sport := range sports {
		for _, market := range markets {
			tasks = append(tasks, batchTask{sport: sport, market: market})
		}
	}

	workerCount := normalizeBatchWorkerCount(input.Concurrency, s.cfg.DefaultConcurrency, s.cfg.MaxConcurrency, len(tasks))

	result := BatchResult{
		OK:     true,
		Errors: make([]string, 0),
		Combos: make([]ComboResult, 0, len(tasks)),
	}
	if len(tasks) == 0 {
		return result, nil
	}

	pool, err := ants.NewPool(workerCount)
	if err != nil {
		return BatchResult{}, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var quotaExhausted atomic.Bool
	rows := make(chan ComboResult, len(tasks))

	var workers sync.WaitGroup
	for _, task := range tasks {
		task := task
		workers.Add(1)
		if err := pool.Submit(func() {
			defer workers.Done()

			start := time.Now()
			row := s.runCombo(ctx, task, comboParams{
				hours:      hours,
				ttlSeconds: ttlSeconds,
				bookmakers: bookmakers,
				dryRun:     input.DryRun,
			}, &quotaExhausted)
			row.DurationMs = time.Since(start).Milliseconds()
			rows <- row
		}); err != nil {
			workers.Done()
			return BatchResult{}, fmt.Errorf("submit task to worker pool: %w", err)
		}
	}

	workers.Wait()
	close(rows)

	for row := range rows {
		result.Combos = append(result.Combos, row)
		result.TotalEvents += row.Events
		result.TotalOdds += row.Odds
		if strings.HasPrefix(row.Note, batchNoteError) {
			result.Errors = append(result.Errors, fmt.Sprintf("%s/%s: %s", row.Sport, row.Market, rowErrorMessage(row)))
		}
	}

	sort.SliceStable(result.Combos, func(i, j int) bool {
		if result.Combos[i].Sport != result.Combos[j].Sport {
			return result.Combos[i].Sport < result.Combos[j].Sport
		}
		return result.Combos[i].Market < result.Combos[j].Market
	})

	result.StoppedEarly = quotaExhausted.Load()
	result.OK = len(result.Errors) == 0

	return result, nil
}

type comboParams struct {
	hours      int
	ttlSeconds int
	bookmakers []string
	dryRun     bool
}

func (s *BatchService) runCombo(ctx context.Context, task batchTask, params comboParams, quotaExhausted *atomic.Bool) ComboResult {
	row := ComboResult{Sport: task.sport, Market: string(task.market)}

	if quotaExhausted.Load() {
		row.Note = batchNoteSkipped
		return row
	}

	ttlKey := "batch|" + task.sport + "|" + string(task.market)
	if _, gated := s.ttlGate.Get(ctx, ttlKey); gated {
		row.Note = batchNoteTTLSkip
		return row
	}

	now := s.now()
	from := now
	to := now.Add(time.Duration(params.hours) * time.Hour)

	events, err := s.fetchWithBackoff(ctx, FetchOddsRequest{
		Sport:      task.sport,
		Region:     s.cfg.Region,
		Markets:    []event.MarketKind{task.market},
		From:       &from,
		To:         &to,
		Bookmakers: params.bookmakers,
	}, quotaExhausted)
	if err != nil {
		row.Note = batchNoteError + ": " + truncateMessage(err.Error())
		return row
	}

	if params.ttlSeconds > 0 {
		s.ttlGate.SetWithTTL(ctx, ttlKey, now, time.Duration(params.ttlSeconds)*time.Second)
	}

	// The provider window is advisory only, so re-filter here.
	events = filterByWindow(events, from, to)

	if s.cfg.IngestArbOnly {
		events = filterArbBearing(events)
		if len(events) == 0 {
			row.Note = batchNoteNoArb
			return row
		}
	}

	if len(events) == 0 {
		row.Note = batchNoteNoEvents
		return row
	}

	events, allUnchanged, hashes := s.filterUnchanged(ctx, task.market, events)
	if allUnchanged {
		row.Note = batchNoteNoChange
		return row
	}

	if params.dryRun {
		for _, ev := range events {
			row.Events++
			row.Odds += len(ev.Lines)
		}
		row.Note = batchNoteSkipped
		return row
	}

	for _, ev := range events {
		ingested, err := s.ingestion.IngestEvent(ctx, ev)
		if err != nil {
			row.Note = batchNoteError + ": " + truncateMessage(err.Error())
			return row
		}
		row.Events++
		row.Odds += ingested.OddsWritten

		if hash, ok := hashes[ev.NaturalKey()]; ok && s.fingerprints != nil {
			key := fingerprint.Key(ev.NaturalKey(), task.market)
			if err := s.fingerprints.Upsert(ctx, key, hash); err != nil {
				s.logger.WarnContext(ctx, "commit fingerprint failed", "key", key, "error", err)
			}
		}
	}

	return row
}

// fetchWithBackoff retries rate-limited fetches with exponential backoff and
// flips the batch-wide flag on quota exhaustion. Other failures surface
// immediately for this combination only.
func (s *BatchService) fetchWithBackoff(ctx context.Context, req FetchOddsRequest, quotaExhausted *atomic.Bool) ([]event.Event, error) {
	for attempt := 0; ; attempt++ {
		events, err := s.provider.FetchOdds(ctx, req)
		if err == nil {
			return events, nil
		}
		if errors.Is(err, ErrProviderQuotaExhausted) {
			quotaExhausted.Store(true)
			return nil, err
		}
		if !errors.Is(err, ErrProviderRateLimited) || attempt >= s.cfg.RetryMax {
			return nil, err
		}

		delay := s.cfg.RetryBaseDelay << attempt
		s.logger.WarnContext(ctx, "provider rate limited, backing off",
			"sport", req.Sport,
			"attempt", attempt+1,
			"delay", delay.String(),
		)
		if err := s.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// filterUnchanged drops events whose moneyline best-price fingerprint matches
// the stored hash. It returns the surviving events, whether every event was
// unchanged, and the fresh hash per surviving natural key for commit after a
// successful write. Non-moneyline markets bypass fingerprinting entirely.
func (s *BatchService) filterUnchanged(ctx context.Context, market event.MarketKind, events []event.Event) ([]event.Event, bool, map[string]string) {
	if market != event.MarketMoneyline || s.fingerprints == nil || len(events) == 0 {
		return events, false, nil
	}

	keys := make([]string, 0, len(events))
	freshHashes := make(map[string]string, len(events))
	for _, ev := range events {
		naturalKey := ev.NaturalKey()
		keys = append(keys, fingerprint.Key(naturalKey, market))
		freshHashes[naturalKey] = fingerprint.HashLines(ev.Lines)
	}

	stored, err := s.fingerprints.BatchLookup(ctx, keys)
	if err != nil {
		// Change detection is an optimization; a failed lookup must not
		// block ingestion.
		s.logger.WarnContext(ctx, "fingerprint lookup failed, ingesting all events", "error", err)
		return events, false, freshHashes
	}

	kept := events[:0]
	for _, ev := range events {
		naturalKey := ev.NaturalKey()
		if prev, ok := stored[fingerprint.Key(naturalKey, market)]; ok && prev == freshHashes[naturalKey] {
			continue
		}
		kept = append(kept, ev)
	}

	return kept, len(kept) == 0, freshHashes
}

func filterByWindow(events []event.Event, from, to time.Time) []event.Event {
	kept := events[:0]
	for _, ev := range events {
		if ev.StartsAt.Before(from) || ev.StartsAt.After(to) {
			continue
		}
		kept = append(kept, ev)
	}
	return kept
}

// filterArbBearing keeps only events that already show at least one two-way
// edge at fetch time. This is an ingestion volume filter, not the
// authoritative matcher: the query service always recomputes from storage.
func filterArbBearing(events []event.Event) []event.Event {
	kept := events[:0]
	for _, ev := range events {
		legs := make([]arb.Leg, 0, len(ev.Lines))
		for _, line := range ev.Lines {
			legs = append(legs, arb.Leg{
				Book:    line.Book,
				Market:  line.Market,
				Outcome: line.Outcome,
				Price:   line.Price,
				Line:    line.Line,
			})
		}
		if len(arb.FindTwoWayPairs(legs)) == 0 {
			continue
		}
		kept = append(kept, ev)
	}
	return kept
}

func normalizeList(values []string, fallback []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}

func normalizeMarkets(values []string, fallback []string) ([]event.MarketKind, error) {
	raw := normalizeList(values, fallback)
	if len(raw) == 0 {
		raw = []string{string(event.MarketMoneyline), string(event.MarketSpread), string(event.MarketTotal)}
	}

	out := make([]event.MarketKind, 0, len(raw))
	for _, value := range raw {
		kind, ok := event.ParseMarketKind(value)
		if !ok {
			return nil, fmt.Errorf("%w: unknown market %q", ErrInvalidInput, value)
		}
		out = append(out, kind)
	}
	return out, nil
}

func normalizeBatchWorkerCount(value, fallback, maxWorkers, taskCount int) int {
	if taskCount <= 0 {
		return 1
	}
	if value <= 0 {
		value = fallback
	}
	if value <= 0 {
		value = 1
	}
	if maxWorkers > 0 && value > maxWorkers {
		value = maxWorkers
	}
	if value > taskCount {
		value = taskCount
	}
	return value
}

func truncateMessage(message string) string {
	const limit = 240
	message = strings.TrimSpace(message)
	if len(message) > limit {
		return message[:limit] + "..."
	}
	return message
}

func rowErrorMessage(row ComboResult) string {
	return strings.TrimPrefix(row.Note, batchNoteError+": ")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
