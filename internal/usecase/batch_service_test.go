package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lunarbet/arbscan/internal/domain/event"
	"github.com/lunarbet/arbscan/internal/platform/cache"
	"github.com/lunarbet/arbscan/internal/platform/logging"
)

type stubOddsProvider struct {
	mu      sync.Mutex
	calls   int
	fetchFn func(req FetchOddsRequest) ([]event.Event, error)
}

func (p *stubOddsProvider) FetchOdds(_ context.Context, req FetchOddsRequest) ([]event.Event, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.fetchFn(req)
}

func (p *stubOddsProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type stubEventRepo struct {
	mu          sync.Mutex
	pingErr     error
	nextID      int64
	idsByKey    map[string]int64
	oddsWritten int
	listResult  []event.Event
	listErr     error
	books       []string
}

func newStubEventRepo() *stubEventRepo {
	return &stubEventRepo{idsByKey: make(map[string]int64)}
}

func (r *stubEventRepo) UpsertEvent(_ context.Context, ev event.Event) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := ev.NaturalKey()
	if id, ok := r.idsByKey[key]; ok {
		return id, nil
	}
	r.nextID++
	r.idsByKey[key] = r.nextID
	return r.nextID, nil
}

func (r *stubEventRepo) UpsertOdds(_ context.Context, _ int64, lines []event.Line) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.oddsWritten += len(lines)
	return len(lines), nil
}

func (r *stubEventRepo) ListWithOdds(_ context.Context, _ event.ListFilter) ([]event.Event, error) {
	return r.listResult, r.listErr
}

func (r *stubEventRepo) ListBookmakers(_ context.Context) ([]string, error) {
	return r.books, nil
}

func (r *stubEventRepo) Ping(_ context.Context) error {
	return r.pingErr
}

func (r *stubEventRepo) totalOddsWritten() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.oddsWritten
}

type stubFingerprintRepo struct {
	mu      sync.Mutex
	hashes  map[string]string
	upserts int
}

func newStubFingerprintRepo() *stubFingerprintRepo {
	return &stubFingerprintRepo{hashes: make(map[string]string)}
}

func (r *stubFingerprintRepo) BatchLookup(_ context.Context, keys []string) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		if hash, ok := r.hashes[key]; ok {
			out[key] = hash
		}
	}
	return out, nil
}

func (r *stubFingerprintRepo) Upsert(_ context.Context, key, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hashes[key] = hash
	r.upserts++
	return nil
}

func moneylineEvent(startsAt time.Time) event.Event {
	return event.Event{
		Sport:    "NFL",
		League:   "National Football League",
		TeamA:    "New York Jets",
		TeamB:    "Buffalo Bills",
		StartsAt: startsAt,
		Lines: []event.Line{
			{Book: "BookX", Market: event.MarketMoneyline, Outcome: event.OutcomeA, Price: 2.10},
			{Book: "BookY", Market: event.MarketMoneyline, Outcome: event.OutcomeB, Price: 1.85},
		},
	}
}

func newTestBatchService(provider OddsProvider, repo *stubEventRepo, prints *stubFingerprintRepo, ttlGate *cache.Store) *BatchService {
	logger := logging.NewNop()
	ingestion := NewIngestionService(repo, logger)
	svc := NewBatchService(provider, repo, prints, ingestion, ttlGate, logger, BatchConfig{
		Region:         "us",
		RetryMax:       2,
		RetryBaseDelay: time.Millisecond,
	})
	svc.sleep = func(context.Context, time.Duration) error { return nil }
	return svc
}

func TestBatchService_RunBatch_StorageProbeFailureAbortsBatch(t *testing.T) {
	t.Parallel()

	repo := newStubEventRepo()
	repo.pingErr = errors.New("connection refused")
	provider := &stubOddsProvider{fetchFn: func(FetchOddsRequest) ([]event.Event, error) {
		return nil, nil
	}}

	svc := newTestBatchService(provider, repo, newStubFingerprintRepo(), cache.NewStore(0))
	_, err := svc.RunBatch(context.Background(), BatchInput{Sports: []string{"americanfootball_nfl"}, Markets: []string{"MONEYLINE"}})
	if !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("want ErrDependencyUnavailable, got %v", err)
	}
	if provider.callCount() != 0 {
		t.Fatalf("provider must not be called when storage is unreachable")
	}
}

func TestBatchService_RunBatch_TTLGateSkipsRepeatFetch(t *testing.T) {
	t.Parallel()

	repo := newStubEventRepo()
	provider := &stubOddsProvider{fetchFn: func(FetchOddsRequest) ([]event.Event, error) {
		return []event.Event{moneylineEvent(time.Now().UTC().Add(time.Hour))}, nil
	}}

	svc := newTestBatchService(provider, repo, newStubFingerprintRepo(), cache.NewStore(0))
	input := BatchInput{Sports: []string{"americanfootball_nfl"}, Markets: []string{"MONEYLINE"}, TTLSeconds: 300}

	first, err := svc.RunBatch(context.Background(), input)
	if err != nil {
		t.Fatalf("first run error: %v", err)
	}
	if first.TotalEvents != 1 || first.TotalOdds != 2 {
		t.Fatalf("first run counts: %+v", first)
	}

	second, err := svc.RunBatch(context.Background(), input)
	if err != nil {
		t.Fatalf("second run error: %v", err)
	}
	if len(second.Combos) != 1 || second.Combos[0].Note != "ttl-skip" {
		t.Fatalf("second run should ttl-skip, got %+v", second.Combos)
	}
	if provider.callCount() != 1 {
		t.Fatalf("provider called %d times, want 1", provider.callCount())
	}
}

func TestBatchService_RunBatch_FingerprintSkipsUnchangedEvents(t *testing.T) {
	t.Parallel()

	startsAt := time.Now().UTC().Add(2 * time.Hour).Truncate(time.Second)
	repo := newStubEventRepo()
	prints := newStubFingerprintRepo()
	provider := &stubOddsProvider{fetchFn: func(FetchOddsRequest) ([]event.Event, error) {
		return []event.Event{moneylineEvent(startsAt)}, nil
	}}

	svc := newTestBatchService(provider, repo, prints, cache.NewStore(0))
	input := BatchInput{Sports: []string{"americanfootball_nfl"}, Markets: []string{"MONEYLINE"}}

	first, err := svc.RunBatch(context.Background(), input)
	if err != nil {
		t.Fatalf("first run error: %v", err)
	}
	if first.TotalOdds != 2 {
		t.Fatalf("first run odds = %d, want 2", first.TotalOdds)
	}

	second, err := svc.RunBatch(context.Background(), input)
	if err != nil {
		t.Fatalf("second run error: %v", err)
	}
	if second.TotalOdds != 0 {
		t.Fatalf("unchanged payload must write zero odds, got %d", second.TotalOdds)
	}
	if len(second.Combos) != 1 || second.Combos[0].Note != "no-change" {
		t.Fatalf("second run note = %+v, want no-change", second.Combos)
	}
	if repo.totalOddsWritten() != 2 {
		t.Fatalf("repository write volume = %d, want 2", repo.totalOddsWritten())
	}
}

func TestBatchService_RunBatch_QuotaExhaustionFailsFast(t *testing.T) {
	t.Parallel()

	repo := newStubEventRepo()
	provider := &stubOddsProvider{fetchFn: func(FetchOddsRequest) ([]event.Event, error) {
		return nil, fmt.Errorf("%w: provider status=401", ErrProviderQuotaExhausted)
	}}

	svc := newTestBatchService(provider, repo, newStubFingerprintRepo(), cache.NewStore(0))
	result, err := svc.RunBatch(context.Background(), BatchInput{
		Sports:      []string{"s1", "s2", "s3"},
		Markets:     []string{"MONEYLINE"},
		Concurrency: 1,
	})
	if err != nil {
		t.Fatalf("RunBatch error: %v", err)
	}

	if !result.StoppedEarly {
		t.Fatalf("quota exhaustion must set stopped_early")
	}
	if result.OK {
		t.Fatalf("batch with errors must report ok=false")
	}
	if provider.callCount() != 1 {
		t.Fatalf("provider called %d times, want 1 (fail fast)", provider.callCount())
	}

	skipped := 0
	failed := 0
	for _, combo := range result.Combos {
		switch {
		case combo.Note == "skipped":
			skipped++
		case strings.HasPrefix(combo.Note, "error"):
			failed++
		}
	}
	if failed != 1 || skipped != 2 {
		t.Fatalf("got %d failed / %d skipped combos, want 1/2: %+v", failed, skipped, result.Combos)
	}
}

func TestBatchService_RunBatch_RetriesRateLimitWithExponentialBackoff(t *testing.T) {
	t.Parallel()

	repo := newStubEventRepo()
	var attempts int
	var mu sync.Mutex
	provider := &stubOddsProvider{fetchFn: func(FetchOddsRequest) ([]event.Event, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts <= 2 {
			return nil, fmt.Errorf("%w: provider status=429", ErrProviderRateLimited)
		}
		return []event.Event{moneylineEvent(time.Now().UTC().Add(time.Hour))}, nil
	}}

	svc := newTestBatchService(provider, repo, newStubFingerprintRepo(), cache.NewStore(0))
	var delays []time.Duration
	svc.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	result, err := svc.RunBatch(context.Background(), BatchInput{Sports: []string{"americanfootball_nfl"}, Markets: []string{"MONEYLINE"}})
	if err != nil {
		t.Fatalf("RunBatch error: %v", err)
	}
	if !result.OK || result.TotalEvents != 1 {
		t.Fatalf("batch should succeed after retries: %+v", result)
	}
	if len(delays) != 2 || delays[1] != 2*delays[0] {
		t.Fatalf("backoff must double: %v", delays)
	}
}

func TestBatchService_RunBatch_RateLimitRetriesExhaustedIsolatedPerCombo(t *testing.T) {
	t.Parallel()

	repo := newStubEventRepo()
	provider := &stubOddsProvider{fetchFn: func(req FetchOddsRequest) ([]event.Event, error) {
		if req.Sport == "s1" {
			return nil, fmt.Errorf("%w: provider status=429", ErrProviderRateLimited)
		}
		return []event.Event{moneylineEvent(time.Now().UTC().Add(time.Hour))}, nil
	}}

	svc := newTestBatchService(provider, repo, newStubFingerprintRepo(), cache.NewStore(0))
	result, err := svc.RunBatch(context.Background(), BatchInput{
		Sports:      []string{"s1", "s2"},
		Markets:     []string{"MONEYLINE"},
		Concurrency: 1,
	})
	if err != nil {
		t.Fatalf("RunBatch error: %v", err)
	}

	if result.OK {
		t.Fatalf("batch with a failed combo must report ok=false")
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "s1/MONEYLINE") {
		t.Fatalf("errors = %v", result.Errors)
	}
	if result.TotalEvents != 1 {
		t.Fatalf("healthy combo must still ingest, got %d events", result.TotalEvents)
	}
	if result.StoppedEarly {
		t.Fatalf("rate-limit exhaustion must not stop the batch early")
	}
}

func TestBatchService_RunBatch_DryRunReportsWithoutWriting(t *testing.T) {
	t.Parallel()

	repo := newStubEventRepo()
	prints := newStubFingerprintRepo()
	provider := &stubOddsProvider{fetchFn: func(FetchOddsRequest) ([]event.Event, error) {
		return []event.Event{moneylineEvent(time.Now().UTC().Add(time.Hour))}, nil
	}}

	svc := newTestBatchService(provider, repo, prints, cache.NewStore(0))
	result, err := svc.RunBatch(context.Background(), BatchInput{
		Sports:  []string{"americanfootball_nfl"},
		Markets: []string{"MONEYLINE"},
		DryRun:  true,
	})
	if err != nil {
		t.Fatalf("RunBatch error: %v", err)
	}

	if result.TotalEvents != 1 || result.TotalOdds != 2 {
		t.Fatalf("dry run must report would-be counts: %+v", result)
	}
	if len(result.Combos) != 1 || result.Combos[0].Note != "skipped" {
		t.Fatalf("dry run combos: %+v", result.Combos)
	}
	if repo.totalOddsWritten() != 0 {
		t.Fatalf("dry run wrote %d odds", repo.totalOddsWritten())
	}
	if prints.upserts != 0 {
		t.Fatalf("dry run must not commit fingerprints")
	}
}

func TestBatchService_RunBatch_FiltersEventsOutsideWindow(t *testing.T) {
	t.Parallel()

	repo := newStubEventRepo()
	provider := &stubOddsProvider{fetchFn: func(FetchOddsRequest) ([]event.Event, error) {
		inWindow := moneylineEvent(time.Now().UTC().Add(time.Hour))
		outOfWindow := moneylineEvent(time.Now().UTC().Add(200 * time.Hour))
		outOfWindow.TeamA = "Miami Dolphins"
		return []event.Event{inWindow, outOfWindow}, nil
	}}

	svc := newTestBatchService(provider, repo, newStubFingerprintRepo(), cache.NewStore(0))
	result, err := svc.RunBatch(context.Background(), BatchInput{
		Sports:  []string{"americanfootball_nfl"},
		Markets: []string{"MONEYLINE"},
		Hours:   48,
	})
	if err != nil {
		t.Fatalf("RunBatch error: %v", err)
	}
	if result.TotalEvents != 1 {
		t.Fatalf("out-of-window event must be dropped, got %d events", result.TotalEvents)
	}
}

func TestBatchService_RunBatch_RejectsUnknownMarket(t *testing.T) {
	t.Parallel()

	repo := newStubEventRepo()
	provider := &stubOddsProvider{fetchFn: func(FetchOddsRequest) ([]event.Event, error) {
		return nil, nil
	}}

	svc := newTestBatchService(provider, repo, newStubFingerprintRepo(), cache.NewStore(0))
	_, err := svc.RunBatch(context.Background(), BatchInput{Sports: []string{"s"}, Markets: []string{"THREE_WAY"}})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
}
