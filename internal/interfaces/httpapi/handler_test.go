package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/lunarbet/arbscan/internal/infrastructure/repository/memory"
	"github.com/lunarbet/arbscan/internal/platform/logging"
	"github.com/lunarbet/arbscan/internal/usecase"
)

const testJobToken = "job-token-123"

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	events := memory.NewEventRepository()
	ingestion := usecase.NewIngestionService(events, logging.NewNop())
	opportunities := usecase.NewOpportunityService(events, logging.NewNop(), usecase.OpportunityConfig{})
	handler := NewHandler(nil, opportunities, ingestion, logging.NewNop())

	return NewRouter(handler, logging.NewNop(), []string{"*"}, testJobToken)
}

func ingestEventBody(t *testing.T, startsAt time.Time) string {
	t.Helper()

	return `{
		"sport": "NFL",
		"league": "National Football League",
		"team_a": "New York Jets",
		"team_b": "Buffalo Bills",
		"starts_at": "` + startsAt.UTC().Format(time.RFC3339) + `",
		"lines": [
			{"book": "BookX", "market": "MONEYLINE", "outcome": "A", "price": 2.10},
			{"book": "BookY", "market": "MONEYLINE", "outcome": "B", "price": 2.10}
		]
	}`
}

func TestRouter_InternalRoutesRequireToken(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/internal/ingestion/events", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestRouter_IngestEventThenListOpportunities(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)
	startsAt := time.Now().UTC().Add(2 * time.Hour)

	req := httptest.NewRequest(http.MethodPost, "/v1/internal/ingestion/events", strings.NewReader(ingestEventBody(t, startsAt)))
	req.Header.Set("X-Internal-Job-Token", testJobToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ingest event status %d body %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/opportunities", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("list opportunities status %d body %s", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Data usecase.OpportunityList `json:"data"`
	}
	if err := sonic.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(envelope.Data.Opportunities) != 1 {
		t.Fatalf("expected one opportunity, got %+v", envelope.Data)
	}
	if got := envelope.Data.Opportunities[0].ROIPercent; got < 4.9 || got > 5.1 {
		t.Fatalf("unexpected roi percent: %v", got)
	}
}

func TestRouter_IngestEventRejectsUnknownField(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)

	body := `{"sport": "NFL", "unexpected": true}`
	req := httptest.NewRequest(http.MethodPost, "/v1/internal/ingestion/events", strings.NewReader(body))
	req.Header.Set("X-Internal-Job-Token", testJobToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestRouter_StakeSplit(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/opportunities/stake-split?capital=100&price_a=2.10&price_b=2.10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("stake split status %d body %s", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Data usecase.StakeSplit `json:"data"`
	}
	if err := sonic.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.StakeA < 49.9 || envelope.Data.StakeA > 50.1 {
		t.Fatalf("unexpected stake a: %+v", envelope.Data)
	}
	if envelope.Data.StakeB < 49.9 || envelope.Data.StakeB > 50.1 {
		t.Fatalf("unexpected stake b: %+v", envelope.Data)
	}
	if envelope.Data.ROIPercent < 4.9 || envelope.Data.ROIPercent > 5.1 {
		t.Fatalf("unexpected roi percent: %v", envelope.Data.ROIPercent)
	}
}

func TestRouter_StakeSplitRejectsMissingParams(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/opportunities/stake-split?capital=100", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing price params, got %d", rec.Code)
	}
}

func TestRouter_IngestOddsJobWithoutProviderReturnsUnavailable(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/internal/jobs/ingest-odds", strings.NewReader("{}"))
	req.Header.Set("X-Internal-Job-Token", testJobToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without batch service, got %d", rec.Code)
	}
}
