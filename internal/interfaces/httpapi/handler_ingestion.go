package httpapi

import (
	"fmt"
	"net/http"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/lunarbet/arbscan/internal/domain/event"
	"github.com/lunarbet/arbscan/internal/usecase"
)

type ingestEventRequest struct {
	Sport    string              `json:"sport" validate:"required"`
	League   string              `json:"league" validate:"required"`
	TeamA    string              `json:"team_a" validate:"required"`
	TeamB    string              `json:"team_b" validate:"required"`
	StartsAt string              `json:"starts_at" validate:"required"`
	Lines    []ingestLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type ingestLineRequest struct {
	Book              string   `json:"book" validate:"required"`
	Market            string   `json:"market" validate:"required"`
	Outcome           string   `json:"outcome" validate:"required"`
	Price             float64  `json:"price" validate:"required"`
	Line              *float64 `json:"line"`
	ProviderUpdatedAt string   `json:"provider_updated_at"`
}

// IngestEvent accepts a single normalized event with its quotes. It exists
// for backfills and manual corrections; the batch job is the primary path.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.IngestEvent")
	defer span.End()

	if h.ingestionService == nil {
		writeError(ctx, w, fmt.Errorf("%w: ingestion service is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	var req ingestEventRequest
	decoder := sonic.ConfigDefault.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrInvalidInput, err))
		return
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}

	ev, err := mapIngestEventRequest(req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	result, err := h.ingestionService.IngestEvent(ctx, ev)
	if err != nil {
		h.logger.WarnContext(ctx, "ingest event failed",
			"sport", req.Sport,
			"team_a", req.TeamA,
			"team_b", req.TeamB,
			"error", err,
		)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, result)
}

func mapIngestEventRequest(req ingestEventRequest) (event.Event, error) {
	startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		return event.Event{}, fmt.Errorf("%w: starts_at must be RFC3339", usecase.ErrInvalidInput)
	}

	lines := make([]event.Line, 0, len(req.Lines))
	for _, line := range req.Lines {
		market, ok := event.ParseMarketKind(line.Market)
		if !ok {
			return event.Event{}, fmt.Errorf("%w: unknown market %q", usecase.ErrInvalidInput, line.Market)
		}

		mapped := event.Line{
			Book:    line.Book,
			Market:  market,
			Outcome: event.OutcomeKind(line.Outcome),
			Price:   line.Price,
			Line:    line.Line,
		}
		if line.ProviderUpdatedAt != "" {
			updatedAt, err := time.Parse(time.RFC3339, line.ProviderUpdatedAt)
			if err != nil {
				return event.Event{}, fmt.Errorf("%w: provider_updated_at must be RFC3339", usecase.ErrInvalidInput)
			}
			mapped.ProviderUpdatedAt = &updatedAt
		}
		lines = append(lines, mapped)
	}

	return event.Event{
		Sport:    req.Sport,
		League:   req.League,
		TeamA:    req.TeamA,
		TeamB:    req.TeamB,
		StartsAt: startsAt,
		Lines:    lines,
	}, nil
}
