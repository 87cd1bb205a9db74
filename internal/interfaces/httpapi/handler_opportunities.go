package httpapi

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/lunarbet/arbscan/internal/usecase"
)

// ListOpportunities ranks stored two-way arbitrage pairs. All filters come in
// as query parameters so dashboards can link straight to a filtered view.
func (h *Handler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListOpportunities")
	defer span.End()

	if h.opportunityService == nil {
		writeError(ctx, w, fmt.Errorf("%w: opportunity service is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	filter, err := parseOpportunityFilter(r.URL.Query())
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	list, err := h.opportunityService.Query(ctx, filter)
	if err != nil {
		h.logger.WarnContext(ctx, "list opportunities failed",
			"sports", filter.Sports,
			"markets", filter.Markets,
			"error", err,
		)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, list)
}

// GetStakeSplit computes the equal-payout stake allocation for a pair of
// decimal prices without touching storage.
func (h *Handler) GetStakeSplit(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetStakeSplit")
	defer span.End()

	if h.opportunityService == nil {
		writeError(ctx, w, fmt.Errorf("%w: opportunity service is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	capital, err := parseFloatParam(r.URL.Query(), "capital")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	priceA, err := parseFloatParam(r.URL.Query(), "price_a")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	priceB, err := parseFloatParam(r.URL.Query(), "price_b")
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	split, err := h.opportunityService.SplitStakes(ctx, capital, priceA, priceB)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, split)
}

func parseOpportunityFilter(query url.Values) (usecase.OpportunityFilter, error) {
	filter := usecase.OpportunityFilter{
		Sports:     splitQueryCSV(query.Get("sports")),
		Markets:    splitQueryCSV(query.Get("markets")),
		Bookmakers: splitQueryCSV(query.Get("books")),
	}

	var err error
	if filter.MinROIPercent, err = parseOptionalFloat(query, "min_roi"); err != nil {
		return usecase.OpportunityFilter{}, err
	}
	if filter.FreshnessMinutes, err = parseOptionalInt(query, "freshness_minutes"); err != nil {
		return usecase.OpportunityFilter{}, err
	}
	if filter.HorizonHours, err = parseOptionalInt(query, "horizon_hours"); err != nil {
		return usecase.OpportunityFilter{}, err
	}
	if filter.Limit, err = parseOptionalInt(query, "limit"); err != nil {
		return usecase.OpportunityFilter{}, err
	}
	if filter.Offset, err = parseOptionalInt(query, "offset"); err != nil {
		return usecase.OpportunityFilter{}, err
	}

	return filter, nil
}

func splitQueryCSV(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func parseOptionalInt(query url.Values, name string) (int, error) {
	raw := strings.TrimSpace(query.Get(name))
	if raw == "" {
		return 0, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", usecase.ErrInvalidInput, name)
	}
	return value, nil
}

func parseOptionalFloat(query url.Values, name string) (float64, error) {
	raw := strings.TrimSpace(query.Get(name))
	if raw == "" {
		return 0, nil
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", usecase.ErrInvalidInput, name)
	}
	return value, nil
}

func parseFloatParam(query url.Values, name string) (float64, error) {
	raw := strings.TrimSpace(query.Get(name))
	if raw == "" {
		return 0, fmt.Errorf("%w: %s is required", usecase.ErrInvalidInput, name)
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", usecase.ErrInvalidInput, name)
	}
	return value, nil
}
