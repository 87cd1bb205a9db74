package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	sonic "github.com/bytedance/sonic"
	"github.com/lunarbet/arbscan/internal/usecase"
)

// RunIngestOddsJob fans the provider fetch out across the configured
// sport/market combinations. An empty body runs with the configured defaults.
func (h *Handler) RunIngestOddsJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RunIngestOddsJob")
	defer span.End()

	if h.batchService == nil {
		writeError(ctx, w, fmt.Errorf("%w: batch service is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	req, err := decodeIngestOddsRequest(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	result, err := h.batchService.RunBatch(ctx, req)
	if err != nil {
		h.logger.WarnContext(ctx, "run ingest odds job failed",
			"sports", req.Sports,
			"markets", req.Markets,
			"dry_run", req.DryRun,
			"error", err,
		)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, result)
}

func decodeIngestOddsRequest(r *http.Request) (usecase.BatchInput, error) {
	decoder := sonic.ConfigDefault.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	var req usecase.BatchInput
	if err := decoder.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return usecase.BatchInput{}, nil
		}
		return usecase.BatchInput{}, fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrInvalidInput, err)
	}

	return req, nil
}
