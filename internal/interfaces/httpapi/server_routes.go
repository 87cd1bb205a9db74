package httpapi

import "net/http"

func registerSystemRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("GET /healthz", handler.Healthz)
}

func registerOpportunityRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("GET /v1/opportunities", handler.ListOpportunities)
	mux.HandleFunc("GET /v1/opportunities/stake-split", handler.GetStakeSplit)
}

func registerInternalJobRoutes(mux *http.ServeMux, handler *Handler, internalJobToken string) {
	mux.Handle("POST /v1/internal/jobs/ingest-odds", RequireInternalJobToken(internalJobToken, http.HandlerFunc(handler.RunIngestOddsJob)))
	mux.Handle("POST /v1/internal/ingestion/events", RequireInternalJobToken(internalJobToken, http.HandlerFunc(handler.IngestEvent)))
}
