package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/lunarbet/arbscan/external/oddsfeed"
	"github.com/lunarbet/arbscan/internal/config"
	"github.com/lunarbet/arbscan/internal/domain/event"
	"github.com/lunarbet/arbscan/internal/domain/fingerprint"
	cacherepo "github.com/lunarbet/arbscan/internal/infrastructure/repository/cache"
	"github.com/lunarbet/arbscan/internal/infrastructure/repository/memory"
	"github.com/lunarbet/arbscan/internal/infrastructure/repository/postgres"
	"github.com/lunarbet/arbscan/internal/interfaces/httpapi"
	"github.com/lunarbet/arbscan/internal/platform/cache"
	"github.com/lunarbet/arbscan/internal/platform/logging"
	"github.com/lunarbet/arbscan/internal/platform/resilience"
	"github.com/lunarbet/arbscan/internal/usecase"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
)

func NewHTTPServer(cfg config.Config, logger *logging.Logger) (*http.Server, error) {
	if logger == nil {
		logger = logging.Default()
	}

	events, fingerprints, err := buildRepositories(cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.CacheEnabled {
		events = cacherepo.NewEventRepository(events, cache.NewStore(cfg.CacheTTL))
	}

	ingestionSvc := usecase.NewIngestionService(events, logger)

	var provider usecase.OddsProvider
	if cfg.OddsFeedEnabled {
		provider = oddsfeed.NewClient(oddsfeed.ClientConfig{
			BaseURL:      cfg.OddsFeedBaseURL,
			Token:        cfg.OddsFeedToken,
			Timeout:      cfg.OddsFeedTimeout,
			MaxRetries:   cfg.OddsFeedMaxRetries,
			RetryBackoff: cfg.OddsFeedRetryBackoff,
			Logger:       logger,
			CircuitBreaker: resilience.CircuitBreakerConfig{
				Enabled:          cfg.OddsFeedCircuitEnabled,
				FailureThreshold: cfg.OddsFeedCircuitFailures,
				OpenTimeout:      cfg.OddsFeedCircuitOpenTimeout,
				HalfOpenMaxReq:   cfg.OddsFeedCircuitHalfOpenMax,
			},
		})
	} else {
		logger.Warn("odds feed disabled", "reason", "ODDSFEED_ENABLED=false")
	}

	ttlGate := cache.NewStore(time.Duration(cfg.BatchTTLSeconds) * time.Second)
	batchSvc := usecase.NewBatchService(provider, events, fingerprints, ingestionSvc, ttlGate, logger, usecase.BatchConfig{
		Region:             cfg.OddsFeedRegion,
		DefaultSports:      cfg.BatchSports,
		DefaultMarkets:     cfg.BatchMarkets,
		DefaultHours:       cfg.BatchHours,
		DefaultTTLSeconds:  cfg.BatchTTLSeconds,
		DefaultConcurrency: cfg.BatchConcurrency,
		MaxConcurrency:     cfg.BatchMaxConcurrency,
		RetryMax:           cfg.BatchRetryMax,
		RetryBaseDelay:     cfg.BatchRetryBaseDelay,
		IngestArbOnly:      cfg.IngestArbOnly,
	})

	opportunitySvc := usecase.NewOpportunityService(events, logger, usecase.OpportunityConfig{
		DefaultFreshnessMinutes: cfg.QueryFreshnessMinutes,
		DefaultHorizonHours:     cfg.QueryHorizonHours,
		DefaultLimit:            cfg.QueryDefaultLimit,
		MaxLimit:                cfg.QueryMaxLimit,
		MatcherWorkers:          cfg.MatcherWorkers,
	})

	handler := httpapi.NewHandler(batchSvc, opportunitySvc, ingestionSvc, logger)
	router := httpapi.NewRouter(handler, logger, cfg.CORSAllowedOrigins, cfg.InternalJobToken)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	if server.Addr == "" {
		return nil, fmt.Errorf("http server addr cannot be empty")
	}

	return server, nil
}

// buildRepositories picks postgres when DB_URL is set and falls back to the
// in-memory implementation otherwise, so the service can run DB-less in dev.
func buildRepositories(cfg config.Config, logger *logging.Logger) (event.Repository, fingerprint.Repository, error) {
	if cfg.DBURL == "" {
		logger.Warn("storage running in-memory", "reason", "DB_URL empty")
		return memory.NewEventRepository(), memory.NewFingerprintRepository(), nil
	}

	db, err := connectDB(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}

	return postgres.NewEventRepository(db), postgres.NewFingerprintRepository(db), nil
}

func connectDB(cfg config.Config) (*sqlx.DB, error) {
	dsn := normalizeDBURL(cfg.DBURL, cfg.DBDisablePreparedBinary)

	db, err := otelsqlx.Connect("postgres", dsn,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
		otelsql.WithDBName(dbNameFromURL(cfg.DBURL)),
		otelsql.WithQueryFormatter(formatDBQueryForTrace),
	)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}
