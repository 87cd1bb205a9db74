package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lunarbet/arbscan/internal/platform/logging"
)

// Config stores runtime configuration for the service.
type Config struct {
	AppEnv                     string
	ServiceName                string
	ServiceVersion             string
	HTTPAddr                   string
	ReadTimeout                time.Duration
	WriteTimeout               time.Duration
	CORSAllowedOrigins         []string
	LogLevel                   logging.Level
	DBURL                      string
	DBDisablePreparedBinary    bool
	CacheEnabled               bool
	CacheTTL                   time.Duration
	InternalJobToken           string
	OddsFeedEnabled            bool
	OddsFeedBaseURL            string
	OddsFeedToken              string
	OddsFeedRegion             string
	OddsFeedTimeout            time.Duration
	OddsFeedMaxRetries         int
	OddsFeedRetryBackoff       time.Duration
	OddsFeedCircuitEnabled     bool
	OddsFeedCircuitFailures    int
	OddsFeedCircuitOpenTimeout time.Duration
	OddsFeedCircuitHalfOpenMax int
	BatchSports                []string
	BatchMarkets               []string
	BatchHours                 int
	BatchTTLSeconds            int
	BatchConcurrency           int
	BatchMaxConcurrency        int
	BatchRetryMax              int
	BatchRetryBaseDelay        time.Duration
	IngestArbOnly              bool
	QueryFreshnessMinutes      int
	QueryHorizonHours          int
	QueryDefaultLimit          int
	QueryMaxLimit              int
	MatcherWorkers             int
	PprofEnabled               bool
	PprofAddr                  string
	UptraceEnabled             bool
	UptraceDSN                 string
	UptraceLogsEnabled         bool
	PyroscopeEnabled           bool
	PyroscopeServerAddress     string
	PyroscopeAppName           string
	PyroscopeAuthToken         string
	PyroscopeBasicAuthUser     string
	PyroscopeBasicAuthPassword string
	PyroscopeUploadRate        time.Duration
}

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	readTimeout, err := time.ParseDuration(getEnv("HTTP_READ_TIMEOUT", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse HTTP_READ_TIMEOUT: %w", err)
	}
	if readTimeout <= 0 {
		return Config{}, fmt.Errorf("HTTP_READ_TIMEOUT must be > 0")
	}
	writeTimeout, err := time.ParseDuration(getEnv("HTTP_WRITE_TIMEOUT", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse HTTP_WRITE_TIMEOUT: %w", err)
	}
	if writeTimeout <= 0 {
		return Config{}, fmt.Errorf("HTTP_WRITE_TIMEOUT must be > 0")
	}

	dbDisablePreparedBinary, err := strconv.ParseBool(getEnv("DB_DISABLE_PREPARED_BINARY_RESULT", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse DB_DISABLE_PREPARED_BINARY_RESULT: %w", err)
	}

	cacheEnabled, err := strconv.ParseBool(getEnv("CACHE_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse CACHE_ENABLED: %w", err)
	}
	cacheTTL, err := time.ParseDuration(getEnv("CACHE_TTL", "60s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse CACHE_TTL: %w", err)
	}
	if cacheTTL <= 0 {
		return Config{}, fmt.Errorf("CACHE_TTL must be > 0")
	}

	oddsFeedEnabled, err := strconv.ParseBool(getEnv("ODDSFEED_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse ODDSFEED_ENABLED: %w", err)
	}
	oddsFeedToken := strings.TrimSpace(getEnv("ODDSFEED_TOKEN", ""))
	if oddsFeedEnabled && oddsFeedToken == "" {
		return Config{}, fmt.Errorf("ODDSFEED_TOKEN is required when ODDSFEED_ENABLED=true")
	}
	oddsFeedTimeout, err := time.ParseDuration(getEnv("ODDSFEED_TIMEOUT", "20s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse ODDSFEED_TIMEOUT: %w", err)
	}
	if oddsFeedTimeout <= 0 {
		return Config{}, fmt.Errorf("ODDSFEED_TIMEOUT must be > 0")
	}
	oddsFeedMaxRetries, err := getEnvAsInt("ODDSFEED_MAX_RETRIES", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse ODDSFEED_MAX_RETRIES: %w", err)
	}
	if oddsFeedMaxRetries < 0 {
		return Config{}, fmt.Errorf("ODDSFEED_MAX_RETRIES must be >= 0")
	}
	oddsFeedRetryBackoff, err := time.ParseDuration(getEnv("ODDSFEED_RETRY_BACKOFF", "1s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse ODDSFEED_RETRY_BACKOFF: %w", err)
	}
	if oddsFeedRetryBackoff <= 0 {
		return Config{}, fmt.Errorf("ODDSFEED_RETRY_BACKOFF must be > 0")
	}
	oddsFeedCircuitEnabled, err := strconv.ParseBool(getEnv("ODDSFEED_CIRCUIT_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse ODDSFEED_CIRCUIT_ENABLED: %w", err)
	}
	oddsFeedCircuitFailures, err := getEnvAsInt("ODDSFEED_CIRCUIT_FAILURE_COUNT", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse ODDSFEED_CIRCUIT_FAILURE_COUNT: %w", err)
	}
	oddsFeedCircuitOpenTimeout, err := time.ParseDuration(getEnv("ODDSFEED_CIRCUIT_OPEN_TIMEOUT", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse ODDSFEED_CIRCUIT_OPEN_TIMEOUT: %w", err)
	}
	oddsFeedCircuitHalfOpenMax, err := getEnvAsInt("ODDSFEED_CIRCUIT_HALF_OPEN_MAX_REQ", 1)
	if err != nil {
		return Config{}, fmt.Errorf("parse ODDSFEED_CIRCUIT_HALF_OPEN_MAX_REQ: %w", err)
	}

	batchHours, err := getEnvAsInt("BATCH_HOURS", 72)
	if err != nil {
		return Config{}, fmt.Errorf("parse BATCH_HOURS: %w", err)
	}
	if batchHours <= 0 {
		return Config{}, fmt.Errorf("BATCH_HOURS must be > 0")
	}
	batchTTLSeconds, err := getEnvAsInt("BATCH_TTL_SECONDS", 60)
	if err != nil {
		return Config{}, fmt.Errorf("parse BATCH_TTL_SECONDS: %w", err)
	}
	if batchTTLSeconds < 0 {
		return Config{}, fmt.Errorf("BATCH_TTL_SECONDS must be >= 0")
	}
	batchConcurrency, err := getEnvAsInt("BATCH_CONCURRENCY", 3)
	if err != nil {
		return Config{}, fmt.Errorf("parse BATCH_CONCURRENCY: %w", err)
	}
	if batchConcurrency <= 0 {
		return Config{}, fmt.Errorf("BATCH_CONCURRENCY must be > 0")
	}
	batchMaxConcurrency, err := getEnvAsInt("BATCH_MAX_CONCURRENCY", 8)
	if err != nil {
		return Config{}, fmt.Errorf("parse BATCH_MAX_CONCURRENCY: %w", err)
	}
	if batchMaxConcurrency < batchConcurrency {
		return Config{}, fmt.Errorf("BATCH_MAX_CONCURRENCY must be >= BATCH_CONCURRENCY")
	}
	batchRetryMax, err := getEnvAsInt("BATCH_RETRY_MAX", 3)
	if err != nil {
		return Config{}, fmt.Errorf("parse BATCH_RETRY_MAX: %w", err)
	}
	if batchRetryMax < 0 {
		return Config{}, fmt.Errorf("BATCH_RETRY_MAX must be >= 0")
	}
	batchRetryBaseDelay, err := time.ParseDuration(getEnv("BATCH_RETRY_BASE_DELAY", "2s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse BATCH_RETRY_BASE_DELAY: %w", err)
	}
	if batchRetryBaseDelay <= 0 {
		return Config{}, fmt.Errorf("BATCH_RETRY_BASE_DELAY must be > 0")
	}
	ingestArbOnly, err := strconv.ParseBool(getEnv("INGEST_ARB_ONLY", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse INGEST_ARB_ONLY: %w", err)
	}

	queryFreshnessMinutes, err := getEnvAsInt("QUERY_FRESHNESS_MINUTES", 30)
	if err != nil {
		return Config{}, fmt.Errorf("parse QUERY_FRESHNESS_MINUTES: %w", err)
	}
	if queryFreshnessMinutes <= 0 {
		return Config{}, fmt.Errorf("QUERY_FRESHNESS_MINUTES must be > 0")
	}
	queryHorizonHours, err := getEnvAsInt("QUERY_HORIZON_HOURS", 72)
	if err != nil {
		return Config{}, fmt.Errorf("parse QUERY_HORIZON_HOURS: %w", err)
	}
	if queryHorizonHours <= 0 {
		return Config{}, fmt.Errorf("QUERY_HORIZON_HOURS must be > 0")
	}
	queryDefaultLimit, err := getEnvAsInt("QUERY_DEFAULT_LIMIT", 50)
	if err != nil {
		return Config{}, fmt.Errorf("parse QUERY_DEFAULT_LIMIT: %w", err)
	}
	queryMaxLimit, err := getEnvAsInt("QUERY_MAX_LIMIT", 200)
	if err != nil {
		return Config{}, fmt.Errorf("parse QUERY_MAX_LIMIT: %w", err)
	}
	if queryDefaultLimit <= 0 || queryMaxLimit < queryDefaultLimit {
		return Config{}, fmt.Errorf("QUERY_MAX_LIMIT must be >= QUERY_DEFAULT_LIMIT and both > 0")
	}
	matcherWorkers, err := getEnvAsInt("MATCHER_WORKERS", 4)
	if err != nil {
		return Config{}, fmt.Errorf("parse MATCHER_WORKERS: %w", err)
	}
	if matcherWorkers <= 0 {
		return Config{}, fmt.Errorf("MATCHER_WORKERS must be > 0")
	}

	pprofEnabled, err := strconv.ParseBool(getEnv("PPROF_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PPROF_ENABLED: %w", err)
	}
	pprofAddr := strings.TrimSpace(getEnv("PPROF_ADDR", ":6060"))
	if pprofEnabled && pprofAddr == "" {
		return Config{}, fmt.Errorf("PPROF_ADDR is required when PPROF_ENABLED=true")
	}

	uptraceEnabled, err := strconv.ParseBool(getEnv("UPTRACE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse UPTRACE_ENABLED: %w", err)
	}
	uptraceDSN := strings.TrimSpace(getEnv("UPTRACE_DSN", ""))
	if uptraceEnabled && uptraceDSN == "" {
		return Config{}, fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}
	uptraceLogsEnabled, err := strconv.ParseBool(getEnv("UPTRACE_LOGS_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse UPTRACE_LOGS_ENABLED: %w", err)
	}

	pyroscopeEnabled, err := strconv.ParseBool(getEnv("PYROSCOPE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_ENABLED: %w", err)
	}
	pyroscopeServerAddress := strings.TrimSpace(getEnv("PYROSCOPE_SERVER_ADDRESS", ""))
	if pyroscopeEnabled && pyroscopeServerAddress == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_SERVER_ADDRESS is required when PYROSCOPE_ENABLED=true")
	}
	pyroscopeUploadRate, err := time.ParseDuration(getEnv("PYROSCOPE_UPLOAD_RATE", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_UPLOAD_RATE: %w", err)
	}
	if pyroscopeUploadRate <= 0 {
		return Config{}, fmt.Errorf("PYROSCOPE_UPLOAD_RATE must be > 0")
	}

	serviceName := strings.TrimSpace(getEnv("SERVICE_NAME", "arbscan"))

	return Config{
		AppEnv:                     appEnv,
		ServiceName:                serviceName,
		ServiceVersion:             strings.TrimSpace(getEnv("SERVICE_VERSION", "dev")),
		HTTPAddr:                   getEnv("HTTP_ADDR", ":8080"),
		ReadTimeout:                readTimeout,
		WriteTimeout:               writeTimeout,
		CORSAllowedOrigins:         splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		LogLevel:                   parseLogLevel(getEnv("LOG_LEVEL", "info")),
		DBURL:                      strings.TrimSpace(getEnv("DB_URL", "")),
		DBDisablePreparedBinary:    dbDisablePreparedBinary,
		CacheEnabled:               cacheEnabled,
		CacheTTL:                   cacheTTL,
		InternalJobToken:           strings.TrimSpace(getEnv("INTERNAL_JOB_TOKEN", "")),
		OddsFeedEnabled:            oddsFeedEnabled,
		OddsFeedBaseURL:            strings.TrimSpace(getEnv("ODDSFEED_BASE_URL", "")),
		OddsFeedToken:              oddsFeedToken,
		OddsFeedRegion:             strings.TrimSpace(getEnv("ODDSFEED_REGION", "us")),
		OddsFeedTimeout:            oddsFeedTimeout,
		OddsFeedMaxRetries:         oddsFeedMaxRetries,
		OddsFeedRetryBackoff:       oddsFeedRetryBackoff,
		OddsFeedCircuitEnabled:     oddsFeedCircuitEnabled,
		OddsFeedCircuitFailures:    oddsFeedCircuitFailures,
		OddsFeedCircuitOpenTimeout: oddsFeedCircuitOpenTimeout,
		OddsFeedCircuitHalfOpenMax: oddsFeedCircuitHalfOpenMax,
		BatchSports:                splitCSV(getEnv("BATCH_SPORTS", "")),
		BatchMarkets:               splitCSV(getEnv("BATCH_MARKETS", "MONEYLINE,SPREAD,TOTAL")),
		BatchHours:                 batchHours,
		BatchTTLSeconds:            batchTTLSeconds,
		BatchConcurrency:           batchConcurrency,
		BatchMaxConcurrency:        batchMaxConcurrency,
		BatchRetryMax:              batchRetryMax,
		BatchRetryBaseDelay:        batchRetryBaseDelay,
		IngestArbOnly:              ingestArbOnly,
		QueryFreshnessMinutes:      queryFreshnessMinutes,
		QueryHorizonHours:          queryHorizonHours,
		QueryDefaultLimit:          queryDefaultLimit,
		QueryMaxLimit:              queryMaxLimit,
		MatcherWorkers:             matcherWorkers,
		PprofEnabled:               pprofEnabled,
		PprofAddr:                  pprofAddr,
		UptraceEnabled:             uptraceEnabled,
		UptraceDSN:                 uptraceDSN,
		UptraceLogsEnabled:         uptraceLogsEnabled,
		PyroscopeEnabled:           pyroscopeEnabled,
		PyroscopeServerAddress:     pyroscopeServerAddress,
		PyroscopeAppName:           strings.TrimSpace(getEnv("PYROSCOPE_APP_NAME", serviceName)),
		PyroscopeAuthToken:         strings.TrimSpace(getEnv("PYROSCOPE_AUTH_TOKEN", "")),
		PyroscopeBasicAuthUser:     strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_USER", "")),
		PyroscopeBasicAuthPassword: strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_PASSWORD", "")),
		PyroscopeUploadRate:        pyroscopeUploadRate,
	}, nil
}

func parseLogLevel(v string) logging.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func splitCSV(v string) []string {
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

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}
