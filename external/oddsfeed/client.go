package oddsfeed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/lunarbet/arbscan/internal/domain/event"
	"github.com/lunarbet/arbscan/internal/platform/logging"
	"github.com/lunarbet/arbscan/internal/platform/resilience"
	"github.com/lunarbet/arbscan/internal/usecase"
)

const (
	defaultBaseURL       = "https://api.the-odds-api.com/v4"
	quotaExhaustedToken  = "OUT_OF_USAGE_CREDITS"
	maxResponseBodyBytes = 6 << 20
)

var apiKeyParamRegex = regexp.MustCompile(`apiKey=[^&\s"']+`)

var errOddsFeedTransient = crerr.New("odds provider transient failure")

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	Token          string
	Timeout        time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
}

type Client struct {
	httpClient     *http.Client
	baseURL        string
	token          string
	maxRetries     int
	retryBackoff   time.Duration
	logger         *logging.Logger
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
	flight         resilience.SingleFlight
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 20 * time.Second
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	retryBackoff := cfg.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = time.Second
	}

	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		token:          strings.TrimSpace(cfg.Token),
		maxRetries:     maxInt(cfg.MaxRetries, 0),
		retryBackoff:   retryBackoff,
		logger:         logger,
		breaker:        resilience.NewCircuitBreaker(breakerCfg.FailureThreshold, breakerCfg.OpenTimeout, breakerCfg.HalfOpenMaxReq),
		circuitEnabled: breakerCfg.Enabled,
	}
}

// FetchOdds pulls raw odds for the request tuple and normalizes them into
// canonical events. The commence window is advisory on the provider side, so
// callers re-filter by window after the call. No persistence, no caching.
func (c *Client) FetchOdds(ctx context.Context, req usecase.FetchOddsRequest) ([]event.Event, error) {
	sport := strings.TrimSpace(req.Sport)
	if sport == "" {
		return nil, fmt.Errorf("sport is required")
	}
	if len(req.Markets) == 0 {
		return nil, fmt.Errorf("at least one market is required")
	}

	marketKeys := make([]string, 0, len(req.Markets))
	for _, kind := range req.Markets {
		key, ok := providerMarketKey(kind)
		if !ok {
			return nil, fmt.Errorf("unsupported market %q", kind)
		}
		marketKeys = append(marketKeys, key)
	}

	query := map[string]string{
		"regions":    strings.TrimSpace(req.Region),
		"markets":    strings.Join(marketKeys, ","),
		"oddsFormat": "decimal",
		"dateFormat": "iso",
	}
	if len(req.Bookmakers) > 0 {
		query["bookmakers"] = strings.Join(req.Bookmakers, ",")
	}
	if req.From != nil {
		query["commenceTimeFrom"] = req.From.UTC().Format(time.RFC3339)
	}
	if req.To != nil {
		query["commenceTimeTo"] = req.To.UTC().Format(time.RFC3339)
	}

	var rawEvents []rawEvent
	if err := c.doJSON(ctx, "/sports/"+url.PathEscape(sport)+"/odds", query, &rawEvents); err != nil {
		return nil, fmt.Errorf("fetch odds sport=%s: %w", sport, err)
	}

	out := make([]event.Event, 0, len(rawEvents))
	for _, raw := range rawEvents {
		mapped, ok := mapRawEvent(raw)
		if !ok {
			continue
		}
		out = append(out, mapped)
	}

	return out, nil
}

func (c *Client) doJSON(ctx context.Context, path string, query map[string]string, target any) error {
	if c.circuitEnabled {
		if err := c.breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "oddsfeed circuit breaker rejected request", "state", c.breaker.State())
			return fmt.Errorf("%w: odds provider is temporarily unavailable", usecase.ErrDependencyUnavailable)
		}
	}

	values := url.Values{}
	for key, value := range query {
		if value == "" {
			continue
		}
		values.Set(key, value)
	}
	values.Set("apiKey", c.token)

	fullURL := c.baseURL + path + "?" + values.Encode()

	key := path + "?" + values.Encode()
	out, err, _ := c.flight.Do(key, func() (any, error) {
		raw, reqErr := c.executeRequest(ctx, fullURL)
		if c.circuitEnabled {
			if reqErr != nil && crerr.Is(reqErr, errOddsFeedTransient) {
				c.breaker.RecordFailure()
			} else {
				c.breaker.RecordSuccess()
			}
		}
		return raw, reqErr
	})
	if err != nil {
		return err
	}

	raw, ok := out.([]byte)
	if !ok {
		return fmt.Errorf("unexpected response payload type %T", out)
	}

	if err := sonic.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode provider payload: %w", err)
	}

	return nil
}

// executeRequest retries transport failures and 5xx responses with a linear
// backoff. Rate-limit and quota responses are returned immediately as
// classified errors so the caller owns that policy.
func (c *Client) executeRequest(ctx context.Context, fullURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: send request: %s", errOddsFeedTransient, sanitizeSensitiveText(err.Error(), c.token))
		} else {
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
			_ = resp.Body.Close()
			if readErr != nil {
				lastErr = fmt.Errorf("%w: read response body: %v", errOddsFeedTransient, readErr)
			} else if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return raw, nil
			} else {
				lastErr = classifyStatus(resp.StatusCode, raw)
				if !crerr.Is(lastErr, errOddsFeedTransient) {
					return nil, lastErr
				}
			}
		}

		if attempt == c.maxRetries {
			break
		}
		backoff := time.Duration(attempt+1) * c.retryBackoff
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("provider request failed")
	}
	c.logger.WarnContext(ctx, "oddsfeed request failed", "url", redactAPIURL(fullURL), "error", lastErr)
	return nil, lastErr
}

// classifyStatus maps provider failures onto the structured error classes the
// scheduler keys its retry/abort decisions off, never message text.
func classifyStatus(code int, body []byte) error {
	switch {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: provider status=%d body=%s", usecase.ErrProviderRateLimited, code, abbreviateBody(body))
	case code == http.StatusUnauthorized, strings.Contains(string(body), quotaExhaustedToken):
		return fmt.Errorf("%w: provider status=%d body=%s", usecase.ErrProviderQuotaExhausted, code, abbreviateBody(body))
	case code >= 500:
		return fmt.Errorf("%w: provider status=%d body=%s", errOddsFeedTransient, code, abbreviateBody(body))
	default:
		return fmt.Errorf("provider status=%d body=%s", code, abbreviateBody(body))
	}
}

func sanitizeSensitiveText(value, token string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	if token != "" {
		value = strings.ReplaceAll(value, token, "REDACTED")
	}
	value = apiKeyParamRegex.ReplaceAllString(value, "apiKey=REDACTED")
	return value
}

func redactAPIURL(rawURL string) string {
	return apiKeyParamRegex.ReplaceAllString(rawURL, "apiKey=REDACTED")
}

func abbreviateBody(body []byte) string {
	const limit = 240
	text := strings.TrimSpace(string(body))
	if len(text) > limit {
		return text[:limit] + "..."
	}
	return text
}

func maxInt(left, right int) int {
	if left > right {
		return left
	}
	return right
}
