package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bot-payout/internal/cache"
	"bot-payout/internal/metrics"

	"log/slog"
)

const (
	defaultChannelCacheTTL = 5 * time.Minute
	formContentType        = "application/x-www-form-urlencoded"
)

// Client provides typed access to the payment provider H2H API.
type Client struct {
	logger     *slog.Logger
	baseURL    string
	apiKey     string
	http       *http.Client
	metrics    *metrics.Metrics
	cache      *cache.Redis
	channelTTL time.Duration

	retryMax  int
	baseDelay time.Duration
	maxDelay  time.Duration

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// Config holds provider client configuration.
type Config struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	RetryMax       int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// responseEnvelope mirrors the provider's standard response shape.
type responseEnvelope struct {
	Status  bool
	Message string
	Code    int
	Data    json.RawMessage
}

func (r *responseEnvelope) UnmarshalJSON(data []byte) error {
	type alias struct {
		Status  json.RawMessage `json:"status"`
		Message json.RawMessage `json:"message"`
		Code    json.RawMessage `json:"code"`
		Data    json.RawMessage `json:"data"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	r.Message = strings.TrimSpace(stringTrimQuotes(a.Message))
	r.Data = a.Data
	if len(a.Status) != 0 {
		var boolVal bool
		if err := json.Unmarshal(a.Status, &boolVal); err == nil {
			r.Status = boolVal
		} else {
			str := strings.TrimSpace(stringTrimQuotes(a.Status))
			r.Status = strings.EqualFold(str, "true") || strings.EqualFold(str, "success") || str == "1"
		}
	}
	if len(a.Code) != 0 {
		var intVal int
		if err := json.Unmarshal(a.Code, &intVal); err == nil {
			r.Code = intVal
		} else {
			str := strings.TrimSpace(stringTrimQuotes(a.Code))
			if parsed, err := strconv.Atoi(str); err == nil {
				r.Code = parsed
			}
		}
	}
	return nil
}

// New creates a new provider client.
func New(cfg Config, logger *slog.Logger, metrics *metrics.Metrics, redis *cache.Redis) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://atlantich2h.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	retryMax := cfg.RetryMax
	if retryMax < 0 {
		retryMax = 0
	}
	baseDelay := cfg.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	maxDelay := cfg.RetryMaxDelay
	if maxDelay <= 0 {
		maxDelay = 8 * time.Second
	}
	return &Client{
		logger:     logger.With("component", "provider"),
		baseURL:    base,
		apiKey:     cfg.APIKey,
		http:       &http.Client{Timeout: timeout},
		metrics:    metrics,
		cache:      redis,
		channelTTL: defaultChannelCacheTTL,
		retryMax:   retryMax,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		sleep:      sleepContext,
	}
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

// backoffDelay computes min(base * 2^attempt, max).
func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.baseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	if delay > c.maxDelay {
		return c.maxDelay
	}
	return delay
}

func (c *Client) postForm(ctx context.Context, endpoint string, values url.Values) (*responseEnvelope, error) {
	if c.apiKey != "" && values.Get("api_key") == "" {
		values.Set("api_key", c.apiKey)
	}
	return c.call(ctx, endpoint, values.Encode())
}

// call performs one logical API call with the retry policy applied. The
// same encoded body is resent on every attempt. Business failures
// (status=false on a 2xx response) and non-retryable HTTP errors surface
// immediately; transport failures, 429 and >=500 are retried with
// exponential backoff up to retryMax retries.
func (c *Client) call(ctx context.Context, endpoint, body string) (*responseEnvelope, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		env, err := c.do(ctx, endpoint, body)
		if err == nil {
			if !env.Status {
				message := strings.TrimSpace(env.Message)
				if message == "" {
					message = "provider operation failed"
				}
				return nil, &APIError{Endpoint: endpoint, Message: message, Code: env.Code}
			}
			return env, nil
		}
		lastErr = err

		if !isRetryable(err) || attempt >= c.retryMax {
			break
		}

		delay := c.backoffDelay(attempt)
		c.logger.Warn("provider call retrying",
			"endpoint", endpoint, "attempt", attempt+1, "delay", delay, "error", err)
		if c.metrics != nil {
			c.metrics.ProviderRetries.WithLabelValues(endpoint).Inc()
		}
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// do performs a single HTTP POST attempt and decodes the envelope.
func (c *Client) do(ctx context.Context, endpoint, body string) (*responseEnvelope, error) {
	reqURL := c.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", formContentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "bot-payout/provider-client")

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.ProviderRequests.WithLabelValues(endpoint, "error").Inc()
		}
		c.logger.Warn("provider request failed",
			"endpoint", endpoint, "duration", time.Since(start), "error", err)
		return nil, fmt.Errorf("provider request: %w", err)
	}
	defer res.Body.Close()

	duration := time.Since(start)
	statusLabel := strconv.Itoa(res.StatusCode)
	if c.metrics != nil {
		c.metrics.ProviderRequests.WithLabelValues(endpoint, statusLabel).Inc()
		c.metrics.ProviderLatency.WithLabelValues(endpoint, statusLabel).Observe(duration.Seconds())
	}

	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode >= 400 {
		c.logger.Warn("provider request rejected",
			"endpoint", endpoint, "status", res.StatusCode, "duration", duration)
		return nil, &HTTPError{StatusCode: res.StatusCode, Body: strings.TrimSpace(string(bodyBytes))}
	}

	var env responseEnvelope
	if err := json.Unmarshal(bodyBytes, &env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	c.logger.Debug("provider request done",
		"endpoint", endpoint, "status", res.StatusCode, "duration", duration, "ok", env.Status)
	return &env, nil
}

func decodeMap(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err == nil {
		return out, nil
	}
	var withNumbers map[string]json.RawMessage
	if err := json.Unmarshal(raw, &withNumbers); err != nil {
		return nil, err
	}
	out = make(map[string]any, len(withNumbers))
	for key, val := range withNumbers {
		var anyVal any
		if err := json.Unmarshal(val, &anyVal); err == nil {
			out[key] = anyVal
		} else {
			out[key] = string(val)
		}
	}
	return out, nil
}

func decodeSlice(raw json.RawMessage) ([]map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var out []map[string]any
	if err := json.Unmarshal(raw, &out); err == nil {
		return out, nil
	}
	var withNumbers []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &withNumbers); err != nil {
		return nil, err
	}
	result := make([]map[string]any, 0, len(withNumbers))
	for _, row := range withNumbers {
		decoded := make(map[string]any, len(row))
		for key, val := range row {
			var anyVal any
			if err := json.Unmarshal(val, &anyVal); err == nil {
				decoded[key] = anyVal
			} else {
				decoded[key] = string(val)
			}
		}
		result = append(result, decoded)
	}
	return result, nil
}

func firstString(data map[string]any, keys ...string) string {
	for _, key := range keys {
		if val, ok := data[key]; ok {
			if str := toString(val); str != "" {
				return str
			}
		}
	}
	return ""
}

func firstFloat(data map[string]any, keys ...string) float64 {
	for _, key := range keys {
		if val, ok := data[key]; ok {
			if f := toFloat(val); f != 0 {
				return f
			}
		}
	}
	return 0
}

func normalizeTransactionStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", "null":
		return "unknown"
	case "success", "sukses", "ok", "completed", "complete", "done", "paid", "berhasil", "valid":
		return "success"
	case "pending", "process", "processing", "diproses", "waiting", "awaiting", "progress", "menunggu":
		return "pending"
	case "failed", "gagal", "cancel", "cancelled", "expired", "timeout", "void", "rejected":
		return "failed"
	default:
		return strings.ToLower(strings.TrimSpace(status))
	}
}

// NormalizeTransactionStatus exposes the status normalizer for other packages.
func NormalizeTransactionStatus(status string) string {
	return normalizeTransactionStatus(status)
}

func toString(val any) string {
	switch v := val.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == 0 {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		if v == 0 {
			return ""
		}
		return strconv.Itoa(v)
	case int64:
		if v == 0 {
			return ""
		}
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return ""
	}
}

func toFloat(val any) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err == nil {
			return parsed
		}
		return 0
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err == nil {
			return parsed
		}
		return 0
	default:
		return 0
	}
}

func stringTrimQuotes(raw json.RawMessage) string {
	str := strings.TrimSpace(string(raw))
	str = strings.Trim(str, `"`)
	return str
}
