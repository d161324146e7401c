// Package backend implements the HTTP client for the completion provider:
// a request/reply boundary that takes the user's text and returns reply
// text, whatever shape the provider answers in.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"SimpleChat/internal/cache"
)

// CompletionRequest is the request body sent to the provider endpoint.
type CompletionRequest struct {
	Message string `json:"message"`
}

// Client calls the completion provider over HTTP.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
	cache      *cache.Cache
}

// NewClient creates a provider client for the given endpoint. tracer, meter
// and replyCache may be nil; nil telemetry falls back to the global
// providers and a nil cache disables caching.
func NewClient(endpoint string, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter, replyCache *cache.Cache) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = otel.Tracer("backend")
	}
	if meter == nil {
		meter = otel.Meter("backend")
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
		tracer:     tracer,
		meter:      meter,
		cache:      replyCache,
	}
}

// Complete sends the user's text to the provider and returns the extracted
// reply. Cancelling ctx aborts the request. Any non-2xx status is a failure.
func (c *Client) Complete(ctx context.Context, message string) (string, error) {
	var cacheKey string
	if c.cache != nil {
		cacheKey = cache.Key(c.endpoint, message)
		if cached, ok := c.cache.Get(cacheKey); ok {
			c.logger.Info("cache hit", "key", cacheKey[:16])
			return cached, nil
		}
	}

	ctx, span := c.tracer.Start(ctx, "completion_api_call")
	defer span.End()

	start := time.Now()

	jsonData, err := json.Marshal(CompletionRequest{Message: message})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}

	duration := time.Since(start)
	histogram, err := c.meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err == nil {
		histogram.Record(ctx, float64(duration.Milliseconds()))
	}

	c.recordUsage(ctx, body)

	reply := ExtractReply(body)
	if c.cache != nil {
		c.cache.Put(cacheKey, reply)
		c.logger.Info("cached response", "key", cacheKey[:16])
	}
	return reply, nil
}

// recordUsage records token usage counters when the provider reports them.
func (c *Client) recordUsage(ctx context.Context, body []byte) {
	var payload struct {
		Usage map[string]any `json:"usage"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Usage == nil {
		return
	}

	for key, value := range payload.Usage {
		intVal, ok := value.(float64)
		if !ok {
			continue
		}
		counter, err := c.meter.Int64Counter(
			fmt.Sprintf("llm.usage.%s", key),
			metric.WithDescription(fmt.Sprintf("LLM usage metric: %s", key)),
		)
		if err != nil {
			c.logger.Warn("failed to create counter", "key", key, "error", err)
			continue
		}
		counter.Add(ctx, int64(intVal))
	}
}
