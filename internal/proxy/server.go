// Package proxy implements the completion-provider proxy: a small HTTP
// server that forwards chat requests to an OpenAI-compatible upstream so
// the API key never reaches the client.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"SimpleChat/internal/config"
)

const systemPrompt = "You are a helpful assistant."

// ChatRequest is the body accepted by POST /api/chatgpt.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the success body returned to the widget.
type ChatResponse struct {
	Reply string `json:"reply"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// openAIRequest represents the request body for OpenAI-compatible APIs
type openAIRequest struct {
	Model     string              `json:"model"`
	MaxTokens int                 `json:"max_tokens"`
	Messages  []map[string]string `json:"messages"`
}

// openAIResponse represents the response from OpenAI-compatible APIs
type openAIResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage map[string]any `json:"usage"`
}

// Handler holds the proxy dependencies.
type Handler struct {
	cfg        config.ProxyConfig
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
	httpClient *http.Client
}

// New creates a Handler. tracer and meter may be nil, which falls back to
// the global providers.
func New(cfg config.ProxyConfig, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = otel.Tracer("chatgpt-proxy")
	}
	if meter == nil {
		meter = otel.Meter("chatgpt-proxy")
	}
	return &Handler{
		cfg:        cfg,
		logger:     logger,
		tracer:     tracer,
		meter:      meter,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// SetupRouter configures and returns the HTTP handler, CORS included.
func (h *Handler) SetupRouter() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/chatgpt", h.HandleChat).Methods("POST")
	r.HandleFunc("/ws", h.HandleWebSocket).Methods("GET")
	r.HandleFunc("/healthz", h.HandleHealth).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins: h.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(r)
}

// HandleHealth handles GET /healthz
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleChat handles POST /api/chatgpt
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing message in request body"})
		return
	}

	reply, err := h.callUpstream(r.Context(), req.Message)
	if err != nil {
		h.logger.Error("ChatGPT proxy failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "ChatGPT request failed. Check server logs."})
		return
	}
	if reply == "" {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "ChatGPT returned an empty response."})
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{Reply: reply})
}

// callUpstream forwards the user's text to the OpenAI-compatible upstream.
func (h *Handler) callUpstream(ctx context.Context, message string) (string, error) {
	ctx, span := h.tracer.Start(ctx, "openai_api_call")
	defer span.End()

	start := time.Now()

	reqBody := openAIRequest{
		Model:     h.cfg.Model,
		MaxTokens: h.cfg.MaxTokens,
		Messages: []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": message},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", h.cfg.UpstreamURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	req.Header.Set("content-type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}

	var apiResp openAIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	duration := time.Since(start)
	histogram, err := h.meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err == nil {
		histogram.Record(ctx, float64(duration.Milliseconds()))
	}

	if len(apiResp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(apiResp.Choices[0].Message.Content), nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
