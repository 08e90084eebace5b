package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const completionsPath = "/v1/chat/completions"

// Client talks to an OpenAI-compatible chat completions backend. It owns the
// model identifier and credentials; callers only supply the conversation and
// tool declarations for each round.
type Client struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a completion backend client. The http.Client carries no
// overall timeout: a streamed response stays open for as long as the backend
// keeps producing tokens, so deadlines are applied per round via context.
func NewClient(baseURL, model, apiKey string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		apiKey:     apiKey,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// CreateChatStream sends one round's request with streaming enabled and
// returns the raw response body for the caller to feed through a
// FrameScanner. A transport failure or non-success status is a hard error;
// the body is closed before returning in that case.
func (c *Client) CreateChatStream(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	req.Model = c.model
	req.Stream = true

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.Debug("Sending chat stream request",
		zap.String("model", req.Model),
		zap.Int("messages", len(req.Messages)),
		zap.Int("tools", len(req.Tools)))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 400))
		resp.Body.Close()
		return nil, fmt.Errorf("chat backend returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp.Body, nil
}
