package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/outbound/llm/extract"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/outbound/llm/prompt"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
)

// Config holds configuration for the Ollama client.
type Config struct {
	Name        string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	Temperature float64
}

// Client implements outbound.AnalysisProvider using the Ollama chat API.
type Client struct {
	config     Config
	httpClient *http.Client
	builder    *prompt.Builder
}

// NewClient creates a new Ollama Client with the given configuration.
func NewClient(cfg Config, builder *prompt.Builder) *Client {
	if cfg.Name == "" {
		cfg.Name = "ollama"
	}
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		builder:    builder,
	}
}

var (
	_ outbound.AnalysisProvider = (*Client)(nil)
	_ outbound.HealthChecker    = (*Client)(nil)
)

// --- Ollama API types ---

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
	Options  chatOptions   `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
}

type chatResponse struct {
	Model         string      `json:"model"`
	Message       chatMessage `json:"message"`
	TotalDuration int64       `json:"total_duration"`
	EvalCount     int         `json:"eval_count"`
}

// Name identifies the provider in the fallback chain.
func (c *Client) Name() string { return c.config.Name }

// Analyze builds the analysis prompt, calls Ollama and extracts the answer.
func (c *Client) Analyze(ctx context.Context, req outbound.AnalysisRequest) (outbound.AnalysisResponse, error) {
	system, err := c.builder.System()
	if err != nil {
		return outbound.AnalysisResponse{}, fmt.Errorf("building system prompt: %w", err)
	}
	user, err := c.builder.Analyze(req)
	if err != nil {
		return outbound.AnalysisResponse{}, fmt.Errorf("building analyze prompt: %w", err)
	}

	raw, model, err := c.doChat(ctx, []chatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	})
	if err != nil {
		return outbound.AnalysisResponse{}, err
	}

	resp, err := extract.Analysis(raw)
	if err != nil {
		return outbound.AnalysisResponse{}, fmt.Errorf("parsing ollama response: %w", err)
	}
	resp.Model = model
	return resp, nil
}

// HealthCheck performs GET /api/tags to verify Ollama is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	url := c.config.BaseURL + "/api/tags"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama health check: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// --- Internal helpers ---

// doChat sends a chat request with retry for transient server errors.
func (c *Client) doChat(ctx context.Context, messages []chatMessage) (string, string, error) {
	body := chatRequest{
		Model:    c.config.Model,
		Messages: messages,
		Stream:   false,
		Format:   "json",
		Options:  chatOptions{Temperature: c.config.Temperature},
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return "", "", fmt.Errorf("encoding chat request: %w", err)
	}

	maxRetries := c.config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err := c.postChat(ctx, encoded)
		if err == nil {
			model := resp.Model
			if model == "" {
				model = c.config.Model
			}
			return resp.Message.Content, model, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}
	}
	return "", "", lastErr
}

func (c *Client) postChat(ctx context.Context, body []byte) (chatResponse, error) {
	url := c.config.BaseURL + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return chatResponse{}, fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return chatResponse{}, fmt.Errorf("calling ollama: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return chatResponse{}, fmt.Errorf("reading ollama response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return chatResponse{}, fmt.Errorf("ollama: %w", outbound.ErrRateLimited)
	}
	if resp.StatusCode >= 500 {
		return chatResponse{}, fmt.Errorf("ollama server error %d: %s", resp.StatusCode, string(respBody))
	}
	if resp.StatusCode != http.StatusOK {
		return chatResponse{}, fmt.Errorf("ollama unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return chatResponse{}, fmt.Errorf("decoding ollama response: %w: %v", outbound.ErrMalformedResponse, err)
	}
	return chatResp, nil
}
