// Package openai is an analysis provider for OpenAI-compatible chat
// completion APIs such as Groq.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/outbound/llm/extract"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/outbound/llm/prompt"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
)

// DefaultBaseURL points at Groq's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

type Config struct {
	Name        string
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
	// JSONMode requests response_format json_object.
	JSONMode bool
}

// Client implements outbound.AnalysisProvider over /chat/completions.
type Client struct {
	config     Config
	httpClient *http.Client
	builder    *prompt.Builder
}

func NewClient(cfg Config, builder *prompt.Builder) *Client {
	if cfg.Name == "" {
		cfg.Name = "groq"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
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

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *Client) Name() string { return c.config.Name }

// Analyze sends the alert prompt and extracts the analysis from the first choice.
func (c *Client) Analyze(ctx context.Context, req outbound.AnalysisRequest) (outbound.AnalysisResponse, error) {
	system, err := c.builder.System()
	if err != nil {
		return outbound.AnalysisResponse{}, fmt.Errorf("building system prompt: %w", err)
	}
	user, err := c.builder.Analyze(req)
	if err != nil {
		return outbound.AnalysisResponse{}, fmt.Errorf("building analyze prompt: %w", err)
	}

	body := chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	}
	if c.config.JSONMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var chatResp chatResponse
	if err := c.do(ctx, http.MethodPost, "/chat/completions", body, &chatResp); err != nil {
		return outbound.AnalysisResponse{}, err
	}
	if len(chatResp.Choices) == 0 {
		return outbound.AnalysisResponse{}, fmt.Errorf("%s: %w: no choices", c.config.Name, outbound.ErrMalformedResponse)
	}

	resp, err := extract.Analysis(chatResp.Choices[0].Message.Content)
	if err != nil {
		return outbound.AnalysisResponse{}, fmt.Errorf("parsing %s response: %w", c.config.Name, err)
	}
	resp.Model = chatResp.Model
	if resp.Model == "" {
		resp.Model = c.config.Model
	}
	return resp, nil
}

// HealthCheck lists models to verify the endpoint and key.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/models", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", c.config.Name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", c.config.Name, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w: %s", c.config.Name, outbound.ErrRateLimited, apiMessage(respBody))
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%s: unexpected status %d: %s", c.config.Name, resp.StatusCode, apiMessage(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding %s response: %w: %v", c.config.Name, outbound.ErrMalformedResponse, err)
	}
	return nil
}

func apiMessage(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}
