package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/outbound/llm/extract"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/outbound/llm/prompt"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
)

// Config holds configuration for the Gemini client.
type Config struct {
	Name            string
	APIKey          string
	Model           string
	Temperature     float64
	MaxOutputTokens int
}

// generator is the subset of *genai.Models used by the client.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client implements outbound.AnalysisProvider on the Gemini API.
type Client struct {
	config  Config
	models  generator
	builder *prompt.Builder
}

// NewClient creates a Gemini client.
func NewClient(ctx context.Context, cfg Config, builder *prompt.Builder) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: missing API key")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return newClient(cfg, gc.Models, builder), nil
}

func newClient(cfg Config, models generator, builder *prompt.Builder) *Client {
	if cfg.Name == "" {
		cfg.Name = "gemini"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	return &Client{config: cfg, models: models, builder: builder}
}

var _ outbound.AnalysisProvider = (*Client)(nil)

// Name identifies the provider in the fallback chain.
func (c *Client) Name() string { return c.config.Name }

// Analyze asks Gemini for a JSON analysis of the alert.
func (c *Client) Analyze(ctx context.Context, req outbound.AnalysisRequest) (outbound.AnalysisResponse, error) {
	system, err := c.builder.System()
	if err != nil {
		return outbound.AnalysisResponse{}, fmt.Errorf("building system prompt: %w", err)
	}
	user, err := c.builder.Analyze(req)
	if err != nil {
		return outbound.AnalysisResponse{}, fmt.Errorf("building analyze prompt: %w", err)
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(float32(c.config.Temperature)),
		ResponseMIMEType:  "application/json",
	}
	if c.config.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(c.config.MaxOutputTokens)
	}

	res, err := c.models.GenerateContent(ctx, c.config.Model, genai.Text(user), cfg)
	if err != nil {
		return outbound.AnalysisResponse{}, classify(err)
	}
	if res == nil {
		return outbound.AnalysisResponse{}, fmt.Errorf("gemini: %w: empty response", outbound.ErrMalformedResponse)
	}

	resp, err := extract.Analysis(res.Text())
	if err != nil {
		return outbound.AnalysisResponse{}, fmt.Errorf("parsing gemini response: %w", err)
	}
	resp.Model = c.config.Model
	if res.ModelVersion != "" {
		resp.Model = res.ModelVersion
	}
	return resp, nil
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return fmt.Errorf("gemini: %w: %s", outbound.ErrRateLimited, apiErr.Message)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr.Code == http.StatusTooManyRequests {
		return fmt.Errorf("gemini: %w: %s", outbound.ErrRateLimited, apiErrPtr.Message)
	}
	if strings.Contains(err.Error(), "RESOURCE_EXHAUSTED") {
		return fmt.Errorf("gemini: %w: %v", outbound.ErrRateLimited, err)
	}
	return fmt.Errorf("calling gemini: %w", err)
}
