// Package ansible runs playbooks through the Ansible executor HTTP API.
package ansible

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/outbound/diagnostics"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
)

type Config struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	Playbooks map[model.Action]string
}

// Gateway implements outbound.DiagnosticsGateway over the executor API.
type Gateway struct {
	config     Config
	allowlist  *diagnostics.Allowlist
	httpClient *http.Client
}

func NewGateway(cfg Config, allowlist *diagnostics.Allowlist) *Gateway {
	if cfg.Playbooks == nil {
		cfg.Playbooks = diagnostics.DefaultPlaybooks()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Gateway{
		config:     cfg,
		allowlist:  allowlist,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

var _ outbound.DiagnosticsGateway = (*Gateway)(nil)

type runRequest struct {
	Playbook   string            `json:"playbook"`
	TargetHost string            `json:"target_host"`
	ExtraVars  map[string]string `json:"extra_vars"`
}

type runResponse struct {
	JobID    string         `json:"job_id"`
	Status   string         `json:"status"`
	Result   map[string]any `json:"result"`
	Error    string         `json:"error"`
	Duration float64        `json:"duration"`
}

// errorResponse covers both executor error shapes: request validation
// failures carry "detail", failed runs carry "error".
type errorResponse struct {
	Detail string `json:"detail"`
	Error  string `json:"error"`
}

// Run executes the playbook mapped to req.Action on req.Host.
func (g *Gateway) Run(ctx context.Context, req outbound.DiagnosticRequest) (outbound.DiagnosticReport, error) {
	playbook, err := diagnostics.PlaybookFor(g.config.Playbooks, req.Action)
	if err != nil {
		return outbound.DiagnosticReport{}, err
	}
	if err := g.allowlist.Validate(playbook, req); err != nil {
		return outbound.DiagnosticReport{}, err
	}

	encoded, err := json.Marshal(runRequest{
		Playbook:   playbook,
		TargetHost: req.Host,
		ExtraVars:  diagnostics.ExtraVars(req),
	})
	if err != nil {
		return outbound.DiagnosticReport{}, fmt.Errorf("encoding playbook request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.BaseURL+"/api/v1/playbook/run", bytes.NewReader(encoded))
	if err != nil {
		return outbound.DiagnosticReport{}, fmt.Errorf("creating playbook request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.config.APIKey != "" {
		httpReq.Header.Set("X-API-Key", g.config.APIKey)
	}

	started := time.Now()
	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return outbound.DiagnosticReport{}, transportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return outbound.DiagnosticReport{}, transportError(err)
	}
	if resp.StatusCode != http.StatusOK {
		return outbound.DiagnosticReport{}, &outbound.GatewayError{
			Reason: fmt.Sprintf("executor returned %d: %s", resp.StatusCode, detail(body)),
		}
	}

	var run runResponse
	if err := json.Unmarshal(body, &run); err != nil {
		return outbound.DiagnosticReport{}, &outbound.GatewayError{Reason: "unreadable executor response", Err: err}
	}
	if run.Status != "success" {
		reason := run.Error
		if reason == "" {
			reason = "playbook finished with status " + run.Status
		}
		return outbound.DiagnosticReport{}, &outbound.GatewayError{Reason: reason}
	}

	duration := time.Duration(run.Duration * float64(time.Second))
	if duration <= 0 {
		duration = time.Since(started)
	}
	return outbound.DiagnosticReport{
		JobID:    run.JobID,
		Host:     req.Host,
		Action:   req.Action,
		Output:   FormatResult(run.Result),
		Duration: duration,
	}, nil
}

// HealthCheck performs GET /health on the executor.
func (g *Gateway) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.config.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating health check request: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ansible executor health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ansible executor health check: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// FormatResult renders the playbook result as sorted "key: value" lines.
func FormatResult(result map[string]any) string {
	if len(result) == 0 {
		return "Playbook completed with no output"
	}
	keys := make([]string, 0, len(result))
	for k := range result {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, formatValue(result[k]))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return "-"
	case float64, bool:
		return fmt.Sprint(x)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(out)
}

func transportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &outbound.GatewayError{Reason: "executor did not answer in time", Timeout: true, Err: err}
	}
	return &outbound.GatewayError{Reason: "executor unreachable", Err: err}
}

func detail(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Detail != "" {
			return e.Detail
		}
		if e.Error != "" {
			return e.Error
		}
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return strings.ToValidUTF8(strings.TrimSpace(string(body)), "")
}
