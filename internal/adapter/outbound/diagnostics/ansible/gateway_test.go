package ansible

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/outbound/diagnostics"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
)

func newTestGateway(url string, timeout time.Duration) *Gateway {
	allow := diagnostics.NewAllowlist(diagnostics.AllowlistConfig{
		Playbooks: []string{"check_service", "restart_service", "gather_system_metrics", "fix_common_issues"},
	})
	return NewGateway(Config{BaseURL: url, APIKey: "secret", Timeout: timeout}, allow)
}

func diagRequest(action model.Action) outbound.DiagnosticRequest {
	return outbound.DiagnosticRequest{
		AlertID:    "alert-1",
		Host:       "web-01",
		Action:     action,
		Parameters: map[string]string{"trigger_name": "High CPU"},
	}
}

func TestRun_Success(t *testing.T) {
	var got runRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/playbook/run", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(runResponse{
			JobID:    "job-42",
			Status:   "success",
			Result:   map[string]any{"cpu_usage": "97%", "top_process": "java", "load": 12.5},
			Duration: 3.2,
		})
	}))
	defer srv.Close()

	report, err := newTestGateway(srv.URL, 5*time.Second).Run(context.Background(), diagRequest(model.ActionDiagnostic))
	require.NoError(t, err)

	assert.Equal(t, "check_service", got.Playbook)
	assert.Equal(t, "web-01", got.TargetHost)
	assert.Equal(t, "alert-1", got.ExtraVars["alert_id"])
	assert.Equal(t, "High CPU", got.ExtraVars["trigger_name"])

	assert.Equal(t, "job-42", report.JobID)
	assert.Equal(t, 3200*time.Millisecond, report.Duration)
	assert.Equal(t, "cpu_usage: 97%\nload: 12.5\ntop_process: java", report.Output)
}

func TestRun_PlaybookFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(runResponse{JobID: "job-1", Status: "failed", Error: "Timeout after 300s"})
	}))
	defer srv.Close()

	_, err := newTestGateway(srv.URL, 5*time.Second).Run(context.Background(), diagRequest(model.ActionRestart))
	var ge *outbound.GatewayError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, "Timeout after 300s", ge.Reason)
}

func TestRun_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Playbook not found: fix_common_issues"}`))
	}))
	defer srv.Close()

	_, err := newTestGateway(srv.URL, 5*time.Second).Run(context.Background(), diagRequest(model.ActionFix))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Playbook not found")
}

func TestRun_ServerErrorCarriesRunError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"status":"failed","error":"ansible-playbook exited with code 4: host unreachable"}`))
	}))
	defer srv.Close()

	_, err := newTestGateway(srv.URL, 5*time.Second).Run(context.Background(), diagRequest(model.ActionDiagnostic))
	var ge *outbound.GatewayError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, "executor returned 500: ansible-playbook exited with code 4: host unreachable", ge.Reason)
	assert.NotContains(t, ge.Reason, `"status"`)
}

func TestDetail_FallsBackToRawBody(t *testing.T) {
	assert.Equal(t, "upstream gone", detail([]byte("  upstream gone\n")))
	assert.Equal(t, "Playbook not found", detail([]byte(`{"detail":"Playbook not found","error":"ignored"}`)))
}

func TestRun_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newTestGateway(srv.URL, 5*time.Second).Run(ctx, diagRequest(model.ActionDiagnostic))

	var ge *outbound.GatewayError
	require.True(t, errors.As(err, &ge))
	assert.True(t, ge.Timeout)
}

func TestRun_RejectedBeforeCall(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()
	g := newTestGateway(srv.URL, 5*time.Second)

	req := diagRequest(model.ActionDiagnostic)
	req.Host = "web-01; shutdown"
	_, err := g.Run(context.Background(), req)
	assert.Error(t, err)

	_, err = g.Run(context.Background(), diagRequest(model.ActionAck))
	assert.Error(t, err)
	assert.False(t, called)
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer srv.Close()

	assert.NoError(t, newTestGateway(srv.URL, time.Second).HealthCheck(context.Background()))
}

func TestFormatResult(t *testing.T) {
	assert.Equal(t, "Playbook completed with no output", FormatResult(nil))
	assert.Equal(t, "disks: [\"/\",\"/var\"]\nok: true", FormatResult(map[string]any{
		"ok":    true,
		"disks": []any{"/", "/var"},
	}))
}
