package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/inbound/webhook"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/inbound/webhook/middleware"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/inbound/webhook/parser"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/inbound"
)

// fakeReceiver records ingested events for assertion in tests.
type fakeReceiver struct {
	mu     sync.Mutex
	events []model.AlertEvent
	opts   []inbound.IngestOptions
	err    error
}

func (f *fakeReceiver) Ingest(_ context.Context, event model.AlertEvent, opts inbound.IngestOptions) (inbound.IngestReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return inbound.IngestReceipt{}, f.err
	}
	f.events = append(f.events, event)
	f.opts = append(f.opts, opts)
	return inbound.IngestReceipt{
		AlertID:     event.ID,
		Fingerprint: event.Fingerprint(),
		Status:      inbound.IngestAnalyzed,
		Analysis:    &model.AnalysisResult{Summary: "CPU saturated"},
	}, nil
}

func (f *fakeReceiver) received() []model.AlertEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.AlertEvent(nil), f.events...)
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func buildRegistry() *parser.Registry {
	reg := parser.NewRegistry()
	reg.Register(parser.NewAlertManagerParser())
	reg.Register(parser.NewZabbixParser(nil))
	return reg
}

func newRoutes(t *testing.T, receiver inbound.AlertReceiverPort, auth map[string]webhook.SourceAuth) http.Handler {
	t.Helper()
	h := webhook.NewHandler(buildRegistry(), receiver, discard())
	routes, err := webhook.NewServer(webhook.ServerConfig{Auth: auth}, h, discard()).SetupRoutes()
	if err != nil {
		t.Fatalf("SetupRoutes: %v", err)
	}
	return routes
}

type accepted struct {
	Accepted int `json:"accepted"`
	Alerts   []struct {
		AlertID     string `json:"alert_id"`
		Status      string `json:"status"`
		Fingerprint string `json:"fingerprint"`
	} `json:"alerts"`
}

const zabbixPayload = `{
	"trigger_name": "High CPU utilization",
	"host_name": "web-01",
	"trigger_severity": "High",
	"trigger_value": "97%",
	"event_id": "1001"
}`

func post(t *testing.T, h http.Handler, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Zabbix_Accepted(t *testing.T) {
	receiver := &fakeReceiver{}
	h := newRoutes(t, receiver, nil)

	rec := post(t, h, "/webhook/zabbix", zabbixPayload, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp accepted
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Accepted != 1 || len(resp.Alerts) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Alerts[0].Status != "analyzed" || resp.Alerts[0].AlertID == "" || resp.Alerts[0].Fingerprint == "" {
		t.Errorf("unexpected receipt %+v", resp.Alerts[0])
	}

	events := receiver.received()
	if len(events) != 1 {
		t.Fatalf("expected 1 ingested event, got %d", len(events))
	}
	if events[0].TriggerName != "High CPU utilization" || events[0].Severity != model.SeverityHigh {
		t.Errorf("unexpected event %+v", events[0])
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestHandler_GenericRouteAutoDetects(t *testing.T) {
	receiver := &fakeReceiver{}
	h := newRoutes(t, receiver, nil)

	amPayload := `{"alerts":[{"status":"firing","labels":{"alertname":"NodeDown","instance":"node-3:9100","severity":"page"}}]}`
	rec := post(t, h, "/webhook", amPayload, map[string]string{"User-Agent": "Alertmanager/0.27.0"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	ev := receiver.received()[0]
	if ev.Source != model.AlertSourceAlertManager || ev.HostName != "node-3" || ev.Severity != model.SeverityDisaster {
		t.Errorf("unexpected event %+v", ev)
	}

	rec = post(t, h, "/webhook", zabbixPayload, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if receiver.received()[1].Source != model.AlertSourceZabbix {
		t.Error("expected zabbix source for plain /webhook")
	}
}

func TestHandler_ValidationError_Returns400(t *testing.T) {
	receiver := &fakeReceiver{}
	h := newRoutes(t, receiver, nil)

	tests := map[string]string{
		"missing severity": `{"trigger_name":"x","host_name":"h"}`,
		"unknown severity": `{"trigger_name":"x","host_name":"h","trigger_severity":"Catastrophic"}`,
		"missing host":     `{"trigger_name":"x","trigger_severity":"High"}`,
		"malformed json":   `{"trigger_name":`,
	}
	for name, body := range tests {
		rec := post(t, h, "/webhook/zabbix", body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("%s: content type %q", name, ct)
		}
	}
	if n := len(receiver.received()); n != 0 {
		t.Errorf("rejected payloads must not start flows, got %d", n)
	}
}

func TestHandler_ValidationError_ListsFields(t *testing.T) {
	h := newRoutes(t, &fakeReceiver{}, nil)
	rec := post(t, h, "/webhook/zabbix", `{"host_name":"h"}`, nil)

	var body struct {
		Fields []struct {
			Field string `json:"field"`
		} `json:"fields"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	got := map[string]bool{}
	for _, f := range body.Fields {
		got[f.Field] = true
	}
	if !got["trigger_name"] || !got["severity"] {
		t.Errorf("expected trigger_name and severity errors, got %+v", body.Fields)
	}
}

func TestHandler_BatchRejectedAsWhole(t *testing.T) {
	receiver := &fakeReceiver{}
	h := newRoutes(t, receiver, nil)

	body := `[{"trigger_name":"A","host_name":"h1","severity":"High"},{"trigger_name":"B","severity":"High"}]`
	if rec := post(t, h, "/webhook/zabbix", body, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(receiver.received()) != 0 {
		t.Error("no alert of a rejected batch may be ingested")
	}
}

func TestHandler_CacheBypass(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		header map[string]string
		want   bool
	}{
		{name: "none", path: "/webhook/zabbix", body: zabbixPayload},
		{name: "query", path: "/webhook/zabbix?refresh=true", body: zabbixPayload, want: true},
		{name: "header", path: "/webhook/zabbix", body: zabbixPayload, header: map[string]string{"X-Cache-Bypass": "1"}, want: true},
		{name: "body bool", path: "/webhook/zabbix", body: `{"trigger_name":"A","host_name":"h","severity":"High","force_refresh":true}`, want: true},
		{name: "body string", path: "/webhook/zabbix", body: `{"trigger_name":"A","host_name":"h","severity":"High","force_refresh":"true"}`, want: true},
		{name: "body false", path: "/webhook/zabbix", body: `{"trigger_name":"A","host_name":"h","severity":"High","force_refresh":"false"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			receiver := &fakeReceiver{}
			h := newRoutes(t, receiver, nil)
			if rec := post(t, h, tc.path, tc.body, tc.header); rec.Code != http.StatusAccepted {
				t.Fatalf("expected 202, got %d", rec.Code)
			}
			if got := receiver.opts[0].BypassCache; got != tc.want {
				t.Errorf("BypassCache = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestHandler_ReceiverError_Returns500(t *testing.T) {
	h := newRoutes(t, &fakeReceiver{err: errors.New("boom")}, nil)
	if rec := post(t, h, "/webhook/zabbix", zabbixPayload, nil); rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestHandler_EmptyAlerts_Returns204(t *testing.T) {
	h := newRoutes(t, &fakeReceiver{}, nil)
	if rec := post(t, h, "/webhook/alertmanager", `{"alerts":[]}`, nil); rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestHandler_PerSourceAuth(t *testing.T) {
	receiver := &fakeReceiver{}
	h := newRoutes(t, receiver, map[string]webhook.SourceAuth{
		"zabbix":       {Mode: middleware.AuthAPIKey, Secret: "zbx-key"},
		"alertmanager": {Mode: middleware.AuthBearer, Secret: "am-token"},
	})

	if rec := post(t, h, "/webhook/zabbix", zabbixPayload, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("zabbix without key: expected 401, got %d", rec.Code)
	}
	if rec := post(t, h, "/webhook/zabbix", zabbixPayload, map[string]string{"X-API-Key": "zbx-key"}); rec.Code != http.StatusAccepted {
		t.Errorf("zabbix with key: expected 202, got %d", rec.Code)
	}
	if rec := post(t, h, "/webhook", zabbixPayload, map[string]string{"X-API-Key": "zbx-key"}); rec.Code != http.StatusAccepted {
		t.Errorf("generic route uses zabbix auth: expected 202, got %d", rec.Code)
	}

	am := `{"alerts":[{"status":"firing","labels":{"alertname":"A","instance":"h","severity":"warning"}}]}`
	if rec := post(t, h, "/webhook/alertmanager", am, map[string]string{"X-API-Key": "zbx-key"}); rec.Code != http.StatusUnauthorized {
		t.Errorf("alertmanager with zabbix key: expected 401, got %d", rec.Code)
	}
	if rec := post(t, h, "/webhook/alertmanager", am, map[string]string{"Authorization": "Bearer am-token"}); rec.Code != http.StatusAccepted {
		t.Errorf("alertmanager with token: expected 202, got %d", rec.Code)
	}
}

func TestSetupRoutes_UnknownAuthMode(t *testing.T) {
	h := webhook.NewHandler(buildRegistry(), &fakeReceiver{}, discard())
	_, err := webhook.NewServer(webhook.ServerConfig{
		Auth: map[string]webhook.SourceAuth{"zabbix": {Mode: "oauth"}},
	}, h, discard()).SetupRoutes()
	if err == nil {
		t.Error("expected error for unknown auth mode")
	}
}

func TestHealthHandler(t *testing.T) {
	h := newRoutes(t, &fakeReceiver{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}
