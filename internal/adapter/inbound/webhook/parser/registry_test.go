package parser_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/inbound/webhook/parser"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
)

// stubParser is a test double implementing inbound.WebhookParser.
type stubParser struct {
	source   string
	canParse bool
}

func (s *stubParser) Source() string                { return s.source }
func (s *stubParser) CanParse(r *http.Request) bool { return s.canParse }
func (s *stubParser) Parse(ctx context.Context, r *http.Request) ([]model.AlertDraft, error) {
	return nil, nil
}

func TestRegistry_Register_and_Sources(t *testing.T) {
	reg := parser.NewRegistry()

	if sources := reg.Sources(); len(sources) != 0 {
		t.Fatalf("expected 0 sources, got %d", len(sources))
	}

	reg.Register(&stubParser{source: "zabbix"})
	reg.Register(&stubParser{source: "alertmanager"})

	sources := reg.Sources()
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	if sources[0] != "zabbix" || sources[1] != "alertmanager" {
		t.Errorf("unexpected sources: %v", sources)
	}
}

func TestRegistry_Resolve_ReturnsFirstMatch(t *testing.T) {
	reg := parser.NewRegistry()
	reg.Register(&stubParser{source: "no-match", canParse: false})
	reg.Register(&stubParser{source: "zabbix", canParse: true})
	reg.Register(&stubParser{source: "also-matches", canParse: true})

	req, _ := http.NewRequest(http.MethodPost, "/webhook", nil)
	p, err := reg.Resolve(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Source() != "zabbix" {
		t.Errorf("expected zabbix, got %s", p.Source())
	}
}

func TestRegistry_Resolve_NoMatch(t *testing.T) {
	reg := parser.NewRegistry()
	reg.Register(&stubParser{source: "no-match", canParse: false})

	req, _ := http.NewRequest(http.MethodPost, "/webhook", nil)
	_, err := reg.Resolve(req)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestRegistry_Resolve_EmptyRegistry(t *testing.T) {
	reg := parser.NewRegistry()
	req, _ := http.NewRequest(http.MethodPost, "/webhook", nil)
	_, err := reg.Resolve(req)
	if err == nil {
		t.Fatal("expected error for empty registry")
	}
}

func TestRegistry_BuiltinRouting(t *testing.T) {
	reg := parser.NewRegistry()
	reg.Register(parser.NewAlertManagerParser())
	reg.Register(parser.NewZabbixParser(nil))

	tests := []struct {
		path      string
		userAgent string
		want      string
	}{
		{path: "/webhook/zabbix", want: "zabbix"},
		{path: "/webhook", want: "zabbix"},
		{path: "/webhook/alertmanager", want: "alertmanager"},
		{path: "/webhook", userAgent: "Alertmanager/0.27.0", want: "alertmanager"},
	}
	for _, tc := range tests {
		req, _ := http.NewRequest(http.MethodPost, tc.path, nil)
		if tc.userAgent != "" {
			req.Header.Set("User-Agent", tc.userAgent)
		}
		p, err := reg.Resolve(req)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.path, err)
		}
		if p.Source() != tc.want {
			t.Errorf("%s (%q): got %s, want %s", tc.path, tc.userAgent, p.Source(), tc.want)
		}
	}

	req, _ := http.NewRequest(http.MethodPost, "/webhook/grafana", nil)
	if _, err := reg.Resolve(req); err == nil {
		t.Error("expected no parser for /webhook/grafana")
	}
}

func TestRegistry_RegisterReplacesSameSource(t *testing.T) {
	reg := parser.NewRegistry()
	reg.Register(&stubParser{source: "zabbix", canParse: false})
	reg.Register(&stubParser{source: "alertmanager", canParse: false})
	reg.Register(&stubParser{source: "Zabbix", canParse: true})

	sources := reg.Sources()
	if len(sources) != 2 || sources[0] != "zabbix" {
		t.Fatalf("unexpected sources: %v", sources)
	}

	req, _ := http.NewRequest(http.MethodPost, "/webhook", nil)
	p, err := reg.Resolve(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Source() != "Zabbix" {
		t.Errorf("expected replacement parser, got %s", p.Source())
	}
}

func TestRegistry_DedicatedRouteIgnoresCanParse(t *testing.T) {
	reg := parser.NewRegistry()
	reg.Register(&stubParser{source: "alertmanager", canParse: false})

	req, _ := http.NewRequest(http.MethodPost, "/webhook/alertmanager/", nil)
	p, err := reg.Resolve(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Source() != "alertmanager" {
		t.Errorf("got %s", p.Source())
	}

	if _, ok := reg.Lookup("ALERTMANAGER"); !ok {
		t.Error("lookup should be case-insensitive")
	}
	if _, ok := reg.Lookup("grafana"); ok {
		t.Error("unexpected parser for grafana")
	}
}
