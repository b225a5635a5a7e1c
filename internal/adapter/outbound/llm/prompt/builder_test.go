package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
)

func newTestBuilder(t *testing.T, language string) *Builder {
	t.Helper()
	b, err := NewBuilder(language)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	return b
}

func TestAnalyze(t *testing.T) {
	b := newTestBuilder(t, "")

	out, err := b.Analyze(outbound.AnalysisRequest{
		TriggerName:   "High CPU utilization",
		HostName:      "web-01",
		Severity:      "High",
		ObservedValue: "97.3%",
		OccurredAt:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Description:   "CPU above 90% for 5m",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	checks := []string{
		"High CPU utilization",
		"web-01",
		"Severity: High",
		"97.3%",
		"2026-03-01T10:00:00Z",
		"CPU above 90% for 5m",
	}
	for _, want := range checks {
		if !strings.Contains(out, want) {
			t.Errorf("analyze prompt missing %q", want)
		}
	}
}

func TestAnalyze_OptionalFieldsOmitted(t *testing.T) {
	b := newTestBuilder(t, "")

	out, err := b.Analyze(outbound.AnalysisRequest{TriggerName: "Disk full", HostName: "db-01", Severity: "Disaster"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if strings.Contains(out, "Description:") {
		t.Error("empty description should not be rendered")
	}
	if !strings.Contains(out, "Value: N/A") || !strings.Contains(out, "Time: N/A") {
		t.Errorf("expected N/A placeholders, got:\n%s", out)
	}
}

func TestAnalyze_DiagnosticOutput(t *testing.T) {
	b := newTestBuilder(t, "")

	out, err := b.Analyze(outbound.AnalysisRequest{
		TriggerName:      "High CPU",
		HostName:         "web-01",
		Severity:         "High",
		DiagnosticOutput: "top: java 340% cpu",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !strings.Contains(out, "Diagnostic output collected from the host") || !strings.Contains(out, "java 340% cpu") {
		t.Errorf("diagnostic output not rendered:\n%s", out)
	}
	if strings.Contains(out, "Analyze this alert") {
		t.Error("diagnostic prompt should ask for an interpretation, not a plain analysis")
	}

	plain, err := b.Analyze(outbound.AnalysisRequest{TriggerName: "High CPU", HostName: "web-01", Severity: "High"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if strings.Contains(plain, "Diagnostic output") {
		t.Error("plain prompt should not mention diagnostic output")
	}
}

func TestSystem(t *testing.T) {
	out, err := newTestBuilder(t, "Vietnamese").System()
	if err != nil {
		t.Fatalf("System: %v", err)
	}
	for _, want := range []string{"summary", "root_cause", "recommended_action", "confidence", "Vietnamese"} {
		if !strings.Contains(out, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}

	plain, err := newTestBuilder(t, "").System()
	if err != nil {
		t.Fatalf("System: %v", err)
	}
	if strings.Contains(plain, "Write all values in") {
		t.Error("language line should be omitted when no language is set")
	}
}

func TestCombined(t *testing.T) {
	out, err := newTestBuilder(t, "").Combined(outbound.AnalysisRequest{TriggerName: "t", HostName: "h", Severity: "Warning"})
	if err != nil {
		t.Fatalf("Combined: %v", err)
	}
	if !strings.Contains(out, "recommended_action") || !strings.Contains(out, "Host: h") {
		t.Errorf("combined prompt incomplete:\n%s", out)
	}
}
