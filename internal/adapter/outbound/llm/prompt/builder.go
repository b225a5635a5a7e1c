package prompt

import (
	"bytes"
	"embed"
	"text/template"
	"time"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Builder renders the prompts shared by every analysis provider.
type Builder struct {
	templates *template.Template
	language  string
}

// NewBuilder parses all embedded templates and returns a Builder. language
// selects the answer language; empty means the model's default.
func NewBuilder(language string) (*Builder, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, err
	}
	return &Builder{templates: tmpl, language: language}, nil
}

type systemInput struct {
	Language string
}

type analyzeInput struct {
	TriggerName   string
	HostName      string
	Severity      string
	ObservedValue string
	OccurredAt    string
	Description   string
	Diagnostics   string
}

// System renders the instruction prompt describing the expected JSON answer.
func (b *Builder) System() (string, error) {
	var buf bytes.Buffer
	if err := b.templates.ExecuteTemplate(&buf, "system.tmpl", systemInput{Language: b.language}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Analyze renders the per-alert user prompt.
func (b *Builder) Analyze(req outbound.AnalysisRequest) (string, error) {
	occurred := "N/A"
	if !req.OccurredAt.IsZero() {
		occurred = req.OccurredAt.UTC().Format(time.RFC3339)
	}
	var buf bytes.Buffer
	err := b.templates.ExecuteTemplate(&buf, "analyze.tmpl", analyzeInput{
		TriggerName:   req.TriggerName,
		HostName:      req.HostName,
		Severity:      req.Severity,
		ObservedValue: req.ObservedValue,
		OccurredAt:    occurred,
		Description:   req.Description,
		Diagnostics:   req.DiagnosticOutput,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Combined joins the system and user prompts for backends without a separate
// system role.
func (b *Builder) Combined(req outbound.AnalysisRequest) (string, error) {
	sys, err := b.System()
	if err != nil {
		return "", err
	}
	user, err := b.Analyze(req)
	if err != nil {
		return "", err
	}
	return sys + "\n\n" + user, nil
}
