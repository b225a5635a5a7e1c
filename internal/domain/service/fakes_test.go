package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEvent(t *testing.T, trigger, host, severity string) model.AlertEvent {
	t.Helper()
	e, err := model.NewAlertEvent(model.AlertDraft{
		TriggerName:   trigger,
		HostName:      host,
		Severity:      severity,
		ObservedValue: "97%",
	})
	require.NoError(t, err)
	return e
}

// --- analysis store ---

type memStore struct {
	mu      sync.Mutex
	entries map[model.Fingerprint]model.CacheEntry
	getErr  error
	puts    int
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[model.Fingerprint]model.CacheEntry)}
}

func (s *memStore) Get(_ context.Context, fp model.Fingerprint) (model.CacheEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return model.CacheEntry{}, false, s.getErr
	}
	e, ok := s.entries[fp]
	return e, ok, nil
}

func (s *memStore) Put(_ context.Context, e model.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.Result.Fingerprint] = e
	s.puts++
	return nil
}

func (s *memStore) Delete(_ context.Context, fp model.Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, fp)
	return nil
}

func (s *memStore) Ping(context.Context) error { return nil }

// --- providers ---

type fakeProvider struct {
	name  string
	delay time.Duration
	err   error
	calls atomic.Int32
	// block, when set, makes Analyze wait for it to close and ignore ctx.
	block chan struct{}
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Analyze(ctx context.Context, req outbound.AnalysisRequest) (outbound.AnalysisResponse, error) {
	p.calls.Add(1)
	if p.block != nil {
		<-p.block
	}
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return outbound.AnalysisResponse{}, ctx.Err()
		}
	}
	if p.err != nil {
		return outbound.AnalysisResponse{}, p.err
	}
	return outbound.AnalysisResponse{
		Summary:           fmt.Sprintf("%s looks at %s", p.name, req.TriggerName),
		RootCause:         "runaway process",
		RecommendedAction: "restart the service",
		Confidence:        0.8,
		Model:             p.name + "-model",
	}, nil
}

// --- chat ---

type sentMessage struct {
	Target string
	Msg    outbound.Message
}

type editedMessage struct {
	Ref model.MessageRef
	Msg outbound.Message
}

type fakeChat struct {
	mu      sync.Mutex
	sent    []sentMessage
	edits   []editedMessage
	sendErr error
	seq     int
	// onSend runs at the start of Send, outside the lock.
	onSend func()
}

func (c *fakeChat) Name() string { return "fake" }

func (c *fakeChat) Send(_ context.Context, target string, msg outbound.Message) (model.MessageRef, error) {
	if c.onSend != nil {
		c.onSend()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return model.MessageRef{}, c.sendErr
	}
	c.seq++
	c.sent = append(c.sent, sentMessage{Target: target, Msg: msg})
	return model.MessageRef{Transport: "fake", ChatID: target, MessageID: fmt.Sprintf("m-%d", c.seq)}, nil
}

func (c *fakeChat) Edit(_ context.Context, ref model.MessageRef, msg outbound.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.edits = append(c.edits, editedMessage{Ref: ref, Msg: msg})
	return nil
}

func (c *fakeChat) Sent() []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentMessage(nil), c.sent...)
}

func (c *fakeChat) Edits() []editedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]editedMessage(nil), c.edits...)
}

func (c *fakeChat) LastEdit(t *testing.T) editedMessage {
	t.Helper()
	edits := c.Edits()
	require.NotEmpty(t, edits, "expected at least one edit")
	return edits[len(edits)-1]
}

func messageText(m outbound.Message) string {
	return m.PlainText()
}

func hasButtons(m outbound.Message) bool {
	return len(m.Actions) > 0
}

func contains(s, sub string) bool {
	return strings.Contains(s, sub)
}

// --- gateway ---

type fakeGateway struct {
	mu     sync.Mutex
	calls  []outbound.DiagnosticRequest
	output string
	err    error
	// hang makes Run ignore ctx and block until released.
	hang chan struct{}
}

func (g *fakeGateway) Run(_ context.Context, req outbound.DiagnosticRequest) (outbound.DiagnosticReport, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	g.mu.Unlock()
	if g.hang != nil {
		<-g.hang
	}
	if g.err != nil {
		return outbound.DiagnosticReport{}, g.err
	}
	return outbound.DiagnosticReport{
		JobID:    "job-1",
		Host:     req.Host,
		Action:   req.Action,
		Output:   g.output,
		Duration: 2 * time.Second,
	}, nil
}

func (g *fakeGateway) HealthCheck(context.Context) error { return nil }

func (g *fakeGateway) Calls() []outbound.DiagnosticRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]outbound.DiagnosticRequest(nil), g.calls...)
}

// --- interpreter ---

type fakeInterpreter struct {
	mu      sync.Mutex
	outputs []string
	// unavailable makes every call return the synthetic no-provider result.
	unavailable bool
}

func (i *fakeInterpreter) InterpretDiagnostics(_ context.Context, event model.AlertEvent, output string) model.AnalysisResult {
	i.mu.Lock()
	i.outputs = append(i.outputs, output)
	i.mu.Unlock()
	if i.unavailable {
		return model.UnavailableAnalysis(event.Fingerprint(), nil)
	}
	r := okResult("gemini")
	r.Summary = "java is pinning the CPU"
	r.RootCause = "GC thrash in the app server"
	r.RecommendedAction = "raise the heap or restart java"
	return r
}

func (i *fakeInterpreter) Outputs() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.outputs...)
}

// --- repositories ---

type memSessions struct {
	mu        sync.Mutex
	sessions  map[string]model.AlertSession
	createErr error
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]model.AlertSession)}
}

func (r *memSessions) Create(_ context.Context, s model.AlertSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if _, ok := r.sessions[s.AlertID]; ok {
		return model.ErrSessionExists
	}
	r.sessions[s.AlertID] = s
	return nil
}

func (r *memSessions) Get(_ context.Context, id string) (model.AlertSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return model.AlertSession{}, model.ErrSessionNotFound
	}
	return s, nil
}

func (r *memSessions) Update(_ context.Context, s model.AlertSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.AlertID]; !ok {
		return model.ErrSessionNotFound
	}
	r.sessions[s.AlertID] = s
	return nil
}

func (r *memSessions) ListByState(_ context.Context, states []model.SessionState, limit int) ([]model.AlertSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.AlertSession
	for _, s := range r.sessions {
		for _, st := range states {
			if s.State == st {
				out = append(out, s)
				break
			}
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memSessions) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if s.CreatedAt.Before(before) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *memSessions) put(s model.AlertSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.AlertID] = s
}

func (r *memSessions) all() []model.AlertSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.AlertSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *memSessions) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

type memAudits struct {
	mu   sync.Mutex
	logs []model.AuditLog
}

func (r *memAudits) Create(_ context.Context, l model.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, l)
	return nil
}

func (r *memAudits) List(_ context.Context, f outbound.AuditFilter, _ outbound.PageRequest) (outbound.PageResult[model.AuditLog], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []model.AuditLog
	for _, l := range r.logs {
		if f.EventType != "" && string(l.EventType) != f.EventType {
			continue
		}
		items = append(items, l)
	}
	return outbound.PageResult[model.AuditLog]{Items: items, TotalCount: int64(len(items))}, nil
}

func (r *memAudits) byType(t model.AuditEventType) []model.AuditLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.AuditLog
	for _, l := range r.logs {
		if l.EventType == t {
			out = append(out, l)
		}
	}
	return out
}
