package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	slackapi "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
)

func testMessage() outbound.Message {
	return outbound.Message{
		Title:    "🔴 HIGH: High CPU utilization",
		Severity: model.SeverityHigh,
		Fields: []outbound.Field{
			{Label: "Host", Value: "web-01"},
			{Label: "Value", Value: "97% < 100%"},
		},
		Sections: []outbound.Section{
			{Title: "🤖 AI Analysis", Body: "CPU saturated by java"},
			{Title: "📋 Diagnostic report", Body: "load: 12.5"},
		},
		Footer: "Analysis by gemini · confidence 85%",
		Actions: []outbound.Button{
			{Label: "Diagnostic", Action: model.ActionDiagnostic, AlertID: "a-1", Style: outbound.ButtonPrimary},
			{Label: "Fix", Action: model.ActionFix, AlertID: "a-1", Style: outbound.ButtonDanger},
		},
	}
}

type recordedCall struct {
	method string
	form   map[string]string
}

func fakeSlack(t *testing.T, calls *[]recordedCall, mu *sync.Mutex) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseForm()) {
			return
		}
		form := map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		method := strings.TrimPrefix(r.URL.Path, "/")
		mu.Lock()
		*calls = append(*calls, recordedCall{method: method, form: form})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case form["channel"] == "C-missing":
			w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
		case method == "chat.postMessage":
			w.Write([]byte(`{"ok":true,"channel":"C123","ts":"1700000000.000100"}`))
		case method == "chat.update":
			w.Write([]byte(`{"ok":true,"channel":"C123","ts":"1700000000.000100","text":"x"}`))
		default:
			w.Write([]byte(`{"ok":false,"error":"unknown_method"}`))
		}
	}))
}

func TestTransport_SendAndEdit(t *testing.T) {
	var (
		calls []recordedCall
		mu    sync.Mutex
	)
	srv := fakeSlack(t, &calls, &mu)
	defer srv.Close()

	tr := NewTransport(Config{BotToken: "xoxb-test", APIURL: srv.URL + "/"})
	assert.Equal(t, "slack", tr.Name())

	ref, err := tr.Send(context.Background(), "#alerts", testMessage())
	require.NoError(t, err)
	assert.Equal(t, model.MessageRef{Transport: "slack", ChatID: "C123", MessageID: "1700000000.000100"}, ref)

	require.NoError(t, tr.Edit(context.Background(), ref, testMessage()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 2)
	assert.Equal(t, "chat.postMessage", calls[0].method)
	assert.Equal(t, "#alerts", calls[0].form["channel"])
	assert.Contains(t, calls[0].form["blocks"], "diagnostic:a-1")
	assert.Equal(t, "chat.update", calls[1].method)
	assert.Equal(t, "1700000000.000100", calls[1].form["ts"])
}

func TestTransport_SendError(t *testing.T) {
	var (
		calls []recordedCall
		mu    sync.Mutex
	)
	srv := fakeSlack(t, &calls, &mu)
	defer srv.Close()

	tr := NewTransport(Config{BotToken: "xoxb-test", APIURL: srv.URL + "/"})
	_, err := tr.Send(context.Background(), "C-missing", testMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")

	_, err = tr.Send(context.Background(), "", testMessage())
	assert.Error(t, err)
}

func TestBuildBlocks(t *testing.T) {
	blocks := BuildBlocks(testMessage())

	header, ok := blocks[0].(*slackapi.HeaderBlock)
	require.True(t, ok, "first block is %T", blocks[0])
	assert.Equal(t, "🔴 HIGH: High CPU utilization", header.Text.Text)

	fields, ok := blocks[1].(*slackapi.SectionBlock)
	require.True(t, ok)
	require.Len(t, fields.Fields, 2)
	assert.Equal(t, "*Value*\n97% &lt; 100%", fields.Fields[1].Text)

	var report string
	for _, b := range blocks {
		if s, ok := b.(*slackapi.SectionBlock); ok && s.Text != nil && strings.Contains(s.Text.Text, "report") {
			report = s.Text.Text
		}
	}
	assert.Equal(t, "*📋 Diagnostic report*\n```load: 12.5```", report)

	actions, ok := blocks[len(blocks)-1].(*slackapi.ActionBlock)
	require.True(t, ok)
	require.Len(t, actions.Elements.ElementSet, 2)

	btn := actions.Elements.ElementSet[1].(*slackapi.ButtonBlockElement)
	assert.Equal(t, ActionIDPrefix+"fix", btn.ActionID)
	assert.Equal(t, "fix:a-1", btn.Value)
	assert.Equal(t, slackapi.StyleDanger, btn.Style)

	action, alertID, err := model.ParseCallbackData(btn.Value)
	require.NoError(t, err)
	assert.Equal(t, model.ActionFix, action)
	assert.Equal(t, "a-1", alertID)
}

func TestBuildBlocks_NoActionsWhenEmpty(t *testing.T) {
	msg := testMessage()
	msg.Actions = nil
	for _, b := range BuildBlocks(msg) {
		_, isAction := b.(*slackapi.ActionBlock)
		assert.False(t, isAction)
	}
}

func TestBuildBlocks_ClipsLongSections(t *testing.T) {
	msg := testMessage()
	msg.Title = strings.Repeat("T", 400)
	msg.Sections = []outbound.Section{{Title: "🤖 AI Analysis", Body: strings.Repeat("x", 5000)}}

	blocks := BuildBlocks(msg)
	header := blocks[0].(*slackapi.HeaderBlock)
	assert.LessOrEqual(t, len([]rune(header.Text.Text)), maxHeaderLen)

	raw, err := json.Marshal(blocks)
	require.NoError(t, err)
	assert.Less(t, len(raw), 5000)
}
