package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
)

// zabbixKeys lists, per draft field, the payload keys tried in order. The
// macro-style names cover media types that post raw {MACRO} parameters.
var zabbixKeys = struct {
	trigger, host, severity, value, eventTime, eventDate, description, eventID, status []string
}{
	trigger:     []string{"trigger_name", "TRIGGER.NAME", "name"},
	host:        []string{"host_name", "HOST.NAME", "host"},
	severity:    []string{"trigger_severity", "severity", "TRIGGER.SEVERITY"},
	value:       []string{"trigger_value", "observed_value", "ITEM.VALUE", "value"},
	eventTime:   []string{"event_time", "occurred_at", "EVENT.TIME"},
	eventDate:   []string{"event_date", "EVENT.DATE"},
	description: []string{"trigger_description", "description", "TRIGGER.DESCRIPTION"},
	eventID:     []string{"event_id", "EVENT.ID"},
	status:      []string{"trigger_status", "status", "TRIGGER.STATUS", "EVENT.STATUS"},
}

var zabbixTimeLayouts = []string{
	time.RFC3339,
	"2006.01.02 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ZabbixParser parses the JSON posted by a Zabbix webhook media type. A
// payload may hold one alert object or an array of them.
type ZabbixParser struct {
	location *time.Location
}

// NewZabbixParser creates a ZabbixParser. Zone-less timestamps are read in loc,
// or UTC when loc is nil.
func NewZabbixParser(loc *time.Location) *ZabbixParser {
	if loc == nil {
		loc = time.UTC
	}
	return &ZabbixParser{location: loc}
}

func (z *ZabbixParser) Source() string {
	return string(model.AlertSourceZabbix)
}

// CanParse accepts the Zabbix route and the generic /webhook route, which
// Zabbix media types have always posted to.
func (z *ZabbixParser) CanParse(r *http.Request) bool {
	path := strings.TrimRight(strings.ToLower(r.URL.Path), "/")
	return strings.Contains(path, "zabbix") || path == "/webhook"
}

func (z *ZabbixParser) Parse(_ context.Context, r *http.Request) ([]model.AlertDraft, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("zabbix: reading body: %w", err)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("zabbix: empty payload")
	}

	var objects []map[string]any
	if body[0] == '[' {
		if err := json.Unmarshal(body, &objects); err != nil {
			return nil, fmt.Errorf("zabbix: failed to decode JSON: %w", err)
		}
	} else {
		var single map[string]any
		if err := json.Unmarshal(body, &single); err != nil {
			return nil, fmt.Errorf("zabbix: failed to decode JSON: %w", err)
		}
		objects = []map[string]any{single}
	}

	drafts := make([]model.AlertDraft, 0, len(objects))
	for _, obj := range objects {
		drafts = append(drafts, z.draft(obj))
	}
	return drafts, nil
}

func (z *ZabbixParser) draft(obj map[string]any) model.AlertDraft {
	status := model.AlertStatusProblem
	switch strings.ToUpper(lookup(obj, zabbixKeys.status)) {
	case "RESOLVED", "OK":
		status = model.AlertStatusResolved
	}
	return model.AlertDraft{
		Source:        model.AlertSourceZabbix,
		TriggerName:   lookup(obj, zabbixKeys.trigger),
		HostName:      lookup(obj, zabbixKeys.host),
		Severity:      lookup(obj, zabbixKeys.severity),
		ObservedValue: lookup(obj, zabbixKeys.value),
		OccurredAt:    z.parseTime(lookup(obj, zabbixKeys.eventDate), lookup(obj, zabbixKeys.eventTime)),
		Description:   lookup(obj, zabbixKeys.description),
		EventID:       lookup(obj, zabbixKeys.eventID),
		Status:        status,
	}
}

// parseTime accepts full timestamps, unix seconds, or EVENT.DATE plus
// EVENT.TIME. Anything else yields the zero time, which validation replaces
// with the receive time.
func (z *ZabbixParser) parseTime(date, clock string) time.Time {
	if clock == "" {
		return time.Time{}
	}
	if secs, err := strconv.ParseInt(clock, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC()
	}
	candidates := []string{clock}
	if date != "" {
		candidates = append([]string{date + " " + clock}, candidates...)
	}
	for _, c := range candidates {
		for _, layout := range zabbixTimeLayouts {
			if t, err := time.ParseInLocation(layout, c, z.location); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}

// lookup returns the first non-empty value among keys. Unexpanded macros
// such as "{ITEM.VALUE}" count as empty.
func lookup(obj map[string]any, keys []string) string {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok || v == nil {
			continue
		}
		s := strings.TrimSpace(stringify(v))
		if s == "" || isMacro(s) {
			continue
		}
		return s
	}
	return ""
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return fmt.Sprint(v)
}

func isMacro(s string) bool {
	return strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") && !strings.ContainsAny(s, " \"")
}
