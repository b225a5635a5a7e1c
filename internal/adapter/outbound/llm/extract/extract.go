// Package extract turns free-form model output into an analysis. Models wrap
// JSON in prose or markdown fences, rename fields and drop others; only a
// reply with no decodable JSON object at all is rejected.
package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
)

const (
	DefaultSummary           = "No summary provided"
	DefaultRootCause         = "Unknown"
	DefaultRecommendedAction = "Investigate manually"
	DefaultConfidence        = 0.5
)

var (
	summaryKeys = []string{"summary", "analysis"}
	causeKeys   = []string{"root_cause", "rootCause", "cause"}
	actionKeys  = []string{"recommended_action", "immediate_action", "recommendation", "recommendedAction"}
)

// Analysis extracts an analysis from raw model output. It returns an error
// wrapping outbound.ErrMalformedResponse when no JSON object can be decoded.
func Analysis(raw string) (outbound.AnalysisResponse, error) {
	obj, err := object(raw)
	if err != nil {
		return outbound.AnalysisResponse{}, err
	}
	return outbound.AnalysisResponse{
		Summary:           text(obj, summaryKeys, DefaultSummary),
		RootCause:         text(obj, causeKeys, DefaultRootCause),
		RecommendedAction: text(obj, actionKeys, DefaultRecommendedAction),
		Confidence:        confidence(obj["confidence"]),
	}, nil
}

// object decodes the first complete JSON object, stripping markdown code fences.
func object(content string) (map[string]any, error) {
	content = strings.TrimSpace(content)

	if idx := strings.Index(content, "```"); idx != -1 {
		content = content[idx+3:]
		// Optional language tag, e.g. "json\n".
		if nl := strings.Index(content, "\n"); nl != -1 {
			content = content[nl+1:]
		}
		if end := strings.LastIndex(content, "```"); end != -1 {
			content = content[:end]
		}
		content = strings.TrimSpace(content)
	}

	// Decoding stops after one value, so trailing prose (braces included)
	// is ignored. A brace in leading prose just moves the search on.
	var lastErr error
	for start := strings.Index(content, "{"); start != -1; {
		var obj map[string]any
		err := json.NewDecoder(strings.NewReader(content[start:])).Decode(&obj)
		if err == nil {
			return obj, nil
		}
		lastErr = err
		next := strings.Index(content[start+1:], "{")
		if next == -1 {
			break
		}
		start += next + 1
	}
	if lastErr == nil {
		return nil, fmt.Errorf("%w: no JSON object found", outbound.ErrMalformedResponse)
	}
	return nil, fmt.Errorf("%w: %v", outbound.ErrMalformedResponse, lastErr)
}

func text(obj map[string]any, keys []string, fallback string) string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case []any:
			lines := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					lines = append(lines, "- "+strings.TrimSpace(s))
				}
			}
			if len(lines) > 0 {
				return strings.Join(lines, "\n")
			}
		}
	}
	return fallback
}

// confidence accepts a fraction, a percentage or a numeric string.
func confidence(v any) float64 {
	var c float64
	switch x := v.(type) {
	case float64:
		c = x
	case string:
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(x), "%"), 64)
		if err != nil {
			return DefaultConfidence
		}
		c = f
	default:
		return DefaultConfidence
	}
	if c > 1 && c <= 100 {
		c /= 100
	}
	return c
}
