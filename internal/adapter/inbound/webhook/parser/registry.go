package parser

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/inbound"
)

const routePrefix = "/webhook/"

// Registry maps webhook sources to parsers. Dedicated routes
// (/webhook/<source>) resolve by name; the generic route asks each parser
// in registration order.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	bySource map[string]inbound.WebhookParser
}

func NewRegistry() *Registry {
	return &Registry{bySource: make(map[string]inbound.WebhookParser)}
}

var _ inbound.ParserRegistry = (*Registry)(nil)

// Register adds p, replacing any parser already registered for the same
// source without changing its position.
func (r *Registry) Register(p inbound.WebhookParser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	source := strings.ToLower(p.Source())
	if _, ok := r.bySource[source]; !ok {
		r.order = append(r.order, source)
	}
	r.bySource[source] = p
}

// Lookup returns the parser registered for source.
func (r *Registry) Lookup(source string) (inbound.WebhookParser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.bySource[strings.ToLower(source)]
	return p, ok
}

func (r *Registry) Resolve(req *http.Request) (inbound.WebhookParser, error) {
	if source := routeSource(req.URL.Path); source != "" {
		if p, ok := r.Lookup(source); ok {
			return p, nil
		}
		return nil, fmt.Errorf("unknown webhook source %q", source)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, source := range r.order {
		if p := r.bySource[source]; p.CanParse(req) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no parser accepts %s", req.URL.Path)
}

// Sources returns the registered source names in registration order.
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// routeSource extracts <source> from /webhook/<source>; it is empty for the
// generic route.
func routeSource(path string) string {
	path = strings.TrimRight(strings.ToLower(path), "/")
	rest, ok := strings.CutPrefix(path, routePrefix)
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return ""
	}
	return rest
}
