package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type CheckFunc func(ctx context.Context) error

type check struct {
	fn       CheckFunc
	critical bool
}

// Checker runs registered dependency checks concurrently. A failing
// critical check makes the service unhealthy; any other failure only
// degrades it.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]check
	timeout time.Duration
}

func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Checker{
		checks:  make(map[string]check),
		timeout: timeout,
	}
}

// Register adds a critical check.
func (c *Checker) Register(name string, fn CheckFunc) {
	c.register(name, fn, true)
}

// RegisterOptional adds a check whose failure degrades but does not fail readiness.
func (c *Checker) RegisterOptional(name string, fn CheckFunc) {
	c.register(name, fn, false)
}

func (c *Checker) register(name string, fn CheckFunc, critical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check{fn: fn, critical: critical}
}

type CheckResult struct {
	Status  Status            `json:"status"`
	Details map[string]string `json:"details,omitempty"`
}

func (c *Checker) Check(ctx context.Context) CheckResult {
	c.mu.RLock()
	checks := make(map[string]check, len(c.checks))
	for name, ch := range c.checks {
		checks[name] = ch
	}
	c.mu.RUnlock()

	var (
		mu     sync.Mutex
		result = CheckResult{Status: StatusHealthy, Details: make(map[string]string, len(checks))}
	)
	var g errgroup.Group
	for name, ch := range checks {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			err := ch.fn(cctx)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				result.Details[name] = "ok"
				return nil
			}
			result.Details[name] = err.Error()
			if ch.critical {
				result.Status = StatusUnhealthy
			} else if result.Status == StatusHealthy {
				result.Status = StatusDegraded
			}
			return nil
		})
	}
	_ = g.Wait()
	return result
}

func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}

func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := c.Check(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if result.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(result)
	}
}
