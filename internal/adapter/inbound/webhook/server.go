package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/inbound/webhook/middleware"
)

// SourceAuth configures authentication for one webhook source.
type SourceAuth struct {
	Mode   middleware.AuthMode
	Secret string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// RateLimit is requests per minute per client IP; 0 disables it.
	RateLimit  int
	TrustProxy bool
	// Auth is keyed by source name. The generic /webhook route uses the
	// zabbix entry.
	Auth map[string]SourceAuth
}

// Server wraps an HTTP server with graceful shutdown support.
type Server struct {
	cfg     ServerConfig
	handler *Handler
	logger  *slog.Logger
	srv     *http.Server
}

func NewServer(cfg ServerConfig, handler *Handler, logger *slog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		handler: handler,
		logger:  logger.With("component", "webhook-server"),
	}
}

// SetupRoutes builds and returns an http.Handler with all middleware applied.
// Route layout:
//
//	GET  /health                 - Health check
//	POST /webhook/zabbix         - Zabbix media type
//	POST /webhook/alertmanager   - Prometheus Alertmanager
//	POST /webhook                - Auto-detected source
func (s *Server) SetupRoutes() (http.Handler, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", HealthHandler())

	routes := []struct {
		pattern string
		source  string
	}{
		{"POST /webhook/zabbix", "zabbix"},
		{"POST /webhook/alertmanager", "alertmanager"},
		{"POST /webhook", "zabbix"},
	}
	for _, rt := range routes {
		auth := s.cfg.Auth[rt.source]
		authenticate, err := middleware.ForMode(auth.Mode, auth.Secret)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", rt.pattern, err)
		}
		mux.Handle(rt.pattern, authenticate(s.handler))
	}

	// Apply middleware stack (outermost = first to execute):
	//   BodyReader -> ResponseHeaders -> Logging -> RateLimit -> auth (per route)
	var h http.Handler = mux
	h = middleware.NewRateLimiter(s.cfg.RateLimit, s.cfg.TrustProxy)(h)
	h = middleware.Logging(s.logger)(h)
	h = middleware.ResponseHeaders(h)
	h = middleware.BodyReader(h)

	return h, nil
}

// Start starts the HTTP server and blocks until ctx is cancelled, then performs
// a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	handler, err := s.SetupRoutes()
	if err != nil {
		return err
	}
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("webhook server listening", "port", s.cfg.Port)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown error: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// HealthHandler returns an http.HandlerFunc for the /health endpoint.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
