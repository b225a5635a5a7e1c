package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/inbound/webhook"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/inbound/webhook/middleware"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/inbound/webhook/parser"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/config"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/service"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/metrics"
	"github.com/ddphuc01/Zabbix-Monitoring/pkg/health"
	"github.com/ddphuc01/Zabbix-Monitoring/pkg/version"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	envFile := flag.String("env-file", ".env", "optional KEY=VALUE file loaded before the config")
	printVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *printVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if err := config.LoadEnvFile(*envFile); err != nil {
		logger.Error("failed to load env file", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = buildLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("zabbix-ai exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("zabbix-ai stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	checker := health.NewChecker(3 * time.Second)

	// --- Database ---
	repos, err := openRepositories(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer repos.close()
	checker.Register("database", repos.ping)

	// --- Analysis ---
	store, closeStore, err := buildAnalysisStore(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	defer closeStore()
	checker.RegisterOptional("cache", store.Ping)

	links, err := buildProviderChain(ctx, cfg.Analysis)
	if err != nil {
		return err
	}
	for _, l := range links {
		if hc, ok := l.Provider.(outbound.HealthChecker); ok {
			checker.RegisterOptional("provider_"+l.Provider.Name(), hc.HealthCheck)
		}
	}
	chain, err := service.NewProviderChain(links, logger)
	if err != nil {
		return fmt.Errorf("building provider chain: %w", err)
	}
	cache := service.NewFingerprintCache(store, cfg.Cache.TTL, logger)
	analyzer := service.NewAnalyzer(cache, chain)

	// --- Diagnostics ---
	gateway, err := buildGateway(cfg.Diagnostics, logger)
	if err != nil {
		return err
	}
	checker.RegisterOptional("diagnostics", gateway.HealthCheck)

	// --- Chat ---
	chat, err := buildChat(cfg.Chat, logger)
	if err != nil {
		return err
	}
	routes, err := cfg.Chat.SeverityRoutes()
	if err != nil {
		return err
	}
	dispatcher := service.NewDispatcher(chat.transport, service.DispatcherConfig{
		DefaultTarget:   cfg.Chat.DefaultTarget,
		Routes:          routes,
		CallTimeout:     cfg.Chat.CallTimeout,
		RetryMaxElapsed: cfg.Chat.RetryMaxElapsed,
	}, logger)

	// --- Domain services ---
	table, err := model.NewPermissionTable(cfg.RBAC.PermissionSpec())
	if err != nil {
		return fmt.Errorf("building permission table: %w", err)
	}
	var interpreter service.DiagnosticInterpreter
	if cfg.Diagnostics.Interpret {
		interpreter = analyzer
	}
	locks := service.NewAlertLocks()
	processor := service.NewProcessor(
		repos.sessions, repos.audits,
		service.NewAuthorizer(table),
		gateway, interpreter, dispatcher, locks,
		service.ProcessorConfig{
			ActionTimeout: cfg.Diagnostics.Timeout,
			StaleGrace:    cfg.Diagnostics.StaleGrace,
			Retention:     cfg.Sessions.Retention,
			ListLimit:     cfg.Sessions.ListLimit,
		},
		logger,
	)
	orchestrator := service.NewOrchestrator(analyzer, dispatcher, repos.sessions, repos.audits, locks, service.OrchestratorConfig{
		ResponseDeadline: cfg.Ingest.ResponseDeadline,
		FlowTimeout:      cfg.Ingest.FlowTimeout,
	}, logger)

	// --- Webhook ---
	loc, err := cfg.Ingest.Location()
	if err != nil {
		return err
	}
	reg := parser.NewRegistry()
	reg.Register(parser.NewAlertManagerParser())
	reg.Register(parser.NewZabbixParser(loc))

	auth := make(map[string]webhook.SourceAuth, len(cfg.Webhook.Sources))
	for name, src := range cfg.Webhook.Sources {
		auth[name] = webhook.SourceAuth{Mode: middleware.AuthMode(src.AuthType), Secret: src.Secret}
	}
	rateLimit := 0
	if cfg.Webhook.RateLimit.Enabled {
		rateLimit = cfg.Webhook.RateLimit.RequestsPerMinute
	}
	webhookServer := webhook.NewServer(webhook.ServerConfig{
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		RateLimit:    rateLimit,
		TrustProxy:   cfg.Webhook.RateLimit.TrustProxy,
		Auth:         auth,
	}, webhook.NewHandler(reg, orchestrator, logger), logger)

	// --- Metrics server ---
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/healthz", checker.LivenessHandler())
	metricsMux.HandleFunc("/readyz", checker.ReadinessHandler())
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return webhookServer.Start(gCtx)
	})

	if cfg.Server.MetricsPort > 0 {
		g.Go(func() error {
			logger.Info("starting metrics server", "port", cfg.Server.MetricsPort)
			errCh := make(chan error, 1)
			go func() {
				if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()
			select {
			case <-gCtx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				return metricsServer.Shutdown(shutdownCtx)
			case err := <-errCh:
				return err
			}
		})
	}

	if chat.startBot != nil {
		g.Go(func() error {
			return chat.startBot(gCtx, processor)
		})
	} else {
		logger.Info("no inbound chat bot configured", "transport", cfg.Chat.Transport)
	}

	g.Go(func() error {
		return processor.RunMaintenance(gCtx, cfg.Sessions.SweepInterval)
	})

	build := version.Get()
	metrics.BuildInfo.WithLabelValues(build.Version, build.Commit, build.GoVersion).Set(1)

	logger.Info("zabbix-ai started",
		"version", version.String(),
		"providers", chain.Names(),
		"transport", chat.transport.Name(),
		"runner", cfg.Diagnostics.Runner,
		"webhook_sources", reg.Sources(),
	)

	runErr := g.Wait()

	// Drain in-flight alert flows and gateway runs before the stores close.
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := orchestrator.Shutdown(drainCtx); err != nil {
		logger.Warn("alert flows still running at shutdown", "error", err)
	}
	waitOrTimeout(drainCtx, processor.Wait, logger)

	return runErr
}

func waitOrTimeout(ctx context.Context, wait func(), logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("diagnostic runs still in progress at shutdown")
	}
}

// buildLogger constructs a slog.Logger based on config.
func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
