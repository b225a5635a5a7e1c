package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
)

// Validate checks the config for errors.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		errs = append(errs, "server.metricsPort must be between 0 and 65535")
	}
	if cfg.Server.MetricsPort != 0 && cfg.Server.MetricsPort == cfg.Server.Port {
		errs = append(errs, "server.metricsPort must differ from server.port")
	}

	if _, err := cfg.Ingest.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("ingest.timezone: %v", err))
	}

	errs = append(errs, validateProviders(cfg.Analysis)...)

	switch cfg.Cache.Backend {
	case "memory":
	case "redis":
		if cfg.Cache.Redis.Addr == "" {
			errs = append(errs, "cache.redis.addr is required when backend is redis")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache.backend must be memory or redis (got %q)", cfg.Cache.Backend))
	}
	if cfg.Cache.TTL <= 0 {
		errs = append(errs, "cache.ttl must be positive")
	}

	switch cfg.Diagnostics.Runner {
	case "noop":
	case "ansible":
		if cfg.Diagnostics.Ansible.BaseURL == "" {
			errs = append(errs, "diagnostics.ansible.baseURL is required when runner is ansible")
		}
	case "kubernetes":
		if cfg.Diagnostics.Kubernetes.Image == "" {
			errs = append(errs, "diagnostics.kubernetes.image is required when runner is kubernetes")
		}
	default:
		errs = append(errs, fmt.Sprintf("diagnostics.runner must be ansible, kubernetes or noop (got %q)", cfg.Diagnostics.Runner))
	}
	if cfg.Diagnostics.Timeout <= 0 {
		errs = append(errs, "diagnostics.timeout must be positive")
	}
	if _, err := cfg.Diagnostics.ActionPlaybooks(nil); err != nil {
		errs = append(errs, err.Error())
	}

	switch cfg.Chat.Transport {
	case "noop":
	case "slack":
		if cfg.Chat.Slack.BotToken == "" {
			errs = append(errs, "chat.slack.botToken is required when transport is slack")
		}
		if cfg.Chat.Slack.AppToken == "" {
			errs = append(errs, "chat.slack.appToken is required when transport is slack")
		}
	case "telegram":
		if cfg.Chat.Telegram.Token == "" {
			errs = append(errs, "chat.telegram.token is required when transport is telegram")
		}
	default:
		errs = append(errs, fmt.Sprintf("chat.transport must be slack, telegram or noop (got %q)", cfg.Chat.Transport))
	}
	if cfg.Chat.Transport != "noop" && cfg.Chat.DefaultTarget == "" {
		errs = append(errs, "chat.defaultTarget is required")
	}
	if _, err := cfg.Chat.SeverityRoutes(); err != nil {
		errs = append(errs, err.Error())
	}

	if _, err := model.NewPermissionTable(cfg.RBAC.PermissionSpec()); err != nil {
		errs = append(errs, fmt.Sprintf("rbac: %v", err))
	}

	if cfg.Sessions.SweepInterval <= 0 {
		errs = append(errs, "sessions.sweepInterval must be positive")
	}

	validAuth := map[string]bool{"": true, "none": true, "bearer": true, "apikey": true, "hmac": true}
	for name, src := range cfg.Webhook.Sources {
		if name != "zabbix" && name != "alertmanager" {
			errs = append(errs, fmt.Sprintf("webhook.sources.%s: unknown source", name))
		}
		if !validAuth[src.AuthType] {
			errs = append(errs, fmt.Sprintf("webhook.sources.%s.authType must be none, bearer, apikey or hmac", name))
		} else if src.AuthType != "" && src.AuthType != "none" && src.Secret == "" {
			errs = append(errs, fmt.Sprintf("webhook.sources.%s.secret is required for authType %s", name, src.AuthType))
		}
	}
	if cfg.Webhook.RateLimit.Enabled && cfg.Webhook.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, "webhook.rateLimit.requestsPerMinute must be positive when enabled")
	}

	switch cfg.Database.Driver {
	case "sqlite":
		if cfg.Database.SQLite.Path == "" {
			errs = append(errs, "database.sqlite.path is required when driver is sqlite")
		}
	case "postgres":
		if cfg.Database.Postgres.DSN == "" {
			errs = append(errs, "database.postgres.dsn is required when driver is postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver must be sqlite or postgres (got %q)", cfg.Database.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

func validateProviders(a AnalysisConfig) []string {
	var errs []string
	seen := map[string]bool{}
	for _, name := range a.Providers {
		if seen[name] {
			errs = append(errs, fmt.Sprintf("analysis.providers: %s listed twice", name))
		}
		seen[name] = true

		var timeout time.Duration
		switch name {
		case "gemini":
			timeout = a.Gemini.Timeout
			if a.Gemini.APIKey == "" {
				errs = append(errs, "analysis.gemini.apiKey is required when gemini is enabled")
			}
		case a.OpenAI.Name:
			timeout = a.OpenAI.Timeout
			if a.OpenAI.APIKey == "" {
				errs = append(errs, fmt.Sprintf("analysis.openai.apiKey is required when %s is enabled", name))
			}
		case "ollama":
			timeout = a.Ollama.Timeout
			if a.Ollama.BaseURL == "" {
				errs = append(errs, "analysis.ollama.baseURL is required when ollama is enabled")
			}
		default:
			errs = append(errs, fmt.Sprintf("analysis.providers: unknown provider %q", name))
			continue
		}
		if timeout <= 0 {
			errs = append(errs, fmt.Sprintf("analysis: %s timeout must be positive", name))
		}
	}
	return errs
}
