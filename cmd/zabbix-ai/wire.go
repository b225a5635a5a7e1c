package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/inbound/slackbot"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/inbound/telegrambot"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/outbound/cache/memory"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/outbound/cache/redis"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/outbound/chat"
	slacktransport "github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/outbound/chat/slack"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/outbound/chat/telegram"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/outbound/diagnostics"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/outbound/diagnostics/ansible"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/outbound/diagnostics/kubernetes"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/outbound/llm/gemini"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/outbound/llm/ollama"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/outbound/llm/openai"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/outbound/llm/prompt"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/outbound/persistence/postgres"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/outbound/persistence/sqlite"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/config"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/inbound"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/service"
)

type repositories struct {
	sessions outbound.SessionRepository
	audits   outbound.AuditRepository
	ping     func(ctx context.Context) error
	close    func()
}

func openRepositories(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*repositories, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := postgres.NewDB(ctx, postgres.Config{
			DSN:          cfg.Postgres.DSN,
			MaxOpenConns: cfg.Postgres.MaxOpenConns,
			MaxIdleConns: cfg.Postgres.MaxIdleConns,
		})
		if err != nil {
			return nil, err
		}
		return &repositories{
			sessions: postgres.NewSessionRepo(db),
			audits:   postgres.NewAuditRepo(db),
			ping:     db.Ping,
			close:    db.Close,
		}, nil
	default:
		store, err := sqlite.NewStore(ctx, sqlite.Config{
			Path:              cfg.SQLite.Path,
			MaxOpenConns:      cfg.SQLite.MaxOpenConns,
			PragmaJournalMode: cfg.SQLite.PragmaJournalMode,
			PragmaBusyTimeout: cfg.SQLite.PragmaBusyTimeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return &repositories{
			sessions: sqlite.NewSessionRepo(store),
			audits:   sqlite.NewAuditRepo(store),
			ping:     store.Ping,
			close:    func() { _ = store.Close() },
		}, nil
	}
}

func buildAnalysisStore(ctx context.Context, cfg config.CacheConfig) (outbound.AnalysisStore, func(), error) {
	if cfg.Backend == "redis" {
		store, err := redis.NewStore(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}
	return memory.NewStore(cfg.MaxEntries, cfg.TTL), func() {}, nil
}

// buildProviderChain creates one link per configured provider, in order.
func buildProviderChain(ctx context.Context, cfg config.AnalysisConfig) ([]service.ChainLink, error) {
	builder, err := prompt.NewBuilder(cfg.Language)
	if err != nil {
		return nil, fmt.Errorf("loading prompt templates: %w", err)
	}

	links := make([]service.ChainLink, 0, len(cfg.Providers))
	for _, name := range cfg.Providers {
		switch name {
		case "gemini":
			client, err := gemini.NewClient(ctx, gemini.Config{
				APIKey:          cfg.Gemini.APIKey,
				Model:           cfg.Gemini.Model,
				Temperature:     cfg.Gemini.Temperature,
				MaxOutputTokens: cfg.Gemini.MaxOutputTokens,
			}, builder)
			if err != nil {
				return nil, err
			}
			links = append(links, service.ChainLink{Provider: client, Timeout: cfg.Gemini.Timeout})
		case "ollama":
			client := ollama.NewClient(ollama.Config{
				BaseURL:     cfg.Ollama.BaseURL,
				Model:       cfg.Ollama.Model,
				Timeout:     cfg.Ollama.Timeout,
				MaxRetries:  cfg.Ollama.MaxRetries,
				Temperature: cfg.Ollama.Temperature,
			}, builder)
			links = append(links, service.ChainLink{Provider: client, Timeout: cfg.Ollama.Timeout})
		case cfg.OpenAI.Name:
			client := openai.NewClient(openai.Config{
				Name:        cfg.OpenAI.Name,
				BaseURL:     cfg.OpenAI.BaseURL,
				APIKey:      cfg.OpenAI.APIKey,
				Model:       cfg.OpenAI.Model,
				Timeout:     cfg.OpenAI.Timeout,
				Temperature: cfg.OpenAI.Temperature,
				MaxTokens:   cfg.OpenAI.MaxTokens,
				JSONMode:    cfg.OpenAI.JSONMode,
			}, builder)
			links = append(links, service.ChainLink{Provider: client, Timeout: cfg.OpenAI.Timeout})
		default:
			return nil, fmt.Errorf("unknown analysis provider %q", name)
		}
	}
	return links, nil
}

func buildGateway(cfg config.DiagnosticsConfig, logger *slog.Logger) (outbound.DiagnosticsGateway, error) {
	playbooks, err := cfg.ActionPlaybooks(diagnostics.DefaultPlaybooks())
	if err != nil {
		return nil, err
	}
	allowlist := diagnostics.NewAllowlist(diagnostics.AllowlistConfig{
		Playbooks:    cfg.Playbooks,
		BlockedHosts: cfg.BlockedHosts,
	})

	switch cfg.Runner {
	case "ansible":
		return ansible.NewGateway(ansible.Config{
			BaseURL:   cfg.Ansible.BaseURL,
			APIKey:    cfg.Ansible.APIKey,
			Timeout:   cfg.Timeout,
			Playbooks: playbooks,
		}, allowlist), nil
	case "kubernetes":
		clientset, err := kubernetes.NewClientset(cfg.Kubernetes.InCluster, cfg.Kubernetes.Kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("kubernetes runner: %w", err)
		}
		return kubernetes.NewJobRunner(clientset, allowlist, kubernetes.RunnerConfig{
			Namespace:      cfg.Kubernetes.Namespace,
			Image:          cfg.Kubernetes.Image,
			ServiceAccount: cfg.Kubernetes.ServiceAccount,
			PlaybookDir:    cfg.Kubernetes.PlaybookDir,
			Inventory:      cfg.Kubernetes.Inventory,
			PollInterval:   cfg.Kubernetes.PollInterval,
			LogTailLines:   cfg.Kubernetes.LogTailLines,
			Playbooks:      playbooks,
		}), nil
	default:
		logger.Warn("diagnostics runner disabled; actions will report no output")
		return diagnostics.NewNoopGateway(logger), nil
	}
}

// chatWiring is the outbound transport plus, when the platform supports
// interaction, a function that starts the inbound bot on the same client.
type chatWiring struct {
	transport outbound.ChatTransport
	startBot  func(ctx context.Context, interaction inbound.InteractionPort) error
}

func buildChat(cfg config.ChatConfig, logger *slog.Logger) (chatWiring, error) {
	switch cfg.Transport {
	case "slack":
		client := slackbot.NewClient(slackbot.Config{
			BotToken: cfg.Slack.BotToken,
			AppToken: cfg.Slack.AppToken,
			APIURL:   cfg.Slack.APIURL,
		})
		return chatWiring{
			transport: slacktransport.NewTransportWithClient(client),
			startBot: func(ctx context.Context, interaction inbound.InteractionPort) error {
				logger.Info("starting slack bot")
				return slackbot.NewBot(client, interaction, logger).Start(ctx)
			},
		}, nil
	case "telegram":
		pollTimeout := cfg.Telegram.PollTimeout
		if pollTimeout <= 0 {
			pollTimeout = 10 * time.Second
		}
		bot, err := telegram.NewBot(telegram.Config{
			Token:   cfg.Telegram.Token,
			APIURL:  cfg.Telegram.APIURL,
			Timeout: pollTimeout + cfg.CallTimeout,
		}, &tele.LongPoller{Timeout: pollTimeout})
		if err != nil {
			return chatWiring{}, err
		}
		return chatWiring{
			transport: telegram.NewTransport(bot),
			startBot: func(ctx context.Context, interaction inbound.InteractionPort) error {
				logger.Info("starting telegram bot")
				return telegrambot.NewBot(bot, interaction, logger).Start(ctx)
			},
		}, nil
	default:
		return chatWiring{transport: chat.NewNoopTransport(logger)}, nil
	}
}
