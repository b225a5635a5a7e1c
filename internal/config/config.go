package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Analysis    AnalysisConfig    `yaml:"analysis"`
	Cache       CacheConfig       `yaml:"cache"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Chat        ChatConfig        `yaml:"chat"`
	RBAC        RBACConfig        `yaml:"rbac"`
	Sessions    SessionsConfig    `yaml:"sessions"`
	Webhook     WebhookConfig     `yaml:"webhook"`
	Database    DatabaseConfig    `yaml:"database"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	MetricsPort     int           `yaml:"metricsPort"`
}

type IngestConfig struct {
	// ResponseDeadline is how long a webhook request waits for the analysis.
	ResponseDeadline time.Duration `yaml:"responseDeadline"`
	FlowTimeout      time.Duration `yaml:"flowTimeout"`
	// Timezone is used for Zabbix date/time macros without an offset.
	Timezone string `yaml:"timezone"`
}

type AnalysisConfig struct {
	// Providers is the fallback order; each name must have a section below.
	Providers []string     `yaml:"providers"`
	Language  string       `yaml:"language"`
	Gemini    GeminiConfig `yaml:"gemini"`
	OpenAI    OpenAIConfig `yaml:"openai"`
	Ollama    OllamaConfig `yaml:"ollama"`
}

type GeminiConfig struct {
	APIKey          string        `yaml:"apiKey"`
	Model           string        `yaml:"model"`
	Timeout         time.Duration `yaml:"timeout"`
	Temperature     float64       `yaml:"temperature"`
	MaxOutputTokens int           `yaml:"maxOutputTokens"`
}

// OpenAIConfig covers any OpenAI-compatible endpoint, Groq by default.
type OpenAIConfig struct {
	Name        string        `yaml:"name"`
	BaseURL     string        `yaml:"baseURL"`
	APIKey      string        `yaml:"apiKey"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"maxTokens"`
	JSONMode    bool          `yaml:"jsonMode"`
}

type OllamaConfig struct {
	BaseURL     string        `yaml:"baseURL"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"maxRetries"`
	Temperature float64       `yaml:"temperature"`
}

type CacheConfig struct {
	Backend    string        `yaml:"backend"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"maxEntries"`
	Redis      RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type DiagnosticsConfig struct {
	Runner     string        `yaml:"runner"`
	Timeout    time.Duration `yaml:"timeout"`
	StaleGrace time.Duration `yaml:"staleGrace"`
	// Interpret sends diagnostic output through the provider chain.
	Interpret bool `yaml:"interpret"`
	// Actions overrides the playbook run for an action.
	Actions      map[string]string `yaml:"actions"`
	Playbooks    []string          `yaml:"playbooks"`
	BlockedHosts []string          `yaml:"blockedHosts"`
	Ansible      AnsibleConfig     `yaml:"ansible"`
	Kubernetes   KubernetesConfig  `yaml:"kubernetes"`
}

type AnsibleConfig struct {
	BaseURL string `yaml:"baseURL"`
	APIKey  string `yaml:"apiKey"`
}

type KubernetesConfig struct {
	InCluster      bool          `yaml:"inCluster"`
	Kubeconfig     string        `yaml:"kubeconfig"`
	Namespace      string        `yaml:"namespace"`
	Image          string        `yaml:"image"`
	ServiceAccount string        `yaml:"serviceAccount"`
	PlaybookDir    string        `yaml:"playbookDir"`
	Inventory      string        `yaml:"inventory"`
	PollInterval   time.Duration `yaml:"pollInterval"`
	LogTailLines   int64         `yaml:"logTailLines"`
}

type ChatConfig struct {
	Transport     string `yaml:"transport"`
	DefaultTarget string `yaml:"defaultTarget"`
	// Routes maps a severity name to a chat target.
	Routes          map[string]string `yaml:"routes"`
	CallTimeout     time.Duration     `yaml:"callTimeout"`
	RetryMaxElapsed time.Duration     `yaml:"retryMaxElapsed"`
	Slack           SlackConfig       `yaml:"slack"`
	Telegram        TelegramConfig    `yaml:"telegram"`
}

type SlackConfig struct {
	BotToken string `yaml:"botToken"`
	AppToken string `yaml:"appToken"`
	APIURL   string `yaml:"apiURL"`
}

type TelegramConfig struct {
	Token       string        `yaml:"token"`
	APIURL      string        `yaml:"apiURL"`
	PollTimeout time.Duration `yaml:"pollTimeout"`
}

type RBACConfig struct {
	Version     string              `yaml:"version"`
	DefaultRole string              `yaml:"defaultRole"`
	Roles       map[string][]string `yaml:"roles"`
	// Users maps a chat user ID to a role.
	Users map[string]string `yaml:"users"`
}

type SessionsConfig struct {
	Retention     time.Duration `yaml:"retention"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
	ListLimit     int           `yaml:"listLimit"`
}

type WebhookConfig struct {
	Sources   map[string]WebhookSourceConfig `yaml:"sources"`
	RateLimit RateLimitConfig                `yaml:"rateLimit"`
}

type WebhookSourceConfig struct {
	AuthType string `yaml:"authType"`
	Secret   string `yaml:"secret"`
}

type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
	TrustProxy        bool `yaml:"trustProxy"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path              string `yaml:"path"`
	MaxOpenConns      int    `yaml:"maxOpenConns"`
	PragmaJournalMode string `yaml:"pragmaJournalMode"`
	PragmaBusyTimeout int    `yaml:"pragmaBusyTimeout"`
}

type PostgresConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int32  `yaml:"maxOpenConns"`
	MaxIdleConns int32  `yaml:"maxIdleConns"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// Load reads a YAML config file and returns a Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MetricsPort:     9090,
		},
		Ingest: IngestConfig{
			ResponseDeadline: 3 * time.Second,
			FlowTimeout:      5 * time.Minute,
			Timezone:         "UTC",
		},
		Analysis: AnalysisConfig{
			Providers: []string{"gemini", "groq", "ollama"},
			Language:  "en",
			Gemini: GeminiConfig{
				Model:           "gemini-2.0-flash",
				Timeout:         20 * time.Second,
				Temperature:     0.2,
				MaxOutputTokens: 1024,
			},
			OpenAI: OpenAIConfig{
				Name:        "groq",
				BaseURL:     "https://api.groq.com/openai/v1",
				Model:       "llama-3.3-70b-versatile",
				Timeout:     20 * time.Second,
				Temperature: 0.2,
				MaxTokens:   1024,
				JSONMode:    true,
			},
			Ollama: OllamaConfig{
				BaseURL:     "http://localhost:11434",
				Model:       "llama3:8b",
				Timeout:     60 * time.Second,
				MaxRetries:  1,
				Temperature: 0.1,
			},
		},
		Cache: CacheConfig{
			Backend:    "memory",
			TTL:        time.Hour,
			MaxEntries: 10000,
			Redis:      RedisConfig{Addr: "localhost:6379", Prefix: "zbxai:analysis:"},
		},
		Diagnostics: DiagnosticsConfig{
			Runner:       "ansible",
			Timeout:      2 * time.Minute,
			StaleGrace:   time.Minute,
			Interpret:    true,
			Playbooks:    []string{"check_service", "gather_system_metrics", "restart_service", "fix_common_issues"},
			BlockedHosts: []string{"zabbix-server", "localhost"},
			Ansible:      AnsibleConfig{BaseURL: "http://ansible-executor:5001"},
			Kubernetes: KubernetesConfig{
				InCluster:    true,
				Namespace:    "monitoring",
				PlaybookDir:  "/ansible/playbooks/diagnostics",
				PollInterval: 2 * time.Second,
				LogTailLines: 200,
			},
		},
		Chat: ChatConfig{
			Transport:       "telegram",
			CallTimeout:     10 * time.Second,
			RetryMaxElapsed: 30 * time.Second,
			Telegram:        TelegramConfig{PollTimeout: 10 * time.Second},
		},
		RBAC: RBACConfig{
			Version:     "default",
			DefaultRole: string(model.RoleViewer),
			Roles: map[string][]string{
				"admin":    {"diagnostic", "metrics", "ack", "restart", "fix", "ignore"},
				"operator": {"diagnostic", "metrics", "ack", "restart"},
				"viewer":   {"diagnostic", "metrics", "ack"},
			},
		},
		Sessions: SessionsConfig{
			Retention:     7 * 24 * time.Hour,
			SweepInterval: time.Minute,
			ListLimit:     20,
		},
		Webhook: WebhookConfig{
			Sources: map[string]WebhookSourceConfig{
				"zabbix":       {AuthType: "none"},
				"alertmanager": {AuthType: "none"},
			},
			RateLimit: RateLimitConfig{Enabled: true, RequestsPerMinute: 600},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:              "/data/zabbix-ai.db",
				MaxOpenConns:      1,
				PragmaJournalMode: "wal",
				PragmaBusyTimeout: 5000,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// expandEnvVars replaces ${VAR} patterns with environment variable values.
func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return "${" + key + "}"
	})
}

// PermissionSpec converts the rbac section into the domain permission spec.
func (c RBACConfig) PermissionSpec() model.PermissionSpec {
	spec := model.PermissionSpec{
		Version:     c.Version,
		DefaultRole: model.Role(strings.ToLower(c.DefaultRole)),
		Roles:       make(map[model.Role][]model.Action, len(c.Roles)),
		Users:       make(map[string]model.Role, len(c.Users)),
	}
	for role, actions := range c.Roles {
		list := make([]model.Action, len(actions))
		for i, a := range actions {
			action, err := model.ParseAction(a)
			if err != nil {
				// left as-is so NewPermissionTable reports it
				action = model.Action(a)
			}
			list[i] = action
		}
		spec.Roles[model.Role(strings.ToLower(role))] = list
	}
	for id, role := range c.Users {
		spec.Users[id] = model.Role(strings.ToLower(role))
	}
	return spec
}

// SeverityRoutes parses the routes keys into severities.
func (c ChatConfig) SeverityRoutes() (map[model.Severity]string, error) {
	routes := make(map[model.Severity]string, len(c.Routes))
	for name, target := range c.Routes {
		sev, err := model.ParseSeverity(name)
		if err != nil {
			return nil, fmt.Errorf("chat.routes: %w", err)
		}
		routes[sev] = target
	}
	return routes, nil
}

// ActionPlaybooks returns the playbook per action, defaults overlaid with
// diagnostics.actions.
func (c DiagnosticsConfig) ActionPlaybooks(defaults map[model.Action]string) (map[model.Action]string, error) {
	out := make(map[model.Action]string, len(defaults)+len(c.Actions))
	for a, p := range defaults {
		out[a] = p
	}
	for name, playbook := range c.Actions {
		action, err := model.ParseAction(name)
		if err != nil {
			return nil, fmt.Errorf("diagnostics.actions: %w", err)
		}
		out[action] = playbook
	}
	return out, nil
}

// Location resolves the ingest timezone.
func (c IngestConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}
