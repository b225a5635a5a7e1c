package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
)

// validConfig returns defaults plus the secrets DefaultConfig leaves empty.
func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Analysis.Gemini.APIKey = "g-key"
	cfg.Analysis.OpenAI.APIKey = "groq-key"
	cfg.Chat.Telegram.Token = "123:abc"
	cfg.Chat.DefaultTarget = "-100200300"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("expected server.port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.MetricsPort != 9090 {
		t.Errorf("expected server.metricsPort 9090, got %d", cfg.Server.MetricsPort)
	}
	if cfg.Ingest.ResponseDeadline != 3*time.Second {
		t.Errorf("expected ingest.responseDeadline 3s, got %v", cfg.Ingest.ResponseDeadline)
	}
	if got := strings.Join(cfg.Analysis.Providers, ","); got != "gemini,groq,ollama" {
		t.Errorf("expected provider order gemini,groq,ollama, got %s", got)
	}
	if cfg.Cache.Backend != "memory" || cfg.Cache.TTL != time.Hour {
		t.Errorf("unexpected cache defaults %+v", cfg.Cache)
	}
	if cfg.Diagnostics.Runner != "ansible" || cfg.Diagnostics.Timeout != 2*time.Minute {
		t.Errorf("unexpected diagnostics defaults %+v", cfg.Diagnostics)
	}
	if cfg.RBAC.DefaultRole != "viewer" {
		t.Errorf("expected rbac.defaultRole viewer, got %q", cfg.RBAC.DefaultRole)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected database.driver sqlite, got %q", cfg.Database.Driver)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected logging.format json, got %q", cfg.Logging.Format)
	}
}

func TestLoad(t *testing.T) {
	content := `
server:
  port: 9000
  metricsPort: 9100
analysis:
  providers: [ollama]
  ollama:
    baseURL: http://ollama:11434
    timeout: 45s
cache:
  backend: redis
  ttl: 30m
  redis:
    addr: redis:6379
diagnostics:
  runner: noop
chat:
  transport: slack
  defaultTarget: "#alerts"
  routes:
    disaster: "#oncall"
  slack:
    botToken: xoxb-test
    appToken: xapp-test
rbac:
  users:
    U123: admin
database:
  driver: sqlite
  sqlite:
    path: /tmp/test.db
logging:
  level: debug
  format: text
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Analysis.Ollama.Timeout != 45*time.Second {
		t.Errorf("expected ollama timeout 45s, got %v", cfg.Analysis.Ollama.Timeout)
	}
	if cfg.Cache.TTL != 30*time.Minute || cfg.Cache.Redis.Addr != "redis:6379" {
		t.Errorf("unexpected cache %+v", cfg.Cache)
	}
	// unset keys keep their defaults
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("expected default readTimeout, got %v", cfg.Server.ReadTimeout)
	}

	routes, err := cfg.Chat.SeverityRoutes()
	if err != nil {
		t.Fatalf("SeverityRoutes: %v", err)
	}
	if routes[model.SeverityDisaster] != "#oncall" {
		t.Errorf("unexpected routes %v", routes)
	}

	table, err := model.NewPermissionTable(cfg.RBAC.PermissionSpec())
	if err != nil {
		t.Fatalf("NewPermissionTable: %v", err)
	}
	if role, _ := table.RoleOf("U123"); role != model.RoleAdmin {
		t.Errorf("expected U123 to be admin, got %s", role)
	}
	if role, _ := table.RoleOf("stranger"); role != model.RoleViewer {
		t.Errorf("expected default viewer, got %s", role)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(tmpFile, []byte("server: [not: valid"), 0644)
	if _, err := Load(tmpFile); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("ZBX_TEST_TOKEN", "secret123")

	if got := expandEnvVars("token: ${ZBX_TEST_TOKEN}"); got != "token: secret123" {
		t.Errorf("expected 'token: secret123', got %q", got)
	}
	if got := expandEnvVars("token: ${ZBX_UNSET_VAR}"); got != "token: ${ZBX_UNSET_VAR}" {
		t.Errorf("unset vars must be left in place, got %q", got)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("ZBX_ENV_FILE_TOKEN=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ZBX_ENV_FILE_TOKEN", "")
	os.Unsetenv("ZBX_ENV_FILE_TOKEN")

	if err := LoadEnvFile(envFile); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if got := os.Getenv("ZBX_ENV_FILE_TOKEN"); got != "from-file" {
		t.Errorf("expected from-file, got %q", got)
	}

	cfgFile := filepath.Join(dir, "config.yaml")
	content := "chat:\n  transport: noop\nanalysis:\n  providers: []\ndiagnostics:\n  runner: noop\nlogging:\n  level: ${ZBX_ENV_FILE_TOKEN}\n"
	if err := os.WriteFile(cfgFile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(cfgFile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "from-file" {
		t.Errorf("expected expanded value, got %q", cfg.Logging.Level)
	}

	if err := LoadEnvFile(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing env file should be ignored, got %v", err)
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("expected valid config, got: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"metrics port clash", func(c *Config) { c.Server.MetricsPort = c.Server.Port }, "server.metricsPort"},
		{"timezone", func(c *Config) { c.Ingest.Timezone = "Mars/Olympus" }, "ingest.timezone"},
		{"unknown provider", func(c *Config) { c.Analysis.Providers = []string{"claude"} }, "unknown provider"},
		{"duplicate provider", func(c *Config) { c.Analysis.Providers = []string{"ollama", "ollama"} }, "listed twice"},
		{"gemini key", func(c *Config) { c.Analysis.Gemini.APIKey = "" }, "analysis.gemini.apiKey"},
		{"provider timeout", func(c *Config) { c.Analysis.Ollama.Timeout = 0 }, "ollama timeout"},
		{"cache backend", func(c *Config) { c.Cache.Backend = "memcached" }, "cache.backend"},
		{"cache ttl", func(c *Config) { c.Cache.TTL = 0 }, "cache.ttl"},
		{"runner", func(c *Config) { c.Diagnostics.Runner = "ssh" }, "diagnostics.runner"},
		{"k8s image", func(c *Config) { c.Diagnostics.Runner = "kubernetes" }, "diagnostics.kubernetes.image"},
		{"action override", func(c *Config) { c.Diagnostics.Actions = map[string]string{"reboot": "x"} }, "diagnostics.actions"},
		{"transport", func(c *Config) { c.Chat.Transport = "irc" }, "chat.transport"},
		{"slack tokens", func(c *Config) { c.Chat.Transport = "slack" }, "chat.slack.botToken"},
		{"route severity", func(c *Config) { c.Chat.Routes = map[string]string{"urgent": "x"} }, "chat.routes"},
		{"rbac role", func(c *Config) { c.RBAC.Users = map[string]string{"U1": "root"} }, "rbac"},
		{"rbac action", func(c *Config) { c.RBAC.Roles["viewer"] = []string{"reboot"} }, "rbac"},
		{"webhook source", func(c *Config) { c.Webhook.Sources["grafana"] = WebhookSourceConfig{} }, "webhook.sources.grafana"},
		{"webhook secret", func(c *Config) {
			c.Webhook.Sources["zabbix"] = WebhookSourceConfig{AuthType: "hmac"}
		}, "webhook.sources.zabbix.secret"},
		{"driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"postgres dsn", func(c *Config) { c.Database.Driver = "postgres" }, "database.postgres.dsn"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected error mentioning %q, got: %v", tc.want, err)
			}
		})
	}
}

func TestValidate_AggregatesErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = -1
	cfg.Database.Driver = "mysql"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "server.port") || !strings.Contains(err.Error(), "database.driver") {
		t.Errorf("expected both errors, got: %v", err)
	}
}

func TestActionPlaybooks(t *testing.T) {
	cfg := DiagnosticsConfig{Actions: map[string]string{"restart": "restart_nginx"}}
	books, err := cfg.ActionPlaybooks(map[model.Action]string{
		model.ActionRestart:    "restart_service",
		model.ActionDiagnostic: "check_service",
	})
	if err != nil {
		t.Fatal(err)
	}
	if books[model.ActionRestart] != "restart_nginx" || books[model.ActionDiagnostic] != "check_service" {
		t.Errorf("unexpected playbooks %v", books)
	}
}
