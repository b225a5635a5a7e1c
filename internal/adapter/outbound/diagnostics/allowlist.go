// Package diagnostics holds what the playbook runners share: the allowlist
// that every request must pass and a no-op gateway for local development.
package diagnostics

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
)

// AllowlistConfig holds the playbooks that may run and the hosts that may
// never be targeted.
type AllowlistConfig struct {
	Playbooks    []string
	BlockedHosts []string
}

// Allowlist enforces playbook, host and parameter constraints before a
// request reaches a runner.
type Allowlist struct {
	playbooks    map[string]bool
	blockedHosts map[string]bool
}

// NewAllowlist creates an Allowlist from the given configuration.
func NewAllowlist(cfg AllowlistConfig) *Allowlist {
	return &Allowlist{
		playbooks:    toSet(cfg.Playbooks),
		blockedHosts: toSet(cfg.BlockedHosts),
	}
}

var (
	playbookPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	hostPattern     = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

// dangerousPatterns contains shell metacharacters and injection patterns.
var dangerousPatterns = []string{"$(", "`", "|", ">>", "<<", ";", "&&", "||", "\n"}

// sensitivePathFragments contains path fragments that should never appear in parameters.
var sensitivePathFragments = []string{
	"/etc/shadow", "/etc/passwd", "/etc/master.passwd",
	"/proc/self/environ", "/proc/self/cmdline",
	"/.ssh/", "/.kube/config", "/.env",
	"/var/run/secrets",
}

// IsPlaybookAllowed reports whether name is a configured playbook.
func (a *Allowlist) IsPlaybookAllowed(name string) bool {
	return playbookPattern.MatchString(name) && a.playbooks[strings.ToLower(name)]
}

// IsHostAllowed reports whether host is a plausible inventory name and not blocked.
func (a *Allowlist) IsHostAllowed(host string) bool {
	if len(host) == 0 || len(host) > 253 || !hostPattern.MatchString(host) {
		return false
	}
	return !a.blockedHosts[strings.ToLower(host)]
}

// IsValueSafe reports whether a parameter value is free of shell injection
// patterns and sensitive paths.
func IsValueSafe(v string) bool {
	lower := strings.ToLower(v)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lower, pattern) {
			return false
		}
	}
	for _, fragment := range sensitivePathFragments {
		if strings.Contains(lower, fragment) {
			return false
		}
	}
	return true
}

// Validate checks a request against the allowlist for the given playbook.
// Rejections are *outbound.GatewayError so they reach the chat as-is.
func (a *Allowlist) Validate(playbook string, req outbound.DiagnosticRequest) error {
	if !a.IsPlaybookAllowed(playbook) {
		return &outbound.GatewayError{Reason: fmt.Sprintf("playbook %q is not allowed", playbook)}
	}
	if !a.IsHostAllowed(req.Host) {
		return &outbound.GatewayError{Reason: fmt.Sprintf("host %q is not allowed", req.Host)}
	}
	for k, v := range req.Parameters {
		if !IsValueSafe(v) {
			return &outbound.GatewayError{Reason: fmt.Sprintf("parameter %s contains a forbidden pattern", k)}
		}
	}
	return nil
}

// DefaultPlaybooks maps gateway actions to playbook names.
func DefaultPlaybooks() map[model.Action]string {
	return map[model.Action]string{
		model.ActionDiagnostic: "check_service",
		model.ActionMetrics:    "gather_system_metrics",
		model.ActionRestart:    "restart_service",
		model.ActionFix:        "fix_common_issues",
	}
}

// PlaybookFor resolves the playbook for action or returns a GatewayError.
func PlaybookFor(playbooks map[model.Action]string, action model.Action) (string, error) {
	name, ok := playbooks[action]
	if !ok || name == "" {
		return "", &outbound.GatewayError{Reason: fmt.Sprintf("no playbook configured for %s", action)}
	}
	return name, nil
}

// ExtraVars merges the request parameters with the alert context passed to playbooks.
func ExtraVars(req outbound.DiagnosticRequest) map[string]string {
	vars := make(map[string]string, len(req.Parameters)+2)
	for k, v := range req.Parameters {
		vars[k] = v
	}
	vars["alert_id"] = req.AlertID
	vars["action"] = string(req.Action)
	return vars
}

func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, item := range items {
		s[strings.ToLower(item)] = true
	}
	return s
}
