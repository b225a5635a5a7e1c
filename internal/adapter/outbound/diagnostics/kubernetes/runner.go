// Package kubernetes runs diagnostics playbooks as short-lived Kubernetes Jobs.
package kubernetes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8s "k8s.io/client-go/kubernetes"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/outbound/diagnostics"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
)

const (
	jobNameLabel   = "job-name"
	managedByLabel = "app.kubernetes.io/managed-by"
	managedBy      = "zabbix-ai"
	maxNameLen     = 63
)

type RunnerConfig struct {
	Namespace      string
	Image          string
	ServiceAccount string
	PlaybookDir    string
	Inventory      string
	PollInterval   time.Duration
	LogTailLines   int64
	Playbooks      map[model.Action]string
}

// JobRunner implements outbound.DiagnosticsGateway by creating one batch/v1
// Job per request and waiting for it to finish.
type JobRunner struct {
	clientset k8s.Interface
	allowlist *diagnostics.Allowlist
	config    RunnerConfig
}

func NewJobRunner(clientset k8s.Interface, allowlist *diagnostics.Allowlist, cfg RunnerConfig) *JobRunner {
	if cfg.Namespace == "" {
		cfg.Namespace = "default"
	}
	if cfg.PlaybookDir == "" {
		cfg.PlaybookDir = "/ansible/playbooks/diagnostics"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.LogTailLines <= 0 {
		cfg.LogTailLines = 200
	}
	if cfg.Playbooks == nil {
		cfg.Playbooks = diagnostics.DefaultPlaybooks()
	}
	return &JobRunner{clientset: clientset, allowlist: allowlist, config: cfg}
}

var _ outbound.DiagnosticsGateway = (*JobRunner)(nil)

// Run creates the Job, polls it until completion and returns its pod logs.
// The Job is removed when Run returns, whatever the outcome.
func (r *JobRunner) Run(ctx context.Context, req outbound.DiagnosticRequest) (outbound.DiagnosticReport, error) {
	playbook, err := diagnostics.PlaybookFor(r.config.Playbooks, req.Action)
	if err != nil {
		return outbound.DiagnosticReport{}, err
	}
	if err := r.allowlist.Validate(playbook, req); err != nil {
		return outbound.DiagnosticReport{}, err
	}

	job, err := r.buildJob(playbook, req)
	if err != nil {
		return outbound.DiagnosticReport{}, err
	}

	started := time.Now()
	jobs := r.clientset.BatchV1().Jobs(r.config.Namespace)
	created, err := jobs.Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		return outbound.DiagnosticReport{}, &outbound.GatewayError{Reason: "creating playbook job", Err: err}
	}
	defer r.cleanup(created.Name)

	finished, err := r.wait(ctx, created.Name)
	if err != nil {
		return outbound.DiagnosticReport{}, err
	}

	logs, logErr := r.podLogs(ctx, created.Name)
	if finished.Status.Failed > 0 {
		reason := fmt.Sprintf("playbook job %s failed", created.Name)
		if msg := failureMessage(finished); msg != "" {
			reason += ": " + msg
		}
		return outbound.DiagnosticReport{}, &outbound.GatewayError{Reason: reason}
	}
	if logErr != nil {
		logs = "job succeeded; logs unavailable: " + logErr.Error()
	}

	return outbound.DiagnosticReport{
		JobID:    created.Name,
		Host:     req.Host,
		Action:   req.Action,
		Output:   strings.TrimSpace(logs),
		Duration: time.Since(started),
	}, nil
}

// HealthCheck verifies the API server is reachable.
func (r *JobRunner) HealthCheck(ctx context.Context) error {
	if _, err := r.clientset.Discovery().ServerVersion(); err != nil {
		return fmt.Errorf("kubernetes API unreachable: %w", err)
	}
	return nil
}

func (r *JobRunner) buildJob(playbook string, req outbound.DiagnosticRequest) (*batchv1.Job, error) {
	vars, err := json.Marshal(diagnostics.ExtraVars(req))
	if err != nil {
		return nil, fmt.Errorf("encoding extra vars: %w", err)
	}

	args := []string{path.Join(r.config.PlaybookDir, playbook+".yml"), "--limit", req.Host, "--extra-vars", string(vars)}
	if r.config.Inventory != "" {
		args = append(args, "--inventory", r.config.Inventory)
	}

	backoff := int32(0)
	ttl := int32(600)
	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      JobName(req.Action),
			Namespace: r.config.Namespace,
			Labels: map[string]string{
				managedByLabel:     managedBy,
				"zabbix-ai/action": string(req.Action),
			},
			Annotations: map[string]string{
				"zabbix-ai/alert-id": req.AlertID,
				"zabbix-ai/host":     req.Host,
			},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            &backoff,
			TTLSecondsAfterFinished: &ttl,
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{
					RestartPolicy:      corev1.RestartPolicyNever,
					ServiceAccountName: r.config.ServiceAccount,
					Containers: []corev1.Container{{
						Name:    "playbook",
						Image:   r.config.Image,
						Command: []string{"ansible-playbook"},
						Args:    args,
					}},
				},
			},
		},
	}, nil
}

func (r *JobRunner) wait(ctx context.Context, name string) (*batchv1.Job, error) {
	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	jobs := r.clientset.BatchV1().Jobs(r.config.Namespace)
	for {
		job, err := jobs.Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			if ctx.Err() != nil {
				return nil, timeoutError(ctx.Err())
			}
			return nil, &outbound.GatewayError{Reason: "reading playbook job status", Err: err}
		}
		if job.Status.Succeeded > 0 || job.Status.Failed > 0 {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, timeoutError(ctx.Err())
		case <-ticker.C:
		}
	}
}

func (r *JobRunner) podLogs(ctx context.Context, jobName string) (string, error) {
	pods, err := r.clientset.CoreV1().Pods(r.config.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: jobNameLabel + "=" + jobName,
	})
	if err != nil {
		return "", fmt.Errorf("listing pods for job %s: %w", jobName, err)
	}
	if len(pods.Items) == 0 {
		return "", fmt.Errorf("no pods found for job %s", jobName)
	}

	tail := r.config.LogTailLines
	stream, err := r.clientset.CoreV1().Pods(r.config.Namespace).
		GetLogs(pods.Items[0].Name, &corev1.PodLogOptions{TailLines: &tail}).
		Stream(ctx)
	if err != nil {
		return "", fmt.Errorf("streaming logs for pod %s: %w", pods.Items[0].Name, err)
	}
	defer stream.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(stream); err != nil {
		return "", fmt.Errorf("reading log stream: %w", err)
	}
	return buf.String(), nil
}

func (r *JobRunner) cleanup(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	propagation := metav1.DeletePropagationBackground
	_ = r.clientset.BatchV1().Jobs(r.config.Namespace).Delete(ctx, name, metav1.DeleteOptions{
		PropagationPolicy: &propagation,
	})
}

// JobName returns a DNS-1123 compatible name for a new playbook job.
func JobName(action model.Action) string {
	name := "zbxai-" + strings.ToLower(string(action)) + "-" + uuid.NewString()[:8]
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	return strings.TrimRight(name, "-")
}

func failureMessage(job *batchv1.Job) string {
	for _, c := range job.Status.Conditions {
		if c.Type == batchv1.JobFailed && c.Status == corev1.ConditionTrue {
			if c.Message != "" {
				return c.Message
			}
			return c.Reason
		}
	}
	return ""
}

func timeoutError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &outbound.GatewayError{Reason: "playbook job did not finish in time", Timeout: true, Err: err}
	}
	return &outbound.GatewayError{Reason: "playbook job abandoned", Err: err}
}
