package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_ValidConfigFile(t *testing.T) {
	cfg, err := Load("../../config")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.Queue.Type != "sqs" {
		t.Errorf("expected queue type sqs, got %s", cfg.Queue.Type)
	}
	if cfg.Queue.URL != "http://localhost:4566/000000000000/notifications" {
		t.Errorf("unexpected queue url %s", cfg.Queue.URL)
	}
	if cfg.Queue.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Queue.Workers)
	}
	if cfg.Queue.MaxReceiveCount != 1 {
		t.Errorf("expected max receive count 1, got %d", cfg.Queue.MaxReceiveCount)
	}
	if cfg.Queue.RetryCap != 0 {
		t.Errorf("expected uncapped retry budget, got %d", cfg.Queue.RetryCap)
	}
	if cfg.Queue.ProcessTimeout != 5*time.Minute {
		t.Errorf("expected process timeout 5m, got %v", cfg.Queue.ProcessTimeout)
	}
	if cfg.DLQ.URL != "http://localhost:4566/000000000000/notifications-dlq" {
		t.Errorf("unexpected dlq url %s", cfg.DLQ.URL)
	}

	if cfg.Retry.MaxRetries != 3 || cfg.Retry.BaseDelay != time.Second || cfg.Retry.MaxDelay != 30*time.Second {
		t.Errorf("unexpected retry config %+v", cfg.Retry)
	}
	if cfg.Retry.Factor != 2 || cfg.Retry.JitterFraction != 0.1 {
		t.Errorf("unexpected retry factor/jitter %+v", cfg.Retry)
	}

	if cfg.Logging.Level != "info" || cfg.Logging.Service != "notification-worker" {
		t.Errorf("unexpected logging config %+v", cfg.Logging)
	}
	if cfg.HTTP.Addr != ":8080" || !cfg.HTTP.Enabled {
		t.Errorf("unexpected http config %+v", cfg.HTTP)
	}
	if cfg.Auth.Enabled() {
		t.Error("auth should be disabled without a signing key")
	}
	if cfg.Email.Type != "stdout" {
		t.Errorf("expected stdout email provider, got %s", cfg.Email.Type)
	}
	if !cfg.Breaker.Enabled || cfg.Breaker.ConsecutiveFailures != 5 {
		t.Errorf("unexpected breaker config %+v", cfg.Breaker)
	}
	if !cfg.Metrics.Prometheus || cfg.Metrics.CloudWatch {
		t.Errorf("unexpected metrics config %+v", cfg.Metrics)
	}
	if cfg.Archive.Type != "none" {
		t.Errorf("expected archive disabled, got %s", cfg.Archive.Type)
	}
	if cfg.Health.Interval != 30*time.Second {
		t.Errorf("expected health interval 30s, got %v", cfg.Health.Interval)
	}
}

func TestLoad_EnvironmentVariableOverride(t *testing.T) {
	t.Setenv("NOTIFY_QUEUE_URL", "https://sqs.eu-west-1.amazonaws.com/123/prod")
	t.Setenv("NOTIFY_QUEUE_MAX_RECEIVE_COUNT", "3")
	t.Setenv("NOTIFY_RETRY_MAX_RETRIES", "2")
	t.Setenv("NOTIFY_AUTH_SIGNING_KEY", "override-signing-key")

	cfg, err := Load("../../config")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.Queue.URL != "https://sqs.eu-west-1.amazonaws.com/123/prod" {
		t.Errorf("expected queue url override, got %s", cfg.Queue.URL)
	}
	if cfg.Queue.MaxReceiveCount != 3 {
		t.Errorf("expected max receive count 3, got %d", cfg.Queue.MaxReceiveCount)
	}
	if cfg.Retry.MaxRetries != 2 {
		t.Errorf("expected max retries 2, got %d", cfg.Retry.MaxRetries)
	}
	if !cfg.Auth.Enabled() {
		t.Error("expected auth enabled from env")
	}
	// Other values still come from the file.
	if cfg.Queue.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Queue.Workers)
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("NOTIFY_QUEUE_TYPE", "redis")
	t.Setenv("NOTIFY_DLQ_TYPE", "redis")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Queue.Stream != "notifications" || cfg.DLQ.Stream != "notifications:dlq" {
		t.Errorf("unexpected streams %s / %s", cfg.Queue.Stream, cfg.DLQ.Stream)
	}
	if cfg.Queue.MaxReceiveCount != 1 {
		t.Errorf("expected default max receive count 1, got %d", cfg.Queue.MaxReceiveCount)
	}
	if cfg.Email.Type != "stdout" {
		t.Errorf("expected default email type stdout, got %s", cfg.Email.Type)
	}
}

func TestLoad_PartialConfig(t *testing.T) {
	tmpDir := t.TempDir()
	partialConfig := `
queue:
  type: redis
dlq:
  type: redis
logging:
  level: debug
`
	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte(partialConfig), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	// Defaults fill unset fields.
	if cfg.Queue.BatchSize != 10 {
		t.Errorf("expected default batch size 10, got %d", cfg.Queue.BatchSize)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("expected default http addr, got %s", cfg.HTTP.Addr)
	}
	if cfg.Retry.BaseDelay != time.Second {
		t.Errorf("expected default base delay 1s, got %v", cfg.Retry.BaseDelay)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	if _, err := Load("/nonexistent/path"); err == nil {
		t.Error("expected error for missing config file, got nil")
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "sqs without urls",
			env:     map[string]string{},
			wantErr: "queue.url is required",
		},
		{
			name:    "unknown queue type",
			env:     map[string]string{"NOTIFY_QUEUE_TYPE": "kafka", "NOTIFY_DLQ_TYPE": "redis"},
			wantErr: `queue.type "kafka"`,
		},
		{
			name:    "zero receive count",
			env:     map[string]string{"NOTIFY_QUEUE_TYPE": "redis", "NOTIFY_DLQ_TYPE": "redis", "NOTIFY_QUEUE_MAX_RECEIVE_COUNT": "0"},
			wantErr: "max_receive_count",
		},
		{
			name:    "sendgrid without key",
			env:     map[string]string{"NOTIFY_QUEUE_TYPE": "redis", "NOTIFY_DLQ_TYPE": "redis", "NOTIFY_EMAIL_TYPE": "sendgrid"},
			wantErr: "api_key is required",
		},
		{
			name:    "inverted delays",
			env:     map[string]string{"NOTIFY_QUEUE_TYPE": "redis", "NOTIFY_DLQ_TYPE": "redis", "NOTIFY_RETRY_BASE_DELAY": "1m"},
			wantErr: "base_delay",
		},
		{
			name:    "negative retry cap",
			env:     map[string]string{"NOTIFY_QUEUE_TYPE": "redis", "NOTIFY_DLQ_TYPE": "redis", "NOTIFY_QUEUE_RETRY_CAP": "-1"},
			wantErr: "retry_cap",
		},
		{
			name:    "s3 archive without bucket",
			env:     map[string]string{"NOTIFY_QUEUE_TYPE": "redis", "NOTIFY_DLQ_TYPE": "redis", "NOTIFY_ARCHIVE_TYPE": "s3"},
			wantErr: "s3_bucket",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadForLambda_SkipsSourceQueue(t *testing.T) {
	t.Setenv("NOTIFY_DLQ_URL", "http://localhost:4566/000000000000/notifications-dlq")

	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "queue.url") {
		t.Fatalf("Load() error = %v, want queue.url error", err)
	}

	cfg, err := LoadForLambda("")
	if err != nil {
		t.Fatalf("LoadForLambda() error = %v", err)
	}
	if cfg.Queue.URL != "" {
		t.Errorf("unexpected queue url %q", cfg.Queue.URL)
	}
}

func TestLoadForLambda_ValidatesDLQ(t *testing.T) {
	_, err := LoadForLambda("")
	if err == nil || !strings.Contains(err.Error(), "dlq.url") {
		t.Fatalf("LoadForLambda() error = %v, want dlq.url error", err)
	}
	if strings.Contains(err.Error(), "queue.url") {
		t.Errorf("LoadForLambda() checked the source queue: %v", err)
	}
}
