package config

import (
	"os"
	"path/filepath"
	"testing"
)

// writeConfig writes a temporary config file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
node:
  group_id: "plant-a"
  node_id: "edge-07"
  device_id: "dev1"
  client_id: "edge-07-client"
broker:
  host: "broker.example.com"
  port: 8883
security:
  mode: "tls-with-ca"
  ca_file: "certs/ca.crt"
database:
  path: "/tmp/sparkedge.db"
buffer:
  ceiling_bytes: 1048576
tags:
  - name: "Device/Performance/CPU Usage"
    type: "double"
    unit: "%"
    deadband: 2.0
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Node.GroupID != "plant-a" {
		t.Errorf("Node.GroupID = %q, want %q", cfg.Node.GroupID, "plant-a")
	}
	if cfg.Broker.Port != 8883 {
		t.Errorf("Broker.Port = %d, want 8883", cfg.Broker.Port)
	}
	if cfg.Security.Mode != SecurityTLSWithCA {
		t.Errorf("Security.Mode = %q, want %q", cfg.Security.Mode, SecurityTLSWithCA)
	}
	if cfg.Buffer.CeilingBytes != 1048576 {
		t.Errorf("Buffer.CeilingBytes = %d, want 1048576", cfg.Buffer.CeilingBytes)
	}
	if len(cfg.Tags) != 1 || cfg.Tags[0].Deadband != 2.0 {
		t.Errorf("Tags = %+v, want one tag with deadband 2.0", cfg.Tags)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "node:\n  node_id: \"edge-01\"\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Broker.Host != "localhost" {
		t.Errorf("Broker.Host = %q, want localhost default", cfg.Broker.Host)
	}
	if cfg.Buffer.CeilingBytes != DefaultBufferCeiling {
		t.Errorf("Buffer.CeilingBytes = %d, want default %d", cfg.Buffer.CeilingBytes, DefaultBufferCeiling)
	}
	if cfg.Scheduler.Interval != 5 {
		t.Errorf("Scheduler.Interval = %d, want 5", cfg.Scheduler.Interval)
	}
	if cfg.Watchdog.Interval != 5 {
		t.Errorf("Watchdog.Interval = %d, want 5", cfg.Watchdog.Interval)
	}
	if cfg.Security.Mode != SecurityNone {
		t.Errorf("Security.Mode = %q, want %q", cfg.Security.Mode, SecurityNone)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "empty node id",
			content: "node:\n  node_id: \"\"\n  group_id: \"\"\n  client_id: \"\"\n",
		},
		{
			name:    "bad security mode",
			content: "security:\n  mode: \"tls-maybe\"\n",
		},
		{
			name:    "bad broker port",
			content: "broker:\n  port: 70000\n",
		},
		{
			name:    "non-positive ceiling",
			content: "buffer:\n  ceiling_bytes: -1\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Errorf("Load() expected validation error, got nil")
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SPARKEDGE_BROKER_HOST", "env-broker")
	t.Setenv("SPARKEDGE_BROKER_PORT", "2883")
	t.Setenv("SPARKEDGE_SECURITY_PASSWORD", "env-secret")

	cfg, err := Load(writeConfig(t, "broker:\n  host: \"file-broker\"\n  port: 1883\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Broker.Host != "env-broker" {
		t.Errorf("Broker.Host = %q, want env override %q", cfg.Broker.Host, "env-broker")
	}
	if cfg.Broker.Port != 2883 {
		t.Errorf("Broker.Port = %d, want env override 2883", cfg.Broker.Port)
	}
	if cfg.Security.Password != "env-secret" {
		t.Errorf("Security.Password not overridden from environment")
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.SchedulerInterval().Seconds(); got != 5 {
		t.Errorf("SchedulerInterval() = %vs, want 5s", got)
	}
	if got := cfg.WatchdogInterval().Seconds(); got != 5 {
		t.Errorf("WatchdogInterval() = %vs, want 5s", got)
	}
	if got := cfg.KeepAlive().Seconds(); got != 60 {
		t.Errorf("KeepAlive() = %vs, want 60s", got)
	}
}
