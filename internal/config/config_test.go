package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
switch:
  host: 10.10.0.5
  port: 8021
  password: ClueCon
queue:
  addr: redis:6379
  stream: calls
  group: bridge
  consumer: bridge-a
database:
  dsn: postgres://bridge:pw@db:5432/platform
mqtt:
  broker: tcp://broker:1883
  client_id: bridge-a
  topic_prefix: platform
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Switch.Addr() != "10.10.0.5:8021" {
		t.Errorf("expected addr=10.10.0.5:8021, got %s", cfg.Switch.Addr())
	}
	if cfg.Queue.Stream != "calls" {
		t.Errorf("expected stream=calls, got %s", cfg.Queue.Stream)
	}
	if cfg.MQTT.TopicPrefix != "platform" {
		t.Errorf("expected topic_prefix=platform, got %s", cfg.MQTT.TopicPrefix)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
switch:
  password: ClueCon
database:
  dsn: postgres://bridge:pw@db:5432/platform
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Switch.Host != "127.0.0.1" {
		t.Errorf("expected default host=127.0.0.1, got %s", cfg.Switch.Host)
	}
	if cfg.Switch.Port != 8021 {
		t.Errorf("expected default port=8021, got %d", cfg.Switch.Port)
	}
	if cfg.Switch.ReconnectDelay() != 5*time.Second {
		t.Errorf("expected default reconnect delay 5s, got %v", cfg.Switch.ReconnectDelay())
	}
	if cfg.Queue.Addr != "localhost:6379" {
		t.Errorf("expected default queue addr, got %s", cfg.Queue.Addr)
	}
	if cfg.Queue.MaxDeliver != 5 {
		t.Errorf("expected default max_deliver=5, got %d", cfg.Queue.MaxDeliver)
	}
	if cfg.Queue.AckWait() != 30*time.Second {
		t.Errorf("expected default ack wait 30s, got %v", cfg.Queue.AckWait())
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("expected default broker, got %s", cfg.MQTT.Broker)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, `{{{invalid`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid yaml")
	}
}

func TestValidationErrors(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing switch password",
			content: `
database:
  dsn: postgres://x
`,
			wantErr: "switch.password",
		},
		{
			name: "missing dsn",
			content: `
switch:
  password: ClueCon
`,
			wantErr: "database.dsn",
		},
		{
			name: "bad port",
			content: `
switch:
  password: ClueCon
  port: 70000
database:
  dsn: postgres://x
`,
			wantErr: "switch.port",
		},
		{
			name: "bad max deliver",
			content: `
switch:
  password: ClueCon
database:
  dsn: postgres://x
queue:
  max_deliver: 0
`,
			wantErr: "queue.max_deliver",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error mentioning %q, got %v", tc.wantErr, err)
			}
		})
	}
}
