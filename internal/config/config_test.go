package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFindConfig_Explicit(t *testing.T) {
	path := writeConfig(t, "mqtt:\n  broker: mqtt://localhost:1883\n")

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("mqtt:\n  broker: mqtt://x\n"), 0600)
	t.Chdir(dir)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "mqtt:\n  broker: mqtt://broker.lan:1883\n"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"topic_prefix", cfg.MQTT.TopicPrefix, "woocommerce/"},
		{"keepalive_sec", cfg.MQTT.KeepAliveSec, 30},
		{"retry_delay", cfg.MQTT.RetryDelay(), 5 * time.Second},
		{"qos", cfg.MQTT.QoS, 0},
		{"poll_interval", cfg.Network.PollInterval(), 500 * time.Millisecond},
		{"dial_timeout", cfg.Network.DialTimeout(), 10 * time.Second},
		{"inbox_size", cfg.InboxSize, 64},
		{"data_dir", cfg.DataDir, "./data"},
		{"log_format", cfg.LogFormat, "text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("WCNOTIFY_TEST_PASSWORD", "secret123")
	path := writeConfig(t, "mqtt:\n  broker: mqtt://x:1883\n  username: shop\n  password: ${WCNOTIFY_TEST_PASSWORD}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.MQTT.Password != "secret123" {
		t.Errorf("password = %q, want %q", cfg.MQTT.Password, "secret123")
	}
	if cfg.MQTT.Username != "shop" {
		t.Errorf("username = %q, want %q", cfg.MQTT.Username, "shop")
	}
}

func TestLoad_ExplicitValues(t *testing.T) {
	path := writeConfig(t, `
mqtt:
  broker: mqtts://broker.example.com:8883
  client_id: till-1
  topic_prefix: shop/
  keepalive_sec: 60
  retry_delay_sec: 2
  qos: 1
  availability_topic: shop/notifier/status
network:
  poll_interval_ms: 250
  dial_timeout_sec: 3
inbox_size: 8
data_dir: /var/lib/wcnotify
log_level: debug
log_format: json
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.MQTT.ClientID != "till-1" || cfg.MQTT.TopicPrefix != "shop/" || cfg.MQTT.QoS != 1 {
		t.Errorf("mqtt = %+v", cfg.MQTT)
	}
	if cfg.Network.PollInterval() != 250*time.Millisecond {
		t.Errorf("poll interval = %v", cfg.Network.PollInterval())
	}
	if cfg.InboxSize != 8 || cfg.DataDir != "/var/lib/wcnotify" {
		t.Errorf("inbox=%d data_dir=%q", cfg.InboxSize, cfg.DataDir)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"no broker", "log_level: info\n", "mqtt.broker is required"},
		{"bad scheme", "mqtt:\n  broker: http://x:80\n", "unsupported scheme"},
		{"no host", "mqtt:\n  broker: mqtt://:1883\n", "missing host"},
		{"bad qos", "mqtt:\n  broker: mqtt://x\n  qos: 3\n", "mqtt.qos"},
		{"bad keepalive", "mqtt:\n  broker: mqtt://x\n  keepalive_sec: 70000\n", "keepalive"},
		{"bad level", "mqtt:\n  broker: mqtt://x\nlog_level: loud\n", "log_level"},
		{"bad format", "mqtt:\n  broker: mqtt://x\nlog_format: xml\n", "log_format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.MQTT.Configured() {
		t.Error("Default() should not configure a broker")
	}
	if cfg.MQTT.TopicPrefix != DefaultTopicPrefix {
		t.Errorf("TopicPrefix = %q", cfg.MQTT.TopicPrefix)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{" trace ", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_TraceName(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelTrace, "text")
	logger.Log(context.Background(), LevelTrace, "payload", "topic", "x")

	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("expected level=TRACE, got: %s", buf.String())
	}
}

func TestConfig_LoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.LogFormat = "json"
	cfg.Logger(&buf).Info("hello")

	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("expected JSON output, got: %s", buf.String())
	}
}
