// Package config handles wcnotify configuration loading.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/wcnotify/config.yaml, /etc/wcnotify/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "wcnotify", "config.yaml"))
	}

	paths = append(paths, "/etc/wcnotify/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all wcnotify configuration. Every value is static for
// the life of the process.
type Config struct {
	MQTT      MQTTConfig    `yaml:"mqtt"`
	Network   NetworkConfig `yaml:"network"`
	InboxSize int           `yaml:"inbox_size"`
	DataDir   string        `yaml:"data_dir"`
	LogLevel  string        `yaml:"log_level"`
	LogFormat string        `yaml:"log_format"`
}

// MQTTConfig defines the broker session and topic settings.
type MQTTConfig struct {
	// Broker is the broker URL, e.g. mqtt://broker.lan:1883 or
	// mqtts://broker.example.com:8883.
	Broker   string `yaml:"broker"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// ClientID overrides the identifier derived from the instance ID.
	ClientID string `yaml:"client_id"`

	// TopicPrefix is prepended to every fixed topic suffix. It must
	// match the prefix configured in the WooCommerce plugin.
	TopicPrefix string `yaml:"topic_prefix"`

	KeepAliveSec  int `yaml:"keepalive_sec"`   // Default: 30
	RetryDelaySec int `yaml:"retry_delay_sec"` // Handshake retry delay. Default: 5
	QoS           int `yaml:"qos"`             // Subscription QoS 0-2. Default: 0

	// AvailabilityTopic, if set, receives a retained "online" after
	// each connect and "offline" on shutdown or as the will message.
	AvailabilityTopic string `yaml:"availability_topic"`
}

// NetworkConfig defines the link bring-up that precedes the broker
// handshake.
type NetworkConfig struct {
	PollIntervalMs int `yaml:"poll_interval_ms"` // Default: 500
	DialTimeoutSec int `yaml:"dial_timeout_sec"` // Default: 10
}

// Default values applied by [Config.applyDefaults].
const (
	DefaultTopicPrefix    = "woocommerce/"
	DefaultKeepAliveSec   = 30
	DefaultRetryDelaySec  = 5
	DefaultPollIntervalMs = 500
	DefaultDialTimeoutSec = 10
	DefaultInboxSize      = 64
	DefaultDataDir        = "./data"
)

// Configured reports whether a broker has been set.
func (c MQTTConfig) Configured() bool {
	return c.Broker != ""
}

// RetryDelay returns the handshake retry delay.
func (c MQTTConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySec) * time.Second
}

// PollInterval returns the network association poll interval.
func (c NetworkConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// DialTimeout returns the per-attempt dial timeout.
func (c NetworkConfig) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutSec) * time.Second
}

// Load reads configuration from a YAML file, applies defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied and no
// broker set.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = DefaultTopicPrefix
	}
	if c.MQTT.KeepAliveSec <= 0 {
		c.MQTT.KeepAliveSec = DefaultKeepAliveSec
	}
	if c.MQTT.RetryDelaySec <= 0 {
		c.MQTT.RetryDelaySec = DefaultRetryDelaySec
	}
	if c.Network.PollIntervalMs <= 0 {
		c.Network.PollIntervalMs = DefaultPollIntervalMs
	}
	if c.Network.DialTimeoutSec <= 0 {
		c.Network.DialTimeoutSec = DefaultDialTimeoutSec
	}
	if c.InboxSize <= 0 {
		c.InboxSize = DefaultInboxSize
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

// Validate checks the configuration for values that would prevent
// startup.
func (c *Config) Validate() error {
	if !c.MQTT.Configured() {
		return fmt.Errorf("mqtt.broker is required")
	}
	u, err := url.Parse(c.MQTT.Broker)
	if err != nil {
		return fmt.Errorf("mqtt.broker: %w", err)
	}
	switch u.Scheme {
	case "mqtt", "tcp", "mqtts", "ssl":
	default:
		return fmt.Errorf("mqtt.broker: unsupported scheme %q (valid: mqtt, tcp, mqtts, ssl)", u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("mqtt.broker: missing host in %q", c.MQTT.Broker)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.MQTT.KeepAliveSec > 65535 {
		return fmt.Errorf("mqtt.keepalive_sec must be at most 65535, got %d", c.MQTT.KeepAliveSec)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format: unknown format %q (valid: text, json)", c.LogFormat)
	}
	return nil
}
