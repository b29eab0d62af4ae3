package mqtt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/nugget/wcnotify/internal/config"
)

// clientIDPrefix leaves room for 12 hex digits within the 23-byte
// client identifier limit some brokers still enforce.
const clientIDPrefix = "wcnotify-"

// LoadOrCreateInstanceID reads the instance ID from a file in dataDir,
// or generates a new UUIDv7 and persists it if the file does not exist.
// The instance ID stands in for a hardware serial: it is stable across
// restarts so the broker sees the same client identifier every time.
func LoadOrCreateInstanceID(dataDir string) (string, error) {
	path := filepath.Join(dataDir, "instance_id")

	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id, nil
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate instance ID: %w", err)
	}

	idStr := id.String()
	if err := os.WriteFile(path, []byte(idStr+"\n"), 0644); err != nil {
		return "", fmt.Errorf("persist instance ID to %s: %w", path, err)
	}

	return idStr, nil
}

// ClientID returns the MQTT client identifier. An explicit
// mqtt.client_id wins; otherwise it is derived from the persisted
// instance ID in dataDir.
func ClientID(cfg config.MQTTConfig, dataDir string) (string, error) {
	if cfg.ClientID != "" {
		return cfg.ClientID, nil
	}
	id, err := LoadOrCreateInstanceID(dataDir)
	if err != nil {
		return "", err
	}
	return DeriveClientID(id), nil
}

// DeriveClientID turns an instance ID into a client identifier using
// its last 12 hex digits, which are the random part of a UUIDv7.
func DeriveClientID(instanceID string) string {
	hex := strings.ReplaceAll(instanceID, "-", "")
	if len(hex) > 12 {
		hex = hex[len(hex)-12:]
	}
	return clientIDPrefix + strings.ToLower(hex)
}
