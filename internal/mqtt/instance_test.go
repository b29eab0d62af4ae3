package mqtt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nugget/wcnotify/internal/config"
)

func TestLoadOrCreateInstanceID_CreatesFile(t *testing.T) {
	dir := t.TempDir()

	id, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateInstanceID() error = %v", err)
	}
	if id == "" {
		t.Fatal("LoadOrCreateInstanceID() returned empty string")
	}

	data, err := os.ReadFile(filepath.Join(dir, "instance_id"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != id {
		t.Errorf("file content = %q, want %q", got, id)
	}
}

func TestLoadOrCreateInstanceID_ReturnsExisting(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("first call error = %v", err)
	}
	second, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("second call error = %v", err)
	}
	if second != first {
		t.Errorf("second = %q, want %q (should be stable)", second, first)
	}
}

func TestLoadOrCreateInstanceID_UnwritableDir(t *testing.T) {
	_, err := LoadOrCreateInstanceID(filepath.Join(t.TempDir(), "missing", "dir"))
	if err == nil {
		t.Fatal("expected error for missing data directory")
	}
}

func TestDeriveClientID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"01928c5e-7a3b-7c3d-9e4f-0a1b2c3d4e5f", "wcnotify-0a1b2c3d4e5f"},
		{"01928C5E-7A3B-7C3D-9E4F-0A1B2C3D4E5F", "wcnotify-0a1b2c3d4e5f"},
		{"abc", "wcnotify-abc"},
	}
	for _, tt := range tests {
		if got := DeriveClientID(tt.in); got != tt.want {
			t.Errorf("DeriveClientID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := DeriveClientID("01928c5e-7a3b-7c3d-9e4f-0a1b2c3d4e5f"); len(got) > 23 {
		t.Errorf("client id %q longer than 23 bytes", got)
	}
}

func TestClientID(t *testing.T) {
	dir := t.TempDir()

	explicit, err := ClientID(config.MQTTConfig{ClientID: "till-1"}, dir)
	if err != nil || explicit != "till-1" {
		t.Errorf("ClientID(explicit) = %q, %v", explicit, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "instance_id")); err == nil {
		t.Error("explicit client id should not create an instance id")
	}

	first, err := ClientID(config.MQTTConfig{}, dir)
	if err != nil {
		t.Fatalf("ClientID() error = %v", err)
	}
	if !strings.HasPrefix(first, "wcnotify-") {
		t.Errorf("ClientID() = %q, want wcnotify- prefix", first)
	}
	second, _ := ClientID(config.MQTTConfig{}, dir)
	if first != second {
		t.Errorf("ClientID not stable across calls: %q vs %q", first, second)
	}
}
