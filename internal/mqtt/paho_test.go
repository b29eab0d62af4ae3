package mqtt

import (
	"context"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/nugget/wcnotify/internal/config"
)

func TestBrokerAddr(t *testing.T) {
	tests := []struct {
		broker string
		want   string
	}{
		{"mqtt://broker.lan", "broker.lan:1883"},
		{"tcp://broker.lan:1884", "broker.lan:1884"},
		{"mqtts://broker.example.com", "broker.example.com:8883"},
		{"ssl://10.0.0.5:9999", "10.0.0.5:9999"},
		{"mqtt://[::1]", "[::1]:1883"},
	}
	for _, tt := range tests {
		u, err := url.Parse(tt.broker)
		if err != nil {
			t.Fatal(err)
		}
		if got := brokerAddr(u); got != tt.want {
			t.Errorf("brokerAddr(%q) = %q, want %q", tt.broker, got, tt.want)
		}
	}
}

func TestNewBroker(t *testing.T) {
	b, err := NewBroker(config.MQTTConfig{Broker: "mqtts://broker.example.com"}, config.NetworkConfig{DialTimeoutSec: 3}, "wcnotify-abc", nil)
	if err != nil {
		t.Fatalf("NewBroker() error = %v", err)
	}
	if b.Host() != "broker.example.com" {
		t.Errorf("Host() = %q", b.Host())
	}
	if b.clientID != "wcnotify-abc" {
		t.Errorf("clientID = %q", b.clientID)
	}
	if !useTLS(b.url) {
		t.Error("mqtts scheme should use TLS")
	}
	if b.dialTimeout != 3*time.Second {
		t.Errorf("dialTimeout = %v", b.dialTimeout)
	}

	if _, err := NewBroker(config.MQTTConfig{Broker: "://bad"}, config.NetworkConfig{}, "x", nil); err == nil {
		t.Error("expected error for malformed broker URL")
	}
}

func TestConnectPacket(t *testing.T) {
	b, _ := NewBroker(config.MQTTConfig{
		Broker:            "mqtt://x",
		Username:          "shop",
		Password:          "secret",
		KeepAliveSec:      30,
		AvailabilityTopic: "shop/notifier/status",
	}, config.NetworkConfig{}, "wcnotify-1", nil)

	cp := b.connectPacket()
	if cp.ClientID != "wcnotify-1" || !cp.CleanStart || cp.KeepAlive != 30 {
		t.Errorf("connect = %+v", cp)
	}
	if !cp.UsernameFlag || cp.Username != "shop" {
		t.Errorf("username flag=%v value=%q", cp.UsernameFlag, cp.Username)
	}
	if !cp.PasswordFlag || string(cp.Password) != "secret" {
		t.Errorf("password flag=%v", cp.PasswordFlag)
	}
	if cp.WillMessage == nil || cp.WillMessage.Topic != "shop/notifier/status" ||
		string(cp.WillMessage.Payload) != "offline" || !cp.WillMessage.Retain {
		t.Errorf("will = %+v", cp.WillMessage)
	}
}

func TestConnectPacket_Anonymous(t *testing.T) {
	b, _ := NewBroker(config.MQTTConfig{Broker: "mqtt://x"}, config.NetworkConfig{}, "c", nil)
	cp := b.connectPacket()
	if cp.UsernameFlag || cp.PasswordFlag {
		t.Error("anonymous connect should not set credential flags")
	}
	if cp.WillMessage != nil {
		t.Error("will message set without availability topic")
	}
}

func TestHandshake_DialFailure(t *testing.T) {
	// Grab a free port, then close it so the dial is refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	b, _ := NewBroker(config.MQTTConfig{Broker: "mqtt://" + addr}, config.NetworkConfig{DialTimeoutSec: 1}, "c", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := b.Handshake(ctx, func(Message) {}); err == nil {
		t.Error("expected dial error")
	}
}
