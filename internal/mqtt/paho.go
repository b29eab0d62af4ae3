package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/wcnotify/internal/config"
)

// Availability payloads.
const (
	availabilityOnline  = "online"
	availabilityOffline = "offline"
)

// PahoBroker is the [Broker] backed by the Eclipse Paho v5 client.
// Each handshake dials a fresh TCP or TLS connection.
type PahoBroker struct {
	cfg         config.MQTTConfig
	url         *url.URL
	addr        string
	clientID    string
	dialTimeout time.Duration
	logger      *slog.Logger
}

// NewBroker creates a PahoBroker but does not connect.
func NewBroker(cfg config.MQTTConfig, network config.NetworkConfig, clientID string, logger *slog.Logger) (*PahoBroker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	brokerURL, err := url.Parse(cfg.Broker)
	if err != nil {
		return nil, fmt.Errorf("parse mqtt broker URL: %w", err)
	}
	return &PahoBroker{
		cfg:         cfg,
		url:         brokerURL,
		addr:        brokerAddr(brokerURL),
		clientID:    clientID,
		dialTimeout: network.DialTimeout(),
		logger:      logger,
	}, nil
}

// Host returns the broker host name, for [NewHostNetwork].
func (b *PahoBroker) Host() string {
	return b.url.Hostname()
}

// useTLS reports whether the URL scheme calls for TLS.
func useTLS(u *url.URL) bool {
	return u.Scheme == "mqtts" || u.Scheme == "ssl"
}

// brokerAddr returns host:port, filling in the scheme's default port.
func brokerAddr(u *url.URL) string {
	port := u.Port()
	if port == "" {
		port = "1883"
		if useTLS(u) {
			port = "8883"
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}

func (b *PahoBroker) dial(ctx context.Context) (net.Conn, error) {
	d := &net.Dialer{Timeout: b.dialTimeout}
	if !useTLS(b.url) {
		return d.DialContext(ctx, "tcp", b.addr)
	}
	td := &tls.Dialer{
		NetDialer: d,
		Config: &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: b.url.Hostname(),
		},
	}
	return td.DialContext(ctx, "tcp", b.addr)
}

// connectPacket builds the CONNECT packet from static credentials.
func (b *PahoBroker) connectPacket() *paho.Connect {
	cp := &paho.Connect{
		KeepAlive:  uint16(b.cfg.KeepAliveSec),
		ClientID:   b.clientID,
		CleanStart: true,
	}
	if b.cfg.Username != "" {
		cp.Username = b.cfg.Username
		cp.UsernameFlag = true
	}
	if b.cfg.Password != "" {
		cp.Password = []byte(b.cfg.Password)
		cp.PasswordFlag = true
	}
	if b.cfg.AvailabilityTopic != "" {
		cp.WillMessage = &paho.WillMessage{
			Topic:   b.cfg.AvailabilityTopic,
			Payload: []byte(availabilityOffline),
			QoS:     1,
			Retain:  true,
		}
	}
	return cp
}

// Handshake implements [Broker].
func (b *PahoBroker) Handshake(ctx context.Context, deliver func(Message)) (Session, error) {
	conn, err := b.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", b.addr, err)
	}

	c := paho.NewClient(paho.ClientConfig{
		ClientID: b.clientID,
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				deliver(Message{Topic: pr.Packet.Topic, Payload: pr.Packet.Payload})
				return true, nil
			},
		},
		OnClientError: func(err error) {
			b.logger.Warn("mqtt client error", "error", err)
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			b.logger.Warn("mqtt server disconnected", "reason_code", d.ReasonCode)
		},
	})

	ca, err := c.Connect(ctx, b.connectPacket())
	if err != nil {
		_ = conn.Close()
		if ca != nil && ca.ReasonCode != 0 {
			return nil, fmt.Errorf("mqtt connect refused (reason %d): %w", ca.ReasonCode, err)
		}
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	b.logger.Info("mqtt connected to broker", "broker", b.cfg.Broker, "client_id", b.clientID)

	s := &pahoSession{
		client:            c,
		availabilityTopic: b.cfg.AvailabilityTopic,
		logger:            b.logger,
	}
	s.publishAvailability(ctx, availabilityOnline)
	return s, nil
}

// pahoSession adapts a connected *paho.Client to [Session].
type pahoSession struct {
	client            *paho.Client
	availabilityTopic string
	logger            *slog.Logger
	closeOnce         sync.Once
	closeErr          error
}

func (s *pahoSession) Subscribe(ctx context.Context, topic string, qos byte) error {
	sa, err := s.client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: qos}},
	})
	if err != nil {
		return err
	}
	if sa != nil && len(sa.Reasons) > 0 && sa.Reasons[0] >= 0x80 {
		return fmt.Errorf("subscription refused (reason %d)", sa.Reasons[0])
	}
	return nil
}

func (s *pahoSession) Done() <-chan struct{} {
	return s.client.Done()
}

func (s *pahoSession) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		select {
		case <-s.client.Done():
			return
		default:
		}
		s.publishAvailability(ctx, availabilityOffline)
		s.closeErr = s.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
	})
	return s.closeErr
}

func (s *pahoSession) publishAvailability(ctx context.Context, status string) {
	if s.availabilityTopic == "" {
		return
	}
	if _, err := s.client.Publish(ctx, &paho.Publish{
		Topic:   s.availabilityTopic,
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		s.logger.Warn("mqtt availability publish failed",
			"status", status, "error", err)
	} else {
		s.logger.Info("mqtt availability published", "status", status)
	}
}
