package mqtt

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nugget/wcnotify/internal/config"
	"github.com/nugget/wcnotify/internal/connwatch"
	"github.com/nugget/wcnotify/internal/topics"
)

// Service names used for logging and connwatch status.
const (
	ServiceNetwork = "network"
	ServiceBroker  = "mqtt"
)

// DefaultYield is how long an idle loop iteration waits for a message
// before re-checking the session.
const DefaultYield = 100 * time.Millisecond

// ManagerConfig holds the static settings of a [Manager].
type ManagerConfig struct {
	// NetworkPoll is the fixed delay between association attempts.
	NetworkPoll time.Duration
	// RetryDelay is the fixed delay between handshake attempts.
	RetryDelay time.Duration
	// HandshakeTimeout bounds a single handshake attempt. Zero means
	// unbounded.
	HandshakeTimeout time.Duration
	// QoS is requested for every subscription.
	QoS byte
	// InboxSize bounds the queue between the client goroutine and
	// the control loop.
	InboxSize int
	// Yield is the idle wait per loop iteration (default: 100ms).
	Yield time.Duration
}

// NewManagerConfig derives a ManagerConfig from the loaded config.
func NewManagerConfig(cfg *config.Config) ManagerConfig {
	return ManagerConfig{
		NetworkPoll:      cfg.Network.PollInterval(),
		RetryDelay:       cfg.MQTT.RetryDelay(),
		HandshakeTimeout: cfg.Network.DialTimeout() + time.Duration(cfg.MQTT.KeepAliveSec)*time.Second,
		QoS:              byte(cfg.MQTT.QoS),
		InboxSize:        cfg.InboxSize,
	}
}

// Manager is the connection manager. It owns the session exclusively;
// handlers never see it.
type Manager struct {
	cfg      ManagerConfig
	registry *topics.Registry
	network  Network
	broker   Broker
	logger   *slog.Logger
	tracker  *connwatch.Tracker

	inbox    chan Message
	received atomic.Int64
	dropped  atomic.Int64

	mu       sync.Mutex
	session  Session
	connects int
}

// NewManager creates a Manager but does not connect. Call
// [Manager.Connect] or [Manager.Run].
func NewManager(cfg ManagerConfig, registry *topics.Registry, network Network, broker Broker, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = config.DefaultInboxSize
	}
	if cfg.Yield <= 0 {
		cfg.Yield = DefaultYield
	}
	return &Manager{
		cfg:      cfg,
		registry: registry,
		network:  network,
		broker:   broker,
		logger:   logger,
		tracker:  connwatch.NewTracker(),
		inbox:    make(chan Message, cfg.InboxSize),
	}
}

// Connect brings the connection up from scratch: it waits for the
// network, then for the broker handshake, then subscribes every
// registry topic. Both waits are unbounded; the only error returned
// is ctx's, on cancellation. Subscription failures are logged and do
// not stop the remaining subscriptions.
func (m *Manager) Connect(ctx context.Context) error {
	m.dropSession(ctx)

	if _, err := m.tracker.Poll(ctx, connwatch.PollConfig{
		Name:     ServiceNetwork,
		Interval: m.cfg.NetworkPoll,
		Logger:   m.logger,
	}, m.network.Associate); err != nil {
		return err
	}

	var sess Session
	if _, err := m.tracker.Poll(ctx, connwatch.PollConfig{
		Name:         ServiceBroker,
		Interval:     m.cfg.RetryDelay,
		ProbeTimeout: m.cfg.HandshakeTimeout,
		Logger:       m.logger,
	}, func(ctx context.Context) error {
		s, err := m.broker.Handshake(ctx, m.enqueue)
		if err != nil {
			return err
		}
		sess = s
		return nil
	}); err != nil {
		return err
	}

	m.mu.Lock()
	m.session = sess
	m.connects++
	m.mu.Unlock()

	ok := m.subscribeAll(ctx, sess)
	st := m.Status()
	m.logger.Info("mqtt ready",
		"prefix", m.registry.Prefix(),
		"subscribed", ok,
		"topics", len(m.registry.Topics()),
		ServiceNetwork, st[ServiceNetwork],
		ServiceBroker, st[ServiceBroker],
	)
	return nil
}

// subscribeAll subscribes every topic in registry order and returns
// how many succeeded.
func (m *Manager) subscribeAll(ctx context.Context, sess Session) int {
	ok := 0
	for _, topic := range m.registry.Topics() {
		if err := sess.Subscribe(ctx, topic, m.cfg.QoS); err != nil {
			m.logger.Warn("mqtt subscribe failed", "topic", topic, "error", err)
			continue
		}
		ok++
		m.logger.Info("mqtt subscribed", "topic", topic, "qos", m.cfg.QoS)
	}
	return ok
}

// Connected reports whether the current session is alive.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()
	if sess == nil {
		return false
	}
	select {
	case <-sess.Done():
		return false
	default:
		return true
	}
}

// Connects returns how many times Connect has completed.
func (m *Manager) Connects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

// Status returns the last bring-up result for the network and broker.
func (m *Manager) Status() map[string]connwatch.ServiceStatus {
	return m.tracker.Status()
}

// Run is the control loop. Each iteration reconnects synchronously if
// the session is not alive, hands at most one queued message to
// handle, then yields. handle runs on the calling goroutine, so
// messages are never handled concurrently. Run returns ctx's error
// when ctx is cancelled.
func (m *Manager) Run(ctx context.Context, handle func(Message)) error {
	idle := time.NewTimer(m.cfg.Yield)
	defer idle.Stop()

	// held is a message taken from the inbox after the session was
	// lost. It is handled only once the reconnect has completed.
	var held *Message

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !m.Connected() {
			if m.Connects() > 0 {
				m.tracker.MarkDown(ServiceBroker)
				m.logger.Warn("mqtt session lost, reconnecting",
					"connects", m.Connects(),
					ServiceBroker, m.Status()[ServiceBroker],
				)
			}
			if err := m.Connect(ctx); err != nil {
				return err
			}
		}

		if held != nil {
			handle(*held)
			held = nil
			continue
		}

		idle.Reset(m.cfg.Yield)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-m.inbox:
			if !m.Connected() {
				held = &msg
				continue
			}
			handle(msg)
		case <-m.sessionDone():
		case <-idle.C:
		}
	}
}

// Close ends the current session gracefully.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	sess := m.session
	m.session = nil
	m.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.Close(ctx)
}

func (m *Manager) sessionDone() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	return m.session.Done()
}

// dropSession releases a lost session before reconnecting.
func (m *Manager) dropSession(ctx context.Context) {
	m.mu.Lock()
	sess := m.session
	m.session = nil
	m.mu.Unlock()
	if sess == nil {
		return
	}
	if err := sess.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Debug("mqtt close of lost session failed", "error", err)
	}
}

// enqueue is the delivery callback given to the broker. It never
// blocks the client goroutine: when the inbox is full the message is
// dropped and counted.
func (m *Manager) enqueue(msg Message) {
	m.received.Add(1)
	if m.logger.Enabled(context.Background(), config.LevelTrace) {
		m.logger.Log(context.Background(), config.LevelTrace, "mqtt payload",
			"topic", msg.Topic,
			"payload", string(msg.Payload),
		)
	}
	select {
	case m.inbox <- msg:
	default:
		m.dropped.Add(1)
	}
}

// ReportDrops logs a warning at each interval boundary if any messages
// were dropped because the inbox was full. It blocks until ctx is
// cancelled.
func (m *Manager) ReportDrops(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count := m.received.Swap(0)
			dropped := m.dropped.Swap(0)
			if dropped > 0 {
				m.logger.Warn("mqtt messages dropped, inbox full",
					"received", count,
					"dropped", dropped,
					"interval", interval.String(),
					"inbox_size", cap(m.inbox),
				)
			}
		}
	}
}
