package mqtt

import "context"

// Message is a single inbound publish. It is not retained after its
// handler returns.
type Message struct {
	Topic   string
	Payload []byte
}

// Network brings up the host link the broker is reached over.
// Associate returns nil once the link is usable.
type Network interface {
	Associate(ctx context.Context) error
}

// Broker performs one MQTT handshake attempt. Every inbound publish on
// the resulting session is passed to deliver, possibly from another
// goroutine.
type Broker interface {
	Handshake(ctx context.Context, deliver func(Message)) (Session, error)
}

// Session is a live broker session.
type Session interface {
	// Subscribe subscribes to a single topic filter.
	Subscribe(ctx context.Context, topic string, qos byte) error
	// Done is closed when the session is lost.
	Done() <-chan struct{}
	// Close ends the session gracefully. It is safe to call on a
	// session that is already lost.
	Close(ctx context.Context) error
}
