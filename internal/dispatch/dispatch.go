// Package dispatch routes inbound MQTT messages to the handler bound
// to their topic.
//
// A topic is resolved to its event kind through a [topics.Registry]
// and the kind selects a single handler. A topic that is not in the
// registry, or whose kind has no handler, is dropped without invoking
// anything.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nugget/wcnotify/internal/topics"
)

// Handler receives the payload of a message on its bound topic. It
// runs synchronously inside [Dispatcher.Dispatch].
type Handler func(payload string)

// Dispatcher is a closed-set routing table. Routes are registered at
// startup with [Dispatcher.Handle]; after that the table is read-only.
type Dispatcher struct {
	registry *topics.Registry
	handlers map[topics.Kind]Handler
	logger   *slog.Logger
}

// New creates an empty dispatcher for the topics in registry.
func New(registry *topics.Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		handlers: make(map[topics.Kind]Handler, len(topics.Kinds())),
		logger:   logger,
	}
}

// Handle binds h to the topic of kind, replacing any earlier binding.
// It panics if kind is not a defined event kind or h is nil; both are
// wiring bugs.
func (d *Dispatcher) Handle(kind topics.Kind, h Handler) {
	if !kind.Valid() {
		panic(fmt.Sprintf("dispatch: invalid kind %v", kind))
	}
	if h == nil {
		panic(fmt.Sprintf("dispatch: nil handler for %v", kind))
	}
	d.handlers[kind] = h
}

// Dispatch invokes the handler bound to topic with payload and reports
// whether one was found. Unknown topics are dropped silently.
func (d *Dispatcher) Dispatch(topic string, payload []byte) bool {
	kind, known := d.registry.Lookup(topic)
	if d.logger.Enabled(context.Background(), slog.LevelDebug) {
		attrs := []any{"topic", topic, "payload_size", len(payload)}
		if known {
			attrs = append(attrs, "kind", kind.String())
		}
		d.logger.Debug("mqtt message received", attrs...)
	}
	if !known {
		return false
	}

	h, ok := d.handlers[kind]
	if !ok {
		return false
	}
	h(string(payload))
	return true
}

// Bound returns the kinds that have a handler, in registry order.
func (d *Dispatcher) Bound() []topics.Kind {
	var out []topics.Kind
	for _, k := range topics.Kinds() {
		if _, ok := d.handlers[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
