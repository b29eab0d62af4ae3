// Package topics defines the closed set of WooCommerce notification
// events and the MQTT topic each one is published on.
//
// A topic is the configured prefix followed by a fixed suffix per
// event kind. The suffixes are disjoint, so every topic in a
// [Registry] is unique without any runtime check.
package topics

import "fmt"

// Kind identifies one of the business events the notifier reacts to.
type Kind int

// Event kinds in registry order.
const (
	OrderPending Kind = iota
	OrderOnHold
	OrderProcessing
	OrderCompleted
	OrderCancelled
	OrderFailed
	OrderRefunded
	StockLow
	StockOut
	StatsOrders
	StatsStock

	numKinds int = iota
)

type kindInfo struct {
	name   string
	suffix string
}

// kindTable is indexed by Kind. The suffixes are the wire contract
// with the WooCommerce plugin and must not change.
var kindTable = [numKinds]kindInfo{
	OrderPending:    {"order-pending", "orders/pending"},
	OrderOnHold:     {"order-onhold", "orders/on-hold"},
	OrderProcessing: {"order-processing", "orders/processing"},
	OrderCompleted:  {"order-completed", "orders/completed"},
	OrderCancelled:  {"order-cancelled", "orders/cancelled"},
	OrderFailed:     {"order-failed", "orders/failed"},
	OrderRefunded:   {"order-refunded", "orders/refunded"},
	StockLow:        {"stock-low", "stock/low"},
	StockOut:        {"stock-out", "stock/out"},
	StatsOrders:     {"stats-orders", "stats/orders"},
	StatsStock:      {"stats-stock", "stats/stock"},
}

// Kinds returns every event kind in registry order.
func Kinds() []Kind {
	kinds := make([]Kind, numKinds)
	for i := range kinds {
		kinds[i] = Kind(i)
	}
	return kinds
}

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	return k >= 0 && int(k) < numKinds
}

// String returns the hyphenated event name, e.g. "order-processing".
func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindTable[k].name
}

// Suffix returns the fixed topic suffix for k, e.g. "orders/processing".
func (k Kind) Suffix() string {
	if !k.Valid() {
		return ""
	}
	return kindTable[k].suffix
}

// IsStats reports whether k carries an aggregate JSON snapshot rather
// than a single identifier.
func (k Kind) IsStats() bool {
	return k == StatsOrders || k == StatsStock
}

// ParseKind converts an event name back to its Kind.
func ParseKind(name string) (Kind, error) {
	for i, info := range kindTable {
		if info.name == name {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", name)
}

// Registry maps every event kind to its full topic string. It is
// built once at startup and never mutated, so it is safe to share
// between goroutines.
type Registry struct {
	prefix string
	topics [numKinds]string
	byName map[string]Kind
}

// NewRegistry builds the topic for each kind as prefix + suffix.
func NewRegistry(prefix string) *Registry {
	r := &Registry{
		prefix: prefix,
		byName: make(map[string]Kind, numKinds),
	}
	for _, k := range Kinds() {
		t := prefix + k.Suffix()
		r.topics[k] = t
		r.byName[t] = k
	}
	return r
}

// Prefix returns the prefix the registry was built with.
func (r *Registry) Prefix() string {
	return r.prefix
}

// Topic returns the topic for kind, or "" for an invalid kind.
func (r *Registry) Topic(k Kind) string {
	if !k.Valid() {
		return ""
	}
	return r.topics[k]
}

// Topics returns all topics in registry order.
func (r *Registry) Topics() []string {
	out := make([]string, numKinds)
	copy(out, r.topics[:])
	return out
}

// Lookup returns the kind whose topic exactly equals topic.
func (r *Registry) Lookup(topic string) (Kind, bool) {
	k, ok := r.byName[topic]
	return k, ok
}
