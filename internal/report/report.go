// Package report turns WooCommerce notification payloads into
// human-readable console lines.
//
// Order and stock events carry a bare identifier that is printed as
// is. The two stats events carry a small JSON object of counters that
// is decoded with [DecodeSnapshot] and printed one counter per line.
// Every handler is stateless and never fails; decode problems are
// logged and the affected counters are reported as zero.
package report

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/nugget/wcnotify/internal/topics"
)

// labels names the state transition reported for each single-value kind.
var labels = map[topics.Kind]string{
	topics.OrderPending:    "Pending payment",
	topics.OrderOnHold:     "On hold",
	topics.OrderProcessing: "Processing",
	topics.OrderCompleted:  "Completed",
	topics.OrderCancelled:  "Cancelled",
	topics.OrderFailed:     "Failed",
	topics.OrderRefunded:   "Refunded",
	topics.StockLow:        "Low stock",
	topics.StockOut:        "Out of stock",
}

// Label returns the report label for a single-value kind, or "" for
// the stats kinds.
func Label(k topics.Kind) string {
	return labels[k]
}

// Reporter writes report lines to a console writer.
type Reporter struct {
	mu     sync.Mutex
	w      io.Writer
	logger *slog.Logger
}

// New creates a Reporter that writes to w. A nil logger falls back to
// [slog.Default].
func New(w io.Writer, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{w: w, logger: logger}
}

// HandlerFor returns the payload handler bound to kind. It panics for
// an invalid kind, which is a wiring bug.
func (r *Reporter) HandlerFor(k topics.Kind) func(payload string) {
	if k.IsStats() {
		if k == topics.StatsOrders {
			return func(payload string) { r.OrderStats(payload) }
		}
		return func(payload string) { r.StockStats(payload) }
	}
	if Label(k) == "" {
		panic(fmt.Sprintf("report: no handler for kind %v", k))
	}
	return func(payload string) { r.Event(k, payload) }
}

// Event reports a single order or stock transition. The identifier is
// opaque and printed unmodified.
func (r *Reporter) Event(k topics.Kind, id string) {
	switch k {
	case topics.StockLow, topics.StockOut:
		r.printf("Product %s: %s\n", id, Label(k))
	default:
		r.printf("Order #%s: %s\n", id, Label(k))
	}
}

// OrderStats decodes and reports an order stats snapshot.
func (r *Reporter) OrderStats(payload string) Snapshot {
	return r.stats("Order stats", topics.StatsOrders, payload, OrderStatsKeys)
}

// StockStats decodes and reports a stock stats snapshot.
func (r *Reporter) StockStats(payload string) Snapshot {
	return r.stats("Stock stats", topics.StatsStock, payload, StockStatsKeys)
}

func (r *Reporter) stats(title string, k topics.Kind, payload string, keys []string) Snapshot {
	snap, err := DecodeSnapshot([]byte(payload), keys)
	if err != nil {
		r.logger.Warn("stats payload decoded with defaults",
			"kind", k.String(),
			"missing", snap.Missing(),
			"error", err,
		)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "%s:\n", title)
	for _, c := range snap.Counters {
		fmt.Fprintf(r.w, "  %s: %d\n", c.Name, c.Value)
	}
	return snap
}

func (r *Reporter) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, format, args...)
}
