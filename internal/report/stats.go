package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Keys carried by the aggregate stats payloads, in report order.
var (
	OrderStatsKeys = []string{
		"payment-pending",
		"on-hold",
		"processing",
		"completed",
		"cancelled",
		"failed",
		"refunded",
	}
	StockStatsKeys = []string{
		"low-stock",
		"out-of-stock",
	}
)

// Counter is one named count from a stats snapshot. Present is false
// when the key was absent or did not hold an integer, in which case
// Value is zero.
type Counter struct {
	Name    string
	Value   int64
	Present bool
}

// Snapshot is a decoded stats payload. Counters follow the key order
// passed to [DecodeSnapshot], never the payload's order.
type Snapshot struct {
	Counters []Counter
}

// Missing returns the names of counters that were absent or malformed.
func (s Snapshot) Missing() []string {
	var out []string
	for _, c := range s.Counters {
		if !c.Present {
			out = append(out, c.Name)
		}
	}
	return out
}

// DecodeSnapshot extracts keys from a JSON object payload. Decoding is
// forgiving: a missing or non-integer key yields a zero counter, and
// a payload that is not an object yields all zeros. The returned error
// describes the first problem found, but the snapshot is always
// complete and usable.
func DecodeSnapshot(payload []byte, keys []string) (Snapshot, error) {
	snap := Snapshot{Counters: make([]Counter, len(keys))}
	for i, k := range keys {
		snap.Counters[i].Name = k
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return snap, fmt.Errorf("decode stats payload: %w", err)
	}

	var firstErr error
	for i, k := range keys {
		raw, ok := fields[k]
		if !ok {
			if firstErr == nil {
				firstErr = fmt.Errorf("stats key %q missing", k)
			}
			continue
		}
		n, err := parseCount(raw)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("stats key %q: %w", k, err)
			}
			continue
		}
		snap.Counters[i].Value = n
		snap.Counters[i].Present = true
	}
	return snap, firstErr
}

// parseCount accepts a JSON number with an integral value, so 7, 7.0
// and 7e0 all yield 7. Fractions, strings and null are rejected.
func parseCount(raw json.RawMessage) (int64, error) {
	text := string(bytes.TrimSpace(raw))
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n, nil
	}

	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil || !isJSONNumber(text) {
		return 0, fmt.Errorf("not an integer: %s", raw)
	}
	f, err := num.Float64()
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("not an integer: %s", raw)
	}
	return int64(f), nil
}

// isJSONNumber reports whether text is an unquoted JSON number.
// json.Number also accepts a quoted string, which is not a count.
func isJSONNumber(text string) bool {
	return text != "" && text[0] != '"'
}
