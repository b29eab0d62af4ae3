// Package connwatch provides the blocking retry loops used to bring up
// the network link and the broker session.
//
// Unlike a backoff schedule, a poll here retries forever at a fixed
// interval: the notifier has nothing useful to do until the link is up,
// so it waits. The only way out besides success is cancelling ctx,
// which happens on SIGINT/SIGTERM.
package connwatch

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ProbeFunc attempts to bring a dependency up. Return nil on success.
type ProbeFunc func(ctx context.Context) error

// PollConfig controls a single [Poll] call.
type PollConfig struct {
	// Name is a human-readable identifier for logging (e.g., "network").
	Name string

	// Interval is the fixed delay between failed attempts (default: 5s).
	Interval time.Duration

	// ProbeTimeout limits each individual attempt. Zero means the
	// attempt is bounded only by ctx.
	ProbeTimeout time.Duration

	// Logger for structured logging. Uses slog.Default() if nil.
	Logger *slog.Logger
}

// DefaultInterval is used when PollConfig.Interval is not positive.
const DefaultInterval = 5 * time.Second

// Poll calls probe until it succeeds, sleeping Interval between
// attempts. There is no attempt limit and no backoff. It returns the
// number of attempts made, and a non-nil error only when ctx is
// cancelled.
func Poll(ctx context.Context, cfg PollConfig, probe ProbeFunc) (int, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		err := runProbe(ctx, cfg.ProbeTimeout, probe)
		if err == nil {
			logger.Info("service connected",
				"service", cfg.Name,
				"after_attempts", attempt,
			)
			return attempt, nil
		}

		// The first failure is worth seeing at info; after that the
		// loop is expected to spin until the service comes back.
		level := slog.LevelDebug
		if attempt == 1 {
			level = slog.LevelInfo
		}
		logger.Log(ctx, level, "service unreachable, retrying",
			"service", cfg.Name,
			"attempt", attempt,
			"next_delay", interval.String(),
			"error", err,
		)

		if !sleepCtx(ctx, interval) {
			return attempt, ctx.Err()
		}
	}
}

func runProbe(ctx context.Context, timeout time.Duration, probe ProbeFunc) error {
	if timeout <= 0 {
		return probe(ctx)
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return probe(probeCtx)
}

// sleepCtx sleeps for d or until ctx is cancelled. Returns false if cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// ServiceStatus is the last known state of a dependency.
type ServiceStatus struct {
	Name      string
	Ready     bool
	Attempts  int
	LastCheck time.Time
}

// LogValue implements [slog.LogValuer].
func (s ServiceStatus) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("ready", s.Ready),
		slog.Int("attempts", s.Attempts),
		slog.Time("last_check", s.LastCheck),
	)
}

// Tracker records the outcome of each Poll so callers can report how
// many attempts the last bring-up took. It is safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	services map[string]ServiceStatus
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{services: make(map[string]ServiceStatus)}
}

// Poll runs [Poll] and records the result under cfg.Name.
func (t *Tracker) Poll(ctx context.Context, cfg PollConfig, probe ProbeFunc) (int, error) {
	t.set(cfg.Name, false, 0)
	n, err := Poll(ctx, cfg, probe)
	t.set(cfg.Name, err == nil, n)
	return n, err
}

// MarkDown flags a service as not ready, e.g. after the broker drops
// the session.
func (t *Tracker) MarkDown(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.services[name]
	s.Name = name
	s.Ready = false
	s.LastCheck = time.Now()
	t.services[name] = s
}

func (t *Tracker) set(name string, ready bool, attempts int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.services[name] = ServiceStatus{
		Name:      name,
		Ready:     ready,
		Attempts:  attempts,
		LastCheck: time.Now(),
	}
}

// Status returns a copy of every tracked service's status.
func (t *Tracker) Status() map[string]ServiceStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]ServiceStatus, len(t.services))
	for k, v := range t.services {
		out[k] = v
	}
	return out
}
