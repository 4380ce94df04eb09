package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Store increments the counter for key and returns the post-increment value.
// Implementations must make the read-modify-write atomic across processes.
// ttl is how long the counter must survive; stores may keep it longer.
type Store interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type Window struct {
	Duration time.Duration
	Max      int64
}

type Decision struct {
	Allowed bool
	Count   int64
	ResetAt time.Time
	// Err is set when the store could not be consulted. The decision is then a denial.
	Err error
}

var ErrEmptyFingerprint = errors.New("empty fingerprint")

// Gate is a fixed-window limiter. Windows are aligned to multiples of
// Window.Duration since the Unix epoch, so every process agrees on bucket
// boundaries without coordination.
type Gate struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Gate)

func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

func NewGate(store Store, opts ...Option) *Gate {
	g := &Gate{
		store:  store,
		now:    time.Now,
		logger: slog.With("component", "ratelimit"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Admit counts one event for fingerprint in the current window. Denied
// events still count. A store failure denies.
func (g *Gate) Admit(ctx context.Context, fingerprint string, w Window) Decision {
	if fingerprint == "" {
		return Decision{Err: ErrEmptyFingerprint}
	}
	if w.Duration <= 0 || w.Max <= 0 {
		return Decision{Err: fmt.Errorf("invalid window %v/%d", w.Duration, w.Max)}
	}

	now := g.now()
	index := now.UnixNano() / int64(w.Duration)
	resetAt := time.Unix(0, (index+1)*int64(w.Duration))
	key := fmt.Sprintf("%s:%d", fingerprint, index)

	count, err := g.store.Incr(ctx, key, resetAt.Sub(now))
	if err != nil {
		g.logger.Warn("rate limit store unavailable, denying", "fingerprint", fingerprint, "error", err)
		return Decision{ResetAt: resetAt, Err: fmt.Errorf("failed to increment counter: %w", err)}
	}

	return Decision{
		Allowed: count <= w.Max,
		Count:   count,
		ResetAt: resetAt,
	}
}
