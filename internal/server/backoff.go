package server

import (
	"context"
	"errors"
	"math/rand"
	"syscall"
	"time"
)

// acceptRetry paces the accept loop after failed accepts. The delay
// doubles per consecutive failure up to MaxDelay and drops back to
// InitialDelay once an accept succeeds.
type acceptRetry struct {
	cfg      BackoffConfig
	rng      *rand.Rand
	failures int
}

func newAcceptRetry(cfg BackoffConfig, rng *rand.Rand) *acceptRetry {
	return &acceptRetry{cfg: cfg, rng: rng}
}

// fail records a failed accept and returns how long to wait before the
// next one. Descriptor exhaustion skips straight to MaxDelay since it only
// clears when other connections close.
func (r *acceptRetry) fail(err error) time.Duration {
	r.failures++
	if r.cfg.InitialDelay <= 0 {
		return 0
	}
	delay := r.cfg.InitialDelay
	if fdExhausted(err) && r.cfg.MaxDelay > 0 {
		delay = r.cfg.MaxDelay
	} else {
		for i := 1; i < r.failures; i++ {
			if r.cfg.MaxDelay > 0 && delay >= r.cfg.MaxDelay {
				break
			}
			delay *= 2
		}
		if r.cfg.MaxDelay > 0 && delay > r.cfg.MaxDelay {
			delay = r.cfg.MaxDelay
		}
	}
	if r.cfg.Jitter && r.rng != nil && delay > 1 {
		delay = delay/2 + time.Duration(r.rng.Int63n(int64(delay)))
	}
	return delay
}

func (r *acceptRetry) reset() {
	r.failures = 0
}

// wait sleeps for d and reports false if ctx ended first.
func (r *acceptRetry) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func fdExhausted(err error) bool {
	return errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE)
}
