// Package guard holds the two global breakers protecting the generation
// pipeline: a consecutive-failure circuit breaker and a daily budget
// ceiling, plus the operator kill switch. All state lives in the shared
// KV store with TTLs, so any worker instance sees the same flags. Only
// the consumer mutates breaker state; everything else just reads it.
package guard

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/devcapsules/codecapsules-sub003/internal/kv"
)

const (
	failuresKey    = "breaker:failures"
	openKey        = "breaker:open"
	killSwitchKey  = "generation:killswitch"
	budgetPauseKey = "generation:budget-pause"
	spendKeyPrefix = "budget:spend:"
)

// Options tunes the breakers. Zero values fall back to the defaults the
// rest of the system is calibrated against.
type Options struct {
	FailureThreshold int           // consecutive failures before the breaker opens
	FailureWindow    time.Duration // TTL of the failure counter
	Cooldown         time.Duration // how long the breaker stays open
	DailyBudgetUSD   float64       // spend ceiling per UTC day
	BudgetPause      time.Duration // how long generation pauses after the ceiling
}

type Guard struct {
	store kv.Store
	opts  Options
	now   func() time.Time
}

func New(store kv.Store, opts Options) *Guard {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 5
	}
	if opts.FailureWindow <= 0 {
		opts.FailureWindow = 5 * time.Minute
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 5 * time.Minute
	}
	if opts.DailyBudgetUSD <= 0 {
		opts.DailyBudgetUSD = 50
	}
	if opts.BudgetPause <= 0 {
		opts.BudgetPause = time.Hour
	}
	return &Guard{store: store, opts: opts, now: time.Now}
}

// SetNow overrides the clock; tests only.
func (g *Guard) SetNow(now func() time.Time) { g.now = now }

// AllowRemote reports whether the failure breaker permits a remote call.
func (g *Guard) AllowRemote(ctx context.Context) (bool, error) {
	_, open, err := g.store.Get(ctx, openKey)
	if err != nil {
		return false, fmt.Errorf("read breaker flag: %w", err)
	}
	return !open, nil
}

// RecordFailure bumps the consecutive-failure counter and opens the
// breaker once the threshold is reached. The open flag expires on its
// own after the cooldown; no traffic is needed to close it again.
func (g *Guard) RecordFailure(ctx context.Context) error {
	n, err := g.store.Incr(ctx, failuresKey, g.opts.FailureWindow)
	if err != nil {
		return fmt.Errorf("increment failures: %w", err)
	}
	if n >= int64(g.opts.FailureThreshold) {
		if err := g.store.Set(ctx, openKey, "1", g.opts.Cooldown); err != nil {
			return fmt.Errorf("open breaker: %w", err)
		}
	}
	return nil
}

// RecordSuccess resets the breaker entirely.
func (g *Guard) RecordSuccess(ctx context.Context) error {
	return g.store.Delete(ctx, failuresKey, openKey)
}

// GenerationEnabled reports whether jobs may call the pipeline at all.
// Disabled states are operational, never the job's fault: the operator
// kill switch or a budget pause. The reason is suitable for logs, not
// for end users.
func (g *Guard) GenerationEnabled(ctx context.Context) (bool, string, error) {
	if _, off, err := g.store.Get(ctx, killSwitchKey); err != nil {
		return false, "", fmt.Errorf("read kill switch: %w", err)
	} else if off {
		return false, "kill switch engaged", nil
	}
	if _, paused, err := g.store.Get(ctx, budgetPauseKey); err != nil {
		return false, "", fmt.Errorf("read budget pause: %w", err)
	} else if paused {
		return false, "daily budget exhausted", nil
	}
	return true, "", nil
}

// AddSpend accumulates USD spend for the current UTC day and pauses
// generation when the ceiling is crossed. Returns the new total and
// whether this call triggered the pause.
func (g *Guard) AddSpend(ctx context.Context, usd float64) (total float64, paused bool, err error) {
	key := spendKeyPrefix + g.now().UTC().Format("2006-01-02")
	total, err = g.store.IncrByFloat(ctx, key, usd, 24*time.Hour)
	if err != nil {
		return 0, false, fmt.Errorf("accumulate spend: %w", err)
	}
	if total > g.opts.DailyBudgetUSD {
		if err := g.store.Set(ctx, budgetPauseKey, strconv.FormatFloat(total, 'f', 4, 64), g.opts.BudgetPause); err != nil {
			return total, false, fmt.Errorf("set budget pause: %w", err)
		}
		return total, true, nil
	}
	return total, false, nil
}

// SetKillSwitch engages or releases the operator kill switch. The flag
// carries no TTL; an operator decision stands until reversed.
func (g *Guard) SetKillSwitch(ctx context.Context, disabled bool) error {
	if disabled {
		return g.store.Set(ctx, killSwitchKey, "1", 0)
	}
	return g.store.Delete(ctx, killSwitchKey)
}

// Snapshot returns the current breaker state for operator tooling.
func (g *Guard) Snapshot(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)
	for _, key := range []string{failuresKey, openKey, killSwitchKey, budgetPauseKey,
		spendKeyPrefix + g.now().UTC().Format("2006-01-02")} {
		val, ok, err := g.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out[key] = val
		}
	}
	return out, nil
}
