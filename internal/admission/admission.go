// Package admission gates work before it consumes downstream resources:
// a per-minute limiter keyed by plan and identifier, then a daily quota
// pre-check. Neither gate has side effects on rejection; the quota
// counter moves only after the gated operation succeeds.
package admission

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/devcapsules/codecapsules-sub003/internal/domain"
	"github.com/devcapsules/codecapsules-sub003/internal/kv"
)

// Request describes one admission attempt. Identifier falls back to the
// client IP for anonymous callers.
type Request struct {
	UserID   string
	ClientIP string
	Plan     domain.Plan
	Op       domain.JobType
}

func (r Request) identifier() string {
	if r.UserID != "" {
		return r.UserID
	}
	return "ip:" + r.ClientIP
}

// Decision is returned on admit. QuotaKey is opaque to the caller and
// handed to Commit after the operation succeeds — never before, and
// never on failure.
type Decision struct {
	QuotaKey  string
	QuotaType string
	Limit     int
	Remaining int
}

type Controller struct {
	store kv.Store
	now   func() time.Time
}

func NewController(store kv.Store) *Controller {
	return &Controller{store: store, now: time.Now}
}

// SetNow overrides the clock; tests only.
func (c *Controller) SetNow(now func() time.Time) { c.now = now }

// Admit runs both gates in order. The minute limiter counts the attempt
// (that is what it measures); the quota gate is a pure read.
func (c *Controller) Admit(ctx context.Context, req Request) (*Decision, error) {
	if err := c.checkMinuteLimit(ctx, req); err != nil {
		return nil, err
	}
	return c.checkDailyQuota(ctx, req)
}

func (c *Controller) checkMinuteLimit(ctx context.Context, req Request) error {
	limit := req.Plan.MinuteLimit()
	if limit == domain.QuotaUnlimited {
		return nil
	}
	minute := c.now().UTC().Unix() / 60
	key := fmt.Sprintf("ratelimit:minute:%s:%s:%d", req.Plan, req.identifier(), minute)
	n, err := c.store.Incr(ctx, key, time.Minute)
	if err != nil {
		return fmt.Errorf("minute limiter: %w", err)
	}
	if n > int64(limit) {
		return fmt.Errorf("%w: %d requests per minute on the %s plan",
			domain.ErrRateLimited, limit, req.Plan)
	}
	return nil
}

func (c *Controller) checkDailyQuota(ctx context.Context, req Request) (*Decision, error) {
	quotaType := string(domain.JobTypeGeneration)
	if req.Op == domain.JobTypeExecution {
		quotaType = string(domain.JobTypeExecution)
	}
	limit := req.Plan.DailyQuota(req.Op)
	key := fmt.Sprintf("quota:%s:%s:%s", quotaType, req.identifier(), c.now().UTC().Format("2006-01-02"))

	if limit == domain.QuotaUnlimited {
		return &Decision{
			QuotaKey:  key,
			QuotaType: quotaType,
			Limit:     limit,
			Remaining: limit,
		}, nil
	}

	used, err := c.readCounter(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("quota pre-check: %w", err)
	}
	if used >= limit {
		return nil, fmt.Errorf("%w: daily %s quota reached (%d of %d used)",
			domain.ErrQuotaExceeded, quotaType, used, limit)
	}

	return &Decision{
		QuotaKey:  key,
		QuotaType: quotaType,
		Limit:     limit,
		Remaining: limit - used - 1,
	}, nil
}

// Commit increments the quota counter after the gated operation
// succeeded. The day-stamped key expires on its own.
func (c *Controller) Commit(ctx context.Context, quotaKey string) error {
	if quotaKey == "" {
		return nil
	}
	if _, err := c.store.Incr(ctx, quotaKey, 48*time.Hour); err != nil {
		return fmt.Errorf("quota commit: %w", err)
	}
	return nil
}

// Used reports the current value of a quota counter; operator tooling
// and tests.
func (c *Controller) Used(ctx context.Context, quotaKey string) (int, error) {
	return c.readCounter(ctx, quotaKey)
}

func (c *Controller) readCounter(ctx context.Context, key string) (int, error) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("counter %s holds %q", key, raw)
	}
	return n, nil
}
