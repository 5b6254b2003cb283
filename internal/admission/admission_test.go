package admission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/devcapsules/codecapsules-sub003/internal/domain"
	"github.com/devcapsules/codecapsules-sub003/internal/kv"
)

func newTestController(t *testing.T) (*Controller, *time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := kv.NewMemory()
	store.Now = func() time.Time { return now }
	c := NewController(store)
	c.SetNow(func() time.Time { return now })
	return c, &now
}

func TestMinuteLimit(t *testing.T) {
	ctx := context.Background()
	c, now := newTestController(t)
	req := Request{UserID: "u1", Plan: domain.PlanFree, Op: domain.JobTypeGeneration}

	// Free tier allows 10 per minute; the daily quota (5) would reject
	// first, so use the pro plan to isolate the limiter.
	req.Plan = domain.PlanPro
	for i := 0; i < 60; i++ {
		if _, err := c.Admit(ctx, req); err != nil {
			t.Fatalf("request %d rejected: %v", i+1, err)
		}
	}
	_, err := c.Admit(ctx, req)
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("61st request error = %v, want ErrRateLimited", err)
	}

	// Next minute bucket starts fresh.
	*now = now.Add(time.Minute)
	if _, err := c.Admit(ctx, req); err != nil {
		t.Fatalf("request in new minute rejected: %v", err)
	}
}

func TestEnterpriseBypassesMinuteLimit(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t)
	req := Request{UserID: "e1", Plan: domain.PlanEnterprise, Op: domain.JobTypeGeneration}

	for i := 0; i < 200; i++ {
		if _, err := c.Admit(ctx, req); err != nil {
			t.Fatalf("enterprise request %d rejected: %v", i+1, err)
		}
	}
}

func TestDailyQuotaSequence(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t)
	req := Request{UserID: "u1", Plan: domain.PlanFree, Op: domain.JobTypeGeneration}

	// Free plan: 5 generations per day. Submit 6; the first 5 pass and
	// the counter walks 1..5, the 6th is rejected and the counter stays 5.
	var lastKey string
	for i := 0; i < 5; i++ {
		dec, err := c.Admit(ctx, req)
		if err != nil {
			t.Fatalf("request %d rejected: %v", i+1, err)
		}
		if dec.Limit != 5 {
			t.Fatalf("Limit = %d, want 5", dec.Limit)
		}
		if dec.Remaining != 5-i-1 {
			t.Fatalf("request %d Remaining = %d, want %d", i+1, dec.Remaining, 5-i-1)
		}
		if err := c.Commit(ctx, dec.QuotaKey); err != nil {
			t.Fatalf("Commit: %v", err)
		}
		used, _ := c.Used(ctx, dec.QuotaKey)
		if used != i+1 {
			t.Fatalf("counter after commit %d = %d", i+1, used)
		}
		lastKey = dec.QuotaKey
	}

	_, err := c.Admit(ctx, req)
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("6th request error = %v, want ErrQuotaExceeded", err)
	}
	if used, _ := c.Used(ctx, lastKey); used != 5 {
		t.Fatalf("counter moved on rejection: %d", used)
	}
}

func TestQuotaNotChargedWithoutCommit(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t)
	req := Request{UserID: "u2", Plan: domain.PlanFree, Op: domain.JobTypeGeneration}

	dec, err := c.Admit(ctx, req)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	// The operation failed downstream: no commit, no charge.
	if used, _ := c.Used(ctx, dec.QuotaKey); used != 0 {
		t.Fatalf("counter = %d before any commit", used)
	}
}

func TestUnlimitedQuota(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t)
	req := Request{UserID: "e1", Plan: domain.PlanEnterprise, Op: domain.JobTypeExecution}

	dec, err := c.Admit(ctx, req)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if dec.Limit != domain.QuotaUnlimited {
		t.Fatalf("Limit = %d, want unlimited", dec.Limit)
	}
}

func TestAnonymousCallersKeyedByIP(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t)

	a := Request{ClientIP: "203.0.113.1", Plan: domain.PlanFree, Op: domain.JobTypeGeneration}
	b := Request{ClientIP: "203.0.113.2", Plan: domain.PlanFree, Op: domain.JobTypeGeneration}

	decA, err := c.Admit(ctx, a)
	if err != nil {
		t.Fatalf("Admit(a): %v", err)
	}
	decB, err := c.Admit(ctx, b)
	if err != nil {
		t.Fatalf("Admit(b): %v", err)
	}
	if decA.QuotaKey == decB.QuotaKey {
		t.Fatal("distinct anonymous IPs must not share a quota key")
	}
}

func TestExecutionQuotaSeparateFromGeneration(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t)

	gen := Request{UserID: "u3", Plan: domain.PlanFree, Op: domain.JobTypeGeneration}
	exe := Request{UserID: "u3", Plan: domain.PlanFree, Op: domain.JobTypeExecution}

	decGen, err := c.Admit(ctx, gen)
	if err != nil {
		t.Fatalf("Admit(gen): %v", err)
	}
	decExe, err := c.Admit(ctx, exe)
	if err != nil {
		t.Fatalf("Admit(exe): %v", err)
	}
	if decGen.QuotaType == decExe.QuotaType || decGen.QuotaKey == decExe.QuotaKey {
		t.Fatal("generation and execution quotas must be independent")
	}
	if decExe.Limit != 50 {
		t.Fatalf("execution Limit = %d, want 50", decExe.Limit)
	}
}
