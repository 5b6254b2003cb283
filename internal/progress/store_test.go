package progress

import (
	"context"
	"testing"
	"time"

	"github.com/devcapsules/codecapsules-sub003/internal/domain"
	"github.com/devcapsules/codecapsules-sub003/internal/kv"
)

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewStore(kv.NewMemory(), 10*time.Minute)

	if err := store.Init(ctx, "j1"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	rec, ok, err := store.Get(ctx, "j1")
	if err != nil || !ok {
		t.Fatalf("Get after Init = %v, %v", ok, err)
	}
	if rec.Status != domain.JobStatusQueued || rec.ProgressPct != 0 {
		t.Fatalf("initial record = %+v", rec)
	}

	_ = store.Update(ctx, "j1", 15, "Calling generation pipeline")
	_ = store.Update(ctx, "j1", 90, "Finalizing capsule")
	_ = store.Complete(ctx, "j1", map[string]any{"title": "FizzBuzz"}, false)

	rec, _, _ = store.Get(ctx, "j1")
	if rec.Status != domain.JobStatusCompleted || rec.ProgressPct != 100 {
		t.Fatalf("final record = %+v", rec)
	}
	if rec.Result["title"] != "FizzBuzz" {
		t.Fatalf("Result = %#v", rec.Result)
	}
	// Init + two updates + complete.
	if len(rec.StepsLog) != 4 {
		t.Fatalf("StepsLog has %d entries, want 4", len(rec.StepsLog))
	}
	if rec.StepsLog[1].Step != "Calling generation pipeline" {
		t.Fatalf("StepsLog[1] = %+v", rec.StepsLog[1])
	}
}

func TestFailKeepsMessageUserSafe(t *testing.T) {
	ctx := context.Background()
	store := NewStore(kv.NewMemory(), 10*time.Minute)

	_ = store.Init(ctx, "j2")
	_ = store.Fail(ctx, "j2", "generation failed, please try again")

	rec, _, _ := store.Get(ctx, "j2")
	if rec.Status != domain.JobStatusFailed {
		t.Fatalf("Status = %q", rec.Status)
	}
	if rec.Error != "generation failed, please try again" {
		t.Fatalf("Error = %q", rec.Error)
	}
	if rec.Result != nil {
		t.Fatalf("failed record should carry no result: %#v", rec.Result)
	}
}

func TestRecordExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mem := kv.NewMemory()
	mem.Now = func() time.Time { return now }
	store := NewStore(mem, 10*time.Minute)

	_ = store.Init(ctx, "j3")
	now = now.Add(11 * time.Minute)
	if _, ok, _ := store.Get(ctx, "j3"); ok {
		t.Fatal("record should expire with its TTL")
	}
}

func TestUnknownJob(t *testing.T) {
	store := NewStore(kv.NewMemory(), 10*time.Minute)
	if _, ok, err := store.Get(context.Background(), "missing"); ok || err != nil {
		t.Fatalf("Get(missing) = %v, %v", ok, err)
	}
}
