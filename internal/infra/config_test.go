package infra

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("WORKER_SHARED_SECRET", "test-secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.RemoteTimeout != 55*time.Second {
		t.Fatalf("RemoteTimeout = %v, want 55s", cfg.RemoteTimeout)
	}
	if cfg.MaxAttempts != 3 {
		t.Fatalf("MaxAttempts = %d, want 3", cfg.MaxAttempts)
	}
	if cfg.BreakerThreshold != 5 {
		t.Fatalf("BreakerThreshold = %d, want 5", cfg.BreakerThreshold)
	}
	if cfg.BudgetPause != time.Hour {
		t.Fatalf("BudgetPause = %v, want 1h", cfg.BudgetPause)
	}
	if len(cfg.WorkerAllowedCallers) != 1 || cfg.WorkerAllowedCallers[0] != "edge-worker" {
		t.Fatalf("WorkerAllowedCallers = %#v", cfg.WorkerAllowedCallers)
	}
}

func TestLoadConfigRequiredKeys(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("WORKER_SHARED_SECRET", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing WORKER_SHARED_SECRET")
	}

	// The database is optional; deployments without the cost ledger run
	// on Redis alone.
	t.Setenv("DATABASE_URL", "")
	t.Setenv("WORKER_SHARED_SECRET", "s")
	if _, err := LoadConfig(); err != nil {
		t.Fatalf("LoadConfig without DATABASE_URL: %v", err)
	}
}

func TestLoadConfigAllowedCallersList(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("WORKER_ALLOWED_CALLERS", "edge-worker, batch-worker ,")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	want := []string{"edge-worker", "batch-worker"}
	if len(cfg.WorkerAllowedCallers) != len(want) {
		t.Fatalf("WorkerAllowedCallers = %#v, want %#v", cfg.WorkerAllowedCallers, want)
	}
	for i := range want {
		if cfg.WorkerAllowedCallers[i] != want[i] {
			t.Fatalf("WorkerAllowedCallers[%d] = %q, want %q", i, cfg.WorkerAllowedCallers[i], want[i])
		}
	}
}

func TestLoadConfigMinimumAttempts(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MAX_ATTEMPTS", "0")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.MaxAttempts != 1 {
		t.Fatalf("MaxAttempts = %d, want clamp to 1", cfg.MaxAttempts)
	}
}
