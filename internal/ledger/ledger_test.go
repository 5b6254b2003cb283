package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/devcapsules/codecapsules-sub003/internal/domain"
)

type stubExecutor struct {
	spend float64
	err   error
	exec  struct {
		query string
		args  []any
	}
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.exec.query = query
	s.exec.args = args
	return pgconn.CommandTag{}, s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return stubRow{spend: s.spend, err: s.err}
}

type stubRow struct {
	spend float64
	err   error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) == 0 {
		return errors.New("no dest")
	}
	ptr, ok := dest[0].(*float64)
	if !ok {
		return errors.New("invalid dest")
	}
	*ptr = r.spend
	return nil
}

func TestAppend(t *testing.T) {
	exec := &stubExecutor{}
	l := New(exec)

	entry := domain.CostEntry{
		JobID:  "j1",
		UserID: "u1",
		Tokens: domain.TokenUsage{
			"architect": {Model: "gpt-4o-mini", PromptTokens: 900, CompletionTokens: 400},
		},
		CostUSD:    0.012,
		Cached:     false,
		DurationMs: 31000,
	}
	if err := l.Append(context.Background(), entry); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if len(exec.exec.args) != 6 {
		t.Fatalf("expected 6 args, got %d", len(exec.exec.args))
	}
	if exec.exec.args[0] != "j1" || exec.exec.args[1] != "u1" {
		t.Fatalf("ids = %v, %v", exec.exec.args[0], exec.exec.args[1])
	}
	var tokens domain.TokenUsage
	if err := json.Unmarshal(exec.exec.args[2].([]byte), &tokens); err != nil {
		t.Fatalf("tokens arg not valid JSON: %v", err)
	}
	if tokens["architect"].PromptTokens != 900 {
		t.Fatalf("tokens = %#v", tokens)
	}
	if exec.exec.args[4] != false {
		t.Fatalf("cached arg = %v", exec.exec.args[4])
	}
}

func TestAppendZeroCostCachedEntry(t *testing.T) {
	exec := &stubExecutor{}
	l := New(exec)

	err := l.Append(context.Background(), domain.CostEntry{JobID: "j2", UserID: "u1", Cached: true})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if exec.exec.args[3] != 0.0 {
		t.Fatalf("cost arg = %v, want 0", exec.exec.args[3])
	}
	if exec.exec.args[4] != true {
		t.Fatalf("cached arg = %v, want true", exec.exec.args[4])
	}
}

func TestAppendPropagatesError(t *testing.T) {
	l := New(&stubExecutor{err: errors.New("connection reset")})
	if err := l.Append(context.Background(), domain.CostEntry{JobID: "j3"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestDailySpend(t *testing.T) {
	l := New(&stubExecutor{spend: 12.5})
	got, err := l.DailySpend(context.Background())
	if err != nil {
		t.Fatalf("DailySpend: %v", err)
	}
	if got != 12.5 {
		t.Fatalf("DailySpend = %v, want 12.5", got)
	}
}
