// Package ledger appends immutable per-job cost records to Postgres.
// The ledger is an audit trail: writes happen off the critical path and
// a failed write is logged, never propagated into job processing.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/devcapsules/codecapsules-sub003/internal/domain"
	"github.com/devcapsules/codecapsules-sub003/internal/infra"
	"github.com/devcapsules/codecapsules-sub003/internal/sqlinline"
)

type Ledger struct {
	exec infra.SQLExecutor
}

func New(exec infra.SQLExecutor) *Ledger {
	return &Ledger{exec: exec}
}

// Append inserts one cost entry. Token usage is stored as JSONB so the
// per-agent breakdown survives pipeline changes.
func (l *Ledger) Append(ctx context.Context, entry domain.CostEntry) error {
	tokens, err := json.Marshal(entry.Tokens)
	if err != nil {
		return fmt.Errorf("marshal token usage: %w", err)
	}
	_, err = l.exec.Exec(ctx, sqlinline.QInsertCostEntry,
		entry.JobID,
		entry.UserID,
		tokens,
		entry.CostUSD,
		entry.Cached,
		entry.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert cost entry: %w", err)
	}
	return nil
}

// DailySpend sums today's ledger entries; used by operator tooling to
// cross-check the budget accumulator.
func (l *Ledger) DailySpend(ctx context.Context) (float64, error) {
	var total float64
	row := l.exec.QueryRow(ctx, sqlinline.QSelectDailySpend)
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("sum daily spend: %w", err)
	}
	return total, nil
}
