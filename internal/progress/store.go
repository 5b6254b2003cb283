// Package progress keeps the durable, TTL-bound view of a job that
// polling clients read. The consumer overwrites the record monotonically;
// clients never write.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/devcapsules/codecapsules-sub003/internal/domain"
	"github.com/devcapsules/codecapsules-sub003/internal/kv"
)

const keyPrefix = "progress:"

// Step is one entry of the human-readable liveness log.
type Step struct {
	Pct  int       `json:"pct"`
	Step string    `json:"step"`
	At   time.Time `json:"at"`
}

// Record is the polling read model for one job.
type Record struct {
	JobID       string           `json:"jobId"`
	Status      domain.JobStatus `json:"status"`
	ProgressPct int              `json:"progressPct"`
	CurrentStep string           `json:"currentStep"`
	StepsLog    []Step           `json:"stepsLog"`
	Result      map[string]any   `json:"result,omitempty"`
	FromCache   bool             `json:"fromCache,omitempty"`
	Error       string           `json:"error,omitempty"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

type Store struct {
	store kv.Store
	ttl   time.Duration
	now   func() time.Time
}

func NewStore(store kv.Store, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Store{store: store, ttl: ttl, now: time.Now}
}

// Init writes the queued record a client can poll immediately after
// submission.
func (s *Store) Init(ctx context.Context, jobID string) error {
	rec := Record{
		JobID:       jobID,
		Status:      domain.JobStatusQueued,
		ProgressPct: 0,
		CurrentStep: "Queued",
	}
	return s.write(ctx, s.stamp(rec))
}

// Update records an in-flight checkpoint.
func (s *Store) Update(ctx context.Context, jobID string, pct int, step string) error {
	rec := s.load(ctx, jobID)
	rec.Status = domain.JobStatusProcessing
	rec.ProgressPct = pct
	rec.CurrentStep = step
	return s.write(ctx, s.stamp(rec))
}

// Retrying surfaces a scheduled retry so pollers see the job is alive.
func (s *Store) Retrying(ctx context.Context, jobID string, nextAttempt int, delay time.Duration) error {
	rec := s.load(ctx, jobID)
	rec.Status = domain.JobStatusProcessing
	rec.CurrentStep = fmt.Sprintf("Retrying (attempt %d) in %s", nextAttempt, delay)
	return s.write(ctx, s.stamp(rec))
}

// Complete marks the job done and attaches the result payload.
func (s *Store) Complete(ctx context.Context, jobID string, result map[string]any, fromCache bool) error {
	rec := s.load(ctx, jobID)
	rec.Status = domain.JobStatusCompleted
	rec.ProgressPct = 100
	rec.CurrentStep = "Completed"
	rec.Result = result
	rec.FromCache = fromCache
	rec.Error = ""
	return s.write(ctx, s.stamp(rec))
}

// Fail marks the job terminally failed. The message must already be
// user-safe; internal diagnostics go to logs, never here.
func (s *Store) Fail(ctx context.Context, jobID, userMessage string) error {
	rec := s.load(ctx, jobID)
	rec.Status = domain.JobStatusFailed
	rec.CurrentStep = "Failed"
	rec.Error = userMessage
	return s.write(ctx, s.stamp(rec))
}

// Get returns the record for a job, or ok=false once the TTL elapsed.
func (s *Store) Get(ctx context.Context, jobID string) (*Record, bool, error) {
	raw, ok, err := s.store.Get(ctx, keyPrefix+jobID)
	if err != nil {
		return nil, false, fmt.Errorf("read progress: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, false, fmt.Errorf("decode progress: %w", err)
	}
	return &rec, true, nil
}

// load fetches the current record or starts a fresh one; a lost read is
// tolerable because every write carries the full state.
func (s *Store) load(ctx context.Context, jobID string) Record {
	rec, ok, err := s.Get(ctx, jobID)
	if err != nil || !ok {
		return Record{JobID: jobID}
	}
	return *rec
}

func (s *Store) stamp(rec Record) Record {
	now := s.now().UTC()
	rec.UpdatedAt = now
	rec.StepsLog = append(rec.StepsLog, Step{Pct: rec.ProgressPct, Step: rec.CurrentStep, At: now})
	return rec
}

func (s *Store) write(ctx context.Context, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	if err := s.store.Set(ctx, keyPrefix+rec.JobID, string(raw), s.ttl); err != nil {
		return fmt.Errorf("write progress: %w", err)
	}
	return nil
}
