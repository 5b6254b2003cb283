// Package queue carries generation jobs from the edge tier to the worker
// pool. The Envelope abstraction pins down the ack/retry contract so the
// consumer state machine can be tested against an in-memory queue and run
// against Redis in production.
package queue

import (
	"context"
	"time"

	"github.com/devcapsules/codecapsules-sub003/internal/domain"
)

// Envelope wraps one delivered job. Exactly one of Ack, Retry or Release
// must be called per delivery. Ack removes the job for good. Retry
// re-enqueues it with the attempt counter bumped, visible again after
// delay. Release re-schedules it unchanged, for operational pauses that
// are not the job's fault.
type Envelope interface {
	Job() domain.Job
	Ack(ctx context.Context) error
	Retry(ctx context.Context, delay time.Duration) error
	Release(ctx context.Context, delay time.Duration) error
}

// Queue is the producer/consumer contract.
type Queue interface {
	// Enqueue makes the job visible to consumers immediately.
	Enqueue(ctx context.Context, job domain.Job) error
	// Dequeue blocks up to the implementation's poll interval and
	// returns nil, nil when no job is available.
	Dequeue(ctx context.Context) (Envelope, error)
	// PromoteDue moves retry-scheduled jobs whose backoff has elapsed
	// back into the ready queue and reports how many moved.
	PromoteDue(ctx context.Context) (int, error)
	// Depth reports ready plus retry-scheduled jobs.
	Depth(ctx context.Context) (int64, error)
}
