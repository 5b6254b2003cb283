package queue

import (
	"context"
	"sync"
	"time"

	"github.com/devcapsules/codecapsules-sub003/internal/domain"
)

type scheduled struct {
	job         domain.Job
	availableAt time.Time
}

// Memory is an in-process Queue for tests. It preserves the redis
// implementation's semantics: FIFO ready list, delay-scheduled retries
// that only become visible after PromoteDue, no-op acks.
type Memory struct {
	mu       sync.Mutex
	ready    []domain.Job
	retries  []scheduled
	acked    []string
	released []string
	retryLog []time.Duration
	Now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{Now: time.Now}
}

func (m *Memory) Enqueue(_ context.Context, job domain.Job) error {
	if job.Attempt < 1 {
		job.Attempt = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = append(m.ready, job)
	return nil
}

func (m *Memory) Dequeue(_ context.Context) (Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ready) == 0 {
		return nil, nil
	}
	job := m.ready[0]
	m.ready = m.ready[1:]
	return &memoryEnvelope{queue: m, job: job}, nil
}

func (m *Memory) PromoteDue(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	var remaining []scheduled
	promoted := 0
	for _, s := range m.retries {
		if s.availableAt.After(now) {
			remaining = append(remaining, s)
			continue
		}
		m.ready = append(m.ready, s.job)
		promoted++
	}
	m.retries = remaining
	return promoted, nil
}

func (m *Memory) Depth(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.ready) + len(m.retries)), nil
}

// Acked lists job IDs whose envelopes were acked, in order.
func (m *Memory) Acked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.acked...)
}

// RetryDelays lists the delays requested by Retry calls, in order.
func (m *Memory) RetryDelays() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.retryLog...)
}

// Released lists job IDs re-scheduled without an attempt bump, in order.
func (m *Memory) Released() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.released...)
}

type memoryEnvelope struct {
	queue *Memory
	job   domain.Job
}

func (e *memoryEnvelope) Job() domain.Job { return e.job }

func (e *memoryEnvelope) Ack(context.Context) error {
	e.queue.mu.Lock()
	defer e.queue.mu.Unlock()
	e.queue.acked = append(e.queue.acked, e.job.ID)
	return nil
}

func (e *memoryEnvelope) Retry(_ context.Context, delay time.Duration) error {
	next := e.job
	next.Attempt++
	e.queue.mu.Lock()
	defer e.queue.mu.Unlock()
	e.queue.retryLog = append(e.queue.retryLog, delay)
	e.queue.retries = append(e.queue.retries, scheduled{
		job:         next,
		availableAt: e.queue.Now().Add(delay),
	})
	return nil
}

func (e *memoryEnvelope) Release(_ context.Context, delay time.Duration) error {
	e.queue.mu.Lock()
	defer e.queue.mu.Unlock()
	e.queue.released = append(e.queue.released, e.job.ID)
	e.queue.retries = append(e.queue.retries, scheduled{
		job:         e.job,
		availableAt: e.queue.Now().Add(delay),
	})
	return nil
}

var _ Queue = (*Memory)(nil)
