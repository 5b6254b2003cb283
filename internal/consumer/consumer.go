// Package consumer runs the worker-side job state machine: dequeue,
// guard checks, cache lookup, signed pipeline call, cost accounting,
// progress checkpoints and the retry/dead-letter decision.
package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/devcapsules/codecapsules-sub003/internal/cache"
	"github.com/devcapsules/codecapsules-sub003/internal/domain"
	"github.com/devcapsules/codecapsules-sub003/internal/guard"
	"github.com/devcapsules/codecapsules-sub003/internal/infra"
	"github.com/devcapsules/codecapsules-sub003/internal/kv"
	"github.com/devcapsules/codecapsules-sub003/internal/metrics"
	"github.com/devcapsules/codecapsules-sub003/internal/progress"
	"github.com/devcapsules/codecapsules-sub003/internal/queue"
	"github.com/devcapsules/codecapsules-sub003/internal/tunnel"
)

const (
	generatePath = "/internal/generate"

	// costMarkerPrefix guards the ledger against duplicate deliveries:
	// the first worker to claim the marker logs the cost, later
	// deliveries of the same job skip accounting entirely.
	costMarkerPrefix = "cost:logged:"
	costMarkerTTL    = 24 * time.Hour

	// deadLetterMessage is what polling clients see after the last
	// attempt. Internal diagnostics stay in logs.
	deadLetterMessage = "Generation failed after multiple attempts. Please try again later."

	// pausedMessage is the terminal user-facing message while the kill
	// switch or a budget pause has generation disabled.
	pausedMessage = "Generation is temporarily paused. Please try again later."
)

// RemoteCaller is the tunnel surface the consumer needs.
type RemoteCaller interface {
	Call(ctx context.Context, path string, payload any, timeout time.Duration) tunnel.Result
}

// CostLedger persists immutable cost entries.
type CostLedger interface {
	Append(ctx context.Context, entry domain.CostEntry) error
}

// QuotaCommitter charges a user's daily quota after terminal success.
type QuotaCommitter interface {
	Commit(ctx context.Context, quotaKey string) error
}

// Deps wires the consumer's collaborators. Ledger and Quota may be nil
// when a deployment runs without Postgres or quota accounting.
type Deps struct {
	Queue    queue.Queue
	Store    kv.Store
	Guard    *guard.Guard
	Cache    *cache.Cache
	Progress *progress.Store
	Remote   RemoteCaller
	Ledger   CostLedger
	Quota    QuotaCommitter
	Logger   infra.Logger
}

// Options tunes retry and pause behavior.
type Options struct {
	MaxAttempts    int           // attempts before dead-lettering, >= 1
	RetryBaseDelay time.Duration // backoff unit; delay = base * failed attempt number
	RemoteTimeout  time.Duration // per-call tunnel budget
	PauseDelay     time.Duration // re-check interval while generation is paused
}

type Consumer struct {
	deps Deps
	opts Options
}

func New(deps Deps, opts Options) *Consumer {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 5 * time.Second
	}
	if opts.RemoteTimeout <= 0 {
		opts.RemoteTimeout = 55 * time.Second
	}
	if opts.PauseDelay <= 0 {
		opts.PauseDelay = 30 * time.Second
	}
	return &Consumer{deps: deps, opts: opts}
}

// Run polls the queue until the context is cancelled. Each delivery is
// processed to completion; Process never panics the loop.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		env, err := c.deps.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.deps.Logger.Error().Err(err).Msg("consumer: dequeue failed")
			time.Sleep(time.Second)
			continue
		}
		if env == nil {
			continue
		}
		c.Process(ctx, env)
	}
}

// Process drives one delivery through the full state machine and always
// settles the envelope with exactly one of Ack, Retry or Release.
func (c *Consumer) Process(ctx context.Context, env queue.Envelope) {
	job := env.Job()
	log := c.deps.Logger.With().
		Str("job_id", job.ID).
		Str("user_id", job.UserID).
		Int("attempt", job.Attempt).
		Logger()

	if err := job.Validate(); err != nil {
		// Malformed jobs are terminal: the pipeline cannot repair a
		// missing prompt, so no attempt and no remote call is spent.
		log.Error().Err(err).Msg("consumer: invalid job, dropping")
		if job.ID != "" {
			c.failProgress(ctx, job.ID, "Invalid job payload.")
		}
		metrics.JobsTotal.WithLabelValues("failed").Inc()
		c.ack(ctx, env, log)
		return
	}

	enabled, reason, err := c.deps.Guard.GenerationEnabled(ctx)
	if err != nil {
		log.Error().Err(err).Msg("consumer: guard read failed, releasing job")
		c.release(ctx, env, log)
		return
	}
	if !enabled {
		// Operational pause, not the job's fault: terminate the job
		// with a user-safe message. No attempt is consumed and no
		// quota is charged; the client resubmits once generation is
		// back on.
		log.Warn().Str("reason", reason).Msg("consumer: generation paused, failing job")
		c.failProgress(ctx, job.ID, pausedMessage)
		metrics.JobsTotal.WithLabelValues("paused").Inc()
		c.ack(ctx, env, log)
		return
	}

	c.checkpoint(ctx, job.ID, 5, "Validating request")

	if entry, hit := c.cacheLookup(ctx, job); hit {
		log.Info().Msg("consumer: cache hit, skipping pipeline")
		metrics.CacheHitsTotal.Inc()
		metrics.JobsTotal.WithLabelValues("cached").Inc()
		c.logCost(ctx, job, domain.CostEntry{
			JobID:  job.ID,
			UserID: job.UserID,
			Cached: true,
		}, log)
		c.commitQuota(ctx, job, log)
		c.complete(ctx, job.ID, cacheResult(entry), true, log)
		c.ack(ctx, env, log)
		return
	}

	allowed, err := c.deps.Guard.AllowRemote(ctx)
	if err != nil {
		log.Error().Err(err).Msg("consumer: breaker read failed, releasing job")
		c.release(ctx, env, log)
		return
	}
	if !allowed {
		// Open breaker: fail fast without touching the network and
		// without feeding the failure counter that opened it.
		log.Warn().Msg("consumer: circuit open, retrying later")
		c.settleFailure(ctx, env, job, log)
		return
	}

	c.checkpoint(ctx, job.ID, 15, "Calling generation pipeline")

	res := c.deps.Remote.Call(ctx, generatePath, domain.GenerateRequest{
		JobID:      job.ID,
		UserID:     job.UserID,
		Prompt:     job.Prompt,
		Language:   job.Language,
		Difficulty: job.Difficulty,
		Type:       string(job.Type),
	}, c.opts.RemoteTimeout)
	metrics.RemoteCallDuration.Observe(float64(res.LatencyMs) / 1000)

	if res.Failed() {
		log.Warn().
			Str("kind", string(res.Kind)).
			Int("status", res.StatusCode).
			Str("error", res.Err).
			Msg("consumer: pipeline call failed")
		c.recordFailure(ctx, log)
		c.settleFailure(ctx, env, job, log)
		return
	}

	var resp domain.PipelineResponse
	if err := json.Unmarshal(res.Data, &resp); err != nil {
		log.Warn().Err(err).Msg("consumer: undecodable pipeline response")
		c.recordFailure(ctx, log)
		c.settleFailure(ctx, env, job, log)
		return
	}
	if !resp.Success {
		log.Warn().Str("error", resp.Error).Msg("consumer: pipeline reported failure")
		c.recordFailure(ctx, log)
		c.settleFailure(ctx, env, job, log)
		return
	}

	c.checkpoint(ctx, job.ID, 90, "Finalizing capsule")

	if err := c.deps.Guard.RecordSuccess(ctx); err != nil {
		log.Warn().Err(err).Msg("consumer: breaker reset failed")
	}

	cost := resp.TokenUsage.CostUSD()
	c.logCost(ctx, job, domain.CostEntry{
		JobID:      job.ID,
		UserID:     job.UserID,
		Tokens:     resp.TokenUsage,
		CostUSD:    cost,
		DurationMs: resp.GenerationTimeMs,
	}, log)

	if err := c.deps.Cache.Put(ctx, job.Prompt, job.Language, cache.Entry{
		Capsule:      resp.Capsule,
		QualityScore: resp.QualityScore,
	}); err != nil {
		log.Warn().Err(err).Msg("consumer: cache write failed")
	}

	c.commitQuota(ctx, job, log)
	c.complete(ctx, job.ID, pipelineResult(resp), false, log)
	metrics.JobsTotal.WithLabelValues("completed").Inc()
	log.Info().Float64("cost_usd", cost).Int64("latency_ms", res.LatencyMs).Msg("consumer: job completed")
	c.ack(ctx, env, log)
}

// settleFailure consumes one attempt: schedule a retry with linear
// backoff, or dead-letter once the attempt budget is spent.
func (c *Consumer) settleFailure(ctx context.Context, env queue.Envelope, job domain.Job, log infra.Logger) {
	if job.Attempt >= c.opts.MaxAttempts {
		log.Error().Int("max_attempts", c.opts.MaxAttempts).Msg("consumer: attempts exhausted, dead-lettering job")
		c.failProgress(ctx, job.ID, deadLetterMessage)
		metrics.JobsTotal.WithLabelValues("dead_letter").Inc()
		c.ack(ctx, env, log)
		return
	}

	delay := c.opts.RetryBaseDelay * time.Duration(job.Attempt)
	if err := c.deps.Progress.Retrying(ctx, job.ID, job.Attempt+1, delay); err != nil {
		log.Warn().Err(err).Msg("consumer: progress write failed")
	}
	metrics.JobsTotal.WithLabelValues("retried").Inc()
	if err := env.Retry(ctx, delay); err != nil {
		log.Error().Err(err).Msg("consumer: retry scheduling failed")
	}
}

// logCost appends one ledger entry per job ID, ever. The KV marker is
// the idempotency guard; whoever wins SetNX does the accounting.
func (c *Consumer) logCost(ctx context.Context, job domain.Job, entry domain.CostEntry, log infra.Logger) {
	claimed, err := c.deps.Store.SetNX(ctx, costMarkerPrefix+job.ID, "1", costMarkerTTL)
	if err != nil {
		log.Warn().Err(err).Msg("consumer: cost marker write failed")
		return
	}
	if !claimed {
		log.Info().Msg("consumer: cost already logged for this job")
		return
	}

	if c.deps.Ledger != nil {
		if err := c.deps.Ledger.Append(ctx, entry); err != nil {
			log.Error().Err(err).Msg("consumer: ledger append failed")
		}
	}

	if entry.CostUSD <= 0 {
		return
	}
	metrics.SpendUSDTotal.Add(entry.CostUSD)
	total, paused, err := c.deps.Guard.AddSpend(ctx, entry.CostUSD)
	if err != nil {
		log.Error().Err(err).Msg("consumer: spend accumulation failed")
		return
	}
	if paused {
		log.Warn().Float64("total_usd", total).Msg("consumer: daily budget exhausted, generation paused")
	}
}

func (c *Consumer) cacheLookup(ctx context.Context, job domain.Job) (*cache.Entry, bool) {
	if job.Type == domain.JobTypeExecution {
		return nil, false
	}
	entry, hit, err := c.deps.Cache.Get(ctx, job.Prompt, job.Language)
	if err != nil {
		c.deps.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("consumer: cache read failed")
		return nil, false
	}
	return entry, hit
}

func (c *Consumer) commitQuota(ctx context.Context, job domain.Job, log infra.Logger) {
	if c.deps.Quota == nil || job.QuotaKey == "" {
		return
	}
	if err := c.deps.Quota.Commit(ctx, job.QuotaKey); err != nil {
		log.Warn().Err(err).Msg("consumer: quota commit failed")
	}
}

func (c *Consumer) recordFailure(ctx context.Context, log infra.Logger) {
	if err := c.deps.Guard.RecordFailure(ctx); err != nil {
		log.Warn().Err(err).Msg("consumer: failure recording failed")
	}
}

func (c *Consumer) checkpoint(ctx context.Context, jobID string, pct int, step string) {
	if err := c.deps.Progress.Update(ctx, jobID, pct, step); err != nil {
		c.deps.Logger.Warn().Err(err).Str("job_id", jobID).Msg("consumer: progress write failed")
	}
}

func (c *Consumer) failProgress(ctx context.Context, jobID, userMessage string) {
	if err := c.deps.Progress.Fail(ctx, jobID, userMessage); err != nil {
		c.deps.Logger.Warn().Err(err).Str("job_id", jobID).Msg("consumer: progress write failed")
	}
}

func (c *Consumer) complete(ctx context.Context, jobID string, result map[string]any, fromCache bool, log infra.Logger) {
	if err := c.deps.Progress.Complete(ctx, jobID, result, fromCache); err != nil {
		log.Warn().Err(err).Msg("consumer: progress write failed")
	}
}

func (c *Consumer) ack(ctx context.Context, env queue.Envelope, log infra.Logger) {
	if err := env.Ack(ctx); err != nil {
		log.Error().Err(err).Msg("consumer: ack failed")
	}
}

func (c *Consumer) release(ctx context.Context, env queue.Envelope, log infra.Logger) {
	if err := env.Release(ctx, c.opts.PauseDelay); err != nil {
		log.Error().Err(err).Msg("consumer: release failed")
	}
}

func cacheResult(entry *cache.Entry) map[string]any {
	return map[string]any{
		"capsule":      entry.Capsule,
		"qualityScore": entry.QualityScore,
		"cachedAt":     entry.CachedAt,
	}
}

func pipelineResult(resp domain.PipelineResponse) map[string]any {
	result := map[string]any{
		"capsule":      resp.Capsule,
		"qualityScore": resp.QualityScore,
	}
	if resp.Pipeline != "" {
		result["pipeline"] = resp.Pipeline
	}
	if resp.GenerationTimeMs > 0 {
		result["generationTimeMs"] = resp.GenerationTimeMs
	}
	return result
}
