package domain

import (
	"strings"
	"time"
)

// JobType enumerates supported capsule job categories.
type JobType string

const (
	JobTypeGeneration JobType = "generation"
	JobTypeExecution  JobType = "execution"
)

// JobStatus enumerates job lifecycle states as seen by polling clients.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job is the unit of work carried through the queue. It is immutable after
// admission except for Attempt, which a retry bumps before re-enqueue.
type Job struct {
	ID          string    `json:"jobId"`
	UserID      string    `json:"userId"`
	Prompt      string    `json:"prompt"`
	Language    string    `json:"language"`
	Difficulty  string    `json:"difficulty,omitempty"`
	Type        JobType   `json:"type,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
	Attempt     int       `json:"attempt"`
	QuotaKey    string    `json:"quotaKey,omitempty"`
}

// Validate checks the fields the pipeline cannot work without. Jobs failing
// validation are terminal and must never reach the remote call.
func (j Job) Validate() error {
	if strings.TrimSpace(j.ID) == "" {
		return ErrInvalidJob
	}
	if strings.TrimSpace(j.Prompt) == "" {
		return ErrInvalidJob
	}
	if strings.TrimSpace(j.Language) == "" {
		return ErrInvalidJob
	}
	return nil
}

// GenerateRequest is the signed RPC body sent over the tunnel.
type GenerateRequest struct {
	JobID      string `json:"jobId"`
	UserID     string `json:"userId"`
	Prompt     string `json:"prompt"`
	Language   string `json:"language"`
	Difficulty string `json:"difficulty,omitempty"`
	Type       string `json:"type,omitempty"`
}

// PipelineResponse is the parsed body returned by the remote pipeline.
// Success=false with a 2xx status is an application-level failure and is
// retried like a transport failure.
type PipelineResponse struct {
	Success          bool           `json:"success"`
	JobID            string         `json:"jobId,omitempty"`
	Capsule          map[string]any `json:"capsule,omitempty"`
	QualityScore     float64        `json:"qualityScore,omitempty"`
	TokenUsage       TokenUsage     `json:"tokenUsage,omitempty"`
	GenerationTimeMs int64          `json:"generationTimeMs,omitempty"`
	Pipeline         string         `json:"pipeline,omitempty"`
	Error            string         `json:"error,omitempty"`
}
