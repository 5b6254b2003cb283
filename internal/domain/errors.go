package domain

import "errors"

var (
	ErrInvalidJob       = errors.New("invalid job")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrQuotaExceeded    = errors.New("quota exceeded")
	ErrGenerationPaused = errors.New("generation paused")
	ErrCircuitOpen      = errors.New("circuit breaker open")
	ErrRemoteCall       = errors.New("remote call failed")
	ErrPipelineFailure  = errors.New("pipeline failure")
	ErrNotFound         = errors.New("not found")
)
