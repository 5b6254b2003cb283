// Package pipeline is the remote compute tier: the capsule generator and
// the HTTP surface the worker tunnel calls into.
package pipeline

import (
	"context"

	"github.com/devcapsules/codecapsules-sub003/internal/domain"
)

// Capsule is one generated coding exercise.
type Capsule struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Language    string   `json:"language"`
	Difficulty  string   `json:"difficulty"`
	StarterCode string   `json:"starterCode"`
	Solution    string   `json:"solution"`
	Hints       []string `json:"hints"`
	TestCases   []string `json:"testCases"`
}

// Output carries a finished generation back to the handler.
type Output struct {
	Capsule          Capsule
	QualityScore     float64
	TokenUsage       domain.TokenUsage
	GenerationTimeMs int64
	Pipeline         string
}

// Generator produces a capsule for one request. Implementations must be
// safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerateRequest) (*Output, error)
}
