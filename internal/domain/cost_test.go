package domain

import (
	"encoding/json"
	"math"
	"testing"
)

func TestCostUSD(t *testing.T) {
	tests := []struct {
		name  string
		usage TokenUsage
		want  float64
	}{
		{
			name:  "empty usage is free",
			usage: TokenUsage{},
			want:  0,
		},
		{
			name: "single agent known model",
			usage: TokenUsage{
				"architect": {Model: "gpt-4o-mini", PromptTokens: 1000, CompletionTokens: 1000},
			},
			want: 0.00015 + 0.0006,
		},
		{
			name: "multiple agents accumulate",
			usage: TokenUsage{
				"architect": {Model: "gpt-4o-mini", PromptTokens: 2000, CompletionTokens: 0},
				"reviewer":  {Model: "gpt-4o", PromptTokens: 0, CompletionTokens: 500},
			},
			want: 2*0.00015 + 0.5*0.01,
		},
		{
			name: "unknown model uses fallback rate",
			usage: TokenUsage{
				"builder": {Model: "experimental-x", PromptTokens: 1000, CompletionTokens: 0},
			},
			want: 0.0025,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.usage.CostUSD()
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("CostUSD() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPipelineResponseCost(t *testing.T) {
	// The consumer prices jobs straight off the decoded response body.
	raw := []byte(`{
		"success": true,
		"jobId": "j1",
		"tokenUsage": {
			"architect": {"model": "gpt-4o-mini", "prompt_tokens": 1000, "completion_tokens": 1000}
		}
	}`)
	var resp PipelineResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got := resp.TokenUsage.CostUSD()
	want := 0.00015 + 0.0006
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("CostUSD() = %v, want %v", got, want)
	}
}

func TestValidate(t *testing.T) {
	base := Job{ID: "j1", Prompt: "fizzbuzz", Language: "python"}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid job rejected: %v", err)
	}

	missing := []Job{
		{Prompt: "fizzbuzz", Language: "python"},
		{ID: "j1", Language: "python"},
		{ID: "j1", Prompt: "fizzbuzz"},
		{ID: "j1", Prompt: "   ", Language: "python"},
	}
	for i, j := range missing {
		if err := j.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}
