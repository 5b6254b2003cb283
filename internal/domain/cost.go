package domain

// AgentTokens reports the token usage of one pipeline agent.
type AgentTokens struct {
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

// TokenUsage maps agent name to its token usage for one job.
type TokenUsage map[string]AgentTokens

// modelRate holds USD prices per 1k tokens.
type modelRate struct {
	Prompt     float64
	Completion float64
}

// Static price table. Unknown models fall back to defaultRate so a new
// pipeline model never produces a zero-cost ledger entry.
var modelRates = map[string]modelRate{
	"gpt-4o":           {Prompt: 0.0025, Completion: 0.01},
	"gpt-4o-mini":      {Prompt: 0.00015, Completion: 0.0006},
	"gemini-2.5-flash": {Prompt: 0.00015, Completion: 0.0006},
	"gemini-1.5-flash": {Prompt: 0.000075, Completion: 0.0003},
}

var defaultRate = modelRate{Prompt: 0.0025, Completion: 0.01}

// CostUSD computes the spend for a job from per-agent token usage.
func (u TokenUsage) CostUSD() float64 {
	var total float64
	for _, agent := range u {
		rate, ok := modelRates[agent.Model]
		if !ok {
			rate = defaultRate
		}
		total += float64(agent.PromptTokens)/1000*rate.Prompt +
			float64(agent.CompletionTokens)/1000*rate.Completion
	}
	return total
}

// CostEntry is one immutable row of the append-only cost ledger.
type CostEntry struct {
	JobID      string
	UserID     string
	Tokens     TokenUsage
	CostUSD    float64
	Cached     bool
	DurationMs int64
}
