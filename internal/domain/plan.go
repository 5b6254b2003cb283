package domain

// Plan enumerates subscription tiers. Unknown or anonymous callers are
// treated as free tier.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// NormalizePlan maps arbitrary claim values onto a known tier.
func NormalizePlan(s string) Plan {
	switch Plan(s) {
	case PlanPro:
		return PlanPro
	case PlanEnterprise:
		return PlanEnterprise
	default:
		return PlanFree
	}
}

// QuotaUnlimited marks a plan limit that is never enforced.
const QuotaUnlimited = -1

// MinuteLimit returns the per-minute request ceiling for a plan.
// Enterprise bypasses the limiter entirely.
func (p Plan) MinuteLimit() int {
	switch p {
	case PlanPro:
		return 60
	case PlanEnterprise:
		return QuotaUnlimited
	default:
		return 10
	}
}

// DailyQuota returns the daily ceiling for a quota-gated operation.
func (p Plan) DailyQuota(t JobType) int {
	switch t {
	case JobTypeExecution:
		switch p {
		case PlanPro:
			return 500
		case PlanEnterprise:
			return QuotaUnlimited
		default:
			return 50
		}
	default:
		switch p {
		case PlanPro:
			return 100
		case PlanEnterprise:
			return QuotaUnlimited
		default:
			return 5
		}
	}
}
