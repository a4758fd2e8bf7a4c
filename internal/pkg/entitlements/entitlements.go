package entitlements

import "strings"

// Plan is an internal membership tier. Tiers are ordinal: starter < pro < elite.
type Plan string

const (
	PlanStarter Plan = "starter"
	PlanPro     Plan = "pro"
	PlanElite   Plan = "elite"
)

// Normalize maps arbitrary input to a known plan identifier.
// The second return is false when the input names no known plan.
func Normalize(plan string) (Plan, bool) {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case string(PlanStarter):
		return PlanStarter, true
	case string(PlanPro):
		return PlanPro, true
	case string(PlanElite):
		return PlanElite, true
	default:
		return "", false
	}
}

// Rank returns the ordinal rank of a plan. Unknown plans rank below starter.
func Rank(plan Plan) int {
	switch plan {
	case PlanElite:
		return 2
	case PlanPro:
		return 1
	case PlanStarter:
		return 0
	default:
		return -1
	}
}

// Satisfies reports whether holding `held` grants access gated at `required`.
func Satisfies(held, required Plan) bool {
	return Rank(held) >= Rank(required) && Rank(held) >= 0
}

// IsEntitlingStatus reports whether a subscription status grants access.
// past_due counts as a grace period when pastDueGrace is set.
func IsEntitlingStatus(status string, pastDueGrace bool) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active":
		return true
	case "past_due":
		return pastDueGrace
	default:
		return false
	}
}
