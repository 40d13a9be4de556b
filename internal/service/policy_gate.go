package service

import (
	"fmt"
	"strings"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// GateDecision is the verdict of the auto-resolution policy gate.
type GateDecision struct {
	Eligible   bool
	LimitKey   string
	MaxAllowed *int
	Reason     string
}

// EvaluatePolicy decides whether proposal may be applied without Base Ops.
// Refund and voucher actions are bounded by the matching limit; every other
// action is eligible.
func EvaluatePolicy(proposal domain.Proposal, limits []domain.PolicyLimit) GateDecision {
	action := domain.NormalizeActionType(proposal.ActionType)

	var key string
	switch {
	case strings.Contains(action, "refund"):
		key = "refund"
	case strings.Contains(action, "voucher"):
		key = "voucher"
	default:
		return GateDecision{Eligible: true, Reason: "non-monetary action"}
	}

	decision := GateDecision{LimitKey: key}
	var limit *domain.PolicyLimit
	for i := range limits {
		if domain.NormalizeActionType(limits[i].ActionType) == key {
			limit = &limits[i]
			break
		}
	}
	if limit == nil {
		decision.Reason = fmt.Sprintf("no policy limit for %s", key)
		return decision
	}
	max := limit.MaxAllowedPercentage
	decision.MaxAllowed = &max

	pct := proposal.Percentage
	switch {
	case pct < 0:
		decision.Reason = fmt.Sprintf("invalid percentage %d", pct)
	case pct == 0:
		decision.Eligible = true
		decision.Reason = fmt.Sprintf("no percentage proposed for %s", key)
	case pct <= max:
		decision.Eligible = true
		decision.Reason = fmt.Sprintf("%d%% within %s limit of %d%%", pct, key, max)
	default:
		decision.Reason = fmt.Sprintf("%d%% exceeds %s limit of %d%%", pct, key, max)
	}
	return decision
}
