package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/complaint-service/internal/domain"
)

func TestEvaluatePolicy(t *testing.T) {
	limits := []domain.PolicyLimit{
		{ActionType: "Refund", MaxAllowedPercentage: 30},
		{ActionType: "voucher", MaxAllowedPercentage: 50},
	}

	tests := []struct {
		name     string
		proposal domain.Proposal
		eligible bool
		key      string
	}{
		{"refund at limit", domain.Proposal{ActionType: "Refund", Percentage: 30}, true, "refund"},
		{"refund above limit", domain.Proposal{ActionType: "Partial Refund", Percentage: 31}, false, "refund"},
		{"voucher within limit", domain.Proposal{ActionType: "Travel Voucher", Percentage: 20}, true, "voucher"},
		{"apology has no limit", domain.Proposal{ActionType: "Apology"}, true, ""},
		{"zero percent refund", domain.Proposal{ActionType: "refund", Percentage: 0}, true, "refund"},
		{"negative percentage", domain.Proposal{ActionType: "refund", Percentage: -5}, false, "refund"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := EvaluatePolicy(tt.proposal, limits)
			assert.Equal(t, tt.eligible, d.Eligible, d.Reason)
			assert.Equal(t, tt.key, d.LimitKey)
		})
	}
}

func TestEvaluatePolicyWithoutLimitRejectsMonetaryActions(t *testing.T) {
	d := EvaluatePolicy(domain.Proposal{ActionType: "Refund", Percentage: 10}, nil)
	assert.False(t, d.Eligible)
	assert.Nil(t, d.MaxAllowed)

	d = EvaluatePolicy(domain.Proposal{ActionType: "Refund", Percentage: 10},
		[]domain.PolicyLimit{{ActionType: "refund", MaxAllowedPercentage: 30}})
	require.NotNil(t, d.MaxAllowed)
	assert.Equal(t, 30, *d.MaxAllowed)
}
