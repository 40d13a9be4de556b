package domain

import "strings"

// PolicyLimit caps the compensation percentage for an action type.
type PolicyLimit struct {
	ActionType           string
	MaxAllowedPercentage int
	Description          string
}

// NormalizeActionType lower-cases and trims an action type for table lookups.
func NormalizeActionType(actionType string) string {
	return strings.ToLower(strings.TrimSpace(actionType))
}
