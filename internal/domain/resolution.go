package domain

import (
	"fmt"
	"strings"
	"time"
)

// AutoResolveConfidence is the score written when the policy gate resolves a complaint.
const AutoResolveConfidence = 95

// ResolutionFields are the two facts parsed from a Base Ops reply.
type ResolutionFields struct {
	ActionTaken string `json:"action_taken"`
	Outcome     string `json:"outcome"`
}

// Complete reports whether both fields carry text.
func (f ResolutionFields) Complete() bool {
	return strings.TrimSpace(f.ActionTaken) != "" && strings.TrimSpace(f.Outcome) != ""
}

// ParseSource records which strategy produced the resolution fields.
type ParseSource string

const (
	ParseSourceStrict ParseSource = "STRICT"
	ParseSourceLoose  ParseSource = "LOOSE"
	ParseSourceLLM    ParseSource = "LLM"
)

// Evaluation is the verdict of the evaluation collaborator.
type Evaluation struct {
	Status          ResolutionStatus `json:"status"`
	ConfidenceScore int              `json:"confidence_score"`
	AgentSummary    string           `json:"agent_summary"`
	AgentReasoning  string           `json:"agent_reasoning"`
	DraftResponse   string           `json:"draft_response"`
}

// Normalize clamps the score and downgrades anything but RESOLVED to FLAGGED.
func (e *Evaluation) Normalize() {
	if e.Status != ResolutionStatusResolved {
		e.Status = ResolutionStatusFlagged
	}
	if e.ConfidenceScore < 0 {
		e.ConfidenceScore = 0
	}
	if e.ConfidenceScore > 100 {
		e.ConfidenceScore = 100
	}
	e.AgentSummary = strings.TrimSpace(e.AgentSummary)
	e.AgentReasoning = strings.TrimSpace(e.AgentReasoning)
	e.DraftResponse = strings.TrimSpace(e.DraftResponse)
}

// ResolutionRecord rides on the BASE_OPS email message so the grid can be replayed.
type ResolutionRecord struct {
	Fields     ResolutionFields `json:"fields"`
	Source     ParseSource      `json:"source"`
	Evaluation Evaluation       `json:"evaluation"`
}

// Proposal is an auto-resolution suggestion awaiting the policy gate.
type Proposal struct {
	Strategy      string `json:"strategy"`
	Category      string `json:"category"`
	ActionType    string `json:"action_type"`
	Outcome       string `json:"outcome"`
	Percentage    int    `json:"percentage"`
	DraftResponse string `json:"draft_response"`
	Reasoning     string `json:"reasoning"`
}

// ApplyAutoResolution writes the resolution-phase fields for a gate-approved proposal.
func (g *InvestigationGrid) ApplyAutoResolution(p Proposal) error {
	if g.HasResolution() {
		return ErrResolutionAlreadyRecorded
	}
	score := AutoResolveConfidence
	g.ActionTaken = StringPtr(p.ActionType)
	g.Outcome = StringPtr(p.Outcome)
	g.AgentSummary = StringPtr(fmt.Sprintf("Auto-resolved (%s): %s", p.Strategy, p.Outcome))
	g.ConfidenceScore = &score
	g.AgentReasoning = StringPtr(p.Reasoning)
	return nil
}

// ResolutionAttempt counts failed processing passes over one Base Ops message.
type ResolutionAttempt struct {
	SourceMessageID string
	ComplaintID     string
	Attempts        int
	LastError       string
	DeadLettered    bool
	UpdatedAt       time.Time
}

// ResolutionCase is a past resolution kept for similarity lookups.
type ResolutionCase struct {
	ID            string
	ComplaintID   *string
	Category      string
	ComplaintText string
	ActionType    string
	Outcome       string
	Percentage    int
	DraftResponse string
	Similarity    float64
	CreatedAt     time.Time
}
