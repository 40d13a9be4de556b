package domain

import "time"

// ActorType identifies who caused a history entry.
type ActorType string

const (
	ActorTypeSystem   ActorType = "SYSTEM"
	ActorTypeOperator ActorType = "OPERATOR"
)

// HistoryAction names the lifecycle step recorded in a history entry.
type HistoryAction string

const (
	HistoryIngested            HistoryAction = "INGESTED"
	HistoryRouted              HistoryAction = "ROUTED"
	HistoryMissingInfo         HistoryAction = "MISSING_INFO"
	HistoryAutoResolved        HistoryAction = "AUTO_RESOLVED"
	HistoryExtractionDeferred  HistoryAction = "EXTRACTION_DEFERRED"
	HistoryResolutionEvaluated HistoryAction = "RESOLUTION_EVALUATED"
	HistoryDeadLettered        HistoryAction = "DEAD_LETTERED"
	HistoryDraftGenerated      HistoryAction = "DRAFT_GENERATED"
	HistoryApproved            HistoryAction = "APPROVED"
)

// ComplaintHistory is an immutable audit trail entry.
type ComplaintHistory struct {
	ID          string
	ComplaintID string
	ActorType   ActorType
	ActorID     *string
	Action      HistoryAction
	OldStatus   *ComplaintStatus
	NewStatus   ComplaintStatus
	Details     map[string]any
	CreatedAt   time.Time
}
