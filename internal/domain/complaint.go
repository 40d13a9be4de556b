package domain

import (
	"fmt"
	"regexp"
	"time"
)

// ComplaintStatus enumerates lifecycle states for complaints.
type ComplaintStatus string

const (
	ComplaintStatusNew         ComplaintStatus = "NEW"
	ComplaintStatusMissingInfo ComplaintStatus = "MISSING_INFO"
	ComplaintStatusWaitingOps  ComplaintStatus = "WAITING_OPS"
	ComplaintStatusDraftReady  ComplaintStatus = "DRAFT_READY"
	ComplaintStatusResolved    ComplaintStatus = "RESOLVED"
	ComplaintStatusApproved    ComplaintStatus = "APPROVED"
)

// ResolutionStatus tracks the investigation outcome independent of the lifecycle.
type ResolutionStatus string

const (
	ResolutionStatusPending  ResolutionStatus = "PENDING"
	ResolutionStatusResolved ResolutionStatus = "RESOLVED"
	ResolutionStatusFlagged  ResolutionStatus = "FLAGGED"
)

// Valid reports whether s is a known lifecycle status.
func (s ComplaintStatus) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// Valid reports whether s is a known resolution status.
func (s ResolutionStatus) Valid() bool {
	switch s {
	case ResolutionStatusPending, ResolutionStatusResolved, ResolutionStatusFlagged:
		return true
	}
	return false
}

var allowedTransitions = map[ComplaintStatus][]ComplaintStatus{
	ComplaintStatusNew:         {ComplaintStatusWaitingOps, ComplaintStatusMissingInfo, ComplaintStatusResolved},
	ComplaintStatusMissingInfo: {},
	ComplaintStatusWaitingOps:  {ComplaintStatusWaitingOps, ComplaintStatusResolved, ComplaintStatusDraftReady},
	ComplaintStatusDraftReady:  {ComplaintStatusDraftReady, ComplaintStatusApproved},
	ComplaintStatusResolved:    {},
	ComplaintStatusApproved:    {ComplaintStatusApproved},
}

// CanTransition reports whether the lifecycle permits moving from current to next.
func CanTransition(current, next ComplaintStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Complaint is the unit of work driven through the lifecycle.
type Complaint struct {
	ID                 string
	SourceMessageID    string
	Subject            string
	SenderEmail        string
	ReceivedAt         time.Time
	Status             ComplaintStatus
	ResolutionStatus   ResolutionStatus
	Grid               *InvestigationGrid
	OriginStation      *string
	ExtractionAttempts int
	NextExtractionAt   *time.Time
	NeedsManualReview  bool
	ManualReviewReason *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TransitionTo moves the complaint to next when the lifecycle allows it.
func (c *Complaint) TransitionTo(next ComplaintStatus) error {
	if !CanTransition(c.Status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, next)
	}
	c.Status = next
	return nil
}

// FlagForManualReview removes the complaint from automated retries.
func (c *Complaint) FlagForManualReview(reason string) {
	c.NeedsManualReview = true
	c.ManualReviewReason = &reason
}

// ReadyForExtraction reports whether the extraction phase should pick this complaint up at now.
func (c *Complaint) ReadyForExtraction(now time.Time) bool {
	if c.Status != ComplaintStatusNew || c.Grid != nil || c.NeedsManualReview {
		return false
	}
	return c.NextExtractionAt == nil || !now.Before(*c.NextExtractionAt)
}

// ReadyForResolution reports whether a Base Ops reply may be evaluated.
func (c *Complaint) ReadyForResolution() bool {
	return c.Status == ComplaintStatusWaitingOps && c.ResolutionStatus == ResolutionStatusPending && c.Grid != nil
}

// ComplaintFilter narrows dashboard listings.
type ComplaintFilter struct {
	Statuses           []ComplaintStatus
	ResolutionStatuses []ResolutionStatus
	OriginStation      *string
	NeedsManualReview  *bool
	Limit              int
	Offset             int
}

var caseIDPattern = regexp.MustCompile(`^CMP-\d{4}-\d{4,}$`)

// FormatCaseID renders the human-facing complaint id for a per-year sequence value.
func FormatCaseID(year int, seq int64) string {
	return fmt.Sprintf("CMP-%04d-%04d", year, seq)
}

// IsCaseID reports whether id has the CMP-YYYY-#### shape.
func IsCaseID(id string) bool {
	return caseIDPattern.MatchString(id)
}
