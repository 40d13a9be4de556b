package service

import (
	"context"
	"time"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// Classifier decides whether an inbound email is a passenger complaint.
type Classifier interface {
	Classify(ctx context.Context, subject, body string) (bool, error)
}

// GridExtractor structures a complaint email into an investigation grid.
type GridExtractor interface {
	ExtractGrid(ctx context.Context, subject, body string, receivedAt time.Time) (*domain.Extraction, error)
}

// Evaluator scores a Base Ops resolution against the original complaint.
type Evaluator interface {
	Evaluate(ctx context.Context, complaintText string, grid domain.InvestigationGrid, responseText string) (*domain.Evaluation, error)
}

// ResolutionExtractor reads action taken and outcome from free-text replies.
type ResolutionExtractor interface {
	ExtractResolution(ctx context.Context, body string) (domain.ResolutionFields, error)
}

// PolicyAdvisor proposes an auto-resolution. passenger may be nil.
type PolicyAdvisor interface {
	Suggest(ctx context.Context, complaintText string, passenger *domain.Passenger) (*domain.Proposal, error)
}

// DraftWriter produces customer-facing prose for the review path.
type DraftWriter interface {
	DraftReply(ctx context.Context, grid domain.InvestigationGrid, complaintText, notes string) (string, error)
}

// DiscardCache remembers messages classified as non-complaints.
type DiscardCache interface {
	Seen(ctx context.Context, sourceMessageID string) (bool, error)
	Remember(ctx context.Context, sourceMessageID string) error
}

// WeatherLookup finds recorded weather for a flight.
type WeatherLookup interface {
	Find(ctx context.Context, flightNumber, date, station string) (*domain.FlightWeather, error)
}
