package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// CaseSearcher finds past resolutions near an embedding.
type CaseSearcher interface {
	SearchSimilar(ctx context.Context, embedding []float32, k int) ([]domain.ResolutionCase, error)
}

// Advisor proposes an auto-resolution from similar past cases.
type Advisor struct {
	client Client
	cases  CaseSearcher
	k      int
	logger *zap.Logger
}

func NewAdvisor(client Client, cases CaseSearcher, k int, logger *zap.Logger) *Advisor {
	if k <= 0 {
		k = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Advisor{client: client, cases: cases, k: k, logger: logger}
}

type suggestion struct {
	Category            string `json:"category" jsonschema:"enum=Delay,enum=Baggage,enum=Staff,enum=Flight Cancellation,enum=Refund Request,enum=Other"`
	SuggestedAction     string `json:"suggested_action" jsonschema:"description=for example Refund or Voucher or Apology"`
	SuggestedOutcome    string `json:"suggested_outcome" jsonschema:"description=for example 20% refund on ticket value"`
	ExtractedPercentage int    `json:"extracted_percentage" jsonschema:"description=integer percentage when the outcome is a refund or discount otherwise 0"`
	DraftResponse       string `json:"draft_response"`
	Reasoning           string `json:"reasoning"`
}

const advisorPrompt = `You are an airline customer service agent deciding resolutions from local policy and past case history.
Given a new complaint, passenger details and similar past cases, choose the best action for the passenger.

RULES:
1. Follow how comparable past cases were resolved.
2. Name a specific action (Refund, Voucher, Apology) and a specific outcome.
3. When the outcome is a refund or discount, put its percentage in extracted_percentage.
4. Draft a polite, professional email to the passenger.
5. Give brief reasoning.`

// Suggest returns a proposal for complaintText. passenger may be nil.
func (a *Advisor) Suggest(ctx context.Context, complaintText string, passenger *domain.Passenger) (*domain.Proposal, error) {
	similar := "No similar past cases found."
	if a.cases != nil {
		cases, err := a.similarCases(ctx, complaintText)
		if err != nil {
			a.logger.Warn("similar case lookup failed; proceeding without context", zap.Error(err))
			similar = "Context unavailable."
		} else if len(cases) > 0 {
			similar = renderCases(cases)
		}
	}

	var out suggestion
	_, err := a.client.Chat(ctx, Request{
		SystemPrompt: advisorPrompt,
		UserPrompt: fmt.Sprintf("Current complaint: %q\nPassenger details: %s\n\n%s",
			truncate(complaintText), describePassenger(passenger), similar),
		SchemaName:  "policy_suggestion",
		Schema:      GenerateSchema[suggestion](),
		MaxTokens:   1200,
		Temperature: Temp(0.2),
	}, &out)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.SuggestedAction) == "" {
		return nil, nil
	}

	return &domain.Proposal{
		Strategy:      "policy",
		Category:      out.Category,
		ActionType:    strings.TrimSpace(out.SuggestedAction),
		Outcome:       strings.TrimSpace(out.SuggestedOutcome),
		Percentage:    out.ExtractedPercentage,
		DraftResponse: out.DraftResponse,
		Reasoning:     out.Reasoning,
	}, nil
}

func (a *Advisor) similarCases(ctx context.Context, complaintText string) ([]domain.ResolutionCase, error) {
	embedding, err := a.client.Embed(ctx, complaintText)
	if err != nil {
		return nil, err
	}
	return a.cases.SearchSimilar(ctx, embedding, a.k)
}

func renderCases(cases []domain.ResolutionCase) string {
	var b strings.Builder
	b.WriteString("Similar past cases and how they were resolved:\n")
	for _, c := range cases {
		fmt.Fprintf(&b, "- Past case (%s): %q\n  Action Taken: %s\n  Outcome: %s\n", c.Category, c.ComplaintText, c.ActionType, c.Outcome)
	}
	return b.String()
}

func describePassenger(p *domain.Passenger) string {
	if p == nil {
		return "Passenger details NOT FOUND for this complaint."
	}
	return fmt.Sprintf("Customer: %s, Flight: %s, Route: %s->%s", p.CustomerName, p.FlightNumber, p.Source, p.Destination)
}
