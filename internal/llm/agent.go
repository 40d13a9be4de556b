package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// maxBodyChars bounds the email text sent to the model.
const maxBodyChars = 10000

// Agent implements the classification, extraction, evaluation and drafting
// collaborators on top of a structured-output Client.
type Agent struct {
	client Client
}

func NewAgent(client Client) *Agent {
	return &Agent{client: client}
}

type classification struct {
	IsComplaint bool   `json:"is_complaint" jsonschema:"description=true when the email is a passenger complaint about a flight or service"`
	Reason      string `json:"reason" jsonschema:"description=one short sentence"`
}

const classifyPrompt = `You triage the inbox of an airline customer relations team.
Decide whether the email is a passenger complaint (delay, cancellation, baggage, staff behaviour, refund, service failure).
Newsletters, auto-replies, internal notices and marketing are not complaints.`

// Classify reports whether the email is a passenger complaint.
func (a *Agent) Classify(ctx context.Context, subject, body string) (bool, error) {
	var out classification
	_, err := a.client.Chat(ctx, Request{
		SystemPrompt: classifyPrompt,
		UserPrompt:   fmt.Sprintf("Subject: %s\n\nBody:\n%s", subject, truncate(body)),
		SchemaName:   "complaint_classification",
		Schema:       GenerateSchema[classification](),
		MaxTokens:    200,
		Temperature:  Temp(0),
	}, &out)
	if err != nil {
		return false, err
	}
	return out.IsComplaint, nil
}

type extractedGrid struct {
	PNR              string `json:"pnr" jsonschema:"description=6-character booking reference or empty"`
	CustomerName     string `json:"customer_name"`
	FlightNumber     string `json:"flight_number"`
	SeatNumber       string `json:"seat_number"`
	Source           string `json:"source" jsonschema:"description=IATA code of the origin airport or empty"`
	Destination      string `json:"destination" jsonschema:"description=IATA code of the destination airport or empty"`
	Complaint        string `json:"complaint" jsonschema:"description=one sentence summary of the grievance"`
	IssueType        string `json:"issue_type" jsonschema:"enum=FLIGHT_DELAY,enum=CANCELLATION,enum=STAFF_BEHAVIOR,enum=BAGGAGE,enum=REFUND,enum=OTHER"`
	WeatherCondition string `json:"weather_condition" jsonschema:"description=only when the passenger names weather as the cause"`
	Date             string `json:"date" jsonschema:"description=flight date as YYYY-MM-DD or empty"`
}

type fieldConfidence struct {
	PNR              domain.FieldConfidence `json:"pnr" jsonschema:"enum=EXPLICIT,enum=INFERRED,enum=MISSING"`
	CustomerName     domain.FieldConfidence `json:"customer_name" jsonschema:"enum=EXPLICIT,enum=INFERRED,enum=MISSING"`
	FlightNumber     domain.FieldConfidence `json:"flight_number" jsonschema:"enum=EXPLICIT,enum=INFERRED,enum=MISSING"`
	SeatNumber       domain.FieldConfidence `json:"seat_number" jsonschema:"enum=EXPLICIT,enum=INFERRED,enum=MISSING"`
	Source           domain.FieldConfidence `json:"source" jsonschema:"enum=EXPLICIT,enum=INFERRED,enum=MISSING"`
	Destination      domain.FieldConfidence `json:"destination" jsonschema:"enum=EXPLICIT,enum=INFERRED,enum=MISSING"`
	Complaint        domain.FieldConfidence `json:"complaint" jsonschema:"enum=EXPLICIT,enum=INFERRED,enum=MISSING"`
	IssueType        domain.FieldConfidence `json:"issue_type" jsonschema:"enum=EXPLICIT,enum=INFERRED,enum=MISSING"`
	WeatherCondition domain.FieldConfidence `json:"weather_condition" jsonschema:"enum=EXPLICIT,enum=INFERRED,enum=MISSING"`
	Date             domain.FieldConfidence `json:"date" jsonschema:"enum=EXPLICIT,enum=INFERRED,enum=MISSING"`
}

type extractionResult struct {
	Grid       extractedGrid   `json:"grid"`
	Confidence fieldConfidence `json:"field_confidence"`
}

const extractPrompt = `You are a data extraction agent for an airline CX team.
Extract facts from the email into the investigation grid.

RULES:
1. Extract only facts stated in the email. Leave a field empty when it is not mentioned.
2. Mark each field EXPLICIT when quoted directly, INFERRED when derived, MISSING when empty.
3. weather_condition is filled only when the passenger says weather caused the issue.
4. Dates are YYYY-MM-DD. Use the received date only to resolve relative dates such as "yesterday".`

// ExtractGrid structures the complaint email. The result is not normalized.
func (a *Agent) ExtractGrid(ctx context.Context, subject, body string, receivedAt time.Time) (*domain.Extraction, error) {
	var out extractionResult
	_, err := a.client.Chat(ctx, Request{
		SystemPrompt: extractPrompt,
		UserPrompt: fmt.Sprintf("Subject: %s\nReceived At: %s\n\nBody:\n%s",
			subject, receivedAt.UTC().Format(time.RFC3339), truncate(body)),
		SchemaName:  "investigation_grid",
		Schema:      GenerateSchema[extractionResult](),
		MaxTokens:   800,
		Temperature: Temp(0),
	}, &out)
	if err != nil {
		return nil, err
	}

	g := out.Grid
	c := out.Confidence
	return &domain.Extraction{
		Grid: domain.InvestigationGrid{
			PNR:              domain.StringPtr(g.PNR),
			CustomerName:     domain.StringPtr(g.CustomerName),
			FlightNumber:     domain.StringPtr(g.FlightNumber),
			SeatNumber:       domain.StringPtr(g.SeatNumber),
			Source:           domain.StringPtr(g.Source),
			Destination:      domain.StringPtr(g.Destination),
			Complaint:        domain.StringPtr(g.Complaint),
			IssueType:        domain.StringPtr(g.IssueType),
			WeatherCondition: domain.StringPtr(g.WeatherCondition),
			Date:             domain.StringPtr(g.Date),
		},
		Confidence: map[string]domain.FieldConfidence{
			"pnr":               c.PNR,
			"customer_name":     c.CustomerName,
			"flight_number":     c.FlightNumber,
			"seat_number":       c.SeatNumber,
			"source":            c.Source,
			"destination":       c.Destination,
			"complaint":         c.Complaint,
			"issue_type":        c.IssueType,
			"weather_condition": c.WeatherCondition,
			"date":              c.Date,
		},
	}, nil
}

const resolutionPrompt = `You read an email from airline Base Operations replying to an investigation request.
Find the action the operations team took and the outcome offered to the passenger.
The email may contain an HTML table or free text with headings such as "Action Taken" and "Outcome".
Leave a field empty when it is not stated.`

// ExtractResolution pulls action taken and outcome from free-text replies.
func (a *Agent) ExtractResolution(ctx context.Context, body string) (domain.ResolutionFields, error) {
	var out domain.ResolutionFields
	_, err := a.client.Chat(ctx, Request{
		SystemPrompt: resolutionPrompt,
		UserPrompt:   truncate(body),
		SchemaName:   "resolution_fields",
		Schema:       GenerateSchema[domain.ResolutionFields](),
		MaxTokens:    400,
		Temperature:  Temp(0),
	}, &out)
	if err != nil {
		return domain.ResolutionFields{}, err
	}
	out.ActionTaken = strings.TrimSpace(out.ActionTaken)
	out.Outcome = strings.TrimSpace(out.Outcome)
	return out, nil
}

type evaluationResult struct {
	Status          string `json:"status" jsonschema:"enum=RESOLVED,enum=FLAGGED"`
	ConfidenceScore int    `json:"confidence_score" jsonschema:"description=0 to 100"`
	AgentSummary    string `json:"agent_summary" jsonschema:"description=one sentence summary of the resolution"`
	AgentReasoning  string `json:"agent_reasoning" jsonschema:"description=internal note explaining the score"`
	DraftResponse   string `json:"draft_response" jsonschema:"description=polite plain-text email body to the passenger with blank lines between paragraphs"`
}

const evaluatePrompt = `You supervise airline complaint resolutions.
Judge whether the Base Ops resolution addresses the passenger's complaint.

RULES:
1. Review action_taken and outcome against the complaint.
2. A resolution that addresses the core issue scores high and is RESOLVED.
3. A dismissive or incomplete resolution scores low and is FLAGGED.
4. Always write a polite draft response to the passenger.`

// Evaluate scores the resolution recorded on grid against the complaint.
func (a *Agent) Evaluate(ctx context.Context, complaintText string, grid domain.InvestigationGrid, responseText string) (*domain.Evaluation, error) {
	gridJSON, err := json.Marshal(grid)
	if err != nil {
		return nil, err
	}

	var out evaluationResult
	_, err = a.client.Chat(ctx, Request{
		SystemPrompt: evaluatePrompt,
		UserPrompt: fmt.Sprintf("COMPLAINT:\n%s\n\nINVESTIGATION GRID:\n%s\n\nBASE OPS REPLY:\n%s",
			truncate(complaintText), gridJSON, truncate(responseText)),
		SchemaName:  "resolution_evaluation",
		Schema:      GenerateSchema[evaluationResult](),
		MaxTokens:   1200,
		Temperature: Temp(0.2),
	}, &out)
	if err != nil {
		return nil, err
	}

	return &domain.Evaluation{
		Status:          domain.ResolutionStatus(strings.ToUpper(strings.TrimSpace(out.Status))),
		ConfidenceScore: out.ConfidenceScore,
		AgentSummary:    out.AgentSummary,
		AgentReasoning:  out.AgentReasoning,
		DraftResponse:   out.DraftResponse,
	}, nil
}

type draftResult struct {
	Text string `json:"text" jsonschema:"description=customer-facing plain-text email body with blank lines between paragraphs"`
}

const draftPrompt = `You write customer replies for an airline customer relations team.
Use the investigation grid and the operator notes. Be specific, courteous and brief.
Do not promise compensation the notes do not mention.`

// DraftReply writes customer-facing prose for the human review path.
func (a *Agent) DraftReply(ctx context.Context, grid domain.InvestigationGrid, complaintText, notes string) (string, error) {
	gridJSON, err := json.Marshal(grid)
	if err != nil {
		return "", err
	}

	var out draftResult
	_, err = a.client.Chat(ctx, Request{
		SystemPrompt: draftPrompt,
		UserPrompt: fmt.Sprintf("COMPLAINT:\n%s\n\nINVESTIGATION GRID:\n%s\n\nOPERATOR NOTES:\n%s",
			truncate(complaintText), gridJSON, notes),
		SchemaName:  "customer_draft",
		Schema:      GenerateSchema[draftResult](),
		MaxTokens:   1200,
		Temperature: Temp(0.4),
	}, &out)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Text) == "" {
		return "", fmt.Errorf("empty draft")
	}
	return out.Text, nil
}

// truncate caps s at maxBodyChars bytes on a rune boundary. Invalid bytes are
// replaced first so they cannot swallow the rest of the body.
func truncate(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= maxBodyChars {
		return s
	}
	cut := maxBodyChars
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
