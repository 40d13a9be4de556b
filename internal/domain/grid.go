package domain

import (
	"regexp"
	"strings"
)

// FieldConfidence tags how an extracted field was obtained.
type FieldConfidence string

const (
	ConfidenceExplicit FieldConfidence = "EXPLICIT"
	ConfidenceInferred FieldConfidence = "INFERRED"
	ConfidenceMissing  FieldConfidence = "MISSING"
)

// InvestigationGrid is the structured record of facts for a complaint.
// Fields pnr through date belong to the extraction phase; action_taken
// through agent_reasoning are written once by the resolution phase.
type InvestigationGrid struct {
	PNR              *string `json:"pnr"`
	CustomerName     *string `json:"customer_name"`
	FlightNumber     *string `json:"flight_number"`
	SeatNumber       *string `json:"seat_number"`
	Source           *string `json:"source"`
	Destination      *string `json:"destination"`
	Complaint        *string `json:"complaint"`
	IssueType        *string `json:"issue_type"`
	WeatherCondition *string `json:"weather_condition"`
	Date             *string `json:"date"`
	ActionTaken      *string `json:"action_taken"`
	Outcome          *string `json:"outcome"`
	AgentSummary     *string `json:"agent_summary"`
	ConfidenceScore  *int    `json:"confidence_score"`
	AgentReasoning   *string `json:"agent_reasoning"`
}

type gridField struct {
	name string
	ptr  **string
}

func (g *InvestigationGrid) extractionFields() []gridField {
	return []gridField{
		{"pnr", &g.PNR},
		{"customer_name", &g.CustomerName},
		{"flight_number", &g.FlightNumber},
		{"seat_number", &g.SeatNumber},
		{"source", &g.Source},
		{"destination", &g.Destination},
		{"complaint", &g.Complaint},
		{"issue_type", &g.IssueType},
		{"weather_condition", &g.WeatherCondition},
		{"date", &g.Date},
	}
}

// Clone returns a deep copy so callers can mutate without touching the cached grid.
func (g InvestigationGrid) Clone() InvestigationGrid {
	out := InvestigationGrid{
		PNR:              cloneString(g.PNR),
		CustomerName:     cloneString(g.CustomerName),
		FlightNumber:     cloneString(g.FlightNumber),
		SeatNumber:       cloneString(g.SeatNumber),
		Source:           cloneString(g.Source),
		Destination:      cloneString(g.Destination),
		Complaint:        cloneString(g.Complaint),
		IssueType:        cloneString(g.IssueType),
		WeatherCondition: cloneString(g.WeatherCondition),
		Date:             cloneString(g.Date),
		ActionTaken:      cloneString(g.ActionTaken),
		Outcome:          cloneString(g.Outcome),
		AgentSummary:     cloneString(g.AgentSummary),
		AgentReasoning:   cloneString(g.AgentReasoning),
	}
	if g.ConfidenceScore != nil {
		score := *g.ConfidenceScore
		out.ConfidenceScore = &score
	}
	return out
}

// MergePassenger overlays the canonical passenger fields onto an extracted grid.
// Blank passenger values never erase an extracted value; investigative
// fields are left exactly as extracted.
func (g InvestigationGrid) MergePassenger(p Passenger) InvestigationGrid {
	out := g.Clone()
	overlay := []struct {
		dst **string
		val string
	}{
		{&out.PNR, p.PNR},
		{&out.CustomerName, p.CustomerName},
		{&out.FlightNumber, p.FlightNumber},
		{&out.SeatNumber, p.SeatNumber},
		{&out.Source, p.Source},
		{&out.Destination, p.Destination},
	}
	for _, o := range overlay {
		if v := StringPtr(o.val); v != nil {
			*o.dst = v
		}
	}
	return out
}

// HasResolution reports whether the evaluation pass has already written its fields.
func (g InvestigationGrid) HasResolution() bool {
	return g.ConfidenceScore != nil || g.AgentSummary != nil || g.AgentReasoning != nil
}

// ApplyResolution records the Base Ops action and outcome. Only those two fields change.
func (g *InvestigationGrid) ApplyResolution(fields ResolutionFields) error {
	if g.HasResolution() {
		return ErrResolutionAlreadyRecorded
	}
	g.ActionTaken = StringPtr(fields.ActionTaken)
	g.Outcome = StringPtr(fields.Outcome)
	return nil
}

// ApplyEvaluation writes the evaluation verdict fields exactly once.
func (g *InvestigationGrid) ApplyEvaluation(e Evaluation) error {
	if g.HasResolution() {
		return ErrResolutionAlreadyRecorded
	}
	score := e.ConfidenceScore
	g.AgentSummary = StringPtr(e.AgentSummary)
	g.ConfidenceScore = &score
	g.AgentReasoning = StringPtr(e.AgentReasoning)
	return nil
}

// Extraction is the validated output of the extraction collaborator.
type Extraction struct {
	Grid       InvestigationGrid          `json:"grid_fields"`
	Confidence map[string]FieldConfidence `json:"confidence"`
}

var (
	isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	nullLiterals   = map[string]struct{}{"null": {}, "none": {}, "n/a": {}, "na": {}, "unknown": {}}
)

// Normalize validates the raw extraction at the collaborator boundary: blank
// and placeholder values become nil, codes are upper-cased, malformed dates
// are dropped and resolution-phase fields are cleared.
func (e *Extraction) Normalize() {
	g := &e.Grid
	for _, f := range g.extractionFields() {
		*f.ptr = cleanValue(*f.ptr)
	}
	if g.PNR != nil {
		pnr := strings.ToUpper(strings.ReplaceAll(*g.PNR, " ", ""))
		g.PNR = &pnr
	}
	for _, code := range []**string{&g.Source, &g.Destination, &g.FlightNumber, &g.SeatNumber} {
		if *code != nil {
			upper := strings.ToUpper(**code)
			*code = &upper
		}
	}
	if g.Date != nil && !isoDatePattern.MatchString(*g.Date) {
		g.Date = nil
	}

	g.ActionTaken = nil
	g.Outcome = nil
	g.AgentSummary = nil
	g.ConfidenceScore = nil
	g.AgentReasoning = nil

	confidence := make(map[string]FieldConfidence, len(g.extractionFields()))
	for _, f := range g.extractionFields() {
		switch {
		case *f.ptr == nil:
			confidence[f.name] = ConfidenceMissing
		case e.Confidence[f.name] == ConfidenceExplicit:
			confidence[f.name] = ConfidenceExplicit
		default:
			confidence[f.name] = ConfidenceInferred
		}
	}
	e.Confidence = confidence
}

// ConfidenceBand is the advisory triage bucket for an evaluation score.
type ConfidenceBand string

const (
	BandExcellent ConfidenceBand = "excellent"
	BandPartial   ConfidenceBand = "partial"
	BandPoor      ConfidenceBand = "poor"
)

// BandFor buckets a 0-100 confidence score.
func BandFor(score int) ConfidenceBand {
	switch {
	case score >= 80:
		return BandExcellent
	case score >= 60:
		return BandPartial
	default:
		return BandPoor
	}
}

func cleanValue(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	if _, ok := nullLiterals[strings.ToLower(trimmed)]; ok {
		return nil
	}
	return &trimmed
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

// StringPtr returns nil for blank strings, otherwise a pointer to s.
func StringPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed value or "".
func Deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
