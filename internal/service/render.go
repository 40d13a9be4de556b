package service

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"strings"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// Rendered is a subject and HTML body ready for the outbox.
type Rendered struct {
	Subject string
	Body    string
}

var gridLabels = []struct {
	label string
	value func(domain.InvestigationGrid) *string
}{
	{"PNR", func(g domain.InvestigationGrid) *string { return g.PNR }},
	{"Customer Name", func(g domain.InvestigationGrid) *string { return g.CustomerName }},
	{"Flight Number", func(g domain.InvestigationGrid) *string { return g.FlightNumber }},
	{"Seat Number", func(g domain.InvestigationGrid) *string { return g.SeatNumber }},
	{"Source", func(g domain.InvestigationGrid) *string { return g.Source }},
	{"Destination", func(g domain.InvestigationGrid) *string { return g.Destination }},
	{"Complaint", func(g domain.InvestigationGrid) *string { return g.Complaint }},
	{"Issue Type", func(g domain.InvestigationGrid) *string { return g.IssueType }},
	{"Weather Condition", func(g domain.InvestigationGrid) *string { return g.WeatherCondition }},
	{"Date", func(g domain.InvestigationGrid) *string { return g.Date }},
}

type gridRow struct {
	Label string
	Value string
}

func gridRows(g domain.InvestigationGrid) []gridRow {
	rows := make([]gridRow, 0, len(gridLabels))
	for _, l := range gridLabels {
		v := domain.Deref(l.value(g))
		if v == "" {
			v = "-"
		}
		rows = append(rows, gridRow{Label: l.label, Value: v})
	}
	return rows
}

// GridText renders the plain-text grid block that Base Ops edit and send back.
func GridText(g domain.InvestigationGrid) string {
	var b strings.Builder
	b.WriteString("=== INVESTIGATION GRID ===\n")
	for _, r := range gridRows(g) {
		fmt.Fprintf(&b, "%s: %s\n", r.Label, r.Value)
	}
	b.WriteString("---\n")
	fmt.Fprintf(&b, "Action Taken: %s\n", orDash(domain.Deref(g.ActionTaken)))
	fmt.Fprintf(&b, "Outcome: %s\n", orDash(domain.Deref(g.Outcome)))
	b.WriteString("=== END GRID ===")
	return b.String()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

var templates = template.Must(template.New("mail").Parse(`
{{define "investigation"}}<h3>Action Required: Flight Complaint Investigation</h3>
<p><strong>Complaint ID:</strong> {{.ID}}</p>
<h4>Original Complaint</h4>
<p style="background-color:#f9f9f9;padding:10px;border-left:4px solid #0052cc;">{{.Complaint}}</p>
<table border="1" cellpadding="4" cellspacing="0">
{{range .Rows}}<tr><th align="left">{{.Label}}</th><td>{{.Value}}</td></tr>
{{end}}</table>
<h4>Please reply with the resolution</h4>
<pre style="font-family:monospace;white-space:pre-wrap;">=== RESOLUTION ===
Action Taken: 
Outcome: 
=== END RESOLUTION ===</pre>
<pre style="font-family:monospace;white-space:pre-wrap;color:#888;">{{.GridText}}</pre>
<p>Keep <strong>[Case: {{.ID}}]</strong> in the subject of your reply.</p>
{{end}}

{{define "missing_info"}}<p>Dear Customer,</p>
<p>Thank you for reaching out. We have received your complaint: <i>"{{.Complaint}}"</i>.</p>
<p>However, we were unable to locate your flight details with the PNR provided: <b>{{.PNR}}</b>.</p>
<p>To assist you further, please reply with the correct 6-character PNR.</p>
<p>Regards,<br/>Customer Experience Team</p>
<hr/>
<p><small>Reference ID: {{.ID}}</small></p>
{{end}}

{{define "final_draft"}}<p><strong>Case:</strong> {{.ID}} &middot; <strong>Verdict:</strong> {{.Status}} &middot; <strong>Score:</strong> {{.Score}}/100 ({{.Band}})</p>
<p><strong>Summary:</strong> {{.Summary}}</p>
<p><strong>Reasoning:</strong> {{.Reasoning}}</p>
<hr/>
<h4>Suggested customer response</h4>
<div>{{.Draft}}</div>
{{end}}

{{define "final_response"}}<div>{{.Text}}</div>
<hr/>
<p><small>Reference ID: {{.ID}}</small></p>
{{end}}
`))

func execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// RenderInvestigationRequest builds the Base Ops investigation email.
func RenderInvestigationRequest(c domain.Complaint, g domain.InvestigationGrid) (Rendered, error) {
	body, err := execute("investigation", map[string]any{
		"ID":        c.ID,
		"Complaint": orDash(domain.Deref(g.Complaint)),
		"Rows":      gridRows(g),
		"GridText":  GridText(g),
	})
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{
		Subject: fmt.Sprintf("[ACTION REQUIRED] Investigation Request: %s - PNR: %s [Case: %s]",
			c.Subject, orDash(domain.Deref(g.PNR)), c.ID),
		Body: body,
	}, nil
}

// RenderMissingInfoRequest builds the customer email asking for a valid PNR.
func RenderMissingInfoRequest(c domain.Complaint, g domain.InvestigationGrid) (Rendered, error) {
	complaint := domain.Deref(g.Complaint)
	if complaint == "" {
		complaint = c.Subject
	}
	pnr := domain.Deref(g.PNR)
	if pnr == "" {
		pnr = "None"
	}
	body, err := execute("missing_info", map[string]any{"ID": c.ID, "Complaint": complaint, "PNR": pnr})
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{
		Subject: fmt.Sprintf("Action Required: Missing Flight Details for Case %s", c.ID),
		Body:    body,
	}, nil
}

// RenderFinalDraft builds the CX review email for an evaluated or auto-resolved case.
func RenderFinalDraft(c domain.Complaint, status domain.ResolutionStatus, score int, summary, reasoning, draft string) (Rendered, error) {
	body, err := execute("final_draft", map[string]any{
		"ID":        c.ID,
		"Status":    status,
		"Score":     score,
		"Band":      domain.BandFor(score),
		"Summary":   orDash(summary),
		"Reasoning": orDash(reasoning),
		"Draft":     textToHTML(draft),
	})
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{
		Subject: fmt.Sprintf("[FINAL DRAFT] Response for Case %s (Score: %d/100)", c.ID, score),
		Body:    body,
	}, nil
}

// RenderFinalResponse builds the approved reply to the passenger.
func RenderFinalResponse(c domain.Complaint, text string) (Rendered, error) {
	body, err := execute("final_response", map[string]any{"ID": c.ID, "Text": textToHTML(text)})
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{Subject: "Re: " + c.Subject + " [Case: " + c.ID + "]", Body: body}, nil
}

// textToHTML escapes model or operator text and keeps its line breaks.
func textToHTML(text string) template.HTML {
	escaped := html.EscapeString(strings.ReplaceAll(strings.TrimSpace(text), "\r\n", "\n"))
	return template.HTML(strings.ReplaceAll(escaped, "\n", "<br>\n"))
}
