package service

import (
	"html"
	"regexp"
	"strings"

	"github.com/spec-kit/complaint-service/internal/domain"
)

var (
	subjectCaseTag  = regexp.MustCompile(`\[Case:\s*(CMP-\d{4}-\d+)\]`)
	bodyCaseLabel   = regexp.MustCompile(`(?i)(?:Case ID|Complaint ID)\s*:\s*(CMP-\d{4}-\d+)`)
	lineBreakTags   = regexp.MustCompile(`(?i)<\s*(?:br\s*/?|/p|/tr|/div|/h\d|/li)\s*>`)
	cellTags        = regexp.MustCompile(`(?i)<\s*/t[dh]\s*>`)
	anyTag          = regexp.MustCompile(`(?s)<[^>]*>`)
	resolutionBlock = regexp.MustCompile(`(?is)===\s*RESOLUTION\s*===(.*?)===\s*END RESOLUTION\s*===`)
	actionLine      = regexp.MustCompile(`(?im)^[ \t>*-]*action taken[ \t]*[:\t][ \t]*(.*)$`)
	outcomeLine     = regexp.MustCompile(`(?im)^[ \t>*-]*outcome[ \t]*[:\t][ \t]*(.*)$`)
)

// ExtractCaseID finds the complaint id a Base Ops reply refers to.
func ExtractCaseID(subject, body string) (string, bool) {
	if m := subjectCaseTag.FindStringSubmatch(subject); m != nil {
		return m[1], true
	}
	if m := subjectCaseTag.FindStringSubmatch(body); m != nil {
		return m[1], true
	}
	if m := bodyCaseLabel.FindStringSubmatch(StripHTML(body)); m != nil {
		return m[1], true
	}
	return "", false
}

// StripHTML turns an HTML mail body into text, keeping line and cell structure.
func StripHTML(body string) string {
	out := lineBreakTags.ReplaceAllString(body, "\n")
	out = cellTags.ReplaceAllString(out, "\t")
	out = anyTag.ReplaceAllString(out, "")
	out = html.UnescapeString(out)
	out = strings.ReplaceAll(out, "\u00a0", " ")
	return strings.ReplaceAll(out, "\r\n", "\n")
}

// ParseResolutionBlock reads action taken and outcome without the LLM. The
// delimited block wins; labelled lines anywhere in the body are the fallback.
func ParseResolutionBlock(body string) (domain.ResolutionFields, domain.ParseSource, bool) {
	text := StripHTML(body)
	for _, m := range resolutionBlock.FindAllStringSubmatch(text, -1) {
		if f := labelledFields(m[1]); f.Complete() {
			return f, domain.ParseSourceStrict, true
		}
	}
	if f := labelledFields(text); f.Complete() {
		return f, domain.ParseSourceLoose, true
	}
	return domain.ResolutionFields{}, "", false
}

func labelledFields(text string) domain.ResolutionFields {
	return domain.ResolutionFields{
		ActionTaken: firstValue(actionLine, text),
		Outcome:     firstValue(outcomeLine, text),
	}
}

// firstValue skips placeholders such as "-" left over from the request template.
func firstValue(re *regexp.Regexp, text string) string {
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		v := strings.TrimSpace(m[1])
		if v == "" || strings.Trim(v, "-_. ") == "" {
			continue
		}
		return v
	}
	return ""
}
