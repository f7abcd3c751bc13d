package classify

import (
	"regexp"
	"strings"
)

// Completion markers the prompt asks the model to wrap its answer in.
const (
	BeginMarker = "[BEG]"
	EndMarker   = "[END]"
)

// ParseStatus tags how a completion was parsed.
type ParseStatus string

const (
	ParseOK           ParseStatus = "ok"
	ParseMissingBegin ParseStatus = "missing_begin"
	ParseMissingEnd   ParseStatus = "missing_end"
)

// ParseResult is the parsed category string and how it was obtained. Text
// is empty unless Status is ParseOK.
type ParseResult struct {
	Text   string
	Status ParseStatus
}

// fenceRe matches a leading code fence (with an optional csv tag, or any tag
// ended by a newline) and a trailing code fence.
var fenceRe = regexp.MustCompile("(?i)^```(?:csv|[\\w+-]*\\n)?\\s*|\\s*```$")

// Parse returns the lowercased text between the first [BEG] and the
// following [END], stripped of code fences. Malformed completions yield "".
func Parse(raw string) string {
	return ParseOutcome(raw).Text
}

// ParseOutcome is Parse with the reason for an empty result.
func ParseOutcome(raw string) ParseResult {
	_, afterBegin, ok := strings.Cut(raw, BeginMarker)
	if !ok {
		return ParseResult{Status: ParseMissingBegin}
	}
	body, _, ok := strings.Cut(afterBegin, EndMarker)
	if !ok {
		return ParseResult{Status: ParseMissingEnd}
	}
	cleaned := fenceRe.ReplaceAllString(strings.TrimSpace(body), "")
	return ParseResult{Text: strings.ToLower(cleaned), Status: ParseOK}
}
