package gateway

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fenceRe    = regexp.MustCompile("```(?:json)?\\s*")
	objectRe   = regexp.MustCompile(`(?s)\{.*\}`)
	trailingRe = regexp.MustCompile(`,(\s*[}\]])`)
)

// ExtractJSON pulls the first JSON object out of a model response. Responses
// routinely arrive wrapped in markdown fences or surrounded by prose, and
// sometimes carry small syntax faults like trailing commas or single quotes.
// One repair pass is attempted before giving up. The second return value is
// false when no parseable object was found.
func ExtractJSON(text string) (json.RawMessage, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}

	text = fenceRe.ReplaceAllString(text, "")

	raw := objectRe.FindString(text)
	if raw == "" {
		return nil, false
	}

	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw), true
	}

	repaired := trailingRe.ReplaceAllString(raw, "$1")
	repaired = strings.NewReplacer("'", `"`, "“", `"`, "”", `"`).Replace(repaired)
	if json.Valid([]byte(repaired)) {
		return json.RawMessage(repaired), true
	}
	return nil, false
}
