// Package consult coordinates parallel review by independent reviewer
// collaborators and parses their replies into structured verdicts.
//
// Each reviewer call is isolated: a failure, timeout, or malformed
// reply degrades to a low-confidence COMMENT verdict rather than
// aborting the round. The aggregate decision is only computed once all
// calls have settled.
package consult

import (
	"strings"
)

// --- Decision enum ---

// Decision is a reviewer's judgment on the work under review.
type Decision string

const (
	Approve        Decision = "APPROVE"
	RequestChanges Decision = "REQUEST_CHANGES"
	Comment        Decision = "COMMENT"
)

// --- Confidence enum ---

// Confidence qualifies how sure a reviewer is of its decision.
type Confidence string

const (
	High   Confidence = "HIGH"
	Medium Confidence = "MEDIUM"
	Low    Confidence = "LOW"
)

// Verdict is one reviewer's structured judgment. Ephemeral: only a
// compact summary survives into the history log.
type Verdict struct {
	Model      string     `json:"model"`
	Decision   Decision   `json:"verdict"`
	Summary    string     `json:"summary"`
	Confidence Confidence `json:"confidence"`
	Issues     []string   `json:"issues,omitempty"`
}

// fallbackVerdict builds the degraded COMMENT/LOW verdict used whenever
// a reply cannot be parsed or a call failed outright.
func fallbackVerdict(model, reason string) Verdict {
	return Verdict{
		Model:      model,
		Decision:   Comment,
		Summary:    "reviewer reply could not be interpreted",
		Confidence: Low,
		Issues:     []string{reason},
	}
}

// Parse extracts a verdict from a reviewer reply by locating the fixed
// trailer block:
//
//	VERDICT: <APPROVE|REQUEST_CHANGES|COMMENT>
//	SUMMARY: <one line>
//	CONFIDENCE: <HIGH|MEDIUM|LOW>
//	ISSUES:
//	- ...
//
// A missing or malformed trailer yields a COMMENT verdict with LOW
// confidence and an explanatory issue, never an error.
func Parse(model, reply string) Verdict {
	v := Verdict{Model: model, Confidence: Medium}
	var sawVerdict bool
	var inIssues bool

	for _, raw := range strings.Split(reply, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(line, "VERDICT:"):
			decision := Decision(strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(line, "VERDICT:"))))
			switch decision {
			case Approve, RequestChanges, Comment:
				v.Decision = decision
				sawVerdict = true
			}
			inIssues = false
		case strings.HasPrefix(line, "SUMMARY:"):
			v.Summary = strings.TrimSpace(strings.TrimPrefix(line, "SUMMARY:"))
			inIssues = false
		case strings.HasPrefix(line, "CONFIDENCE:"):
			conf := Confidence(strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(line, "CONFIDENCE:"))))
			switch conf {
			case High, Medium, Low:
				v.Confidence = conf
			}
			inIssues = false
		case strings.HasPrefix(line, "ISSUES:"):
			inIssues = true
		case inIssues && strings.HasPrefix(line, "- "):
			v.Issues = append(v.Issues, strings.TrimSpace(strings.TrimPrefix(line, "- ")))
		case inIssues && line != "":
			// A non-bullet line ends the issues section.
			inIssues = false
		}
	}

	if !sawVerdict {
		return fallbackVerdict(model, "reply has no VERDICT trailer")
	}
	if v.Summary == "" {
		v.Summary = "(no summary)"
	}
	return v
}

// Decide applies the aggregation rule: any REQUEST_CHANGES forces a
// retry; unanimous APPROVE/COMMENT allows advancement. An empty round
// allows advancement vacuously.
func Decide(verdicts []Verdict) bool {
	for _, v := range verdicts {
		if v.Decision == RequestChanges {
			return false
		}
	}
	return true
}

// Summarize renders a compact one-line summary of a round for the
// history log, e.g. "claude:APPROVE gpt:REQUEST_CHANGES".
func Summarize(verdicts []Verdict) string {
	parts := make([]string, 0, len(verdicts))
	for _, v := range verdicts {
		parts = append(parts, v.Model+":"+string(v.Decision))
	}
	return strings.Join(parts, " ")
}
