// Package plan extracts ordered plan phases from a planning document.
//
// A plan phase is one unit of planned implementation work. Each phase
// cycles through three stages (implement, defend, evaluate), tracked
// individually so a restart resumes exactly where work stopped. The
// extractor never fails outright on an imperfect document: it degrades
// to a single synthetic phase so at least one cycle always runs.
package plan

import (
	"fmt"
	"strings"
)

// --- Stage enum ---

// Stage is one of the three steps every plan phase cycles through.
type Stage string

const (
	StageImplement Stage = "implement"
	StageDefend    Stage = "defend"
	StageEvaluate  Stage = "evaluate"
)

// StageOrder is the fixed traversal order within a plan phase.
var StageOrder = []Stage{StageImplement, StageDefend, StageEvaluate}

// NextStage returns the stage after s, or false when s is the last one.
func NextStage(s Stage) (Stage, bool) {
	for i, stage := range StageOrder {
		if stage == s && i+1 < len(StageOrder) {
			return StageOrder[i+1], true
		}
	}
	return "", false
}

// --- Stage status enum ---

// StageStatus tracks progress of a single stage.
type StageStatus string

const (
	StatusPending    StageStatus = "pending"
	StatusInProgress StageStatus = "in_progress"
	StatusComplete   StageStatus = "complete"
	// StatusBlocked marks a stage whose retry budget is exhausted.
	// It requires human intervention and is terminal for this subsystem.
	StatusBlocked StageStatus = "blocked"
)

// Stages holds the per-stage progress of one plan phase. The three
// fields are the only mutable part of a Phase, and they mutate strictly
// in implement → defend → evaluate order.
type Stages struct {
	Implement StageStatus `yaml:"implement" json:"implement"`
	Defend    StageStatus `yaml:"defend" json:"defend"`
	Evaluate  StageStatus `yaml:"evaluate" json:"evaluate"`
}

// Get returns the status of the given stage.
func (s *Stages) Get(stage Stage) StageStatus {
	switch stage {
	case StageImplement:
		return s.Implement
	case StageDefend:
		return s.Defend
	case StageEvaluate:
		return s.Evaluate
	}
	return ""
}

// Set updates the status of the given stage.
func (s *Stages) Set(stage Stage, status StageStatus) {
	switch stage {
	case StageImplement:
		s.Implement = status
	case StageDefend:
		s.Defend = status
	case StageEvaluate:
		s.Evaluate = status
	}
}

// --- Plan phase ---

// Phase is one unit of planned implementation work.
type Phase struct {
	ID     string `yaml:"id" json:"id"`
	Title  string `yaml:"title" json:"title"`
	Stages Stages `yaml:"stages" json:"stages"`
}

// Current returns the first stage that is not complete, which is the
// stage work happens in. The second return is false once every stage
// is complete.
func (p *Phase) Current() (Stage, bool) {
	for _, stage := range StageOrder {
		if p.Stages.Get(stage) != StatusComplete {
			return stage, true
		}
	}
	return "", false
}

// Complete reports whether every stage of the phase is complete.
func (p *Phase) Complete() bool {
	_, ok := p.Current()
	return !ok
}

// NewPhase creates a plan phase with all stages pending.
func NewPhase(id, title string) Phase {
	return Phase{
		ID:    id,
		Title: title,
		Stages: Stages{
			Implement: StatusPending,
			Defend:    StatusPending,
			Evaluate:  StatusPending,
		},
	}
}

// SyntheticPhase is the single-phase fallback used when no plan
// structure can be recovered from a document.
func SyntheticPhase() Phase {
	return NewPhase("phase_1", "Implementation")
}

const maxSlugLen = 50

// Slugify converts a title into a filesystem-safe slug.
// Example: "Add user auth" → "add-user-auth".
//
// Rules:
//   - Lowercase
//   - Spaces and underscores become hyphens
//   - Non-alphanumeric characters (except hyphens) are removed
//   - Consecutive hyphens are collapsed
//   - Leading/trailing hyphens are trimmed
//   - Truncated to 50 characters (at a word boundary if possible)
func Slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	if s == "" {
		return ""
	}

	var b strings.Builder
	prevHyphen := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			prevHyphen = false
		case r == ' ' || r == '_' || r == '-':
			if !prevHyphen {
				b.WriteByte('-')
				prevHyphen = true
			}
		}
	}

	slug := strings.Trim(b.String(), "-")
	if len(slug) <= maxSlugLen {
		return slug
	}

	truncated := slug[:maxSlugLen]
	if lastHyphen := strings.LastIndex(truncated, "-"); lastHyphen > maxSlugLen/2 {
		truncated = truncated[:lastHyphen]
	}
	return strings.TrimRight(truncated, "-")
}

// numberedID formats the canonical plan phase id for ordinal n (1-based).
func numberedID(n int) string {
	return fmt.Sprintf("phase_%d", n)
}
