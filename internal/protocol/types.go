// Package protocol loads and validates protocol definitions.
//
// A protocol is a named, versioned sequence of phases. Each phase is either
// a single-pass "once" phase or a "per_plan_phase" phase that repeats its
// implement/defend/evaluate cycle for every planned unit of work. Phases may
// carry named check commands, a human-approval gate, and a completion
// transition. The loader normalizes definitions so the rest of the system
// never needs to consult defaults again.
package protocol

import (
	"fmt"
	"sort"
)

// --- Phase type enum ---

// PhaseType determines how a phase is traversed.
type PhaseType string

const (
	// TypeOnce is a single-pass phase: one round of checks and review.
	TypeOnce PhaseType = "once"
	// TypePerPlanPhase repeats implement/defend/evaluate per plan phase.
	TypePerPlanPhase PhaseType = "per_plan_phase"
)

// validTypes is the set of allowed phase types.
var validTypes = map[PhaseType]bool{
	TypeOnce:         true,
	TypePerPlanPhase: true,
}

// ValidateType returns an error if the phase type is not recognized.
func ValidateType(t PhaseType) error {
	if !validTypes[t] {
		return fmt.Errorf("invalid phase type %q: must be one of: once, per_plan_phase", t)
	}
	return nil
}

// --- Core data structures ---

// Gate is a named checkpoint requiring explicit external approval.
// Next is the phase entered once the gate is approved.
type Gate struct {
	Name string `json:"name"`
	Next string `json:"next"`
}

// Transition declares where a per_plan_phase phase goes once every
// plan phase has been completed.
type Transition struct {
	OnComplete string `json:"on_complete"`
}

// Phase is one named step in a protocol.
type Phase struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Type       PhaseType         `json:"type"`
	Gate       *Gate             `json:"gate,omitempty"`
	Checks     map[string]string `json:"checks,omitempty"`
	Transition *Transition       `json:"transition,omitempty"`
}

// Defaults carries settings merged into every phase at load time.
type Defaults struct {
	Checks        map[string]string `json:"checks,omitempty"`
	MaxIterations int               `json:"max_iterations,omitempty"`
}

// Definition is a complete protocol: an ordered set of phases.
type Definition struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description,omitempty"`
	Phases      []Phase  `json:"phases"`
	Defaults    Defaults `json:"defaults,omitempty"`
}

// DefaultMaxIterations bounds the retry loop when a protocol does not
// configure its own budget.
const DefaultMaxIterations = 7

// MaxIterations returns the configured retry budget per stage, or the
// default when the protocol does not set one.
func (d *Definition) MaxIterations() int {
	if d.Defaults.MaxIterations > 0 {
		return d.Defaults.MaxIterations
	}
	return DefaultMaxIterations
}

// Phase returns the phase with the given id, or false if none exists.
func (d *Definition) Phase(id string) (*Phase, bool) {
	for i := range d.Phases {
		if d.Phases[i].ID == id {
			return &d.Phases[i], true
		}
	}
	return nil, false
}

// NextPhase resolves the phase entered after phaseID completes.
// It is a pure lookup: a gated phase yields the gate's target, a
// per_plan_phase phase yields its on_complete transition, and anything
// else yields the next phase in declaration order. The terminal phase
// yields the empty string.
func (d *Definition) NextPhase(phaseID string) string {
	for i := range d.Phases {
		p := &d.Phases[i]
		if p.ID != phaseID {
			continue
		}
		if p.Gate != nil {
			return p.Gate.Next
		}
		if p.Type == TypePerPlanPhase && p.Transition != nil {
			return p.Transition.OnComplete
		}
		if i+1 < len(d.Phases) {
			return d.Phases[i+1].ID
		}
		return ""
	}
	return ""
}

// CheckNames returns the phase's check names in sorted order, so check
// execution and reporting are deterministic.
func (p *Phase) CheckNames() []string {
	names := make([]string, 0, len(p.Checks))
	for name := range p.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// validate enforces the structural invariants of a definition:
// required fields, known phase types, unique phase ids, resolvable
// gate/transition targets, and at most one per_plan_phase phase.
func (d *Definition) validate() error {
	if d.Name == "" {
		return &SchemaError{Field: "name", Reason: "missing"}
	}
	if len(d.Phases) == 0 {
		return &SchemaError{Field: "phases", Reason: "missing or empty"}
	}

	seen := map[string]bool{}
	perPlan := 0
	for i := range d.Phases {
		p := &d.Phases[i]
		if p.ID == "" {
			return &SchemaError{Field: "phases", Reason: fmt.Sprintf("phase %d has no id", i)}
		}
		if seen[p.ID] {
			return &SchemaError{Field: "phases", Reason: fmt.Sprintf("duplicate phase id %q", p.ID)}
		}
		seen[p.ID] = true
		if err := ValidateType(p.Type); err != nil {
			return &SchemaError{Field: "phases", Reason: fmt.Sprintf("phase %q: %v", p.ID, err)}
		}
		if p.Type == TypePerPlanPhase {
			perPlan++
		}
	}
	if perPlan > 1 {
		return &SchemaError{Field: "phases", Reason: "more than one per_plan_phase phase"}
	}

	for i := range d.Phases {
		p := &d.Phases[i]
		if p.Gate != nil {
			if p.Gate.Name == "" {
				return &SchemaError{Field: "phases", Reason: fmt.Sprintf("phase %q: gate has no name", p.ID)}
			}
			if !seen[p.Gate.Next] {
				return &SchemaError{Field: "phases", Reason: fmt.Sprintf("phase %q: gate target %q does not exist", p.ID, p.Gate.Next)}
			}
		}
		if p.Transition != nil && !seen[p.Transition.OnComplete] {
			return &SchemaError{Field: "phases", Reason: fmt.Sprintf("phase %q: transition target %q does not exist", p.ID, p.Transition.OnComplete)}
		}
	}
	return nil
}

// normalize merges defaults.checks into every phase. Phase-specific
// checks win on name collision. The merged map is a fresh copy; the
// defaults map is never aliased into a phase.
func (d *Definition) normalize() {
	if len(d.Defaults.Checks) == 0 {
		return
	}
	for i := range d.Phases {
		merged := make(map[string]string, len(d.Defaults.Checks)+len(d.Phases[i].Checks))
		for name, cmd := range d.Defaults.Checks {
			merged[name] = cmd
		}
		for name, cmd := range d.Phases[i].Checks {
			merged[name] = cmd
		}
		d.Phases[i].Checks = merged
	}
}
