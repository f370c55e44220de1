// Package state defines the durable project state record and its
// file-backed store.
//
// One project owns one state file. The record is mutated exclusively by
// the advancement engine through the orchestrator's write path; nothing
// else touches the file. Every write is atomic (write-temp-then-rename)
// so a crash mid-write never leaves a half-written record.
package state

import (
	"time"

	"github.com/oxbowlake/drover/internal/plan"
)

// --- Gate status enum ---

// GateStatus tracks a single gate instance.
type GateStatus string

const (
	GatePending  GateStatus = "pending"
	GateApproved GateStatus = "approved"
)

// GateRecord records a gate awaiting or having received approval.
type GateRecord struct {
	Status     GateStatus `yaml:"status" json:"status"`
	ApprovedBy string     `yaml:"approved_by,omitempty" json:"approved_by,omitempty"`
	ApprovedAt string     `yaml:"approved_at,omitempty" json:"approved_at,omitempty"`
}

// HistoryEntry is one line of the append-only transition log kept
// inside the state file.
type HistoryEntry struct {
	At    string `yaml:"at" json:"at"`
	Event string `yaml:"event" json:"event"`
}

// Project is the root state record, persisted as state.yaml per project.
type Project struct {
	ID               string                `yaml:"id" json:"id"`
	Title            string                `yaml:"title" json:"title"`
	Protocol         string                `yaml:"protocol" json:"protocol"`
	Phase            string                `yaml:"phase" json:"phase"`
	PlanPhases       []plan.Phase          `yaml:"plan_phases,omitempty" json:"plan_phases,omitempty"`
	CurrentPlanPhase string                `yaml:"current_plan_phase,omitempty" json:"current_plan_phase,omitempty"`
	Gates            map[string]GateRecord `yaml:"gates,omitempty" json:"gates,omitempty"`
	Iteration        int                   `yaml:"iteration" json:"iteration"`
	BuildComplete    bool                  `yaml:"build_complete" json:"build_complete"`
	Blocked          bool                  `yaml:"blocked,omitempty" json:"blocked,omitempty"`
	Done             bool                  `yaml:"done,omitempty" json:"done,omitempty"`
	History          []HistoryEntry        `yaml:"history,omitempty" json:"history,omitempty"`
	// Context is a free-form map external callers may populate (e.g.
	// answers to clarifying questions). This subsystem never interprets it.
	Context   map[string]string `yaml:"context,omitempty" json:"context,omitempty"`
	StartedAt string            `yaml:"started_at" json:"started_at"`
	UpdatedAt string            `yaml:"updated_at" json:"updated_at"`
}

// NewProject creates a fresh state record positioned at the protocol's
// first phase.
func NewProject(id, title, protocolName, firstPhase string) *Project {
	now := timeNow().UTC().Format(time.RFC3339)
	return &Project{
		ID:        id,
		Title:     title,
		Protocol:  protocolName,
		Phase:     firstPhase,
		Gates:     map[string]GateRecord{},
		StartedAt: now,
		UpdatedAt: now,
	}
}

// PlanPhase returns the plan phase with the given id, or nil.
func (p *Project) PlanPhase(id string) *plan.Phase {
	for i := range p.PlanPhases {
		if p.PlanPhases[i].ID == id {
			return &p.PlanPhases[i]
		}
	}
	return nil
}

// CurrentPlan returns the plan phase currently being worked, or nil
// when the project is not inside a per_plan_phase phase.
func (p *Project) CurrentPlan() *plan.Phase {
	if p.CurrentPlanPhase == "" {
		return nil
	}
	return p.PlanPhase(p.CurrentPlanPhase)
}

// PlanPhaseIndex returns the ordinal position of a plan phase, or -1.
func (p *Project) PlanPhaseIndex(id string) int {
	for i := range p.PlanPhases {
		if p.PlanPhases[i].ID == id {
			return i
		}
	}
	return -1
}

// PendingGate returns the name of the gate currently awaiting approval,
// or "" when none is pending.
func (p *Project) PendingGate() string {
	for name, rec := range p.Gates {
		if rec.Status == GatePending {
			return name
		}
	}
	return ""
}

// SeedPlanPhases installs the extracted plan phase list and opens the
// first phase's implement stage. Seeding happens exactly once, on first
// entry into a per_plan_phase protocol phase; it is a no-op if phases
// are already present.
func (p *Project) SeedPlanPhases(phases []plan.Phase) {
	if len(p.PlanPhases) > 0 {
		return
	}
	if len(phases) == 0 {
		phases = []plan.Phase{plan.SyntheticPhase()}
	}
	p.PlanPhases = phases
	p.CurrentPlanPhase = phases[0].ID
	p.PlanPhases[0].Stages.Set(plan.StageImplement, plan.StatusInProgress)
}
