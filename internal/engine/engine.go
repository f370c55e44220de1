// Package engine implements the advancement rules that move a project
// through its protocol.
//
// The engine is pure state manipulation: it receives a protocol
// definition, the current project record, and the evidence gathered for
// the work just finished, and mutates the record in memory. It performs
// no IO of its own; persistence, check execution, and consultation all
// happen in the orchestrator before and after the engine runs.
package engine

import (
	"fmt"

	"github.com/oxbowlake/drover/internal/consult"
	"github.com/oxbowlake/drover/internal/plan"
	"github.com/oxbowlake/drover/internal/protocol"
	"github.com/oxbowlake/drover/internal/state"
)

// --- Step status enum ---

// Status classifies the result of one advancement attempt.
type Status string

const (
	// StatusAdvanced means the project moved to a new stage or phase.
	StatusAdvanced Status = "advanced"
	// StatusRetry means the evidence did not pass and the same stage
	// must be attempted again.
	StatusRetry Status = "retry"
	// StatusBlocked means the retry budget is exhausted. Terminal until
	// a human intervenes.
	StatusBlocked Status = "blocked"
	// StatusGatePending means a human approval gate now holds progress.
	StatusGatePending Status = "gate_pending"
	// StatusCompleted means the protocol's last phase finished.
	StatusCompleted Status = "completed"
)

// Outcome is the evidence gathered for a finished unit of work: the
// check report and the reviewer verdicts for the current stage.
type Outcome struct {
	ChecksPassed bool
	FailedChecks []string
	Verdicts     []consult.Verdict
}

// Passed reports whether the evidence permits advancement: all checks
// green and no reviewer requesting changes.
func (o Outcome) Passed() bool {
	return o.ChecksPassed && consult.Decide(o.Verdicts)
}

// Result describes where an advancement attempt left the project.
type Result struct {
	Status    Status `json:"status"`
	Phase     string `json:"phase"`
	PlanPhase string `json:"plan_phase,omitempty"`
	Stage     string `json:"stage,omitempty"`
	Gate      string `json:"gate,omitempty"`
	Iteration int    `json:"iteration"`
	Detail    string `json:"detail,omitempty"`
}

// PlanSeeder supplies the plan phase list when a project first enters a
// per_plan_phase protocol phase. The orchestrator backs this with the
// plan file extractor; tests inject fixed lists.
type PlanSeeder func(st *state.Project) ([]plan.Phase, error)

// Advance applies one completed unit of work to the project record.
//
// The record is mutated in place; the caller persists it afterwards.
// Blocked and done projects are reported as-is without mutation, and a
// pending gate short-circuits to gate_pending so repeated done() calls
// while waiting for approval are harmless.
func Advance(def *protocol.Definition, st *state.Project, out Outcome, seed PlanSeeder) (Result, error) {
	if st.Blocked {
		return Result{Status: StatusBlocked, Phase: st.Phase, PlanPhase: st.CurrentPlanPhase, Iteration: st.Iteration,
			Detail: "project is blocked; human intervention required"}, nil
	}
	if st.Done {
		return Result{Status: StatusCompleted, Phase: st.Phase, Detail: "protocol already completed"}, nil
	}
	if gate := st.PendingGate(); gate != "" {
		return Result{Status: StatusGatePending, Phase: st.Phase, Gate: gate, Iteration: st.Iteration,
			Detail: fmt.Sprintf("gate %q awaits approval", gate)}, nil
	}

	ph, ok := def.Phase(st.Phase)
	if !ok {
		return Result{}, fmt.Errorf("project %s: phase %q not in protocol %q", st.ID, st.Phase, def.Name)
	}

	if !out.Passed() {
		return retry(def, st, ph, out), nil
	}

	st.Iteration = 0
	if ph.Type == protocol.TypePerPlanPhase {
		return advancePlanStage(def, st, ph, seed)
	}
	return advancePhase(def, st, ph, seed)
}

// retry spends one iteration of the retry budget, blocking the project
// when the budget runs out.
func retry(def *protocol.Definition, st *state.Project, ph *protocol.Phase, out Outcome) Result {
	st.Iteration++
	detail := failureDetail(out)

	if st.Iteration >= def.MaxIterations() {
		st.Blocked = true
		if cur := st.CurrentPlan(); cur != nil {
			if stage, ok := cur.Current(); ok {
				cur.Stages.Set(stage, plan.StatusBlocked)
			}
		}
		return Result{Status: StatusBlocked, Phase: st.Phase, PlanPhase: st.CurrentPlanPhase,
			Stage: currentStageName(st), Iteration: st.Iteration,
			Detail: fmt.Sprintf("retry budget exhausted after %d attempts: %s", st.Iteration, detail)}
	}
	return Result{Status: StatusRetry, Phase: st.Phase, PlanPhase: st.CurrentPlanPhase,
		Stage: currentStageName(st), Iteration: st.Iteration, Detail: detail}
}

// advancePhase moves past a completed once phase: either park behind
// the phase's gate or enter the next phase directly.
func advancePhase(def *protocol.Definition, st *state.Project, ph *protocol.Phase, seed PlanSeeder) (Result, error) {
	if ph.Gate != nil {
		rec, seen := st.Gates[ph.Gate.Name]
		if !seen || rec.Status != state.GateApproved {
			st.Gates[ph.Gate.Name] = state.GateRecord{Status: state.GatePending}
			return Result{Status: StatusGatePending, Phase: st.Phase, Gate: ph.Gate.Name,
				Detail: fmt.Sprintf("gate %q awaits approval", ph.Gate.Name)}, nil
		}
		// Approved gates are one-time: re-traversal passes through.
	}
	return enterPhase(def, st, def.NextPhase(ph.ID), seed)
}

// advancePlanStage moves the current plan phase one stage forward,
// rolling to the next plan phase or out of the protocol phase when the
// cycle finishes.
func advancePlanStage(def *protocol.Definition, st *state.Project, ph *protocol.Phase, seed PlanSeeder) (Result, error) {
	cur := st.CurrentPlan()
	if cur == nil {
		return Result{}, fmt.Errorf("project %s: no current plan phase in phase %q", st.ID, st.Phase)
	}
	stage, ok := cur.Current()
	if !ok {
		return Result{}, fmt.Errorf("project %s: plan phase %q already complete", st.ID, cur.ID)
	}

	cur.Stages.Set(stage, plan.StatusComplete)
	if next, more := plan.NextStage(stage); more {
		cur.Stages.Set(next, plan.StatusInProgress)
		return Result{Status: StatusAdvanced, Phase: st.Phase, PlanPhase: cur.ID,
			Stage: string(next), Detail: fmt.Sprintf("plan phase %q entered stage %s", cur.ID, next)}, nil
	}

	// Cycle done for this plan phase; open the next one if any.
	idx := st.PlanPhaseIndex(cur.ID)
	if idx >= 0 && idx+1 < len(st.PlanPhases) {
		next := &st.PlanPhases[idx+1]
		next.Stages.Set(plan.StageImplement, plan.StatusInProgress)
		st.CurrentPlanPhase = next.ID
		return Result{Status: StatusAdvanced, Phase: st.Phase, PlanPhase: next.ID,
			Stage: string(plan.StageImplement), Detail: fmt.Sprintf("plan phase %q complete, entered %q", cur.ID, next.ID)}, nil
	}

	st.BuildComplete = true
	st.CurrentPlanPhase = ""
	return enterPhase(def, st, def.NextPhase(ph.ID), seed)
}

// enterPhase positions the project at targetID, seeding plan phases if
// the target iterates per plan phase. An empty target completes the
// protocol.
func enterPhase(def *protocol.Definition, st *state.Project, targetID string, seed PlanSeeder) (Result, error) {
	if targetID == "" {
		st.Done = true
		return Result{Status: StatusCompleted, Phase: st.Phase, Detail: "protocol completed"}, nil
	}

	target, ok := def.Phase(targetID)
	if !ok {
		return Result{}, fmt.Errorf("project %s: transition target %q not in protocol %q", st.ID, targetID, def.Name)
	}

	st.Phase = target.ID
	st.Iteration = 0
	res := Result{Status: StatusAdvanced, Phase: target.ID, Detail: fmt.Sprintf("entered phase %q", target.ID)}

	if target.Type == protocol.TypePerPlanPhase {
		if err := seedPlan(st, seed); err != nil {
			return Result{}, err
		}
		res.PlanPhase = st.CurrentPlanPhase
		res.Stage = currentStageName(st)
	}
	return res, nil
}

// seedPlan installs plan phases on first entry into a per_plan_phase
// phase. A nil seeder or an empty extraction degrades to the synthetic
// single phase.
func seedPlan(st *state.Project, seed PlanSeeder) error {
	if len(st.PlanPhases) > 0 {
		if st.CurrentPlanPhase == "" {
			// Re-entry keeps the seeded list and resumes at the first
			// unfinished plan phase, if any remain.
			for i := range st.PlanPhases {
				if !st.PlanPhases[i].Complete() {
					st.CurrentPlanPhase = st.PlanPhases[i].ID
					break
				}
			}
		}
		return nil
	}
	var phases []plan.Phase
	if seed != nil {
		var err error
		phases, err = seed(st)
		if err != nil {
			return fmt.Errorf("seeding plan phases: %w", err)
		}
	}
	st.SeedPlanPhases(phases)
	return nil
}

// failureDetail summarizes why the evidence did not pass.
func failureDetail(out Outcome) string {
	if !out.ChecksPassed {
		return fmt.Sprintf("checks failed: %v", out.FailedChecks)
	}
	for _, v := range out.Verdicts {
		if v.Decision == consult.RequestChanges {
			return fmt.Sprintf("%s requested changes: %s", v.Model, v.Summary)
		}
	}
	return "evidence did not pass"
}

// currentStageName is the active stage of the current plan phase, or "".
func currentStageName(st *state.Project) string {
	if cur := st.CurrentPlan(); cur != nil {
		if stage, ok := cur.Current(); ok {
			return string(stage)
		}
	}
	return ""
}
