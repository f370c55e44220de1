package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/oxbowlake/drover/internal/checks"
	"github.com/oxbowlake/drover/internal/consult"
	"github.com/oxbowlake/drover/internal/engine"
	"github.com/oxbowlake/drover/internal/journal"
	"github.com/oxbowlake/drover/internal/state"
)

// StatusReport is the read-only view of a project returned by Status.
type StatusReport struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Protocol    string `json:"protocol"`
	Phase       string `json:"phase"`
	PhaseName   string `json:"phase_name"`
	PlanPhase   string `json:"plan_phase,omitempty"`
	PlanTitle   string `json:"plan_title,omitempty"`
	Stage       string `json:"stage,omitempty"`
	PendingGate string `json:"pending_gate,omitempty"`
	Iteration   int    `json:"iteration"`
	Blocked     bool   `json:"blocked"`
	Done        bool   `json:"done"`
	PlanDone    int    `json:"plan_done,omitempty"`
	PlanTotal   int    `json:"plan_total,omitempty"`
	UpdatedAt   string `json:"updated_at"`
}

// Status reports where a project stands without mutating it. An unknown
// id is created fresh on the default protocol, so the first status call
// is also the project's birth.
func (o *Orchestrator) Status(id string) (*StatusReport, error) {
	path := state.ProjectPath(o.root, id)
	if !o.store.Exists(path) {
		if _, err := o.Init(id, "", ""); err != nil {
			return nil, err
		}
	}

	st, def, err := o.load(id)
	if err != nil {
		return nil, err
	}

	rep := &StatusReport{
		ID:          st.ID,
		Title:       st.Title,
		Protocol:    st.Protocol,
		Phase:       st.Phase,
		PendingGate: st.PendingGate(),
		Iteration:   st.Iteration,
		Blocked:     st.Blocked,
		Done:        st.Done,
		UpdatedAt:   st.UpdatedAt,
	}
	if ph, ok := def.Phase(st.Phase); ok {
		rep.PhaseName = ph.Name
	}
	if cur := st.CurrentPlan(); cur != nil {
		rep.PlanPhase = cur.ID
		rep.PlanTitle = cur.Title
		if stage, ok := cur.Current(); ok {
			rep.Stage = string(stage)
		}
	}
	if n := len(st.PlanPhases); n > 0 {
		rep.PlanTotal = n
		for i := range st.PlanPhases {
			if st.PlanPhases[i].Complete() {
				rep.PlanDone++
			}
		}
	}
	return rep, nil
}

// Check runs the current phase's configured checks and reports the
// result. State is never mutated; check is diagnostic only.
func (o *Orchestrator) Check(ctx context.Context, id string) (checks.Report, error) {
	st, def, err := o.load(id)
	if err != nil {
		return checks.Report{}, err
	}
	ph, ok := def.Phase(st.Phase)
	if !ok {
		return checks.Report{}, fmt.Errorf("project %s: phase %q not in protocol %q", id, st.Phase, def.Name)
	}
	return checks.RunChecks(ctx, o.checker, ph.Checks, o.root), nil
}

// Done is the work verb. It gathers evidence for the current stage
// (checks, then a consultation round if reviewers are configured),
// feeds the advancement engine, and persists the resulting state.
//
// Blocked, completed, and gate-held projects short-circuit without
// running checks, so repeated done() calls while waiting are harmless.
func (o *Orchestrator) Done(ctx context.Context, id string) (engine.Result, error) {
	st, def, err := o.load(id)
	if err != nil {
		return engine.Result{}, err
	}

	if st.Blocked || st.Done || st.PendingGate() != "" {
		return engine.Advance(def, st, engine.Outcome{}, o.seeder())
	}

	ph, ok := def.Phase(st.Phase)
	if !ok {
		return engine.Result{}, fmt.Errorf("project %s: phase %q not in protocol %q", id, st.Phase, def.Name)
	}

	report := checks.RunChecks(ctx, o.checker, ph.Checks, o.root)
	out := engine.Outcome{
		ChecksPassed: report.AllPassed,
		FailedChecks: report.FailedNames(),
	}
	if !report.AllPassed {
		o.record(id, "checks", "failed: "+strings.Join(report.FailedNames(), ", "))
	}

	if report.AllPassed && o.coordinator != nil {
		out.Verdicts = o.coordinator.Run(ctx, reviewPrompt(st, def.Name), reviewRole(st))
		o.record(id, "consult", consult.Summarize(out.Verdicts))
	}

	res, err := engine.Advance(def, st, out, o.seeder())
	if err != nil {
		return engine.Result{}, err
	}
	if err := o.save(st, res.Detail); err != nil {
		return engine.Result{}, err
	}
	o.record(id, string(res.Status), res.Detail)
	return res, nil
}

// Gate surfaces the project's pending gate, or "" when none holds it.
func (o *Orchestrator) Gate(id string) (string, error) {
	st, _, err := o.load(id)
	if err != nil {
		return "", err
	}
	return st.PendingGate(), nil
}

// Approve records approval of a pending gate and advances into the
// gate's target phase.
func (o *Orchestrator) Approve(id, gateName, approver string) (engine.Result, error) {
	st, def, err := o.load(id)
	if err != nil {
		return engine.Result{}, err
	}

	res, err := engine.ApproveGate(def, st, gateName, approver, o.seeder())
	if err != nil {
		return engine.Result{}, err
	}
	event := fmt.Sprintf("gate %q approved by %s", gateName, approver)
	if err := o.save(st, event); err != nil {
		return engine.Result{}, err
	}
	o.record(id, "gate", event)
	return res, nil
}

// PendingGateInfo is one entry of the cross-project pending-gate list.
type PendingGateInfo struct {
	ProjectID string `json:"project_id"`
	Title     string `json:"title"`
	Phase     string `json:"phase"`
	Gate      string `json:"gate"`
}

// Pending lists every gate awaiting approval across all projects under
// the workspace root.
func (o *Orchestrator) Pending() ([]PendingGateInfo, error) {
	projects, err := o.store.List(o.root)
	if err != nil {
		return nil, err
	}
	var pending []PendingGateInfo
	for _, p := range projects {
		if gate := p.PendingGate(); gate != "" {
			pending = append(pending, PendingGateInfo{
				ProjectID: p.ID,
				Title:     p.Title,
				Phase:     p.Phase,
				Gate:      gate,
			})
		}
	}
	return pending, nil
}

// Projects lists every project state under the workspace root.
func (o *Orchestrator) Projects() ([]state.Project, error) {
	return o.store.List(o.root)
}

// Log returns the most recent journal entries, newest first. An empty
// id tails across all projects.
func (o *Orchestrator) Log(id string, limit int) ([]journal.Entry, error) {
	return o.journal.Tail(id, limit)
}

// reviewRole names the reviewer's role for the current stage: the plan
// stage inside per_plan_phase phases, otherwise the protocol phase id.
func reviewRole(st *state.Project) string {
	if cur := st.CurrentPlan(); cur != nil {
		if stage, ok := cur.Current(); ok {
			return string(stage)
		}
	}
	return st.Phase
}

// reviewPrompt renders the consultation prompt, including the reply
// trailer the verdict parser expects.
func reviewPrompt(st *state.Project, protocolName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Review the work just completed for project %q (%s).\n", st.Title, st.ID)
	fmt.Fprintf(&b, "Protocol: %s, phase: %s", protocolName, st.Phase)
	if cur := st.CurrentPlan(); cur != nil {
		fmt.Fprintf(&b, ", plan phase: %s (%s)", cur.ID, cur.Title)
		if stage, ok := cur.Current(); ok {
			fmt.Fprintf(&b, ", stage: %s", stage)
		}
	}
	b.WriteString("\n\nEnd your reply with exactly this trailer:\n\n")
	b.WriteString("VERDICT: <APPROVE|REQUEST_CHANGES|COMMENT>\n")
	b.WriteString("SUMMARY: <one line>\n")
	b.WriteString("CONFIDENCE: <HIGH|MEDIUM|LOW>\n")
	b.WriteString("ISSUES:\n- <issue per line, or omit the section>\n")
	return b.String()
}
