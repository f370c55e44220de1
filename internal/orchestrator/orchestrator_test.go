package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oxbowlake/drover/internal/checks"
	"github.com/oxbowlake/drover/internal/consult"
	"github.com/oxbowlake/drover/internal/engine"
	"github.com/oxbowlake/drover/internal/state"
)

// --- Test helpers ---

// passChecker reports success for every command.
type passChecker struct{}

func (passChecker) Run(ctx context.Context, command, cwd string) checks.Result {
	return checks.Result{ExitCode: 0}
}

// failChecker reports failure for every command.
type failChecker struct{}

func (failChecker) Run(ctx context.Context, command, cwd string) checks.Result {
	return checks.Result{ExitCode: 1, Stderr: "test failure"}
}

// cannedReviewer returns the same reply for every prompt.
type cannedReviewer struct {
	name  string
	reply string
}

func (r cannedReviewer) Name() string { return r.name }
func (r cannedReviewer) Invoke(ctx context.Context, prompt, role string) (string, error) {
	return r.reply, nil
}

// newTestOrchestrator builds an orchestrator in a temp root with a
// fixed protocol and an always-passing checker.
func newTestOrchestrator(t *testing.T, opts ...Option) (*Orchestrator, string) {
	t.Helper()
	root := t.TempDir()
	writeTestProtocol(t, root)

	all := append([]Option{WithChecker(passChecker{})}, opts...)
	return New(root, all...), root
}

// writeTestProtocol installs the two-gate protocol as a local override
// named "ide" so it shadows the bundled definition.
func writeTestProtocol(t *testing.T, root string) {
	t.Helper()
	dir := filepath.Join(root, ".drover", "protocols")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	def := `{
		"name": "ide",
		"version": "1",
		"defaults": {"max_iterations": 3, "checks": {"test": "run-tests"}},
		"phases": [
			{"id": "specify", "name": "Specify", "type": "once", "gate": {"name": "spec_approval", "next": "plan"}},
			{"id": "plan", "name": "Plan", "type": "once", "gate": {"name": "plan_approval", "next": "implement"}},
			{"id": "implement", "name": "Implement", "type": "per_plan_phase", "transition": {"on_complete": "review"}},
			{"id": "review", "name": "Review", "type": "once"}
		]
	}`
	if err := os.WriteFile(filepath.Join(dir, "ide.json"), []byte(def), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
}

// writePlanFile drops a two-phase plan for the project.
func writePlanFile(t *testing.T, root, projectID string) {
	t.Helper()
	dir := filepath.Join(root, ".drover", "plans")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	doc := "```json\n" +
		`{"phases": [{"id": "phase_1", "title": "Data model"}, {"id": "phase_2", "title": "API"}]}` +
		"\n```\n"
	if err := os.WriteFile(filepath.Join(dir, projectID+".md"), []byte(doc), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
}

// driveThroughGate calls Done (expecting a gate) then Approve.
func driveThroughGate(t *testing.T, o *Orchestrator, id, gate string) {
	t.Helper()
	res, err := o.Done(context.Background(), id)
	if err != nil {
		t.Fatalf("Done before %s: %v", gate, err)
	}
	if res.Status != engine.StatusGatePending || res.Gate != gate {
		t.Fatalf("expected gate %s, got %+v", gate, res)
	}
	if _, err := o.Approve(id, gate, "alice"); err != nil {
		t.Fatalf("Approve(%s): %v", gate, err)
	}
}

// --- Init and Status ---

func TestInit_CreatesProjectAtFirstPhase(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	st, err := o.Init("p1", "My project", "")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if st.Phase != "specify" || st.Protocol != "ide" {
		t.Errorf("st = %+v, want specify/ide", st)
	}

	if _, err := o.Init("p1", "", ""); err == nil {
		t.Error("re-init of an existing project should fail")
	}
}

func TestStatus_AutoCreatesUnknownProject(t *testing.T) {
	o, root := newTestOrchestrator(t)

	rep, err := o.Status("fresh")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if rep.Phase != "specify" || rep.Title != "fresh" {
		t.Errorf("rep = %+v, want auto-created at specify", rep)
	}
	if !state.NewFileStore().Exists(state.ProjectPath(root, "fresh")) {
		t.Error("status should have persisted the new project")
	}
}

func TestStatus_DoesNotMutateExisting(t *testing.T) {
	o, root := newTestOrchestrator(t)
	if _, err := o.Init("p1", "", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}

	before, err := os.ReadFile(state.ProjectPath(root, "p1"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, err := o.Status("p1"); err != nil {
		t.Fatalf("Status: %v", err)
	}
	after, err := os.ReadFile(state.ProjectPath(root, "p1"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(before) != string(after) {
		t.Error("status should not rewrite existing state")
	}
}

// --- Check ---

func TestCheck_ReportsWithoutMutation(t *testing.T) {
	o, root := newTestOrchestrator(t, WithChecker(failChecker{}))
	if _, err := o.Init("p1", "", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}

	report, err := o.Check(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if report.AllPassed {
		t.Error("failing checker should fail the report")
	}

	st, err := state.NewFileStore().Read(state.ProjectPath(root, "p1"))
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	if st.Iteration != 0 {
		t.Errorf("check must not spend iterations, got %d", st.Iteration)
	}
}

func TestCheck_UnknownProject(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	_, err := o.Check(context.Background(), "ghost")
	if !errors.Is(err, state.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// --- Done: full drive ---

func TestDone_FullProtocolRun(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	writePlanFile(t, o.Root(), "p1")
	if _, err := o.Init("p1", "Full run", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}

	driveThroughGate(t, o, "p1", "spec_approval")
	driveThroughGate(t, o, "p1", "plan_approval")

	// Two plan phases x three stages.
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		res, err := o.Done(ctx, "p1")
		if err != nil {
			t.Fatalf("implement done %d: %v", i+1, err)
		}
		if res.Status != engine.StatusAdvanced {
			t.Fatalf("implement done %d: %+v", i+1, res)
		}
	}

	res, err := o.Done(ctx, "p1")
	if err != nil {
		t.Fatalf("review done: %v", err)
	}
	if res.Status != engine.StatusCompleted {
		t.Fatalf("review done = %+v, want completed", res)
	}

	rep, err := o.Status("p1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !rep.Done || rep.PlanDone != 2 || rep.PlanTotal != 2 {
		t.Errorf("final status = %+v, want done with 2/2 plan phases", rep)
	}
}

func TestDone_PersistsAcrossOrchestrators(t *testing.T) {
	o, root := newTestOrchestrator(t)
	if _, err := o.Init("p1", "", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := o.Done(context.Background(), "p1"); err != nil {
		t.Fatalf("Done: %v", err)
	}

	// A fresh orchestrator over the same root resumes where the first
	// one stopped.
	o2 := New(root, WithChecker(passChecker{}))
	rep, err := o2.Status("p1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if rep.PendingGate != "spec_approval" {
		t.Errorf("restart lost the pending gate, got %+v", rep)
	}
}

func TestDone_FailingChecksRetryThenBlock(t *testing.T) {
	o, _ := newTestOrchestrator(t, WithChecker(failChecker{}))
	if _, err := o.Init("p1", "", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}

	ctx := context.Background()
	for i := 1; i < 3; i++ {
		res, err := o.Done(ctx, "p1")
		if err != nil {
			t.Fatalf("Done %d: %v", i, err)
		}
		if res.Status != engine.StatusRetry || res.Iteration != i {
			t.Fatalf("Done %d = %+v, want retry at iteration %d", i, res, i)
		}
	}

	res, err := o.Done(ctx, "p1")
	if err != nil {
		t.Fatalf("Done: %v", err)
	}
	if res.Status != engine.StatusBlocked {
		t.Fatalf("third failure = %+v, want blocked (max_iterations=3)", res)
	}

	rep, err := o.Status("p1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !rep.Blocked {
		t.Error("status should report blocked")
	}
}

func TestDone_ReviewerRequestChangesForcesRetry(t *testing.T) {
	reviewers := []consult.Reviewer{
		cannedReviewer{name: "strict", reply: "VERDICT: REQUEST_CHANGES\nSUMMARY: not enough tests\nCONFIDENCE: HIGH\n"},
	}
	o, _ := newTestOrchestrator(t,
		WithCoordinator(consult.NewCoordinator(reviewers, time.Second)))
	if _, err := o.Init("p1", "", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}

	res, err := o.Done(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Done: %v", err)
	}
	if res.Status != engine.StatusRetry {
		t.Errorf("res = %+v, want retry on REQUEST_CHANGES", res)
	}
}

func TestDone_ApprovingReviewersAdvance(t *testing.T) {
	reviewers := []consult.Reviewer{
		cannedReviewer{name: "kind", reply: "VERDICT: APPROVE\nSUMMARY: ship it\nCONFIDENCE: HIGH\n"},
	}
	o, _ := newTestOrchestrator(t,
		WithCoordinator(consult.NewCoordinator(reviewers, time.Second)))
	if _, err := o.Init("p1", "", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}

	res, err := o.Done(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Done: %v", err)
	}
	if res.Status != engine.StatusGatePending {
		t.Errorf("res = %+v, want gate after approval", res)
	}
}

// --- Gate / Approve / Pending ---

func TestGateAndPending(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	if _, err := o.Init("p1", "First", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := o.Init("p2", "Second", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := o.Done(context.Background(), "p1"); err != nil {
		t.Fatalf("Done: %v", err)
	}

	gate, err := o.Gate("p1")
	if err != nil {
		t.Fatalf("Gate: %v", err)
	}
	if gate != "spec_approval" {
		t.Errorf("Gate = %q, want spec_approval", gate)
	}

	pending, err := o.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ProjectID != "p1" || pending[0].Gate != "spec_approval" {
		t.Errorf("Pending = %+v, want only p1's gate", pending)
	}
}

func TestApprove_ErrorsClassified(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	if _, err := o.Init("p1", "", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}

	_, err := o.Approve("p1", "spec_approval", "alice")
	if !errors.Is(err, engine.ErrGateNotPending) {
		t.Errorf("approve before gate raised: err = %v, want ErrGateNotPending", err)
	}

	_, err = o.Approve("p1", "bogus", "alice")
	if !errors.Is(err, engine.ErrUnknownGate) {
		t.Errorf("unknown gate: err = %v, want ErrUnknownGate", err)
	}

	_, err = o.Approve("ghost", "spec_approval", "alice")
	if !errors.Is(err, state.ErrNotFound) {
		t.Errorf("unknown project: err = %v, want ErrNotFound", err)
	}
}

func TestApprove_SeedsPlanFromPlanFile(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	writePlanFile(t, o.Root(), "p1")
	if _, err := o.Init("p1", "", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	driveThroughGate(t, o, "p1", "spec_approval")
	driveThroughGate(t, o, "p1", "plan_approval")

	rep, err := o.Status("p1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if rep.Phase != "implement" || rep.PlanPhase != "phase_1" || rep.Stage != "implement" {
		t.Errorf("rep = %+v, want implement/phase_1/implement", rep)
	}
	if rep.PlanTotal != 2 {
		t.Errorf("PlanTotal = %d, want 2 from plan file", rep.PlanTotal)
	}
	if rep.PlanTitle != "Data model" {
		t.Errorf("PlanTitle = %q, want from plan file", rep.PlanTitle)
	}
}

func TestApprove_MissingPlanFileDegradesToSynthetic(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	if _, err := o.Init("p1", "", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	driveThroughGate(t, o, "p1", "spec_approval")
	driveThroughGate(t, o, "p1", "plan_approval")

	rep, err := o.Status("p1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if rep.PlanTotal != 1 || rep.PlanPhase != "phase_1" {
		t.Errorf("rep = %+v, want single synthetic phase", rep)
	}
}

// --- History ---

func TestDone_AppendsHistory(t *testing.T) {
	o, root := newTestOrchestrator(t)
	if _, err := o.Init("p1", "", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := o.Done(context.Background(), "p1"); err != nil {
		t.Fatalf("Done: %v", err)
	}

	st, err := state.NewFileStore().Read(state.ProjectPath(root, "p1"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	// One entry from creation, one from the done call.
	if len(st.History) < 2 {
		t.Errorf("History = %+v, want creation and transition entries", st.History)
	}
}
