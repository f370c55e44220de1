package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oxbowlake/drover/internal/plan"
)

func init() {
	// Freeze time for deterministic tests.
	timeNow = func() time.Time {
		return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	}
}

const frozenStamp = "2026-08-31T12:00:00Z"

// --- Test helpers ---

func testProject() *Project {
	return NewProject("p1", "Test project", "ide", "specify")
}

// --- NewProject ---

func TestNewProject(t *testing.T) {
	p := testProject()
	if p.Phase != "specify" {
		t.Errorf("Phase = %q, want %q", p.Phase, "specify")
	}
	if p.StartedAt != frozenStamp || p.UpdatedAt != frozenStamp {
		t.Errorf("timestamps = %q/%q, want frozen %q", p.StartedAt, p.UpdatedAt, frozenStamp)
	}
	if p.Gates == nil {
		t.Error("Gates map should be initialized")
	}
	if p.Iteration != 0 || p.Blocked || p.Done {
		t.Error("fresh project should start unblocked at iteration 0")
	}
}

// --- Read/Write roundtrip ---

func TestFileStore_WriteReadRoundtrip(t *testing.T) {
	root := t.TempDir()
	fs := NewFileStore()
	path := ProjectPath(root, "p1")

	p := testProject()
	p.Gates["spec_approval"] = GateRecord{Status: GatePending}
	if err := fs.Write(path, p, "entered specify"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := fs.Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.ID != "p1" || got.Phase != "specify" {
		t.Errorf("roundtrip lost fields: %+v", got)
	}
	if got.Gates["spec_approval"].Status != GatePending {
		t.Errorf("gate record lost in roundtrip: %+v", got.Gates)
	}
	if len(got.History) != 1 || got.History[0].Event != "entered specify" {
		t.Errorf("History = %+v, want one 'entered specify' entry", got.History)
	}
	if got.History[0].At != frozenStamp {
		t.Errorf("history stamp = %q, want %q", got.History[0].At, frozenStamp)
	}
}

func TestFileStore_WriteEmptyEventSkipsHistory(t *testing.T) {
	root := t.TempDir()
	fs := NewFileStore()
	path := ProjectPath(root, "p1")

	if err := fs.Write(path, testProject(), ""); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := fs.Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got.History) != 0 {
		t.Errorf("History = %+v, want empty for empty event", got.History)
	}
}

func TestFileStore_WriteLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	fs := NewFileStore()
	path := ProjectPath(root, "p1")

	if err := fs.Write(path, testProject(), "created"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != StateFile {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("project dir should hold only %s, got %v", StateFile, names)
	}
}

// --- Error classification ---

func TestFileStore_ReadMissing(t *testing.T) {
	fs := NewFileStore()
	_, err := fs.Read(ProjectPath(t.TempDir(), "ghost"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFileStore_ReadCorrupt(t *testing.T) {
	root := t.TempDir()
	path := ProjectPath(root, "p1")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.WriteFile(path, []byte("{{{{not yaml"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	fs := NewFileStore()
	_, err := fs.Read(path)
	if !errors.Is(err, ErrStateCorrupt) {
		t.Errorf("err = %v, want ErrStateCorrupt", err)
	}
}

func TestFileStore_Exists(t *testing.T) {
	root := t.TempDir()
	fs := NewFileStore()
	path := ProjectPath(root, "p1")

	if fs.Exists(path) {
		t.Error("Exists should be false before write")
	}
	if err := fs.Write(path, testProject(), ""); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !fs.Exists(path) {
		t.Error("Exists should be true after write")
	}
}

// --- List ---

func TestFileStore_ListSkipsCorruptEntries(t *testing.T) {
	root := t.TempDir()
	fs := NewFileStore()

	good := testProject()
	if err := fs.Write(ProjectPath(root, "p1"), good, ""); err != nil {
		t.Fatalf("Write: %v", err)
	}

	badDir := filepath.Join(ProjectsPath(root), "broken")
	if err := os.MkdirAll(badDir, 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.WriteFile(filepath.Join(badDir, StateFile), []byte("{{{{"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	projects, err := fs.List(root)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(projects) != 1 || projects[0].ID != "p1" {
		t.Errorf("List = %+v, want only p1", projects)
	}
}

func TestFileStore_ListEmptyRoot(t *testing.T) {
	fs := NewFileStore()
	projects, err := fs.List(t.TempDir())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(projects) != 0 {
		t.Errorf("List on empty root = %+v, want none", projects)
	}
}

// --- Plan phase accessors ---

func TestProject_SeedPlanPhases(t *testing.T) {
	p := testProject()
	p.SeedPlanPhases([]plan.Phase{plan.NewPhase("phase_1", "A"), plan.NewPhase("phase_2", "B")})

	if p.CurrentPlanPhase != "phase_1" {
		t.Errorf("CurrentPlanPhase = %q, want phase_1", p.CurrentPlanPhase)
	}
	if p.PlanPhases[0].Stages.Implement != plan.StatusInProgress {
		t.Error("first implement stage should open in_progress")
	}

	// Seeding is one-time.
	p.SeedPlanPhases([]plan.Phase{plan.NewPhase("other", "X")})
	if len(p.PlanPhases) != 2 || p.PlanPhases[0].ID != "phase_1" {
		t.Errorf("re-seed should be a no-op, got %+v", p.PlanPhases)
	}
}

func TestProject_SeedPlanPhases_EmptyDegradesToSynthetic(t *testing.T) {
	p := testProject()
	p.SeedPlanPhases(nil)
	if len(p.PlanPhases) != 1 || p.PlanPhases[0].ID != "phase_1" {
		t.Errorf("empty seed should install the synthetic phase, got %+v", p.PlanPhases)
	}
}

func TestProject_PendingGate(t *testing.T) {
	p := testProject()
	if got := p.PendingGate(); got != "" {
		t.Errorf("PendingGate on fresh project = %q, want empty", got)
	}

	p.Gates["spec_approval"] = GateRecord{Status: GateApproved, ApprovedBy: "alice"}
	p.Gates["plan_approval"] = GateRecord{Status: GatePending}
	if got := p.PendingGate(); got != "plan_approval" {
		t.Errorf("PendingGate = %q, want plan_approval", got)
	}
}

func TestProject_CurrentPlan(t *testing.T) {
	p := testProject()
	if p.CurrentPlan() != nil {
		t.Error("CurrentPlan should be nil before seeding")
	}
	p.SeedPlanPhases([]plan.Phase{plan.NewPhase("phase_1", "A")})
	cur := p.CurrentPlan()
	if cur == nil || cur.ID != "phase_1" {
		t.Errorf("CurrentPlan = %+v, want phase_1", cur)
	}
}
