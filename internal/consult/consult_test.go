package consult

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// --- Test helpers ---

// fakeReviewer returns a canned reply or error, optionally after a delay.
type fakeReviewer struct {
	name  string
	reply string
	err   error
	delay time.Duration

	mu     sync.Mutex
	called bool
}

func (r *fakeReviewer) Name() string { return r.name }

func (r *fakeReviewer) Invoke(ctx context.Context, prompt, role string) (string, error) {
	r.mu.Lock()
	r.called = true
	r.mu.Unlock()
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return r.reply, r.err
}

func approvingReply(summary string) string {
	return "Looks good overall.\n\nVERDICT: APPROVE\nSUMMARY: " + summary + "\nCONFIDENCE: HIGH\n"
}

// --- Parse ---

func TestParse_FullTrailer(t *testing.T) {
	reply := `The change is mostly fine but has problems.

VERDICT: REQUEST_CHANGES
SUMMARY: Error handling is missing on the write path.
CONFIDENCE: HIGH
ISSUES:
- Write errors are swallowed
- No test for the failure case
`
	v := Parse("claude", reply)
	if v.Decision != RequestChanges {
		t.Errorf("Decision = %q, want REQUEST_CHANGES", v.Decision)
	}
	if v.Summary != "Error handling is missing on the write path." {
		t.Errorf("Summary = %q", v.Summary)
	}
	if v.Confidence != High {
		t.Errorf("Confidence = %q, want HIGH", v.Confidence)
	}
	if len(v.Issues) != 2 || v.Issues[0] != "Write errors are swallowed" {
		t.Errorf("Issues = %v", v.Issues)
	}
	if v.Model != "claude" {
		t.Errorf("Model = %q, want claude", v.Model)
	}
}

func TestParse_MissingTrailerDegrades(t *testing.T) {
	v := Parse("gpt", "I have thoughts but no structure.")
	if v.Decision != Comment {
		t.Errorf("Decision = %q, want COMMENT fallback", v.Decision)
	}
	if v.Confidence != Low {
		t.Errorf("Confidence = %q, want LOW fallback", v.Confidence)
	}
	if len(v.Issues) == 0 {
		t.Error("fallback verdict should carry an explanatory issue")
	}
}

func TestParse_InvalidDecisionDegrades(t *testing.T) {
	v := Parse("gpt", "VERDICT: MAYBE\nSUMMARY: unsure\n")
	if v.Decision != Comment || v.Confidence != Low {
		t.Errorf("invalid VERDICT should degrade, got %q/%q", v.Decision, v.Confidence)
	}
}

func TestParse_LowercaseAndMissingPieces(t *testing.T) {
	v := Parse("m", "VERDICT: approve\n")
	if v.Decision != Approve {
		t.Errorf("lowercase verdict should parse, got %q", v.Decision)
	}
	if v.Confidence != Medium {
		t.Errorf("missing CONFIDENCE should default to MEDIUM, got %q", v.Confidence)
	}
	if v.Summary != "(no summary)" {
		t.Errorf("missing SUMMARY should get placeholder, got %q", v.Summary)
	}
}

func TestParse_IssuesSectionEndsAtNonBullet(t *testing.T) {
	reply := "VERDICT: COMMENT\nSUMMARY: minor notes\nCONFIDENCE: MEDIUM\nISSUES:\n- one\nTrailing prose here.\n- not an issue anymore\n"
	v := Parse("m", reply)
	if len(v.Issues) != 1 || v.Issues[0] != "one" {
		t.Errorf("Issues = %v, want only the bullet before the prose", v.Issues)
	}
}

// --- Decide ---

func TestDecide_AnyRequestChangesForcesRetry(t *testing.T) {
	verdicts := []Verdict{
		{Model: "a", Decision: Approve},
		{Model: "b", Decision: RequestChanges},
		{Model: "c", Decision: Comment},
	}
	if Decide(verdicts) {
		t.Error("Decide should be false when any reviewer requests changes")
	}
}

func TestDecide_CommentsAndApprovalsAdvance(t *testing.T) {
	verdicts := []Verdict{
		{Model: "a", Decision: Approve},
		{Model: "b", Decision: Comment},
	}
	if !Decide(verdicts) {
		t.Error("Decide should be true without REQUEST_CHANGES")
	}
}

func TestDecide_EmptyRoundAdvances(t *testing.T) {
	if !Decide(nil) {
		t.Error("an empty round should advance vacuously")
	}
}

// --- Summarize ---

func TestSummarize(t *testing.T) {
	got := Summarize([]Verdict{
		{Model: "claude", Decision: Approve},
		{Model: "gpt", Decision: RequestChanges},
	})
	if got != "claude:APPROVE gpt:REQUEST_CHANGES" {
		t.Errorf("Summarize = %q", got)
	}
}

// --- Coordinator ---

func TestCoordinator_ResultsInRegistrationOrder(t *testing.T) {
	reviewers := []Reviewer{
		&fakeReviewer{name: "slow", reply: approvingReply("slow done"), delay: 30 * time.Millisecond},
		&fakeReviewer{name: "fast", reply: approvingReply("fast done")},
	}
	c := NewCoordinator(reviewers, time.Second)

	verdicts := c.Run(context.Background(), "prompt", "evaluate")
	if len(verdicts) != 2 {
		t.Fatalf("len(verdicts) = %d, want 2", len(verdicts))
	}
	if verdicts[0].Model != "slow" || verdicts[1].Model != "fast" {
		t.Errorf("verdict order = %s,%s, want registration order", verdicts[0].Model, verdicts[1].Model)
	}
}

func TestCoordinator_FailureDegradesWithoutAbortingOthers(t *testing.T) {
	reviewers := []Reviewer{
		&fakeReviewer{name: "broken", err: errors.New("connection refused")},
		&fakeReviewer{name: "healthy", reply: approvingReply("fine")},
	}
	c := NewCoordinator(reviewers, time.Second)

	verdicts := c.Run(context.Background(), "prompt", "defend")
	if verdicts[0].Decision != Comment || verdicts[0].Confidence != Low {
		t.Errorf("failed reviewer should yield COMMENT/LOW, got %q/%q", verdicts[0].Decision, verdicts[0].Confidence)
	}
	if !strings.Contains(strings.Join(verdicts[0].Issues, " "), "connection refused") {
		t.Errorf("failure reason should be recorded, got %v", verdicts[0].Issues)
	}
	if verdicts[1].Decision != Approve {
		t.Errorf("healthy reviewer should still approve, got %q", verdicts[1].Decision)
	}
}

func TestCoordinator_TimeoutDegradesToComment(t *testing.T) {
	reviewers := []Reviewer{
		&fakeReviewer{name: "stuck", reply: approvingReply("never seen"), delay: time.Second},
		&fakeReviewer{name: "quick", reply: approvingReply("done")},
	}
	c := NewCoordinator(reviewers, 20*time.Millisecond)

	verdicts := c.Run(context.Background(), "prompt", "evaluate")
	if verdicts[0].Decision != Comment || verdicts[0].Confidence != Low {
		t.Errorf("timed-out reviewer should yield COMMENT/LOW, got %q/%q", verdicts[0].Decision, verdicts[0].Confidence)
	}
	if verdicts[1].Decision != Approve {
		t.Errorf("quick reviewer should approve, got %q", verdicts[1].Decision)
	}
}

func TestCoordinator_EmptyReviewerSet(t *testing.T) {
	c := NewCoordinator(nil, 0)
	if got := c.Run(context.Background(), "prompt", "implement"); got != nil {
		t.Errorf("empty reviewer set should return nil, got %v", got)
	}
}

// --- CommandReviewer spec parsing ---

func TestNewCommandReviewer_NamedSpec(t *testing.T) {
	r, err := NewCommandReviewer("claude=claude-cli --model fast")
	if err != nil {
		t.Fatalf("NewCommandReviewer: %v", err)
	}
	if r.Name() != "claude" {
		t.Errorf("Name = %q, want claude", r.Name())
	}
}

func TestNewCommandReviewer_BareCommand(t *testing.T) {
	r, err := NewCommandReviewer("review-bot")
	if err != nil {
		t.Fatalf("NewCommandReviewer: %v", err)
	}
	if r.Name() != "review-bot" {
		t.Errorf("Name = %q, want review-bot", r.Name())
	}
}

func TestNewCommandReviewer_EmptyCommand(t *testing.T) {
	if _, err := NewCommandReviewer("bot="); err == nil {
		t.Error("empty command should be rejected")
	}
}
