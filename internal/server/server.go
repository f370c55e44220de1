// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates concrete implementations and
// injects them into the tools/prompts/resources that depend on them.
// No business logic lives here, only wiring.
package server

import (
	"log"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/oxbowlake/drover/internal/consult"
	"github.com/oxbowlake/drover/internal/journal"
	"github.com/oxbowlake/drover/internal/orchestrator"
	"github.com/oxbowlake/drover/internal/prompts"
	"github.com/oxbowlake/drover/internal/resources"
	"github.com/oxbowlake/drover/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config carries the server's wiring inputs.
type Config struct {
	// Root is the workspace directory holding .drover/.
	Root string
	// Reviewers are reviewer specs ("name=command arg...") for the
	// consultation coordinator. Empty means no consultation rounds.
	Reviewers []string
	// ConsultTimeout bounds one consultation round. Zero uses the default.
	ConsultTimeout time.Duration
}

// New creates and configures the MCP server with all tools, prompts,
// and resources registered. This is the single place where all
// dependencies are resolved.
//
// The returned cleanup function closes the journal and must be called
// on shutdown (typically via defer). It is always non-nil and safe to
// call even if journal init failed.
func New(cfg Config) (*server.MCPServer, func(), error) {
	// --- Create shared dependencies ---
	//
	// The journal is observational: if it fails to open, the verbs keep
	// working and events are simply dropped.

	cleanup := noop
	jnl, err := journal.Open(cfg.Root)
	if err != nil {
		log.Printf("WARNING: journal disabled: %v", err)
		jnl = nil
	} else {
		cleanup = func() {
			if err := jnl.Close(); err != nil {
				log.Printf("WARNING: journal close: %v", err)
			}
		}
	}

	opts := []orchestrator.Option{orchestrator.WithJournal(jnl)}
	if len(cfg.Reviewers) > 0 {
		reviewers, err := buildReviewers(cfg.Reviewers)
		if err != nil {
			cleanup()
			return nil, noop, err
		}
		opts = append(opts, orchestrator.WithCoordinator(
			consult.NewCoordinator(reviewers, cfg.ConsultTimeout)))
	}
	orch := orchestrator.New(cfg.Root, opts...)

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"drover",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register protocol tools ---

	statusTool := tools.NewStatusTool(orch)
	s.AddTool(statusTool.Definition(), statusTool.Handle)

	initTool := tools.NewInitTool(orch)
	s.AddTool(initTool.Definition(), initTool.Handle)

	checkTool := tools.NewCheckTool(orch)
	s.AddTool(checkTool.Definition(), checkTool.Handle)

	doneTool := tools.NewDoneTool(orch)
	s.AddTool(doneTool.Definition(), doneTool.Handle)

	gateTool := tools.NewGateTool(orch)
	s.AddTool(gateTool.Definition(), gateTool.Handle)

	approveTool := tools.NewApproveTool(orch)
	s.AddTool(approveTool.Definition(), approveTool.Handle)

	pendingTool := tools.NewPendingTool(orch)
	s.AddTool(pendingTool.Definition(), pendingTool.Handle)

	// --- Register prompts ---

	startPrompt := prompts.NewStartPrompt()
	s.AddPrompt(startPrompt.Definition(), startPrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(orch)
	s.AddResourceTemplate(resourceHandler.StatusTemplate(), resourceHandler.HandleStatus)

	return s, cleanup, nil
}

// buildReviewers parses reviewer specs into subprocess reviewers.
func buildReviewers(specs []string) ([]consult.Reviewer, error) {
	reviewers := make([]consult.Reviewer, 0, len(specs))
	for _, spec := range specs {
		r, err := consult.NewCommandReviewer(spec)
		if err != nil {
			return nil, err
		}
		reviewers = append(reviewers, r)
	}
	return reviewers, nil
}

// noop is a no-op cleanup function used as the default when the journal
// is disabled or hasn't been initialized.
func noop() {}

// serverInstructions returns the system instructions that tell the AI
// how to use drover effectively.
func serverInstructions() string {
	return `You have access to drover, a protocol orchestrator that drives a
project through a declarative multi-phase development workflow.

## How it works

A protocol is an ordered set of phases. A "once" phase is a single unit
of work. A "per_plan_phase" phase repeats an implement → defend →
evaluate cycle for every phase of the project's plan document. Some
phases end at a human approval gate.

drover is the bookkeeper, not the worker: YOU do the work each phase
describes, drover verifies it (checks and reviewer consultation) and
tracks where the project stands.

## The loop

1. Call drover_status to see the current phase, plan stage and gate.
2. Do the work that phase/stage calls for.
3. Optionally call drover_check to run the phase's checks early.
4. Call drover_done. drover runs the checks, consults reviewers, and
   either advances, asks for a retry, raises a gate, or blocks.
5. Repeat until the protocol completes.

## Hard rules

- GATE: ... STOP means stop. Wait for the human. NEVER call
  drover_approve yourself — it only relays an explicit human decision.
- BLOCKED means the retry budget is exhausted. Stop and surface the
  failing evidence to the human; do not keep calling drover_done.
- On a retry, fix the reported problems first. Calling drover_done
  without changes wastes a bounded retry iteration.
- Never edit the files under .drover/ directly. Only the drover tools
  mutate project state.

## Plans

When a project enters its per_plan_phase phase, drover reads the plan
document (.drover/plans/<id>.md or .drover/projects/<id>/plan.md) and
extracts the phase list, preferring a fenced JSON block of the form
{"phases": [{"id": "phase_1", "title": "..."}]} and falling back to
"Phase N: Title" headings. Write plans in one of those shapes.`
}
