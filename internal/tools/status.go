// Package tools implements the MCP tool handlers over the orchestrator
// façade. One file per tool; each tool exposes a Definition for
// registration and a Handle for calls.
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/oxbowlake/drover/internal/orchestrator"
)

// StatusTool handles the drover_status MCP tool.
type StatusTool struct {
	orch *orchestrator.Orchestrator
}

// NewStatusTool creates a StatusTool over the given orchestrator.
func NewStatusTool(orch *orchestrator.Orchestrator) *StatusTool {
	return &StatusTool{orch: orch}
}

// Definition returns the MCP tool definition for registration.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("drover_status",
		mcp.WithDescription(
			"Report where a project stands in its protocol: current phase, "+
				"plan phase and stage, pending gate, retry iteration, and "+
				"blocked/completed flags. Creates the project on first call "+
				"for an unknown id. Never mutates existing state.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("The project identifier."),
		),
	)
}

// Handle processes the drover_status tool call.
func (t *StatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(req.GetString("project_id", ""))
	if id == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}

	rep, err := t.orch.Status(id)
	if err != nil {
		return nil, fmt.Errorf("reading status: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Project: %s\n\n", rep.Title)
	fmt.Fprintf(&b, "**ID:** `%s`\n", rep.ID)
	fmt.Fprintf(&b, "**Protocol:** %s\n", rep.Protocol)
	fmt.Fprintf(&b, "**Phase:** %s", rep.Phase)
	if rep.PhaseName != "" && rep.PhaseName != rep.Phase {
		fmt.Fprintf(&b, " (%s)", rep.PhaseName)
	}
	b.WriteString("\n")
	if rep.PlanPhase != "" {
		fmt.Fprintf(&b, "**Plan phase:** %s — %s\n", rep.PlanPhase, rep.PlanTitle)
		fmt.Fprintf(&b, "**Stage:** %s\n", rep.Stage)
	}
	if rep.PlanTotal > 0 {
		fmt.Fprintf(&b, "**Plan progress:** %d/%d phases complete\n", rep.PlanDone, rep.PlanTotal)
	}
	fmt.Fprintf(&b, "**Iteration:** %d\n", rep.Iteration)

	switch {
	case rep.Blocked:
		b.WriteString("\n🛑 **BLOCKED** — the retry budget is exhausted. " +
			"A human must review the failing stage before work can continue.\n")
	case rep.Done:
		b.WriteString("\n✅ **Protocol completed.**\n")
	case rep.PendingGate != "":
		fmt.Fprintf(&b, "\n⛔ **GATE: %s — STOP and wait.** "+
			"Call `drover_approve` with this gate name once a human has signed off.\n", rep.PendingGate)
	default:
		b.WriteString("\nWork the current stage, then call `drover_done` to record completion.\n")
	}

	return mcp.NewToolResultText(b.String()), nil
}
