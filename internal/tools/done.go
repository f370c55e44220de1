package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/oxbowlake/drover/internal/engine"
	"github.com/oxbowlake/drover/internal/orchestrator"
	"github.com/oxbowlake/drover/internal/state"
)

// DoneTool handles the drover_done MCP tool.
// It is the work verb: gathers evidence for the finished stage and
// advances the state machine.
type DoneTool struct {
	orch *orchestrator.Orchestrator
}

// NewDoneTool creates a DoneTool over the given orchestrator.
func NewDoneTool(orch *orchestrator.Orchestrator) *DoneTool {
	return &DoneTool{orch: orch}
}

// Definition returns the MCP tool definition for registration.
func (t *DoneTool) Definition() mcp.Tool {
	return mcp.NewTool("drover_done",
		mcp.WithDescription(
			"Record that the work for the current stage is finished. Runs the "+
				"phase's configured checks, consults the configured reviewers, and "+
				"advances the project if the evidence passes. A failed check or a "+
				"REQUEST_CHANGES verdict keeps the project on the same stage and "+
				"spends one retry iteration. Call drover_status first if unsure "+
				"where the project stands.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("The project identifier."),
		),
	)
}

// Handle processes the drover_done tool call.
func (t *DoneTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(req.GetString("project_id", ""))
	if id == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}

	res, err := t.orch.Done(ctx, id)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf(
				"No project %q. Call `drover_status` or `drover_init` first.", id)), nil
		}
		return nil, fmt.Errorf("advancing project: %w", err)
	}

	return mcp.NewToolResultText(renderResult(res)), nil
}

// renderResult formats an advancement result for tool output.
func renderResult(res engine.Result) string {
	var b strings.Builder
	switch res.Status {
	case engine.StatusAdvanced:
		fmt.Fprintf(&b, "# Advanced\n\n✅ %s\n\n", res.Detail)
		fmt.Fprintf(&b, "**Phase:** %s\n", res.Phase)
		if res.PlanPhase != "" {
			fmt.Fprintf(&b, "**Plan phase:** %s\n**Stage:** %s\n", res.PlanPhase, res.Stage)
		}
		b.WriteString("\nWork the new stage, then call `drover_done` again.")
	case engine.StatusRetry:
		fmt.Fprintf(&b, "# Retry\n\n🔄 %s\n\n", res.Detail)
		fmt.Fprintf(&b, "**Iteration:** %d\n\n", res.Iteration)
		b.WriteString("Fix the reported problems and call `drover_done` again. The stage does not advance until the evidence passes.")
	case engine.StatusBlocked:
		fmt.Fprintf(&b, "# BLOCKED\n\n🛑 %s\n\n", res.Detail)
		b.WriteString("STOP. A human must review this stage — do not keep retrying.")
	case engine.StatusGatePending:
		fmt.Fprintf(&b, "# GATE: %s — STOP and wait\n\n⛔ %s\n\n", res.Gate, res.Detail)
		b.WriteString("Do not proceed. A human must call `drover_approve` with this gate name.")
	case engine.StatusCompleted:
		fmt.Fprintf(&b, "# Completed\n\n🎉 %s\n", res.Detail)
	}
	return b.String()
}
