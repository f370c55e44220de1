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

// ApproveTool handles the drover_approve MCP tool.
type ApproveTool struct {
	orch *orchestrator.Orchestrator
}

// NewApproveTool creates an ApproveTool over the given orchestrator.
func NewApproveTool(orch *orchestrator.Orchestrator) *ApproveTool {
	return &ApproveTool{orch: orch}
}

// Definition returns the MCP tool definition for registration.
func (t *ApproveTool) Definition() mcp.Tool {
	return mcp.NewTool("drover_approve",
		mcp.WithDescription(
			"Record human approval of a pending gate and advance the project "+
				"into the gate's target phase. Approval is one-time and recorded "+
				"with the approver's identity. Never call this on your own "+
				"initiative — only relay an explicit human decision.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("The project identifier."),
		),
		mcp.WithString("gate",
			mcp.Required(),
			mcp.Description("The name of the pending gate being approved."),
		),
		mcp.WithString("approver",
			mcp.Required(),
			mcp.Description("Identity of the human granting approval."),
		),
	)
}

// Handle processes the drover_approve tool call.
func (t *ApproveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(req.GetString("project_id", ""))
	gate := strings.TrimSpace(req.GetString("gate", ""))
	approver := strings.TrimSpace(req.GetString("approver", ""))
	if id == "" || gate == "" || approver == "" {
		return mcp.NewToolResultError("'project_id', 'gate' and 'approver' are all required"), nil
	}

	res, err := t.orch.Approve(id, gate, approver)
	if err != nil {
		switch {
		case errors.Is(err, state.ErrNotFound):
			return mcp.NewToolResultError(fmt.Sprintf("No project %q.", id)), nil
		case errors.Is(err, engine.ErrUnknownGate):
			return mcp.NewToolResultError(fmt.Sprintf("Gate %q does not exist in this project's protocol.", gate)), nil
		case errors.Is(err, engine.ErrGateNotPending):
			return mcp.NewToolResultError(fmt.Sprintf("Gate %q is not awaiting approval. Check `drover_gate` first.", gate)), nil
		}
		return nil, fmt.Errorf("approving gate: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Gate approved: %s\n\n✅ Approved by %s.\n\n", gate, approver)
	fmt.Fprintf(&b, "**Phase:** %s\n", res.Phase)
	if res.PlanPhase != "" {
		fmt.Fprintf(&b, "**Plan phase:** %s\n**Stage:** %s\n", res.PlanPhase, res.Stage)
	}
	b.WriteString("\nWork the new phase, then call `drover_done` when finished.")
	return mcp.NewToolResultText(b.String()), nil
}
