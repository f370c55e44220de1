package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/oxbowlake/drover/internal/orchestrator"
	"github.com/oxbowlake/drover/internal/state"
)

// GateTool handles the drover_gate MCP tool.
type GateTool struct {
	orch *orchestrator.Orchestrator
}

// NewGateTool creates a GateTool over the given orchestrator.
func NewGateTool(orch *orchestrator.Orchestrator) *GateTool {
	return &GateTool{orch: orch}
}

// Definition returns the MCP tool definition for registration.
func (t *GateTool) Definition() mcp.Tool {
	return mcp.NewTool("drover_gate",
		mcp.WithDescription(
			"Surface the project's pending approval gate, if any. A pending "+
				"gate means STOP: no further work until a human approves it.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("The project identifier."),
		),
	)
}

// Handle processes the drover_gate tool call.
func (t *GateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(req.GetString("project_id", ""))
	if id == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}

	gate, err := t.orch.Gate(id)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("No project %q.", id)), nil
		}
		return nil, fmt.Errorf("reading gate: %w", err)
	}

	if gate == "" {
		return mcp.NewToolResultText("No gate is pending. Continue working and call `drover_done` when finished."), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"# GATE: %s — STOP and wait\n\n⛔ The project is held at gate `%s`. "+
			"A human must call `drover_approve` with this gate name before work continues.",
		gate, gate)), nil
}
