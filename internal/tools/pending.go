package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/oxbowlake/drover/internal/orchestrator"
)

// PendingTool handles the drover_pending MCP tool.
type PendingTool struct {
	orch *orchestrator.Orchestrator
}

// NewPendingTool creates a PendingTool over the given orchestrator.
func NewPendingTool(orch *orchestrator.Orchestrator) *PendingTool {
	return &PendingTool{orch: orch}
}

// Definition returns the MCP tool definition for registration.
func (t *PendingTool) Definition() mcp.Tool {
	return mcp.NewTool("drover_pending",
		mcp.WithDescription(
			"List every gate awaiting human approval across all projects "+
				"under the workspace. Read-only.",
		),
	)
}

// Handle processes the drover_pending tool call.
func (t *PendingTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pending, err := t.orch.Pending()
	if err != nil {
		return nil, fmt.Errorf("listing pending gates: %w", err)
	}

	if len(pending) == 0 {
		return mcp.NewToolResultText("No gates are awaiting approval."), nil
	}

	var b strings.Builder
	b.WriteString("# Pending gates\n\n")
	for _, p := range pending {
		fmt.Fprintf(&b, "- ⛔ `%s` (%s) — gate **%s** at phase %s\n", p.ProjectID, p.Title, p.Gate, p.Phase)
	}
	b.WriteString("\nEach gate needs a `drover_approve` call relaying an explicit human decision.")
	return mcp.NewToolResultText(b.String()), nil
}
