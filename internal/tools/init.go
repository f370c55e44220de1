package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/oxbowlake/drover/internal/orchestrator"
)

// InitTool handles the drover_init MCP tool.
type InitTool struct {
	orch *orchestrator.Orchestrator
}

// NewInitTool creates an InitTool over the given orchestrator.
func NewInitTool(orch *orchestrator.Orchestrator) *InitTool {
	return &InitTool{orch: orch}
}

// Definition returns the MCP tool definition for registration.
func (t *InitTool) Definition() mcp.Tool {
	return mcp.NewTool("drover_init",
		mcp.WithDescription(
			"Create a fresh project on a named protocol. Fails if the project "+
				"already exists. drover_status also creates projects implicitly "+
				"with defaults; use this when the title or protocol matters.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("The project identifier. Used as the state directory name."),
		),
		mcp.WithString("title",
			mcp.Description("Human-readable project title. Defaults to the id."),
		),
		mcp.WithString("protocol",
			mcp.Description("Protocol name to drive the project with. Defaults to the bundled 'ide' protocol."),
		),
	)
}

// Handle processes the drover_init tool call.
func (t *InitTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(req.GetString("project_id", ""))
	if id == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}
	title := strings.TrimSpace(req.GetString("title", ""))
	protocolName := strings.TrimSpace(req.GetString("protocol", ""))

	st, err := t.orch.Init(id, title, protocolName)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"# Project created: %s\n\n"+
			"**ID:** `%s`\n"+
			"**Protocol:** %s\n"+
			"**Phase:** %s\n\n"+
			"Work the first phase, then call `drover_done` to record completion.",
		st.Title, st.ID, st.Protocol, st.Phase)), nil
}
