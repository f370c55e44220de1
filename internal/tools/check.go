package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/oxbowlake/drover/internal/orchestrator"
	"github.com/oxbowlake/drover/internal/state"
)

// CheckTool handles the drover_check MCP tool.
type CheckTool struct {
	orch *orchestrator.Orchestrator
}

// NewCheckTool creates a CheckTool over the given orchestrator.
func NewCheckTool(orch *orchestrator.Orchestrator) *CheckTool {
	return &CheckTool{orch: orch}
}

// Definition returns the MCP tool definition for registration.
func (t *CheckTool) Definition() mcp.Tool {
	return mcp.NewTool("drover_check",
		mcp.WithDescription(
			"Run the current phase's configured checks and report pass/fail "+
				"per check. Diagnostic only — state is never mutated and no "+
				"retry iteration is spent. Use this to verify work before "+
				"calling drover_done.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("The project identifier."),
		),
	)
}

// Handle processes the drover_check tool call.
func (t *CheckTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(req.GetString("project_id", ""))
	if id == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}

	report, err := t.orch.Check(ctx, id)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf(
				"No project %q. Call `drover_status` or `drover_init` first.", id)), nil
		}
		return nil, fmt.Errorf("running checks: %w", err)
	}

	if len(report.Results) == 0 {
		return mcp.NewToolResultText("# Checks\n\nNo checks configured for the current phase. ✅"), nil
	}

	names := make([]string, 0, len(report.Results))
	for name := range report.Results {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("# Checks\n\n")
	for _, name := range names {
		res := report.Results[name]
		marker := "✅"
		if !res.Passed() {
			marker = "❌"
		}
		fmt.Fprintf(&b, "%s **%s** (exit %d)\n", marker, name, res.ExitCode)
		if !res.Passed() && res.Stderr != "" {
			fmt.Fprintf(&b, "```\n%s\n```\n", strings.TrimSpace(res.Stderr))
		}
	}
	if report.AllPassed {
		b.WriteString("\nAll checks passed.")
	} else {
		fmt.Fprintf(&b, "\nFailed: %s. Fix and re-run, or call `drover_done` to spend a retry iteration.",
			strings.Join(report.FailedNames(), ", "))
	}
	return mcp.NewToolResultText(b.String()), nil
}
