// Package prompts implements MCP prompt handlers for the orchestrator.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// StartPrompt handles the drover-start MCP prompt.
// It guides the AI through driving a project with the protocol verbs.
type StartPrompt struct{}

// NewStartPrompt creates a StartPrompt.
func NewStartPrompt() *StartPrompt {
	return &StartPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StartPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("drover-start",
		mcp.WithPromptDescription(
			"Start or resume driving a project through its protocol. "+
				"Reports where the project stands and explains the "+
				"status/check/done/approve loop.",
		),
		mcp.WithArgument("project_id",
			mcp.ArgumentDescription("The project identifier to drive"),
		),
	)
}

// Handle processes the drover-start prompt request.
func (p *StartPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	projectID := "my-project"
	if args := req.Params.Arguments; args != nil {
		if id, ok := args["project_id"]; ok && id != "" {
			projectID = id
		}
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Drive project: %s", projectID),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I want to drive the project '%s' through its protocol.\n\n"+
						"Please:\n"+
						"1. Call `drover_status` with project_id='%s' to see where it stands\n"+
						"2. Do the work the current phase and stage describe\n"+
						"3. Optionally call `drover_check` to verify before committing\n"+
						"4. Call `drover_done` to record the finished stage and advance\n"+
						"5. Repeat from step 1 until the protocol completes\n\n"+
						"Rules:\n"+
						"- If a response says GATE ... STOP, stop immediately and wait for me. "+
						"Never call `drover_approve` on your own — approvals relay my explicit decision.\n"+
						"- If a response says BLOCKED, stop and show me the failing evidence.\n"+
						"- On a retry, fix the reported problems before calling `drover_done` again.",
					projectID, projectID,
				)),
			},
		},
	}, nil
}
