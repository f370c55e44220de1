// Package resources implements MCP resource handlers for the
// orchestrator.
//
// Resources provide read-only data that the host can consume for
// context. They use URI-based addressing (drover://...) following MCP
// conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/oxbowlake/drover/internal/orchestrator"
)

// Handler manages drover resource endpoints.
type Handler struct {
	orch *orchestrator.Orchestrator
}

// NewHandler creates a resource Handler over the given orchestrator.
func NewHandler(orch *orchestrator.Orchestrator) *Handler {
	return &Handler{orch: orch}
}

// StatusTemplate returns the MCP resource template for per-project status.
func (h *Handler) StatusTemplate() mcp.ResourceTemplate {
	return mcp.NewResourceTemplate(
		"drover://project/{id}/status",
		"Project protocol status",
		mcp.WithTemplateDescription("Current phase, plan stage, pending gate and iteration for one project"),
		mcp.WithTemplateMIMEType("application/json"),
	)
}

// HandleStatus serves drover://project/{id}/status.
func (h *Handler) HandleStatus(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id := projectIDFromURI(req.Params.URI)
	if id == "" {
		return errorResource(req.Params.URI, "URI must be drover://project/{id}/status"), nil
	}

	rep, err := h.orch.Status(id)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling status: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// projectIDFromURI extracts {id} from drover://project/{id}/status.
func projectIDFromURI(uri string) string {
	rest, ok := strings.CutPrefix(uri, "drover://project/")
	if !ok {
		return ""
	}
	id, ok := strings.CutSuffix(rest, "/status")
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
