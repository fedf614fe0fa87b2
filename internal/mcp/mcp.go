// Package mcp provides the suiterun MCP server, registering the suite
// tools and publishing model instructions.
package mcp

import (
	"context"
	_ "embed"
	"net/url"
	"sync"
	"time"

	"github.com/deixis/suiterun"
	"github.com/deixis/suiterun/internal/config"
	"github.com/deixis/suiterun/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	mu        sync.RWMutex
	cfg       *config.Config
	workspace string // repository root; suites run from here
	store     report.Store
}

func (h *handler) snapshot() (*config.Config, string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg, h.workspace
}

// NewServer creates an MCP server with all suiterun tools registered.
func NewServer(cfg *config.Config, store report.Store, workspace string) *mcp.Server {
	h := &handler{
		cfg:       cfg,
		workspace: workspace,
		store:     store,
	}

	mcpOpts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateWorkspaceFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "suiterun", Version: suiterun.Version}, mcpOpts)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "suite_list",
		Description: "List the configured test domains in run order, with their settings and the command each one runs.",
	}, h.listHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "suite_run",
		Description: `Run the test domains in order, each as its own process under its own settings.

A failing domain does not stop the others unless fail_fast is set. Returns a summary
table and a run ID; captured output is available via suite_inspect.`,
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "suite_inspect",
		Description: `Show the captured output of a previous suite_run.

Use the run_id from suite_run. Set domain to read one domain's output; omit it for all.`,
	}, h.inspectHandler)

	return s
}

// updateWorkspaceFromRoots queries the client for MCP roots and reloads
// the configuration if a valid root is returned.
// This is called during session initialization, before any tool calls.
func (h *handler) updateWorkspaceFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil {
		return
	}
	if len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}

	loaded, err := config.Load(u.Path)
	if err != nil {
		return
	}

	h.mu.Lock()
	h.cfg = loaded.Config
	h.workspace = loaded.RepoRoot
	h.mu.Unlock()
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
