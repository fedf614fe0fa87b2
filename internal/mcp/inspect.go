package mcp

import (
	"context"
	"fmt"

	"github.com/deixis/suiterun/internal/console"
	"github.com/deixis/suiterun/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type inspectParams struct {
	RunID  string `json:"run_id" jsonschema:"the run ID from a suite_run result"`
	Domain string `json:"domain,omitempty" jsonschema:"domain whose output to show; omit for every domain"`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}

	rep, err := h.store.Load(params.RunID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}

	results := rep.Results
	if params.Domain != "" {
		res, ok := rep.Result(params.Domain)
		if !ok {
			return errorResult(fmt.Sprintf("Run %s has no result for domain %q.", params.RunID, params.Domain))
		}
		results = []*report.RunResult{res}
	}

	return textResult(console.FormatInspect(rep, results))
}
