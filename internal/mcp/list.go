package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/deixis/suiterun/internal/console"
	"github.com/deixis/suiterun/internal/profile"
	"github.com/deixis/suiterun/internal/suite"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type listParams struct{}

func (h *handler) listHandler(ctx context.Context, req *mcp.CallToolRequest, _ listParams) (*mcp.CallToolResult, any, error) {
	cfg, workspace := h.snapshot()

	reg, err := cfg.Registry()
	if err != nil {
		return errorResult(fmt.Sprintf("invalid configuration: %v", err))
	}
	if reg.Len() == 0 {
		return textResult("No domains configured. Add a domains list to .suiterun.")
	}

	sr := suite.New(cfg, workspace)
	var b strings.Builder
	fmt.Fprintf(&b, "Domains (%d):\n", reg.Len())
	console.WriteDomains(&b, reg.List(), func(d profile.Domain) string {
		inv, err := sr.Resolve(d)
		if err != nil {
			return "error: " + err.Error()
		}
		return inv.String()
	})
	return textResult(b.String())
}
