package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/deixis/suiterun/internal/console"
	"github.com/deixis/suiterun/internal/orchestrator"
	"github.com/deixis/suiterun/internal/suite"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type runParams struct {
	Domain   string `json:"domain,omitempty" jsonschema:"Run only this domain. Defaults to every configured domain."`
	FailFast *bool  `json:"fail_fast,omitempty" jsonschema:"Stop at the first failing domain. Defaults to the fail_fast setting in .suiterun."`
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params runParams) (*mcp.CallToolResult, any, error) {
	cfg, workspace := h.snapshot()

	reg, err := cfg.Registry()
	if err != nil {
		return errorResult(fmt.Sprintf("invalid configuration: %v", err))
	}
	if params.Domain != "" {
		reg, err = reg.Select(params.Domain)
		if err != nil {
			return errorResult(err.Error())
		}
	}

	failFast := cfg.FailFast
	if params.FailFast != nil {
		failFast = *params.FailFast
	}

	o := &orchestrator.Orchestrator{
		Runner:   suite.New(cfg, workspace),
		FailFast: failFast,
		Parallel: cfg.ParallelLimit(),
	}
	rep, err := o.RunAll(ctx, reg)
	if err != nil && !errors.Is(err, orchestrator.ErrAborted) {
		return errorResult(fmt.Sprintf("run failed: %v", err))
	}

	// Save results for suite_inspect.
	saveErr := h.store.Save(rep)

	var b strings.Builder
	fmt.Fprintf(&b, "Status: %s\n", strings.ToUpper(string(rep.Status)))
	fmt.Fprintf(&b, "Run: %s\n", rep.ID)
	b.WriteString(console.Summary(rep, false))
	switch {
	case saveErr != nil:
		fmt.Fprintf(&b, "\nNote: the run could not be saved (%v); suite_inspect will not find it.\n", saveErr)
	case !rep.OK():
		fmt.Fprintf(&b, "\nInspect with suite_inspect(run_id=%q, domain=\"<domain>\").\n", rep.ID)
	}
	return textResult(b.String())
}
