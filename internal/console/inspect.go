package console

import (
	"fmt"
	"strings"

	"github.com/deixis/suiterun/internal/report"
)

// FormatInspect renders the captured output of results from rep.
func FormatInspect(rep *report.Report, results []*report.RunResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s (%s)\n", rep.ID, rep.Status)

	for _, res := range results {
		fmt.Fprintln(&b)
		fmt.Fprintf(&b, "%s: %s (exit %d, %dms)\n", res.Domain, res.Status, res.ExitCode, res.DurationMillis)
		if res.Command != "" {
			fmt.Fprintf(&b, "Command: %s\n", res.Command)
		}
		if res.Error != "" {
			fmt.Fprintf(&b, "Error: %s\n", res.Error)
			continue
		}
		if res.Output == "" {
			fmt.Fprintln(&b, "(no output)")
			continue
		}
		fmt.Fprintln(&b, "Output:")
		for _, line := range strings.Split(strings.TrimRight(res.Output, "\n"), "\n") {
			fmt.Fprintf(&b, "    %s\n", line)
		}
		if res.Truncated {
			fmt.Fprintln(&b, "    ... (output truncated)")
		}
	}
	return b.String()
}
