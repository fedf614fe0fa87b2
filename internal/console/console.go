// Package console presents orchestration progress to a terminal: a
// banner before each domain runs and a summary once all have finished.
// It makes no decisions; everything it prints comes from the report.
package console

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/deixis/suiterun/internal/profile"
	"github.com/deixis/suiterun/internal/report"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

var (
	bannerColor  = color.New(color.FgCyan, color.Bold)
	passColor    = color.New(color.FgGreen)
	failColor    = color.New(color.FgRed)
	skipColor    = color.New(color.Faint, color.FgBlue)
	outputColor  = color.New(color.Faint)
	abortedColor = color.New(color.FgYellow)
)

// maxOutputLines is the maximum number of output lines shown per failed domain.
const maxOutputLines = 40

// Console writes banners and summaries to Out.
type Console struct {
	Out     io.Writer
	Verbose bool // print captured output of failing domains
	NoColor bool

	mu sync.Mutex
}

// New returns a Console writing to out.
func New(out io.Writer) *Console {
	return &Console{Out: out}
}

// Announce writes the banner for a domain that is about to run. The
// banner is written in one piece so concurrent announcements never
// interleave.
func (c *Console) Announce(d profile.Domain) {
	c.mu.Lock()
	defer c.mu.Unlock()
	paint(c.Out, !c.NoColor, bannerColor, "%s\n", Banner(d))
}

// Banner returns the one-line announcement for d.
func Banner(d profile.Domain) string {
	if d.Context.Settings == "" {
		return fmt.Sprintf("=== Running %s tests ===", d.Name)
	}
	return fmt.Sprintf("=== Running %s tests (settings: %s) ===", d.Name, d.Context.Settings)
}

// Summarize writes the per-domain table and the aggregate status line.
func (c *Console) Summarize(rep *report.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	writeSummary(c.Out, rep, c.Verbose, !c.NoColor)
}

// Summary renders the summary without colour.
func Summary(rep *report.Report, verbose bool) string {
	var b bytes.Buffer
	writeSummary(&b, rep, verbose, false)
	return b.String()
}

func writeSummary(w io.Writer, rep *report.Report, verbose, colored bool) {
	fmt.Fprintln(w)
	fmt.Fprint(w, formatTable(rep, colored))
	fmt.Fprintln(w)

	for _, res := range rep.Failed() {
		switch res.Status {
		case report.LaunchError:
			paint(w, colored, failColor, "FAILED: %s (could not start: %s)\n", res.Domain, res.Error)
		case report.Timeout:
			paint(w, colored, failColor, "FAILED: %s (timed out after %s)\n", res.Domain, formatDuration(res.Duration()))
		case report.Cancelled:
			paint(w, colored, abortedColor, "CANCELLED: %s\n", res.Domain)
		default:
			paint(w, colored, failColor, "FAILED: %s (exit %d)\n", res.Domain, res.ExitCode)
		}
		if verbose && res.Output != "" && res.Status != report.LaunchError {
			for _, line := range strings.Split(truncateLines(res.Output, maxOutputLines), "\n") {
				paint(w, colored, outputColor, "    %s\n", line)
			}
		}
	}
	for _, name := range rep.Skipped {
		paint(w, colored, skipColor, "SKIPPED: %s\n", name)
	}

	total := len(rep.Results) + len(rep.Skipped)
	switch rep.Status {
	case report.Success:
		paint(w, colored, passColor, "ok: %d/%d domains passed\n", len(rep.Results), total)
	case report.Aborted:
		paint(w, colored, abortedColor, "ABORTED: %d/%d domains ran before the interrupt\n", len(rep.Results), total)
	default:
		failed := rep.Failed()
		names := make([]string, len(failed))
		for i, f := range failed {
			names[i] = f.Domain
		}
		paint(w, colored, failColor, "FAIL: %d/%d domains failed: %s\n", len(failed), total, strings.Join(names, ", "))
	}
}

func formatTable(rep *report.Report, colored bool) string {
	var buf bytes.Buffer

	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.AppendHeader(table.Row{"Domain", "Settings", "Duration", "Exit", "Status"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Exit", Align: text.AlignRight},
	})

	for _, res := range rep.Results {
		t.AppendRow(table.Row{
			res.Domain,
			res.Settings,
			formatDuration(res.Duration()),
			exitLabel(res.ExitCode),
			statusLabel(res.Status),
		})
	}
	for _, name := range rep.Skipped {
		t.AppendRow(table.Row{name, "", "-", "-", "SKIP"})
	}

	t.AppendFooter(table.Row{"TOTAL", "", formatDuration(rep.Duration()), "", overallLabel(rep.Status)})

	switch {
	case !colored:
		t.SetStyle(table.StyleLight)
	case rep.Status == report.Success:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case rep.Status == report.Aborted:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.Render()
	return buf.String()
}

// WriteDomains lists domains with the command each one would run.
func WriteDomains(w io.Writer, domains []profile.Domain, command func(profile.Domain) string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Domain", "Settings", "Command"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Command", WidthMax: 100, WidthMaxEnforcer: text.WrapSoft},
	})
	for i, d := range domains {
		t.AppendRow(table.Row{i + 1, d.Name, d.Context.Settings, command(d)})
	}
	t.Render()
}

func paint(w io.Writer, colored bool, c *color.Color, format string, args ...any) {
	if colored {
		_, _ = c.Fprintf(w, format, args...)
		return
	}
	_, _ = fmt.Fprintf(w, format, args...)
}

func statusLabel(s report.Status) string {
	switch s {
	case report.Pass:
		return "PASS"
	case report.Fail:
		return "FAIL"
	case report.LaunchError:
		return "ERROR"
	case report.Timeout:
		return "TIMEOUT"
	case report.Cancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

func overallLabel(s report.OverallStatus) string {
	switch s {
	case report.Success:
		return "PASS"
	case report.Aborted:
		return "ABORTED"
	default:
		return "FAIL"
	}
}

func exitLabel(code int) string {
	if code < 0 {
		return "-"
	}
	return fmt.Sprint(code)
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}

func truncateLines(s string, maxLines int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= maxLines {
		return strings.Join(lines, "\n")
	}
	// Keep the tail: test runners print their verdict last.
	result := fmt.Sprintf("... (%d earlier lines)\n", len(lines)-maxLines)
	result += strings.Join(lines[len(lines)-maxLines:], "\n")
	return result
}
