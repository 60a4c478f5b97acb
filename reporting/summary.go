package reporting

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-testhost/types"
	"github.com/ethereum-optimism/infra/op-testhost/ui"
)

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}

// summaryStatus is the overall status shown for a summary.
func summaryStatus(s types.ExecutionSummary) string {
	switch {
	case s.Failed > 0 || s.Errors > 0:
		return "FAIL"
	case s.Total == 0:
		return "NONE"
	case s.Skipped == s.Total:
		return "SKIP"
	default:
		return "PASS"
	}
}

// summaryTable renders the consolidated run summary, one row per assembly.
func summaryTable(summary *types.RunSummary) string {
	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("Test Execution Summary (%s)", formatDuration(summary.Elapsed)))
	t.AppendHeader(table.Row{"ASSEMBLY", "TOTAL", "ERRORS", "FAILED", "SKIPPED", "TIME", "STATUS"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "ASSEMBLY", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
		{Name: "TOTAL", Align: text.AlignRight},
		{Name: "ERRORS", Align: text.AlignRight},
		{Name: "FAILED", Align: text.AlignRight},
		{Name: "SKIPPED", Align: text.AlignRight},
		{Name: "TIME", Align: text.AlignRight},
	})

	for i, asm := range summary.Assemblies {
		last := i == len(summary.Assemblies)-1
		s := asm.Summary
		t.AppendRow(table.Row{
			ui.BuildTreePrefix(1, last, nil) + asm.Key,
			s.Total,
			s.Errors,
			s.Failed,
			s.Skipped,
			formatDuration(s.Time),
			summaryStatus(s),
		})
	}

	total := summary.Total
	switch summaryStatus(total) {
	case "FAIL":
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	case "PASS":
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		total.Total,
		total.Errors,
		total.Failed,
		total.Skipped,
		formatDuration(total.Time),
		summaryStatus(total),
	})
	return strings.TrimRight(t.Render(), "\n")
}
