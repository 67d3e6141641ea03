// Table rendering for replay results and recorded history
package main

import (
	"fmt"
	"io"
	"time"

	"github.com/andrewh/obscheck/pkg/report"
	"github.com/andrewh/obscheck/pkg/script"
	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// numbers formats counts with thousands separators.
var numbers = message.NewPrinter(language.English)

func newTable(out io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	return t
}

func passLabel(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}

func renderResults(out io.Writer, results []script.Result) {
	t := newTable(out, table.Row{"Case", "Expected", "Outcome", "Steps", "Result"})
	failed := 0
	for _, r := range results {
		if !r.Pass {
			failed++
		}
		t.AppendRow(table.Row{r.Case, r.Expect, r.Outcome, r.Steps, passLabel(r.Pass)})
	}
	t.AppendFooter(table.Row{"", "", "", "Failed", numbers.Sprintf("%d/%d", failed, len(results))})
	t.Render()
}

func renderReports(out io.Writer, results []script.Result) {
	for _, r := range results {
		if r.Report == "" {
			continue
		}
		_, _ = fmt.Fprintf(out, "\n%s:\n%s\n", r.Case, r.Report)
	}
}

// shortID is the first block of a run id, enough to tell runs apart in a table.
func shortID(id fmt.Stringer) string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

func renderRuns(out io.Writer, runs []report.Run) {
	t := newTable(out, table.Row{"Run", "Started", "Script", "Cases", "Failed"})
	for _, r := range runs {
		t.AppendRow(table.Row{shortID(r.ID), r.Started.Local().Format(time.DateTime), r.Script,
			numbers.Sprintf("%d", r.Cases), numbers.Sprintf("%d", r.Failed)})
	}
	t.Render()
}

func renderViolations(out io.Writer, violations []report.Violation, verbose bool) {
	t := newTable(out, table.Row{"Run", "Started", "Case", "Violation", "Expected"})
	for _, v := range violations {
		expected := "no"
		if v.Pass {
			expected = "yes"
		}
		t.AppendRow(table.Row{shortID(v.RunID), v.Started.Local().Format(time.DateTime), v.Case, v.Outcome, expected})
	}
	t.Render()
	if !verbose {
		return
	}
	for _, v := range violations {
		_, _ = fmt.Fprintf(out, "\n%s %s:\n%s\n", shortID(v.RunID), v.Case, v.Report)
	}
}
