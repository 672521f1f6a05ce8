// Package report renders the end-of-run summary: the outcome line and a
// table of phase timings.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/imamik/autoinstall/internal/workflow"
)

// Write prints the headline, the timing table and the transcript location.
func Write(w io.Writer, res workflow.Result, transcript string) error {
	var b strings.Builder
	b.WriteString(Headline(res))
	b.WriteString("\n")
	if len(res.Timings) > 0 {
		b.WriteString(Timings(res.Timings, res.Duration))
		b.WriteString("\n")
	}
	if transcript != "" {
		b.WriteString(dimStyle.Render("Transcript: " + transcript))
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Headline returns the styled one-line result message.
func Headline(res workflow.Result) string {
	switch {
	case res.Outcome == workflow.OutcomeSuccess:
		return successStyle.Render(checkMark + " " + res.Message)
	case res.Recovered:
		return warningStyle.Render(warnMark+" "+res.Message) + dimStyle.Render(" (cleanup ran after recovery)")
	default:
		return failedStyle.Render(crossMark + " " + res.Message)
	}
}

// Timings renders one row per executed phase and a total footer.
func Timings(timings []workflow.PhaseTiming, total time.Duration) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(table.Row{"#", "Phase", "Started", "Duration", "Result"})
	for i, pt := range timings {
		t.AppendRow(table.Row{
			i + 1,
			string(pt.Phase),
			pt.Started.UTC().Format(time.TimeOnly),
			formatDuration(pt.Duration),
			result(pt.Err),
		})
	}
	t.AppendFooter(table.Row{"", "Total", "", formatDuration(total), ""})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	return t.Render()
}

func result(err error) string {
	if err == nil {
		return "ok"
	}
	return fmt.Sprintf("failed: %v", err)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
