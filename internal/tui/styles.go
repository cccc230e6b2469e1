package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/snapetech/streamcheck/internal/catalog"
	"github.com/snapetech/streamcheck/internal/report"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	validStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	invalidStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	timeoutStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

func statusStyle(s catalog.Status) lipgloss.Style {
	switch s {
	case catalog.StatusValid:
		return validStyle
	case catalog.StatusInvalid:
		return invalidStyle
	case catalog.StatusTimeout:
		return timeoutStyle
	}
	return errorStyle
}

// RenderSummary produces a Lip Gloss styled version of report.WriteSummary.
func RenderSummary(s catalog.Summary, st report.RunStats) string {
	var b strings.Builder
	title := fmt.Sprintf("Checked %s streams in %s", humanize.Comma(int64(s.Total)), s.Elapsed.Round(1_000_000))
	if st.Interrupted {
		title = "Interrupted: " + title + " (" + report.ResumeHint(st) + ")"
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	rows := make([][]string, 0, len(catalog.Statuses))
	for _, status := range catalog.Statuses {
		rows = append(rows, []string{
			string(status),
			humanize.Comma(int64(s.Count(status))),
			fmt.Sprintf("%.1f%%", s.Percent(status)),
		})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("Status", "Count", "Share").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 0 && row >= 0 && row < len(catalog.Statuses) {
				return statusStyle(catalog.Statuses[row])
			}
			return lipgloss.NewStyle()
		}).
		Rows(rows...)
	b.WriteString(t.Render())
	b.WriteString("\n")

	b.WriteString(dimStyle.Render(fmt.Sprintf("this run %s, resumed %s, duplicates %s, rejected %s",
		humanize.Comma(int64(st.Checked)), humanize.Comma(int64(st.Resumed)),
		humanize.Comma(int64(st.Duplicates)), humanize.Comma(int64(st.Rejected)))))
	b.WriteString("\n")
	if st.CatalogPath != "" {
		b.WriteString(fmt.Sprintf("Catalog: %s (%s entries in %d categories)\n", st.CatalogPath, humanize.Comma(int64(st.Entries)), st.Categories))
	}
	if st.ResultsPath != "" {
		b.WriteString(fmt.Sprintf("Results: %s\n", st.ResultsPath))
	}
	return b.String()
}
