package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/odvcencio/folio/pkg/entry"
	"github.com/odvcencio/folio/pkg/graph"
	"github.com/odvcencio/folio/pkg/tree"
)

var (
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	addStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	removeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))

	statusStyles = map[entry.Status]lipgloss.Style{
		entry.Published: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		entry.Draft:     lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		entry.Archived:  lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
)

func renderStatus(s entry.Status, width int) string {
	return statusStyles[s].Width(width).Render(string(s))
}

// printRows writes one line per row: id, type, effective status, url and
// title, in columns sized to the widest value.
func printRows(w io.Writer, rows []*graph.Row) {
	if len(rows) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no entries"))
		return
	}
	idW, typeW, urlW := len("ID"), len("TYPE"), len("URL")
	for _, r := range rows {
		idW = max(idW, lipgloss.Width(r.ID))
		typeW = max(typeW, lipgloss.Width(r.Type))
		urlW = max(urlW, lipgloss.Width(r.URL))
	}
	const statusW = len("published")
	col := func(s string, width int) string {
		return lipgloss.NewStyle().Width(width).Render(s)
	}
	fmt.Fprintln(w, headerStyle.Render(strings.Join([]string{
		col("ID", idW), col("TYPE", typeW), col("STATUS", statusW), col("URL", urlW), "TITLE",
	}, "  ")))
	for _, r := range rows {
		fmt.Fprintln(w, strings.Join([]string{
			mutedStyle.Width(idW).Render(r.ID),
			col(r.Type, typeW),
			renderStatus(r.EffectiveStatus, statusW),
			col(r.URL, urlW),
			r.Title,
		}, "  "))
	}
}

// printChanges lists changed paths the way status output does: + for
// added or modified files, - for removed ones.
func printChanges(w io.Writer, changes []tree.Change) {
	for _, c := range changes {
		if c.Op == tree.OpDelete {
			fmt.Fprintln(w, removeStyle.Render("  - "+c.Path))
			continue
		}
		fmt.Fprintln(w, addStyle.Render("  + "+c.Path))
	}
}
