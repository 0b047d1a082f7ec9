package diff

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatFieldDiff produces a human-readable field-level summary.
//
// Output format:
//
//	path:
//	  + body     (added)
//	  ~ title    (modified)
//	  - summary  (removed)
func FormatFieldDiff(d *FileDiff) string {
	if len(d.Changes) == 0 {
		return ""
	}
	width := 0
	for _, c := range d.Changes {
		width = max(width, len(c.Key))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", d.Path)
	for _, c := range d.Changes {
		marker, label := "~", "modified"
		switch c.Type {
		case Added:
			marker, label = "+", "added"
		case Removed:
			marker, label = "-", "removed"
		}
		fmt.Fprintf(&b, "  %s %-*s  (%s)\n", marker, width, c.Key, label)
	}
	return b.String()
}

// FormatLineDiff produces a unified-diff-style listing of every changed
// field. Modified values are diffed line by line; added and removed ones
// are shown in full. Strings print as text, other values as indented
// JSON.
//
// Output format for a modified field:
//
//	--- a/path::title
//	+++ b/path::title
//	-old line
//	+new line
func FormatLineDiff(d *FileDiff) string {
	var b strings.Builder
	for _, c := range d.Changes {
		switch c.Type {
		case Modified:
			fmt.Fprintf(&b, "--- a/%s::%s\n", d.Path, c.Key)
			fmt.Fprintf(&b, "+++ b/%s::%s\n", d.Path, c.Key)
			for _, l := range LineDiff(text(c.Before), text(c.After)) {
				switch l.Type {
				case Delete:
					fmt.Fprintf(&b, "-%s\n", l.Content)
				case Insert:
					fmt.Fprintf(&b, "+%s\n", l.Content)
				case Equal:
					fmt.Fprintf(&b, " %s\n", l.Content)
				}
			}
		case Added:
			fmt.Fprintf(&b, "+++ b/%s::%s\n", d.Path, c.Key)
			for _, l := range splitLines(text(c.After)) {
				fmt.Fprintf(&b, "+%s\n", l)
			}
		case Removed:
			fmt.Fprintf(&b, "--- a/%s::%s\n", d.Path, c.Key)
			for _, l := range splitLines(text(c.Before)) {
				fmt.Fprintf(&b, "-%s\n", l)
			}
		}
	}
	return b.String()
}

func text(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(out)
}
