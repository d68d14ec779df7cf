package ical

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"caldavtasks/store"
)

// TagNameFunc resolves a tag id to its display name. Exports receive it so
// the codec stays free of store access; unknown ids resolve to "".
type TagNameFunc func(tagID string) string

func joinTagNames(t store.Task, name TagNameFunc) []string {
	if name == nil {
		return nil
	}
	var names []string
	for _, id := range t.Tags {
		if n := name(id); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// ExportICS bundles every task into one VCALENDAR with one VTODO each,
// full fidelity including vendor properties.
func ExportICS(tasks []store.Task, name TagNameFunc) string {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:" + prodID + "\r\n")
	for _, t := range tasks {
		single := TaskToVTodo(t, joinTagNames(t, name))
		// strip the per-task envelope, keep only the VTODO body
		for _, line := range strings.Split(single, "\r\n") {
			if line == "" || strings.HasPrefix(line, "BEGIN:VCALENDAR") ||
				strings.HasPrefix(line, "END:VCALENDAR") ||
				strings.HasPrefix(line, "VERSION:") ||
				strings.HasPrefix(line, "PRODID:") {
				continue
			}
			b.WriteString(line)
			b.WriteString("\r\n")
		}
	}
	b.WriteString("END:VCALENDAR\r\n")
	return b.String()
}

// ExportJSON dumps tasks as a flat indented JSON array.
func ExportJSON(tasks []store.Task) ([]byte, error) {
	return json.MarshalIndent(tasks, "", "  ")
}

// ExportMarkdown renders a human-readable checklist. Indentation follows
// hierarchy depth, metadata is appended inline, and multi-line
// descriptions are block-quoted.
func ExportMarkdown(tasks []store.Task, name TagNameFunc) string {
	children := make(map[string][]store.Task)
	var roots []store.Task
	uids := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		uids[t.UID] = true
	}
	for _, t := range tasks {
		if t.ParentUID != "" && uids[t.ParentUID] {
			children[t.ParentUID] = append(children[t.ParentUID], t)
		} else {
			roots = append(roots, t)
		}
	}
	sortGroup := func(group []store.Task) {
		sort.SliceStable(group, func(i, j int) bool { return group[i].SortOrder < group[j].SortOrder })
	}
	sortGroup(roots)
	for uid := range children {
		sortGroup(children[uid])
	}

	var b strings.Builder
	var write func(t store.Task, depth int)
	write = func(t store.Task, depth int) {
		indent := strings.Repeat("  ", depth)
		box := " "
		if t.Completed {
			box = "x"
		}
		b.WriteString(fmt.Sprintf("%s- [%s] %s%s\n", indent, box, t.Title, markdownMeta(t, name)))
		if t.Description != "" {
			for _, line := range strings.Split(t.Description, "\n") {
				b.WriteString(fmt.Sprintf("%s  > %s\n", indent, line))
			}
		}
		for _, st := range t.Subtasks {
			subBox := " "
			if st.Completed {
				subBox = "x"
			}
			b.WriteString(fmt.Sprintf("%s  - [%s] %s\n", indent, subBox, st.Title))
		}
		for _, child := range children[t.UID] {
			write(child, depth+1)
		}
	}
	for _, t := range roots {
		write(t, 0)
	}
	return b.String()
}

// markdownMeta renders the inline metadata suffix: priority, dates, tags.
func markdownMeta(t store.Task, name TagNameFunc) string {
	var parts []string
	if t.Priority != store.PriorityNone {
		parts = append(parts, "!"+t.Priority.String())
	}
	if t.DueDate != nil {
		parts = append(parts, "due "+t.DueDate.Format("2006-01-02"))
	}
	if t.StartDate != nil {
		parts = append(parts, "start "+t.StartDate.Format("2006-01-02"))
	}
	if names := joinTagNames(t, name); len(names) > 0 {
		parts = append(parts, "#"+strings.Join(names, " #"))
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

// csvColumns is the fixed export column order.
var csvColumns = []string{
	"Title", "Description", "Status", "Priority",
	"Due Date", "Start Date", "Category", "Created", "Modified",
}

// csvQuote applies RFC 4180 quoting: wrap in double quotes, double any
// embedded quote. Only Title and Description pass through this; the
// remaining columns are machine-generated and never need escaping.
func csvQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func csvDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

// ExportCSV renders tasks as CSV with the fixed column order
// [Title, Description, Status, Priority, Due Date, Start Date, Category,
// Created, Modified].
func ExportCSV(tasks []store.Task, name TagNameFunc) string {
	var b strings.Builder
	b.WriteString(strings.Join(csvColumns, ","))
	b.WriteString("\n")
	for _, t := range tasks {
		status := "open"
		if t.Completed {
			status = "completed"
		}
		row := []string{
			csvQuote(t.Title),
			csvQuote(t.Description),
			status,
			t.Priority.String(),
			csvDate(t.DueDate),
			csvDate(t.StartDate),
			strings.Join(joinTagNames(t, name), "; "),
			t.Created.Format("2006-01-02"),
			t.Modified.Format("2006-01-02"),
		}
		b.WriteString(strings.Join(row, ","))
		b.WriteString("\n")
	}
	return b.String()
}
