// Package ical translates between the task entity and the iCalendar VTODO
// wire format (RFC 5545), including the vendor extensions used for manual
// ordering, hierarchy and collapse state. All functions are pure; malformed
// input degrades to nil or empty results, never a panic.
package ical

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"caldavtasks/store"
)

const (
	prodID = "-//caldavtasks//caldavtasks//EN"

	// Vendor properties. Sort order follows the Apple/Nextcloud convention
	// so manual ordering survives round trips through other clients.
	propSortOrder = "X-APPLE-SORT-ORDER"
	propCollapsed = "X-CALDAV-TASKS-COLLAPSED"
	propSubtasks  = "X-CALDAV-TASKS-SUBTASKS"

	timeFormat = "20060102T150405Z"
	dateFormat = "20060102"
)

// escapeText applies RFC 5545 text escaping.
func escapeText(text string) string {
	text = strings.ReplaceAll(text, "\\", "\\\\")
	text = strings.ReplaceAll(text, ";", "\\;")
	text = strings.ReplaceAll(text, ",", "\\,")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\n", "\\n")
	return text
}

// unescapeText reverses escapeText.
func unescapeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	escaped := false
	for _, r := range text {
		if escaped {
			switch r {
			case 'n', 'N':
				b.WriteByte('\n')
			default:
				b.WriteRune(r)
			}
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// priorityToICal maps the four local buckets onto the RFC 5545 1-9 scale.
func priorityToICal(p store.Priority) int {
	switch p {
	case store.PriorityHigh:
		return 1
	case store.PriorityMedium:
		return 5
	case store.PriorityLow:
		return 9
	default:
		return 0
	}
}

// priorityFromICal collapses the 1-9 scale into the four local buckets.
// The asymmetric boundaries (1-4 high, 5 medium, 6-9 low) are what other
// CalDAV clients write and must not be adjusted.
func priorityFromICal(p int) store.Priority {
	switch {
	case p >= 1 && p <= 4:
		return store.PriorityHigh
	case p == 5:
		return store.PriorityMedium
	case p >= 6 && p <= 9:
		return store.PriorityLow
	default:
		return store.PriorityNone
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

// TaskToVTodo produces one VTODO wrapped in a VCALENDAR envelope. tagNames
// are the resolved names of the task's tags, joined into CATEGORIES; the
// codec itself never touches the store.
func TaskToVTodo(t store.Task, tagNames []string) string {
	now := time.Now()
	created := t.Created
	if created.IsZero() {
		created = now
	}
	modified := t.Modified
	if modified.IsZero() {
		modified = now
	}

	var b strings.Builder
	line := func(s string) {
		b.WriteString(s)
		b.WriteString("\r\n")
	}

	line("BEGIN:VCALENDAR")
	line("VERSION:2.0")
	line("PRODID:" + prodID)
	line("BEGIN:VTODO")
	line("UID:" + t.UID)
	line("DTSTAMP:" + formatTime(now))
	line("CREATED:" + formatTime(created))
	line("LAST-MODIFIED:" + formatTime(modified))
	line("SUMMARY:" + escapeText(t.Title))
	if t.Description != "" {
		line("DESCRIPTION:" + escapeText(t.Description))
	}
	if t.Completed {
		line("STATUS:COMPLETED")
		completedAt := modified
		if t.CompletedAt != nil {
			completedAt = *t.CompletedAt
		}
		line("COMPLETED:" + formatTime(completedAt))
		line("PERCENT-COMPLETE:100")
	} else {
		line("STATUS:NEEDS-ACTION")
	}
	if p := priorityToICal(t.Priority); p != 0 {
		line(fmt.Sprintf("PRIORITY:%d", p))
	}
	if t.StartDate != nil {
		line("DTSTART:" + formatTime(*t.StartDate))
	}
	if t.DueDate != nil {
		line("DUE:" + formatTime(*t.DueDate))
	}
	if len(tagNames) > 0 {
		escaped := make([]string, len(tagNames))
		for i, name := range tagNames {
			escaped[i] = escapeText(name)
		}
		line("CATEGORIES:" + strings.Join(escaped, ","))
	}
	if t.ParentUID != "" {
		line("RELATED-TO;RELTYPE=PARENT:" + t.ParentUID)
	}
	line(fmt.Sprintf("%s:%d", propSortOrder, t.SortOrder))
	if t.Collapsed {
		line(propCollapsed + ":TRUE")
	}
	if len(t.Subtasks) > 0 {
		// legacy flat checklist, kept only for backward compatibility
		if data, err := json.Marshal(t.Subtasks); err == nil {
			line(propSubtasks + ":" + escapeText(string(data)))
		}
	}
	line("END:VTODO")
	line("END:VCALENDAR")

	return b.String()
}
