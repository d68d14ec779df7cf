package ical

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"caldavtasks/store"

	"github.com/google/uuid"
)

// ParsedTodo is the decode result: the task entity plus the CATEGORIES
// names, unescaped but unresolved; turning names into tag ids is the
// store's job during sync.
type ParsedTodo struct {
	Task       store.Task
	Categories []string
}

// property is one unfolded content line split into name, parameters and
// value.
type property struct {
	name   string
	params map[string]string
	value  string
}

// unfold joins RFC 5545 folded lines (continuations start with space or
// tab) and normalizes line endings.
func unfold(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	var lines []string
	for _, l := range raw {
		if l == "" {
			continue
		}
		if (l[0] == ' ' || l[0] == '\t') && len(lines) > 0 {
			lines[len(lines)-1] += l[1:]
			continue
		}
		lines = append(lines, l)
	}
	return lines
}

// splitList splits a multi-valued property value on unescaped commas,
// leaving the escape sequences inside each element intact.
func splitList(value string) []string {
	var out []string
	var b strings.Builder
	escaped := false
	for _, r := range value {
		switch {
		case escaped:
			b.WriteRune('\\')
			b.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ',':
			out = append(out, b.String())
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	if escaped {
		b.WriteRune('\\')
	}
	return append(out, b.String())
}

// parseProperty splits "NAME;PARAM=V;PARAM2=V2:value". Lines without a
// colon are skipped by the caller.
func parseProperty(line string) (property, bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return property{}, false
	}
	head := line[:idx]
	p := property{value: line[idx+1:], params: map[string]string{}}

	parts := strings.Split(head, ";")
	p.name = strings.ToUpper(strings.TrimSpace(parts[0]))
	for _, param := range parts[1:] {
		if eq := strings.Index(param, "="); eq > 0 {
			key := strings.ToUpper(strings.TrimSpace(param[:eq]))
			p.params[key] = strings.Trim(param[eq+1:], `"`)
		}
	}
	return p, p.name != ""
}

// parseICalTime accepts the UTC, local and date-only iCal time formats.
func parseICalTime(value string) (time.Time, bool) {
	for _, format := range []string{timeFormat, "20060102T150405", dateFormat} {
		if t, err := time.Parse(format, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// extractVTodoBlocks returns the raw text of every BEGIN:VTODO..END:VTODO
// component in the input.
func extractVTodoBlocks(text string) []string {
	var blocks []string
	var current []string
	in := false
	for _, line := range unfold(text) {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "BEGIN:VTODO"):
			in = true
			current = current[:0]
			current = append(current, trimmed)
		case strings.HasPrefix(trimmed, "END:VTODO") && in:
			current = append(current, trimmed)
			blocks = append(blocks, strings.Join(current, "\n"))
			in = false
		case in:
			current = append(current, trimmed)
		}
	}
	return blocks
}

// VTodoToTask decodes the first VTODO in icalText into a task bound to the
// given account and calendar. Returns nil on unparseable input; malformed
// wire data is a recoverable condition, never a crash.
func VTodoToTask(icalText, accountID, calendarID, href, etag string) *ParsedTodo {
	blocks := extractVTodoBlocks(icalText)
	if len(blocks) == 0 {
		return nil
	}
	return decodeBlock(blocks[0], accountID, calendarID, href, etag)
}

// decodeBlock parses one VTODO component.
func decodeBlock(block, accountID, calendarID, href, etag string) *ParsedTodo {
	now := time.Now()
	out := &ParsedTodo{
		Task: store.Task{
			ID:         uuid.NewString(),
			Created:    now,
			Modified:   now,
			AccountID:  accountID,
			CalendarID: calendarID,
			Href:       href,
			Etag:       etag,
		},
	}
	t := &out.Task

	sortOrderSet := false
	var relatedTo []property

	for _, line := range unfold(block) {
		p, ok := parseProperty(line)
		if !ok {
			continue
		}
		switch p.name {
		case "UID":
			t.UID = p.value
		case "SUMMARY":
			t.Title = unescapeText(p.value)
		case "DESCRIPTION":
			t.Description = unescapeText(p.value)
		case "STATUS":
			t.Completed = strings.EqualFold(p.value, "COMPLETED")
		case "COMPLETED":
			if ts, ok := parseICalTime(p.value); ok {
				t.Completed = true
				t.CompletedAt = &ts
			}
		case "PRIORITY":
			if n, err := strconv.Atoi(p.value); err == nil {
				t.Priority = priorityFromICal(n)
			}
		case "CREATED":
			if ts, ok := parseICalTime(p.value); ok {
				t.Created = ts
			}
		case "LAST-MODIFIED":
			if ts, ok := parseICalTime(p.value); ok {
				t.Modified = ts
			}
		case "DTSTART":
			if ts, ok := parseICalTime(p.value); ok {
				t.StartDate = &ts
			}
		case "DUE":
			if ts, ok := parseICalTime(p.value); ok {
				t.DueDate = &ts
			}
		case "CATEGORIES":
			// split before unescaping so a name holding an escaped comma
			// stays one name
			for _, v := range splitList(p.value) {
				if name := strings.TrimSpace(unescapeText(v)); name != "" {
					out.Categories = append(out.Categories, name)
				}
			}
		case "RELATED-TO":
			relatedTo = append(relatedTo, p)
		case propSortOrder:
			if n, err := strconv.ParseInt(p.value, 10, 64); err == nil {
				t.SortOrder = n
				sortOrderSet = true
			}
		case propCollapsed:
			t.Collapsed = strings.EqualFold(p.value, "TRUE")
		case propSubtasks:
			decodeSubtasks(t, unescapeText(p.value))
		}
	}

	if t.UID == "" {
		return nil
	}

	// Prefer the RELATED-TO with RELTYPE=PARENT or no RELTYPE; other
	// relation types are ignored.
	for _, p := range relatedTo {
		reltype, has := p.params["RELTYPE"]
		if !has || strings.EqualFold(reltype, "PARENT") {
			t.ParentUID = p.value
			break
		}
	}

	if !sortOrderSet {
		// Servers without manual-ordering support still get a stable,
		// creation-ordered position in the same numeric space new local
		// tasks draw from.
		t.SortOrder = store.AppleSortOrder(t.Created)
	}

	return out
}

// decodeSubtasks restores the legacy flat checklist from its serialized
// form. A corrupt value leaves the list empty.
func decodeSubtasks(t *store.Task, raw string) {
	var subtasks []store.Subtask
	if err := json.Unmarshal([]byte(raw), &subtasks); err == nil {
		t.Subtasks = subtasks
	}
}
