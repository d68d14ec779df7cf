package ical

import (
	"strings"
	"testing"
	"time"

	"caldavtasks/store"
)

func TestEscapeTextRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		escaped string
	}{
		{"plain", "buy milk", "buy milk"},
		{"comma and semicolon", "a,b;c", `a\,b\;c`},
		{"backslash", `a\b`, `a\\b`},
		{"newline", "line1\nline2", `line1\nline2`},
		{"crlf", "line1\r\nline2", `line1\nline2`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := escapeText(tt.in)
			if got != tt.escaped {
				t.Errorf("escapeText(%q) = %q, want %q", tt.in, got, tt.escaped)
			}
			want := strings.ReplaceAll(tt.in, "\r\n", "\n")
			if back := unescapeText(got); back != want {
				t.Errorf("unescapeText(%q) = %q, want %q", got, back, want)
			}
		})
	}
}

func TestPriorityMapping(t *testing.T) {
	encode := []struct {
		local store.Priority
		wire  int
	}{
		{store.PriorityHigh, 1},
		{store.PriorityMedium, 5},
		{store.PriorityLow, 9},
		{store.PriorityNone, 0},
	}
	for _, tt := range encode {
		if got := priorityToICal(tt.local); got != tt.wire {
			t.Errorf("priorityToICal(%v) = %d, want %d", tt.local, got, tt.wire)
		}
	}

	decode := []struct {
		wire  int
		local store.Priority
	}{
		{1, store.PriorityHigh},
		{2, store.PriorityHigh},
		{4, store.PriorityHigh},
		{5, store.PriorityMedium},
		{6, store.PriorityLow},
		{9, store.PriorityLow},
		{0, store.PriorityNone},
		{10, store.PriorityNone},
	}
	for _, tt := range decode {
		if got := priorityFromICal(tt.wire); got != tt.local {
			t.Errorf("priorityFromICal(%d) = %v, want %v", tt.wire, got, tt.local)
		}
	}
}

func TestUnfold(t *testing.T) {
	in := "SUMMARY:a very\r\n  long title\r\nDESCRIPTION:plain\r\n\tstill the description"
	got := unfold(in)
	want := []string{"SUMMARY:a very long title", "DESCRIPTION:plainstill the description"}
	if len(got) != len(want) {
		t.Fatalf("unfold produced %d lines, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTaskToVTodoRoundTrip(t *testing.T) {
	due := time.Date(2026, 9, 15, 12, 0, 0, 0, time.UTC)
	start := time.Date(2026, 9, 1, 8, 30, 0, 0, time.UTC)
	completedAt := time.Date(2026, 9, 10, 17, 45, 0, 0, time.UTC)
	task := store.Task{
		UID:         "uid-1",
		Title:       "Plan launch; phase 1",
		Description: "line one\nline two",
		Completed:   true,
		CompletedAt: &completedAt,
		Priority:    store.PriorityHigh,
		StartDate:   &start,
		DueDate:     &due,
		ParentUID:   "uid-parent",
		SortOrder:   4200,
		Collapsed:   true,
		Created:     time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		Modified:    time.Date(2026, 9, 10, 17, 45, 0, 0, time.UTC),
		Subtasks:    []store.Subtask{{ID: "s1", Title: "draft", Completed: false}},
	}

	ics := TaskToVTodo(task, []string{"work", "launch,prep"})

	for _, want := range []string{
		"BEGIN:VCALENDAR", "BEGIN:VTODO", "END:VTODO", "END:VCALENDAR",
		"UID:uid-1",
		`SUMMARY:Plan launch\; phase 1`,
		`DESCRIPTION:line one\nline two`,
		"STATUS:COMPLETED",
		"COMPLETED:20260910T174500Z",
		"PERCENT-COMPLETE:100",
		"PRIORITY:1",
		"DTSTART:20260901T083000Z",
		"DUE:20260915T120000Z",
		`CATEGORIES:work,launch\,prep`,
		"RELATED-TO;RELTYPE=PARENT:uid-parent",
		"X-APPLE-SORT-ORDER:4200",
		"X-CALDAV-TASKS-COLLAPSED:TRUE",
	} {
		if !strings.Contains(ics, want+"\r\n") {
			t.Errorf("encoded VTODO missing line %q\n%s", want, ics)
		}
	}

	parsed := VTodoToTask(ics, "acc", "cal", "/x.ics", `"e1"`)
	if parsed == nil {
		t.Fatal("VTodoToTask returned nil for our own output")
	}
	got := parsed.Task
	if got.UID != task.UID || got.Title != task.Title || got.Description != task.Description {
		t.Errorf("identity fields = %q %q %q", got.UID, got.Title, got.Description)
	}
	if !got.Completed || got.CompletedAt == nil || !got.CompletedAt.Equal(completedAt) {
		t.Errorf("completion = %v %v", got.Completed, got.CompletedAt)
	}
	if got.Priority != store.PriorityHigh {
		t.Errorf("Priority = %v, want high", got.Priority)
	}
	if got.StartDate == nil || !got.StartDate.Equal(start) || got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Errorf("dates = %v %v", got.StartDate, got.DueDate)
	}
	if got.ParentUID != "uid-parent" || got.SortOrder != 4200 || !got.Collapsed {
		t.Errorf("hierarchy fields = %q %d %v", got.ParentUID, got.SortOrder, got.Collapsed)
	}
	if len(got.Subtasks) != 1 || got.Subtasks[0].Title != "draft" {
		t.Errorf("Subtasks = %+v", got.Subtasks)
	}
	// the escaped comma survives the round trip as part of one name
	if len(parsed.Categories) != 2 || parsed.Categories[0] != "work" || parsed.Categories[1] != "launch,prep" {
		t.Errorf("Categories = %q", parsed.Categories)
	}
	if got.AccountID != "acc" || got.CalendarID != "cal" || got.Href != "/x.ics" || got.Etag != `"e1"` {
		t.Errorf("binding = %q %q %q %q", got.AccountID, got.CalendarID, got.Href, got.Etag)
	}
}

func TestVTodoToTaskMinimal(t *testing.T) {
	ics := "BEGIN:VCALENDAR\r\nBEGIN:VTODO\r\nUID:bare\r\nSUMMARY:bare task\r\nEND:VTODO\r\nEND:VCALENDAR\r\n"
	parsed := VTodoToTask(ics, "acc", "cal", "", "")
	if parsed == nil {
		t.Fatal("VTodoToTask returned nil")
	}
	task := parsed.Task
	if task.Completed || task.Priority != store.PriorityNone || task.DueDate != nil {
		t.Errorf("unexpected defaults: %+v", task)
	}
	if task.ID == "" {
		t.Error("decoded task needs a fresh local id")
	}
}

func TestVTodoToTaskErrors(t *testing.T) {
	tests := []struct {
		name string
		ics  string
	}{
		{"empty input", ""},
		{"no vtodo", "BEGIN:VCALENDAR\r\nBEGIN:VEVENT\r\nUID:x\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"},
		{"missing uid", "BEGIN:VTODO\r\nSUMMARY:no uid\r\nEND:VTODO\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VTodoToTask(tt.ics, "a", "c", "", ""); got != nil {
				t.Errorf("VTodoToTask() = %+v, want nil", got)
			}
		})
	}
}

func TestVTodoToTaskSortOrderFallback(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ics := "BEGIN:VTODO\r\nUID:no-order\r\nSUMMARY:x\r\nCREATED:20260301T100000Z\r\nEND:VTODO\r\n"
	parsed := VTodoToTask(ics, "a", "c", "", "")
	if parsed == nil {
		t.Fatal("VTodoToTask returned nil")
	}
	if want := store.AppleSortOrder(created); parsed.Task.SortOrder != want {
		t.Errorf("SortOrder = %d, want %d (seconds since the Apple epoch)", parsed.Task.SortOrder, want)
	}
}

func TestVTodoToTaskRelatedToReltypes(t *testing.T) {
	ics := strings.Join([]string{
		"BEGIN:VTODO",
		"UID:child",
		"SUMMARY:x",
		"RELATED-TO;RELTYPE=SIBLING:ignored",
		"RELATED-TO;RELTYPE=PARENT:the-parent",
		"END:VTODO",
	}, "\r\n")
	parsed := VTodoToTask(ics, "a", "c", "", "")
	if parsed == nil {
		t.Fatal("VTodoToTask returned nil")
	}
	if parsed.Task.ParentUID != "the-parent" {
		t.Errorf("ParentUID = %q, want the-parent", parsed.Task.ParentUID)
	}
}

func TestVTodoToTaskDateOnlyDue(t *testing.T) {
	ics := "BEGIN:VTODO\r\nUID:d\r\nSUMMARY:x\r\nDUE;VALUE=DATE:20261224\r\nEND:VTODO\r\n"
	parsed := VTodoToTask(ics, "a", "c", "", "")
	if parsed == nil {
		t.Fatal("VTodoToTask returned nil")
	}
	want := time.Date(2026, 12, 24, 0, 0, 0, 0, time.UTC)
	if parsed.Task.DueDate == nil || !parsed.Task.DueDate.Equal(want) {
		t.Errorf("DueDate = %v, want %v", parsed.Task.DueDate, want)
	}
}
