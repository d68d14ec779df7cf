package ical

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"caldavtasks/store"
)

func exportFixture() ([]store.Task, TagNameFunc) {
	due := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	tasks := []store.Task{
		{
			UID:       "uid-b",
			Title:     "Second root",
			SortOrder: 200,
			Created:   time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC),
			Modified:  time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			UID:         "uid-a",
			Title:       "First root",
			Description: "note line 1\nnote line 2",
			Priority:    store.PriorityHigh,
			DueDate:     &due,
			Tags:        []string{"t1"},
			SortOrder:   100,
			Created:     time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
			Modified:    time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			UID:       "uid-a1",
			Title:     "Child of first",
			ParentUID: "uid-a",
			Completed: true,
			SortOrder: 100,
			Subtasks:  []store.Subtask{{ID: "s1", Title: "check", Completed: true}},
			Created:   time.Date(2026, 8, 1, 1, 0, 0, 0, time.UTC),
			Modified:  time.Date(2026, 8, 1, 1, 0, 0, 0, time.UTC),
		},
	}
	name := func(id string) string {
		if id == "t1" {
			return "work"
		}
		return ""
	}
	return tasks, name
}

func TestExportICS(t *testing.T) {
	tasks, name := exportFixture()
	out := ExportICS(tasks, name)

	if got := strings.Count(out, "BEGIN:VCALENDAR"); got != 1 {
		t.Errorf("BEGIN:VCALENDAR count = %d, want a single envelope", got)
	}
	if got := strings.Count(out, "BEGIN:VTODO"); got != 3 {
		t.Errorf("BEGIN:VTODO count = %d, want 3", got)
	}
	if got := strings.Count(out, "PRODID:"); got != 1 {
		t.Errorf("PRODID count = %d, want 1", got)
	}
	if !strings.Contains(out, "CATEGORIES:work\r\n") {
		t.Error("tag name should be resolved into CATEGORIES")
	}

	// The bundle must itself be importable.
	parsed := ParseICSFile(out)
	if len(parsed) != 3 {
		t.Fatalf("re-import produced %d tasks, want 3", len(parsed))
	}
}

func TestExportJSON(t *testing.T) {
	tasks, _ := exportFixture()
	data, err := ExportJSON(tasks)
	if err != nil {
		t.Fatalf("ExportJSON() error = %v", err)
	}
	var back []store.Task
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(back) != 3 || back[1].UID != "uid-a" {
		t.Errorf("round trip = %d tasks, [1].UID = %q", len(back), back[1].UID)
	}
}

func TestExportMarkdown(t *testing.T) {
	tasks, name := exportFixture()
	out := ExportMarkdown(tasks, name)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	want := []string{
		"- [ ] First root (!high, due 2026-10-01, #work)",
		"  > note line 1",
		"  > note line 2",
		"  - [x] Child of first",
		"    - [x] check",
		"- [ ] Second root",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(want), out)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestExportMarkdownOrphanParent(t *testing.T) {
	tasks := []store.Task{{UID: "x", Title: "Orphan", ParentUID: "gone"}}
	out := ExportMarkdown(tasks, nil)
	if !strings.HasPrefix(out, "- [ ] Orphan") {
		t.Errorf("orphan should render at top level:\n%s", out)
	}
}

func TestExportCSV(t *testing.T) {
	due := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	tasks := []store.Task{{
		UID:         "u",
		Title:       `Say "hello", world`,
		Description: "has,commas",
		Completed:   true,
		Priority:    store.PriorityMedium,
		DueDate:     &due,
		Tags:        []string{"t1"},
		Created:     time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		Modified:    time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC),
	}}
	name := func(string) string { return "work" }

	out := ExportCSV(tasks, name)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want header plus one row:\n%s", len(lines), out)
	}
	if lines[0] != "Title,Description,Status,Priority,Due Date,Start Date,Category,Created,Modified" {
		t.Errorf("header = %q", lines[0])
	}
	wantRow := `"Say ""hello"", world","has,commas",completed,medium,2026-10-01,,work,2026-08-01,2026-08-15`
	if lines[1] != wantRow {
		t.Errorf("row = %q, want %q", lines[1], wantRow)
	}
}
