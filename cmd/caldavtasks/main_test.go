package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"caldavtasks/internal/config"
	"caldavtasks/store"
)

func newTestApp() *App {
	s := store.New()
	return &App{config: &config.Config{}, store: s}
}

func TestFindTask(t *testing.T) {
	app := newTestApp()
	app.store.AddTask(store.Task{Title: "Water the plants"})
	app.store.AddTask(store.Task{Title: "File taxes"})
	app.store.AddTask(store.Task{Title: "File insurance claim"})

	task, err := app.findTask("taxes")
	if err != nil {
		t.Fatalf("findTask() error = %v", err)
	}
	if task.Title != "File taxes" {
		t.Errorf("Title = %q, want %q", task.Title, "File taxes")
	}

	// case-insensitive
	if _, err := app.findTask("WATER"); err != nil {
		t.Errorf("findTask() case-insensitive error = %v", err)
	}

	// ambiguous
	if _, err := app.findTask("file"); err == nil {
		t.Error("findTask() should reject ambiguous matches")
	} else if !strings.Contains(err.Error(), "multiple tasks") {
		t.Errorf("error = %v, want ambiguity message", err)
	}

	// missing
	if _, err := app.findTask("nothing here"); err == nil {
		t.Error("findTask() should fail when nothing matches")
	}
}

func TestCalendarByName(t *testing.T) {
	app := newTestApp()
	app.store.AddCalendar(store.Calendar{ID: "work-id", Name: "Work", AccountID: "a"})

	cal, err := app.calendarByName("work")
	if err != nil {
		t.Fatalf("calendarByName() error = %v", err)
	}
	if cal.ID != "work-id" {
		t.Errorf("ID = %q, want work-id", cal.ID)
	}

	// id also matches
	if _, err := app.calendarByName("work-id"); err != nil {
		t.Errorf("calendarByName() by id error = %v", err)
	}

	if _, err := app.calendarByName("personal"); err == nil {
		t.Error("calendarByName() should fail for unknown calendars")
	}
}

func TestParseDate(t *testing.T) {
	app := newTestApp()

	got, err := app.parseDate("2026-03-14")
	if err != nil {
		t.Fatalf("parseDate() error = %v", err)
	}
	if got.Year() != 2026 || got.Month() != 3 || got.Day() != 14 {
		t.Errorf("parseDate() = %v", got)
	}

	if got, err := app.parseDate(""); err != nil || got != nil {
		t.Errorf("parseDate(\"\") = %v, %v; want nil, nil", got, err)
	}

	if _, err := app.parseDate("14.03.2026"); err == nil {
		t.Error("parseDate() should reject mismatched layouts")
	}
}

func TestOnlineCheckNoAccounts(t *testing.T) {
	s := store.New()
	if onlineCheck(s)() {
		t.Error("onlineCheck() should report offline with no accounts")
	}
}

func TestRunListDateSortDefaults(t *testing.T) {
	app := newTestApp()
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	app.store.AddTask(store.Task{Title: "old task", Created: old, Modified: old})
	app.store.AddTask(store.Task{Title: "recent task", Created: recent, Modified: recent})

	// created sorts most recent first by default
	var buf bytes.Buffer
	if err := app.runList(&buf, listOptions{sortBy: "created"}); err != nil {
		t.Fatalf("runList() error = %v", err)
	}
	out := buf.String()
	if strings.Index(out, "recent task") > strings.Index(out, "old task") {
		t.Errorf("created sort should put the newest first:\n%s", out)
	}

	// --desc flips the default direction
	buf.Reset()
	if err := app.runList(&buf, listOptions{sortBy: "created", descending: true}); err != nil {
		t.Fatalf("runList() error = %v", err)
	}
	out = buf.String()
	if strings.Index(out, "old task") > strings.Index(out, "recent task") {
		t.Errorf("reversed created sort should put the oldest first:\n%s", out)
	}

	// title keeps its ascending default
	buf.Reset()
	if err := app.runList(&buf, listOptions{sortBy: "title"}); err != nil {
		t.Fatalf("runList() error = %v", err)
	}
	out = buf.String()
	if strings.Index(out, "old task") > strings.Index(out, "recent task") {
		t.Errorf("title sort should stay alphabetical:\n%s", out)
	}
}
