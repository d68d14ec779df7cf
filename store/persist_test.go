package store

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveLoadRoundTrip(t *testing.T) {
	db := openTestDB(t)

	s := New()
	s.AddAccount(Account{ID: "acc", Name: "work", ServerURL: "https://dav.example.com", Username: "alice", ServerType: "nextcloud"})
	s.AddCalendar(Calendar{ID: "cal", Name: "Tasks", URL: "/calendars/alice/tasks/", CTag: "ct-1", Color: "#ff0000", AccountID: "acc"})
	tag := s.AddTag(Tag{Name: "urgent", Color: "#00ff00"})

	due := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	task := s.AddTask(Task{
		Title:       "Pay rent",
		Description: "before the first",
		Priority:    PriorityHigh,
		DueDate:     &due,
		AccountID:   "acc",
		CalendarID:  "cal",
		Subtasks:    []Subtask{{ID: "s1", Title: "transfer", Completed: true}},
	})
	s.SetTaskTags(task.ID, []string{tag.ID})
	s.MarkSynced(task.ID, "/calendars/alice/tasks/x.ics", `"etag-9"`)

	victim := s.AddTask(Task{Title: "victim", AccountID: "acc", CalendarID: "cal"})
	s.MarkSynced(victim.ID, "/calendars/alice/tasks/v.ics", `"etag-1"`)
	s.DeleteTask(victim.ID)

	s.SetActiveCalendar("cal")

	if err := db.Save(s); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded := New()
	if err := db.Load(loaded); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	account, ok := loaded.Account("acc")
	if !ok || account.Username != "alice" || account.ServerType != "nextcloud" {
		t.Errorf("account = %+v", account)
	}

	cal, ok := loaded.Calendar("cal")
	if !ok || cal.CTag != "ct-1" || cal.Color != "#ff0000" {
		t.Errorf("calendar = %+v", cal)
	}

	tags := loaded.Tags()
	if len(tags) != 1 || tags[0].Name != "urgent" {
		t.Errorf("tags = %+v", tags)
	}

	got, ok := loaded.Task(task.ID)
	if !ok {
		t.Fatal("task missing after load")
	}
	if got.Title != "Pay rent" || got.Priority != PriorityHigh || !got.Synced {
		t.Errorf("task = %+v", got)
	}
	if got.UID != task.UID || got.Href != "/calendars/alice/tasks/x.ics" || got.Etag != `"etag-9"` {
		t.Errorf("sync fields = %s %s %s", got.UID, got.Href, got.Etag)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Errorf("DueDate = %v, want %v", got.DueDate, due)
	}
	if len(got.Tags) != 1 || got.Tags[0] != tag.ID {
		t.Errorf("Tags = %v", got.Tags)
	}
	if len(got.Subtasks) != 1 || got.Subtasks[0].Title != "transfer" || !got.Subtasks[0].Completed {
		t.Errorf("Subtasks = %+v", got.Subtasks)
	}

	pending := loaded.AllPendingDeletions()
	if len(pending) != 1 || pending[0].UID != victim.UID {
		t.Errorf("pending = %+v", pending)
	}

	if loaded.ActiveCalendar() != "cal" {
		t.Errorf("ActiveCalendar = %q, want cal", loaded.ActiveCalendar())
	}
}

func TestSaveOverwritesPreviousSnapshot(t *testing.T) {
	db := openTestDB(t)

	s := New()
	stale := s.AddTask(Task{Title: "stale"})
	if err := db.Save(s); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	s.DeleteTask(stale.ID)
	s.AddTask(Task{Title: "fresh"})
	if err := db.Save(s); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded := New()
	if err := db.Load(loaded); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	tasks := loaded.Tasks()
	if len(tasks) != 1 || tasks[0].Title != "fresh" {
		t.Errorf("tasks = %v", titles(tasks))
	}
}

func TestLoadEmptyDatabase(t *testing.T) {
	db := openTestDB(t)

	s := New()
	if err := db.Load(s); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(s.Tasks()) != 0 || len(s.Calendars()) != 0 {
		t.Error("empty snapshot should load an empty store")
	}
}

func TestAutoSave(t *testing.T) {
	db := openTestDB(t)
	s := New()

	stop := AutoSave(db, s, func(err error) { t.Errorf("save failed: %v", err) })

	task := s.AddTask(Task{Title: "autosaved"})

	loaded := New()
	if err := db.Load(loaded); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := loaded.Task(task.ID); !ok {
		t.Error("mutation should have been snapshotted")
	}

	stop()
	s.AddTask(Task{Title: "after stop"})
	reloaded := New()
	if err := db.Load(reloaded); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(reloaded.Tasks()) != 1 {
		t.Errorf("got %d tasks, want 1 after unsubscribe", len(reloaded.Tasks()))
	}
}
