package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SubtaskCascade controls what happens to child tasks when their parent is
// deleted.
type SubtaskCascade string

const (
	CascadeDelete SubtaskCascade = "delete" // delete the whole subtree
	CascadeKeep   SubtaskCascade = "keep"   // reparent children to the deleted task's parent
)

// Store is the single source of truth for tasks, tags, accounts, calendars
// and UI selection state. Both UI actions and the sync engine mutate it.
// All mutations are synchronous and cannot fail; invalid references are
// no-ops. Every mutation emits one change signal to all subscribers.
type Store struct {
	mu sync.RWMutex

	tasks     map[string]*Task // keyed by local id
	tags      map[string]*Tag
	accounts  map[string]*Account
	calendars map[string]*Calendar
	pending   []PendingDeletion

	activeCalendarID string
	activeTagID      string

	cascade SubtaskCascade

	subMu  sync.Mutex
	subs   map[int]func()
	nextID int
}

// New creates an empty store. Children of deleted tasks are removed with
// their parent unless SetSubtaskCascade says otherwise.
func New() *Store {
	return &Store{
		tasks:     make(map[string]*Task),
		tags:      make(map[string]*Tag),
		accounts:  make(map[string]*Account),
		calendars: make(map[string]*Calendar),
		cascade:   CascadeDelete,
		subs:      make(map[int]func()),
	}
}

// SetSubtaskCascade selects the delete-vs-keep behavior for children of a
// deleted task. Matches the deleteSubtasksWithParent setting.
func (s *Store) SetSubtaskCascade(c SubtaskCascade) {
	s.mu.Lock()
	if c == CascadeKeep {
		s.cascade = CascadeKeep
	} else {
		s.cascade = CascadeDelete
	}
	s.mu.Unlock()
}

// Subscribe registers a change listener and returns its unsubscribe
// function. Subscribers must treat every signal as a full invalidation of
// derived views; no field-level diffing is promised.
func (s *Store) Subscribe(fn func()) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// notify fires the change signal. Called after the store lock is released
// so subscribers may read back into the store.
func (s *Store) notify() {
	s.subMu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// NextSortOrder returns max(existing sortOrder)+1, seeded from the Apple
// epoch when the store holds no tasks so that imported fallback values and
// fresh local values share one numeric space.
func (s *Store) NextSortOrder() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextSortOrderLocked()
}

func (s *Store) nextSortOrderLocked() int64 {
	if len(s.tasks) == 0 {
		return AppleSortOrder(time.Now())
	}
	var max int64
	first := true
	for _, t := range s.tasks {
		if first || t.SortOrder > max {
			max = t.SortOrder
			first = false
		}
	}
	return max + 1
}

// --- Tasks ---

// AddTask inserts a task, filling in id, uid, timestamps and sort order
// where missing, and returns the stored copy. New tasks start unsynced.
// A SortOrder of 0 counts as missing and is reassigned; a task whose
// remote sort order is genuinely 0 (created at the Apple epoch exactly)
// loses that value on import.
func (s *Store) AddTask(t Task) Task {
	s.mu.Lock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.UID == "" {
		t.UID = uuid.NewString()
	}
	now := time.Now()
	if t.Created.IsZero() {
		t.Created = now
	}
	if t.Modified.IsZero() {
		t.Modified = now
	}
	if t.SortOrder == 0 {
		t.SortOrder = s.nextSortOrderLocked()
	}
	t.Synced = false
	stored := t
	s.tasks[t.ID] = &stored
	s.mu.Unlock()

	s.notify()
	return t
}

// InsertRemote inserts a task pulled from the server as-is: the synced
// flag, href and etag all come from the caller. Used only by the sync
// engine; UI creation goes through AddTask.
func (s *Store) InsertRemote(t Task) Task {
	s.mu.Lock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	stored := t
	s.tasks[t.ID] = &stored
	s.mu.Unlock()

	s.notify()
	return t
}

// Task returns the task with the given local id.
func (s *Store) Task(id string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tasks[id]; ok {
		return *t, true
	}
	return Task{}, false
}

// Tasks returns a copy of every task.
func (s *Store) Tasks() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	return out
}

// TasksForCalendar returns every task in the given calendar.
func (s *Store) TasksForCalendar(calendarID string) []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Task
	for _, t := range s.tasks {
		if t.CalendarID == calendarID {
			out = append(out, *t)
		}
	}
	return out
}

// UpdateTask replaces the stored task with the same id. This is the UI
// mutation path: it bumps Modified and clears the synced flag. Updating an
// unknown id is a no-op.
func (s *Store) UpdateTask(t Task) {
	s.mu.Lock()
	existing, ok := s.tasks[t.ID]
	if !ok {
		s.mu.Unlock()
		return
	}
	t.UID = existing.UID // uid never changes after creation
	if t.Href == "" {
		t.Href = existing.Href
	}
	if t.Etag == "" {
		t.Etag = existing.Etag
	}
	t.Modified = time.Now()
	t.Synced = false
	stored := t
	s.tasks[t.ID] = &stored
	s.mu.Unlock()

	s.notify()
}

// ApplyRemote overwrites a task with server state without touching the
// Modified stamp the server provided, and marks it synced. Used only by the
// sync engine's pull phase.
func (s *Store) ApplyRemote(t Task) {
	s.mu.Lock()
	if _, ok := s.tasks[t.ID]; !ok {
		s.mu.Unlock()
		return
	}
	t.Synced = true
	stored := t
	s.tasks[t.ID] = &stored
	s.mu.Unlock()

	s.notify()
}

// MarkSynced records the server outcome of a push: the resource location,
// its version token, and the synced flag. No-op for unknown ids.
func (s *Store) MarkSynced(id, href, etag string) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	if href != "" {
		t.Href = href
	}
	if etag != "" {
		t.Etag = etag
	}
	t.Synced = true
	s.mu.Unlock()

	s.notify()
}

// SetTaskTags replaces a task's tag set without clearing the synced flag.
// Used when only the resolved category set changed during a pull.
func (s *Store) SetTaskTags(id string, tagIDs []string) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	t.Tags = append([]string(nil), tagIDs...)
	s.mu.Unlock()

	s.notify()
}

// DeleteTask removes a task. If the task exists on the server (has an
// href), a pending deletion is recorded so the next sync pushes the delete.
// Children follow the configured cascade.
func (s *Store) DeleteTask(id string) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	s.deleteTaskLocked(t, true)
	s.mu.Unlock()

	s.notify()
}

// deleteTaskLocked removes one task and handles its children. recordPending
// is false when the deletion mirrors a server-side delete.
func (s *Store) deleteTaskLocked(t *Task, recordPending bool) {
	if recordPending && t.Href != "" {
		s.pending = append(s.pending, PendingDeletion{
			UID:        t.UID,
			Href:       t.Href,
			AccountID:  t.AccountID,
			CalendarID: t.CalendarID,
		})
	}
	parentUID := t.ParentUID
	uid := t.UID
	delete(s.tasks, t.ID)

	for _, child := range s.tasks {
		if child.AccountID != t.AccountID || child.ParentUID != uid {
			continue
		}
		switch s.cascade {
		case CascadeKeep:
			child.ParentUID = parentUID
			child.Synced = false
		default:
			s.deleteTaskLocked(child, recordPending)
		}
	}
}

// DeleteTaskRemote removes a task that was deleted server-side. No pending
// deletion is recorded. Used only by the sync engine.
func (s *Store) DeleteTaskRemote(id string) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	s.deleteTaskLocked(t, false)
	s.mu.Unlock()

	s.notify()
}

// --- Pending deletions ---

// PendingDeletions returns the queued remote deletes for one calendar.
func (s *Store) PendingDeletions(calendarID string) []PendingDeletion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []PendingDeletion
	for _, p := range s.pending {
		if p.CalendarID == calendarID {
			out = append(out, p)
		}
	}
	return out
}

// AllPendingDeletions returns every queued remote delete.
func (s *Store) AllPendingDeletions() []PendingDeletion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]PendingDeletion(nil), s.pending...)
}

// ClearPendingDeletion drops the queued delete for the given uid.
func (s *Store) ClearPendingDeletion(uid string) {
	s.mu.Lock()
	kept := s.pending[:0]
	for _, p := range s.pending {
		if p.UID != uid {
			kept = append(kept, p)
		}
	}
	s.pending = kept
	s.mu.Unlock()

	s.notify()
}

// restorePending is used by persistence when loading a snapshot.
func (s *Store) restorePending(pending []PendingDeletion) {
	s.mu.Lock()
	s.pending = append([]PendingDeletion(nil), pending...)
	s.mu.Unlock()
}

// --- Tags ---

// AddTag inserts a tag, assigning an id when missing.
func (s *Store) AddTag(t Tag) Tag {
	s.mu.Lock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	stored := t
	s.tags[t.ID] = &stored
	s.mu.Unlock()

	s.notify()
	return t
}

// Tag returns the tag with the given id.
func (s *Store) Tag(id string) (Tag, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tags[id]; ok {
		return *t, true
	}
	return Tag{}, false
}

// Tags returns all tags sorted by name.
func (s *Store) Tags() []Tag {
	s.mu.RLock()
	out := make([]Tag, 0, len(s.tags))
	for _, t := range s.tags {
		out = append(out, *t)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// TagByName finds a tag by case-insensitive name match.
func (s *Store) TagByName(name string) (Tag, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tags {
		if strings.EqualFold(t.Name, name) {
			return *t, true
		}
	}
	return Tag{}, false
}

// UpdateTag replaces a tag. Unknown ids are no-ops.
func (s *Store) UpdateTag(t Tag) {
	s.mu.Lock()
	if _, ok := s.tags[t.ID]; !ok {
		s.mu.Unlock()
		return
	}
	stored := t
	s.tags[t.ID] = &stored
	s.mu.Unlock()

	s.notify()
}

// DeleteTag removes a tag and strips it from every task that carries it.
func (s *Store) DeleteTag(id string) {
	s.mu.Lock()
	if _, ok := s.tags[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.tags, id)
	for _, t := range s.tasks {
		for i, tagID := range t.Tags {
			if tagID == id {
				t.Tags = append(t.Tags[:i], t.Tags[i+1:]...)
				break
			}
		}
	}
	if s.activeTagID == id {
		s.activeTagID = ""
	}
	s.mu.Unlock()

	s.notify()
}

// ResolveTagNames maps category names onto tag ids, matching existing tags
// case-insensitively and auto-creating tags for unmatched names. The result
// preserves input order; blank names are dropped.
func (s *Store) ResolveTagNames(names []string) []string {
	var ids []string
	created := false

	s.mu.Lock()
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		var found *Tag
		for _, t := range s.tags {
			if strings.EqualFold(t.Name, name) {
				found = t
				break
			}
		}
		if found == nil {
			tag := &Tag{ID: uuid.NewString(), Name: name}
			s.tags[tag.ID] = tag
			found = tag
			created = true
		}
		ids = append(ids, found.ID)
	}
	s.mu.Unlock()

	if created {
		s.notify()
	}
	return ids
}

// --- Accounts ---

// AddAccount inserts an account, assigning an id when missing.
func (s *Store) AddAccount(a Account) Account {
	s.mu.Lock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	stored := a
	s.accounts[a.ID] = &stored
	s.mu.Unlock()

	s.notify()
	return a
}

// Account returns the account with the given id.
func (s *Store) Account(id string) (Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.accounts[id]; ok {
		return *a, true
	}
	return Account{}, false
}

// Accounts returns every account sorted by name.
func (s *Store) Accounts() []Account {
	s.mu.RLock()
	out := make([]Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, *a)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// UpdateAccount replaces an account. Unknown ids are no-ops.
func (s *Store) UpdateAccount(a Account) {
	s.mu.Lock()
	if _, ok := s.accounts[a.ID]; !ok {
		s.mu.Unlock()
		return
	}
	stored := a
	s.accounts[a.ID] = &stored
	s.mu.Unlock()

	s.notify()
}

// DeleteAccount removes an account and cascades to its calendars and tasks.
// No pending deletions are recorded; the account is gone, so there is no
// server left to push deletes to.
func (s *Store) DeleteAccount(id string) {
	s.mu.Lock()
	if _, ok := s.accounts[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.accounts, id)
	for calID, cal := range s.calendars {
		if cal.AccountID == id {
			delete(s.calendars, calID)
			if s.activeCalendarID == calID {
				s.activeCalendarID = ""
			}
		}
	}
	for taskID, t := range s.tasks {
		if t.AccountID == id {
			delete(s.tasks, taskID)
		}
	}
	kept := s.pending[:0]
	for _, p := range s.pending {
		if p.AccountID != id {
			kept = append(kept, p)
		}
	}
	s.pending = kept
	s.mu.Unlock()

	s.notify()
}

// --- Calendars ---

// AddCalendar inserts a calendar.
func (s *Store) AddCalendar(c Calendar) Calendar {
	s.mu.Lock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	stored := c
	s.calendars[c.ID] = &stored
	s.mu.Unlock()

	s.notify()
	return c
}

// Calendar returns the calendar with the given id.
func (s *Store) Calendar(id string) (Calendar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.calendars[id]; ok {
		return *c, true
	}
	return Calendar{}, false
}

// Calendars returns every calendar sorted by name.
func (s *Store) Calendars() []Calendar {
	s.mu.RLock()
	out := make([]Calendar, 0, len(s.calendars))
	for _, c := range s.calendars {
		out = append(out, *c)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CalendarsForAccount returns the calendars belonging to one account.
func (s *Store) CalendarsForAccount(accountID string) []Calendar {
	s.mu.RLock()
	out := make([]Calendar, 0)
	for _, c := range s.calendars {
		if c.AccountID == accountID {
			out = append(out, *c)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// UpdateCalendar replaces a calendar only when something actually changed,
// so the calendar reconciliation step does not emit spurious signals.
func (s *Store) UpdateCalendar(c Calendar) {
	s.mu.Lock()
	existing, ok := s.calendars[c.ID]
	if !ok || existing.Equal(c) {
		s.mu.Unlock()
		return
	}
	stored := c
	s.calendars[c.ID] = &stored
	s.mu.Unlock()

	s.notify()
}

// DeleteCalendar removes a calendar and all its tasks. Used when the server
// no longer lists the collection, so no pending deletions are recorded. If
// the calendar was the active view, selection falls back to "all tasks".
func (s *Store) DeleteCalendar(id string) {
	s.mu.Lock()
	if _, ok := s.calendars[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.calendars, id)
	for taskID, t := range s.tasks {
		if t.CalendarID == id {
			delete(s.tasks, taskID)
		}
	}
	kept := s.pending[:0]
	for _, p := range s.pending {
		if p.CalendarID != id {
			kept = append(kept, p)
		}
	}
	s.pending = kept
	if s.activeCalendarID == id {
		s.activeCalendarID = ""
	}
	s.mu.Unlock()

	s.notify()
}

// --- Selection state ---

// SetActiveCalendar selects the calendar view. Calendar and tag selection
// are mutually exclusive; an empty id means "all tasks".
func (s *Store) SetActiveCalendar(id string) {
	s.mu.Lock()
	s.activeCalendarID = id
	s.activeTagID = ""
	s.mu.Unlock()

	s.notify()
}

// SetActiveTag selects the tag view, clearing any calendar selection.
func (s *Store) SetActiveTag(id string) {
	s.mu.Lock()
	s.activeTagID = id
	s.activeCalendarID = ""
	s.mu.Unlock()

	s.notify()
}

// ActiveCalendar returns the selected calendar id, empty for "all tasks".
func (s *Store) ActiveCalendar() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeCalendarID
}

// ActiveTag returns the selected tag id, if any.
func (s *Store) ActiveTag() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeTagID
}
