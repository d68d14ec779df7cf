package store

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// SortMode selects the comparison used for task lists.
type SortMode string

const (
	SortManual   SortMode = "manual"
	SortDueDate  SortMode = "due"
	SortStart    SortMode = "start"
	SortPriority SortMode = "priority"
	SortTitle    SortMode = "title"
	SortCreated  SortMode = "created"
	SortModified SortMode = "modified"
	// SortSmart is currently an alias for manual ordering.
	SortSmart SortMode = "smart"
)

// Filter describes a query-side view of the task list. Calendar and tag
// selection are mutually exclusive; CalendarID wins when both are set.
type Filter struct {
	CalendarID    string
	TagID         string
	ShowCompleted bool
	Search        string // free text over title, description, subtask titles
}

// matches reports whether the task passes the filter.
func (f Filter) matches(t Task) bool {
	if !f.ShowCompleted && t.Completed {
		return false
	}
	if f.CalendarID != "" {
		if t.CalendarID != f.CalendarID {
			return false
		}
	} else if f.TagID != "" {
		if !t.HasTag(f.TagID) {
			return false
		}
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if strings.Contains(strings.ToLower(t.Title), needle) {
			return true
		}
		if strings.Contains(strings.ToLower(t.Description), needle) {
			return true
		}
		for _, st := range t.Subtasks {
			if strings.Contains(strings.ToLower(st.Title), needle) {
				return true
			}
		}
		return false
	}
	return true
}

// compareTimes orders by time, zero times equal.
func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

// SortTasks orders tasks in place. ascending=false flips the comparison.
// Date sorts always put undated tasks last regardless of direction.
// Created and modified sorts are conventionally run descending (most
// recent first); callers pass ascending=false for that.
func SortTasks(tasks []Task, mode SortMode, ascending bool) {
	dir := 1
	if !ascending {
		dir = -1
	}

	dateOf := func(t Task) *time.Time {
		if mode == SortStart {
			return t.StartDate
		}
		return t.DueDate
	}

	cmp := func(a, b Task) int {
		switch mode {
		case SortDueDate, SortStart:
			da, db := dateOf(a), dateOf(b)
			return compareTimes(*da, *db)
		case SortPriority:
			// high before none
			return int(b.Priority) - int(a.Priority)
		case SortTitle:
			return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		case SortCreated:
			return compareTimes(a.Created, b.Created)
		case SortModified:
			return compareTimes(a.Modified, b.Modified)
		default: // manual, smart
			switch {
			case a.SortOrder < b.SortOrder:
				return -1
			case a.SortOrder > b.SortOrder:
				return 1
			}
			return 0
		}
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if mode == SortDueDate || mode == SortStart {
			da, db := dateOf(a), dateOf(b)
			switch {
			case da == nil && db == nil:
				return false
			case da == nil:
				return false // undated last, both directions
			case db == nil:
				return true
			}
		}
		return cmp(a, b)*dir < 0
	})
}

// Query evaluates a filtered, sorted view against the current store state.
func (s *Store) Query(f Filter, mode SortMode, ascending bool) []Task {
	var out []Task
	for _, t := range s.Tasks() {
		if f.matches(t) {
			out = append(out, t)
		}
	}
	SortTasks(out, mode, ascending)
	return out
}

// ViewCache memoizes the most recent query result and drops it whenever the
// store signals a change. It is the in-repo consumer of the store's
// publish-on-mutation contract: any mutation invalidates the whole cached
// view, with no field-level diffing.
type ViewCache struct {
	store *Store

	mu     sync.Mutex
	valid  bool
	filter Filter
	mode   SortMode
	asc    bool
	tasks  []Task

	unsubscribe func()
}

// NewViewCache attaches a cache to the store's change signal.
func NewViewCache(s *Store) *ViewCache {
	vc := &ViewCache{store: s}
	vc.unsubscribe = s.Subscribe(vc.Invalidate)
	return vc
}

// Close detaches the cache from the store.
func (vc *ViewCache) Close() {
	if vc.unsubscribe != nil {
		vc.unsubscribe()
		vc.unsubscribe = nil
	}
}

// Invalidate drops the cached view.
func (vc *ViewCache) Invalidate() {
	vc.mu.Lock()
	vc.valid = false
	vc.tasks = nil
	vc.mu.Unlock()
}

// Tasks returns the cached view when the parameters match and no mutation
// has occurred since; otherwise it re-queries the store.
func (vc *ViewCache) Tasks(f Filter, mode SortMode, ascending bool) []Task {
	vc.mu.Lock()
	if vc.valid && vc.filter == f && vc.mode == mode && vc.asc == ascending {
		out := append([]Task(nil), vc.tasks...)
		vc.mu.Unlock()
		return out
	}
	vc.mu.Unlock()

	tasks := vc.store.Query(f, mode, ascending)

	vc.mu.Lock()
	vc.valid = true
	vc.filter = f
	vc.mode = mode
	vc.asc = ascending
	vc.tasks = append([]Task(nil), tasks...)
	vc.mu.Unlock()

	return tasks
}
