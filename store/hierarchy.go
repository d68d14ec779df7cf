package store

import (
	"sort"
	"time"
)

// FlatEntry is one row of a pre-flattened, depth-annotated view of the
// visible task tree, the input shape for ReorderTasks. Ancestors holds the
// local ids of every ancestor, nearest parent last.
type FlatEntry struct {
	ID        string
	Depth     int
	Ancestors []string
}

func (e FlatEntry) hasAncestor(id string) bool {
	for _, a := range e.Ancestors {
		if a == id {
			return true
		}
	}
	return false
}

// SetTaskParent links a task under a new parent by uid. A parentUID that
// would create a cycle is rejected as a no-op, checked by walking the
// ancestor chain from the proposed parent toward the root. An empty
// parentUID moves the task to the top level. On success the task's sort
// order is rebased to the end of its new sibling group.
func (s *Store) SetTaskParent(id, parentUID string) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return
	}

	if parentUID != "" {
		parent := s.taskByUIDLocked(t.AccountID, parentUID)
		if parent == nil || s.wouldCycleLocked(t, parent) {
			s.mu.Unlock()
			return
		}
	}

	t.ParentUID = parentUID
	t.SortOrder = s.endOfSiblingGroupLocked(t)
	t.Modified = time.Now()
	t.Synced = false
	s.mu.Unlock()

	s.notify()
}

// taskByUIDLocked resolves a uid within one account. Caller holds the lock.
func (s *Store) taskByUIDLocked(accountID, uid string) *Task {
	for _, t := range s.tasks {
		if t.AccountID == accountID && t.UID == uid {
			return t
		}
	}
	return nil
}

// wouldCycleLocked walks from the proposed parent toward the root and
// reports whether the walk reaches the task being reparented.
func (s *Store) wouldCycleLocked(t, parent *Task) bool {
	seen := make(map[string]bool)
	for cur := parent; cur != nil; cur = s.taskByUIDLocked(cur.AccountID, cur.ParentUID) {
		if cur.UID == t.UID {
			return true
		}
		if seen[cur.UID] {
			// pre-existing cycle in the data; treat as unsafe
			return true
		}
		seen[cur.UID] = true
		if cur.ParentUID == "" {
			break
		}
	}
	return false
}

// endOfSiblingGroupLocked returns a sort order placing t after every
// current sibling.
func (s *Store) endOfSiblingGroupLocked(t *Task) int64 {
	var max int64
	found := false
	for _, other := range s.tasks {
		if other.ID == t.ID {
			continue
		}
		if !s.isSiblingLocked(t, other) {
			continue
		}
		if !found || other.SortOrder > max {
			max = other.SortOrder
			found = true
		}
	}
	if !found {
		return s.nextSortOrderLocked()
	}
	return max + 1
}

// isSiblingLocked reports whether other shares t's sibling group: same
// parent uid within the account, and for top-level tasks the same calendar.
func (s *Store) isSiblingLocked(t, other *Task) bool {
	if other.AccountID != t.AccountID || other.ParentUID != t.ParentUID {
		return false
	}
	if t.ParentUID == "" && other.CalendarID != t.CalendarID {
		return false
	}
	return true
}

// ReorderTasks applies a drag-and-drop move described against a flattened
// view of the visible tree. targetIndent, when non-nil, overrides the drop
// target's depth (horizontal drag). The move is rejected as a no-op when it
// would nest a task under its own descendant. Siblings at the destination
// are renumbered with a gap of 100 so later manual inserts do not force a
// full renumber; only the moved task's parent link changes. All touched
// tasks are marked unsynced. Purely local: the server is reconciled on the
// next sync.
func (s *Store) ReorderTasks(activeID, overID string, flattened []FlatEntry, targetIndent *int) {
	s.mu.Lock()

	active, ok := s.tasks[activeID]
	if !ok {
		s.mu.Unlock()
		return
	}

	activeIdx, overIdx := -1, -1
	for i, e := range flattened {
		switch e.ID {
		case activeID:
			activeIdx = i
		case overID:
			overIdx = i
		}
	}
	if activeIdx == -1 || overIdx == -1 {
		s.mu.Unlock()
		return
	}

	// Dropping onto one's own subtree would create a cycle.
	if flattened[overIdx].hasAncestor(activeID) {
		s.mu.Unlock()
		return
	}

	targetDepth := flattened[overIdx].Depth
	if targetIndent != nil {
		targetDepth = *targetIndent
	}

	// Resolve the new parent: nearest preceding visible item one level up,
	// skipping the moved task and anything moving with it.
	newParentUID := ""
	if targetDepth > 0 {
		for i := overIdx; i >= 0; i-- {
			e := flattened[i]
			if e.ID == activeID || e.hasAncestor(activeID) {
				continue
			}
			if e.Depth == targetDepth-1 {
				if p, ok := s.tasks[e.ID]; ok {
					newParentUID = p.UID
				}
				break
			}
		}
	}

	// Collect destination siblings in their current comparison order,
	// excluding the moved task.
	prev := active.ParentUID
	active.ParentUID = newParentUID
	var siblings []*Task
	for _, other := range s.tasks {
		if other.ID == active.ID {
			continue
		}
		if s.isSiblingLocked(active, other) {
			siblings = append(siblings, other)
		}
	}
	active.ParentUID = prev
	sort.Slice(siblings, func(i, j int) bool { return siblings[i].SortOrder < siblings[j].SortOrder })

	// Splice the moved task in at the position implied by its visual
	// neighbor: when dragging downward it lands after the drop target,
	// upward before it.
	viewPos := make(map[string]int, len(flattened))
	for i, e := range flattened {
		viewPos[e.ID] = i
	}
	insertAt := 0
	for _, sib := range siblings {
		p, visible := viewPos[sib.ID]
		if !visible {
			continue
		}
		if p < overIdx || (p == overIdx && activeIdx < overIdx) {
			insertAt++
		}
	}
	if insertAt > len(siblings) {
		insertAt = len(siblings)
	}

	ordered := make([]*Task, 0, len(siblings)+1)
	ordered = append(ordered, siblings[:insertAt]...)
	ordered = append(ordered, active)
	ordered = append(ordered, siblings[insertAt:]...)

	now := time.Now()
	active.ParentUID = newParentUID
	for i, t := range ordered {
		want := int64((i + 1) * 100)
		if t.SortOrder != want || t.ID == active.ID {
			t.SortOrder = want
			t.Modified = now
			t.Synced = false
		}
	}
	s.mu.Unlock()

	s.notify()
}

// Flatten produces the depth-annotated visible tree for a set of tasks:
// siblings ordered by sort order, children of collapsed tasks omitted.
// The result is the canonical input for ReorderTasks.
func Flatten(tasks []Task) []FlatEntry {
	byUID := make(map[string]int, len(tasks))
	children := make(map[string][]int)
	var roots []int
	for i, t := range tasks {
		byUID[t.AccountID+"\x00"+t.UID] = i
	}
	for i, t := range tasks {
		if t.ParentUID == "" {
			roots = append(roots, i)
			continue
		}
		if _, ok := byUID[t.AccountID+"\x00"+t.ParentUID]; ok {
			key := t.AccountID + "\x00" + t.ParentUID
			children[key] = append(children[key], i)
		} else {
			// orphaned parent link; show at top level
			roots = append(roots, i)
		}
	}

	bySortOrder := func(idx []int) {
		sort.Slice(idx, func(a, b int) bool { return tasks[idx[a]].SortOrder < tasks[idx[b]].SortOrder })
	}
	bySortOrder(roots)

	var out []FlatEntry
	var visit func(i, depth int, ancestors []string)
	visit = func(i, depth int, ancestors []string) {
		t := tasks[i]
		out = append(out, FlatEntry{
			ID:        t.ID,
			Depth:     depth,
			Ancestors: append([]string(nil), ancestors...),
		})
		if t.Collapsed {
			return
		}
		kids := children[t.AccountID+"\x00"+t.UID]
		bySortOrder(kids)
		next := append(ancestors, t.ID)
		for _, k := range kids {
			visit(k, depth+1, next)
		}
	}
	for _, r := range roots {
		visit(r, 0, nil)
	}
	return out
}
