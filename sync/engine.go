// Package sync reconciles the local task store against remote CalDAV
// collections: reconnection, calendar discovery, per-calendar push/pull,
// conflict resolution and pending-deletion draining.
package sync

import (
	"context"
	"fmt"
	"strings"
	stdsync "sync"
	"sync/atomic"
	"time"

	"caldavtasks/connectors"
	"caldavtasks/internal/utils"
	"caldavtasks/store"
)

// OfflineMessage is the user-facing advisory recorded when a sync is
// requested while the network is reported offline. Offline is a state, not
// an error: nothing is attempted and nothing is lost.
const OfflineMessage = "offline - changes will sync when the connection returns"

// Engine orchestrates synchronization. It owns no persistent state beyond
// transient connection handles inside the transport client; everything it
// reconciles lives in the store. A single syncing flag keeps full sync
// cycles from overlapping: a trigger during a running cycle is a no-op,
// not a queued retry.
type Engine struct {
	store       *store.Store
	client      connectors.Client
	online      func() bool
	credentials func(store.Account) (store.Account, error)

	syncing atomic.Bool

	mu            stdsync.Mutex
	lastSyncTime  time.Time
	lastSyncError string
}

// NewEngine wires the engine to its store and transport client. The
// network is assumed online until SetOnlineCheck says otherwise.
func NewEngine(st *store.Store, client connectors.Client) *Engine {
	return &Engine{
		store:  st,
		client: client,
		online: func() bool { return true },
	}
}

// SetOnlineCheck installs the connectivity probe consulted before a full
// sync.
func (e *Engine) SetOnlineCheck(fn func() bool) {
	if fn != nil {
		e.online = fn
	}
}

// SetCredentialsResolver installs a hook that fills in the password of an
// account just before connecting. Keeps secrets out of the store and the
// on-disk snapshot.
func (e *Engine) SetCredentialsResolver(fn func(store.Account) (store.Account, error)) {
	e.credentials = fn
}

// Online reports the current result of the connectivity probe.
func (e *Engine) Online() bool {
	return e.online()
}

// IsSyncing reports whether a full sync cycle is in flight.
func (e *Engine) IsSyncing() bool {
	return e.syncing.Load()
}

// LastSyncTime returns when the last full sync cycle finished.
func (e *Engine) LastSyncTime() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSyncTime
}

// LastSyncError returns the aggregate error string of the last cycle,
// empty when it was clean. Transport failures surface only here; they are
// never thrown at callers.
func (e *Engine) LastSyncError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSyncError
}

func (e *Engine) setLastError(msg string) {
	e.mu.Lock()
	e.lastSyncError = msg
	e.mu.Unlock()
}

// ReconnectAccounts re-establishes the connection of every account that is
// not currently connected. One bad account never blocks the others.
func (e *Engine) ReconnectAccounts(ctx context.Context) {
	for _, account := range e.store.Accounts() {
		if e.client.IsConnected(account.ID) {
			continue
		}
		if e.credentials != nil {
			resolved, err := e.credentials(account)
			if err != nil {
				utils.Warnf("no credentials for account %s: %v", account.Name, err)
				continue
			}
			account = resolved
		}
		if err := e.client.Reconnect(ctx, account); err != nil {
			utils.Warnf("reconnect failed for account %s: %v", account.Name, err)
		}
	}
}

// SyncCalendarsForAccount reconciles the local calendar list of one
// account against the server: create missing calendars, refresh changed
// metadata, and drop calendars the server no longer lists (cascading to
// their tasks; the store redirects the active view to "all tasks" when it
// pointed at a dropped calendar). Unchanged calendars are left untouched
// so no spurious change signals fire.
func (e *Engine) SyncCalendarsForAccount(ctx context.Context, accountID string) error {
	remote, err := e.client.FetchCalendars(ctx, accountID)
	if err != nil {
		return fmt.Errorf("fetch calendars: %w", err)
	}

	remoteByID := make(map[string]store.Calendar, len(remote))
	for _, r := range remote {
		remoteByID[r.ID] = r
	}

	local := e.store.CalendarsForAccount(accountID)
	localByID := make(map[string]store.Calendar, len(local))
	for _, l := range local {
		localByID[l.ID] = l
	}

	for _, r := range remote {
		if _, exists := localByID[r.ID]; exists {
			e.store.UpdateCalendar(r) // no-op unless something changed
		} else {
			e.store.AddCalendar(r)
		}
	}

	for _, l := range local {
		if _, exists := remoteByID[l.ID]; !exists {
			utils.Infof("calendar %q removed on server, deleting locally", l.Name)
			e.store.DeleteCalendar(l.ID)
		}
	}

	return nil
}

// SyncCalendar runs the per-calendar reconciliation: drain pending
// deletions, push unsynced local tasks, then pull and merge remote state.
// Each step re-reads live store state rather than holding a snapshot, so a
// concurrent local edit is picked up by the next step at worst.
func (e *Engine) SyncCalendar(ctx context.Context, calendarID string) error {
	cal, ok := e.store.Calendar(calendarID)
	if !ok {
		return nil
	}

	e.drainPendingDeletions(ctx, cal)
	pushed := e.pushLocalChanges(ctx, cal)
	return e.pullRemoteChanges(ctx, cal, pushed)
}

// drainPendingDeletions pushes queued deletes for the calendar. The pending
// record is cleared whether or not the remote call succeeds: "already
// gone" and "network failure" are treated identically to avoid an
// infinite retry loop. At-most-once effort, not guaranteed delivery.
func (e *Engine) drainPendingDeletions(ctx context.Context, cal store.Calendar) {
	for _, p := range e.store.PendingDeletions(cal.ID) {
		if _, err := e.client.DeleteTask(ctx, p.AccountID, connectors.TaskRef{Href: p.Href}); err != nil {
			utils.Warnf("remote delete failed for %s: %v", p.Href, err)
		}
		e.store.ClearPendingDeletion(p.UID)
	}
}

// pushLocalChanges uploads every unsynced task in the calendar. A task
// with an href is updated in place; one without is created and adopts the
// returned href and etag. Per-task failures are logged and skipped; the
// task stays unsynced and is retried next cycle. Returns the uids whose
// push landed this pass so the pull sweep leaves them alone even when the
// server's listing does not reflect the write yet.
func (e *Engine) pushLocalChanges(ctx context.Context, cal store.Calendar) map[string]bool {
	pushed := make(map[string]bool)
	for _, t := range e.store.TasksForCalendar(cal.ID) {
		if t.Synced {
			continue
		}

		names := e.tagNames(t)
		var (
			res *connectors.PutResult
			err error
		)
		if t.Href != "" {
			res, err = e.client.UpdateTask(ctx, t.AccountID, t, names)
		} else {
			res, err = e.client.CreateTask(ctx, t.AccountID, cal, t, names)
		}
		if err != nil {
			utils.Warnf("push failed for task %q: %v", t.Title, err)
			continue
		}
		if res == nil {
			// server accepted the write but gave us nothing to record;
			// leave the task unsynced so the next pull settles it
			continue
		}
		e.store.MarkSynced(t.ID, res.Href, res.Etag)
		pushed[t.UID] = true
	}
	return pushed
}

// pullRemoteChanges merges the server's task set into the store. Conflict
// policy is last-writer-wins keyed off the synced flag: a locally edited
// task ignores the remote version until its own push resolves the cycle.
func (e *Engine) pullRemoteChanges(ctx context.Context, cal store.Calendar, justPushed map[string]bool) error {
	remote, err := e.client.FetchTasks(ctx, cal.AccountID, cal)
	if err != nil {
		return fmt.Errorf("fetch tasks: %w", err)
	}

	local := e.store.TasksForCalendar(cal.ID)
	localByUID := make(map[string]store.Task, len(local))
	for _, t := range local {
		localByUID[t.UID] = t
	}

	for _, rt := range remote {
		tagIDs := e.resolveCategories(rt.Categories)

		lt, exists := localByUID[rt.Task.UID]
		if !exists {
			t := rt.Task
			t.AccountID = cal.AccountID
			t.CalendarID = cal.ID
			t.Tags = tagIDs
			t.Synced = true
			e.store.InsertRemote(t)
			continue
		}
		delete(localByUID, rt.Task.UID)

		if rt.Task.Etag != lt.Etag {
			if !lt.Synced {
				// pending local edits win until they are pushed
				continue
			}
			merged := rt.Task
			merged.ID = lt.ID
			merged.AccountID = lt.AccountID
			merged.CalendarID = lt.CalendarID
			merged.Tags = tagIDs
			e.store.ApplyRemote(merged)
			continue
		}

		if !sameIDSet(tagIDs, lt.Tags) {
			e.store.SetTaskTags(lt.ID, tagIDs)
		}
	}

	// anything left was pushed to the server before and is now gone there.
	// uids written this pass are spared: the fetch may predate the write on
	// an eventually consistent server.
	for _, lt := range localByUID {
		if lt.Synced && !justPushed[lt.UID] {
			e.store.DeleteTaskRemote(lt.ID)
		}
	}

	return nil
}

// SyncAll runs the full cycle: reconnect every account, reconcile calendar
// lists, re-read the possibly changed calendar set, then sync each
// calendar. Offline short-circuits the whole cycle with an advisory
// message. Per-account and per-calendar failures are logged and do not
// abort the batch; the flag and timestamp are always cleared on the way
// out.
func (e *Engine) SyncAll(ctx context.Context) {
	if !e.online() {
		e.setLastError(OfflineMessage)
		return
	}

	if !e.syncing.CompareAndSwap(false, true) {
		utils.Debugf("sync already in progress, skipping")
		return
	}
	defer func() {
		e.mu.Lock()
		e.lastSyncTime = time.Now()
		e.mu.Unlock()
		e.syncing.Store(false)
	}()

	var failures []string

	e.ReconnectAccounts(ctx)

	for _, account := range e.store.Accounts() {
		if err := e.SyncCalendarsForAccount(ctx, account.ID); err != nil {
			utils.Warnf("calendar sync failed for account %s: %v", account.Name, err)
			failures = append(failures, fmt.Sprintf("%s: %v", account.Name, err))
		}
	}

	// the calendar list may have just changed; work from the fresh one
	for _, account := range e.store.Accounts() {
		for _, cal := range e.store.CalendarsForAccount(account.ID) {
			if err := e.SyncCalendar(ctx, cal.ID); err != nil {
				utils.Warnf("sync failed for calendar %q: %v", cal.Name, err)
				failures = append(failures, fmt.Sprintf("%s: %v", cal.Name, err))
			}
		}
	}

	e.setLastError(strings.Join(failures, "; "))
}

// tagNames resolves a task's tag ids into names for the CATEGORIES
// property.
func (e *Engine) tagNames(t store.Task) []string {
	var names []string
	for _, id := range t.Tags {
		if tag, ok := e.store.Tag(id); ok {
			names = append(names, tag.Name)
		}
	}
	return names
}

// resolveCategories resolves remote category names to tag ids,
// auto-creating tags for names with no case-insensitive match.
func (e *Engine) resolveCategories(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	return e.store.ResolveTagNames(names)
}

// sameIDSet compares two id slices ignoring order.
func sameIDSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]int, len(a))
	for _, id := range a {
		set[id]++
	}
	for _, id := range b {
		set[id]--
		if set[id] < 0 {
			return false
		}
	}
	return true
}
