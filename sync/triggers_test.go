package sync

import (
	"context"
	stdsync "sync"
	"testing"
	"time"

	"caldavtasks/store"
)

// countingClient tracks full-cycle activity through FetchCalendars calls.
type countingClient struct {
	mockClient
	mu      stdsync.Mutex
	fetches int
}

func (c *countingClient) FetchCalendars(ctx context.Context, accountID string) ([]store.Calendar, error) {
	c.mu.Lock()
	c.fetches++
	c.mu.Unlock()
	return c.mockClient.FetchCalendars(ctx, accountID)
}

func (c *countingClient) fetchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}

func newTestScheduler(t *testing.T, settings Settings) (*countingClient, *Engine, *Scheduler) {
	t.Helper()
	s := store.New()
	s.AddAccount(store.Account{ID: "acc", Name: "test", ServerURL: "https://dav.example.com"})
	client := &countingClient{mockClient: mockClient{connected: map[string]bool{"acc": true}}}
	engine := NewEngine(s, client)
	sched := NewScheduler(engine, func() Settings { return settings })
	return client, engine, sched
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSchedulerStartupSync(t *testing.T) {
	client, _, sched := newTestScheduler(t, Settings{SyncOnStartup: true})
	sched.Start(context.Background(), true)
	defer sched.Stop()

	if client.fetchCount() != 1 {
		t.Errorf("fetches = %d, want 1 startup sync", client.fetchCount())
	}
}

func TestSchedulerStartupSyncSkippedWithoutAccounts(t *testing.T) {
	client, _, sched := newTestScheduler(t, Settings{SyncOnStartup: true})
	sched.Start(context.Background(), false)
	defer sched.Stop()

	if client.fetchCount() != 0 {
		t.Errorf("fetches = %d, want 0 when no accounts are configured", client.fetchCount())
	}
}

func TestSchedulerStartupSyncDisabled(t *testing.T) {
	client, _, sched := newTestScheduler(t, Settings{SyncOnStartup: false})
	sched.Start(context.Background(), true)
	defer sched.Stop()

	if client.fetchCount() != 0 {
		t.Errorf("fetches = %d, want 0 when startup sync is off", client.fetchCount())
	}
}

func TestSchedulerAutoSyncInterval(t *testing.T) {
	client, _, sched := newTestScheduler(t, Settings{AutoSync: true, SyncInterval: time.Millisecond})
	sched.SetPollInterval(5 * time.Millisecond)
	sched.Start(context.Background(), true)
	defer sched.Stop()

	waitFor(t, func() bool { return client.fetchCount() >= 2 },
		"auto-sync timer never fired")
}

func TestSchedulerAutoSyncOff(t *testing.T) {
	client, _, sched := newTestScheduler(t, Settings{AutoSync: false})
	sched.SetPollInterval(5 * time.Millisecond)
	sched.Start(context.Background(), true)

	time.Sleep(50 * time.Millisecond)
	sched.Stop()

	if client.fetchCount() != 0 {
		t.Errorf("fetches = %d, want 0 with auto-sync off", client.fetchCount())
	}
}

func TestSchedulerCameOnline(t *testing.T) {
	client, engine, sched := newTestScheduler(t, Settings{})
	var online stdsync.Mutex
	isOnline := false
	engine.SetOnlineCheck(func() bool {
		online.Lock()
		defer online.Unlock()
		return isOnline
	})

	sched.SetPollInterval(5 * time.Millisecond)
	sched.Start(context.Background(), true)
	defer sched.Stop()

	time.Sleep(20 * time.Millisecond)
	if client.fetchCount() != 0 {
		t.Fatalf("fetches = %d, want 0 while offline", client.fetchCount())
	}

	online.Lock()
	isOnline = true
	online.Unlock()

	waitFor(t, func() bool { return client.fetchCount() >= 1 },
		"offline-to-online transition never triggered a sync")
}

func TestSchedulerTriggerManual(t *testing.T) {
	client, _, sched := newTestScheduler(t, Settings{})
	sched.TriggerManual(context.Background())
	if client.fetchCount() != 1 {
		t.Errorf("fetches = %d, want 1", client.fetchCount())
	}
}

func TestSchedulerActiveCalendarChanged(t *testing.T) {
	_, engine, sched := newTestScheduler(t, Settings{})

	// empty id means the all-tasks view; nothing to sync
	sched.ActiveCalendarChanged(context.Background(), "")

	engine.store.AddCalendar(store.Calendar{ID: "cal", Name: "Tasks", AccountID: "acc"})
	sched.ActiveCalendarChanged(context.Background(), "cal")
}

func TestSchedulerStopIdempotent(t *testing.T) {
	_, _, sched := newTestScheduler(t, Settings{})
	sched.Start(context.Background(), false)
	sched.Stop()
	sched.Stop()
}
