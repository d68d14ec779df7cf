package sync

import (
	"context"
	stdsync "sync"
	"time"

	"caldavtasks/internal/utils"
)

// Settings is the slice of the persisted settings the scheduler consults.
// It is re-read before every decision so settings changes apply without a
// restart.
type Settings struct {
	AutoSync      bool
	SyncInterval  time.Duration
	SyncOnStartup bool
}

// Scheduler drives the engine from its triggers: an initial sync at
// startup, a recurring timer while auto-sync is enabled, a manual trigger,
// an active-calendar change, and the offline-to-online transition. All
// triggers funnel into the engine, whose syncing flag makes overlapping
// requests no-ops.
type Scheduler struct {
	engine   *Engine
	settings func() Settings

	poll time.Duration

	mu        stdsync.Mutex
	lastTimer time.Time
	wasOnline bool

	stop     chan struct{}
	stopOnce stdsync.Once
	wg       stdsync.WaitGroup
}

// NewScheduler creates a scheduler. settings is called each tick for the
// live values.
func NewScheduler(engine *Engine, settings func() Settings) *Scheduler {
	return &Scheduler{
		engine:   engine,
		settings: settings,
		poll:     30 * time.Second,
		stop:     make(chan struct{}),
	}
}

// SetPollInterval shortens the wakeup interval; used by tests.
func (s *Scheduler) SetPollInterval(d time.Duration) {
	if d > 0 {
		s.poll = d
	}
}

// Start runs the startup sync when configured and accounts exist, then
// launches the timer loop. Call Stop to shut the loop down.
func (s *Scheduler) Start(ctx context.Context, haveAccounts bool) {
	s.mu.Lock()
	s.wasOnline = s.engine.Online()
	s.mu.Unlock()

	if s.settings().SyncOnStartup && haveAccounts {
		s.engine.SyncAll(ctx)
		s.markTimerRun()
	}

	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop terminates the timer loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// TriggerManual behaves exactly like a timer trigger: a full sync, skipped
// by the engine itself when offline or already syncing.
func (s *Scheduler) TriggerManual(ctx context.Context) {
	s.engine.SyncAll(ctx)
	s.markTimerRun()
}

// ActiveCalendarChanged resyncs the newly selected calendar. An empty id
// ("all tasks") syncs nothing.
func (s *Scheduler) ActiveCalendarChanged(ctx context.Context, calendarID string) {
	if calendarID == "" {
		return
	}
	if err := s.engine.SyncCalendar(ctx, calendarID); err != nil {
		utils.Warnf("active calendar sync failed: %v", err)
	}
}

func (s *Scheduler) markTimerRun() {
	s.mu.Lock()
	s.lastTimer = time.Now()
	s.mu.Unlock()
}

// loop wakes periodically to evaluate two triggers: the auto-sync interval
// and the offline-to-online transition.
func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	online := s.engine.Online()

	s.mu.Lock()
	cameOnline := online && !s.wasOnline
	s.wasOnline = online
	last := s.lastTimer
	s.mu.Unlock()

	if !online {
		return
	}

	if cameOnline {
		utils.Infof("back online, running full sync")
		s.engine.SyncAll(ctx)
		s.markTimerRun()
		return
	}

	cfg := s.settings()
	if !cfg.AutoSync || cfg.SyncInterval <= 0 {
		return
	}
	if s.engine.IsSyncing() {
		return
	}
	if time.Since(last) < cfg.SyncInterval {
		return
	}
	s.engine.SyncAll(ctx)
	s.markTimerRun()
}
