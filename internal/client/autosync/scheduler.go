package autosync

import (
	"context"
	"errors"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/shaoyun/cherrynote/internal/cache"
	"github.com/shaoyun/cherrynote/internal/client/sync"
	"github.com/shaoyun/cherrynote/internal/stream"
)

// State is the scheduler state machine: disabled → enabled, enabled ↔ paused,
// enabled → syncing → enabled|error, error → enabled on the next trigger.
type State string

const (
	StateDisabled State = "disabled"
	StateEnabled  State = "enabled"
	StateSyncing  State = "syncing"
	StatePaused   State = "paused"
	StateError    State = "error"
)

type Trigger string

const (
	TriggerPeriodic   Trigger = "periodic"
	TriggerFileChange Trigger = "fileChange"
	TriggerAppStart   Trigger = "appStart"
	TriggerAppResume  Trigger = "appResume"
	TriggerManual     Trigger = "manual"
)

// Event is published on the event stream after each sync attempt.
type Event struct {
	Trigger Trigger
	Paths   []string
	Result  *sync.SyncResult
	Err     error
	Time    time.Time
}

var (
	ErrAlreadyEnabled = errors.New("auto-sync already enabled")
	ErrNotEnabled     = errors.New("auto-sync not enabled")
)

// Engine is the slice of the sync engine the scheduler drives.
type Engine interface {
	FullSync(ctx context.Context) (*sync.SyncResult, error)
	SyncFiles(ctx context.Context, paths []string) (*sync.SyncResult, error)
}

// Scheduler decides when the engine runs. All triggers funnel into
// performSync, which drops attempts while a sync is already in flight.
type Scheduler struct {
	engine   Engine
	settings *cache.Cache
	ignore   *sync.IgnoreList

	mu           stdsync.Mutex
	state        State
	cfg          *Config
	stats        *Stats
	pending      mapset.Set[string]
	debounce     *time.Timer
	retryTimer   *time.Timer
	periodicStop chan struct{}
	retries      int

	ctx    context.Context
	cancel context.CancelFunc
	wg     stdsync.WaitGroup

	events *stream.Stream[*Event]
	states *stream.Stream[State]
}

func NewScheduler(engine Engine, settings *cache.Cache) *Scheduler {
	return &Scheduler{
		engine:   engine,
		settings: settings,
		state:    StateDisabled,
		cfg:      DefaultConfig(),
		stats:    &Stats{},
		pending:  mapset.NewSet[string](),
		events:   stream.New[*Event](),
		states:   stream.New[State](),
	}
}

// SetIgnoreList adds the notes-dir ignore rules on top of ExcludePatterns.
func (s *Scheduler) SetIgnoreList(ignore *sync.IgnoreList) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ignore = ignore
}

func (s *Scheduler) EventStream() *stream.Stream[*Event] { return s.events }
func (s *Scheduler) StateStream() *stream.Stream[State]  { return s.states }

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) IsEnabled() bool {
	st := s.State()
	return st != StateDisabled
}

func (s *Scheduler) IsPaused() bool  { return s.State() == StatePaused }
func (s *Scheduler) IsSyncing() bool { return s.State() == StateSyncing }

func (s *Scheduler) Config() *Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := *s.cfg
	return &cfg
}

func (s *Scheduler) Stats() *Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := *s.stats
	return &stats
}

// Enable loads persisted config and stats, starts the periodic timer and,
// if configured, kicks off an immediate app-start sync.
func (s *Scheduler) Enable(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisabled {
		s.mu.Unlock()
		return ErrAlreadyEnabled
	}

	s.cfg = loadConfig(s.settings)
	s.stats = loadStats(s.settings)
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.setStateLocked(StateEnabled)
	s.startPeriodicLocked()
	syncOnStart := s.cfg.SyncOnAppStart
	s.mu.Unlock()

	if err := s.settings.SetSetting(sync.SettingAutoSyncEnabled, "true"); err != nil {
		slog.Error("failed to persist auto-sync enabled flag", "error", err)
	}

	slog.Info("auto-sync enabled", "interval", s.Config().SyncInterval)

	if syncOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.performSync(TriggerAppStart, nil)
		}()
	}
	return nil
}

// Disable cancels all timers, persists stats and returns to disabled.
func (s *Scheduler) Disable() error {
	s.mu.Lock()
	if s.state == StateDisabled {
		s.mu.Unlock()
		return ErrNotEnabled
	}
	s.stopTimersLocked()
	if s.cancel != nil {
		s.cancel()
	}
	s.setStateLocked(StateDisabled)
	s.mu.Unlock()

	s.wg.Wait()
	if err := s.settings.SetSetting(sync.SettingAutoSyncEnabled, "false"); err != nil {
		slog.Error("failed to persist auto-sync enabled flag", "error", err)
	}
	slog.Info("auto-sync disabled")
	return nil
}

// Pause cancels timers without discarding configuration.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateEnabled && s.state != StateError {
		return
	}
	s.stopTimersLocked()
	s.setStateLocked(StatePaused)
}

// Resume restarts timers after a pause.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePaused {
		return
	}
	s.setStateLocked(StateEnabled)
	s.startPeriodicLocked()
}

// UpdateConfig validates, persists and applies a new configuration,
// restarting the periodic timer with the new interval.
func (s *Scheduler) UpdateConfig(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := saveConfig(s.settings, cfg); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	if s.state == StateEnabled || s.state == StateError {
		s.stopTimersLocked()
		s.startPeriodicLocked()
	}
	return nil
}

// TriggerSync runs a manual full sync through the same guard as every other
// trigger.
func (s *Scheduler) TriggerSync() {
	s.performSync(TriggerManual, nil)
}

// OnFileCreated, OnFileModified and OnFileDeleted add the path to the
// pending set and re-arm the single debounce timer. Any number of events
// inside the debounce window collapse into one batched sync.
func (s *Scheduler) OnFileCreated(path string)  { s.onFileChanged(path) }
func (s *Scheduler) OnFileModified(path string) { s.onFileChanged(path) }
func (s *Scheduler) OnFileDeleted(path string)  { s.onFileChanged(path) }

func (s *Scheduler) onFileChanged(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisabled || s.state == StatePaused {
		return
	}
	if !s.cfg.SyncOnFileChange {
		return
	}
	if s.isExcludedLocked(path) {
		return
	}

	s.pending.Add(path)
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.AfterFunc(s.cfg.DebounceDelay, s.flushPending)
}

// OnAppStart and OnAppResume trigger an immediate full sync when
// configured; OnAppPause only flushes statistics.
func (s *Scheduler) OnAppStart() {
	if s.Config().SyncOnAppStart {
		s.performSync(TriggerAppStart, nil)
	}
}

func (s *Scheduler) OnAppResume() {
	if s.Config().SyncOnAppResume {
		s.performSync(TriggerAppResume, nil)
	}
}

func (s *Scheduler) OnAppPause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	saveStats(s.settings, s.stats)
}

// Dispose disables the scheduler if needed and closes its streams.
func (s *Scheduler) Dispose() {
	_ = s.Disable()
	s.events.Close()
	s.states.Close()
}

func (s *Scheduler) flushPending() {
	s.mu.Lock()
	paths := s.pending.ToSlice()
	s.pending.Clear()
	s.mu.Unlock()

	if len(paths) == 0 {
		return
	}
	s.performSync(TriggerFileChange, paths)
}

// performSync is the single mutual-exclusion point for every trigger.
// Attempts while a sync is in flight (or while paused/disabled) are
// dropped, not queued; the next trigger catches up.
func (s *Scheduler) performSync(trigger Trigger, paths []string) {
	s.mu.Lock()
	if s.state != StateEnabled && s.state != StateError {
		slog.Debug("sync attempt dropped", "trigger", trigger, "state", s.state)
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.setStateLocked(StateSyncing)
	s.mu.Unlock()

	var res *sync.SyncResult
	var err error
	if len(paths) > 0 {
		res, err = s.engine.SyncFiles(ctx, paths)
	} else {
		res, err = s.engine.FullSync(ctx)
	}

	// engine-level guard rejections are dropped attempts, not failures
	dropped := errors.Is(err, sync.ErrSyncRunning) || errors.Is(err, sync.ErrSyncPaused)

	s.mu.Lock()
	if s.state != StateSyncing {
		// a Disable landed while the engine was running; its state
		// stands and this attempt finishes silently
		slog.Debug("sync finished after state change", "trigger", trigger, "state", s.state)
		s.mu.Unlock()
		return
	}
	next := StateEnabled
	switch {
	case dropped:
		slog.Debug("sync attempt rejected by engine", "trigger", trigger, "error", err)
	case err != nil:
		s.stats.record(trigger, false, err.Error())
		next = StateError
	case !res.Success:
		s.stats.record(trigger, false, res.Error)
		next = StateError
	default:
		s.stats.record(trigger, true, "")
		s.retries = 0
	}
	s.setStateLocked(next)

	// bounded retry with delay after a failed attempt
	if next == StateError && s.retries < s.cfg.MaxRetries {
		s.retries++
		s.retryTimer = time.AfterFunc(s.cfg.RetryDelay, func() {
			s.performSync(trigger, paths)
		})
	}
	s.mu.Unlock()

	if !dropped {
		s.events.Publish(&Event{Trigger: trigger, Paths: paths, Result: res, Err: err, Time: time.Now()})
	}
}

func (s *Scheduler) isExcludedLocked(path string) bool {
	for _, pattern := range s.cfg.ExcludePatterns {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	if s.ignore != nil && s.ignore.ShouldIgnore(path) {
		return true
	}
	return false
}

// setStateLocked transitions the state machine, broadcasts the new state
// and persists statistics. Caller holds s.mu.
func (s *Scheduler) setStateLocked(next State) {
	if s.state == next {
		return
	}
	s.state = next
	s.states.Publish(next)
	saveStats(s.settings, s.stats)
}

// startPeriodicLocked launches the repeating timer loop. A timer, not a
// ticker: a slow sync must not queue up ticks behind itself.
func (s *Scheduler) startPeriodicLocked() {
	stop := make(chan struct{})
	s.periodicStop = stop
	interval := s.cfg.SyncInterval

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		timer := time.NewTimer(interval)
		defer timer.Stop()
		for {
			select {
			case <-stop:
				return
			case <-timer.C:
				s.performSync(TriggerPeriodic, nil)
				timer.Reset(interval)
			}
		}
	}()
}

// stopTimersLocked cancels the periodic loop and any armed debounce timer.
// Caller holds s.mu.
func (s *Scheduler) stopTimersLocked() {
	if s.periodicStop != nil {
		close(s.periodicStop)
		s.periodicStop = nil
	}
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.pending.Clear()
}
