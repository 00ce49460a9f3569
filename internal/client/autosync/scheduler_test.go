package autosync

import (
	"context"
	"errors"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaoyun/cherrynote/internal/cache"
	"github.com/shaoyun/cherrynote/internal/client/sync"
)

// fakeEngine counts invocations and can block or fail on demand.
type fakeEngine struct {
	mu        stdsync.Mutex
	fullSyncs int
	fileSyncs [][]string
	failures  int // fail this many calls, then succeed
	block     chan struct{}
}

func (f *fakeEngine) run(paths []string) (*sync.SyncResult, error) {
	f.mu.Lock()
	if paths == nil {
		f.fullSyncs++
	} else {
		f.fileSyncs = append(f.fileSyncs, paths)
	}
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if fail {
		return nil, errors.New("remote unreachable")
	}
	return sync.NewSyncResult(), nil
}

func (f *fakeEngine) FullSync(ctx context.Context) (*sync.SyncResult, error) {
	return f.run(nil)
}

func (f *fakeEngine) SyncFiles(ctx context.Context, paths []string) (*sync.SyncResult, error) {
	return f.run(paths)
}

func (f *fakeEngine) totalFullSyncs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fullSyncs
}

func (f *fakeEngine) totalFileSyncs() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.fileSyncs...)
}

var _ Engine = (*fakeEngine)(nil)

func testSchedulerConfig() *Config {
	cfg := DefaultConfig()
	cfg.SyncInterval = time.Hour // keep the periodic timer out of the way
	cfg.DebounceDelay = 30 * time.Millisecond
	cfg.SyncOnAppStart = false
	cfg.SyncOnAppResume = false
	cfg.MaxRetries = 0
	return cfg
}

func newTestScheduler(t *testing.T, cfg *Config) (*Scheduler, *fakeEngine, *cache.Cache) {
	t.Helper()

	c := cache.New(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, c.Open())
	t.Cleanup(func() { c.Close() })

	if cfg == nil {
		cfg = testSchedulerConfig()
	}
	require.NoError(t, saveConfig(c, cfg))

	engine := &fakeEngine{}
	s := NewScheduler(engine, c)
	t.Cleanup(s.Dispose)
	return s, engine, c
}

func TestScheduler_EnableDisable(t *testing.T) {
	s, _, c := newTestScheduler(t, nil)

	assert.Equal(t, StateDisabled, s.State())
	assert.ErrorIs(t, s.Disable(), ErrNotEnabled)

	require.NoError(t, s.Enable(context.Background()))
	assert.Equal(t, StateEnabled, s.State())
	assert.ErrorIs(t, s.Enable(context.Background()), ErrAlreadyEnabled)

	enabled, err := c.GetSetting(sync.SettingAutoSyncEnabled)
	require.NoError(t, err)
	assert.Equal(t, "true", enabled)

	require.NoError(t, s.Disable())
	assert.Equal(t, StateDisabled, s.State())

	enabled, err = c.GetSetting(sync.SettingAutoSyncEnabled)
	require.NoError(t, err)
	assert.Equal(t, "false", enabled)
}

func TestScheduler_DebounceCoalescesFileChanges(t *testing.T) {
	s, engine, _ := newTestScheduler(t, nil)
	require.NoError(t, s.Enable(context.Background()))

	// a burst of events inside the debounce window
	s.OnFileCreated("notes/a.md")
	s.OnFileModified("notes/b.md")
	s.OnFileModified("notes/a.md")
	s.OnFileModified("notes/c.md")

	require.Eventually(t, func() bool {
		return len(engine.totalFileSyncs()) > 0
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond) // no second batch may follow

	batches := engine.totalFileSyncs()
	require.Len(t, batches, 1)
	assert.ElementsMatch(t, []string{"notes/a.md", "notes/b.md", "notes/c.md"}, batches[0])
	assert.Zero(t, engine.totalFullSyncs())
}

func TestScheduler_SyncsAreMutuallyExclusive(t *testing.T) {
	s, engine, _ := newTestScheduler(t, nil)
	engine.block = make(chan struct{})
	require.NoError(t, s.Enable(context.Background()))

	var wg stdsync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.TriggerSync()
	}()

	require.Eventually(t, func() bool {
		return s.State() == StateSyncing
	}, 2*time.Second, 5*time.Millisecond)

	// attempts while syncing are dropped, not queued
	s.TriggerSync()
	s.TriggerSync()

	close(engine.block)
	wg.Wait()

	assert.Equal(t, 1, engine.totalFullSyncs())
	require.Eventually(t, func() bool {
		return s.State() == StateEnabled
	}, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_DisableDuringSyncStaysDisabled(t *testing.T) {
	s, engine, _ := newTestScheduler(t, nil)
	engine.block = make(chan struct{})
	require.NoError(t, s.Enable(context.Background()))

	var wg stdsync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.TriggerSync()
	}()

	require.Eventually(t, func() bool {
		return s.State() == StateSyncing
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Disable())
	assert.Equal(t, StateDisabled, s.State())

	// the in-flight sync finishing must not resurrect the scheduler
	close(engine.block)
	wg.Wait()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, StateDisabled, s.State())
	assert.False(t, s.IsEnabled())
}

func TestScheduler_DisableCancelsPendingRetry(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.MaxRetries = 2
	cfg.RetryDelay = 50 * time.Millisecond
	s, engine, _ := newTestScheduler(t, cfg)
	engine.failures = 2
	require.NoError(t, s.Enable(context.Background()))

	s.TriggerSync()
	assert.Equal(t, StateError, s.State())
	require.NoError(t, s.Disable())

	// the armed retry timer is cancelled, no sync fires after Disable
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, engine.totalFullSyncs())
	assert.Equal(t, StateDisabled, s.State())
}

func TestScheduler_PauseResume(t *testing.T) {
	s, engine, _ := newTestScheduler(t, nil)
	require.NoError(t, s.Enable(context.Background()))

	s.Pause()
	assert.Equal(t, StatePaused, s.State())

	// triggers while paused are dropped
	s.TriggerSync()
	s.OnFileModified("notes/a.md")
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, engine.totalFullSyncs())
	assert.Empty(t, engine.totalFileSyncs())

	s.Resume()
	assert.Equal(t, StateEnabled, s.State())
	s.TriggerSync()
	assert.Equal(t, 1, engine.totalFullSyncs())
}

func TestScheduler_FailedSyncEntersErrorState(t *testing.T) {
	s, engine, _ := newTestScheduler(t, nil)
	engine.failures = 1
	require.NoError(t, s.Enable(context.Background()))

	s.TriggerSync()
	assert.Equal(t, StateError, s.State())

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.TotalSyncs)
	assert.Equal(t, int64(1), stats.FailedSyncs)
	assert.NotEmpty(t, stats.LastError)

	// error state still accepts the next trigger
	s.TriggerSync()
	assert.Equal(t, StateEnabled, s.State())
	stats = s.Stats()
	assert.Equal(t, int64(2), stats.TotalSyncs)
	assert.Equal(t, int64(1), stats.SuccessfulSyncs)
	assert.Empty(t, stats.LastError)
}

func TestScheduler_RetriesAfterFailure(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.MaxRetries = 1
	cfg.RetryDelay = 20 * time.Millisecond
	s, engine, _ := newTestScheduler(t, cfg)
	engine.failures = 1
	require.NoError(t, s.Enable(context.Background()))

	s.TriggerSync()

	require.Eventually(t, func() bool {
		return engine.totalFullSyncs() == 2 && s.State() == StateEnabled
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_ExcludePatterns(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.ExcludePatterns = []string{"**/*.tmp", "drafts/**"}
	s, engine, _ := newTestScheduler(t, cfg)
	require.NoError(t, s.Enable(context.Background()))

	s.OnFileModified("notes/a.tmp")
	s.OnFileModified("drafts/wip.md")
	s.OnFileModified("notes/keep.md")

	require.Eventually(t, func() bool {
		return len(engine.totalFileSyncs()) > 0
	}, 2*time.Second, 10*time.Millisecond)

	batches := engine.totalFileSyncs()
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"notes/keep.md"}, batches[0])
}

func TestScheduler_SyncOnAppStart(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.SyncOnAppStart = true
	s, engine, _ := newTestScheduler(t, cfg)
	require.NoError(t, s.Enable(context.Background()))

	require.Eventually(t, func() bool {
		return engine.totalFullSyncs() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_PeriodicSync(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.SyncInterval = 25 * time.Millisecond
	s, engine, _ := newTestScheduler(t, cfg)
	require.NoError(t, s.Enable(context.Background()))

	require.Eventually(t, func() bool {
		return engine.totalFullSyncs() >= 2
	}, 3*time.Second, 10*time.Millisecond)

	stats := s.Stats()
	assert.GreaterOrEqual(t, stats.PeriodicSyncs, int64(2))
}

func TestScheduler_StatsPersistAcrossRestart(t *testing.T) {
	s, engine, c := newTestScheduler(t, nil)
	require.NoError(t, s.Enable(context.Background()))

	s.TriggerSync()
	s.TriggerSync()
	assert.Equal(t, 2, engine.totalFullSyncs())
	require.NoError(t, s.Disable())

	// a new scheduler over the same cache picks the stats back up
	restarted := NewScheduler(&fakeEngine{}, c)
	t.Cleanup(restarted.Dispose)
	require.NoError(t, restarted.Enable(context.Background()))

	stats := restarted.Stats()
	assert.Equal(t, int64(2), stats.TotalSyncs)
	assert.Equal(t, int64(2), stats.SuccessfulSyncs)
}

func TestScheduler_UpdateConfig(t *testing.T) {
	s, _, c := newTestScheduler(t, nil)
	require.NoError(t, s.Enable(context.Background()))

	bad := testSchedulerConfig()
	bad.SyncInterval = 0
	assert.Error(t, s.UpdateConfig(bad))

	good := testSchedulerConfig()
	good.SyncInterval = 10 * time.Minute
	require.NoError(t, s.UpdateConfig(good))
	assert.Equal(t, 10*time.Minute, s.Config().SyncInterval)

	// mirrored interval key for settings surfaces
	raw, err := c.GetSetting(sync.SettingAutoSyncInterval)
	require.NoError(t, err)
	assert.Equal(t, "600", raw)
}
