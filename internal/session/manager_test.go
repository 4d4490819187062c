package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loykin/winsession/internal/history"
	"github.com/loykin/winsession/internal/index"
	"github.com/loykin/winsession/internal/registry"
	"github.com/loykin/winsession/internal/snapshot"
	"github.com/loykin/winsession/internal/store"
	"github.com/loykin/winsession/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var panes = registry.PaneVisibility{ShowNavigator: true, ShowCodeView: true}

type recSink struct {
	mu     sync.Mutex
	events []history.Event
}

func (r *recSink) Send(_ context.Context, e history.Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *recSink) types() []history.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]history.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type slowSink struct {
	delay time.Duration
	recSink
}

func (s *slowSink) Send(ctx context.Context, e history.Event) error {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.recSink.Send(ctx, e)
}

type failStore struct {
	*memory.DB
	getErr, setErr error
}

func (f failStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.DB.Get(ctx, key)
}

func (f failStore) Set(ctx context.Context, key string, v []byte) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.DB.Set(ctx, key, v)
}

func TestSaveRestoreRenumbers(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	m := New(Options{Store: st})

	m.AddWindow(0, "ws", registry.ContainerLocal, panes)
	m.AddTab(0, 1, "ws", registry.ContainerLocal, panes)
	m.AddTab(0, 2, "ws", registry.ContainerLocal, panes)
	m.AddTab(0, 3, "ws", registry.ContainerCloud, panes)
	m.RemoveTab(0, 2)
	m.AddWindow(4, "other", registry.ContainerLocal, panes)
	require.NoError(t, m.SaveOpenWindows(ctx))

	// a fresh process against the same store
	next := New(Options{Store: st})
	res := next.RestoreOpenWindows(ctx)
	assert.Equal(t, RestoreRestored, res.Status)
	assert.Equal(t, 2, res.Windows)
	assert.Equal(t, 2, res.Tabs)
	assert.Equal(t, 3, res.MaxIndex)

	wins := next.Windows()
	require.Len(t, wins, 2)
	assert.Equal(t, 0, wins[0].Index)
	assert.Equal(t, 1, wins[1].Index)
	assert.Equal(t, "other", wins[1].WorkspaceID)
	require.Len(t, wins[0].Tabs, 2)
	for _, k := range []int{2, 3} {
		tab, ok := next.Tab(0, k)
		require.True(t, ok, "tab %d", k)
		assert.Equal(t, 0, tab.ParentIndex)
	}
	_, ok := next.Tab(0, 1)
	assert.False(t, ok, "old tab index must not survive renumbering")

	assert.Equal(t, 3, next.CurrentIndex())
	assert.Equal(t, 4, next.NextIndex())
}

func TestRestoreIsOneShot(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seed := New(Options{Store: st})
	seed.AddWindow(0, "saved", registry.ContainerLocal, panes)
	require.NoError(t, seed.SaveOpenWindows(ctx))

	m := New(Options{Store: st})
	require.Equal(t, RestoreRestored, m.RestoreOpenWindows(ctx).Status)
	assert.True(t, m.Restored())

	m.AddWindow(m.NextIndex(), "live", registry.ContainerLocal, panes)
	res := m.RestoreOpenWindows(ctx)
	assert.Equal(t, RestoreSkipped, res.Status)
	w, _ := m.Counts()
	assert.Equal(t, 2, w, "second restore must not clobber live state")
}

func TestRestoreMissingAndMalformed(t *testing.T) {
	ctx := context.Background()

	m := New(Options{})
	res := m.RestoreOpenWindows(ctx)
	assert.Equal(t, RestoreEmpty, res.Status)
	assert.Equal(t, index.None, m.CurrentIndex())
	assert.Equal(t, 0, m.NextIndex())

	st := memory.New()
	require.NoError(t, st.Set(ctx, DefaultKey, []byte("{not json")))
	m = New(Options{Store: st})
	m.AddWindow(7, "pre", registry.ContainerLocal, panes)
	res = m.RestoreOpenWindows(ctx)
	assert.Equal(t, RestoreMalformed, res.Status)
	assert.NotEmpty(t, res.Reason)
	w, tabs := m.Counts()
	assert.Zero(t, w)
	assert.Zero(t, tabs)
	assert.Equal(t, 0, m.NextIndex())
}

func TestRestoreStoreErrorDegrades(t *testing.T) {
	m := New(Options{Store: failStore{DB: memory.New(), getErr: errors.New("disk gone")}})
	res := m.RestoreOpenWindows(context.Background())
	assert.Equal(t, RestoreFailed, res.Status)
	assert.Contains(t, res.Reason, "disk gone")
	w, _ := m.Counts()
	assert.Zero(t, w)
}

func TestSaveErrorIsWrapped(t *testing.T) {
	boom := errors.New("read-only")
	m := New(Options{Store: failStore{DB: memory.New(), setErr: boom}})
	m.AddWindow(0, "ws", registry.ContainerLocal, panes)
	err := m.SaveOpenWindows(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestSaveAppliesLimits(t *testing.T) {
	ctx := context.Background()
	m := New(Options{Limits: snapshot.Limits{MaxWindows: 2, MaxTabs: 1}})
	for i := 0; i < 3; i++ {
		m.AddWindow(i*10, "ws", registry.ContainerLocal, panes)
		m.AddTab(i*10, i*10+1, "ws", registry.ContainerLocal, panes)
		m.AddTab(i*10, i*10+2, "ws", registry.ContainerLocal, panes)
	}
	require.NoError(t, m.SaveOpenWindows(ctx))

	snap, err := m.SavedSnapshot(ctx)
	require.NoError(t, err)
	w, tabs := snap.Counts()
	assert.Equal(t, 2, w)
	assert.Equal(t, 2, tabs)
}

func TestRestoreAppliesLimitsToStoredData(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	legacy := `[{"index":5,"workspace_id":"a","container":"local","parent_index":-1},
		{"index":9,"workspace_id":"b","container":"local","parent_index":-1,
			"tabs":[{"index":10,"container":"local","parent_index":9},{"index":11,"container":"cloud","parent_index":9}]},
		{"index":12,"workspace_id":"c","container":"cloud","parent_index":-1}]`
	require.NoError(t, st.Set(ctx, DefaultKey, []byte(legacy)))

	m := New(Options{Store: st, Limits: snapshot.Limits{MaxWindows: 2, MaxTabs: 1}})
	res := m.RestoreOpenWindows(ctx)
	require.Equal(t, RestoreRestored, res.Status)
	assert.Equal(t, 2, res.Windows)
	assert.Equal(t, 1, res.Tabs)
	w, tabs := m.Counts()
	assert.Equal(t, 2, w)
	assert.Equal(t, 1, tabs)
	// windows 0 and 1, then the kept tab as 2
	assert.Equal(t, 2, res.MaxIndex)
	assert.Equal(t, 3, m.NextIndex())
	_, ok := m.Window(12)
	assert.False(t, ok)
}

func TestUnsetContainerSurvivesSaveAndRestore(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	m := New(Options{Store: st})
	m.AddWindow(0, "a", registry.ContainerLocal, panes)
	m.AddWindow(1, "b", registry.Container(""), panes)
	require.True(t, m.AddTab(1, 2, "b", registry.Container(""), panes))
	require.NoError(t, m.SaveOpenWindows(ctx))

	next := New(Options{Store: st})
	res := next.RestoreOpenWindows(ctx)
	require.Equal(t, RestoreRestored, res.Status, res.Reason)
	assert.Equal(t, 2, res.Windows)
	assert.Equal(t, 1, res.Tabs)
	w, ok := next.Window(1)
	require.True(t, ok)
	assert.Equal(t, registry.ContainerLocal, w.Container)
}

func TestSlowHistorySinkDoesNotBlockMutations(t *testing.T) {
	sink := &slowSink{delay: 300 * time.Millisecond}
	m := New(Options{Sinks: []history.Sink{sink}})

	start := time.Now()
	for i := 0; i < 5; i++ {
		m.AddWindow(i, "ws", registry.ContainerLocal, panes)
	}
	m.RemoveWindow(4)
	if d := time.Since(start); d > 200*time.Millisecond {
		t.Fatalf("mutations took %v with a slow sink attached", d)
	}
	w, _ := m.Counts()
	assert.Equal(t, 4, w)

	// Close waits for queued events to reach the sink.
	m.Close()
	assert.Len(t, sink.types(), 6)
	m.Close()

	m.AddWindow(9, "ws", registry.ContainerLocal, panes)
	assert.Len(t, sink.types(), 6, "events after Close are discarded")
}

func TestClearSavedWindows(t *testing.T) {
	ctx := context.Background()
	m := New(Options{})
	m.AddWindow(0, "ws", registry.ContainerLocal, panes)
	require.NoError(t, m.SaveOpenWindows(ctx))
	require.NoError(t, m.ClearSavedWindows(ctx))
	_, err := m.SavedSnapshot(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)
	// clearing twice is fine
	require.NoError(t, m.ClearSavedWindows(ctx))
}

func TestTestModeKey(t *testing.T) {
	m := New(Options{TestMode: true})
	assert.True(t, strings.HasPrefix(m.Key(), DefaultKey+".test-"))
	other := New(Options{TestMode: true})
	assert.NotEqual(t, m.Key(), other.Key())
	assert.Equal(t, "custom", New(Options{Key: "custom"}).Key())
}

func TestConversionsAndHistory(t *testing.T) {
	sink := &recSink{}
	m := New(Options{Sinks: []history.Sink{sink}})

	m.AddWindow(m.NextIndex(), "ws", registry.ContainerLocal, panes) // 0
	m.AddWindow(m.NextIndex(), "ws", registry.ContainerLocal, panes) // 1
	m.AddWindow(m.NextIndex(), "ws", registry.ContainerCloud, panes) // 2

	require.True(t, m.ConvertWindowToTab(2, 1))
	tab, ok := m.Tab(1, 2)
	require.True(t, ok)
	assert.Equal(t, registry.ContainerCloud, tab.Container)

	idx, ok := m.ConvertTabToWindow(1, 2)
	require.True(t, ok)
	assert.NotEqual(t, 2, idx)
	w, _ := m.Counts()
	assert.Equal(t, 3, w)

	assert.False(t, m.ConvertWindowToTab(0, 0), "self parent")
	_, ok = m.ConvertTabToWindow(1, 99)
	assert.False(t, ok)
	assert.False(t, m.AddTab(42, 43, "ws", registry.ContainerLocal, panes))
	m.RemoveWindow(0)
	m.Close()

	assert.Equal(t, []history.EventType{
		history.EventWindowAdded, history.EventWindowAdded, history.EventWindowAdded,
		history.EventWindowAttached, history.EventTabDetached, history.EventWindowRemoved,
	}, sink.types())

	last := sink.events[len(sink.events)-1]
	assert.Equal(t, 0, last.Index)
	assert.Equal(t, 2, last.Windows)
}

func TestAllWindowsOpenedFlag(t *testing.T) {
	m := New(Options{})
	assert.False(t, m.IsAllWindowsOpened())
	m.SetAllWindowsOpened(true)
	assert.True(t, m.IsAllWindowsOpened())
}

func TestConcurrentOpenClose(t *testing.T) {
	m := New(Options{})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				w := m.NextIndex()
				m.AddWindow(w, "ws", registry.ContainerLocal, panes)
				m.AddTab(w, m.NextIndex(), "ws", registry.ContainerLocal, panes)
				if i%2 == 0 {
					m.RemoveWindow(w)
				}
			}
		}()
	}
	wg.Wait()
	w, tabs := m.Counts()
	assert.Equal(t, 400, w)
	assert.Equal(t, 400, tabs)
}
