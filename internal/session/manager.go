package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/loykin/winsession/internal/history"
	"github.com/loykin/winsession/internal/index"
	"github.com/loykin/winsession/internal/metrics"
	"github.com/loykin/winsession/internal/registry"
	"github.com/loykin/winsession/internal/snapshot"
	"github.com/loykin/winsession/internal/store"
	"github.com/loykin/winsession/internal/store/memory"
)

// DefaultKey is the store key holding the saved window snapshot.
const DefaultKey = "openWindows"

// historyTimeout bounds a single event delivery to all sinks.
const historyTimeout = 5 * time.Second

// historyQueue is how many events may wait for the delivery worker before
// new ones are dropped.
const historyQueue = 256

// Options configures a Manager. Zero values fall back to an in-memory store,
// DefaultKey, the default snapshot limits and slog.Default.
type Options struct {
	Store    store.Store
	Key      string
	TestMode bool // save under a per-process key so real sessions are left alone
	Limits   snapshot.Limits
	Logger   *slog.Logger
	Sinks    []history.Sink
}

// Manager owns the window/tab registry for one process and persists it as a
// single snapshot under one store key.
type Manager struct {
	reg    *registry.Registry
	alloc  *index.Allocator
	st     store.Store
	key    string
	limits snapshot.Limits
	log    *slog.Logger

	mu     sync.RWMutex
	sinks  []history.Sink
	events chan history.Event
	done   chan struct{}
	closed bool

	restored  atomic.Bool
	allOpened atomic.Bool
}

func New(opts Options) *Manager {
	st := opts.Store
	if st == nil {
		st = memory.New()
	}
	key := opts.Key
	if key == "" {
		key = DefaultKey
	}
	if opts.TestMode {
		key = TestKey(key)
	}
	lim := opts.Limits
	if lim.MaxWindows <= 0 {
		lim.MaxWindows = snapshot.DefaultMaxWindows
	}
	if lim.MaxTabs <= 0 {
		lim.MaxTabs = snapshot.DefaultMaxTabs
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	alloc := index.New()
	m := &Manager{
		reg:    registry.New(alloc),
		alloc:  alloc,
		st:     st,
		key:    key,
		limits: lim,
		log:    log.With("component", "session"),
		sinks:  append([]history.Sink(nil), opts.Sinks...),
		events: make(chan history.Event, historyQueue),
		done:   make(chan struct{}),
	}
	go m.deliver()
	return m
}

// Close stops the history worker after it has delivered every queued event.
// Events emitted afterwards are discarded. Close is safe to call twice.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		<-m.done
		return
	}
	m.closed = true
	close(m.events)
	m.mu.Unlock()
	<-m.done
}

// TestKey derives the alternate per-process key used in test mode.
func TestKey(base string) string {
	return base + ".test-" + uuid.NewString()
}

// SetHistorySinks replaces the history sinks. Passing none clears the list.
func (m *Manager) SetHistorySinks(sinks ...history.Sink) {
	m.mu.Lock()
	m.sinks = append([]history.Sink(nil), sinks...)
	m.mu.Unlock()
}

func (m *Manager) Key() string { return m.key }

func (m *Manager) Limits() snapshot.Limits { return m.limits }

func (m *Manager) NextIndex() int { return m.alloc.Next() }

func (m *Manager) CurrentIndex() int { return m.alloc.Current() }

func (m *Manager) AddWindow(idx int, workspaceID string, c registry.Container, p registry.PaneVisibility) {
	m.reg.AddWindow(idx, workspaceID, c, p)
	m.log.Debug("window added", "index", idx, "workspace", workspaceID, "container", c)
	m.after("add_window", true, history.EventWindowAdded, idx, index.None, workspaceID, c)
}

func (m *Manager) RemoveWindow(idx int) {
	ok := m.reg.RemoveWindow(idx)
	m.log.Debug("window removed", "index", idx, "found", ok)
	if ok {
		m.after("remove_window", true, history.EventWindowRemoved, idx, index.None, "", "")
		return
	}
	metrics.IncOperation("remove_window", false)
}

// AddTab reports false when parent is not a registered window.
func (m *Manager) AddTab(parent, tab int, workspaceID string, c registry.Container, p registry.PaneVisibility) bool {
	ok := m.reg.AddTab(parent, tab, workspaceID, c, p)
	m.log.Debug("tab added", "parent", parent, "index", tab, "applied", ok)
	if ok {
		m.after("add_tab", true, history.EventTabAdded, tab, parent, workspaceID, c)
	} else {
		metrics.IncOperation("add_tab", false)
	}
	return ok
}

func (m *Manager) RemoveTab(parent, tab int) {
	ok := m.reg.RemoveTab(parent, tab)
	m.log.Debug("tab removed", "parent", parent, "index", tab, "found", ok)
	if ok {
		m.after("remove_tab", true, history.EventTabRemoved, tab, parent, "", "")
		return
	}
	metrics.IncOperation("remove_tab", false)
}

func (m *Manager) Window(idx int) (registry.Entry, bool) { return m.reg.Window(idx) }

func (m *Manager) Tab(parent, tab int) (registry.Entry, bool) { return m.reg.Tab(parent, tab) }

// AllWindows returns a copy of the index to window mapping.
func (m *Manager) AllWindows() map[int]registry.Entry { return m.reg.Windows() }

// Windows returns the windows sorted by index.
func (m *Manager) Windows() []registry.Entry { return m.reg.SortedWindows() }

func (m *Manager) Counts() (windows, tabs int) { return m.reg.Counts() }

// ConvertTabToWindow detaches a tab into a new window with a freshly minted
// index. It returns the new index and false when the tab does not exist.
func (m *Manager) ConvertTabToWindow(parent, tab int) (int, bool) {
	src, found := m.reg.Tab(parent, tab)
	idx, ok := m.reg.ConvertTabToWindow(parent, tab)
	m.log.Debug("tab detached", "parent", parent, "tab", tab, "window", idx, "applied", ok)
	if !ok {
		metrics.IncOperation("tab_to_window", false)
		return idx, false
	}
	var ws string
	var c registry.Container
	if found {
		ws, c = src.WorkspaceID, src.Container
	}
	m.after("tab_to_window", true, history.EventTabDetached, idx, parent, ws, c)
	return idx, true
}

// ConvertWindowToTab attaches a window under newParent, keeping the window's
// index as the tab key. Self-parenting and unknown indices are no-ops.
func (m *Manager) ConvertWindowToTab(windowIdx, newParent int) bool {
	src, _ := m.reg.Window(windowIdx)
	ok := m.reg.ConvertWindowToTab(windowIdx, newParent)
	m.log.Debug("window attached", "window", windowIdx, "parent", newParent, "applied", ok)
	if !ok {
		metrics.IncOperation("window_to_tab", false)
		return false
	}
	m.after("window_to_tab", true, history.EventWindowAttached, windowIdx, newParent, src.WorkspaceID, src.Container)
	return true
}

func (m *Manager) IsAllWindowsOpened() bool { return m.allOpened.Load() }

func (m *Manager) SetAllWindowsOpened(v bool) { m.allOpened.Store(v) }

// Restored reports whether RestoreOpenWindows has already run.
func (m *Manager) Restored() bool { return m.restored.Load() }

// SaveOpenWindows writes the capped, renumbered snapshot under Key. The
// registry is only locked while it is copied.
func (m *Manager) SaveOpenWindows(ctx context.Context) error {
	snap, cut := snapshot.Encode(m.reg.Snapshot(), m.limits)
	if cut.Any() {
		m.log.Info("snapshot truncated", "dropped_windows", cut.Windows, "dropped_tabs", cut.Tabs)
		metrics.AddTruncated(cut.Windows, cut.Tabs)
	}
	b, err := snapshot.Marshal(snap)
	if err != nil {
		metrics.IncSave("error")
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := m.st.Set(ctx, m.key, b); err != nil {
		metrics.IncSave("error")
		return fmt.Errorf("save snapshot %s: %w", m.key, err)
	}
	metrics.IncSave("ok")
	metrics.ObserveSnapshotBytes(len(b))
	w, t := snap.Counts()
	m.log.Info("session saved", "key", m.key, "windows", w, "tabs", t, "bytes", len(b))
	m.emit(eventWithCounts(history.EventSaved, index.None, index.None, w, t))
	return nil
}

// RestoreStatus describes what RestoreOpenWindows did.
type RestoreStatus string

const (
	RestoreRestored  RestoreStatus = "restored"
	RestoreEmpty     RestoreStatus = "empty"     // nothing saved
	RestoreMalformed RestoreStatus = "malformed" // bytes present but unusable
	RestoreFailed    RestoreStatus = "error"     // store read failed
	RestoreSkipped   RestoreStatus = "skipped"   // already restored in this process
)

type RestoreResult struct {
	Status  RestoreStatus `json:"status"`
	Windows int           `json:"windows"`
	Tabs    int           `json:"tabs"`
	// MaxIndex is the highest restored index; NextIndex returns a larger value.
	MaxIndex int    `json:"max_index"`
	Reason   string `json:"reason,omitempty"`
}

// RestoreOpenWindows loads the saved snapshot into the registry once per
// process. Missing or unusable data leaves an empty registry. Afterwards the
// allocator continues past the highest restored index.
func (m *Manager) RestoreOpenWindows(ctx context.Context) RestoreResult {
	if !m.restored.CompareAndSwap(false, true) {
		metrics.IncRestore(string(RestoreSkipped))
		return RestoreResult{Status: RestoreSkipped, MaxIndex: m.reg.MaxIndex()}
	}

	res := m.load(ctx)
	m.alloc.Reset()
	m.alloc.AdvancePast(res.MaxIndex)

	w, t := m.reg.Counts()
	metrics.SetCounts(w, t)
	metrics.IncRestore(string(res.Status))
	switch res.Status {
	case RestoreMalformed, RestoreFailed:
		m.log.Warn("session restore degraded to empty", "key", m.key, "status", res.Status, "reason", res.Reason)
	default:
		m.log.Info("session restored", "key", m.key, "status", res.Status, "windows", res.Windows, "tabs", res.Tabs)
	}
	m.emit(eventWithCounts(history.EventRestored, index.None, index.None, w, t))
	return res
}

func (m *Manager) load(ctx context.Context) RestoreResult {
	b, err := m.st.Get(ctx, m.key)
	if err != nil {
		m.reg.Clear()
		if errors.Is(err, store.ErrNotFound) {
			return RestoreResult{Status: RestoreEmpty, MaxIndex: index.None}
		}
		return RestoreResult{Status: RestoreFailed, MaxIndex: index.None, Reason: err.Error()}
	}
	saved, err := snapshot.Unmarshal(b)
	if err != nil {
		m.reg.Clear()
		return RestoreResult{Status: RestoreMalformed, MaxIndex: index.None, Reason: err.Error()}
	}
	// Stored data may predate the current limits or come from a legacy
	// list, so it is capped and renumbered the same way a save is.
	entries := saved.Entries()
	byIndex := make(map[int]registry.Entry, len(entries))
	for _, e := range entries {
		byIndex[e.Index] = e
	}
	snap, cut := snapshot.Encode(byIndex, m.limits)
	if cut.Any() {
		m.log.Info("restored snapshot truncated", "dropped_windows", cut.Windows, "dropped_tabs", cut.Tabs)
		metrics.AddTruncated(cut.Windows, cut.Tabs)
	}
	m.reg.Load(snap.Entries())
	w, t := snap.Counts()
	st := RestoreRestored
	if w == 0 {
		st = RestoreEmpty
	}
	return RestoreResult{Status: st, Windows: w, Tabs: t, MaxIndex: snap.MaxIndex()}
}

// ClearSavedWindows deletes the saved snapshot. A missing key is not an error.
func (m *Manager) ClearSavedWindows(ctx context.Context) error {
	if err := m.st.Delete(ctx, m.key); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("clear snapshot %s: %w", m.key, err)
	}
	m.log.Info("saved session cleared", "key", m.key)
	return nil
}

// SavedSnapshot reads and decodes the snapshot currently stored under Key
// without touching the registry.
func (m *Manager) SavedSnapshot(ctx context.Context) (snapshot.Snapshot, error) {
	b, err := m.st.Get(ctx, m.key)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	return snapshot.Unmarshal(b)
}

func (m *Manager) after(op string, applied bool, t history.EventType, idx, parent int, ws string, c registry.Container) {
	w, tabs := m.reg.Counts()
	metrics.IncOperation(op, applied)
	metrics.SetCounts(w, tabs)
	e := eventWithCounts(t, idx, parent, w, tabs)
	e.WorkspaceID = ws
	e.Container = string(c)
	m.emit(e)
}

func eventWithCounts(t history.EventType, idx, parent, windows, tabs int) history.Event {
	e := history.NewEvent(t)
	e.Index = idx
	e.ParentIndex = parent
	e.Windows = windows
	e.Tabs = tabs
	return e
}

// emit queues e for the delivery worker and never blocks. When the queue is
// full the event is dropped and counted.
func (m *Manager) emit(e history.Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed || len(m.sinks) == 0 {
		return
	}
	select {
	case m.events <- e:
	default:
		metrics.IncHistoryDropped()
		m.log.Debug("history queue full, event dropped", "type", e.Type)
	}
}

// deliver sends queued events to the sinks in order. Failures are logged and
// never reach the caller of the mutation.
func (m *Manager) deliver() {
	defer close(m.done)
	for e := range m.events {
		m.mu.RLock()
		sinks := history.Multi(append([]history.Sink(nil), m.sinks...))
		m.mu.RUnlock()
		if len(sinks) == 0 {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		if err := sinks.Send(ctx, e); err != nil {
			m.log.Debug("history send failed", "type", e.Type, "error", err)
		}
		cancel()
	}
}
