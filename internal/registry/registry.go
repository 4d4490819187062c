package registry

import (
	"sort"
	"sync"

	"github.com/loykin/winsession/internal/index"
)

// Registry tracks open windows and the tabs nested under them.
// All access goes through its methods; values handed out are copies.
type Registry struct {
	mu      sync.RWMutex
	alloc   *index.Allocator
	windows map[int]Entry
}

// New returns an empty registry that mints new indices from alloc.
// A nil alloc gets a fresh allocator.
func New(alloc *index.Allocator) *Registry {
	if alloc == nil {
		alloc = index.New()
	}
	return &Registry{
		alloc:   alloc,
		windows: make(map[int]Entry),
	}
}

func (r *Registry) Allocator() *index.Allocator { return r.alloc }

// AddWindow inserts the window at idx, or updates its fields when it is
// already registered. Tabs of an existing window are kept.
func (r *Registry) AddWindow(idx int, workspaceID string, c Container, p PaneVisibility) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := newWindow(idx, workspaceID, c, p)
	if old, ok := r.windows[idx]; ok {
		w.Tabs = old.Tabs
	}
	r.windows[idx] = w
}

// RemoveWindow drops the window and every tab under it.
func (r *Registry) RemoveWindow(idx int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.windows[idx]; !ok {
		return false
	}
	delete(r.windows, idx)
	return true
}

// AddTab inserts or updates a tab under parent. It is ignored when parent
// is not a registered window.
func (r *Registry) AddTab(parent, tab int, workspaceID string, c Container, p PaneVisibility) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addTabLocked(parent, newTab(parent, tab, workspaceID, c, p))
}

func (r *Registry) addTabLocked(parent int, t Entry) bool {
	w, ok := r.windows[parent]
	if !ok {
		return false
	}
	if w.Tabs == nil {
		w.Tabs = make(map[int]Entry)
	}
	t.ParentIndex = parent
	t.Tabs = nil
	w.Tabs[t.Index] = t
	r.windows[parent] = w
	return true
}

func (r *Registry) RemoveTab(parent, tab int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeTabLocked(parent, tab)
}

func (r *Registry) removeTabLocked(parent, tab int) bool {
	w, ok := r.windows[parent]
	if !ok {
		return false
	}
	if _, ok := w.Tabs[tab]; !ok {
		return false
	}
	delete(w.Tabs, tab)
	return true
}

func (r *Registry) Window(idx int) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.windows[idx]
	if !ok {
		return Entry{}, false
	}
	return w.Clone(), true
}

func (r *Registry) Tab(parent, tab int) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.windows[parent]
	if !ok {
		return Entry{}, false
	}
	t, ok := w.Tabs[tab]
	return t, ok
}

// Windows returns a copy of every window keyed by index.
func (r *Registry) Windows() map[int]Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int]Entry, len(r.windows))
	for k, w := range r.windows {
		out[k] = w.Clone()
	}
	return out
}

// SortedWindows returns the windows ordered by index.
func (r *Registry) SortedWindows() []Entry {
	all := r.Windows()
	out := make([]Entry, 0, len(all))
	for _, w := range all {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Counts reports the number of windows and the number of tabs across them.
func (r *Registry) Counts() (windows, tabs int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.windows {
		tabs += len(w.Tabs)
	}
	return len(r.windows), tabs
}

// ConvertTabToWindow promotes a tab to a top-level window under a freshly
// minted index. The tab's old index is not reused.
func (r *Registry) ConvertTabToWindow(parent, tab int) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[parent]
	if !ok {
		return 0, false
	}
	t, ok := w.Tabs[tab]
	if !ok {
		return 0, false
	}
	idx := r.alloc.Next()
	r.windows[idx] = newWindow(idx, t.WorkspaceID, t.Container, t.Panes)
	r.removeTabLocked(parent, tab)
	return idx, true
}

// ConvertWindowToTab moves a window under newParent, keyed by its current
// window index. The window's own tabs are discarded. Self-parenting and
// a missing window or parent leave the registry untouched.
func (r *Registry) ConvertWindowToTab(windowIdx, newParent int) bool {
	if windowIdx == newParent {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[windowIdx]
	if !ok {
		return false
	}
	if _, ok := r.windows[newParent]; !ok {
		return false
	}
	t := newTab(newParent, windowIdx, w.WorkspaceID, w.Container, w.Panes)
	r.addTabLocked(newParent, t)
	delete(r.windows, windowIdx)
	return true
}

// Snapshot returns a deep copy of the windows for serialization.
func (r *Registry) Snapshot() map[int]Entry { return r.Windows() }

// Load replaces the registry contents with windows, keyed by each
// entry's own index.
func (r *Registry) Load(windows []Entry) {
	next := make(map[int]Entry, len(windows))
	for _, w := range windows {
		w = w.Clone()
		w.ParentIndex = index.None
		if w.Tabs == nil {
			w.Tabs = make(map[int]Entry)
		}
		next[w.Index] = w
	}
	r.mu.Lock()
	r.windows = next
	r.mu.Unlock()
}

func (r *Registry) Clear() {
	r.mu.Lock()
	r.windows = make(map[int]Entry)
	r.mu.Unlock()
}

// MaxIndex returns the highest window or tab index present, or index.None
// when the registry is empty.
func (r *Registry) MaxIndex() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := index.None
	for k, w := range r.windows {
		if k > m {
			m = k
		}
		for tk := range w.Tabs {
			if tk > m {
				m = tk
			}
		}
	}
	return m
}
