// Package snapshot turns the registry into a bounded, renumbered, persistable
// form and back.
//
// Encoding sorts windows by index, keeps at most Limits.MaxWindows of them and
// renumbers them 0..n-1. Tabs are sorted per window, capped at Limits.MaxTabs
// and renumbered from n upward with one counter shared by all windows, so no
// tab index collides with a window index or another tab.
package snapshot

import (
	"sort"
	"time"

	"github.com/loykin/winsession/internal/index"
	"github.com/loykin/winsession/internal/registry"
)

// Version is the envelope version written by Marshal.
const Version = 1

const (
	DefaultMaxWindows = 20
	DefaultMaxTabs    = 50
)

// Limits caps how much of the registry survives a save.
type Limits struct {
	MaxWindows int
	MaxTabs    int
}

func DefaultLimits() Limits {
	return Limits{MaxWindows: DefaultMaxWindows, MaxTabs: DefaultMaxTabs}
}

func (l Limits) normalized() Limits {
	if l.MaxWindows <= 0 {
		l.MaxWindows = DefaultMaxWindows
	}
	if l.MaxTabs <= 0 {
		l.MaxTabs = DefaultMaxTabs
	}
	return l
}

// Record is the persisted form of a window or a tab.
type Record struct {
	Index       int                     `json:"index" yaml:"index"`
	WorkspaceID string                  `json:"workspace_id" yaml:"workspace_id"`
	Container   registry.Container      `json:"container" yaml:"container"`
	Panes       registry.PaneVisibility `json:"panes" yaml:"panes"`
	ParentIndex int                     `json:"parent_index" yaml:"parent_index"`
	Tabs        []Record                `json:"tabs,omitempty" yaml:"tabs,omitempty"`
}

// Snapshot is the ordered list of windows, each with its tabs inline.
type Snapshot struct {
	Version int       `json:"version" yaml:"version"`
	SavedAt time.Time `json:"saved_at" yaml:"saved_at"`
	Windows []Record  `json:"windows" yaml:"windows"`
}

// Truncation reports what Encode dropped because of Limits.
type Truncation struct {
	Windows int
	Tabs    int
}

func (t Truncation) Any() bool { return t.Windows > 0 || t.Tabs > 0 }

// Encode builds a renumbered snapshot from the registry's windows.
func Encode(windows map[int]registry.Entry, lim Limits) (Snapshot, Truncation) {
	lim = lim.normalized()
	var cut Truncation

	keys := make([]int, 0, len(windows))
	for k := range windows {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	if len(keys) > lim.MaxWindows {
		for _, k := range keys[lim.MaxWindows:] {
			cut.Windows++
			cut.Tabs += len(windows[k].Tabs)
		}
		keys = keys[:lim.MaxWindows]
	}

	count := len(keys)
	next := count
	out := make([]Record, 0, count)
	for i, k := range keys {
		w := windows[k]
		rec := Record{
			Index:       i,
			WorkspaceID: w.WorkspaceID,
			Container:   w.Container,
			Panes:       w.Panes,
			ParentIndex: index.None,
		}

		tabKeys := make([]int, 0, len(w.Tabs))
		for tk := range w.Tabs {
			tabKeys = append(tabKeys, tk)
		}
		sort.Ints(tabKeys)
		if len(tabKeys) > lim.MaxTabs {
			cut.Tabs += len(tabKeys) - lim.MaxTabs
			tabKeys = tabKeys[:lim.MaxTabs]
		}
		if len(tabKeys) > 0 {
			rec.Tabs = make([]Record, 0, len(tabKeys))
		}
		for _, tk := range tabKeys {
			t := w.Tabs[tk]
			rec.Tabs = append(rec.Tabs, Record{
				Index:       next,
				WorkspaceID: t.WorkspaceID,
				Container:   t.Container,
				Panes:       t.Panes,
				ParentIndex: i,
			})
			next++
		}
		out = append(out, rec)
	}

	return Snapshot{Version: Version, SavedAt: time.Now().UTC(), Windows: out}, cut
}

// Entries converts the snapshot back into registry entries.
func (s Snapshot) Entries() []registry.Entry {
	out := make([]registry.Entry, 0, len(s.Windows))
	for _, w := range s.Windows {
		e := registry.Entry{
			Index:       w.Index,
			WorkspaceID: w.WorkspaceID,
			Container:   w.Container.Normalize(),
			Panes:       w.Panes,
			ParentIndex: index.None,
			Tabs:        make(map[int]registry.Entry, len(w.Tabs)),
		}
		for _, t := range w.Tabs {
			e.Tabs[t.Index] = registry.Entry{
				Index:       t.Index,
				WorkspaceID: t.WorkspaceID,
				Container:   t.Container.Normalize(),
				Panes:       t.Panes,
				ParentIndex: w.Index,
			}
		}
		out = append(out, e)
	}
	return out
}

// Counts returns the number of windows and the total number of tabs.
func (s Snapshot) Counts() (windows, tabs int) {
	for _, w := range s.Windows {
		tabs += len(w.Tabs)
	}
	return len(s.Windows), tabs
}

// MaxIndex is the highest window or tab index in the snapshot, or
// index.None when it is empty.
func (s Snapshot) MaxIndex() int {
	m := index.None
	for _, w := range s.Windows {
		if w.Index > m {
			m = w.Index
		}
		for _, t := range w.Tabs {
			if t.Index > m {
				m = t.Index
			}
		}
	}
	return m
}
