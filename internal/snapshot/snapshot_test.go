package snapshot

import (
	"sort"
	"testing"

	"github.com/loykin/winsession/internal/index"
	"github.com/loykin/winsession/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var panes = registry.PaneVisibility{ShowNavigator: true, ShowCodeView: true}

func roundTrip(t *testing.T, r *registry.Registry, lim Limits) *registry.Registry {
	t.Helper()
	snap, _ := Encode(r.Snapshot(), lim)
	b, err := Marshal(snap)
	require.NoError(t, err)
	got, err := Unmarshal(b)
	require.NoError(t, err)
	out := registry.New(nil)
	out.Load(got.Entries())
	return out
}

func TestEncodeDecodeScenario(t *testing.T) {
	alloc := index.New()
	r := registry.New(alloc)
	w0 := alloc.Next()
	r.AddWindow(w0, "ws0", registry.ContainerLocal, panes)
	t1, t2, t3 := alloc.Next(), alloc.Next(), alloc.Next()
	r.AddTab(w0, t1, "ws0", registry.ContainerLocal, panes)
	r.AddTab(w0, t2, "ws0", registry.ContainerCloud, panes)
	r.AddTab(w0, t3, "ws0", registry.ContainerLocal, panes)
	w4 := alloc.Next()
	r.AddWindow(w4, "ws4", registry.ContainerCloud, registry.PaneVisibility{})
	r.RemoveTab(w0, t1)

	out := roundTrip(t, r, DefaultLimits())
	all := out.Windows()
	require.Len(t, all, 2)

	first := all[0]
	require.Len(t, first.Tabs, 2)
	keys := make([]int, 0)
	for k, tab := range first.Tabs {
		keys = append(keys, k)
		assert.Equal(t, 0, tab.ParentIndex)
	}
	sort.Ints(keys)
	assert.Equal(t, []int{2, 3}, keys, "tabs renumbered from the window count")
	assert.Equal(t, registry.ContainerCloud, first.Tabs[2].Container)

	second, ok := all[1]
	require.True(t, ok)
	assert.Equal(t, "ws4", second.WorkspaceID)
	_, ok = all[4]
	assert.False(t, ok, "old index 4 is gone after renumbering")
}

func TestEncodeRenumbersContiguously(t *testing.T) {
	windows := map[int]registry.Entry{}
	// sparse indices with gaps
	for _, w := range []int{3, 10, 42} {
		e := registry.Entry{Index: w, WorkspaceID: "ws", Container: registry.ContainerLocal, ParentIndex: index.None, Tabs: map[int]registry.Entry{}}
		for _, tb := range []int{w*100 + 7, w*100 + 1} {
			e.Tabs[tb] = registry.Entry{Index: tb, Container: registry.ContainerLocal, ParentIndex: w}
		}
		windows[w] = e
	}

	snap, cut := Encode(windows, DefaultLimits())
	assert.False(t, cut.Any())
	wins, tabs := snap.Counts()
	require.Equal(t, 3, wins)
	require.Equal(t, 6, tabs)

	next := wins
	for i, w := range snap.Windows {
		assert.Equal(t, i, w.Index)
		assert.Equal(t, index.None, w.ParentIndex)
		for _, tab := range w.Tabs {
			assert.Equal(t, next, tab.Index)
			assert.Equal(t, i, tab.ParentIndex)
			next++
		}
	}
	assert.Equal(t, wins+tabs-1, snap.MaxIndex())
	require.NoError(t, snap.Validate())
}

func TestEncodeKeepsSortedOrder(t *testing.T) {
	windows := map[int]registry.Entry{
		9: {Index: 9, WorkspaceID: "nine", Container: registry.ContainerLocal, ParentIndex: index.None},
		2: {Index: 2, WorkspaceID: "two", Container: registry.ContainerLocal, ParentIndex: index.None},
		5: {Index: 5, WorkspaceID: "five", Container: registry.ContainerLocal, ParentIndex: index.None},
	}
	snap, _ := Encode(windows, DefaultLimits())
	got := []string{}
	for _, w := range snap.Windows {
		got = append(got, w.WorkspaceID)
	}
	assert.Equal(t, []string{"two", "five", "nine"}, got)
}

func TestEncodeTruncatesWindows(t *testing.T) {
	r := registry.New(nil)
	for i := 0; i < DefaultMaxWindows+5; i++ {
		r.AddWindow(i, "ws", registry.ContainerLocal, panes)
	}
	r.AddTab(DefaultMaxWindows+1, 1000, "ws", registry.ContainerLocal, panes)

	snap, cut := Encode(r.Snapshot(), DefaultLimits())
	wins, _ := snap.Counts()
	assert.Equal(t, DefaultMaxWindows, wins)
	assert.Equal(t, 5, cut.Windows)
	assert.Equal(t, 1, cut.Tabs)
	assert.Equal(t, DefaultMaxWindows-1, snap.Windows[len(snap.Windows)-1].Index)
}

func TestEncodeTruncatesTabs(t *testing.T) {
	r := registry.New(nil)
	r.AddWindow(0, "ws", registry.ContainerLocal, panes)
	for i := 1; i <= 7; i++ {
		r.AddTab(0, i, "ws", registry.ContainerLocal, panes)
	}
	snap, cut := Encode(r.Snapshot(), Limits{MaxWindows: 5, MaxTabs: 4})
	require.Len(t, snap.Windows, 1)
	assert.Len(t, snap.Windows[0].Tabs, 4)
	assert.Equal(t, 3, cut.Tabs)
}

func TestEncodeEmpty(t *testing.T) {
	snap, cut := Encode(map[int]registry.Entry{}, DefaultLimits())
	assert.Empty(t, snap.Windows)
	assert.False(t, cut.Any())
	assert.Equal(t, index.None, snap.MaxIndex())

	b, err := Marshal(snap)
	require.NoError(t, err)
	got, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Empty(t, got.Windows)
}

func TestUnmarshalLegacyList(t *testing.T) {
	b := []byte(`[{"index":0,"workspace_id":"a","container":"local","panes":{"show_navigator":true},"parent_index":-1,
		"tabs":[{"index":1,"workspace_id":"a","container":"cloud","parent_index":0}]}]`)
	s, err := Unmarshal(b)
	require.NoError(t, err)
	wins, tabs := s.Counts()
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, tabs)
	assert.True(t, s.Windows[0].Panes.ShowNavigator)
}

func TestUnsetContainerReadsAsLocal(t *testing.T) {
	b := []byte(`{"version":1,"windows":[{"index":0,"container":"","parent_index":-1,
		"tabs":[{"index":1,"parent_index":0}]}]}`)
	s, err := Unmarshal(b)
	require.NoError(t, err)
	entries := s.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, registry.ContainerLocal, entries[0].Container)
	assert.Equal(t, registry.ContainerLocal, entries[0].Tabs[1].Container)
}

func TestUnmarshalRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":          ``,
		"garbage":        `not json`,
		"truncated":      `{"version":1,"windows":[`,
		"bad version":    `{"version":99,"windows":[]}`,
		"window parent":  `{"version":1,"windows":[{"index":0,"container":"local","parent_index":3}]}`,
		"bad container":  `{"version":1,"windows":[{"index":0,"container":"attic","parent_index":-1}]}`,
		"tab parent":     `{"version":1,"windows":[{"index":0,"container":"local","parent_index":-1,"tabs":[{"index":1,"container":"local","parent_index":5}]}]}`,
		"nested tabs":    `{"version":1,"windows":[{"index":0,"container":"local","parent_index":-1,"tabs":[{"index":1,"container":"local","parent_index":0,"tabs":[{"index":2,"container":"local","parent_index":1}]}]}]}`,
		"duplicate":      `{"version":1,"windows":[{"index":0,"container":"local","parent_index":-1,"tabs":[{"index":0,"container":"local","parent_index":0}]}]}`,
		"negative index": `{"version":1,"windows":[{"index":-4,"container":"local","parent_index":-1}]}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Unmarshal([]byte(in))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func FuzzUnmarshal(f *testing.F) {
	f.Add([]byte(`{"version":1,"windows":[]}`))
	f.Add([]byte(`[{"index":0,"container":"local","parent_index":-1}]`))
	f.Add([]byte(`{`))
	f.Fuzz(func(t *testing.T, b []byte) {
		s, err := Unmarshal(b)
		if err != nil {
			return
		}
		if err := s.Validate(); err != nil {
			t.Fatalf("accepted snapshot fails validation: %v", err)
		}
	})
}
