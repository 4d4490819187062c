package registry

import (
	"fmt"

	"github.com/loykin/winsession/internal/index"
)

// Container tells which data replica a window or tab is bound to.
type Container string

const (
	ContainerLocal Container = "local"
	ContainerCloud Container = "cloud"
)

func (c Container) Valid() bool {
	return c == ContainerLocal || c == ContainerCloud
}

// Normalize maps anything other than cloud, including the zero value, to
// local. Entries only ever hold one of the two known values.
func (c Container) Normalize() Container {
	if c == ContainerCloud {
		return ContainerCloud
	}
	return ContainerLocal
}

// ParseContainer accepts "local" or "cloud". An empty string means local.
func ParseContainer(s string) (Container, error) {
	switch Container(s) {
	case "", ContainerLocal:
		return ContainerLocal, nil
	case ContainerCloud:
		return ContainerCloud, nil
	}
	return "", fmt.Errorf("unknown container %q", s)
}

// PaneVisibility is the per-window (or per-tab) pane state.
type PaneVisibility struct {
	ShowNavigator bool `json:"show_navigator" yaml:"show_navigator"`
	ShowInspector bool `json:"show_inspector" yaml:"show_inspector"`
	ShowCodeView  bool `json:"show_code_view" yaml:"show_code_view"`
}

// Entry describes one window or one tab.
// ParentIndex is index.None for windows; for tabs it is the index of the
// owning window. Tabs is only populated on windows.
type Entry struct {
	Index       int            `json:"index"`
	WorkspaceID string         `json:"workspace_id"`
	Container   Container      `json:"container"`
	Panes       PaneVisibility `json:"panes"`
	ParentIndex int            `json:"parent_index"`
	Tabs        map[int]Entry  `json:"tabs,omitempty"`
}

func (e Entry) IsWindow() bool { return e.ParentIndex == index.None }

// Clone returns a deep copy so callers never share the registry's maps.
func (e Entry) Clone() Entry {
	out := e
	if e.Tabs != nil {
		out.Tabs = make(map[int]Entry, len(e.Tabs))
		for k, t := range e.Tabs {
			t.Tabs = nil
			out.Tabs[k] = t
		}
	}
	return out
}

func newWindow(idx int, workspaceID string, c Container, p PaneVisibility) Entry {
	return Entry{
		Index:       idx,
		WorkspaceID: workspaceID,
		Container:   c.Normalize(),
		Panes:       p,
		ParentIndex: index.None,
		Tabs:        map[int]Entry{},
	}
}

func newTab(parent, idx int, workspaceID string, c Container, p PaneVisibility) Entry {
	return Entry{
		Index:       idx,
		WorkspaceID: workspaceID,
		Container:   c.Normalize(),
		Panes:       p,
		ParentIndex: parent,
	}
}
