package client

// Panes mirrors the per-window pane visibility.
type Panes struct {
	ShowNavigator bool `json:"show_navigator"`
	ShowInspector bool `json:"show_inspector"`
	ShowCodeView  bool `json:"show_code_view"`
}

// Window is a window (or, inside Tabs, a tab) as returned by the daemon.
type Window struct {
	Index       int      `json:"index"`
	WorkspaceID string   `json:"workspace_id"`
	Container   string   `json:"container"`
	Panes       Panes    `json:"panes"`
	ParentIndex int      `json:"parent_index"`
	Tabs        []Window `json:"tabs,omitempty"`
}

// EntryRequest creates or updates a window or tab. A nil Index asks the
// daemon to mint one.
type EntryRequest struct {
	Index       *int   `json:"index,omitempty"`
	WorkspaceID string `json:"workspace_id"`
	Container   string `json:"container,omitempty"` // local (default) or cloud
	Panes       *Panes `json:"panes,omitempty"`
}

// RestoreResult reports what a restore call did.
type RestoreResult struct {
	Status   string `json:"status"`
	Windows  int    `json:"windows"`
	Tabs     int    `json:"tabs"`
	MaxIndex int    `json:"max_index"`
	Reason   string `json:"reason,omitempty"`
}

// ErrorResponse represents API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

type indexResponse struct {
	Index int `json:"index"`
}

type openedBody struct {
	Opened bool `json:"opened"`
}
