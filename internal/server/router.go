package server

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/winsession/internal/registry"
	"github.com/loykin/winsession/internal/session"
)

// Router provides embeddable HTTP handlers for the window/tab registry.
// Endpoints (relative to basePath):
//   GET    /windows                          sorted windows with their tabs
//   POST   /windows                          body: entryReq; index optional (minted when absent)
//   GET    /windows/:index
//   DELETE /windows/:index
//   PUT    /windows/:index/panes             body: entryReq; updates an existing window in place
//   POST   /windows/:index/tabs              body: entryReq; index optional
//   DELETE /windows/:index/tabs/:tab
//   POST   /windows/:index/tabs/:tab/detach  tab becomes a window with a new index
//   POST   /windows/:index/attach?parent=N   window becomes a tab of N
//   POST   /index/next, GET /index/current
//   POST   /session/save, POST /session/restore
//   GET    /session/opened, PUT /session/opened  body: {"opened": bool}
//   GET    /metrics                          only when a metrics handler is set
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	mgr      *session.Manager
	basePath string
	metrics  http.Handler
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/windows, /api/session/save, ...
func NewRouter(mgr *session.Manager, basePath string) *Router {
	bp := sanitizeBase(basePath)
	return &Router{mgr: mgr, basePath: bp}
}

// WithMetrics exposes h under {basePath}/metrics.
func (r *Router) WithMetrics(h http.Handler) *Router {
	r.metrics = h
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/windows", r.handleListWindows)
	group.POST("/windows", r.handleAddWindow)
	group.GET("/windows/:index", r.handleGetWindow)
	group.DELETE("/windows/:index", r.handleRemoveWindow)
	group.PUT("/windows/:index/panes", r.handleUpdateWindow)
	group.POST("/windows/:index/tabs", r.handleAddTab)
	group.DELETE("/windows/:index/tabs/:tab", r.handleRemoveTab)
	group.POST("/windows/:index/tabs/:tab/detach", r.handleDetachTab)
	group.POST("/windows/:index/attach", r.handleAttachWindow)
	group.POST("/index/next", r.handleNextIndex)
	group.GET("/index/current", r.handleCurrentIndex)
	group.POST("/session/save", r.handleSave)
	group.POST("/session/restore", r.handleRestore)
	group.GET("/session/opened", r.handleGetOpened)
	group.PUT("/session/opened", r.handleSetOpened)
	if r.metrics != nil {
		group.GET("/metrics", gin.WrapH(r.metrics))
	}
	return g
}

// NewServer starts a standalone HTTP server on addr serving h.
// Shut it down with http.Server's Shutdown or Close.
func NewServer(addr string, h http.Handler) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

// --- Wire types ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type indexResp struct {
	Index int `json:"index"`
}

type openedReq struct {
	Opened bool `json:"opened"`
}

// entryReq is the body for creating or updating a window or tab.
type entryReq struct {
	Index       *int                     `json:"index,omitempty"`
	WorkspaceID string                   `json:"workspace_id"`
	Container   string                   `json:"container"`
	Panes       *registry.PaneVisibility `json:"panes,omitempty"`
}

// entryView is an Entry with its tabs as a list ordered by index.
type entryView struct {
	Index       int                     `json:"index"`
	WorkspaceID string                  `json:"workspace_id"`
	Container   registry.Container      `json:"container"`
	Panes       registry.PaneVisibility `json:"panes"`
	ParentIndex int                     `json:"parent_index"`
	Tabs        []entryView             `json:"tabs,omitempty"`
}

func toView(e registry.Entry) entryView {
	v := entryView{
		Index:       e.Index,
		WorkspaceID: e.WorkspaceID,
		Container:   e.Container,
		Panes:       e.Panes,
		ParentIndex: e.ParentIndex,
	}
	if len(e.Tabs) > 0 {
		keys := make([]int, 0, len(e.Tabs))
		for k := range e.Tabs {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		v.Tabs = make([]entryView, 0, len(keys))
		for _, k := range keys {
			v.Tabs = append(v.Tabs, toView(e.Tabs[k]))
		}
	}
	return v
}

// --- Handlers ---

func (r *Router) bindEntry(c *gin.Context) (entryReq, registry.Container, bool) {
	var req entryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return req, "", false
	}
	if !isValidWorkspaceID(req.WorkspaceID) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid workspace_id: printable text up to 256 bytes"})
		return req, "", false
	}
	if req.Index != nil && *req.Index < 0 {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "index must be non-negative"})
		return req, "", false
	}
	ct, err := registry.ParseContainer(req.Container)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return req, "", false
	}
	return req, ct, true
}

func pathIndex(c *gin.Context, name string) (int, bool) {
	n, ok := parseIndex(c.Param(name))
	if !ok {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid " + name + ": must be a non-negative integer"})
	}
	return n, ok
}

func (r *Router) handleListWindows(c *gin.Context) {
	wins := r.mgr.Windows()
	out := make([]entryView, 0, len(wins))
	for _, w := range wins {
		out = append(out, toView(w))
	}
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) handleGetWindow(c *gin.Context) {
	idx, ok := pathIndex(c, "index")
	if !ok {
		return
	}
	w, found := r.mgr.Window(idx)
	if !found {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "window not found"})
		return
	}
	writeJSON(c, http.StatusOK, toView(w))
}

func (r *Router) handleAddWindow(c *gin.Context) {
	req, ct, ok := r.bindEntry(c)
	if !ok {
		return
	}
	var idx int
	if req.Index != nil {
		idx = *req.Index
	} else {
		idx = r.mgr.NextIndex()
	}
	var p registry.PaneVisibility
	if req.Panes != nil {
		p = *req.Panes
	}
	r.mgr.AddWindow(idx, req.WorkspaceID, ct, p)
	writeJSON(c, http.StatusCreated, indexResp{Index: idx})
}

func (r *Router) handleUpdateWindow(c *gin.Context) {
	idx, ok := pathIndex(c, "index")
	if !ok {
		return
	}
	req, ct, ok := r.bindEntry(c)
	if !ok {
		return
	}
	cur, found := r.mgr.Window(idx)
	if !found {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "window not found"})
		return
	}
	ws := cur.WorkspaceID
	if req.WorkspaceID != "" {
		ws = req.WorkspaceID
	}
	if req.Container == "" {
		ct = cur.Container
	}
	p := cur.Panes
	if req.Panes != nil {
		p = *req.Panes
	}
	r.mgr.AddWindow(idx, ws, ct, p)
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

// Removing an absent window is not an error.
func (r *Router) handleRemoveWindow(c *gin.Context) {
	idx, ok := pathIndex(c, "index")
	if !ok {
		return
	}
	r.mgr.RemoveWindow(idx)
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleAddTab(c *gin.Context) {
	parent, ok := pathIndex(c, "index")
	if !ok {
		return
	}
	req, ct, ok := r.bindEntry(c)
	if !ok {
		return
	}
	if _, found := r.mgr.Window(parent); !found {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "parent window not found"})
		return
	}
	var idx int
	if req.Index != nil {
		idx = *req.Index
	} else {
		idx = r.mgr.NextIndex()
	}
	var p registry.PaneVisibility
	if req.Panes != nil {
		p = *req.Panes
	}
	// the window may have closed since the lookup above
	if !r.mgr.AddTab(parent, idx, req.WorkspaceID, ct, p) {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "parent window not found"})
		return
	}
	writeJSON(c, http.StatusCreated, indexResp{Index: idx})
}

func (r *Router) handleRemoveTab(c *gin.Context) {
	parent, ok := pathIndex(c, "index")
	if !ok {
		return
	}
	tab, ok := pathIndex(c, "tab")
	if !ok {
		return
	}
	r.mgr.RemoveTab(parent, tab)
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleDetachTab(c *gin.Context) {
	parent, ok := pathIndex(c, "index")
	if !ok {
		return
	}
	tab, ok := pathIndex(c, "tab")
	if !ok {
		return
	}
	idx, applied := r.mgr.ConvertTabToWindow(parent, tab)
	if !applied {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "tab not found"})
		return
	}
	writeJSON(c, http.StatusOK, indexResp{Index: idx})
}

func (r *Router) handleAttachWindow(c *gin.Context) {
	win, ok := pathIndex(c, "index")
	if !ok {
		return
	}
	parent, ok := parseIndex(c.Query("parent"))
	if !ok {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "parent query param required: non-negative integer"})
		return
	}
	if !r.mgr.ConvertWindowToTab(win, parent) {
		writeJSON(c, http.StatusConflict, errorResp{Error: "cannot attach: window or parent missing, or same window"})
		return
	}
	writeJSON(c, http.StatusOK, indexResp{Index: win})
}

func (r *Router) handleNextIndex(c *gin.Context) {
	writeJSON(c, http.StatusOK, indexResp{Index: r.mgr.NextIndex()})
}

func (r *Router) handleCurrentIndex(c *gin.Context) {
	writeJSON(c, http.StatusOK, indexResp{Index: r.mgr.CurrentIndex()})
}

func (r *Router) handleSave(c *gin.Context) {
	if err := r.mgr.SaveOpenWindows(c.Request.Context()); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

// Restore never fails; the result tells what happened.
func (r *Router) handleRestore(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.mgr.RestoreOpenWindows(c.Request.Context()))
}

func (r *Router) handleGetOpened(c *gin.Context) {
	writeJSON(c, http.StatusOK, openedReq{Opened: r.mgr.IsAllWindowsOpened()})
}

func (r *Router) handleSetOpened(c *gin.Context) {
	var req openedReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	r.mgr.SetAllWindowsOpened(req.Opened)
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
