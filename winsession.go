package winsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	cfg "github.com/loykin/winsession/internal/config"
	"github.com/loykin/winsession/internal/history"
	hfactory "github.com/loykin/winsession/internal/history/factory"
	"github.com/loykin/winsession/internal/metrics"
	"github.com/loykin/winsession/internal/registry"
	iapi "github.com/loykin/winsession/internal/server"
	"github.com/loykin/winsession/internal/session"
	"github.com/loykin/winsession/internal/snapshot"
	"github.com/loykin/winsession/internal/store"
	sfactory "github.com/loykin/winsession/internal/store/factory"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Entry = registry.Entry

type Container = registry.Container

type PaneVisibility = registry.PaneVisibility

type Limits = snapshot.Limits

type RestoreResult = session.RestoreResult

type Options = session.Options

type Config = cfg.FileConfig

type HistorySink = history.Sink

type Store = store.Store

const (
	ContainerLocal = registry.ContainerLocal
	ContainerCloud = registry.ContainerCloud
)

// Manager is a thin facade over internal/session.Manager.
// It provides a stable public API for embedding.
type Manager struct {
	inner  *session.Manager
	st     store.Store
	sinks  history.Multi
	closed bool
}

// New builds a Manager from explicit options. The caller keeps ownership of
// opts.Store and any sinks.
func New(opts Options) *Manager { return &Manager{inner: session.New(opts)} }

// Open builds a Manager from a loaded config: it opens the store named by
// store.dsn, ensures its schema and connects the history sinks. Close
// releases them.
func Open(ctx context.Context, c Config, log *slog.Logger) (*Manager, error) {
	st, err := sfactory.NewFromDSN(c.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.EnsureSchema(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("ensure store schema: %w", err)
	}
	sinks, err := hfactory.NewSinksFromDSNs(c.History.Sinks)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("open history sinks: %w", err)
	}
	inner := session.New(session.Options{
		Store:    st,
		Key:      c.Session.Key,
		TestMode: c.Session.TestMode,
		Limits:   c.Session.Limits(),
		Logger:   log,
		Sinks:    sinks,
	})
	return &Manager{inner: inner, st: st, sinks: sinks}, nil
}

// Close flushes queued history events, then releases the store and history
// sinks opened by Open. Managers built with New only stop their history worker.
func (m *Manager) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	m.inner.Close()
	var errs []error
	if m.sinks != nil {
		errs = append(errs, m.sinks.Close())
	}
	if m.st != nil {
		errs = append(errs, m.st.Close())
	}
	return errors.Join(errs...)
}

func (m *Manager) Key() string       { return m.inner.Key() }
func (m *Manager) NextIndex() int    { return m.inner.NextIndex() }
func (m *Manager) CurrentIndex() int { return m.inner.CurrentIndex() }

func (m *Manager) AddWindow(idx int, workspaceID string, c Container, p PaneVisibility) {
	m.inner.AddWindow(idx, workspaceID, c, p)
}
func (m *Manager) RemoveWindow(idx int) { m.inner.RemoveWindow(idx) }
func (m *Manager) AddTab(parent, tab int, workspaceID string, c Container, p PaneVisibility) bool {
	return m.inner.AddTab(parent, tab, workspaceID, c, p)
}
func (m *Manager) RemoveTab(parent, tab int)         { m.inner.RemoveTab(parent, tab) }
func (m *Manager) Window(idx int) (Entry, bool)      { return m.inner.Window(idx) }
func (m *Manager) Tab(parent, tab int) (Entry, bool) { return m.inner.Tab(parent, tab) }
func (m *Manager) AllWindows() map[int]Entry         { return m.inner.AllWindows() }
func (m *Manager) Windows() []Entry                  { return m.inner.Windows() }
func (m *Manager) ConvertTabToWindow(parent, tab int) (int, bool) {
	return m.inner.ConvertTabToWindow(parent, tab)
}
func (m *Manager) ConvertWindowToTab(win, newParent int) bool {
	return m.inner.ConvertWindowToTab(win, newParent)
}
func (m *Manager) IsAllWindowsOpened() bool   { return m.inner.IsAllWindowsOpened() }
func (m *Manager) SetAllWindowsOpened(v bool) { m.inner.SetAllWindowsOpened(v) }

func (m *Manager) SaveOpenWindows(ctx context.Context) error { return m.inner.SaveOpenWindows(ctx) }
func (m *Manager) RestoreOpenWindows(ctx context.Context) RestoreResult {
	return m.inner.RestoreOpenWindows(ctx)
}
func (m *Manager) ClearSavedWindows(ctx context.Context) error { return m.inner.ClearSavedWindows(ctx) }
func (m *Manager) SavedSnapshot(ctx context.Context) (snapshot.Snapshot, error) {
	return m.inner.SavedSnapshot(ctx)
}

func LoadConfig(path string) (Config, error) { return cfg.Load(path) }

// Handler returns the control API handler for m under basePath. A non-nil
// metricsHandler is exposed at {basePath}/metrics.
func Handler(m *Manager, basePath string, metricsHandler http.Handler) http.Handler {
	r := iapi.NewRouter(m.inner, basePath)
	if metricsHandler != nil {
		r.WithMetrics(metricsHandler)
	}
	return r.Handler()
}

// NewHTTPServer starts an HTTP server exposing the control API using the given manager.
func NewHTTPServer(addr, basePath string, m *Manager) *http.Server {
	return iapi.NewServer(addr, Handler(m, basePath, nil))
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// MetricsHandler serves the default registry.
func MetricsHandler() http.Handler { return metrics.Handler() }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
