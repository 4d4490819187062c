package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/winsession"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	file := filepath.Join(dir, "winsession.toml")
	data := "[store]\ndsn = \"sqlite://" + filepath.Join(dir, "state.db") + "\"\n" +
		"[server]\nlisten = \"127.0.0.1:0\"\n"
	require.NoError(t, os.WriteFile(file, []byte(data), 0o644))
	return file
}

func TestServeSavesOnShutdown(t *testing.T) {
	file := writeConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan *winsession.Manager, 1)
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, ServeFlags{ConfigPath: file}, ready) }()

	var mgr *winsession.Manager
	select {
	case mgr = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not become ready")
	}
	mgr.AddWindow(mgr.NextIndex(), "ws", winsession.ContainerLocal, winsession.PaneVisibility{ShowCodeView: true})
	mgr.AddTab(0, mgr.NextIndex(), "ws", winsession.ContainerCloud, winsession.PaneVisibility{})
	cancel()
	require.NoError(t, <-done)

	var out bytes.Buffer
	c := command{out: &out}
	require.NoError(t, c.SnapshotShow(context.Background(), SnapshotFlags{ConfigPath: file, Format: "yaml"}))
	s := out.String()
	assert.Contains(t, s, "workspace_id: ws")
	assert.Contains(t, s, "container: cloud")
	assert.Contains(t, s, "parent_index: 0")

	out.Reset()
	require.NoError(t, c.SnapshotShow(context.Background(), SnapshotFlags{ConfigPath: file}))
	assert.Contains(t, out.String(), `"version": 1`)

	out.Reset()
	require.NoError(t, c.SnapshotClear(context.Background(), SnapshotFlags{ConfigPath: file}))
	assert.Contains(t, out.String(), "cleared openWindows")
	require.Error(t, c.SnapshotShow(context.Background(), SnapshotFlags{ConfigPath: file}))
}

func TestSnapshotShowUnknownFormat(t *testing.T) {
	file := writeConfig(t)
	ctx := context.Background()
	cfg, err := winsession.LoadConfig(file)
	require.NoError(t, err)
	m, err := winsession.Open(ctx, cfg, nil)
	require.NoError(t, err)
	m.AddWindow(0, "ws", winsession.ContainerLocal, winsession.PaneVisibility{})
	require.NoError(t, m.SaveOpenWindows(ctx))
	require.NoError(t, m.Close())

	var out bytes.Buffer
	err = command{out: &out}.SnapshotShow(ctx, SnapshotFlags{ConfigPath: file, Format: "xml"})
	require.Error(t, err)
}

func TestWindowsAndNextIndexAgainstDaemon(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := winsession.New(winsession.Options{})
	m.AddWindow(0, "alpha", winsession.ContainerLocal, winsession.PaneVisibility{ShowNavigator: true})
	m.AddTab(0, 1, "alpha", winsession.ContainerCloud, winsession.PaneVisibility{})
	srv := httptest.NewServer(winsession.Handler(m, "/api", nil))
	defer srv.Close()

	var out bytes.Buffer
	c := command{out: &out}
	api := APIFlags{APIUrl: srv.URL + "/api", APITimeout: time.Second}
	require.NoError(t, c.Windows(context.Background(), api))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `window 0 workspace="alpha" container=local panes=navigator`, lines[0])
	assert.Equal(t, `  tab 1 workspace="alpha" container=cloud panes=-`, lines[1])

	out.Reset()
	require.NoError(t, c.NextIndex(context.Background(), api))
	assert.Equal(t, "0\n", out.String())
}

func TestRootHelp(t *testing.T) {
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--help"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "winsession")
	for _, sub := range []string{"serve", "windows", "next-index", "snapshot"} {
		assert.Contains(t, out.String(), sub)
	}
}
