package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/loykin/winsession"
	"github.com/loykin/winsession/pkg/client"
	"gopkg.in/yaml.v3"
)

// command holds the CLI actions; out is swapped in tests.
type command struct {
	out io.Writer
}

func (c command) Windows(ctx context.Context, f APIFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	wins, err := newAPIClient(f).Windows(ctx)
	if err != nil {
		return fmt.Errorf("list windows: %w", err)
	}
	if len(wins) == 0 {
		_, _ = fmt.Fprintln(c.out, "no open windows")
		return nil
	}
	for _, w := range wins {
		c.printEntry(w, "")
		for _, t := range w.Tabs {
			c.printEntry(t, "  ")
		}
	}
	return nil
}

func (c command) printEntry(w client.Window, indent string) {
	kind := "window"
	if indent != "" {
		kind = "tab"
	}
	_, _ = fmt.Fprintf(c.out, "%s%s %d workspace=%q container=%s panes=%s\n",
		indent, kind, w.Index, w.WorkspaceID, w.Container, panesString(w.Panes))
}

func panesString(p client.Panes) string {
	var on []string
	if p.ShowNavigator {
		on = append(on, "navigator")
	}
	if p.ShowInspector {
		on = append(on, "inspector")
	}
	if p.ShowCodeView {
		on = append(on, "code")
	}
	if len(on) == 0 {
		return "-"
	}
	return strings.Join(on, ",")
}

func (c command) NextIndex(ctx context.Context, f APIFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	idx, err := newAPIClient(f).NextIndex(ctx)
	if err != nil {
		return fmt.Errorf("next index: %w", err)
	}
	_, _ = fmt.Fprintln(c.out, idx)
	return nil
}

// openOffline opens the configured store without restoring anything, for
// the snapshot subcommands.
func openOffline(ctx context.Context, f SnapshotFlags) (*winsession.Manager, error) {
	cfg, err := winsession.LoadConfig(f.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	if f.Key != "" {
		cfg.Session.Key = f.Key
		cfg.Session.TestMode = false
	}
	cfg.History.Sinks = nil
	return winsession.Open(ctx, cfg, nil)
}

func (c command) SnapshotShow(ctx context.Context, f SnapshotFlags) error {
	m, err := openOffline(ctx, f)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	snap, err := m.SavedSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("read snapshot %s: %w", m.Key(), err)
	}
	switch strings.ToLower(f.Format) {
	case "", "json":
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case "yaml", "yml":
		enc := yaml.NewEncoder(c.out)
		enc.SetIndent(2)
		defer func() { _ = enc.Close() }()
		return enc.Encode(snap)
	}
	return fmt.Errorf("unknown format %q (want json or yaml)", f.Format)
}

func (c command) SnapshotClear(ctx context.Context, f SnapshotFlags) error {
	m, err := openOffline(ctx, f)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	if err := m.ClearSavedWindows(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "cleared %s\n", m.Key())
	return nil
}
