package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds minimal global/persistent flags for CLI commands
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags selects a running daemon.
type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

// ServeFlags holds flags for the serve command
type ServeFlags struct {
	ConfigPath string
	NoRestore  bool
	// SaveTimeout bounds the final save on shutdown.
	SaveTimeout time.Duration
}

// SnapshotFlags holds flags for snapshot show/clear
type SnapshotFlags struct {
	ConfigPath string
	Key        string
	Format     string
}

// buildRoot creates the root command with all subcommands
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	apiFlags := &APIFlags{}
	snapFlags := &SnapshotFlags{}

	root := createRootCommand(globalFlags)
	cmd := command{out: os.Stdout}

	root.AddCommand(
		createServeCommand(globalFlags),
		createWindowsCommand(cmd, apiFlags),
		createNextIndexCommand(cmd, apiFlags),
		createSnapshotCommand(cmd, globalFlags, snapFlags),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "winsession",
		Short: "Window and tab session registry",
		Long: `winsession keeps the registry of open windows and their tabs, hands out
unique window/tab indices and persists the arrangement so it can be restored
on the next launch.

Examples:
  winsession serve winsession.toml            # Start daemon
  winsession windows                          # List windows of a running daemon
  winsession next-index --api-url=http://127.0.0.1:7070/api
  winsession snapshot show --config=winsession.toml --format=yaml`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML or YAML config file (optional)")
	return root
}

func addAPIFlags(cmd *cobra.Command, f *APIFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "daemon URL (default http://127.0.0.1:7070/api)")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 10*time.Second, "request timeout")
}

// createServeCommand creates the serve subcommand
func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}

	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the winsession daemon",
		Long: `Start the daemon: open the configured store, restore the saved session,
serve the control API and save the session again on SIGINT/SIGTERM.

Examples:
  winsession serve                       # defaults + WINSESSION_* env
  winsession serve winsession.toml
  winsession serve --no-restore`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			if len(args) > 0 {
				serveFlags.ConfigPath = args[0]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, *serveFlags, nil)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.NoRestore, "no-restore", false, "start with an empty registry instead of the saved session")
	cmd.Flags().DurationVar(&serveFlags.SaveTimeout, "save-timeout", 5*time.Second, "time allowed for the final save on shutdown")
	return cmd
}

func createWindowsCommand(c command, f *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "windows",
		Short: "List open windows and tabs of a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Windows(cmd.Context(), *f)
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createNextIndexCommand(c command, f *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next-index",
		Short: "Mint a new window/tab index from a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.NextIndex(cmd.Context(), *f)
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createSnapshotCommand(c command, globalFlags *GlobalFlags, f *SnapshotFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect or clear the saved session in the configured store",
	}
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the saved snapshot",
		Long: `Read the saved snapshot directly from the store named by [store].dsn.
The daemon does not need to be running.

Examples:
  winsession snapshot show --config=winsession.toml
  winsession snapshot show --config=winsession.toml --format=yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = globalFlags.ConfigPath
			return c.SnapshotShow(contextOrBackground(cmd), *f)
		},
	}
	show.Flags().StringVar(&f.Format, "format", "json", "output format: json or yaml")
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the saved snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = globalFlags.ConfigPath
			return c.SnapshotClear(contextOrBackground(cmd), *f)
		},
	}
	cmd.PersistentFlags().StringVar(&f.Key, "key", "", "store key (default from config)")
	cmd.AddCommand(show, clearCmd)
	return cmd
}

func contextOrBackground(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
