// Package cli implements the loom command line client. It is a thin shell
// over the artifact repository: every sub-command opens the store named by
// the persistent flags, runs one repository operation and prints the result.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	slogcontext "github.com/veqryn/slog-context"

	"github.com/loomworks/loom/inspect"
	"github.com/loomworks/loom/isolation"
	"github.com/loomworks/loom/repository"
	"github.com/loomworks/loom/store/filesystem"
)

var storePathDefault = filepath.Join("$HOME", ".local", "share", "loom")

// Execute runs the root command. Called by main.main.
func Execute() {
	if err := New().Execute(); err != nil {
		os.Exit(1)
	}
}

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loom [sub-command]",
		Short: "Manage versioned artifact bundles and their plugins",
		Long: `loom manages versioned artifact bundles: it adds bundles to a local
store, inspects them for the plugins they provide, answers plugin
discovery and selection queries, and removes artifacts that are no
longer extended by others.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: setupLogging,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}

	cmd.PersistentFlags().String("store", storePathDefault, "path of the local artifact store")
	cmd.PersistentFlags().String("scope-dir", "", "directory for unpacked isolation scopes (defaults to the system temp dir)")
	cmd.PersistentFlags().StringSlice("capability-type", []string{"source", "transform", "sink"},
		"capability types recognized during inspection")
	cmd.PersistentFlags().String("loglevel", "warn", "set the log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringP("logformat", "f", "text", "set the log format (text, json)")

	cmd.AddCommand(newAddCmd(), newPluginsCmd(), newFindCmd(), newDeleteCmd())
	return cmd
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	var level slog.Level
	switch v := cmd.Flag("loglevel").Value.String(); v {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level: %s", v)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	switch v := cmd.Flag("logformat").Value.String(); v {
	case "json":
		handler = slog.NewJSONHandler(cmd.ErrOrStderr(), opts)
	case "text":
		handler = slog.NewTextHandler(cmd.ErrOrStderr(), opts)
	default:
		return fmt.Errorf("invalid log format: %s", v)
	}

	cmd.SetContext(slogcontext.NewCtx(cmd.Context(), slog.New(handler)))
	return nil
}

// newRepository opens the store and wires the repository from the persistent
// flags of the given command.
func newRepository(cmd *cobra.Command) (*repository.ArtifactRepository, error) {
	storePath := os.ExpandEnv(cmd.Flag("store").Value.String())
	st, err := filesystem.NewStore(storePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", storePath, err)
	}

	scopeDir := cmd.Flag("scope-dir").Value.String()
	if scopeDir == "" {
		scopeDir = os.TempDir()
	}
	factory, err := isolation.NewFactory(scopeDir, isolation.NewCapabilityRegistry())
	if err != nil {
		return nil, err
	}

	types, err := cmd.Flags().GetStringSlice("capability-type")
	if err != nil {
		return nil, err
	}
	return repository.NewArtifactRepository(st, factory, inspect.NewInspector(types...)), nil
}
