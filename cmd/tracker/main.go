package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"tracker/internal/config"
)

var (
	v          = config.New()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "tracker",
	Short: "Configurable issue tracker: custom fields, workflows, boards and sprints",
	Long: `tracker serves a JSON API over an SQLite database holding workspaces of
projects and issues, admin-defined custom fields, workflow graphs with guarded
transitions, boards projected from workflows, and sprints.

Settings come from --config (YAML), TRACKER_* environment variables and flags.`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Path to a YAML config file")
	flags.String(config.KeyDB, "data/tracker.db", "Path to sqlite database file")
	flags.String(config.KeyAddr, ":8080", "HTTP listen address")
	flags.String(config.KeyLogLevel, "info", "Log level (debug, info, warn, error)")
	flags.String(config.KeyLogFormat, "text", "Log format (text, json)")
	flags.String(config.KeyDefaultWorkspace, "default", "Workspace used when a request names none")

	for _, key := range []string{config.KeyDB, config.KeyAddr, config.KeyLogLevel, config.KeyLogFormat, config.KeyDefaultWorkspace} {
		_ = v.BindPFlag(key, flags.Lookup(key))
	}

	rootCmd.AddCommand(serveCmd, seedCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves settings and builds the process logger.
func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, newLogger(os.Stdout, cfg), nil
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
