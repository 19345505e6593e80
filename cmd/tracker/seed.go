package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"tracker/internal/storage/sqlite"
	"tracker/internal/workflow"
)

var seedWorkspace string

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Import workflow definitions from a YAML file",
	Long: `Import workflow definitions from a YAML file into a workspace.

Workflows that already exist by name are left untouched. The first workflow of
an empty workspace, or one marked default, becomes the workspace default.

Example:
  tracker seed workflows.yaml
  tracker seed --workspace acme workflows.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		workspace := cfg.DefaultWorkspace
		if seedWorkspace != "" {
			workspace = seedWorkspace
		}

		store, err := sqlite.Open(cfg.DBPath, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		return seedWorkflows(cmd.Context(), store, logger, args[0], workspace)
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedWorkspace, "workspace", "", "Workspace to import into (defaults to default-workspace)")
}

func seedWorkflows(ctx context.Context, store *sqlite.Store, logger *slog.Logger, path, workspace string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	defs, err := workflow.LoadDefinitions(f, workspace)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	created, err := workflow.NewService(store, logger).Seed(ctx, defs)
	if err != nil {
		return err
	}
	logger.Info("workflows seeded", slog.String("workspace", workspace), slog.Int("defined", len(defs)), slog.Int("created", len(created)))
	return nil
}
