package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tracker/internal/server"
	"tracker/internal/storage/sqlite"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API. When seed-file is configured, its workflows are imported
before the server starts listening.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		logger.Info("tracker starting", slog.String("version", version), slog.String("db", cfg.DBPath))

		store, err := sqlite.Open(cfg.DBPath, logger)
		if err != nil {
			logger.Error("unable to open database", slog.String("error", err.Error()))
			return err
		}
		defer store.Close()

		if cfg.SeedFile != "" {
			if err := seedWorkflows(cmd.Context(), store, logger, cfg.SeedFile, cfg.DefaultWorkspace); err != nil {
				logger.Error("unable to seed workflows", slog.String("file", cfg.SeedFile), slog.String("error", err.Error()))
				return err
			}
		}

		srv := server.New(store, logger, cfg.DefaultWorkspace)

		httpServer := &http.Server{
			Addr:              cfg.Addr,
			Handler:           srv.Engine(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			logger.Info("starting server", slog.String("addr", httpServer.Addr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server stopped unexpectedly", slog.String("error", err.Error()))
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown server", slog.String("error", err.Error()))
		}

		logger.Info("server stopped")
		return nil
	},
}
