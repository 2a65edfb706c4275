package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sakif/snippime/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Opens the database and search index, mounts the API, auth, embed and
live routes, and serves until interrupted. SIGINT or SIGTERM trigger a
graceful shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		logger := newLogger(cfg)
		if !cfg.GitHub.Enabled() {
			logger.Info("github sign-in disabled: no client credentials configured")
		}
		if !cfg.Google.Enabled() {
			logger.Info("google sign-in disabled: no client credentials configured")
		}

		srv, err := server.New(cfg, logger)
		if err != nil {
			return fmt.Errorf("creating server: %w", err)
		}

		// Start blocks until shutdown and closes the server's resources.
		if err := srv.Start(); err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			return err
		}
		return nil
	},
}
