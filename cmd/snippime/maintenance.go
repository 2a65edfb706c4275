package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	sqliteRepo "github.com/sakif/snippime/internal/repository/sqlite"
	"github.com/sakif/snippime/internal/search"
)

var rescoreCmd = &cobra.Command{
	Use:   "rescore",
	Short: "Recompute every snippet's hot score",
	Long: `Recalculates scoreHot for all snippets from their current score and
creation time. Run it after changing the hot-score formula.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		start := time.Now()
		n, err := db.Snippets().Rescore(ctx)
		if err != nil {
			return fmt.Errorf("rescoring snippets: %w", err)
		}

		logger.Info("rescored snippets",
			slog.Int("count", n),
			slog.Duration("duration", time.Since(start)),
		)
		return nil
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the search index from the database",
	Long: `Deletes the on-disk search index and indexes every public snippet again.
Stop the server first: the index is locked while it is open.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.SearchIndexPath == "" {
			return fmt.Errorf("search_index_path is empty: the in-memory index is rebuilt on every start")
		}
		logger := newLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return reindex(ctx, cfg.DBPath, cfg.SearchIndexPath, logger)
	},
}

func reindex(ctx context.Context, dbPath, indexPath string, logger *slog.Logger) error {
	db, err := sqliteRepo.New(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := os.RemoveAll(indexPath); err != nil {
		return fmt.Errorf("removing old index: %w", err)
	}

	index, err := search.Open(indexPath)
	if err != nil {
		return fmt.Errorf("opening search index: %w", err)
	}
	defer index.Close()

	start := time.Now()
	n, err := index.Rebuild(ctx, db.Snippets())
	if err != nil {
		return fmt.Errorf("rebuilding index: %w", err)
	}

	logger.Info("search index rebuilt",
		slog.String("path", indexPath),
		slog.Int("snippets", n),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}
