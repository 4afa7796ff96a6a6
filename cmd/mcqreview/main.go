package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conorfennell/mcqreview/internal/config"
	"github.com/conorfennell/mcqreview/internal/logger"
	"github.com/conorfennell/mcqreview/internal/query"
	"github.com/conorfennell/mcqreview/internal/review"
	"github.com/conorfennell/mcqreview/internal/storage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app is everything a command needs, built once from configuration.
type app struct {
	cfg     *config.Config
	log     *zap.SugaredLogger
	backend storage.Backend
	store   *review.Store
	queries *query.Service
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	backend, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		log.Errorw("Failed to open storage", "backend", cfg.Storage.Backend, "error", err)
		return nil, err
	}
	log.Debugw("Storage opened", "backend", cfg.Storage.Backend)

	store := review.NewStore(ctx, backend,
		review.WithSnapshotKey(cfg.Storage.Key),
		review.WithLogger(log),
	)
	return &app{
		cfg:     cfg,
		log:     log,
		backend: backend,
		store:   store,
		queries: query.NewService(store),
	}, nil
}

func (a *app) Close() {
	if err := a.backend.Close(); err != nil {
		a.log.Warnw("Failed to close storage", "error", err)
	}
	_ = a.log.Sync()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mcqreview",
		Short:         "Spaced-repetition scheduling for multiple-choice questions",
		SilenceUsage: true,
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newRecordCmd(),
		newDueCmd(),
		newStatsCmd(),
		newSummaryCmd(),
		newClearCmd(),
		newServeCmd(),
	)
	return root
}

// withApp adapts a command body that needs an app into a cobra RunE.
func withApp(run func(cmd *cobra.Command, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd, a)
	}
}
