// suiverify-indexer: indexes SuiVerify DIDClaimed events from Sui checkpoints
// into Postgres and broadcasts them over Redis Pub/Sub.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/SuiVerify/suiverify-indexer/internal/admin"
	"github.com/SuiVerify/suiverify-indexer/internal/checkpoint"
	"github.com/SuiVerify/suiverify-indexer/internal/config"
	"github.com/SuiVerify/suiverify-indexer/internal/events"
	"github.com/SuiVerify/suiverify-indexer/internal/handlers"
	"github.com/SuiVerify/suiverify-indexer/internal/notify"
	"github.com/SuiVerify/suiverify-indexer/internal/pipeline"
	"github.com/SuiVerify/suiverify-indexer/internal/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "suiverify-indexer",
		Short:         "SuiVerify DID event indexer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(runCmd(), migrateCmd(), generateCmd())

	if err := rootCmd.Execute(); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Index checkpoints until interrupted or the source is exhausted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			logger := config.NewLogger(cfg.Log)
			slog.SetDefault(logger)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return run(ctx, cancel, cfg, logger)
		},
	}
}

func run(ctx context.Context, cancel context.CancelFunc, cfg config.Config, logger *slog.Logger) error {
	pool, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := store.Migrate(ctx, pool); err != nil {
		return err
	}

	eventType := checkpoint.TypeTag{Address: cfg.PackageID, Module: events.DIDClaimedModule, Name: events.DIDClaimedName}
	if _, err := checkpoint.ParseTypeTag(eventType.String()); err != nil {
		return fmt.Errorf("SUIVERIFY_PACKAGE_ID: %w", err)
	}

	var pub notify.Publisher
	if cfg.RedisURL != "" {
		rp, err := notify.NewRedisPublisher(cfg.RedisURL)
		if err != nil {
			logger.Warn("invalid REDIS_URL, events will not be published", "err", err)
		} else {
			defer rp.Close()
			pub = rp
		}
	}
	relay := notify.NewRelay(pub, cfg.NotifyChannel, cfg.NotifyTimeout, logger, cfg.Log.ShouldLogEvents())

	newSource := func(from uint64) checkpoint.Source {
		if cfg.CheckpointDir != "" {
			return checkpoint.NewDirSource(cfg.CheckpointDir, from, cfg.FollowInterval, logger)
		}
		src := checkpoint.NewSyntheticSource(eventType.String(), from, cfg.SyntheticInterval)
		if cfg.SyntheticGenesisMs > 0 {
			src.GenesisMs = cfg.SyntheticGenesisMs
		}
		return src
	}
	pcfg := pipeline.Config{
		FirstCheckpoint:     cfg.FirstCheckpoint,
		MaxBatchCheckpoints: cfg.MaxBatchCheckpoints,
		BatchTimeout:        cfg.BatchTimeout,
		CommitRetries:       cfg.CommitRetries,
	}

	srv := admin.NewServer(cfg.Addr(), pool, logger)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", "err", err)
			cancel() // trigger shutdown so run can return
		}
	}()
	logger.Info("starting", "addr", cfg.Addr(), "event_type", eventType.String(), "broadcast", relay.Enabled())

	err = pipeline.RunAll(ctx,
		pipeline.NewSequential[handlers.StoredDIDClaimedEvent](
			handlers.NewDIDClaimedHandler(eventType, cfg.Log, relay, logger), pool, newSource, pcfg, logger),
		pipeline.NewSequential[handlers.StoredTransactionDigest](
			handlers.TransactionDigestHandler{}, pool, newSource, pcfg, logger),
	)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Error("shutdown", "err", serr)
	}
	return err
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			pool, err := store.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := store.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write synthetic checkpoints as <seq>.json files for replay with CHECKPOINT_DIR",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			from, _ := cmd.Flags().GetUint64("from")
			count, _ := cmd.Flags().GetUint64("count")
			pkg, _ := cmd.Flags().GetString("package")
			if dir == "" {
				return fmt.Errorf("--dir is required")
			}
			if count == 0 {
				return fmt.Errorf("--count must be positive")
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			eventType := checkpoint.TypeTag{Address: pkg, Module: events.DIDClaimedModule, Name: events.DIDClaimedName}
			src := checkpoint.NewSyntheticSource(eventType.String(), from, 0)
			for seq := from; seq < from+count; seq++ {
				if err := checkpoint.WriteFile(dir, src.Generate(seq)); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote checkpoints %d-%d to %s\n", from, from+count-1, dir)
			return nil
		},
	}
	cmd.Flags().String("dir", "", "Output directory")
	cmd.Flags().Uint64("from", 0, "First sequence number")
	cmd.Flags().Uint64("count", 100, "Number of checkpoints")
	cmd.Flags().String("package", config.DefaultPackageID, "Package ID stamped on DIDClaimed events")
	return cmd
}
