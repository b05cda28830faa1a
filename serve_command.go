package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"StoryToVideo-client/config"
	"StoryToVideo-client/metrics"
	"StoryToVideo-client/models"
	"StoryToVideo-client/pipeline"
	"StoryToVideo-client/routers"
	"StoryToVideo-client/routers/api"
	"StoryToVideo-client/service"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动本地 API、推送订阅、快照存储与归档 worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(parent context.Context, cfg *config.Config, logger *slog.Logger) error {
	signalCtx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := metrics.NewRegistry()
	m, err := metrics.NewWithRegisterer("story_to_video", reg)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	policy, err := pipeline.ParseReadinessPolicy(cfg.Pipeline.VideoReadiness)
	if err != nil {
		return err
	}
	arena := pipeline.NewArena(pipeline.NewTracker(policy))

	var snapshots service.SnapshotStore
	if cfg.StoreEnabled() {
		store, err := models.NewStore(cfg.MySQL.DSN)
		if err != nil {
			return err
		}
		defer store.Close()
		snapshots = store
		arena.OnReplace(service.PersistSnapshots(store, logger))
		logger.Info("snapshot store enabled")
	}

	if cfg.ArchiveEnabled() {
		objects, err := service.NewMinIOStore(cfg, logger)
		if err != nil {
			return err
		}
		queue := service.NewQueue(service.RedisOpt(cfg), logger)
		defer queue.Close()

		worker, err := service.NewArchiver(arena, objects, nil, logger, m).
			StartProcessor(service.RedisOpt(cfg), cfg.Worker.Concurrency)
		if err != nil {
			return err
		}
		defer worker.Shutdown()
		arena.OnReplace(service.ArchiveOnCompletion(queue, logger))
		logger.Info("archive pipeline enabled", "bucket", cfg.MinIO.Bucket)
	}

	client := service.NewClientFromConfig(cfg, logger)
	orch := pipeline.NewOrchestrator(arena, client, pipeline.Options{
		FanOut:   cfg.Pipeline.FanOut,
		Logger:   logger,
		Recorder: m,
	})
	reconciler := pipeline.NewReconciler(arena, service.NewPushDialerFromConfig(cfg, logger), logger, m)
	ws := service.NewWorkspace(client, orch, reconciler, snapshots, logger)
	defer ws.Shutdown()

	if _, err := ws.Restore(signalCtx); err != nil {
		logger.Warn("snapshot restore failed", "error", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           routers.InitRouter(api.NewHandler(ws, logger), metrics.Handler(reg), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-signalCtx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	return nil
}
