package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"complaint-pipeline/internal/analyzer"
	"complaint-pipeline/internal/config"
	"complaint-pipeline/internal/media"
	"complaint-pipeline/internal/pipeline"
	"complaint-pipeline/internal/queue"
	"complaint-pipeline/internal/search"
	"complaint-pipeline/internal/store"
	"complaint-pipeline/internal/telemetry"
	"complaint-pipeline/internal/worker"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zlog.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("service", "worker").Logger()

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		zlog.Fatal().Err(err).Msg("connect postgres")
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		zlog.Fatal().Err(err).Msg("migrations")
	}

	q := queue.New(cfg)

	es, err := search.NewClient(cfg.ElasticAddrs, cfg.ElasticUsername, cfg.ElasticPassword, cfg.ElasticIndex)
	if err != nil {
		zlog.Fatal().Err(err).Msg("connect elasticsearch")
	}

	mediaStore, err := media.NewFromConfig(ctx, cfg)
	if err != nil {
		zlog.Fatal().Err(err).Msg("init media store")
	}

	dispatcher := analyzer.NewDispatcher(cfg)
	committer := pipeline.NewCommitter(st, es)
	sweeper := pipeline.NewSweeper(st, es, cfg.ReconcileBatch)
	processor := worker.NewProcessor(cfg, q, st, dispatcher, committer, mediaStore)

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			zlog.Warn().Err(err).Msg("metrics server stopped")
		}
	}()

	zlog.Info().Int("workers", cfg.WorkerCount).
		Dur("visibility", cfg.VisibilityTimeout).
		Dur("deadline", cfg.JobDeadline).
		Msg("worker pool starting")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return processor.RunPool(ctx) })
	g.Go(func() error { return sweeper.Run(ctx, cfg.ReconcileInterval) })

	if err := g.Wait(); err != nil && err != context.Canceled {
		zlog.Error().Err(err).Msg("worker stopped")
	}
}
