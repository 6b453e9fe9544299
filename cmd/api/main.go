package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"complaint-pipeline/internal/api"
	"complaint-pipeline/internal/config"
	"complaint-pipeline/internal/media"
	"complaint-pipeline/internal/queue"
	"complaint-pipeline/internal/ratelimit"
	"complaint-pipeline/internal/search"
	"complaint-pipeline/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zlog.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("service", "gateway").Logger()

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

	limiterClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	limiter := ratelimit.NewTokenBucket(limiterClient, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)

	server := api.New(cfg, st, q, es, limiter, mediaStore)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	zlog.Info().Str("port", cfg.HTTPPort).Msg("gateway listening")
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}
