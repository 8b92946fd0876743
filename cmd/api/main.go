package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/King-fly/subtitle-api/internal/adapter/repo"
	"github.com/King-fly/subtitle-api/internal/domain"
	"github.com/King-fly/subtitle-api/internal/http/handlers"
	"github.com/King-fly/subtitle-api/internal/http/httpapi"
	"github.com/King-fly/subtitle-api/internal/infra"
	"github.com/King-fly/subtitle-api/internal/media"
	"github.com/King-fly/subtitle-api/internal/scheduler"
	"github.com/King-fly/subtitle-api/internal/storage"
	"github.com/King-fly/subtitle-api/internal/transcribe"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()

	var store domain.Store
	switch cfg.StoreDriver {
	case infra.StoreDriverPostgres:
		dbpool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer dbpool.Close()
		store = repo.NewPostgresStore(dbpool)
	default:
		store = repo.NewMemoryStore()
	}

	mediaStore, err := storage.NewMediaStore(cfg.UploadDir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.UploadDir).Msg("failed to prepare upload directory")
	}

	extractor := media.NewFFmpegExtractor(cfg.FFmpegBin, cfg.MaxUploadBytes)
	transcriber := transcribe.NewWhisperCLI(cfg.WhisperBin, cfg.WhisperModel)

	sched := scheduler.New(scheduler.Config{
		Workers:           cfg.WorkerCount,
		QueueCapacity:     cfg.QueueCapacity,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
		ExtractTimeout:    cfg.ExtractTimeout,
		TranscribeTimeout: cfg.TranscribeTimeout,
	}, store, extractor, transcriber, logger)
	sched.Start(ctx)

	app := handlers.NewApp(cfg, store, sched, mediaStore, logger)
	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	// Stop accepting requests first, then let in-flight jobs settle.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if err := sched.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown scheduler")
	}
	logger.Info().Msg("server stopped")
}
