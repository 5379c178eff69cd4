package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"bilirelay/internal/adapters/bilibili"
	"bilirelay/internal/adapters/downloader"
	"bilirelay/internal/adapters/localstorage"
	"bilirelay/internal/adapters/onebot"
	"bilirelay/internal/adapters/ytdlp"
	"bilirelay/internal/config"
	"bilirelay/internal/logging"
	"bilirelay/internal/service"
)

// app holds the wired components that need an orderly shutdown.
type app struct {
	server  *http.Server
	events  *onebot.Server
	cleaner *service.Cleaner
}

func newApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	storage := localstorage.NewLocalStorage(cfg.VideoDir(), cfg.ThumbnailDir())
	if err := storage.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	meta := bilibili.NewClient(cfg.APIBaseURL, cfg.APIRatePerSec)
	media := ytdlp.NewYtDlpDownloader(cfg.YtDlpPath, cfg.CookieFile)
	fetcher := downloader.NewHTTPDownloader()
	sender := onebot.NewClient(cfg.OneBotURL, cfg.OneBotToken)

	matcher := service.NewMatcher(&http.Client{Timeout: 10 * time.Second})
	pipeline := service.NewOrchestrator(matcher, meta, media, fetcher, storage, cfg, logger)
	cleaner := service.NewCleaner(storage, cfg.CleanupDelay, logger)
	handler := service.NewHandler(pipeline, sender, cleaner, logger)

	events := onebot.NewServer(cfg.OneBotSecret, logger)
	handler.Register(events)

	return &app{
		server: &http.Server{
			Addr:              cfg.Listen,
			Handler:           events.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		events:  events,
		cleaner: cleaner,
	}, nil
}

// shutdown stops accepting events, cancels in-flight pipelines and then
// removes whatever they left behind.
func (a *app) shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	a.events.Shutdown()
	a.cleaner.Flush()
	return err
}

func main() {
	// .env is optional; variables may already be set
	_ = godotenv.Load()

	configPath := flag.String("c", "config.yaml", "Path to the YAML config file")
	pretty := flag.Bool("pretty", false, "Human-readable console logs")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		l := logging.New(config.LogLevelInfo, *pretty)
		l.Fatal().Err(err).Msg("Invalid configuration")
	}
	logger := logging.New(cfg.LogLevel, *pretty)

	logger.Info().
		Str("data_dir", cfg.DataDir).
		Float64("max_video_size_mb", cfg.MaxVideoSizeMB).
		Dur("cleanup_delay", cfg.CleanupDelay).
		Str("onebot_url", cfg.OneBotURL).
		Msg("Starting bilirelay")

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Startup failed")
	}

	go func() {
		logger.Info().Str("addr", cfg.Listen).Str("path", onebot.EventPath).Msg("Listening for OneBot events")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Handle graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info().Msg("Received interrupt signal, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to shutdown HTTP server")
	}

	logger.Info().Msg("Stopped")
}
