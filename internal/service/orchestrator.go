package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"bilirelay/internal/config"
	"bilirelay/internal/core/domain"
	"bilirelay/internal/core/ports"
)

const bytesPerMB = 1024 * 1024

// Orchestrator runs the link pipeline for one message:
// match, metadata, size gate, download, compose. Each stage either passes
// its result on or ends the run with an Outcome.
type Orchestrator struct {
	matcher  *Matcher
	meta     ports.MetadataClient
	media    ports.MediaDownloader
	fetcher  ports.Fetcher
	storage  ports.Storage
	composer *Composer
	cfg      *config.Config
	logger   zerolog.Logger
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(
	matcher *Matcher,
	meta ports.MetadataClient,
	media ports.MediaDownloader,
	fetcher ports.Fetcher,
	storage ports.Storage,
	cfg *config.Config,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		matcher:  matcher,
		meta:     meta,
		media:    media,
		fetcher:  fetcher,
		storage:  storage,
		composer: NewComposer(cfg.BotName, cfg.ShowDuration),
		cfg:      cfg,
		logger:   logger.With().Str("component", "pipeline").Logger(),
	}
}

// Run executes the pipeline for msg. It never returns an error; failures are
// reported through the Outcome.
func (o *Orchestrator) Run(ctx context.Context, msg domain.Message) *domain.Outcome {
	ref, err := o.matcher.Match(ctx, msg.Text)
	if err != nil {
		o.logger.Debug().Err(err).Msg("No usable link")
		return &domain.Outcome{Kind: domain.NotMatched, Err: err}
	}

	log := o.logger.With().Str("video_id", ref.ID).Logger()
	out := &domain.Outcome{Video: &ref}
	log.Info().Str("url", ref.CanonicalURL).Msg("Video link matched")

	meta, err := o.meta.VideoInfo(ctx, ref.ID)
	if err != nil {
		log.Error().Err(err).Msg("Cannot fetch video metadata")
		out.Kind = domain.MetadataUnavailable
		out.Err = err
		return out
	}
	out.Metadata = meta

	out.SizeMB = o.probeSize(ctx, ref, log)
	log.Info().
		Float64("size_mb", out.SizeMB).
		Float64("max_mb", o.cfg.MaxVideoSizeMB).
		Msg("Video size estimated")

	if out.SizeMB > o.cfg.MaxVideoSizeMB {
		out.Kind = domain.TooLarge
		out.Message = o.composer.TooLarge(msg.SelfID, meta, o.cfg.MaxVideoSizeMB)
		return out
	}

	art, err := o.download(ctx, ref, meta, log)
	if err != nil {
		log.Error().Err(err).Msg("Video download failed")
		out.Kind = domain.DownloadFailed
		out.Err = err
		return out
	}

	out.Kind = domain.Delivered
	out.Artifact = art
	out.Message = o.composer.Delivered(msg.SelfID, meta, art)
	return out
}

// probeSize returns the estimated size in MB. Probe failures count as 0 so
// the gate only blocks on a known estimate.
func (o *Orchestrator) probeSize(ctx context.Context, ref domain.VideoRef, log zerolog.Logger) float64 {
	res, err := o.media.Probe(ctx, ref.CanonicalURL)
	if err != nil {
		log.Warn().Err(fmt.Errorf("%w: %v", domain.ErrSizeProbe, err)).Msg("Cannot estimate video size")
		return 0
	}
	return float64(res.SizeBytes) / bytesPerMB
}

func (o *Orchestrator) download(ctx context.Context, ref domain.VideoRef, meta *domain.VideoMetadata, log zerolog.Logger) (*domain.DownloadArtifact, error) {
	path := o.storage.VideoPath(ref.ID)

	log.Info().Str("path", path).Msg("Downloading video")
	if err := o.runDownload(ctx, ref.CanonicalURL, path); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDownload, err)
	}
	if !o.storage.Exists(path) {
		return nil, fmt.Errorf("%w: no file at %s", domain.ErrDownload, path)
	}

	hash, err := o.storage.Hash(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDownload, err)
	}

	art := &domain.DownloadArtifact{
		VideoID:     ref.ID,
		VideoPath:   path,
		ContentHash: hash,
	}

	if o.cfg.ExternalThumbDir != "" {
		if err := o.storeThumbnail(ctx, meta.CoverURL, art); err != nil {
			log.Warn().Err(err).Msg("Thumbnail skipped")
		}
	}

	log.Info().Str("path", path).Str("md5", hash).Msg("Video downloaded")
	return art, nil
}

// runDownload hands the blocking download to a worker goroutine and waits
// for it.
func (o *Orchestrator) runDownload(ctx context.Context, videoURL, path string) error {
	errc := make(chan error, 1)
	go func() {
		errc <- o.media.Download(ctx, videoURL, path)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// storeThumbnail fetches the cover and copies it into the external
// thumbnail directory. Paths are recorded on art as soon as each file exists
// so cleanup sees partial results.
func (o *Orchestrator) storeThumbnail(ctx context.Context, coverURL string, art *domain.DownloadArtifact) error {
	body, err := o.fetcher.Fetch(ctx, coverURL)
	if err != nil {
		if errors.Is(err, domain.ErrThumbnail) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrThumbnail, err)
	}
	defer body.Close()

	local, err := o.storage.SaveThumbnail(art.ContentHash, body)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrThumbnail, err)
	}
	art.ThumbnailPath = local

	external, err := o.storage.CopyThumbnail(local, o.cfg.ExternalThumbDir, art.ContentHash)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrThumbnail, err)
	}
	art.ExternalThumbnailPath = external
	return nil
}
