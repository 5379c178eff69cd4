package ports

import (
	"context"
	"io"
	"regexp"

	"bilirelay/internal/core/domain"
)

// MetadataClient fetches display metadata from the video platform.
type MetadataClient interface {
	// VideoInfo returns metadata for the given video ID ("BV..." or "av...").
	VideoInfo(ctx context.Context, videoID string) (*domain.VideoMetadata, error)
}

// ProbeResult is the size estimate returned by a simulated extraction.
type ProbeResult struct {
	SizeBytes int64 // 0 when unknown
}

// MediaDownloader wraps the external media extraction tool.
type MediaDownloader interface {
	// Probe runs the extractor without downloading and estimates the output size.
	Probe(ctx context.Context, videoURL string) (*ProbeResult, error)

	// Download writes the muxed video for videoURL to outputPath.
	// It blocks until the file is written or the download fails.
	Download(ctx context.Context, videoURL, outputPath string) error
}

// Fetcher retrieves a remote resource over plain HTTP.
type Fetcher interface {
	// Fetch returns the response body. The caller must close it.
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// Storage defines the on-disk layout for transient artifacts.
type Storage interface {
	// Init creates the video and thumbnail directories.
	Init() error

	// VideoPath returns the deterministic path for a video ID.
	VideoPath(videoID string) string

	// Exists reports whether a regular file exists at path.
	Exists(path string) bool

	// Hash returns the hex MD5 digest of the file at path.
	Hash(path string) (string, error)

	// SaveThumbnail stores the cover image under a hash-derived name.
	SaveThumbnail(hash string, r io.Reader) (string, error)

	// CopyThumbnail copies a stored thumbnail into dir under a second
	// hash-derived name and returns the destination path.
	CopyThumbnail(src, dir, hash string) (string, error)

	// Remove deletes path. A missing file is not an error.
	Remove(path string) error
}

// Sender delivers an outbound message in reply to an inbound one.
type Sender interface {
	Send(ctx context.Context, to domain.Message, chain domain.Chain) error
}

// HandlerFunc handles one inbound message that matched a registered pattern.
type HandlerFunc func(ctx context.Context, msg domain.Message)

// Registrar is the host framework hook for pattern-triggered handlers.
type Registrar interface {
	Register(pattern *regexp.Regexp, h HandlerFunc)
}
