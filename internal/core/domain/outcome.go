package domain

import "errors"

var (
	ErrNotMatched          = errors.New("no video link found")
	ErrMetadataUnavailable = errors.New("video metadata unavailable")
	ErrSizeProbe           = errors.New("video size probe failed")
	ErrDownload            = errors.New("video download failed")
	ErrThumbnail           = errors.New("thumbnail unavailable")
)

// OutcomeKind is the terminal state of one pipeline run.
type OutcomeKind int

const (
	NotMatched OutcomeKind = iota
	MetadataUnavailable
	TooLarge
	DownloadFailed
	Delivered
)

func (k OutcomeKind) String() string {
	return [...]string{"NotMatched", "MetadataUnavailable", "TooLarge", "DownloadFailed", "Delivered"}[k]
}

// Outcome is what a pipeline run produced. Message is nil unless the run
// ended in TooLarge or Delivered; Artifact is nil unless Delivered.
type Outcome struct {
	Kind     OutcomeKind
	Video    *VideoRef
	Metadata *VideoMetadata
	SizeMB   float64
	Artifact *DownloadArtifact
	Message  Chain
	Err      error
}

// HasMessage reports whether the outcome carries something to send.
func (o *Outcome) HasMessage() bool {
	return len(o.Message) > 0
}
