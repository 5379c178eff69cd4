package domain

import "fmt"

// VideoRef identifies the video a message points at.
type VideoRef struct {
	CanonicalURL string `json:"url"`
	ID           string `json:"id"` // "BV..." or "av..."
}

// VideoMetadata holds the display fields for a video.
// Numeric fields are zero when the platform omits them.
type VideoMetadata struct {
	Title    string `json:"title"`
	Author   string `json:"author"`
	Duration string `json:"duration"` // m:ss
	Views    int64  `json:"views"`
	Likes    int64  `json:"likes"`
	Coins    int64  `json:"coins"`
	Shares   int64  `json:"shares"`
	Comments int64  `json:"comments"`
	CoverURL string `json:"cover_url"`
}

// DownloadArtifact is the set of transient files produced for one video.
type DownloadArtifact struct {
	VideoID               string
	VideoPath             string
	ContentHash           string // MD5 of the video file
	ThumbnailPath         string // empty when no thumbnail was stored
	ExternalThumbnailPath string
}

// FormatDuration renders seconds as minutes:seconds with zero-padded seconds.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
