package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"bilirelay/internal/core/domain"
)

const (
	// MaxCoverSize caps how much of a cover response is read.
	MaxCoverSize = 10 << 20

	coverReferer = "https://www.bilibili.com/"
)

// StatusError reports a non-200 response from the image host.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.URL, e.Code)
}

// HTTPDownloader implements ports.Fetcher for cover images on the CDN.
type HTTPDownloader struct {
	client  *http.Client
	maxSize int64
}

func NewHTTPDownloader() *HTTPDownloader {
	return &HTTPDownloader{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxSize: MaxCoverSize,
	}
}

// Fetch opens the cover at url. Every failure wraps domain.ErrThumbnail;
// a bad status additionally carries a *StatusError. The returned body
// yields at most MaxCoverSize bytes.
func (d *HTTPDownloader) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: no cover url", domain.ErrThumbnail)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrThumbnail, err)
	}
	// the CDN rejects hotlinked requests without a site referer
	req.Header.Set("Referer", coverReferer)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrThumbnail, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %w", domain.ErrThumbnail, &StatusError{URL: url, Code: resp.StatusCode})
	}
	if resp.ContentLength > d.maxSize {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s is %d bytes", domain.ErrThumbnail, url, resp.ContentLength)
	}

	return limitedBody{Reader: io.LimitReader(resp.Body, d.maxSize), Closer: resp.Body}, nil
}

type limitedBody struct {
	io.Reader
	io.Closer
}
