package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"bilirelay/internal/core/domain"
)

var (
	// VideoPattern matches a watch-page link; group 2 is the video ID.
	VideoPattern = regexp.MustCompile(`(https?://)?www\.bilibili\.com/video/(BV\w+|av\d+)/?`)
	// ShortLinkPattern matches share links that redirect to a watch page.
	ShortLinkPattern = regexp.MustCompile(`(https?://(?:b23\.tv|bili2233\.cn)/[A-Za-z\d._?%&+\-=/#]+)`)
)

// Matcher extracts a VideoRef from message text.
type Matcher struct {
	client *http.Client
}

// NewMatcher creates a Matcher. client is used for short-link resolution
// and must not be shared with code that expects redirects to be followed.
func NewMatcher(client *http.Client) *Matcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &Matcher{client: &c}
}

// MatchDirect applies the watch-page pattern to text. Only the first match
// is used.
func MatchDirect(text string) (domain.VideoRef, bool) {
	m := VideoPattern.FindStringSubmatch(text)
	if m == nil {
		return domain.VideoRef{}, false
	}
	return domain.VideoRef{CanonicalURL: m[0], ID: m[2]}, true
}

// Match returns the video referenced by text, resolving a short link when no
// direct link is present.
func (m *Matcher) Match(ctx context.Context, text string) (domain.VideoRef, error) {
	if ref, ok := MatchDirect(text); ok {
		return ref, nil
	}

	short := ShortLinkPattern.FindString(text)
	if short == "" {
		return domain.VideoRef{}, domain.ErrNotMatched
	}

	target, err := m.resolve(ctx, short)
	if err != nil {
		return domain.VideoRef{}, fmt.Errorf("%w: cannot resolve %s: %v", domain.ErrNotMatched, short, err)
	}

	ref, ok := MatchDirect(target)
	if !ok {
		return domain.VideoRef{}, fmt.Errorf("%w: %s redirects to %s", domain.ErrNotMatched, short, target)
	}
	return ref, nil
}

// resolve follows a single redirect hop and returns its target.
func (m *Matcher) resolve(ctx context.Context, shortURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, shortURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if loc, err := resp.Location(); err == nil {
		return loc.String(), nil
	}
	return resp.Request.URL.String(), nil
}
