package bilibili

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"bilirelay/internal/core/domain"
)

const (
	DefaultBaseURL = "https://api.bilibili.com"
	viewPath       = "/x/web-interface/view"

	defaultTitle  = "未知标题"
	defaultAuthor = "未知UP主"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	referer   = "https://www.bilibili.com/"
)

// Client implements ports.MetadataClient against the public web API.
// Requests carry no session cookie.
type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Client. ratePerSec bounds outgoing API calls.
func NewClient(baseURL string, ratePerSec float64) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), 1),
	}
}

type viewResponse struct {
	Code    int       `json:"code"`
	Message string    `json:"message"`
	Data    *viewData `json:"data"`
}

type viewData struct {
	BVID     string `json:"bvid"`
	Title    string `json:"title"`
	Pic      string `json:"pic"`
	Duration int64  `json:"duration"`
	Owner    struct {
		Name string `json:"name"`
	} `json:"owner"`
	Stat viewStat `json:"stat"`
}

type viewStat struct {
	View     int64  `json:"view"`
	Like     int64  `json:"like"`
	Coin     int64  `json:"coin"`
	Share    int64  `json:"share"`
	Reply    int64  `json:"reply"`
	Duration *int64 `json:"duration"`
}

// VideoInfo fetches metadata for a "BV..." or "av..." identifier.
func (c *Client) VideoInfo(ctx context.Context, videoID string) (*domain.VideoMetadata, error) {
	query, err := idQuery(videoID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMetadataUnavailable, err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMetadataUnavailable, err)
	}

	reqURL := c.baseURL + viewPath + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", domain.ErrMetadataUnavailable, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", referer)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMetadataUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d, body: %s", domain.ErrMetadataUnavailable, resp.StatusCode, string(body))
	}

	var result viewResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: cannot decode response: %v", domain.ErrMetadataUnavailable, err)
	}
	if result.Code != 0 {
		return nil, fmt.Errorf("%w: api code %d: %s", domain.ErrMetadataUnavailable, result.Code, result.Message)
	}
	if result.Data == nil {
		return nil, fmt.Errorf("%w: empty data", domain.ErrMetadataUnavailable)
	}

	return toMetadata(result.Data), nil
}

func toMetadata(d *viewData) *domain.VideoMetadata {
	// stat.duration wins when present; the view payload normally carries it
	// at the top level.
	duration := d.Duration
	if d.Stat.Duration != nil {
		duration = *d.Stat.Duration
	}

	meta := &domain.VideoMetadata{
		Title:    d.Title,
		Author:   d.Owner.Name,
		Duration: domain.FormatDuration(duration),
		Views:    d.Stat.View,
		Likes:    d.Stat.Like,
		Coins:    d.Stat.Coin,
		Shares:   d.Stat.Share,
		Comments: d.Stat.Reply,
		CoverURL: d.Pic,
	}
	if meta.Title == "" {
		meta.Title = defaultTitle
	}
	if meta.Author == "" {
		meta.Author = defaultAuthor
	}
	return meta
}

func idQuery(videoID string) (url.Values, error) {
	q := url.Values{}
	switch {
	case strings.HasPrefix(videoID, "BV"):
		q.Set("bvid", videoID)
	case strings.HasPrefix(videoID, "av"):
		aid := strings.TrimPrefix(videoID, "av")
		if aid == "" {
			return nil, fmt.Errorf("invalid video id %q", videoID)
		}
		q.Set("aid", aid)
	default:
		return nil, fmt.Errorf("invalid video id %q", videoID)
	}
	return q, nil
}
