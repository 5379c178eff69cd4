package service

import (
	"context"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/mock"

	"bilirelay/internal/adapters/localstorage"
	"bilirelay/internal/config"
	"bilirelay/internal/core/domain"
	"bilirelay/internal/core/ports"
)

type mockMeta struct{ mock.Mock }

func (m *mockMeta) VideoInfo(ctx context.Context, videoID string) (*domain.VideoMetadata, error) {
	args := m.Called(ctx, videoID)
	meta, _ := args.Get(0).(*domain.VideoMetadata)
	return meta, args.Error(1)
}

type mockMedia struct{ mock.Mock }

func (m *mockMedia) Probe(ctx context.Context, videoURL string) (*ports.ProbeResult, error) {
	args := m.Called(ctx, videoURL)
	res, _ := args.Get(0).(*ports.ProbeResult)
	return res, args.Error(1)
}

func (m *mockMedia) Download(ctx context.Context, videoURL, outputPath string) error {
	return m.Called(ctx, videoURL, outputPath).Error(0)
}

type mockFetcher struct{ mock.Mock }

func (m *mockFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	args := m.Called(ctx, url)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

type mockSender struct{ mock.Mock }

func (m *mockSender) Send(ctx context.Context, to domain.Message, chain domain.Chain) error {
	return m.Called(ctx, to, chain).Error(0)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

var testMetadata = &domain.VideoMetadata{
	Title:    "Test video",
	Author:   "uploader",
	Duration: "2:05",
	Views:    100,
	Likes:    20,
	Coins:    3,
	Shares:   4,
	Comments: 5,
	CoverURL: "https://i0.hdslb.com/cover.jpg",
}

// pngBytes is a PNG signature followed by filler, enough for type sniffing.
var pngBytes = append([]byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}, make([]byte, 64)...)

type fixture struct {
	cfg      *config.Config
	fs       afero.Fs
	storage  *localstorage.LocalStorage
	meta     *mockMeta
	media    *mockMedia
	fetcher  *mockFetcher
	pipeline *Orchestrator
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.DataDir = "/data"
	cfg.CleanupDelay = 20 * time.Millisecond
	for _, fn := range mutate {
		fn(cfg)
	}

	fs := afero.NewMemMapFs()
	storage := localstorage.NewLocalStorageWithFS(fs, cfg.VideoDir(), cfg.ThumbnailDir())
	if err := storage.Init(); err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		cfg:     cfg,
		fs:      fs,
		storage: storage,
		meta:    &mockMeta{},
		media:   &mockMedia{},
		fetcher: &mockFetcher{},
	}

	noRedirects := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		t.Errorf("unexpected request to %s", r.URL)
		return nil, http.ErrUseLastResponse
	})}

	f.pipeline = NewOrchestrator(NewMatcher(noRedirects), f.meta, f.media, f.fetcher, storage, cfg, zerolog.Nop())
	return f
}

// downloadWrites makes the mocked downloader create the output file.
func (f *fixture) downloadWrites(content []byte) func(mock.Arguments) {
	return func(args mock.Arguments) {
		_ = afero.WriteFile(f.fs, args.String(2), content, 0o644)
	}
}

// files lists every regular file in the fixture filesystem.
func (f *fixture) files(t *testing.T) []string {
	t.Helper()
	var out []string
	_ = afero.Walk(f.fs, "/", func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			out = append(out, path)
		}
		return nil
	})
	return out
}
