package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"bilirelay/internal/core/ports"
)

const (
	// ProbeFormat matches what the real download will select.
	ProbeFormat = "bv*+ba/bv*"
	// DownloadFormat prefers an mp4+m4a pair and falls back to the best pair.
	DownloadFormat = "bv*[ext=mp4]+ba[ext=m4a]/bv*+ba"
	MergeFormat    = "mp4"

	probeTimeout    = 2 * time.Minute
	downloadTimeout = 30 * time.Minute
)

// runFunc executes the binary with args and returns stdout.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// YtDlpDownloader implements ports.MediaDownloader with the yt-dlp binary.
type YtDlpDownloader struct {
	binaryPath string
	cookieFile string
	run        runFunc
}

// NewYtDlpDownloader creates a new downloader. cookieFile is passed to the
// real download only when it exists.
func NewYtDlpDownloader(binaryPath, cookieFile string) *YtDlpDownloader {
	if binaryPath == "" {
		binaryPath = "yt-dlp" // Assumes yt-dlp is in PATH
	}
	return &YtDlpDownloader{
		binaryPath: binaryPath,
		cookieFile: cookieFile,
		run:        runCommand,
	}
}

// probeJSON is the subset of the yt-dlp info dict the size gate needs.
type probeJSON struct {
	Type           string      `json:"_type"`
	ID             string      `json:"id"`
	FileSize       *int64      `json:"filesize"`
	FileSizeApprox *float64    `json:"filesize_approx"`
	Entries        []probeJSON `json:"entries"`
}

// Probe estimates the output size without downloading anything.
func (d *YtDlpDownloader) Probe(ctx context.Context, videoURL string) (*ports.ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	// -J dumps the info dict and implies --simulate
	out, err := d.run(ctx, d.binaryPath, d.probeArgs(videoURL)...)
	if err != nil {
		return nil, err
	}

	size, err := parseProbe(out)
	if err != nil {
		return nil, err
	}
	return &ports.ProbeResult{SizeBytes: size}, nil
}

// Download writes the merged mp4 to outputPath.
func (d *YtDlpDownloader) Download(ctx context.Context, videoURL, outputPath string) error {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	if _, err := d.run(ctx, d.binaryPath, d.downloadArgs(videoURL, outputPath)...); err != nil {
		return err
	}
	return nil
}

func (d *YtDlpDownloader) probeArgs(videoURL string) []string {
	return []string{
		"-J",
		"-q", "--no-warnings",
		"-f", ProbeFormat,
		videoURL,
	}
}

func (d *YtDlpDownloader) downloadArgs(videoURL, outputPath string) []string {
	args := []string{
		"-f", DownloadFormat,
		"--merge-output-format", MergeFormat,
		"-o", outputPath,
		"-q", "--no-warnings", "--no-progress",
	}
	if d.hasCookies() {
		args = append(args, "--cookies", d.cookieFile)
	}
	return append(args, videoURL)
}

// hasCookies reports whether the cookie file is usable. A missing file only
// limits which formats are reachable.
func (d *YtDlpDownloader) hasCookies() bool {
	if d.cookieFile == "" {
		return false
	}
	fi, err := os.Stat(d.cookieFile)
	return err == nil && fi.Mode().IsRegular()
}

// parseProbe returns the estimated size in bytes, or 0 when unknown.
func parseProbe(out []byte) (int64, error) {
	var info probeJSON
	if err := json.Unmarshal(out, &info); err != nil {
		return 0, fmt.Errorf("cannot decode yt-dlp output: %w", err)
	}

	if info.Type == "playlist" {
		if len(info.Entries) == 0 {
			return 0, nil
		}
		info = info.Entries[0]
	}

	switch {
	case info.FileSize != nil && *info.FileSize > 0:
		return *info.FileSize, nil
	case info.FileSizeApprox != nil && *info.FileSizeApprox > 0:
		return int64(*info.FileSizeApprox), nil
	}
	return 0, nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("yt-dlp failed: %w, stderr: %s", err, truncate(strings.TrimSpace(stderr.String()), 300))
	}
	return out.Bytes(), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
