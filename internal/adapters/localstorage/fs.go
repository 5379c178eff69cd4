package localstorage

import (
	"bufio"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/h2non/filetype"
	"github.com/spf13/afero"
)

const (
	hashChunkSize = 8 << 10
	sniffSize     = 261 // enough for filetype matchers
)

// LocalStorage implements ports.Storage on top of an afero filesystem.
type LocalStorage struct {
	fs           afero.Fs
	videoDir     string
	thumbnailDir string
}

// NewLocalStorage creates a LocalStorage backed by the OS filesystem.
func NewLocalStorage(videoDir, thumbnailDir string) *LocalStorage {
	return NewLocalStorageWithFS(afero.NewOsFs(), videoDir, thumbnailDir)
}

func NewLocalStorageWithFS(fs afero.Fs, videoDir, thumbnailDir string) *LocalStorage {
	return &LocalStorage{
		fs:           fs,
		videoDir:     videoDir,
		thumbnailDir: thumbnailDir,
	}
}

// Init creates the video and thumbnail directories.
func (s *LocalStorage) Init() error {
	for _, dir := range []string{s.videoDir, s.thumbnailDir} {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// VideoPath returns {videoDir}/{id}.mp4. The path depends on the ID only, so
// concurrent requests for the same video share it.
func (s *LocalStorage) VideoPath(videoID string) string {
	return filepath.Join(s.videoDir, videoID+".mp4")
}

func (s *LocalStorage) Exists(path string) bool {
	fi, err := s.fs.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// Hash streams the file through MD5 in fixed-size chunks.
func (s *LocalStorage) Hash(path string) (string, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := md5.New()
	// hide WriterTo so the copy really goes through the buffer
	if _, err := io.CopyBuffer(h, struct{ io.Reader }{f}, make([]byte, hashChunkSize)); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SaveThumbnail writes r to {thumbnailDir}/{hash}.png. The content must
// look like an image.
func (s *LocalStorage) SaveThumbnail(hash string, r io.Reader) (string, error) {
	br := bufio.NewReaderSize(r, sniffSize)
	head, err := br.Peek(sniffSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", fmt.Errorf("failed to read thumbnail: %w", err)
	}
	if !filetype.IsImage(head) {
		return "", fmt.Errorf("thumbnail is not an image")
	}

	path := filepath.Join(s.thumbnailDir, hash+".png")
	if err := s.writeFile(path, br); err != nil {
		return "", err
	}
	return path, nil
}

// CopyThumbnail copies src to {dir}/{hash}_0.png.
func (s *LocalStorage) CopyThumbnail(src, dir, hash string) (string, error) {
	in, err := s.fs.Open(src)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	dst := filepath.Join(dir, hash+"_0.png")
	if err := s.writeFile(dst, in); err != nil {
		return "", err
	}
	return dst, nil
}

// Remove deletes path; a missing file is not an error.
func (s *LocalStorage) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// writeFile copies r to path. On failure the partial file is removed, since
// the caller never learns its path.
func (s *LocalStorage) writeFile(path string, r io.Reader) error {
	file, err := s.fs.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", path, err)
	}

	_, err = io.Copy(file, r)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = s.fs.Remove(path)
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}
	return nil
}
