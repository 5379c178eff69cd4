package localstorage

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimal PNG signature + IHDR chunk header, enough for type sniffing
var pngHeader = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
}

func newStorage(t *testing.T) (*LocalStorage, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s := NewLocalStorageWithFS(fs, "/data/bilibili_videos", "/data/bilibili_thumbnails")
	require.NoError(t, s.Init())
	return s, fs
}

func TestInitAndVideoPath(t *testing.T) {
	s, fs := newStorage(t)

	for _, dir := range []string{"/data/bilibili_videos", "/data/bilibili_thumbnails"} {
		ok, err := afero.DirExists(fs, dir)
		require.NoError(t, err)
		assert.True(t, ok, dir)
	}

	assert.Equal(t, "/data/bilibili_videos/BV1abc2DEF.mp4", s.VideoPath("BV1abc2DEF"))
	assert.Equal(t, s.VideoPath("BV1abc2DEF"), s.VideoPath("BV1abc2DEF"))
}

func TestHash(t *testing.T) {
	s, fs := newStorage(t)

	// larger than one chunk so streaming is exercised
	content := bytes.Repeat([]byte("0123456789abcdef"), 2000)
	path := s.VideoPath("BV1")
	require.NoError(t, afero.WriteFile(fs, path, content, 0o644))

	sum := md5.Sum(content)
	expected := hex.EncodeToString(sum[:])

	first, err := s.Hash(path)
	require.NoError(t, err)
	second, err := s.Hash(path)
	require.NoError(t, err)

	assert.Equal(t, expected, first)
	assert.Equal(t, first, second)

	_, err = s.Hash("/data/bilibili_videos/missing.mp4")
	require.Error(t, err)
}

// spyFs records how files opened through it are read.
type spyFs struct {
	afero.Fs
	maxRead int
	wroteTo bool
}

func (s *spyFs) Open(name string) (afero.File, error) {
	f, err := s.Fs.Open(name)
	if err != nil {
		return nil, err
	}
	return &spyFile{File: f, fs: s}, nil
}

// spyFile also offers WriteTo, like *os.File does.
type spyFile struct {
	afero.File
	fs *spyFs
}

func (f *spyFile) Read(p []byte) (int, error) {
	f.fs.maxRead = max(f.fs.maxRead, len(p))
	return f.File.Read(p)
}

func (f *spyFile) WriteTo(w io.Writer) (int64, error) {
	f.fs.wroteTo = true
	data, err := io.ReadAll(f.File)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

func TestHashReadsInChunks(t *testing.T) {
	spy := &spyFs{Fs: afero.NewMemMapFs()}
	s := NewLocalStorageWithFS(spy, "/videos", "/thumbs")
	require.NoError(t, s.Init())

	content := bytes.Repeat([]byte{0xab}, 3*hashChunkSize+17)
	path := s.VideoPath("BV1")
	require.NoError(t, afero.WriteFile(spy, path, content, 0o644))

	got, err := s.Hash(path)
	require.NoError(t, err)

	sum := md5.Sum(content)
	assert.Equal(t, hex.EncodeToString(sum[:]), got)
	assert.False(t, spy.wroteTo)
	assert.Equal(t, hashChunkSize, spy.maxRead)
}

func TestSaveAndCopyThumbnail(t *testing.T) {
	s, fs := newStorage(t)

	img := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0x01}, 500)...)

	saved, err := s.SaveThumbnail("abc123", bytes.NewReader(img))
	require.NoError(t, err)
	assert.Equal(t, "/data/bilibili_thumbnails/abc123.png", saved)

	data, err := afero.ReadFile(fs, saved)
	require.NoError(t, err)
	assert.Equal(t, img, data)

	copied, err := s.CopyThumbnail(saved, "/qq/thumbs", "abc123")
	require.NoError(t, err)
	assert.Equal(t, "/qq/thumbs/abc123_0.png", copied)

	copiedData, err := afero.ReadFile(fs, copied)
	require.NoError(t, err)
	assert.Equal(t, data, copiedData)
}

func TestSaveThumbnailRejectsNonImage(t *testing.T) {
	s, fs := newStorage(t)

	_, err := s.SaveThumbnail("abc123", bytes.NewReader([]byte("<html>blocked</html>")))
	require.Error(t, err)

	exists, err := afero.Exists(fs, "/data/bilibili_thumbnails/abc123.png")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSaveThumbnailRemovesPartialFile(t *testing.T) {
	s, fs := newStorage(t)

	img := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0x01}, 500)...)
	body := io.MultiReader(bytes.NewReader(img), iotest.ErrReader(errors.New("connection reset")))

	_, err := s.SaveThumbnail("abc123", body)
	require.Error(t, err)

	exists, err := afero.Exists(fs, "/data/bilibili_thumbnails/abc123.png")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRemove(t *testing.T) {
	s, fs := newStorage(t)

	path := s.VideoPath("BV1")
	require.NoError(t, afero.WriteFile(fs, path, []byte("x"), 0o644))
	assert.True(t, s.Exists(path))

	require.NoError(t, s.Remove(path))
	assert.False(t, s.Exists(path))

	// repeated and empty removals are no-ops
	require.NoError(t, s.Remove(path))
	require.NoError(t, s.Remove(""))
}
