package archive

import (
	"bytes"
	"io"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var files = map[string][]byte{
	"cert_chain.bin": bytes.Repeat([]byte{0xCE}, 0xA00),
	"ticket.bin":     bytes.Repeat([]byte{0x71}, 0x2A4),
	"00000001.app":   bytes.Repeat([]byte("content"), 100),
}

func writeAll(t *testing.T, w Writer) {
	t.Helper()
	for name, data := range files {
		n, err := w.Create(name, bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), n)
	}
	require.NoError(t, w.Close())
}

func readAll(t *testing.T, path string) {
	t.Helper()
	src, err := Open(path)
	require.NoError(t, err)
	defer src.Close()

	for name, data := range files {
		r, size, err := src.Open(name)
		require.NoError(t, err)
		got, err := io.ReadAll(r)
		require.NoError(t, err)
		require.NoError(t, r.Close())
		assert.Equal(t, int64(len(data)), size)
		assert.Equal(t, data, got, name)
	}

	_, _, err = src.Open("tmd.bin")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestDirRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out", "nested")
	w, err := NewDirWriter(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, w.Dir())
	writeAll(t, w)
	readAll(t, dir)
}

func TestZipRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unpacked.zip")
	w, err := NewZipWriter(path, 3)
	require.NoError(t, err)
	writeAll(t, w)
	readAll(t, path)
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestDirCreateFailureRemovesFile(t *testing.T) {
	dir := t.TempDir()
	w, err := NewDirWriter(dir)
	require.NoError(t, err)

	_, err = w.Create("broken.app", failingReader{})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.NoFileExists(t, filepath.Join(dir, "broken.app"))
}
