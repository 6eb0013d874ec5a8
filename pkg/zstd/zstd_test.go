package zstd

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampLevel(t *testing.T) {
	assert.Equal(t, DefaultLevel, ClampLevel(0))
	assert.Equal(t, DefaultLevel, ClampLevel(23))
	assert.Equal(t, 3, ClampLevel(3))
}

func TestZipRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("certificate chain "), 512)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	RegisterWriter(zw, 3)
	for _, name := range []string{"a.bin", "b.bin"} {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: ZipMethod})
		require.NoError(t, err)
		_, err = w.Write(payload)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	assert.Less(t, buf.Len(), 2*len(payload))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	RegisterReader(zr)
	require.Len(t, zr.File, 2)
	for _, f := range zr.File {
		assert.Equal(t, ZipMethod, f.Method)
		rc, err := f.Open()
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, payload, got)
	}
}
