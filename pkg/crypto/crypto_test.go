package crypto

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testCommonKey = []byte("0123456789abcdef")
	testTitleKey  = []byte("fedcba9876543210")
)

func TestTitleKeyRoundTrip(t *testing.T) {
	enc, err := EncryptTitleKey(testTitleKey, testCommonKey, 0x0001000573594D45)
	require.NoError(t, err)
	assert.NotEqual(t, testTitleKey, enc)

	dec, err := DecryptTitleKey(enc, testCommonKey, 0x0001000573594D45)
	require.NoError(t, err)
	assert.Equal(t, testTitleKey, dec)

	wrong, err := DecryptTitleKey(enc, testCommonKey, 0x0001000573594D46)
	require.NoError(t, err)
	assert.NotEqual(t, testTitleKey, wrong)
}

func TestIVs(t *testing.T) {
	assert.Equal(t, []byte{0, 1, 0, 5, 0x73, 0x59, 0x4D, 0x45, 0, 0, 0, 0, 0, 0, 0, 0}, TitleKeyIV(0x0001000573594D45))
	assert.Equal(t, []byte{0x01, 0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, ContentIV(0x0102))
}

func TestContentReader(t *testing.T) {
	for _, size := range []int{0, 16, 0x1230, contentChunk, contentChunk + 0x30} {
		plain := bytes.Repeat([]byte{0x5A, 0xA5, 0x11}, size/3+1)[:size]
		enc, err := CBCEncrypt(plain, testTitleKey, ContentIV(3))
		require.NoError(t, err)

		cr, err := NewContentReader(bytes.NewReader(enc), testTitleKey, 3)
		require.NoError(t, err)
		out, err := io.ReadAll(cr)
		require.NoError(t, err)
		assert.Equal(t, plain, out, "size 0x%x", size)
	}
}

func TestContentReaderPartialBlock(t *testing.T) {
	cr, err := NewContentReader(bytes.NewReader(make([]byte, 20)), testTitleKey, 0)
	require.NoError(t, err)
	_, err = io.ReadAll(cr)
	assert.Error(t, err)
}

func TestBadKeyLength(t *testing.T) {
	_, err := CBCDecrypt(make([]byte, 16), []byte("short"), make([]byte, 16))
	assert.Error(t, err)
	_, err = NewContentReader(nil, make([]byte, 15), 0)
	assert.Error(t, err)
}
