package tmd

import (
	"testing"

	"github.com/falk/wadsplit-go/internal/wadtest"
	"github.com/falk/wadsplit-go/pkg/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testContents = []wadtest.Content{
	{ID: 0, Index: 0, Type: wadtest.ContentTypeNormal, Size: 0x40},
	{ID: 1, Index: 1, Type: wadtest.ContentTypeDLC, Size: 0x1230, Hash: [20]byte{1, 2, 3}},
	{ID: 2, Index: 2, Type: wadtest.ContentTypeDLC, Size: 0x81},
}

func encodeTestTMD(t *testing.T) []byte {
	t.Helper()
	return wadtest.Signed(t, signature.TypeRsa2048Sha1, nil, wadtest.TMDBody(0x00010005735A4B45, testContents))
}

func TestDecode(t *testing.T) {
	raw := encodeTestTMD(t)
	m, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, wadtest.TMDIssuer, m.IssuerString())
	assert.Equal(t, uint64(0x00010005735A4B45), m.TitleID)
	assert.Equal(t, uint16(16), m.TitleVersion)
	assert.Equal(t, uint16(3), m.Region)
	require.Len(t, m.Contents, 3)
	assert.Equal(t, uint64(0x1230), m.Contents[1].Size)
	assert.Equal(t, [HashSize]byte{1, 2, 3}, m.Contents[1].Hash)
	assert.Equal(t, 0x140+HeaderSize+3*RecordSize, m.Size())
	assert.Equal(t, raw, m.Raw())

	out, err := m.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestContentFlags(t *testing.T) {
	m, err := Decode(encodeTestTMD(t))
	require.NoError(t, err)

	assert.False(t, m.Contents[0].IsDLC())
	assert.True(t, m.Contents[1].IsDLC())
	assert.Len(t, m.DLC(), 2)

	assert.Equal(t, uint64(0x1230), m.Contents[1].EncryptedSize())
	assert.Equal(t, uint64(0x90), m.Contents[2].EncryptedSize())
	assert.Equal(t, uint64(0x40+0x1230+0x81), m.TotalSize())

	shared := Content{Type: ContentTypeShared | ContentTypeNormal}
	assert.False(t, shared.IsDLC())
}

func TestFind(t *testing.T) {
	m, err := Decode(encodeTestTMD(t))
	require.NoError(t, err)

	c, ok := m.Find(2)
	require.True(t, ok)
	assert.Equal(t, uint32(2), c.ID)

	_, ok = m.Find(7)
	assert.False(t, ok)
}

func TestReduce(t *testing.T) {
	raw := encodeTestTMD(t)
	m, err := Decode(raw)
	require.NoError(t, err)

	reduced, err := m.Reduce(m.Contents[1])
	require.NoError(t, err)
	require.Len(t, reduced.Contents, 1)
	assert.Equal(t, uint16(1), reduced.Contents[0].Index)
	assert.Equal(t, uint64(0x1230), reduced.TotalSize())
	assert.Equal(t, 0x140+HeaderSize+RecordSize, reduced.Size())
	assert.Len(t, reduced.Raw(), reduced.Size())

	// signature block carried verbatim
	assert.Equal(t, raw[:0x140], reduced.Raw()[:0x140])

	again, err := Decode(reduced.Raw())
	require.NoError(t, err)
	assert.Equal(t, reduced.Contents, again.Contents)
	assert.Equal(t, m.TitleID, again.TitleID)

	// the source TMD is untouched
	assert.Len(t, m.Contents, 3)
}

func TestDecodeMalformed(t *testing.T) {
	raw := encodeTestTMD(t)

	_, err := Decode(raw[:len(raw)-1])
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode(raw[:0x140+0x20])
	assert.ErrorIs(t, err, ErrMalformed)

	empty := wadtest.Signed(t, signature.TypeRsa2048Sha1, nil, wadtest.TMDBody(1, nil))
	_, err = Decode(empty)
	assert.ErrorIs(t, err, ErrMalformed)
}
