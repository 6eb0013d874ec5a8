package cert

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/falk/wadsplit-go/internal/wadtest"
	"github.com/falk/wadsplit-go/pkg/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mixedChain(t *testing.T) []byte {
	t.Helper()
	var raw []byte
	raw = append(raw, wadtest.Certificate(t, signature.TypeRsa4096Sha256, "Root", nil, wadtest.RandomKey("CA00000001", 0))...)
	raw = append(raw, wadtest.Certificate(t, signature.TypeRsa2048Sha1, "Root-CA00000001", nil, wadtest.RandomKey("XS00000003", 1))...)
	raw = append(raw, wadtest.Certificate(t, signature.TypeEcc480Sha256, "Root-CA00000001", nil, wadtest.RandomKey("MS00000002", 2))...)
	raw = append(raw, wadtest.Certificate(t, signature.TypeHmac160Sha1, "Root-CA00000001-MS00000002", nil, wadtest.RandomKey("NG01234567", 2))...)
	return raw
}

func TestLoadRoundTrip(t *testing.T) {
	raw := mixedChain(t)
	chain, err := Load(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	require.Equal(t, 4, chain.Len())

	assert.True(t, bytes.Equal(raw, chain.Bytes()))

	total := 0
	for _, c := range chain.Certificates() {
		assert.Equal(t, total, c.Offset())
		assert.True(t, bytes.Equal(raw[total:total+c.Size()], c.Raw()))
		total += c.Size()
	}
	assert.Equal(t, len(raw), total)
	assert.Equal(t, ShapeSigRsa4096PubKeyRsa4096, chain.Certificates()[0].Shape())
	assert.Equal(t, ShapeSigHmac160PubKeyEcc480, chain.Certificates()[3].Shape())
}

func TestLoadCertificatesAliasBuffer(t *testing.T) {
	raw := mixedChain(t)
	chain, err := Parse(raw)
	require.NoError(t, err)

	first := chain.Certificates()[0]
	buf := chain.Bytes()
	assert.Same(t, &buf[0], &first.Raw()[0])
	second := chain.Certificates()[1]
	assert.Same(t, &buf[second.Offset()], &second.Raw()[0])
}

func TestLoadDeclaredSizeTooSmall(t *testing.T) {
	raw := mixedChain(t)
	chain, err := Load(bytes.NewReader(raw), int64(len(raw)-1))
	assert.ErrorIs(t, err, ErrChainSize)
	assert.Nil(t, chain)
}

func TestLoadDeclaredSizeTooLarge(t *testing.T) {
	raw := mixedChain(t)

	chain, err := Load(bytes.NewReader(raw), int64(len(raw)+0x40))
	assert.ErrorIs(t, err, ErrTruncated)
	assert.Nil(t, chain)

	padded := append(append([]byte(nil), raw...), make([]byte, 0x40)...)
	chain, err = Load(bytes.NewReader(padded), int64(len(padded)))
	assert.ErrorIs(t, err, signature.ErrUnknownType)
	assert.Nil(t, chain)
}

func TestLoadUnknownTags(t *testing.T) {
	raw := mixedChain(t)

	badSig := append([]byte(nil), raw...)
	binary.BigEndian.PutUint32(badSig, 0x10007)
	_, err := Parse(badSig)
	assert.ErrorIs(t, err, signature.ErrUnknownType)

	badKey := append([]byte(nil), raw...)
	binary.BigEndian.PutUint32(badKey[signature.BlockSizeRsa4096+NameSize:], 9)
	_, err = Parse(badKey)
	assert.ErrorIs(t, err, ErrUnknownKeyType)
}

func TestLoadEmpty(t *testing.T) {
	_, err := Load(bytes.NewReader(nil), 0)
	assert.ErrorIs(t, err, ErrChainSize)
}

func TestLookup(t *testing.T) {
	chain, err := Parse(mixedChain(t))
	require.NoError(t, err)

	c, err := chain.Lookup([]byte("XS00000003"))
	require.NoError(t, err)
	assert.Equal(t, "XS00000003", c.Common.NameString())

	_, err = chain.Lookup([]byte("XS0000000"))
	assert.ErrorIs(t, err, ErrIssuerNotFound)

	_, err = chain.Lookup(bytes.Repeat([]byte("A"), NameSize+1))
	assert.ErrorIs(t, err, ErrIssuerNotFound)
}

func TestRelease(t *testing.T) {
	chain, err := Parse(mixedChain(t))
	require.NoError(t, err)

	chain.Release()
	assert.Equal(t, 0, chain.Len())
	assert.Nil(t, chain.Bytes())

	_, err = chain.Lookup([]byte("XS00000003"))
	assert.ErrorIs(t, err, ErrReleased)
	_, err = chain.VerifyPayload(make([]byte, 0x200))
	assert.ErrorIs(t, err, ErrReleased)
}
