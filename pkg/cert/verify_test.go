package cert

import (
	"encoding/binary"
	"testing"

	"github.com/falk/wadsplit-go/internal/wadtest"
	"github.com/falk/wadsplit-go/pkg/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureChain(t *testing.T) (*wadtest.Fixture, *Chain) {
	t.Helper()
	f := wadtest.NewFixture(t)
	chain, err := Parse(f.Chain())
	require.NoError(t, err)
	return f, chain
}

func TestVerifyPayloadValid(t *testing.T) {
	f, chain := fixtureChain(t)

	ticket := f.Ticket(t, 0x00010005735A4B45, make([]byte, 16))
	res, err := chain.VerifyPayload(ticket)
	require.NoError(t, err)
	assert.Equal(t, StatusValid, res.Status)
	assert.True(t, res.Verified())
	assert.Equal(t, "XS00000003", res.Issuer.Common.NameString())
	assert.Equal(t, signature.TypeRsa2048Sha1, res.Type)

	tmd := f.TMD(t, 0x00010005735A4B45, []wadtest.Content{{ID: 1, Index: 0, Type: wadtest.ContentTypeNormal, Size: 0x40}})
	res, err = chain.VerifyPayload(tmd)
	require.NoError(t, err)
	assert.True(t, res.Verified())
	assert.Equal(t, "CP00000004", res.Issuer.Common.NameString())
}

func TestVerifyPayloadCorruptedSignature(t *testing.T) {
	f, chain := fixtureChain(t)
	ticket := f.Ticket(t, 0x00010005735A4B45, make([]byte, 16))

	ticket[signature.TypeSize+10] ^= 0xFF
	res, err := chain.VerifyPayload(ticket)
	require.NoError(t, err, "a bad signature is not a procedural failure")
	assert.Equal(t, StatusInvalid, res.Status)
	assert.False(t, res.Verified())
}

func TestVerifyPayloadCorruptedBody(t *testing.T) {
	f, chain := fixtureChain(t)
	ticket := f.Ticket(t, 0x00010005735A4B45, make([]byte, 16))

	ticket[len(ticket)-1] ^= 0x01
	res, err := chain.VerifyPayload(ticket)
	require.NoError(t, err)
	assert.Equal(t, StatusInvalid, res.Status)
}

func TestVerifyPayloadIssuerNotFound(t *testing.T) {
	f, chain := fixtureChain(t)
	body := wadtest.TicketBody(0x00010005735A4B45, nil, 0)
	copy(body, wadtest.Name("Root-CA00000001-XS0000000F"))
	payload := wadtest.Signed(t, signature.TypeRsa2048Sha1, f.XS, body)

	_, err := chain.VerifyPayload(payload)
	assert.ErrorIs(t, err, ErrIssuerNotFound)
}

func TestVerifyPayloadUnusableIssuerKey(t *testing.T) {
	f, chain := fixtureChain(t)
	ticket := f.Ticket(t, 0x00010005735A4B45, make([]byte, 16))
	xs := chain.Certificates()[1]

	for _, e := range []uint32{0, 1, 65536} {
		xs.PublicKey.Exponent = e
		_, err := chain.VerifyPayload(ticket)
		assert.ErrorIs(t, err, ErrInvalidKey, "exponent %d", e)
	}

	xs.PublicKey.Exponent = 65537
	key := append([]byte(nil), xs.PublicKey.Key...)
	xs.PublicKey.Key = make([]byte, len(key))
	_, err := chain.VerifyPayload(ticket)
	assert.ErrorIs(t, err, ErrInvalidKey)

	xs.PublicKey.Key = key
	res, err := chain.VerifyPayload(ticket)
	require.NoError(t, err)
	assert.Equal(t, StatusValid, res.Status)
}

func TestVerifyPayloadUnknownTag(t *testing.T) {
	f, chain := fixtureChain(t)
	ticket := f.Ticket(t, 0x00010005735A4B45, make([]byte, 16))
	binary.BigEndian.PutUint32(ticket, 0x20000)

	_, err := chain.VerifyPayload(ticket)
	assert.ErrorIs(t, err, ErrMalformedPayload)
	assert.ErrorIs(t, err, signature.ErrUnknownType)
}

func TestVerifyPayloadTooShort(t *testing.T) {
	_, chain := fixtureChain(t)
	payload := make([]byte, signature.BlockSizeRsa2048+0x10)
	binary.BigEndian.PutUint32(payload, uint32(signature.TypeRsa2048Sha1))

	_, err := chain.VerifyPayload(payload)
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestVerifyPayloadKeyMismatch(t *testing.T) {
	_, chain := fixtureChain(t)
	body := wadtest.TicketBody(0x00010005735A4B45, nil, 0)
	payload := wadtest.Signed(t, signature.TypeEcc480Sha1, nil, body)

	_, err := chain.VerifyPayload(payload)
	assert.ErrorIs(t, err, ErrKeyMismatch)
}

func TestVerifyPayloadHmacUnsupported(t *testing.T) {
	_, chain := fixtureChain(t)
	body := wadtest.TicketBody(0x00010005735A4B45, nil, 0)
	payload := wadtest.Signed(t, signature.TypeHmac160Sha1, nil, body)

	res, err := chain.VerifyPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, StatusUnsupported, res.Status)
	assert.False(t, res.Verified())
	assert.Equal(t, "XS00000003", res.Issuer.Common.NameString())
}

func TestVerifyPayloadEcc(t *testing.T) {
	ca := wadtest.NewRSAKey(t, "CA00000001", 2048)
	ms := wadtest.NewECCKey(t, "MS00000002")

	var raw []byte
	raw = append(raw, wadtest.Certificate(t, signature.TypeRsa4096Sha1, "Root", nil, ca)...)
	raw = append(raw, wadtest.Certificate(t, signature.TypeRsa2048Sha256, "Root-CA00000001", ca, ms)...)
	chain, err := Parse(raw)
	require.NoError(t, err)

	body := append(wadtest.Name("Root-CA00000001-MS00000002"), []byte("device certificate body")...)
	payload := wadtest.Signed(t, signature.TypeEcc480Sha1, ms, body)

	res, err := chain.VerifyPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, StatusValid, res.Status)

	payload[signature.TypeSize] ^= 0x01
	res, err = chain.VerifyPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, StatusInvalid, res.Status)

	results, err := chain.VerifyCertificates()
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, ErrIssuerNotFound)
	require.NoError(t, results[1].Err)
	assert.Equal(t, StatusValid, results[1].Result.Status)
}

func TestVerifyPayloadRsa4096(t *testing.T) {
	ca := wadtest.NewRSAKey(t, "CA00000001", 4096)
	raw := wadtest.Certificate(t, signature.TypeRsa4096Sha1, "Root", nil, ca)
	chain, err := Parse(raw)
	require.NoError(t, err)

	body := append(wadtest.Name("Root-CA00000001"), []byte("signed by the CA")...)
	payload := wadtest.Signed(t, signature.TypeRsa4096Sha256, ca, body)

	res, err := chain.VerifyPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, StatusValid, res.Status)
}

func TestVerifyCertificates(t *testing.T) {
	_, chain := fixtureChain(t)

	results, err := chain.VerifyCertificates()
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "CA00000001", results[0].Certificate.Common.NameString())
	assert.ErrorIs(t, results[0].Err, ErrIssuerNotFound, "the root key is not part of the chain")

	for _, r := range results[1:] {
		require.NoError(t, r.Err)
		assert.True(t, r.Result.Verified(), r.Certificate.Common.NameString())
		assert.Equal(t, "CA00000001", r.Result.Issuer.Common.NameString())
	}
}

func TestIssuerName(t *testing.T) {
	assert.Equal(t, []byte("XS00000003"), IssuerName(wadtest.Name("Root-CA00000001-XS00000003")))
	assert.Equal(t, []byte("CA00000001"), IssuerName([]byte("Root-CA00000001")))
	assert.Equal(t, []byte("Root"), IssuerName([]byte("Root")))
}
