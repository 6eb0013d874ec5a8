package cert

import (
	"bytes"
	"crypto/rsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/falk/wadsplit-go/pkg/ecc"
	"github.com/falk/wadsplit-go/pkg/signature"
	"golang.org/x/crypto/cryptobyte"
)

// PubKeyType is the public key tag stored big endian in the common block.
type PubKeyType uint32

const (
	PubKeyRsa4096 PubKeyType = 0
	PubKeyRsa2048 PubKeyType = 1
	PubKeyEcc480  PubKeyType = 2
)

const (
	CommonBlockSize = 0x88
	NameSize        = 0x40

	PubKeyBlockSizeRsa4096 = 0x238
	PubKeyBlockSizeRsa2048 = 0x138
	PubKeyBlockSizeEcc480  = 0x78
)

var (
	ErrUnknownKeyType = errors.New("cert: unknown public key type")
	ErrTruncated      = errors.New("cert: truncated certificate")
	ErrInvalidKey     = errors.New("cert: unusable public key")
)

// ParsePubKeyType validates a raw key type tag.
func ParsePubKeyType(tag uint32) (PubKeyType, error) {
	switch k := PubKeyType(tag); k {
	case PubKeyRsa4096, PubKeyRsa2048, PubKeyEcc480:
		return k, nil
	}
	return 0, fmt.Errorf("%w: 0x%08x", ErrUnknownKeyType, tag)
}

// KeySize is the length of the raw modulus or curve point.
func (k PubKeyType) KeySize() int {
	switch k {
	case PubKeyRsa4096:
		return 0x200
	case PubKeyRsa2048:
		return 0x100
	case PubKeyEcc480:
		return ecc.PublicKeySize
	}
	panic(fmt.Sprintf("cert: invalid key type %d", uint32(k)))
}

// BlockSize is the full public key block length.
func (k PubKeyType) BlockSize() int {
	switch k {
	case PubKeyRsa4096:
		return PubKeyBlockSizeRsa4096
	case PubKeyRsa2048:
		return PubKeyBlockSizeRsa2048
	case PubKeyEcc480:
		return PubKeyBlockSizeEcc480
	}
	panic(fmt.Sprintf("cert: invalid key type %d", uint32(k)))
}

func (k PubKeyType) hasExponent() bool {
	return k == PubKeyRsa4096 || k == PubKeyRsa2048
}

func (k PubKeyType) String() string {
	switch k {
	case PubKeyRsa4096:
		return "RSA-4096"
	case PubKeyRsa2048:
		return "RSA-2048"
	case PubKeyEcc480:
		return "ECC-480"
	}
	return fmt.Sprintf("unknown (0x%08x)", uint32(k))
}

// Shape enumerates the twelve signature/key combinations.
type Shape int

const (
	ShapeSigRsa4096PubKeyRsa4096 Shape = iota + 1
	ShapeSigRsa4096PubKeyRsa2048
	ShapeSigRsa4096PubKeyEcc480
	ShapeSigRsa2048PubKeyRsa4096
	ShapeSigRsa2048PubKeyRsa2048
	ShapeSigRsa2048PubKeyEcc480
	ShapeSigEcc480PubKeyRsa4096
	ShapeSigEcc480PubKeyRsa2048
	ShapeSigEcc480PubKeyEcc480
	ShapeSigHmac160PubKeyRsa4096
	ShapeSigHmac160PubKeyRsa2048
	ShapeSigHmac160PubKeyEcc480
)

// ShapeOf maps a validated signature type and key type to their shape.
func ShapeOf(sig signature.Type, key PubKeyType) Shape {
	return Shape(int(sig.Family())*3 + int(key) + 1)
}

func (s Shape) String() string {
	if s < ShapeSigRsa4096PubKeyRsa4096 || s > ShapeSigHmac160PubKeyEcc480 {
		return fmt.Sprintf("Shape(%d)", int(s))
	}
	families := [...]string{"RSA-4096", "RSA-2048", "ECC-480", "HMAC-160"}
	return fmt.Sprintf("Sig%s/PubKey%s", families[(s-1)/3], PubKeyType((s-1)%3))
}

// CommonBlock follows the signature block. Issuer and Name alias the chain buffer.
type CommonBlock struct {
	Issuer  []byte
	KeyType PubKeyType
	Name    []byte
	Date    uint32
}

func (b *CommonBlock) IssuerString() string {
	return string(bytes.TrimRight(b.Issuer, "\x00"))
}

func (b *CommonBlock) NameString() string {
	return string(bytes.TrimRight(b.Name, "\x00"))
}

// PublicKeyBlock holds the raw key material. Exponent is zero for ECC keys.
type PublicKeyBlock struct {
	Key      []byte
	Exponent uint32
	Padding  []byte
}

// Certificate is one decoded record of a chain. Raw spans the exact encoded bytes.
type Certificate struct {
	Signature signature.Block
	Common    CommonBlock
	PublicKey PublicKeyBlock

	offset int
	raw    []byte
}

// Decode parses one certificate at the start of buf and returns the remaining bytes.
// The returned certificate aliases buf.
func Decode(buf []byte) (*Certificate, []byte, error) {
	sig, rest, err := signature.Decode(buf)
	if err != nil {
		if errors.Is(err, signature.ErrTruncated) {
			return nil, nil, fmt.Errorf("%w: %w", ErrTruncated, err)
		}
		return nil, nil, err
	}

	c := &Certificate{Signature: *sig}
	s := cryptobyte.String(rest)
	var keyTag uint32
	if !s.ReadBytes(&c.Common.Issuer, NameSize) ||
		!s.ReadUint32(&keyTag) ||
		!s.ReadBytes(&c.Common.Name, NameSize) ||
		!s.ReadUint32(&c.Common.Date) {
		return nil, nil, fmt.Errorf("%w: common block", ErrTruncated)
	}

	c.Common.KeyType, err = ParsePubKeyType(keyTag)
	if err != nil {
		return nil, nil, err
	}

	keyType := c.Common.KeyType
	padding := keyType.BlockSize() - keyType.KeySize()
	if !s.ReadBytes(&c.PublicKey.Key, keyType.KeySize()) {
		return nil, nil, fmt.Errorf("%w: %s public key", ErrTruncated, keyType)
	}
	if keyType.hasExponent() {
		if !s.ReadUint32(&c.PublicKey.Exponent) {
			return nil, nil, fmt.Errorf("%w: public exponent", ErrTruncated)
		}
		padding -= 4
	}
	if !s.ReadBytes(&c.PublicKey.Padding, padding) {
		return nil, nil, fmt.Errorf("%w: public key padding", ErrTruncated)
	}

	c.raw = buf[:c.Size()]
	return c, []byte(s), nil
}

// Shape reports which of the twelve layouts this certificate uses.
func (c *Certificate) Shape() Shape {
	return ShapeOf(c.Signature.Type, c.Common.KeyType)
}

// Size is computed from the component layouts.
func (c *Certificate) Size() int {
	return c.Signature.Type.BlockSize() + CommonBlockSize + c.Common.KeyType.BlockSize()
}

// Offset is the position of the certificate inside its chain buffer.
func (c *Certificate) Offset() int {
	return c.offset
}

// Raw returns the encoded certificate as it was read.
func (c *Certificate) Raw() []byte {
	return c.raw
}

// Marshal re-encodes the certificate from its decoded fields.
func (c *Certificate) Marshal(b *cryptobyte.Builder) {
	c.Signature.Marshal(b)
	b.AddBytes(fixed(c.Common.Issuer, NameSize))
	b.AddUint32(uint32(c.Common.KeyType))
	b.AddBytes(fixed(c.Common.Name, NameSize))
	b.AddUint32(c.Common.Date)

	keyType := c.Common.KeyType
	padding := keyType.BlockSize() - keyType.KeySize()
	b.AddBytes(fixed(c.PublicKey.Key, keyType.KeySize()))
	if keyType.hasExponent() {
		b.AddUint32(c.PublicKey.Exponent)
		padding -= 4
	}
	b.AddBytes(fixed(c.PublicKey.Padding, padding))
}

func (c *Certificate) MarshalBinary() ([]byte, error) {
	b := cryptobyte.NewBuilder(make([]byte, 0, c.Size()))
	c.Marshal(b)
	return b.Bytes()
}

// RSAPublicKey returns the key of an RSA certificate.
func (c *Certificate) RSAPublicKey() (*rsa.PublicKey, error) {
	if !c.Common.KeyType.hasExponent() {
		return nil, fmt.Errorf("cert: %s holds a %s key", c.Common.NameString(), c.Common.KeyType)
	}
	pub := &rsa.PublicKey{
		N: new(big.Int).SetBytes(c.PublicKey.Key),
		E: int(c.PublicKey.Exponent),
	}
	if pub.E < 3 || pub.E&1 == 0 {
		return nil, fmt.Errorf("%w: %s has exponent %d", ErrInvalidKey, c.Common.NameString(), pub.E)
	}
	if pub.N.BitLen() < 1024 || pub.N.Bit(0) == 0 {
		return nil, fmt.Errorf("%w: %s has a malformed modulus", ErrInvalidKey, c.Common.NameString())
	}
	return pub, nil
}

// ECCPublicKey returns the curve point of an ECC certificate.
func (c *Certificate) ECCPublicKey() (*ecc.PublicKey, error) {
	if c.Common.KeyType != PubKeyEcc480 {
		return nil, fmt.Errorf("cert: %s holds a %s key", c.Common.NameString(), c.Common.KeyType)
	}
	return ecc.ParsePublicKey(c.PublicKey.Key)
}

func fixed(src []byte, n int) []byte {
	if len(src) == n {
		return src
	}
	out := make([]byte, n)
	copy(out, src)
	return out
}
