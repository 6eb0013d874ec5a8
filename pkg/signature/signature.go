package signature

import (
	"crypto"
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
)

// Type is the algorithm tag stored big endian at the start of every signed record.
type Type uint32

const (
	TypeRsa4096Sha1   Type = 0x10000
	TypeRsa2048Sha1   Type = 0x10001
	TypeEcc480Sha1    Type = 0x10002
	TypeRsa4096Sha256 Type = 0x10003
	TypeRsa2048Sha256 Type = 0x10004
	TypeEcc480Sha256  Type = 0x10005
	TypeHmac160Sha1   Type = 0x10006
)

// Family groups signature types sharing the same block layout.
type Family int

const (
	FamilyRsa4096 Family = iota
	FamilyRsa2048
	FamilyEcc480
	FamilyHmac160
)

const TypeSize = 4

// Block sizes, tag included.
const (
	BlockSizeRsa4096 = 0x240
	BlockSizeRsa2048 = 0x140
	BlockSizeEcc480  = 0x7C
	BlockSizeHmac160 = 0x3C
)

// ErrUnknownType is returned for tags outside the seven known signature types.
var ErrUnknownType = errors.New("signature: unknown signature type")

// ErrTruncated is returned when a buffer is shorter than the signature block it declares.
var ErrTruncated = errors.New("signature: truncated signature block")

type layout struct {
	sigSize   int
	blockSize int
}

var layouts = map[Family]layout{
	FamilyRsa4096: {sigSize: 0x200, blockSize: BlockSizeRsa4096},
	FamilyRsa2048: {sigSize: 0x100, blockSize: BlockSizeRsa2048},
	FamilyEcc480:  {sigSize: 0x3C, blockSize: BlockSizeEcc480},
	FamilyHmac160: {sigSize: 0x14, blockSize: BlockSizeHmac160},
}

// ParseType validates a raw tag.
func ParseType(tag uint32) (Type, error) {
	t := Type(tag)
	if _, ok := t.family(); !ok {
		return 0, fmt.Errorf("%w: 0x%08x", ErrUnknownType, tag)
	}
	return t, nil
}

func (t Type) family() (Family, bool) {
	switch t {
	case TypeRsa4096Sha1, TypeRsa4096Sha256:
		return FamilyRsa4096, true
	case TypeRsa2048Sha1, TypeRsa2048Sha256:
		return FamilyRsa2048, true
	case TypeEcc480Sha1, TypeEcc480Sha256:
		return FamilyEcc480, true
	case TypeHmac160Sha1:
		return FamilyHmac160, true
	}
	return 0, false
}

// Family panics on an unvalidated tag; obtain types through ParseType.
func (t Type) Family() Family {
	f, ok := t.family()
	if !ok {
		panic(fmt.Sprintf("signature: invalid type 0x%08x", uint32(t)))
	}
	return f
}

// Hash returns the digest the signature is computed over.
func (t Type) Hash() crypto.Hash {
	switch t {
	case TypeRsa4096Sha256, TypeRsa2048Sha256, TypeEcc480Sha256:
		return crypto.SHA256
	}
	return crypto.SHA1
}

// SignatureSize is the length of the raw signature bytes.
func (t Type) SignatureSize() int {
	return layouts[t.Family()].sigSize
}

// BlockSize is the full block length: tag, signature and padding.
func (t Type) BlockSize() int {
	return layouts[t.Family()].blockSize
}

func (t Type) String() string {
	switch t {
	case TypeRsa4096Sha1:
		return "RSA-4096 SHA-1"
	case TypeRsa2048Sha1:
		return "RSA-2048 SHA-1"
	case TypeEcc480Sha1:
		return "ECC-480 SHA-1"
	case TypeRsa4096Sha256:
		return "RSA-4096 SHA-256"
	case TypeRsa2048Sha256:
		return "RSA-2048 SHA-256"
	case TypeEcc480Sha256:
		return "ECC-480 SHA-256"
	case TypeHmac160Sha1:
		return "HMAC-160 SHA-1"
	}
	return fmt.Sprintf("unknown (0x%08x)", uint32(t))
}

// Block is a decoded signature block. Signature and Padding alias the
// buffer the block was decoded from.
type Block struct {
	Type      Type
	Signature []byte
	Padding   []byte
}

// PeekType reads the tag at the start of buf.
func PeekType(buf []byte) (Type, error) {
	s := cryptobyte.String(buf)
	var tag uint32
	if !s.ReadUint32(&tag) {
		return 0, ErrTruncated
	}
	return ParseType(tag)
}

// Decode parses the signature block at the start of buf and returns it with
// the remaining bytes (the signed payload).
func Decode(buf []byte) (*Block, []byte, error) {
	s := cryptobyte.String(buf)
	var tag uint32
	if !s.ReadUint32(&tag) {
		return nil, nil, ErrTruncated
	}
	t, err := ParseType(tag)
	if err != nil {
		return nil, nil, err
	}

	b := &Block{Type: t}
	if !s.ReadBytes(&b.Signature, t.SignatureSize()) ||
		!s.ReadBytes(&b.Padding, t.BlockSize()-TypeSize-t.SignatureSize()) {
		return nil, nil, fmt.Errorf("%w: %s needs 0x%x bytes, have 0x%x", ErrTruncated, t, t.BlockSize(), len(buf))
	}
	return b, []byte(s), nil
}

// Size returns the encoded block length.
func (b *Block) Size() int {
	return b.Type.BlockSize()
}

// Marshal appends the block to a builder. Short signature or padding slices are zero filled.
func (b *Block) Marshal(builder *cryptobyte.Builder) {
	builder.AddUint32(uint32(b.Type))
	builder.AddBytes(fixed(b.Signature, b.Type.SignatureSize()))
	builder.AddBytes(fixed(b.Padding, b.Type.BlockSize()-TypeSize-b.Type.SignatureSize()))
}

func (b *Block) MarshalBinary() ([]byte, error) {
	builder := cryptobyte.NewBuilder(make([]byte, 0, b.Size()))
	b.Marshal(builder)
	return builder.Bytes()
}

func fixed(src []byte, n int) []byte {
	if len(src) == n {
		return src
	}
	out := make([]byte, n)
	copy(out, src)
	return out
}
