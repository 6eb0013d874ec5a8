// Package tmd decodes and encodes Wii title metadata.
package tmd

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/falk/wadsplit-go/pkg/signature"
	"golang.org/x/crypto/cryptobyte"
)

const (
	// HeaderSize is the fixed part after the signature block, up to the first content record.
	HeaderSize  = 0xA4
	RecordSize  = 0x24
	IssuerSize  = 0x40
	HashSize    = 0x14
	MaxContents = 512
)

// Content type flags.
const (
	ContentTypeNormal uint16 = 0x0001
	ContentTypeDLC    uint16 = 0x4000
	ContentTypeShared uint16 = 0x8000
)

var ErrMalformed = errors.New("tmd: malformed title metadata")

// Content is one content record.
type Content struct {
	ID    uint32
	Index uint16
	Type  uint16
	Size  uint64
	Hash  [HashSize]byte
}

// IsDLC reports whether the record is flagged as separately installable content.
func (c *Content) IsDLC() bool {
	return c.Type&ContentTypeDLC != 0
}

// EncryptedSize is the stored length: the declared size rounded up to the AES block size.
func (c *Content) EncryptedSize() uint64 {
	return (c.Size + 15) &^ 15
}

type TMD struct {
	Signature signature.Block

	Issuer           []byte
	Version          uint8
	CACRLVersion     uint8
	SignerCRLVersion uint8
	VWiiTitle        bool
	SystemVersion    uint64
	TitleID          uint64
	TitleType        uint32
	GroupID          uint16
	Region           uint16
	Ratings          []byte
	IPCMask          []byte
	AccessRights     uint32
	TitleVersion     uint16
	BootIndex        uint16
	Contents         []Content

	raw []byte
}

// Decode parses a TMD region. The decoded TMD aliases buf.
func Decode(buf []byte) (*TMD, error) {
	sig, rest, err := signature.Decode(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	t := &TMD{Signature: *sig}
	s := cryptobyte.String(rest)
	var vwii uint8
	var count uint16
	if !s.ReadBytes(&t.Issuer, IssuerSize) ||
		!s.ReadUint8(&t.Version) ||
		!s.ReadUint8(&t.CACRLVersion) ||
		!s.ReadUint8(&t.SignerCRLVersion) ||
		!s.ReadUint8(&vwii) ||
		!s.ReadUint64(&t.SystemVersion) ||
		!s.ReadUint64(&t.TitleID) ||
		!s.ReadUint32(&t.TitleType) ||
		!s.ReadUint16(&t.GroupID) ||
		!s.Skip(2) ||
		!s.ReadUint16(&t.Region) ||
		!s.ReadBytes(&t.Ratings, 16) ||
		!s.Skip(12) ||
		!s.ReadBytes(&t.IPCMask, 12) ||
		!s.Skip(18) ||
		!s.ReadUint32(&t.AccessRights) ||
		!s.ReadUint16(&t.TitleVersion) ||
		!s.ReadUint16(&count) ||
		!s.ReadUint16(&t.BootIndex) ||
		!s.Skip(2) {
		return nil, fmt.Errorf("%w: truncated header", ErrMalformed)
	}
	t.VWiiTitle = vwii != 0

	if count == 0 || count > MaxContents {
		return nil, fmt.Errorf("%w: content count %d", ErrMalformed, count)
	}

	t.Contents = make([]Content, count)
	for i := range t.Contents {
		c := &t.Contents[i]
		var hash []byte
		if !s.ReadUint32(&c.ID) ||
			!s.ReadUint16(&c.Index) ||
			!s.ReadUint16(&c.Type) ||
			!s.ReadUint64(&c.Size) ||
			!s.ReadBytes(&hash, HashSize) {
			return nil, fmt.Errorf("%w: truncated content record %d of %d", ErrMalformed, i, count)
		}
		copy(c.Hash[:], hash)
	}

	t.raw = buf[:t.Size()]
	return t, nil
}

// Size is the encoded length for the current content list.
func (t *TMD) Size() int {
	return t.Signature.Size() + HeaderSize + len(t.Contents)*RecordSize
}

// Raw returns the bytes the TMD was decoded from, or its encoding if it was built in memory.
func (t *TMD) Raw() []byte {
	return t.raw
}

func (t *TMD) IssuerString() string {
	return string(bytes.TrimRight(t.Issuer, "\x00"))
}

// Find returns the record with the given content index.
func (t *TMD) Find(index uint16) (*Content, bool) {
	for i := range t.Contents {
		if t.Contents[i].Index == index {
			return &t.Contents[i], true
		}
	}
	return nil, false
}

// DLC returns the records flagged as DLC, in TMD order.
func (t *TMD) DLC() []Content {
	var out []Content
	for _, c := range t.Contents {
		if c.IsDLC() {
			out = append(out, c)
		}
	}
	return out
}

// TotalSize sums the declared content sizes.
func (t *TMD) TotalSize() uint64 {
	var total uint64
	for _, c := range t.Contents {
		total += c.Size
	}
	return total
}

// Reduce returns a TMD listing only c. The original signature is kept
// verbatim and no longer matches the new content list.
func (t *TMD) Reduce(c Content) (*TMD, error) {
	reduced := *t
	reduced.Contents = []Content{c}
	raw, err := reduced.MarshalBinary()
	if err != nil {
		return nil, err
	}
	reduced.raw = raw
	return &reduced, nil
}

func (t *TMD) Marshal(b *cryptobyte.Builder) {
	t.Signature.Marshal(b)
	b.AddBytes(fixed(t.Issuer, IssuerSize))
	b.AddUint8(t.Version)
	b.AddUint8(t.CACRLVersion)
	b.AddUint8(t.SignerCRLVersion)
	if t.VWiiTitle {
		b.AddUint8(1)
	} else {
		b.AddUint8(0)
	}
	b.AddUint64(t.SystemVersion)
	b.AddUint64(t.TitleID)
	b.AddUint32(t.TitleType)
	b.AddUint16(t.GroupID)
	b.AddUint16(0)
	b.AddUint16(t.Region)
	b.AddBytes(fixed(t.Ratings, 16))
	b.AddBytes(make([]byte, 12))
	b.AddBytes(fixed(t.IPCMask, 12))
	b.AddBytes(make([]byte, 18))
	b.AddUint32(t.AccessRights)
	b.AddUint16(t.TitleVersion)
	b.AddUint16(uint16(len(t.Contents)))
	b.AddUint16(t.BootIndex)
	b.AddUint16(0)
	for _, c := range t.Contents {
		b.AddUint32(c.ID)
		b.AddUint16(c.Index)
		b.AddUint16(c.Type)
		b.AddUint64(c.Size)
		b.AddBytes(c.Hash[:])
	}
}

func (t *TMD) MarshalBinary() ([]byte, error) {
	b := cryptobyte.NewBuilder(make([]byte, 0, t.Size()))
	t.Marshal(b)
	return b.Bytes()
}

func fixed(src []byte, n int) []byte {
	if len(src) == n {
		return src
	}
	out := make([]byte, n)
	copy(out, src)
	return out
}
