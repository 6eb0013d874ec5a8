// Package tik decodes and encodes Wii tickets.
package tik

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/falk/wadsplit-go/pkg/signature"
	"golang.org/x/crypto/cryptobyte"
)

// BodySize is the length of a v0 ticket after its signature block.
const BodySize = 0x164

const (
	IssuerSize        = 0x40
	ECDHDataSize      = 0x3C
	TitleKeySize      = 0x10
	ContentAccessSize = 0x40
	TimeLimitCount    = 8
)

// Common key indices as stored in the ticket.
const (
	CommonKeyIndexNormal uint8 = iota
	CommonKeyIndexKorean
	CommonKeyIndexVWii
)

var ErrMalformed = errors.New("tik: malformed ticket")

type TimeLimit struct {
	Enabled uint32
	Seconds uint32
}

// Ticket is a decoded ticket. Byte slice fields alias the decoded buffer.
type Ticket struct {
	Signature signature.Block

	Issuer              []byte
	ECDHData            []byte
	Version             uint8
	TitleKey            []byte // encrypted with the common key selected by CommonKeyIndex
	TicketID            uint64
	ConsoleID           uint32
	TitleID             uint64
	SystemAccessMask    uint16
	TitleVersion        uint16
	PermittedTitlesMask uint32
	PermitMask          uint32
	ExportAllowed       bool
	CommonKeyIndex      uint8
	ContentAccess       []byte
	TimeLimits          [TimeLimitCount]TimeLimit

	raw []byte
}

// Decode parses a ticket region. Bytes past the fixed body are kept in Raw
// and covered by signature checks, but not decoded.
func Decode(buf []byte) (*Ticket, error) {
	sig, rest, err := signature.Decode(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	t := &Ticket{Signature: *sig, raw: buf}
	s := cryptobyte.String(rest)
	var exportAllowed uint8
	ok := s.ReadBytes(&t.Issuer, IssuerSize) &&
		s.ReadBytes(&t.ECDHData, ECDHDataSize) &&
		s.ReadUint8(&t.Version) &&
		s.Skip(2) &&
		s.ReadBytes(&t.TitleKey, TitleKeySize) &&
		s.Skip(1) &&
		s.ReadUint64(&t.TicketID) &&
		s.ReadUint32(&t.ConsoleID) &&
		s.ReadUint64(&t.TitleID) &&
		s.ReadUint16(&t.SystemAccessMask) &&
		s.ReadUint16(&t.TitleVersion) &&
		s.ReadUint32(&t.PermittedTitlesMask) &&
		s.ReadUint32(&t.PermitMask) &&
		s.ReadUint8(&exportAllowed) &&
		s.ReadUint8(&t.CommonKeyIndex) &&
		s.Skip(0x30) &&
		s.ReadBytes(&t.ContentAccess, ContentAccessSize) &&
		s.Skip(2)
	for i := 0; ok && i < TimeLimitCount; i++ {
		ok = s.ReadUint32(&t.TimeLimits[i].Enabled) && s.ReadUint32(&t.TimeLimits[i].Seconds)
	}
	if !ok {
		return nil, fmt.Errorf("%w: need 0x%x bytes, have 0x%x", ErrMalformed, sig.Size()+BodySize, len(buf))
	}
	t.ExportAllowed = exportAllowed != 0
	return t, nil
}

// Size is the length of the encoded fixed layout.
func (t *Ticket) Size() int {
	return t.Signature.Size() + BodySize
}

// Raw returns the region the ticket was decoded from.
func (t *Ticket) Raw() []byte {
	return t.raw
}

func (t *Ticket) IssuerString() string {
	return string(bytes.TrimRight(t.Issuer, "\x00"))
}

// Marshal re-encodes the fixed layout. Reserved fields are written as zero.
func (t *Ticket) Marshal(b *cryptobyte.Builder) {
	t.Signature.Marshal(b)
	b.AddBytes(fixed(t.Issuer, IssuerSize))
	b.AddBytes(fixed(t.ECDHData, ECDHDataSize))
	b.AddUint8(t.Version)
	b.AddBytes(make([]byte, 2))
	b.AddBytes(fixed(t.TitleKey, TitleKeySize))
	b.AddUint8(0)
	b.AddUint64(t.TicketID)
	b.AddUint32(t.ConsoleID)
	b.AddUint64(t.TitleID)
	b.AddUint16(t.SystemAccessMask)
	b.AddUint16(t.TitleVersion)
	b.AddUint32(t.PermittedTitlesMask)
	b.AddUint32(t.PermitMask)
	if t.ExportAllowed {
		b.AddUint8(1)
	} else {
		b.AddUint8(0)
	}
	b.AddUint8(t.CommonKeyIndex)
	b.AddBytes(make([]byte, 0x30))
	b.AddBytes(fixed(t.ContentAccess, ContentAccessSize))
	b.AddBytes(make([]byte, 2))
	for _, l := range t.TimeLimits {
		b.AddUint32(l.Enabled)
		b.AddUint32(l.Seconds)
	}
}

func (t *Ticket) MarshalBinary() ([]byte, error) {
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
