package wad

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/cryptobyte"
)

// Declared header sizes, stored in the first four bytes of a package.
const (
	HeaderSizeInstallable = 0x20
	HeaderSizeBackup      = 0x70
)

const (
	VersionInstallable uint16 = 0
	VersionBackup      uint16 = 1
)

// Type is the package type stored after the header size.
type Type uint16

const (
	TypeNormal Type = 0x4973 // "Is"
	TypeBoot2  Type = 0x6962 // "ib"
	TypeBackup Type = 0x426B // "Bk"
)

func (t Type) String() string {
	switch t {
	case TypeNormal:
		return "Normal"
	case TypeBoot2:
		return "Boot2"
	case TypeBackup:
		return "Backup"
	}
	return fmt.Sprintf("Type(0x%04x)", uint16(t))
}

var (
	ErrHeaderSize = errors.New("wad: unknown header size")
	ErrHeaderType = errors.New("wad: package type does not match header")
)

// Header is one of *InstallableHeader or *BackupHeader.
type Header interface {
	HeaderSize() uint32
	PackageType() Type
	MarshalBinary() ([]byte, error)
	isHeader()
}

// InstallableHeader heads Normal and Boot2 packages.
type InstallableHeader struct {
	Type          Type
	Version       uint16
	CertChainSize uint32
	TicketSize    uint32
	TMDSize       uint32
	DataSize      uint32
	FooterSize    uint32
}

func (h *InstallableHeader) HeaderSize() uint32 { return HeaderSizeInstallable }
func (h *InstallableHeader) PackageType() Type  { return h.Type }
func (h *InstallableHeader) isHeader()          {}

func (h *InstallableHeader) MarshalBinary() ([]byte, error) {
	b := cryptobyte.NewBuilder(make([]byte, 0, HeaderSizeInstallable))
	b.AddUint32(HeaderSizeInstallable)
	b.AddUint16(uint16(h.Type))
	b.AddUint16(h.Version)
	b.AddUint32(h.CertChainSize)
	b.AddBytes(make([]byte, 4))
	b.AddUint32(h.TicketSize)
	b.AddUint32(h.TMDSize)
	b.AddUint32(h.DataSize)
	b.AddUint32(h.FooterSize)
	return b.Bytes()
}

// BackupHeader heads data.bin and content.bin backups.
type BackupHeader struct {
	Type             Type
	Version          uint16
	ConsoleID        uint32
	SaveFileCount    uint32
	SaveFileDataSize uint32
	ContentTMDSize   uint32
	ContentDataSize  uint32
	BackupAreaSize   uint32
	IncludedContents [0x40]byte
	TitleID          uint64
	MACAddress       [6]byte
}

func (h *BackupHeader) HeaderSize() uint32 { return HeaderSizeBackup }
func (h *BackupHeader) PackageType() Type  { return h.Type }
func (h *BackupHeader) isHeader()          {}

// Included reports whether the TMD content with the given index is stored in the backup.
func (h *BackupHeader) Included(index uint16) bool {
	if int(index) >= len(h.IncludedContents)*8 {
		return false
	}
	return h.IncludedContents[index/8]&(1<<(index%8)) != 0
}

func (h *BackupHeader) MarshalBinary() ([]byte, error) {
	b := cryptobyte.NewBuilder(make([]byte, 0, HeaderSizeBackup))
	b.AddUint32(HeaderSizeBackup)
	b.AddUint16(uint16(h.Type))
	b.AddUint16(h.Version)
	b.AddUint32(h.ConsoleID)
	b.AddUint32(h.SaveFileCount)
	b.AddUint32(h.SaveFileDataSize)
	b.AddUint32(h.ContentTMDSize)
	b.AddUint32(h.ContentDataSize)
	b.AddUint32(h.BackupAreaSize)
	b.AddBytes(h.IncludedContents[:])
	b.AddUint64(h.TitleID)
	b.AddBytes(h.MACAddress[:])
	b.AddBytes(make([]byte, 2))
	return b.Bytes()
}

// ReadHeader reads the header variant selected by the declared header size.
// Padding after the header is left unread.
func ReadHeader(r io.Reader) (Header, error) {
	var size [4]byte
	if _, err := io.ReadFull(r, size[:]); err != nil {
		return nil, fmt.Errorf("reading header size: %w", err)
	}

	declared := binary.BigEndian.Uint32(size[:])
	switch declared {
	case HeaderSizeInstallable, HeaderSizeBackup:
	default:
		return nil, fmt.Errorf("%w: 0x%x", ErrHeaderSize, declared)
	}

	buf := make([]byte, declared)
	copy(buf, size[:])
	if _, err := io.ReadFull(r, buf[4:]); err != nil {
		return nil, fmt.Errorf("reading 0x%x byte header: %w", declared, err)
	}
	return DecodeHeader(buf)
}

// DecodeHeader decodes a header held in memory.
func DecodeHeader(buf []byte) (Header, error) {
	s := cryptobyte.String(buf)
	var declared uint32
	var typ, version uint16
	if !s.ReadUint32(&declared) || !s.ReadUint16(&typ) || !s.ReadUint16(&version) {
		return nil, fmt.Errorf("%w: truncated", ErrHeaderSize)
	}

	switch declared {
	case HeaderSizeInstallable:
		h := &InstallableHeader{Type: Type(typ), Version: version}
		if !s.ReadUint32(&h.CertChainSize) ||
			!s.Skip(4) ||
			!s.ReadUint32(&h.TicketSize) ||
			!s.ReadUint32(&h.TMDSize) ||
			!s.ReadUint32(&h.DataSize) ||
			!s.ReadUint32(&h.FooterSize) {
			return nil, fmt.Errorf("%w: truncated installable header", ErrHeaderSize)
		}
		if h.Type != TypeNormal && h.Type != TypeBoot2 {
			return nil, fmt.Errorf("%w: %s in installable header", ErrHeaderType, h.Type)
		}
		return h, nil

	case HeaderSizeBackup:
		h := &BackupHeader{Type: Type(typ), Version: version}
		var included, mac []byte
		if !s.ReadUint32(&h.ConsoleID) ||
			!s.ReadUint32(&h.SaveFileCount) ||
			!s.ReadUint32(&h.SaveFileDataSize) ||
			!s.ReadUint32(&h.ContentTMDSize) ||
			!s.ReadUint32(&h.ContentDataSize) ||
			!s.ReadUint32(&h.BackupAreaSize) ||
			!s.ReadBytes(&included, len(h.IncludedContents)) ||
			!s.ReadUint64(&h.TitleID) ||
			!s.ReadBytes(&mac, len(h.MACAddress)) ||
			!s.Skip(2) {
			return nil, fmt.Errorf("%w: truncated backup header", ErrHeaderSize)
		}
		copy(h.IncludedContents[:], included)
		copy(h.MACAddress[:], mac)
		if h.Type != TypeBackup {
			return nil, fmt.Errorf("%w: %s in backup header", ErrHeaderType, h.Type)
		}
		return h, nil
	}
	return nil, fmt.Errorf("%w: 0x%x", ErrHeaderSize, declared)
}
