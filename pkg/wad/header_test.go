package wad

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstallableHeaderRoundTrip(t *testing.T) {
	h := &InstallableHeader{
		Type:          TypeBoot2,
		CertChainSize: 0xA00,
		TicketSize:    0x2A4,
		TMDSize:       0x208,
		DataSize:      0x12340,
		FooterSize:    0x40,
	}
	raw, err := h.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, raw, HeaderSizeInstallable)
	assert.Equal(t, []byte{0, 0, 0, 0x20, 0x69, 0x62, 0, 0}, raw[:8])

	got, err := ReadHeader(bytes.NewReader(append(raw, make([]byte, 0x20)...)))
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Equal(t, uint32(HeaderSizeInstallable), got.HeaderSize())
	assert.Equal(t, TypeBoot2, got.PackageType())
}

func TestBackupHeaderRoundTrip(t *testing.T) {
	h := &BackupHeader{
		Type:            TypeBackup,
		Version:         VersionBackup,
		ConsoleID:       0x0403AC68,
		ContentTMDSize:  0x208,
		ContentDataSize: 0x8000,
		BackupAreaSize:  0x9000,
		TitleID:         0x00010000534D4E45,
		MACAddress:      [6]byte{0x00, 0x19, 0x1D, 0x01, 0x02, 0x03},
	}
	h.IncludedContents[0] = 0b0000_0101
	h.IncludedContents[1] = 0b1000_0000

	raw, err := h.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, raw, HeaderSizeBackup)

	got, err := ReadHeader(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, h, got)

	backup := got.(*BackupHeader)
	assert.True(t, backup.Included(0))
	assert.False(t, backup.Included(1))
	assert.True(t, backup.Included(2))
	assert.True(t, backup.Included(15))
	assert.False(t, backup.Included(0x200))
}

func TestReadHeaderUnknownSize(t *testing.T) {
	raw := make([]byte, 0x40)
	binary.BigEndian.PutUint32(raw, 0x30)
	_, err := ReadHeader(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrHeaderSize)
}

func TestReadHeaderTypeMismatch(t *testing.T) {
	raw, err := (&InstallableHeader{Type: TypeBackup}).MarshalBinary()
	require.NoError(t, err)
	_, err = ReadHeader(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrHeaderType)

	raw, err = (&BackupHeader{Type: TypeNormal}).MarshalBinary()
	require.NoError(t, err)
	_, err = ReadHeader(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrHeaderType)
}

func TestReadHeaderShort(t *testing.T) {
	raw, err := (&InstallableHeader{Type: TypeNormal}).MarshalBinary()
	require.NoError(t, err)
	_, err = ReadHeader(bytes.NewReader(raw[:0x10]))
	assert.Error(t, err)
}

func TestLayout(t *testing.T) {
	h := &InstallableHeader{
		Type:          TypeNormal,
		CertChainSize: 0xA00,
		TicketSize:    0x2A4,
		TMDSize:       0x1E4 + 3*0x24,
		DataSize:      0x3440,
		FooterSize:    0x10,
	}
	l := h.Layout()
	assert.Equal(t, Region{Offset: 0, Size: 0x20}, l.Header)
	assert.Equal(t, Region{Offset: 0x40, Size: 0xA00}, l.CertChain)
	assert.Equal(t, Region{Offset: 0xA40, Size: 0x2A4}, l.Ticket)
	assert.Equal(t, Region{Offset: 0xD00, Size: 0x250}, l.TMD)
	assert.Equal(t, Region{Offset: 0xF80, Size: 0x3440}, l.Data)
	assert.Equal(t, Region{Offset: 0x43C0, Size: 0x10}, l.Footer)

	names := []string{}
	for _, r := range l.Regions() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"header", "cert chain", "ticket", "tmd", "data", "footer"}, names)
}

func TestAlign(t *testing.T) {
	assert.Equal(t, int64(0), Align(0))
	assert.Equal(t, int64(0x40), Align(1))
	assert.Equal(t, int64(0x40), Align(0x40))
	assert.Equal(t, int64(0x80), Align(0x41))
}
