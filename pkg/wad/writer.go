package wad

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

var ErrRegionOrder = errors.New("wad: regions must be written in package order")

const (
	stageCertChain = iota
	stageTicket
	stageTMD
	stageData
	stageFooter
	stageDone
)

// Writer builds an installable package. Regions are written in file order;
// Close patches the header, Abort removes the partial file.
type Writer struct {
	f      *os.File
	path   string
	header InstallableHeader
	stage  int
	offset int64
}

func Create(path string, typ Type) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	// We seek past the header
	offset := Align(HeaderSizeInstallable)
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}

	return &Writer{
		f:      f,
		path:   path,
		header: InstallableHeader{Type: typ, Version: VersionInstallable},
		offset: offset,
	}, nil
}

func (w *Writer) Path() string {
	return w.path
}

// Header returns the header as it stands, sizes of unwritten regions being zero.
func (w *Writer) Header() InstallableHeader {
	return w.header
}

func (w *Writer) WriteCertChain(b []byte) error {
	return w.writeRegion(stageCertChain, &w.header.CertChainSize, bytes.NewReader(b), int64(len(b)), true)
}

func (w *Writer) WriteTicket(b []byte) error {
	return w.writeRegion(stageTicket, &w.header.TicketSize, bytes.NewReader(b), int64(len(b)), true)
}

func (w *Writer) WriteTMD(b []byte) error {
	return w.writeRegion(stageTMD, &w.header.TMDSize, bytes.NewReader(b), int64(len(b)), true)
}

// WriteData copies exactly size bytes of encrypted content from r.
func (w *Writer) WriteData(r io.Reader, size int64) error {
	return w.writeRegion(stageData, &w.header.DataSize, r, size, true)
}

// WriteFooter is optional and ends the package unpadded.
func (w *Writer) WriteFooter(b []byte) error {
	return w.writeRegion(stageFooter, &w.header.FooterSize, bytes.NewReader(b), int64(len(b)), false)
}

func (w *Writer) writeRegion(stage int, size *uint32, r io.Reader, n int64, pad bool) error {
	if stage < w.stage {
		return fmt.Errorf("%w: stage %d after %d", ErrRegionOrder, stage, w.stage)
	}
	if n > int64(^uint32(0)) {
		return fmt.Errorf("wad: region of 0x%x bytes does not fit the header", n)
	}

	written, err := io.CopyN(w.f, r, n)
	if err != nil {
		return fmt.Errorf("wad: wrote 0x%x of 0x%x bytes: %w", written, n, err)
	}
	*size = uint32(n)
	w.offset += n
	w.stage = stage + 1

	if pad {
		if gap := Align(w.offset) - w.offset; gap > 0 {
			if _, err := w.f.Write(make([]byte, gap)); err != nil {
				return err
			}
			w.offset += gap
		}
	}
	return nil
}

// Close writes the header and closes the file.
func (w *Writer) Close() error {
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		w.f.Close()
		return err
	}

	header, err := w.header.MarshalBinary()
	if err != nil {
		w.f.Close()
		return err
	}
	if _, err := w.f.Write(header); err != nil {
		w.f.Close()
		return err
	}

	w.stage = stageDone
	return w.f.Close()
}

// Abort closes and deletes the partially written package.
func (w *Writer) Abort() error {
	w.f.Close()
	return os.Remove(w.path)
}
