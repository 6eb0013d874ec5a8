package wad

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/apex/log"
	"github.com/falk/wadsplit-go/pkg/archive"
	"github.com/falk/wadsplit-go/pkg/cert"
	"github.com/falk/wadsplit-go/pkg/tik"
	"github.com/falk/wadsplit-go/pkg/tmd"
)

var (
	ErrContentNotFound = errors.New("wad: no content with that index")
	ErrNotDLC          = errors.New("wad: content is not DLC")
)

// Extracted holds the regions read back from an unpacked package.
type Extracted struct {
	Chain  *cert.Chain
	Ticket *tik.Ticket
	TMD    *tmd.TMD
}

// LoadExtracted reads the certificate chain, ticket and TMD written by Unpack.
func LoadExtracted(src archive.Source) (*Extracted, error) {
	r, size, err := src.Open(CertChainFile)
	if err != nil {
		return nil, err
	}
	chain, err := cert.Load(r, size)
	r.Close()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", CertChainFile, err)
	}

	x := &Extracted{Chain: chain}
	if err := x.load(src); err != nil {
		chain.Release()
		return nil, err
	}
	return x, nil
}

func (x *Extracted) load(src archive.Source) error {
	raw, err := readFile(src, TicketFile)
	if err != nil {
		return err
	}
	if x.Ticket, err = tik.Decode(raw); err != nil {
		return fmt.Errorf("%s: %w", TicketFile, err)
	}

	raw, err = readFile(src, TMDFile)
	if err != nil {
		return err
	}
	if x.TMD, err = tmd.Decode(raw); err != nil {
		return fmt.Errorf("%s: %w", TMDFile, err)
	}
	return nil
}

func readFile(src archive.Source, name string) ([]byte, error) {
	r, _, err := src.Open(name)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Release releases the certificate chain.
func (x *Extracted) Release() {
	x.Chain.Release()
}

// SplitName is the output file name for one split content.
func SplitName(titleID uint64, index uint16) string {
	return fmt.Sprintf("%016x_%04x.wad", titleID, index)
}

type SplitResult struct {
	Path    string
	Content tmd.Content
	Header  InstallableHeader
	// StaleTMDSignature is set when the reduced TMD differs from the signed one,
	// so its carried signature no longer verifies.
	StaleTMDSignature bool
}

// Split writes a Normal package holding only the DLC content with the given
// index, read from src. Nothing is created when the index is missing or not DLC;
// a failed write removes the partial package.
func Split(src archive.Source, x *Extracted, index uint16, outDir string) (*SplitResult, error) {
	c, ok := x.TMD.Find(index)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrContentNotFound, index)
	}
	if !c.IsDLC() {
		return nil, fmt.Errorf("%w: index %d has type 0x%04x", ErrNotDLC, index, c.Type)
	}

	reduced, err := x.TMD.Reduce(*c)
	if err != nil {
		return nil, err
	}

	data, size, err := src.Open(ContentFile(index))
	if err != nil {
		return nil, err
	}
	defer data.Close()

	dataSize := int64(c.EncryptedSize())
	if size < dataSize {
		return nil, fmt.Errorf("%w: %s holds 0x%x bytes, content needs 0x%x", ErrTruncated, ContentFile(index), size, dataSize)
	}

	res := &SplitResult{
		Path:              filepath.Join(outDir, SplitName(x.TMD.TitleID, index)),
		Content:           *c,
		StaleTMDSignature: !bytes.Equal(reduced.Raw(), x.TMD.Raw()),
	}

	w, err := Create(res.Path, TypeNormal)
	if err != nil {
		return nil, err
	}
	if err := writeSplit(w, x, reduced, data, dataSize); err != nil {
		w.Abort()
		return nil, fmt.Errorf("writing %s: %w", res.Path, err)
	}
	res.Header = w.Header()
	if err := w.Close(); err != nil {
		w.Abort()
		return nil, err
	}

	ctx := log.WithFields(log.Fields{
		"path":  res.Path,
		"index": index,
		"size":  fmt.Sprintf("0x%x", dataSize),
	})
	if res.StaleTMDSignature {
		ctx.Warn("reduced TMD carries the original signature, which no longer verifies")
	}
	ctx.Info("wrote split package")
	return res, nil
}

func writeSplit(w *Writer, x *Extracted, reduced *tmd.TMD, data io.Reader, size int64) error {
	if err := w.WriteCertChain(x.Chain.Bytes()); err != nil {
		return err
	}
	if err := w.WriteTicket(x.Ticket.Raw()); err != nil {
		return err
	}
	if err := w.WriteTMD(reduced.Raw()); err != nil {
		return err
	}
	return w.WriteData(data, size)
}
