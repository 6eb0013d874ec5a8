package wad

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"io"

	"github.com/apex/log"
	"github.com/falk/wadsplit-go/pkg/archive"
	"github.com/falk/wadsplit-go/pkg/crypto"
)

// File names used for unpacked regions.
const (
	CertChainFile = "cert_chain.bin"
	TicketFile    = "ticket.bin"
	TMDFile       = "tmd.bin"
)

// ContentFile names the encrypted content with the given index.
func ContentFile(index uint16) string {
	return fmt.Sprintf("%08x.app", index)
}

// DecryptedFile names the decrypted content with the given index.
func DecryptedFile(index uint16) string {
	return fmt.Sprintf("%08x.dec", index)
}

type UnpackOptions struct {
	// TitleKey, when set, also writes decrypted contents and checks their SHA-1.
	TitleKey []byte
}

type UnpackResult struct {
	Files []string
	// HashMismatch lists content indices whose decrypted SHA-1 differs from the TMD.
	HashMismatch []uint16
}

// Unpack writes the certificate chain, ticket, TMD and every content to w.
// The footer is not unpacked.
func (p *Package) Unpack(w archive.Writer, opts UnpackOptions) (*UnpackResult, error) {
	contents, err := p.Contents()
	if err != nil {
		return nil, err
	}

	res := &UnpackResult{}
	create := func(name string, r io.Reader) error {
		n, err := w.Create(name, r)
		if err != nil {
			return err
		}
		res.Files = append(res.Files, name)
		log.WithField("file", name).WithField("size", n).Debug("unpacked")
		return nil
	}

	if err := create(CertChainFile, bytes.NewReader(p.Chain.Bytes())); err != nil {
		return nil, err
	}
	if err := create(TicketFile, bytes.NewReader(p.Ticket.Raw())); err != nil {
		return nil, err
	}
	if err := create(TMDFile, p.section(p.Layout.TMD)); err != nil {
		return nil, err
	}

	for _, cr := range contents {
		c := cr.Content
		if err := create(ContentFile(c.Index), p.ContentReader(cr)); err != nil {
			return nil, err
		}
		if opts.TitleKey == nil {
			continue
		}

		dec, err := crypto.NewContentReader(p.ContentReader(cr), opts.TitleKey, c.Index)
		if err != nil {
			return nil, err
		}
		h := sha1.New()
		if err := create(DecryptedFile(c.Index), io.TeeReader(io.LimitReader(dec, int64(c.Size)), h)); err != nil {
			return nil, err
		}
		if sum := h.Sum(nil); !bytes.Equal(sum, c.Hash[:]) {
			log.WithFields(log.Fields{
				"index":    c.Index,
				"expected": fmt.Sprintf("%x", c.Hash),
				"actual":   fmt.Sprintf("%x", sum),
			}).Warn("content hash mismatch")
			res.HashMismatch = append(res.HashMismatch, c.Index)
		}
	}
	return res, nil
}
