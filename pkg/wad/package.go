// Package wad reads, unpacks, writes and splits Wii WAD packages.
package wad

import (
	"errors"
	"fmt"
	"io"

	"github.com/apex/log"
	"github.com/falk/wadsplit-go/pkg/cert"
	"github.com/falk/wadsplit-go/pkg/tik"
	"github.com/falk/wadsplit-go/pkg/tmd"
)

var (
	ErrUnsupportedPackage = errors.New("wad: unsupported package type")
	ErrTruncated          = errors.New("wad: package shorter than its declared regions")
	ErrDataRegion         = errors.New("wad: contents exceed the data region")
)

// Package is an opened installable package. Close releases the certificate chain.
type Package struct {
	Header *InstallableHeader
	Layout Layout
	Chain  *cert.Chain
	Ticket *tik.Ticket
	TMD    *tmd.TMD

	r io.ReaderAt
}

// ContentRange locates one content's encrypted bytes inside the package.
type ContentRange struct {
	Content tmd.Content
	Region  Region
}

// Open parses the header, certificate chain, ticket and TMD of the package
// of the given size read through r.
func Open(r io.ReaderAt, size int64) (*Package, error) {
	h, err := ReadHeader(io.NewSectionReader(r, 0, size))
	if err != nil {
		return nil, err
	}
	installable, ok := h.(*InstallableHeader)
	if !ok {
		return nil, fmt.Errorf("%w: %s package", ErrUnsupportedPackage, h.PackageType())
	}

	p := &Package{Header: installable, Layout: installable.Layout(), r: r}
	if end := p.Layout.End(); end > size {
		return nil, fmt.Errorf("%w: regions end at 0x%x, file is 0x%x bytes", ErrTruncated, end, size)
	}
	for _, region := range p.Layout.Regions() {
		log.WithFields(log.Fields{
			"region": region.Name,
			"offset": fmt.Sprintf("0x%x", region.Offset),
			"size":   fmt.Sprintf("0x%x", region.Size),
		}).Debug("package region")
	}

	chainRegion := p.section(p.Layout.CertChain)
	p.Chain, err = cert.Load(chainRegion, p.Layout.CertChain.Size)
	if err != nil {
		return nil, fmt.Errorf("certificate chain: %w", err)
	}

	if err := p.decodeSigned(); err != nil {
		p.Chain.Release()
		return nil, err
	}
	return p, nil
}

func (p *Package) decodeSigned() error {
	raw, err := p.readRegion(p.Layout.Ticket)
	if err != nil {
		return fmt.Errorf("ticket: %w", err)
	}
	if p.Ticket, err = tik.Decode(raw); err != nil {
		return err
	}

	raw, err = p.readRegion(p.Layout.TMD)
	if err != nil {
		return fmt.Errorf("tmd: %w", err)
	}
	if p.TMD, err = tmd.Decode(raw); err != nil {
		return err
	}
	return nil
}

func (p *Package) section(r Region) *io.SectionReader {
	return io.NewSectionReader(p.r, r.Offset, r.Size)
}

func (p *Package) readRegion(r Region) ([]byte, error) {
	buf := make([]byte, r.Size)
	n, err := p.r.ReadAt(buf, r.Offset)
	if n < len(buf) {
		return nil, err
	}
	return buf, nil
}

// Close releases the certificate chain.
func (p *Package) Close() {
	if p.Chain != nil {
		p.Chain.Release()
	}
}

// Contents delimits each content's encrypted bytes inside the data region.
// Every content starts on a region boundary and spans its size rounded up to 16.
func (p *Package) Contents() ([]ContentRange, error) {
	ranges := make([]ContentRange, 0, len(p.TMD.Contents))
	off := p.Layout.Data.Offset
	for _, c := range p.TMD.Contents {
		r := Region{Offset: off, Size: int64(c.EncryptedSize())}
		if r.End() > p.Layout.Data.End() {
			return nil, fmt.Errorf("%w: content %d %s, data %s", ErrDataRegion, c.Index, r, p.Layout.Data)
		}
		ranges = append(ranges, ContentRange{Content: c, Region: r})
		off = Align(r.End())
	}
	return ranges, nil
}

// ContentReader returns the encrypted bytes of one content.
func (p *Package) ContentReader(c ContentRange) *io.SectionReader {
	return p.section(c.Region)
}

// Footer returns the footer region; it is empty for most packages.
func (p *Package) Footer() *io.SectionReader {
	return p.section(p.Layout.Footer)
}

// Verify checks the chain, the ticket and the TMD.
func (p *Package) Verify() (*Verification, error) {
	return Verify(p.Chain, p.Ticket, p.TMD)
}

// Verification collects signature results for a package's signed records.
type Verification struct {
	Certificates []cert.CertificateResult
	Ticket       cert.Result
	TMD          cert.Result
}

// Verify checks every certificate whose issuer is in the chain, then the ticket
// and TMD. An error means a check could not run.
func Verify(chain *cert.Chain, t *tik.Ticket, m *tmd.TMD) (*Verification, error) {
	certs, err := chain.VerifyCertificates()
	if err != nil {
		return nil, err
	}
	v := &Verification{Certificates: certs}
	if v.Ticket, err = chain.VerifyPayload(t.Raw()); err != nil {
		return nil, fmt.Errorf("ticket: %w", err)
	}
	if v.TMD, err = chain.VerifyPayload(m.Raw()); err != nil {
		return nil, fmt.Errorf("tmd: %w", err)
	}
	return v, nil
}
