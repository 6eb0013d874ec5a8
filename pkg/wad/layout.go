package wad

import "fmt"

// Alignment is the boundary every region starts on.
const Alignment = 0x40

// Align rounds n up to the next region boundary.
func Align(n int64) int64 {
	return (n + Alignment - 1) &^ (Alignment - 1)
}

// Region is a byte range inside a package file.
type Region struct {
	Offset int64
	Size   int64
}

func (r Region) End() int64 {
	return r.Offset + r.Size
}

func (r Region) String() string {
	return fmt.Sprintf("[0x%x, 0x%x)", r.Offset, r.End())
}

// Layout holds the regions of an installable package in file order.
type Layout struct {
	Header    Region
	CertChain Region
	Ticket    Region
	TMD       Region
	Data      Region
	Footer    Region
}

// Layout computes region offsets from the declared sizes.
func (h *InstallableHeader) Layout() Layout {
	var l Layout
	l.Header = Region{Offset: 0, Size: HeaderSizeInstallable}
	next := func(prev Region, size uint32) Region {
		return Region{Offset: Align(prev.End()), Size: int64(size)}
	}
	l.CertChain = next(l.Header, h.CertChainSize)
	l.Ticket = next(l.CertChain, h.TicketSize)
	l.TMD = next(l.Ticket, h.TMDSize)
	l.Data = next(l.TMD, h.DataSize)
	l.Footer = next(l.Data, h.FooterSize)
	return l
}

// End is the last byte a package must hold. An empty footer needs no padding
// after the data region.
func (l Layout) End() int64 {
	if l.Footer.Size == 0 {
		return l.Data.End()
	}
	return l.Footer.End()
}

// NamedRegion labels a region for logging.
type NamedRegion struct {
	Name string
	Region
}

// Regions lists the layout in file order.
func (l Layout) Regions() []NamedRegion {
	return []NamedRegion{
		{"header", l.Header},
		{"cert chain", l.CertChain},
		{"ticket", l.Ticket},
		{"tmd", l.TMD},
		{"data", l.Data},
		{"footer", l.Footer},
	}
}
