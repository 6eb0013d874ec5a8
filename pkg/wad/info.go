package wad

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

var (
	colorTitle = color.New(color.Bold, color.FgHiMagenta).SprintFunc()
	colorField = color.New(color.Bold, color.FgHiBlue).SprintFunc()
)

// String summarises the package header, title and contents.
func (p *Package) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s:\n", colorTitle("WAD package")))
	sb.WriteString(fmt.Sprintf("  %s: %s\n", colorField("Type"), p.Header.Type))
	sb.WriteString(fmt.Sprintf("  %s: %016x\n", colorField("Title ID"), p.TMD.TitleID))
	sb.WriteString(fmt.Sprintf("  %s: %d\n", colorField("Title Version"), p.TMD.TitleVersion))
	sb.WriteString(fmt.Sprintf("  %s: %d\n", colorField("Common Key Index"), p.Ticket.CommonKeyIndex))

	sb.WriteString(fmt.Sprintf("  %s:\n", colorField("Regions")))
	for _, r := range p.Layout.Regions() {
		sb.WriteString(fmt.Sprintf("    %-10s %s\n", r.Name, r.Region))
	}

	sb.WriteString(fmt.Sprintf("  %s:\n", colorField("Certificates")))
	for _, c := range p.Chain.Certificates() {
		sb.WriteString(fmt.Sprintf("    %s (issuer %s, %s)\n", c.Common.NameString(), c.Common.IssuerString(), c.Shape()))
	}

	sb.WriteString(fmt.Sprintf("  %s: %d\n", colorField("Contents"), len(p.TMD.Contents)))
	for _, c := range p.TMD.Contents {
		kind := ""
		if c.IsDLC() {
			kind = " DLC"
		}
		sb.WriteString(fmt.Sprintf("    %04x: id %08x type %04x%s size 0x%x\n", c.Index, c.ID, c.Type, kind, c.Size))
	}
	return sb.String()
}
