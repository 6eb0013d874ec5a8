package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/fatih/color"

	"github.com/falk/wadsplit-go/pkg/archive"
	"github.com/falk/wadsplit-go/pkg/cert"
	"github.com/falk/wadsplit-go/pkg/keys"
	"github.com/falk/wadsplit-go/pkg/wad"
	"github.com/falk/wadsplit-go/pkg/zstd"
)

var (
	statusValid   = color.New(color.FgGreen).SprintFunc()
	statusInvalid = color.New(color.FgRed).SprintFunc()
	statusUnknown = color.New(color.FgYellow).SprintFunc()
)

type options struct {
	keysPath string
	outDir   string
	index    int
	zip      bool
	level    int
	decrypt  bool
}

func main() {
	var opts options
	flag.StringVar(&opts.keysPath, "k", "", "Path to keys.txt (common_key, korean_key, vwii_common_key)")
	flag.StringVar(&opts.outDir, "o", ".", "Output directory")
	flag.IntVar(&opts.index, "i", -1, "Split only the DLC content with this index")
	flag.BoolVar(&opts.zip, "z", false, "Unpack into a zstd compressed zip archive")
	flag.IntVar(&opts.level, "l", zstd.DefaultLevel, "Zip compression level (1-22)")
	flag.BoolVar(&opts.decrypt, "decrypt", false, "Also write decrypted contents and check their hashes")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	log.SetHandler(cli.New(os.Stderr))
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: wadsplit [options] <file.wad>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	if opts.index > 0xFFFF {
		log.Fatalf("content index %d out of range", opts.index)
	}

	if err := run(args[0], opts); err != nil {
		log.WithError(err).Fatal("wadsplit failed")
	}
}

func run(input string, opts options) error {
	f, err := os.Open(input)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	pkg, err := wad.Open(f, info.Size())
	if err != nil {
		return fmt.Errorf("%s: %w", input, err)
	}
	defer pkg.Close()
	fmt.Print(pkg)

	v, err := pkg.Verify()
	if err != nil {
		return err
	}
	printVerification(v)

	unpacked, err := unpack(pkg, opts)
	if err != nil {
		return err
	}

	src, err := archive.Open(unpacked)
	if err != nil {
		return err
	}
	defer src.Close()

	x, err := wad.LoadExtracted(src)
	if err != nil {
		return err
	}
	defer x.Release()

	var indices []uint16
	if opts.index >= 0 {
		indices = []uint16{uint16(opts.index)}
	} else {
		for _, c := range x.TMD.DLC() {
			indices = append(indices, c.Index)
		}
	}
	if len(indices) == 0 {
		log.Warn("package has no DLC contents")
		return nil
	}

	for i, idx := range indices {
		fmt.Printf("[%d/%d] content %04x... ", i+1, len(indices), idx)
		res, err := wad.Split(src, x, idx, opts.outDir)
		if err != nil {
			fmt.Println(statusInvalid("failed"))
			return err
		}
		fmt.Printf("%s %s\n", statusValid("->"), res.Path)
	}
	fmt.Println("Done!")
	return nil
}

func unpack(pkg *wad.Package, opts options) (string, error) {
	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%016x", pkg.TMD.TitleID)
	var (
		w    archive.Writer
		path string
		err  error
	)
	if opts.zip {
		path = filepath.Join(opts.outDir, name+".zip")
		w, err = archive.NewZipWriter(path, opts.level)
	} else {
		path = filepath.Join(opts.outDir, name)
		w, err = archive.NewDirWriter(path)
	}
	if err != nil {
		return "", err
	}

	var unpackOpts wad.UnpackOptions
	if opts.decrypt {
		unpackOpts.TitleKey = titleKey(pkg, opts.keysPath)
	}

	res, err := pkg.Unpack(w, unpackOpts)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("unpacking to %s: %w", path, err)
	}

	log.WithField("path", path).WithField("files", len(res.Files)).Info("unpacked")
	for _, idx := range res.HashMismatch {
		fmt.Printf("content %04x hash: %s\n", idx, statusInvalid("MISMATCH"))
	}
	return path, nil
}

// titleKey returns nil when keys are unavailable; decryption is then skipped.
func titleKey(pkg *wad.Package, keysPath string) []byte {
	var err error
	if keysPath != "" {
		err = keys.Load(keysPath)
	} else {
		err = keys.LoadDefault()
	}
	if err != nil {
		log.WithError(err).Warn("could not load keys, contents will not be decrypted")
		return nil
	}

	key, err := keys.DecryptTitleKey(pkg.Ticket.TitleKey, pkg.Ticket.CommonKeyIndex, pkg.Ticket.TitleID)
	if err != nil {
		log.WithError(err).Warn("could not decrypt title key")
		return nil
	}
	return key
}

func printVerification(v *wad.Verification) {
	for _, c := range v.Certificates {
		name := c.Certificate.Common.NameString()
		if c.Err != nil {
			fmt.Printf("certificate %-12s %s (%v)\n", name, statusUnknown("UNVERIFIABLE"), c.Err)
			continue
		}
		fmt.Printf("certificate %-12s %s\n", name, status(c.Result))
	}
	fmt.Printf("ticket                   %s\n", status(v.Ticket))
	fmt.Printf("tmd                      %s\n", status(v.TMD))
}

func status(r cert.Result) string {
	switch r.Status {
	case cert.StatusValid:
		return statusValid("OK")
	case cert.StatusInvalid:
		return statusInvalid("FAILED")
	}
	return statusUnknown("UNVERIFIABLE")
}
