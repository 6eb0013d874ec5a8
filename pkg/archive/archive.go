// Package archive stores unpacked package regions in a directory or a zip file.
package archive

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/falk/wadsplit-go/pkg/zstd"
)

// Writer receives unpacked files.
type Writer interface {
	Create(name string, r io.Reader) (int64, error)
	Close() error
}

// Source gives access to files written by a Writer.
type Source interface {
	Open(name string) (io.ReadCloser, int64, error)
	Close() error
}

type DirWriter struct {
	dir string
}

func NewDirWriter(dir string) (*DirWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DirWriter{dir: dir}, nil
}

func (d *DirWriter) Dir() string {
	return d.dir
}

// Create writes r to dir/name. A failed write leaves no file behind.
func (d *DirWriter) Create(name string, r io.Reader) (int64, error) {
	path := filepath.Join(d.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return n, fmt.Errorf("writing %s: %w", name, err)
	}
	return n, nil
}

func (d *DirWriter) Close() error {
	return nil
}

// ZipWriter stores every file as a zstd compressed zip entry.
type ZipWriter struct {
	f  *os.File
	zw *zip.Writer
}

func NewZipWriter(path string, level int) (*ZipWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	zw := zip.NewWriter(f)
	zstd.RegisterWriter(zw, level)
	return &ZipWriter{f: f, zw: zw}, nil
}

func (z *ZipWriter) Create(name string, r io.Reader) (int64, error) {
	header := &zip.FileHeader{
		Name:     name,
		Method:   zstd.ZipMethod,
		Modified: time.Now(),
	}
	w, err := z.zw.CreateHeader(header)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(w, r)
	if err != nil {
		return n, fmt.Errorf("writing %s: %w", name, err)
	}
	return n, nil
}

func (z *ZipWriter) Close() error {
	err := z.zw.Close()
	if cerr := z.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// Open returns a Source for a directory or a zip file written by ZipWriter.
func Open(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return dirSource(path), nil
	}

	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	zstd.RegisterReader(&rc.Reader)
	return &zipSource{rc: rc}, nil
}

type dirSource string

func (d dirSource) Open(name string) (io.ReadCloser, int64, error) {
	f, err := os.Open(filepath.Join(string(d), name))
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

func (d dirSource) Close() error {
	return nil
}

type zipSource struct {
	rc *zip.ReadCloser
}

func (z *zipSource) Open(name string) (io.ReadCloser, int64, error) {
	for _, f := range z.rc.File {
		if f.Name != name {
			continue
		}
		r, err := f.Open()
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", name, err)
		}
		return r, int64(f.UncompressedSize64), nil
	}
	return nil, 0, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

func (z *zipSource) Close() error {
	return z.rc.Close()
}
