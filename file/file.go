package file

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/ainilili/dumploader/consts"
	"github.com/ainilili/dumploader/util"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

type File struct {
	file *os.File
}

func New(path string, flag int) (*File, error) {
	file, err := os.OpenFile(path, flag, os.FileMode(0644))
	if err != nil {
		return nil, err
	}
	return &File{
		file: file,
	}, nil
}

func (f *File) Write(bytes []byte) (int, error) {
	return f.file.Write(bytes)
}

func (f *File) Read(bytes []byte) (int, error) {
	return f.file.Read(bytes)
}

func (f *File) Sync() error {
	return f.file.Sync()
}

func (f *File) Close() error {
	return f.file.Close()
}

type reader struct {
	io.Reader
	closers []io.Closer
}

func (r *reader) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type zstdCloser struct {
	d *zstd.Decoder
}

func (z zstdCloser) Close() error {
	z.d.Close()
	return nil
}

// Open opens a dump file for reading, transparently decompressing gzip and
// zstd files based on their extension.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	buffered := bufio.NewReaderSize(f, consts.FileBufferSize)
	_, ext := util.StripCompression(path)
	switch ext {
	case "":
		return &reader{Reader: buffered, closers: []io.Closer{f}}, nil
	case ".gz":
		gz, err := gzip.NewReader(buffered)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("open gzip %s: %w", path, err)
		}
		return &reader{Reader: gz, closers: []io.Closer{f, gz}}, nil
	case ".zst", ".zstd":
		zr, err := zstd.NewReader(buffered)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("open zstd %s: %w", path, err)
		}
		return &reader{Reader: zr, closers: []io.Closer{f, zstdCloser{d: zr}}}, nil
	}
	_ = f.Close()
	return nil, fmt.Errorf("open %s: unsupported compression %q", path, ext)
}

// ReadAll reads and decompresses a whole dump file.
func ReadAll(path string) ([]byte, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
