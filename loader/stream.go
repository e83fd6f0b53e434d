package loader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ainilili/dumploader/consts"
	"github.com/ainilili/dumploader/file"
	"github.com/ainilili/dumploader/util"
)

var ErrStreamHeader = errors.New("malformed stream header")

// StreamSource reads a dump stream of "-- <filename> <size>" headers, each
// followed by size bytes of file content. Files are written to dir and
// emitted once complete.
func StreamSource(r io.Reader, dir string) Source {
	return func(ctx context.Context, emit func(string) error) error {
		br := bufio.NewReaderSize(r, consts.FileBufferSize)
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			line, err := br.ReadString(consts.LF)
			if err == io.EOF && strings.TrimSpace(line) == "" {
				return nil
			}
			if err != nil && err != io.EOF {
				return err
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			name, size, err := parseStreamHeader(line)
			if err != nil {
				return err
			}
			if err := materialize(br, filepath.Join(dir, name), size); err != nil {
				return fmt.Errorf("stream %s: %w", name, err)
			}
			if err := emit(name); err != nil {
				return err
			}
		}
	}
}

func parseStreamHeader(line string) (string, int64, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != "--" {
		return "", 0, fmt.Errorf("%w: %q", ErrStreamHeader, line)
	}
	size, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil || size < 0 {
		return "", 0, fmt.Errorf("%w: %q", ErrStreamHeader, line)
	}
	name := util.BaseName(fields[1])
	if name == "" || name == "." || name == ".." {
		return "", 0, fmt.Errorf("%w: %q", ErrStreamHeader, line)
	}
	return name, size, nil
}

func materialize(r io.Reader, path string, size int64) error {
	f, err := file.New(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	if err != nil {
		return err
	}
	if _, err := io.CopyN(f, r, size); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
