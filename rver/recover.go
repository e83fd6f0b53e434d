package rver

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ainilili/dumploader/consts"
	"github.com/ainilili/dumploader/file"
	"github.com/google/uuid"
)

// Recover is the resume checkpoint of a dump directory: the filenames a
// stopped run did not finish, one per line.
type Recover struct {
	dir string
}

func New(dir string) *Recover {
	return &Recover{dir: dir}
}

func (r *Recover) Path() string {
	return filepath.Join(r.dir, consts.ResumeFile)
}

// Make publishes files as the checkpoint. The list is written to a unique
// temporary file first and renamed into place.
func (r *Recover) Make(files []string) error {
	tmp := filepath.Join(r.dir, "."+consts.ResumeFile+"-"+uuid.NewString())
	f, err := file.New(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	if err != nil {
		return err
	}
	buf := bytes.Buffer{}
	for _, name := range files {
		buf.WriteString(name)
		buf.WriteByte(consts.LF)
	}
	if _, err = f.Write(buf.Bytes()); err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return os.Rename(tmp, r.Path())
}

// Load returns the filenames of the checkpoint.
func (r *Recover) Load() (map[string]struct{}, error) {
	f, err := file.New(r.Path(), os.O_RDONLY)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("resume requested but %s is missing: %w", r.Path(), err)
		}
		return nil, err
	}
	defer f.Close()

	files := map[string]struct{}{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			files[name] = struct{}{}
		}
	}
	return files, scanner.Err()
}
