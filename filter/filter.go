package filter

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Filter decides which databases and tables of a dump are restored. An
// object is excluded when it is outside the source database, missing from a
// non-empty allow list, present in the skip list, or not matching the regex.
type Filter struct {
	sourceDB string
	allow    map[string]struct{}
	skip     map[string]struct{}
	regex    *regexp.Regexp
}

// New builds a filter. tablesList is a comma separated list of db.table,
// omitFile a file with one db or db.table per line.
func New(sourceDB, tablesList, omitFile, pattern string) (*Filter, error) {
	f := &Filter{sourceDB: sourceDB}
	if tablesList != "" {
		f.allow = map[string]struct{}{}
		for _, item := range strings.Split(tablesList, ",") {
			if item = strings.TrimSpace(item); item != "" {
				f.allow[item] = struct{}{}
			}
		}
	}
	if omitFile != "" {
		skip, err := readList(omitFile)
		if err != nil {
			return nil, err
		}
		f.skip = skip
	}
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
		}
		f.regex = re
	}
	return f, nil
}

func readList(path string) (map[string]struct{}, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open omit file: %w", err)
	}
	defer fh.Close()
	out := map[string]struct{}{}
	s := bufio.NewScanner(fh)
	for s.Scan() {
		if line := strings.TrimSpace(s.Text()); line != "" && !strings.HasPrefix(line, "#") {
			out[line] = struct{}{}
		}
	}
	return out, s.Err()
}

// SkipDatabase reports whether a whole database is excluded.
func (f *Filter) SkipDatabase(db string) bool {
	if f == nil {
		return false
	}
	if f.sourceDB != "" && db != f.sourceDB {
		return true
	}
	if _, ok := f.skip[db]; ok {
		return true
	}
	return false
}

// SkipTable reports whether db.table is excluded.
func (f *Filter) SkipTable(db, table string) bool {
	if f == nil {
		return false
	}
	if f.SkipDatabase(db) {
		return true
	}
	name := db + "." + table
	if f.allow != nil {
		if _, ok := f.allow[name]; !ok {
			return true
		}
	}
	if _, ok := f.skip[name]; ok {
		return true
	}
	if f.regex != nil && !f.regex.MatchString(name) {
		return true
	}
	return false
}
