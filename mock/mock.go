// Package mock writes synthetic dump directories for tests and benchmarks.
package mock

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/ainilili/dumploader/util"
	"github.com/google/uuid"
)

type Options struct {
	Databases int
	Tables    int
	// Chunks is the number of data files per table.
	Chunks int
	// Rows is the number of rows per INSERT; each chunk holds one INSERT.
	Rows int
	Seed int64
}

// Dump describes what Generate wrote.
type Dump struct {
	Dir       string
	Databases []string
	// Tables maps "db.table" to its row count.
	Tables map[string]int
	Files  []string
}

func DatabaseName(i int) string { return fmt.Sprintf("mock_db_%d", i) }
func TableName(i int) string    { return fmt.Sprintf("mock_t_%d", i) }

// Generate writes a dump with a metadata file, one create file per database
// and a schema file plus Chunks data files per table.
func Generate(dir string, opts Options) (*Dump, error) {
	if opts.Databases < 1 {
		opts.Databases = 1
	}
	if opts.Chunks < 1 {
		opts.Chunks = 1
	}
	if opts.Rows < 1 {
		opts.Rows = 1
	}
	rnd := rand.New(rand.NewSource(opts.Seed))
	d := &Dump{Dir: dir, Tables: map[string]int{}}

	var meta strings.Builder
	meta.WriteString("[config]\nquote_character = BACKTICK\n\n")

	write := func(name, content string) error {
		d.Files = append(d.Files, name)
		return os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644)
	}

	for i := 0; i < opts.Databases; i++ {
		db := DatabaseName(i)
		d.Databases = append(d.Databases, db)
		if err := write(db+"-schema-create.sql", fmt.Sprintf("CREATE DATABASE %s;\n", util.Quote(db, '`'))); err != nil {
			return nil, err
		}
		for j := 0; j < opts.Tables; j++ {
			table := TableName(j)
			if err := write(db+"."+table+"-schema.sql", createTable(table)); err != nil {
				return nil, err
			}
			id := 0
			for c := 0; c < opts.Chunks; c++ {
				var sb strings.Builder
				sb.WriteString("INSERT INTO ")
				sb.WriteString(util.Quote(table, '`'))
				sb.WriteString(" VALUES ")
				for r := 0; r < opts.Rows; r++ {
					id++
					if r > 0 {
						sb.WriteString(",")
					}
					fmt.Fprintf(&sb, "(%d,%f,'%s','2020-12-26 09:56:37')", id, rnd.Float64(), strings.ReplaceAll(uuid.NewString(), "-", ""))
				}
				sb.WriteString(";\n")
				if err := write(fmt.Sprintf("%s.%s.%05d.sql", db, table, c), sb.String()); err != nil {
					return nil, err
				}
			}
			d.Tables[db+"."+table] = id
			fmt.Fprintf(&meta, "[%s.%s]\nrows = %d\n\n", util.Quote(db, '`'), util.Quote(table, '`'), id)
		}
	}
	if err := write("metadata", meta.String()); err != nil {
		return nil, err
	}
	return d, nil
}

func createTable(name string) string {
	return fmt.Sprintf("CREATE TABLE %s (\n"+
		"  `id` bigint NOT NULL,\n"+
		"  `score` double DEFAULT NULL,\n"+
		"  `tag` char(32) NOT NULL,\n"+
		"  `created_at` datetime NOT NULL,\n"+
		"  PRIMARY KEY (`id`),\n"+
		"  KEY `idx_tag` (`tag`)\n"+
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;\n", util.Quote(name, '`'))
}
