package loader

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStreamHeader(t *testing.T) {
	tests := []struct {
		line string
		name string
		size int64
		ok   bool
	}{
		{"-- metadata 12", "metadata", 12, true},
		{"-- db.t.00000.sql 0", "db.t.00000.sql", 0, true},
		{"-- ../../etc/passwd 3", "passwd", 3, true},
		{"-- db.t.00000.sql", "", 0, false},
		{"db.t.00000.sql 10", "", 0, false},
		{"-- db.t.00000.sql -1", "", 0, false},
		{"-- db.t.00000.sql ten", "", 0, false},
	}
	for _, tt := range tests {
		name, size, err := parseStreamHeader(tt.line)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrStreamHeader, tt.line)
			continue
		}
		require.NoError(t, err, tt.line)
		assert.Equal(t, tt.name, name)
		assert.Equal(t, tt.size, size)
	}
}

func TestStreamSource_MaterializesFiles(t *testing.T) {
	dir := t.TempDir()
	meta := "[config]\nquote_character = BACKTICK\n"
	data := "INSERT INTO `t` VALUES (1);\n"
	stream := "-- metadata " + strconv.Itoa(len(meta)) + "\n" + meta +
		"-- db.t.00000.sql " + strconv.Itoa(len(data)) + "\n" + data

	var names []string
	err := StreamSource(strings.NewReader(stream), dir)(context.Background(), func(name string) error {
		names = append(names, name)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"metadata", "db.t.00000.sql"}, names)

	got, err := os.ReadFile(filepath.Join(dir, "db.t.00000.sql"))
	require.NoError(t, err)
	assert.Equal(t, data, string(got))
}

func TestStreamSource_Truncated(t *testing.T) {
	err := StreamSource(strings.NewReader("-- metadata 100\nshort"), t.TempDir())(context.Background(), func(string) error { return nil })
	assert.Error(t, err)

	err = StreamSource(strings.NewReader("garbage\n"), t.TempDir())(context.Background(), func(string) error { return nil })
	assert.ErrorIs(t, err, ErrStreamHeader)
}

func TestLoader_StreamHoldsFilesUntilConfig(t *testing.T) {
	dir := t.TempDir()
	files := []struct{ name, content string }{
		{"db1-schema-create.sql", "CREATE DATABASE `db1`;\n"},
		{"db1.t1-schema.sql", createTable("t1")},
		{"db1.t1.00000.sql", insert("t1", 1)},
		{"metadata", metadata},
	}
	var sb strings.Builder
	for _, f := range files {
		sb.WriteString("-- " + f.name + " " + strconv.Itoa(len(f.content)) + "\n" + f.content)
	}

	f := newFakeServer()
	cfg := testConfig(dir)
	cfg.Stream = true
	l := newTestLoader(t, cfg, f, nil)
	_, err := l.Run(context.Background(), StreamSource(strings.NewReader(sb.String()), dir))
	require.NoError(t, err)
	assert.Less(t, f.index("CREATE DATABASE `db1`"), f.index("CREATE TABLE `t1`"))
	assert.Equal(t, 1, f.count("INSERT INTO `t1`"))
}
