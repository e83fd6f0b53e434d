package rver

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecover_Make(t *testing.T) {
	dir := t.TempDir()
	r := New(dir)

	_, err := r.Load()
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, r.Make([]string{"db.t.00001.sql", "db.t.00002.sql"}))
	data, err := os.ReadFile(r.Path())
	require.NoError(t, err)
	assert.Equal(t, "db.t.00001.sql\ndb.t.00002.sql\n", string(data))

	files, err := r.Load()
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.Contains(t, files, "db.t.00002.sql")

	require.NoError(t, r.Make(nil))
	files, err = r.Load()
	require.NoError(t, err)
	assert.Empty(t, files)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are renamed away")
}
