package mock

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	dir := t.TempDir()
	d, err := Generate(dir, Options{Databases: 2, Tables: 3, Chunks: 2, Rows: 4, Seed: 1})
	require.NoError(t, err)

	assert.Len(t, d.Databases, 2)
	assert.Len(t, d.Tables, 6)
	assert.Equal(t, 8, d.Tables["mock_db_1.mock_t_2"])
	// create file per database, schema plus chunks per table, metadata
	assert.Len(t, d.Files, 2+6*3+1)

	data, err := os.ReadFile(filepath.Join(dir, "mock_db_0.mock_t_0.00001.sql"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "INSERT INTO `mock_t_0` VALUES (5,"))
	assert.Equal(t, 4, strings.Count(string(data), "'2020-12-26 09:56:37'"))

	meta, err := os.ReadFile(filepath.Join(dir, "metadata"))
	require.NoError(t, err)
	assert.Contains(t, string(meta), "[`mock_db_0`.`mock_t_1`]\nrows = 8")
}
