package binlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSource_Position(t *testing.T) {
	s, err := ParseSource(map[string]string{
		"File":     "mysql-bin.000003",
		"Position": "154",
		"host":     "10.0.0.1",
		"port":     "3306",
	})
	require.NoError(t, err)
	assert.Equal(t, "mysql-bin.000003", s.Position.Name)
	assert.Equal(t, uint32(154), s.Position.Pos)
	assert.Equal(t, []string{
		"STOP REPLICA",
		"CHANGE REPLICATION SOURCE TO SOURCE_HOST = '10.0.0.1', SOURCE_PORT = 3306, SOURCE_LOG_FILE = 'mysql-bin.000003', SOURCE_LOG_POS = 154",
	}, s.Statements())
}

func TestParseSource_GTID(t *testing.T) {
	s, err := ParseSource(map[string]string{
		"Executed_Gtid_Set": "3e11fa47-71ca-11e1-9e33-c80aa9429562:1-5",
		"password":          "it's",
		"channel_name":      "c1",
	})
	require.NoError(t, err)
	stmts := s.Statements()
	require.Len(t, stmts, 4)
	assert.Equal(t, "SET GLOBAL gtid_purged = '3e11fa47-71ca-11e1-9e33-c80aa9429562:1-5'", stmts[2])
	assert.Contains(t, stmts[3], "SOURCE_AUTO_POSITION = 1")
	assert.Contains(t, stmts[3], "FOR CHANNEL 'c1'")
	assert.NotContains(t, Redact(stmts[3]), "it''s")
	assert.Contains(t, Redact(stmts[3]), "SOURCE_PASSWORD = '***'")
}

func TestParseSource_Errors(t *testing.T) {
	_, err := ParseSource(map[string]string{})
	assert.ErrorIs(t, err, ErrNoSource)

	_, err = ParseSource(map[string]string{"Executed_Gtid_Set": "not-a-gtid"})
	assert.Error(t, err)

	_, err = ParseSource(map[string]string{"File": "b.1", "Position": "x"})
	assert.Error(t, err)
}
