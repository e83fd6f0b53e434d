package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitInsert(t *testing.T) {
	stmt := "INSERT INTO `t` VALUES (1,'a'),(2,'b,c'),(3,'it''s (x)'),(4,'d\\'e');"

	got := SplitInsert(stmt, 2)
	assert.Equal(t, []string{
		"INSERT INTO `t` VALUES (1,'a'),(2,'b,c');",
		"INSERT INTO `t` VALUES (3,'it''s (x)'),(4,'d\\'e');",
	}, got)

	assert.Equal(t, []string{stmt}, SplitInsert(stmt, 0))
	assert.Equal(t, []string{stmt}, SplitInsert(stmt, 4))
	assert.Len(t, SplitInsert(stmt, 1), 4)
}

func TestSplitInsert_Unsplittable(t *testing.T) {
	for _, stmt := range []string{
		"CREATE TABLE t (a int)",
		"INSERT INTO t VALUES (1),(2) ON DUPLICATE KEY UPDATE a = a + 1",
		"INSERT INTO t SELECT * FROM s",
		"INSERT INTO t VALUES (1,'unterminated),(2)",
	} {
		assert.Equal(t, []string{stmt}, SplitInsert(stmt, 1), stmt)
	}
}

func TestSplitInsert_ColumnListNamedValues(t *testing.T) {
	stmt := "INSERT INTO `t` (`values`,`b`) VALUES (1,2),(3,4);"
	assert.Equal(t, []string{
		"INSERT INTO `t` (`values`,`b`) VALUES (1,2);",
		"INSERT INTO `t` (`values`,`b`) VALUES (3,4);",
	}, SplitInsert(stmt, 1))
}

func TestLoadData(t *testing.T) {
	stmt := "LOAD DATA INFILE 'db.t.00000.dat' INTO TABLE `t` FIELDS TERMINATED BY ','"
	name, ok := LoadDataFile(stmt)
	assert.True(t, ok)
	assert.Equal(t, "db.t.00000.dat", name)
	assert.Equal(t,
		"LOAD DATA LOCAL INFILE 'Reader::db.t.00000.dat' INTO TABLE `t` FIELDS TERMINATED BY ','",
		RewriteLoadData(stmt, "Reader::db.t.00000.dat"))

	stmt = "LOAD DATA CONCURRENT LOCAL INFILE 'x.dat' INTO TABLE t"
	assert.Equal(t, "LOAD DATA CONCURRENT LOCAL INFILE 'Reader::x' INTO TABLE t", RewriteLoadData(stmt, "Reader::x"))

	_, ok = LoadDataFile("INSERT INTO t VALUES (1)")
	assert.False(t, ok)
}
