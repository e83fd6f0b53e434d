package parser

import (
	"testing"

	"github.com/ainilili/dumploader/consts"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		want FileKind
	}{
		{consts.EndOfFiles, KindEnd},
		{"metadata", KindMetadataGlobal},
		{"metadata.partial.0", KindMetadataGlobal},
		{"resume", KindResume},
		{"all-schema-create-tablespace.sql", KindTablespace},
		{"db.seq-schema-sequence.sql", KindSequence},
		{"db-schema-create.sql", KindSchemaCreate},
		{"db-schema-create.sql.zst", KindSchemaCreate},
		{"db.t-schema.sql", KindSchemaTable},
		{"db.t-schema.sql.gz", KindSchemaTable},
		{"db.v-schema-view.sql", KindSchemaView},
		{"db.t-schema-triggers.sql", KindSchemaTrigger},
		{"db-schema-post.sql", KindSchemaPost},
		{"db.t-metadata", KindMetadataTable},
		{"db.t-checksum", KindChecksum},
		{"db.t.00000.sql", KindData},
		{"db.t.00000.00002.sql.zst", KindData},
		{"db.t.00000.dat", KindLoadData},
		{"/dump/dir/db.t.00001.sql", KindData},
		{"README.txt", KindIgnored},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.name), c.name)
	}
}

func TestParseDataFilename(t *testing.T) {
	cases := []struct {
		name string
		want DataFileName
		ok   bool
	}{
		{"db.t.00003.sql", DataFileName{Database: "db", Table: "t", Part: 3}, true},
		{"db.t.00003.00007.sql", DataFileName{Database: "db", Table: "t", Part: 3, SubPart: 7}, true},
		{"db.t.00003.00007.sql.gz", DataFileName{Database: "db", Table: "t", Part: 3, SubPart: 7}, true},
		{"db.t.sql", DataFileName{Database: "db", Table: "t"}, true},
		{"db.t.00001.dat", DataFileName{Database: "db", Table: "t", Part: 1}, true},
		{"lonely.sql", DataFileName{}, false},
		{"db.t.part.sql", DataFileName{}, false},
	}
	for _, c := range cases {
		got, ok := ParseDataFilename(c.name)
		assert.Equal(t, c.ok, ok, c.name)
		assert.Equal(t, c.want, got, c.name)
	}
}

func TestParseObjectFilename(t *testing.T) {
	db, obj := ParseObjectFilename("db-schema-create.sql", KindSchemaCreate)
	assert.Equal(t, "db", db)
	assert.Equal(t, "", obj)

	db, obj = ParseObjectFilename("db.orders-schema.sql.zst", KindSchemaTable)
	assert.Equal(t, "db", db)
	assert.Equal(t, "orders", obj)

	db, obj = ParseObjectFilename("db.orders-schema-triggers.sql", KindSchemaTrigger)
	assert.Equal(t, "db", db)
	assert.Equal(t, "orders", obj)
}
