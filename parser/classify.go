package parser

import (
	"strconv"
	"strings"

	"github.com/ainilili/dumploader/consts"
	"github.com/ainilili/dumploader/util"
)

type FileKind int

const (
	KindIgnored FileKind = iota
	KindEnd
	KindMetadataGlobal
	KindResume
	KindTablespace
	KindSequence
	KindSchemaCreate
	KindSchemaTable
	KindData
	KindLoadData
	KindSchemaView
	KindSchemaTrigger
	KindSchemaPost
	KindMetadataTable
	KindChecksum
)

var fileKindNames = map[FileKind]string{
	KindIgnored:        "ignored",
	KindEnd:            "end",
	KindMetadataGlobal: "metadata",
	KindResume:         "resume",
	KindTablespace:     "tablespace",
	KindSequence:       "sequence",
	KindSchemaCreate:   "schema-create",
	KindSchemaTable:    "schema-table",
	KindData:           "data",
	KindLoadData:       "load-data",
	KindSchemaView:     "schema-view",
	KindSchemaTrigger:  "schema-trigger",
	KindSchemaPost:     "schema-post",
	KindMetadataTable:  "table-metadata",
	KindChecksum:       "checksum",
}

func (k FileKind) String() string {
	return fileKindNames[k]
}

// IsSchema reports whether files of this kind carry DDL.
func (k FileKind) IsSchema() bool {
	switch k {
	case KindTablespace, KindSequence, KindSchemaCreate, KindSchemaTable, KindSchemaView, KindSchemaTrigger, KindSchemaPost:
		return true
	}
	return false
}

// Classify maps a dump filename to its kind. It only looks at the name.
func Classify(filename string) FileKind {
	if filename == consts.EndOfFiles {
		return KindEnd
	}
	name, _ := util.StripCompression(util.BaseName(filename))
	switch {
	case name == consts.MetadataFile || name == consts.MetadataHeader || strings.HasPrefix(name, consts.MetadataPartial):
		return KindMetadataGlobal
	case name == consts.ResumeFile:
		return KindResume
	case strings.HasSuffix(name, consts.TablespaceSuffix):
		return KindTablespace
	case strings.HasSuffix(name, consts.SchemaSequenceSuffix):
		return KindSequence
	case strings.HasSuffix(name, consts.SchemaCreateSuffix):
		return KindSchemaCreate
	case strings.HasSuffix(name, consts.SchemaViewSuffix):
		return KindSchemaView
	case strings.HasSuffix(name, consts.SchemaTriggersSuffix):
		return KindSchemaTrigger
	case strings.HasSuffix(name, consts.SchemaPostSuffix):
		return KindSchemaPost
	case strings.HasSuffix(name, consts.SchemaTableSuffix):
		return KindSchemaTable
	case strings.HasSuffix(name, consts.TableMetadataSuffix):
		return KindMetadataTable
	case strings.HasSuffix(name, consts.ChecksumSuffix):
		return KindChecksum
	case strings.HasSuffix(name, consts.DatSuffix):
		return KindLoadData
	case strings.HasSuffix(name, consts.SQLSuffix):
		return KindData
	}
	return KindIgnored
}

// DataFileName is what a data chunk filename says about its chunk.
type DataFileName struct {
	Database string
	Table    string
	Part     uint64
	SubPart  uint64
}

// ParseDataFilename splits db.table.part[.subpart].sql. It returns false
// when the name has fewer than two dot separated segments or a part is not
// numeric.
func ParseDataFilename(filename string) (DataFileName, bool) {
	name, _ := util.StripCompression(util.BaseName(filename))
	name = strings.TrimSuffix(name, consts.SQLSuffix)
	name = strings.TrimSuffix(name, consts.DatSuffix)
	parts := strings.Split(name, ".")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return DataFileName{}, false
	}
	d := DataFileName{Database: parts[0], Table: parts[1]}
	if len(parts) > 2 {
		p, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			return DataFileName{}, false
		}
		d.Part = p
	}
	if len(parts) > 3 {
		sp, err := strconv.ParseUint(parts[3], 10, 64)
		if err != nil {
			return DataFileName{}, false
		}
		d.SubPart = sp
	}
	return d, true
}

// ParseObjectFilename splits a schema filename into database and object
// name: "db-schema-create.sql" gives ("db", ""), "db.t-schema.sql" gives
// ("db", "t").
func ParseObjectFilename(filename string, kind FileKind) (string, string) {
	name, _ := util.StripCompression(util.BaseName(filename))
	var suffix string
	switch kind {
	case KindTablespace:
		suffix = consts.TablespaceSuffix
	case KindSequence:
		suffix = consts.SchemaSequenceSuffix
	case KindSchemaCreate:
		suffix = consts.SchemaCreateSuffix
	case KindSchemaView:
		suffix = consts.SchemaViewSuffix
	case KindSchemaTrigger:
		suffix = consts.SchemaTriggersSuffix
	case KindSchemaPost:
		suffix = consts.SchemaPostSuffix
	case KindSchemaTable:
		suffix = consts.SchemaTableSuffix
	case KindMetadataTable:
		suffix = consts.TableMetadataSuffix
	case KindChecksum:
		suffix = consts.ChecksumSuffix
	}
	stem := strings.TrimSuffix(name, suffix)
	if i := strings.Index(stem, "."); i != -1 {
		return stem[:i], stem[i+1:]
	}
	return stem, ""
}
