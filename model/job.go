package model

import "fmt"

type RestoreKind int

const (
	RestoreCreateTable RestoreKind = iota
	RestoreSchemaFile
	RestoreDataFile
	RestoreStatement
)

func (k RestoreKind) String() string {
	switch k {
	case RestoreCreateTable:
		return "create-table"
	case RestoreSchemaFile:
		return "schema-file"
	case RestoreDataFile:
		return "data-file"
	case RestoreStatement:
		return "statement"
	}
	return "unknown"
}

// RestoreJob is one unit of SQL work. Table is nil for database level jobs.
type RestoreJob struct {
	Kind     RestoreKind
	Object   ObjectType
	Filename string
	Database *Database
	Table    *Table
	// Statement holds the SQL of CreateTable and Statement jobs.
	Statement string
	Part      uint64
	SubPart   uint64
}

func NewCreateTableJob(t *Table, filename, statement string) *RestoreJob {
	return &RestoreJob{Kind: RestoreCreateTable, Object: ObjectTable, Filename: filename, Database: t.Database, Table: t, Statement: statement}
}

func NewSchemaFileJob(db *Database, t *Table, object ObjectType, filename string) *RestoreJob {
	return &RestoreJob{Kind: RestoreSchemaFile, Object: object, Filename: filename, Database: db, Table: t}
}

func NewDataJob(t *Table, filename string, part, subPart uint64) *RestoreJob {
	return &RestoreJob{Kind: RestoreDataFile, Object: ObjectData, Filename: filename, Database: t.Database, Table: t, Part: part, SubPart: subPart}
}

// NewStatementJob builds a deferred statement of t. The caller holds t's
// lock or owns t exclusively.
func NewStatementJob(t *Table, object ObjectType, statement string) *RestoreJob {
	return &RestoreJob{Kind: RestoreStatement, Object: object, Filename: t.SchemaFile, Database: t.Database, Table: t, Statement: statement}
}

// CheckpointName is the resume file entry of the job. Statements are keyed
// by their table schema file and object, since one file yields several.
func (j *RestoreJob) CheckpointName() string {
	if j.Kind == RestoreStatement && j.Filename != "" {
		return j.Filename + "#" + j.Object.String()
	}
	return j.Filename
}

// Before orders data chunks by (part, sub_part).
func (j *RestoreJob) Before(o *RestoreJob) bool {
	if j.Part != o.Part {
		return j.Part < o.Part
	}
	return j.SubPart < o.SubPart
}

func (j *RestoreJob) String() string {
	target := ""
	switch {
	case j.Table != nil:
		target = j.Table.String()
	case j.Database != nil:
		target = j.Database.TargetName
	}
	if j.Filename != "" {
		return fmt.Sprintf("%s %s %s (%s)", j.Kind, j.Object, target, j.Filename)
	}
	return fmt.Sprintf("%s %s %s", j.Kind, j.Object, target)
}
