package restore

import (
	"fmt"
	"io"
	"strings"

	"github.com/ainilili/dumploader/database"
	"github.com/ainilili/dumploader/file"
	"github.com/ainilili/dumploader/model"
	"github.com/ainilili/dumploader/util"
)

// SchemaFile runs every statement of a schema file (database, tablespace,
// sequence, view, trigger or post). Statement errors are counted; the
// returned error is only set when the file itself cannot be read.
func (r *Restorer) SchemaFile(conn *database.Conn, job *model.RestoreJob) (Result, error) {
	var res Result
	rc, err := file.Open(r.path(job.Filename))
	if err != nil {
		return res, err
	}
	defer rc.Close()

	switch job.Object {
	case model.ObjectDatabase, model.ObjectTablespace:
	default:
		if err := useDatabase(conn, job); err != nil {
			res.record(job.Filename, 0, err, nil)
			return res, nil
		}
	}

	sr := file.NewStatementReader(rc)
	for {
		st, err := sr.Next()
		if err == io.EOF {
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("read %s: %w", job.Filename, err)
		}
		text := st.Text
		if job.Object == model.ObjectDatabase {
			text = renameDatabase(text, job.Database)
		}
		err = conn.Exec(text)
		if err != nil && r.opts.IgnoreTableExists && database.IsTableExists(err) {
			err = nil
		}
		res.record(job.Filename, st.Line, err, r.ignored)
	}
}

// renameDatabase points a CREATE DATABASE at the target name.
func renameDatabase(stmt string, db *model.Database) string {
	if db == nil || db.SourceName == db.TargetName {
		return stmt
	}
	from := util.Quote(db.SourceName, '`')
	return strings.Replace(stmt, from, util.Quote(db.TargetName, '`'), 1)
}
