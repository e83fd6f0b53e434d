// Package restore executes restore jobs on pooled connections.
package restore

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ainilili/dumploader/config"
	"github.com/ainilili/dumploader/database"
	"github.com/ainilili/dumploader/log"
	"github.com/ainilili/dumploader/model"
	"github.com/ainilili/dumploader/util"
)

var (
	// ErrRetryable marks purge failures caused by lock waits or deadlocks.
	ErrRetryable = errors.New("lock wait timeout or deadlock")
	// ErrPurge marks a failed DROP, TRUNCATE or DELETE before creation.
	ErrPurge = errors.New("purge failed")
)

type Options struct {
	Directory string
	// Rows splits multi-row INSERTs into statements of at most Rows tuples.
	Rows int
	// Transactions wraps data files in commit-every-N transactions.
	Transactions         bool
	MaxConnectionsPerJob int
	// IgnoreTableExists treats "table exists" on creation as success.
	IgnoreTableExists bool
	// Ignored reports server error codes counted as warnings.
	Ignored func(code uint16) bool
}

// Result summarises one job.
type Result struct {
	Statements int
	Errors     int
	Warnings   int
	// Err is the first counted error.
	Err error
}

func (r *Result) record(filename string, line int, err error, ignored func(uint16) bool) {
	if err == nil {
		r.Statements++
		return
	}
	code := database.ErrorCode(err)
	if ignored != nil && code != 0 && ignored(code) {
		r.Warnings++
		log.Warnf("%s:%d: ignored error %d: %v", filename, line, code, err)
		return
	}
	r.Errors++
	if r.Err == nil {
		r.Err = err
	}
	log.Errorf("%s:%d: %v", filename, line, err)
}

func (r *Result) merge(o Result) {
	r.Statements += o.Statements
	r.Errors += o.Errors
	r.Warnings += o.Warnings
	if r.Err == nil {
		r.Err = o.Err
	}
}

// Restorer runs jobs. Connections are borrowed by the caller; only
// connection escalation for data files takes extra ones from the pool.
type Restorer struct {
	opts Options
	pool *database.Pool
	// wake is called when an escalated loader slot is returned.
	wake func()
}

func New(opts Options, pool *database.Pool, wake func()) *Restorer {
	if opts.MaxConnectionsPerJob < 1 {
		opts.MaxConnectionsPerJob = 1
	}
	if wake == nil {
		wake = func() {}
	}
	return &Restorer{opts: opts, pool: pool, wake: wake}
}

func (r *Restorer) path(filename string) string {
	if filepath.IsAbs(filename) || r.opts.Directory == "" {
		return filename
	}
	return filepath.Join(r.opts.Directory, filename)
}

func (r *Restorer) ignored(code uint16) bool {
	return r.opts.Ignored != nil && r.opts.Ignored(code)
}

func qualified(t *model.Table) string {
	return util.Quote(t.Database.TargetName, '`') + "." + util.Quote(t.Name(), '`')
}

func useDatabase(conn *database.Conn, job *model.RestoreJob) error {
	if job.Database == nil {
		return nil
	}
	if err := conn.Use(job.Database.TargetName); err != nil {
		return fmt.Errorf("use %s: %w", job.Database.TargetName, err)
	}
	return nil
}

// Purge applies mode to an existing table. It reports whether the table is
// already in place, in which case CREATE must be skipped.
func Purge(conn *database.Conn, t *model.Table, mode config.PurgeMode) (bool, error) {
	name := qualified(t)
	switch mode {
	case config.PurgeDrop:
		if err := conn.Exec("DROP TABLE IF EXISTS " + name); err != nil {
			return false, purgeError(t, err)
		}
		if err := conn.Exec("DROP VIEW IF EXISTS " + name); err != nil {
			return false, purgeError(t, err)
		}
	case config.PurgeTruncate, config.PurgeDelete:
		q := "TRUNCATE TABLE " + name
		if mode == config.PurgeDelete {
			q = "DELETE FROM " + name
		}
		err := conn.Exec(q)
		if err == nil {
			return true, nil
		}
		if database.IsLockError(err) {
			return false, purgeError(t, err)
		}
		if database.IsUnknownTable(err) {
			log.Debugf("%s: %s does not exist yet", mode, t)
		} else {
			log.Warnf("%s on %s failed, creating it: %v", mode, t, err)
		}
	}
	return false, nil
}

func purgeError(t *model.Table, err error) error {
	if database.IsLockError(err) {
		return fmt.Errorf("%w: %w: %s: %w", ErrPurge, ErrRetryable, t, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrPurge, t, err)
}

// CreateTable purges per mode, then runs the job's CREATE statement.
func (r *Restorer) CreateTable(conn *database.Conn, job *model.RestoreJob, mode config.PurgeMode) error {
	t := job.Table
	if err := useDatabase(conn, job); err != nil {
		return err
	}
	exists, err := Purge(conn, t, mode)
	if err != nil {
		return err
	}
	if exists {
		log.Infof("%s %s, keeping the existing table", mode, t)
		return nil
	}
	err = conn.Exec(job.Statement)
	if err == nil {
		return nil
	}
	if database.IsTableExists(err) && (mode == config.PurgeNone || r.opts.IgnoreTableExists) {
		log.Warnf("table %s already exists", t)
		return nil
	}
	return fmt.Errorf("create %s: %w", t, err)
}

// Statement runs a single deferred statement, such as an index or foreign
// key ALTER TABLE.
func (r *Restorer) Statement(conn *database.Conn, job *model.RestoreJob) Result {
	var res Result
	if err := useDatabase(conn, job); err != nil {
		res.record(job.String(), 0, err, nil)
		return res
	}
	res.record(job.String(), 0, conn.Exec(job.Statement), r.ignored)
	return res
}
