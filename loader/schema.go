package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/ainilili/dumploader/config"
	"github.com/ainilili/dumploader/database"
	"github.com/ainilili/dumploader/log"
	"github.com/ainilili/dumploader/model"
	"github.com/ainilili/dumploader/restore"
)

var schemaEnd = &model.RestoreJob{Kind: model.RestoreSchemaFile, Object: model.ObjectDatabase}

// pushSchema queues a schema job and counts it until schemaDone.
func (l *Loader) pushSchema(level int, job *model.RestoreJob) {
	l.schemaMu.Lock()
	l.schemaPending++
	l.schemaMu.Unlock()
	l.schemaQueue.Push(level, job)
}

func (l *Loader) schemaDone() {
	l.schemaMu.Lock()
	l.schemaPending--
	if l.schemaPending == 0 {
		l.schemaIdle.Broadcast()
	}
	l.schemaMu.Unlock()
}

// scheduleTableJob runs job once its database exists.
func (l *Loader) scheduleTableJob(job *model.RestoreJob) {
	sequence := job.Object == model.ObjectSequence
	if job.Database.Defer(job, sequence) {
		return
	}
	l.pushSchema(schemaLevelTable, job)
}

func (l *Loader) releaseDatabase(db *model.Database) int {
	jobs := db.Release()
	for _, job := range jobs {
		l.pushSchema(schemaLevelTable, job)
	}
	return len(jobs)
}

func (l *Loader) schemaWorker(ctx context.Context) error {
	for {
		job, err := l.schemaQueue.Pop(ctx)
		if err != nil {
			return nil
		}
		if job == schemaEnd {
			if l.endSchema(ctx) {
				l.schemaQueue.Push(schemaLevelEnd, schemaEnd)
				return nil
			}
			continue
		}
		err = l.runSchemaJob(ctx, job)
		l.schemaDone()
		if err != nil {
			return err
		}
	}
}

// endSchema handles the end marker. It waits for queued work to finish,
// then creates every database still waiting so their deferred jobs run. It
// reports true once nothing else can arrive.
func (l *Loader) endSchema(ctx context.Context) bool {
	if l.schemaEnded.Load() {
		return true
	}
	stop := context.AfterFunc(ctx, func() {
		l.schemaMu.Lock()
		l.schemaIdle.Broadcast()
		l.schemaMu.Unlock()
	})
	defer stop()
	l.schemaMu.Lock()
	for l.schemaPending > 0 && ctx.Err() == nil {
		l.schemaIdle.Wait()
	}
	l.schemaMu.Unlock()
	if ctx.Err() != nil {
		return true
	}

	released := 0
	for _, db := range l.reg.Databases() {
		if !db.Created() {
			released += l.releaseDatabase(db)
		}
	}
	if released > 0 {
		log.Debugf("schema end: released %d deferred jobs", released)
		l.schemaQueue.Push(schemaLevelEnd, schemaEnd)
		return false
	}
	if l.schemaEnded.CompareAndSwap(false, true) {
		log.Infof("schema creation finished")
		l.wake()
	}
	return true
}

func (l *Loader) runSchemaJob(ctx context.Context, job *model.RestoreJob) error {
	if l.control.Stopping() {
		l.control.Record(job.CheckpointName())
		if job.Object == model.ObjectDatabase {
			l.releaseDatabase(job.Database)
		}
		return nil
	}
	if err := l.control.WaitIfPaused(ctx); err != nil {
		return nil
	}
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil
	}
	defer l.pool.Release(conn)

	if job.Kind == model.RestoreCreateTable {
		return l.createTable(conn, job)
	}

	log.Infof("restoring %s from %s", job.Object, job.Filename)
	res, err := l.restorer.SchemaFile(conn, job)
	if err != nil {
		log.Errorf("%s: %v", job.Filename, err)
		res.Errors++
	}
	l.errors.Add(categoryOf(job.Object), res.Errors)
	l.progress.fileDone(res.Statements)

	switch job.Object {
	case model.ObjectDatabase:
		l.releaseDatabase(job.Database)
		l.wake()
	case model.ObjectSequence:
		if job.Table != nil {
			job.Table.Advance(model.Created)
		}
	}
	return l.errors.Check()
}

func (l *Loader) createTable(conn *database.Conn, job *model.RestoreJob) error {
	t := job.Table
	t.Advance(model.Creating)
	log.Infof("creating table %s", t)

	err := l.restorer.CreateTable(conn, job, l.cfg.Purge)
	l.progress.fileDone(1)
	if err == nil {
		t.Advance(model.Created)
		l.wake()
		return nil
	}

	if errors.Is(err, restore.ErrRetryable) {
		t.Lock()
		t.Retries++
		retries := t.Retries
		t.State = model.NotCreated
		t.Unlock()
		if retries <= l.cfg.RetryCount {
			l.errors.Add(CategoryRetries, 1)
			log.Warnf("%v, retry %d of %d", err, retries, l.cfg.RetryCount)
			l.pushSchema(schemaLevelTable, job)
			return nil
		}
	}

	log.Error(err)
	l.errors.Add(CategorySchema, 1)
	if errors.Is(err, restore.ErrPurge) {
		if !l.cfg.PurgeFailureNonFatal {
			return fmt.Errorf("%w: %w", ErrFatal, err)
		}
		return l.errors.Check()
	}
	if l.cfg.Purge == config.PurgeFail {
		return fmt.Errorf("%w: %w", ErrFatal, err)
	}
	return l.errors.Check()
}
