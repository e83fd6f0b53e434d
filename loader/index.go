package loader

import (
	"context"

	"github.com/ainilili/dumploader/config"
	"github.com/ainilili/dumploader/log"
	"github.com/ainilili/dumploader/model"
)

const (
	indexLevelJob = iota
	indexLevelEnd
)

var indexEnd = &model.RestoreJob{Kind: model.RestoreStatement, Object: model.ObjectIndex}

// enqueueIndex moves a DataDone table to its index phase, or straight to
// AllDone when it has no deferred indexes. Other states are left alone so
// repeated calls are harmless.
func (l *Loader) enqueueIndex(t *model.Table) {
	t.Lock()
	if t.State != model.DataDone {
		t.Unlock()
		return
	}
	if t.Indexes == "" || t.SkipIndexes {
		t.State = model.AllDone
		t.Unlock()
		l.progress.tableDone()
		return
	}
	job := model.NewStatementJob(t, model.ObjectIndex, t.Indexes)
	if !t.Resumed && !l.listedOnResume(t.SchemaFile) && !l.listedOnResume(job.CheckpointName()) {
		t.State = model.AllDone
		t.Unlock()
		log.Debugf("indexes of %s finished before the checkpoint", t)
		l.progress.tableDone()
		return
	}
	t.State = model.IndexEnqueued
	t.Unlock()

	if l.cfg.Optimize == config.OptimizeKeysAfterAllTables {
		l.indexMu.Lock()
		l.afterAll = append(l.afterAll, job)
		l.indexMu.Unlock()
		return
	}
	l.indexQueue.Push(indexLevelJob, job)
}

// endIndexPhase runs once the loaders exited: indexes held back for the
// whole data phase are released, then every index worker gets an end marker.
func (l *Loader) endIndexPhase() {
	l.indexMu.Lock()
	jobs := l.afterAll
	l.afterAll = nil
	l.indexMu.Unlock()
	if len(jobs) > 0 {
		log.Infof("creating indexes of %d tables", len(jobs))
	}
	for _, job := range jobs {
		l.indexQueue.Push(indexLevelJob, job)
	}
	for i := 0; i < l.cfg.IndexThreads; i++ {
		l.indexQueue.Push(indexLevelEnd, indexEnd)
	}
}

func (l *Loader) indexWorker(ctx context.Context) error {
	for {
		job, err := l.indexQueue.Pop(ctx)
		if err != nil {
			return nil
		}
		if job == indexEnd {
			return nil
		}
		if l.control.Stopping() {
			log.Debugf("skipping indexes of %s", job.Table)
			l.control.Record(job.CheckpointName())
			continue
		}
		if err := l.control.WaitIfPaused(ctx); err != nil {
			return nil
		}
		conn, err := l.pool.Acquire(ctx)
		if err != nil {
			return nil
		}
		log.Infof("creating indexes for %s", job.Table)
		res := l.restorer.Statement(conn, job)
		l.pool.Release(conn)
		l.errors.Add(CategoryIndex, res.Errors)
		job.Table.Advance(model.AllDone)
		l.progress.tableDone()
		if err := l.errors.Check(); err != nil {
			return err
		}
	}
}
