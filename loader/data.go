package loader

import (
	"context"

	"github.com/ainilili/dumploader/log"
	"github.com/ainilili/dumploader/model"
)

func (l *Loader) loaderWorker(ctx context.Context, id int) error {
	var last *model.Table
	for {
		job, err := l.nextData(ctx)
		if err != nil {
			return nil
		}
		if job == nil {
			if last != nil {
				l.enqueueIndex(last)
			}
			log.Debugf("loader %d done", id)
			return nil
		}
		last = job.Table
		if err := l.control.WaitIfPaused(ctx); err != nil {
			return nil
		}
		if err := l.loadData(ctx, job); err != nil {
			return err
		}
	}
}

func (l *Loader) loadData(ctx context.Context, job *model.RestoreJob) error {
	t := job.Table
	defer func() {
		t.FinishData()
		l.wake()
	}()
	if l.control.Stopping() {
		l.control.Record(job.CheckpointName())
		return nil
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		l.control.Record(job.CheckpointName())
		return nil
	}
	log.Debugf("loader: %s part %d.%d on connection %d", t, job.Part, job.SubPart, conn.ID)
	res, err := l.restorer.DataFile(conn, job)
	l.pool.Release(conn)
	if err != nil {
		log.Errorf("%s: %v", job.Filename, err)
		l.errors.Add(CategoryData, 1)
	}
	l.errors.Add(CategoryData, res.Errors)
	l.errors.Add(CategoryDataWarnings, res.Warnings)
	l.progress.fileDone(res.Statements)
	return l.errors.Check()
}
