package loader

import (
	"context"
	"sync"

	"github.com/ainilili/dumploader/log"
	"github.com/ainilili/dumploader/model"
	"golang.org/x/sync/errgroup"
)

// postJobs collects objects created after data and indexes, in the order
// they run: constraints, views, then triggers and routines.
type postJobs struct {
	mu          sync.Mutex
	constraints []*model.RestoreJob
	views       []*model.RestoreJob
	triggers    []*model.RestoreJob
}

func (p *postJobs) add(job *model.RestoreJob) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch job.Object {
	case model.ObjectConstraint:
		p.constraints = append(p.constraints, job)
	case model.ObjectView:
		p.views = append(p.views, job)
	default:
		p.triggers = append(p.triggers, job)
	}
}

func (p *postJobs) take() [][]*model.RestoreJob {
	p.mu.Lock()
	defer p.mu.Unlock()
	stages := [][]*model.RestoreJob{p.constraints, p.views, p.triggers}
	p.constraints, p.views, p.triggers = nil, nil, nil
	return stages
}

func (l *Loader) postPhase(ctx context.Context) error {
	stages := l.post.take()
	for i, jobs := range stages {
		if l.control.Stopping() {
			for _, rest := range stages[i:] {
				l.skipPost(rest)
			}
			return nil
		}
		if err := l.runPost(ctx, jobs); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) runPost(ctx context.Context, jobs []*model.RestoreJob) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.PostThreads)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			if l.control.Stopping() {
				l.skipPost([]*model.RestoreJob{job})
				return nil
			}
			if err := l.control.WaitIfPaused(gctx); err != nil {
				return nil
			}
			conn, err := l.pool.Acquire(gctx)
			if err != nil {
				return nil
			}
			defer l.pool.Release(conn)

			var errs int
			if job.Kind == model.RestoreStatement {
				log.Infof("adding %s to %s", job.Object, job.Table)
				errs = l.restorer.Statement(conn, job).Errors
			} else {
				log.Infof("restoring %s from %s", job.Object, job.Filename)
				res, err := l.restorer.SchemaFile(conn, job)
				if err != nil {
					log.Errorf("%s: %v", job.Filename, err)
					res.Errors++
				}
				errs = res.Errors
				l.progress.fileDone(res.Statements)
			}
			l.errors.Add(categoryOf(job.Object), errs)
			return l.errors.Check()
		})
	}
	return g.Wait()
}

// skipPost keeps jobs for the resume file.
func (l *Loader) skipPost(jobs []*model.RestoreJob) {
	for _, job := range jobs {
		l.control.Record(job.CheckpointName())
	}
}
