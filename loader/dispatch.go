package loader

import (
	"context"
	"sync"

	"github.com/ainilili/dumploader/log"
	"github.com/ainilili/dumploader/model"
)

// dispatcher parks loader workers that found nothing to do. A wake hands
// out one token per parked worker; the scan and the park happen under mu so
// no event can slip between them.
type dispatcher struct {
	mu     sync.Mutex
	parked int
	tokens chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (d *dispatcher) init(workers int) {
	if workers < 1 {
		workers = 1
	}
	d.tokens = make(chan struct{}, workers)
	d.done = make(chan struct{})
}

func (d *dispatcher) finish() {
	d.once.Do(func() { close(d.done) })
}

// wake releases the workers parked right now.
func (l *Loader) wake() {
	l.disp.mu.Lock()
	n := l.disp.parked
	l.disp.parked = 0
	for i := 0; i < n; i++ {
		l.disp.tokens <- struct{}{}
	}
	l.disp.mu.Unlock()
}

// nextData blocks until a data job is ready for this worker. It returns nil
// once every table is settled and no more files will arrive.
func (l *Loader) nextData(ctx context.Context) (*model.RestoreJob, error) {
	for {
		l.disp.mu.Lock()
		job, giveUp := l.scan()
		if job != nil || giveUp {
			l.disp.mu.Unlock()
			if giveUp {
				l.disp.finish()
			}
			return job, nil
		}
		l.disp.parked++
		l.disp.mu.Unlock()

		select {
		case <-l.disp.tokens:
		case <-l.disp.done:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// scan visits every table once, dispatching at most one job. Called with
// disp.mu held.
func (l *Loader) scan() (*model.RestoreJob, bool) {
	settled := true
	schemaEnded := l.schemaEnded.Load()
	for _, t := range l.reg.DispatchOrder() {
		if !t.Database.Created() {
			settled = false
			continue
		}
		t.Lock()
		switch {
		case t.State >= model.DataDone:
		case t.IsView || t.IsSequence:
			if len(t.Pending) > 0 {
				l.dropData(t, false)
			}
		case t.State < model.Created:
			if !schemaEnded {
				settled = false
			} else if len(t.Pending) > 0 {
				l.dropData(t, true)
			}
		case len(t.Pending) > 0:
			if t.NoData {
				l.dropData(t, false)
				if t.CurrentThreads == 0 {
					t.State = model.DataDone
					t.Unlock()
					l.enqueueIndex(t)
					continue
				}
				settled = false
				break
			}
			if t.CurrentThreads >= t.MaxThreads {
				settled = false
				break
			}
			job := t.PopDataLocked()
			t.CurrentThreads++
			t.Unlock()
			return job, false
		default:
			if l.ingestFinished.Load() && t.CurrentThreads == 0 && t.RemainingJobs == 0 {
				t.State = model.DataDone
				t.Unlock()
				log.Debugf("table %s data done", t)
				l.enqueueIndex(t)
				continue
			}
			settled = false
		}
		t.Unlock()
	}
	return nil, settled && l.ingestFinished.Load()
}

// dropData discards pending chunks of a table that will never load them.
// Blocked chunks count as data errors unless the run is stopping; either
// way they are kept for the resume file. Called with t locked.
func (l *Loader) dropData(t *model.Table, blocked bool) {
	jobs := t.DiscardDataLocked()
	for _, job := range jobs {
		if blocked {
			l.control.Record(job.CheckpointName())
		}
	}
	if blocked && !l.control.Stopping() {
		log.Errorf("table %s was never created, skipping %d data files", t, len(jobs))
		l.errors.Add(CategoryData, len(jobs))
	}
}
