package loader

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/VividCortex/ewma"
	"github.com/ainilili/dumploader/log"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

type progress struct {
	l          *Loader
	files      atomic.Int64
	statements atomic.Int64
	tables     atomic.Int64
	rate       ewma.MovingAverage
	lastFiles  int64
	lastTick   time.Time
}

func newProgress(l *Loader) *progress {
	return &progress{l: l, rate: ewma.NewMovingAverage()}
}

func (p *progress) fileDone(statements int) {
	p.files.Add(1)
	p.statements.Add(int64(statements))
}

func (p *progress) tableDone() {
	p.tables.Add(1)
}

// run logs progress and rewrites the metrics file until ctx is done.
func (p *progress) run(ctx context.Context, every time.Duration, metricsPath string) {
	if every <= 0 {
		every = 30 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	p.lastTick = time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.report(now)
			if metricsPath != "" {
				if err := p.writeMetrics(metricsPath); err != nil {
					log.Warnf("metrics: %v", err)
				}
			}
		}
	}
}

func (p *progress) report(now time.Time) {
	files := p.files.Load()
	elapsed := now.Sub(p.lastTick).Seconds()
	if elapsed > 0 {
		p.rate.Add(float64(files-p.lastFiles) / elapsed)
	}
	p.lastFiles, p.lastTick = files, now

	total := p.l.schemaFiles.Load() + p.l.dataFiles.Load()
	log.Infof("progress: %s of %s files, %s statements, %s tables done, %.1f files/s",
		humanize.Comma(files), humanize.Comma(total),
		humanize.Comma(p.statements.Load()), humanize.Comma(p.tables.Load()), p.rate.Value())
}

// gauges are the integer values published to the metrics file.
func (p *progress) gauges() [][2]any {
	l := p.l
	idle := 0
	if l.pool != nil {
		idle = l.pool.Idle()
	}
	l.disp.mu.Lock()
	parked := l.disp.parked
	l.disp.mu.Unlock()
	return [][2]any{
		{"schema_queue", l.schemaQueue.Len()},
		{"index_queue", l.indexQueue.Len()},
		{"idle_connections", idle},
		{"parked_loaders", parked},
		{"files_done", p.files.Load()},
		{"tables_done", p.tables.Load()},
		{"errors", l.errors.Total()},
	}
}

// writeMetrics publishes gauges in the node exporter text format.
func (p *progress) writeMetrics(path string) error {
	var buf bytes.Buffer
	for _, g := range p.gauges() {
		fmt.Fprintf(&buf, "# TYPE dumploader_%s gauge\ndumploader_%s %v\n", g[0], g[0], g[1])
	}
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"-"+uuid.NewString())
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
