package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ainilili/dumploader/binlog"
	"github.com/ainilili/dumploader/config"
	"github.com/ainilili/dumploader/database"
	"github.com/ainilili/dumploader/log"
	"github.com/ainilili/dumploader/pprof"
	"github.com/ainilili/dumploader/rver"
	"github.com/ainilili/dumploader/util"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Summary is the outcome of a run, also written as YAML.
type Summary struct {
	RunID       string            `yaml:"run_id"`
	Started     time.Time         `yaml:"started"`
	Duration    string            `yaml:"duration"`
	Files       int64             `yaml:"files"`
	Statements  int64             `yaml:"statements"`
	Tables      int64             `yaml:"tables_done"`
	Errors      map[string]uint64 `yaml:"errors,omitempty"`
	LogWarnings int64             `yaml:"log_warnings"`
	ChecksumOK  bool              `yaml:"checksum_ok"`
	Interrupted bool              `yaml:"interrupted"`
	ResumeFile  string            `yaml:"resume_file,omitempty"`
}

// Run restores the dump delivered by src.
func (l *Loader) Run(ctx context.Context, src Source) (*Summary, error) {
	summary := &Summary{RunID: uuid.NewString(), Started: time.Now(), ChecksumOK: true}
	if l.cfg.Resume {
		files, err := rver.New(l.cfg.Directory).Load()
		if err != nil {
			return summary, fmt.Errorf("%w: %w", ErrFatal, err)
		}
		log.Infof("resuming %d data files", len(files))
		l.resume = files
	}

	bg, stop := context.WithCancel(ctx)
	defer stop()
	go l.control.Watch(bg)
	go l.progress.run(bg, time.Duration(l.cfg.ProgressSecs)*time.Second, l.cfg.PMMPath)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.ingest(gctx, src) })
	for i := 0; i < l.cfg.SchemaThreads; i++ {
		g.Go(func() error { return l.schemaWorker(gctx) })
	}
	var loaders, indexers sync.WaitGroup
	for i := 0; i < l.cfg.Threads; i++ {
		id := i + 1
		loaders.Add(1)
		g.Go(func() error {
			defer loaders.Done()
			return l.loaderWorker(gctx, id)
		})
	}
	for i := 0; i < l.cfg.IndexThreads; i++ {
		indexers.Add(1)
		g.Go(func() error {
			defer indexers.Done()
			return l.indexWorker(gctx)
		})
	}
	g.Go(func() error {
		loaders.Wait()
		if gctx.Err() != nil {
			return nil
		}
		log.Infof("data loading finished")
		l.endIndexPhase()
		indexers.Wait()
		if gctx.Err() != nil {
			return nil
		}
		return l.postPhase(gctx)
	})
	err := g.Wait()

	if err == nil && !l.control.Stopping() {
		summary.ChecksumOK = l.verifyChecksums(ctx)
	}
	if l.control.Stopping() {
		summary.Interrupted = true
		cp := rver.New(l.cfg.Directory)
		if werr := cp.Make(l.control.Pending()); werr != nil {
			err = errors.Join(err, werr)
		} else {
			summary.ResumeFile = cp.Path()
			log.Warnf("resume file written to %s", cp.Path())
		}
	}

	l.errors.Report()
	summary.Duration = time.Since(summary.Started).Round(time.Millisecond).String()
	summary.Files = l.progress.files.Load()
	summary.Statements = l.progress.statements.Load()
	summary.Tables = l.progress.tables.Load()
	summary.Errors = l.errors.Snapshot()
	summary.LogWarnings, _ = log.Counts()
	if err == nil && l.errors.Total() > 0 {
		err = fmt.Errorf("%w: %d errors", ErrFailed, l.errors.Total())
	}
	return summary, err
}

// Source returns the replication coordinates found in metadata.
func (l *Loader) Source() map[string]string {
	l.metaMu.Lock()
	defer l.metaMu.Unlock()
	out := make(map[string]string, len(l.source))
	for k, v := range l.source {
		out[k] = v
	}
	return out
}

// Run connects to the server described by cfg and restores the dump.
func Run(ctx context.Context, cfg *config.Config) error {
	if cfg.PprofAddr != "" {
		go func() {
			if err := pprof.StartPprofServer(cfg.PprofAddr); err != nil {
				log.Warnf("pprof: %v", err)
			}
		}()
	}
	if cfg.Stream && cfg.Directory == "" {
		dir, err := os.MkdirTemp("", "dumploader-")
		if err != nil {
			return err
		}
		cfg.Directory = dir
	}

	db, err := database.New(database.Options{
		Host:     cfg.Connection.Host,
		Port:     cfg.Connection.Port,
		Socket:   cfg.Connection.Socket,
		User:     cfg.Connection.User,
		Password: cfg.Connection.Password,
		MaxConns: cfg.PoolSize(),
	})
	if err != nil {
		return err
	}
	defer db.Close()
	if v, err := db.Version(ctx); err == nil {
		log.Infof("connected to MySQL %s", v)
	}

	vars := database.NewSessionVars(database.BaseSessionStatements(cfg.SetNames, cfg.EnableBinlog)...)
	pool, err := database.NewPool(ctx, cfg.PoolSize(), db.Dial, vars, cfg.QueriesPerTransaction)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Infof("opened %d connections", pool.Size())

	if cfg.TargetDatabase != "" && !cfg.NoSchema {
		if err := execOne(ctx, pool, "CREATE DATABASE IF NOT EXISTS "+util.Quote(cfg.TargetDatabase, '`')); err != nil {
			return err
		}
	}

	var checks database.Checksummer
	if cfg.Checksum != config.ChecksumSkip {
		checks = db
	}
	l, err := New(cfg, Deps{Pool: pool, Vars: vars, Checksums: checks})
	if err != nil {
		return err
	}
	src := DirectorySource(cfg.Directory)
	if cfg.Stream {
		src = StreamSource(os.Stdin, cfg.Directory)
	}

	summary, err := l.Run(ctx, src)
	if err == nil && cfg.SourceData && !summary.Interrupted {
		err = setupReplication(ctx, pool, l.Source())
	}
	if cfg.SummaryFile != "" {
		if werr := writeSummary(cfg.SummaryFile, summary); werr != nil {
			log.Warnf("summary: %v", werr)
		}
	}
	log.Infof("restore finished in %s, %d files", summary.Duration, summary.Files)
	return err
}

func execOne(ctx context.Context, pool *database.Pool, sql string) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer pool.Release(conn)
	return conn.Exec(sql)
}

func setupReplication(ctx context.Context, pool *database.Pool, source map[string]string) error {
	src, err := binlog.ParseSource(source)
	if err != nil {
		if errors.Is(err, binlog.ErrNoSource) {
			log.Warnf("source data requested but the dump has no replication coordinates")
			return nil
		}
		return err
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer pool.Release(conn)
	for _, stmt := range src.Statements() {
		log.Infof("replication: %s", binlog.Redact(stmt))
		if err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("replication setup: %w", err)
		}
	}
	return nil
}

func writeSummary(path string, s *Summary) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
