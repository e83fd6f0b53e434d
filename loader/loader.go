// Package loader schedules the restore of a dump: schema creation, data
// loading, index creation and post objects.
package loader

import (
	"sync"
	"sync/atomic"

	"github.com/ainilili/dumploader/config"
	"github.com/ainilili/dumploader/database"
	"github.com/ainilili/dumploader/filter"
	"github.com/ainilili/dumploader/model"
	"github.com/ainilili/dumploader/queue"
	"github.com/ainilili/dumploader/registry"
	"github.com/ainilili/dumploader/restore"
)

const (
	schemaLevelDatabase = iota
	schemaLevelTable
	schemaLevelEnd
	schemaLevels
)

// Loader is the shared context of one restore run.
type Loader struct {
	cfg      *config.Config
	reg      *registry.Registry
	filter   *filter.Filter
	pool     *database.Pool
	vars     *database.SessionVars
	restorer *restore.Restorer
	checks   database.Checksummer
	control  *Control
	errors   *ErrorCounters
	progress *progress

	// metaMu guards everything learned from metadata files.
	metaMu     sync.Mutex
	quote      byte
	configSeen bool
	held       []string
	resume     map[string]struct{}
	source     map[string]string

	schemaFiles    atomic.Int64
	dataFiles      atomic.Int64
	ingestFinished atomic.Bool

	schemaQueue   *queue.Queue[*model.RestoreJob]
	schemaMu      sync.Mutex
	schemaIdle    *sync.Cond
	schemaPending int
	schemaEnded   atomic.Bool

	disp dispatcher

	indexQueue *queue.Queue[*model.RestoreJob]
	indexMu    sync.Mutex
	afterAll   []*model.RestoreJob

	post postJobs
}

// Deps are the collaborators of a run.
type Deps struct {
	Pool *database.Pool
	Vars *database.SessionVars
	// Checksums may be nil when checksum verification is skipped.
	Checksums database.Checksummer
}

func New(cfg *config.Config, deps Deps) (*Loader, error) {
	f, err := filter.New(cfg.SourceDatabase, cfg.TablesList, cfg.OmitFromFile, cfg.Regex)
	if err != nil {
		return nil, err
	}
	vars := deps.Vars
	if vars == nil {
		vars = database.NewSessionVars()
	}
	l := &Loader{
		cfg: cfg,
		reg: registry.New(
			registry.WithMaxThreadsPerTable(cfg.MaxThreadsPerTable),
			registry.WithTargetDatabase(cfg.TargetDatabase),
		),
		filter:      f,
		pool:        deps.Pool,
		vars:        vars,
		checks:      deps.Checksums,
		control:     NewControl(),
		errors:      NewErrorCounters(cfg.MaxErrors),
		source:      map[string]string{},
		configSeen:  !cfg.Stream,
		schemaQueue: queue.New[*model.RestoreJob](schemaLevels),
		indexQueue:  queue.New[*model.RestoreJob](2),
	}
	l.schemaIdle = sync.NewCond(&l.schemaMu)
	l.disp.init(cfg.Threads)
	l.progress = newProgress(l)
	l.restorer = restore.New(restore.Options{
		Directory:            cfg.Directory,
		Rows:                 cfg.Rows,
		Transactions:         cfg.QueriesPerTransaction > 0,
		MaxConnectionsPerJob: cfg.MaxConnectionsPerJob,
		IgnoreTableExists:    cfg.Resume,
		Ignored:              cfg.Ignored,
	}, deps.Pool, l.wake)
	if cfg.Stream {
		l.control.confirm = func() bool { return true }
	}
	l.control.OnShutdown(l.wake)
	return l, nil
}

// Control exposes pause and shutdown.
func (l *Loader) Control() *Control {
	return l.control
}

func (l *Loader) Errors() *ErrorCounters {
	return l.errors
}

func (l *Loader) Registry() *registry.Registry {
	return l.reg
}

func (l *Loader) quoteCharacter() byte {
	l.metaMu.Lock()
	defer l.metaMu.Unlock()
	if l.quote == 0 {
		return '`'
	}
	return l.quote
}
