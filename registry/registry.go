package registry

import (
	"sort"
	"sync"

	"github.com/ainilili/dumploader/consts"
	"github.com/ainilili/dumploader/model"
)

// Registry is the single authority for database and table identity.
//
// Lock order: hashMu before listMu.
type Registry struct {
	hashMu    sync.Mutex
	databases map[string]*model.Database
	dbOrder   []*model.Database
	tables    map[string]*model.Table

	listMu       sync.Mutex
	list         []*model.Table
	loading      []*model.Table
	sinceRefresh int
	refreshEvery int

	maxThreads     int
	targetDatabase string
}

type Option func(*Registry)

// WithMaxThreadsPerTable sets the loader cap given to new tables.
func WithMaxThreadsPerTable(n int) Option {
	return func(r *Registry) {
		r.maxThreads = n
	}
}

// WithTargetDatabase restores every database into one target database.
func WithTargetDatabase(name string) Option {
	return func(r *Registry) {
		r.targetDatabase = name
	}
}

// WithRefreshEvery sets how many table insertions trigger a rebuild of the
// loading list.
func WithRefreshEvery(n int) Option {
	return func(r *Registry) {
		r.refreshEvery = n
	}
}

func New(opts ...Option) *Registry {
	r := &Registry{
		databases:    map[string]*model.Database{},
		tables:       map[string]*model.Table{},
		refreshEvery: consts.RefreshTableListEvery,
		maxThreads:   consts.DefaultMaxThreadsPerTable,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.refreshEvery < 1 {
		r.refreshEvery = 1
	}
	return r
}

// GetOrCreateDatabase returns the database registered under filenameKey,
// creating it on first reference.
func (r *Registry) GetOrCreateDatabase(filenameKey, name string) *model.Database {
	r.hashMu.Lock()
	defer r.hashMu.Unlock()
	if db, ok := r.databases[filenameKey]; ok {
		return db
	}
	if name == "" {
		name = filenameKey
	}
	db := model.NewDatabase(filenameKey, name)
	if r.targetDatabase != "" {
		db.TargetName = r.targetDatabase
	}
	r.databases[filenameKey] = db
	r.dbOrder = append(r.dbOrder, db)
	return db
}

// GetDatabase returns a registered database.
func (r *Registry) GetDatabase(filenameKey string) (*model.Database, bool) {
	r.hashMu.Lock()
	defer r.hashMu.Unlock()
	db, ok := r.databases[filenameKey]
	return db, ok
}

// GetOrCreateTable returns the table for (db, filenameKey). Exactly one
// concurrent caller observes created == true. A later caller that knows the
// real source name fills it in when the first insert did not.
func (r *Registry) GetOrCreateTable(db *model.Database, sourceName, filenameKey string) (*model.Table, bool) {
	key := db.NameInFilename + "." + filenameKey

	r.hashMu.Lock()
	if t, ok := r.tables[key]; ok {
		r.hashMu.Unlock()
		if sourceName != "" {
			t.Lock()
			if t.SourceName == "" {
				t.SourceName = sourceName
			}
			t.Unlock()
		}
		return t, false
	}
	t := model.NewTable(db, sourceName, filenameKey, r.maxThreads)
	r.tables[key] = t

	r.listMu.Lock()
	r.list = append(r.list, t)
	r.sinceRefresh++
	refresh := r.sinceRefresh >= r.refreshEvery
	if refresh {
		r.refreshLocked()
	}
	r.listMu.Unlock()
	r.hashMu.Unlock()
	return t, true
}

// GetTable returns a registered table.
func (r *Registry) GetTable(dbKey, filenameKey string) (*model.Table, bool) {
	r.hashMu.Lock()
	defer r.hashMu.Unlock()
	t, ok := r.tables[dbKey+"."+filenameKey]
	return t, ok
}

// Tables returns a snapshot of every table in insertion order.
func (r *Registry) Tables() []*model.Table {
	r.listMu.Lock()
	defer r.listMu.Unlock()
	out := make([]*model.Table, len(r.list))
	copy(out, r.list)
	return out
}

// LoadingTables returns the last computed row-count ordered list. It may be
// stale and is only advisory.
func (r *Registry) LoadingTables() []*model.Table {
	r.listMu.Lock()
	defer r.listMu.Unlock()
	out := make([]*model.Table, len(r.loading))
	copy(out, r.loading)
	return out
}

// DispatchOrder returns the loading list followed by every table it misses.
func (r *Registry) DispatchOrder() []*model.Table {
	r.listMu.Lock()
	defer r.listMu.Unlock()
	out := make([]*model.Table, 0, len(r.list))
	seen := make(map[*model.Table]struct{}, len(r.loading))
	for _, t := range r.loading {
		out = append(out, t)
		seen[t] = struct{}{}
	}
	for _, t := range r.list {
		if _, ok := seen[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}

// Databases returns every database in registration order.
func (r *Registry) Databases() []*model.Database {
	r.hashMu.Lock()
	defer r.hashMu.Unlock()
	out := make([]*model.Database, len(r.dbOrder))
	copy(out, r.dbOrder)
	return out
}

// Refresh rebuilds the loading list now.
func (r *Registry) Refresh() {
	r.listMu.Lock()
	defer r.listMu.Unlock()
	r.refreshLocked()
}

func (r *Registry) refreshLocked() {
	type entry struct {
		t    *model.Table
		rows uint64
	}
	entries := make([]entry, 0, len(r.list))
	for _, t := range r.list {
		t.Lock()
		skip := t.IsView || t.IsSequence
		rows := t.Rows
		t.Unlock()
		if !skip {
			entries = append(entries, entry{t: t, rows: rows})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].rows > entries[j].rows
	})
	loading := make([]*model.Table, len(entries))
	for i, e := range entries {
		loading[i] = e.t
	}
	r.loading = loading
	r.sinceRefresh = 0
}
