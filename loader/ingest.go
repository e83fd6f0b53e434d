package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ainilili/dumploader/config"
	"github.com/ainilili/dumploader/consts"
	"github.com/ainilili/dumploader/database"
	"github.com/ainilili/dumploader/file"
	"github.com/ainilili/dumploader/log"
	"github.com/ainilili/dumploader/model"
	"github.com/ainilili/dumploader/parser"
	"github.com/ainilili/dumploader/util"
)

// Source feeds dump filenames to emit in arrival order.
type Source func(ctx context.Context, emit func(name string) error) error

// DirectorySource lists a dump directory, metadata files first.
func DirectorySource(dir string) Source {
	return func(ctx context.Context, emit func(string) error) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() {
				names = append(names, e.Name())
			}
		}
		sort.SliceStable(names, func(i, j int) bool {
			mi := parser.Classify(names[i]) == parser.KindMetadataGlobal
			mj := parser.Classify(names[j]) == parser.KindMetadataGlobal
			if mi != mj {
				return mi
			}
			return names[i] < names[j]
		})
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := emit(name); err != nil {
				return err
			}
		}
		return nil
	}
}

// ListSource emits a fixed list of names.
func ListSource(names ...string) Source {
	return func(ctx context.Context, emit func(string) error) error {
		for _, name := range names {
			if err := emit(name); err != nil {
				return err
			}
		}
		return nil
	}
}

func (l *Loader) ingest(ctx context.Context, src Source) error {
	if err := src(ctx, func(name string) error { return l.process(ctx, name) }); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrFatal, err)
	}
	return l.process(ctx, consts.EndOfFiles)
}

func (l *Loader) path(name string) string {
	if filepath.IsAbs(name) || l.cfg.Directory == "" {
		return name
	}
	return filepath.Join(l.cfg.Directory, name)
}

// process classifies one filename. Until the first metadata config section
// is known, everything but metadata is held back.
func (l *Loader) process(ctx context.Context, name string) error {
	kind := parser.Classify(name)
	if kind == parser.KindEnd {
		l.metaMu.Lock()
		l.configSeen = true
		held := l.held
		l.held = nil
		l.metaMu.Unlock()
		for _, h := range held {
			if err := l.classify(ctx, h, parser.Classify(h)); err != nil {
				return err
			}
		}
		l.ingestFinished.Store(true)
		l.schemaQueue.Push(schemaLevelEnd, schemaEnd)
		log.Infof("all files classified: %d schema, %d data", l.schemaFiles.Load(), l.dataFiles.Load())
		l.wake()
		return nil
	}
	if kind != parser.KindMetadataGlobal {
		l.metaMu.Lock()
		if !l.configSeen {
			l.held = append(l.held, name)
			l.metaMu.Unlock()
			return nil
		}
		l.metaMu.Unlock()
	}
	return l.classify(ctx, name, kind)
}

func (l *Loader) classify(ctx context.Context, name string, kind parser.FileKind) error {
	if kind.IsSchema() {
		l.schemaFiles.Add(1)
	}
	switch kind {
	case parser.KindMetadataGlobal:
		return l.ingestMetadata(ctx, name)
	case parser.KindTablespace:
		if !l.cfg.NoSchema {
			l.pushSchema(schemaLevelDatabase, model.NewSchemaFileJob(nil, nil, model.ObjectTablespace, name))
		}
	case parser.KindSchemaCreate:
		l.ingestCreateDatabase(name)
	case parser.KindSchemaTable:
		return l.ingestTable(name)
	case parser.KindSequence, parser.KindSchemaView, parser.KindSchemaTrigger, parser.KindSchemaPost:
		return l.ingestObject(name, kind)
	case parser.KindData:
		l.ingestData(name)
	case parser.KindMetadataTable, parser.KindChecksum:
		return l.ingestTableFacts(name, kind)
	case parser.KindLoadData:
		log.Debugf("%s is loaded through its data file", name)
	case parser.KindIgnored:
		log.Debugf("ignoring %s", name)
	}
	return nil
}

// database returns the handle for a database named in filenames. With a
// target database or without schema restore it counts as created already.
func (l *Loader) database(key string) *model.Database {
	db := l.reg.GetOrCreateDatabase(key, key)
	if (l.cfg.TargetDatabase != "" || l.cfg.NoSchema) && !db.Created() {
		l.releaseDatabase(db)
	}
	return db
}

func (l *Loader) ingestMetadata(ctx context.Context, name string) error {
	data, err := file.ReadAll(l.path(name))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFatal, err)
	}
	md, err := parser.ParseMetadata(data, l.quoteCharacter())
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFatal, name, err)
	}

	l.metaMu.Lock()
	if md.HasConfig() {
		l.quote = md.QuoteCharacter
	}
	for k, v := range md.Source {
		l.source[k] = v
	}
	var held []string
	if !l.configSeen && md.HasConfig() {
		l.configSeen = true
		held = l.held
		l.held = nil
	}
	l.metaMu.Unlock()

	l.vars.Append(database.SetStatements(md.SessionVars)...)
	if len(md.GlobalVars) > 0 {
		l.applyGlobalVars(ctx, database.GlobalStatements(md.GlobalVars))
	}

	for _, dm := range md.Databases {
		if l.filter.SkipDatabase(dm.Name) {
			continue
		}
		db := l.database(dm.Name)
		db.Lock()
		db.SchemaChecksum = dm.SchemaChecksum
		db.PostChecksum = dm.PostChecksum
		db.TriggersChecksum = dm.TriggersChecksum
		db.EventsChecksum = dm.EventsChecksum
		db.Unlock()
	}
	for _, tm := range md.Tables {
		if l.filter.SkipTable(tm.Database, tm.Table) {
			continue
		}
		db := l.database(tm.Database)
		t, _ := l.reg.GetOrCreateTable(db, tm.RealTableName, tm.Table)
		t.Lock()
		t.Rows = tm.Rows
		t.IsView = t.IsView || tm.IsView
		t.IsSequence = t.IsSequence || tm.IsSequence
		t.SchemaChecksum = tm.SchemaChecksum
		t.DataChecksum = tm.DataChecksum
		t.IndexesChecksum = tm.IndexesChecksum
		t.TriggersChecksum = tm.TriggersChecksum
		t.Unlock()
	}
	l.reg.Refresh()

	for _, h := range held {
		if err := l.classify(ctx, h, parser.Classify(h)); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) applyGlobalVars(ctx context.Context, stmts []string) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return
	}
	defer l.pool.Release(conn)
	for _, stmt := range stmts {
		if err := conn.Exec(stmt); err != nil {
			log.Warnf("%s: %v", stmt, err)
		}
	}
}

func (l *Loader) ingestCreateDatabase(name string) {
	key, _ := parser.ParseObjectFilename(name, parser.KindSchemaCreate)
	if l.filter.SkipDatabase(key) {
		return
	}
	db := l.database(key)
	if db.Created() {
		return
	}
	l.pushSchema(schemaLevelDatabase, model.NewSchemaFileJob(db, nil, model.ObjectDatabase, name))
}

// skipTable applies the filter and clears checksums of excluded tables
// already known from metadata.
func (l *Loader) skipTable(dbKey, table string) bool {
	if !l.filter.SkipTable(dbKey, table) {
		return false
	}
	if t, ok := l.reg.GetTable(dbKey, table); ok {
		t.ClearChecksums()
	}
	return true
}

func (l *Loader) ingestTable(name string) error {
	dbKey, stem := parser.ParseObjectFilename(name, parser.KindSchemaTable)
	if l.skipTable(dbKey, stem) {
		return nil
	}
	f, err := file.Open(l.path(name))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFatal, err)
	}
	stmts, err := file.ReadStatements(f)
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFatal, name, err)
	}

	q := l.quoteCharacter()
	var create, tableName string
	for _, st := range stmts {
		n, err := parser.ExtractTableName(st.Text, q)
		if errors.Is(err, parser.ErrQuoteCharacter) {
			return fmt.Errorf("%w: %s: %w", ErrFatal, name, err)
		}
		if err == nil {
			create, tableName = st.Text, n
			break
		}
	}
	if create == "" {
		return fmt.Errorf("%w: %s: %w", ErrFatal, name, parser.ErrTableNameNotFound)
	}

	db := l.database(dbKey)
	t, _ := l.reg.GetOrCreateTable(db, tableName, stem)
	if l.cfg.AddIfNotExists {
		create = parser.AddIfNotExists(create, q)
	}
	split, err := parser.SplitCreateTable(create, l.cfg.Optimize != config.OptimizeKeysSkip || l.cfg.SkipIndexes, true)
	if err != nil {
		log.Warnf("%s: cannot split indexes, creating the table as dumped: %v", name, err)
		split = parser.SplitTable{Create: create}
	}

	var constraints *model.RestoreJob
	t.Lock()
	t.CreateStatement = split.Create
	t.SchemaFile = util.BaseName(name)
	t.SkipIndexes = l.cfg.SkipIndexes
	t.SkipConstraints = l.cfg.SkipConstraints
	t.SkipTriggers = l.cfg.SkipTriggers
	t.NoData = l.cfg.NoData
	if !t.SkipIndexes {
		t.Indexes = split.Indexes
	}
	if !t.SkipConstraints {
		t.Constraints = split.Constraints
		if split.Constraints != "" {
			constraints = model.NewStatementJob(t, model.ObjectConstraint, split.Constraints)
		}
	}
	t.Unlock()

	if constraints != nil {
		l.addPost(constraints)
	}
	if l.cfg.NoSchema {
		t.Advance(model.Created)
		l.wake()
		return nil
	}
	t.Advance(model.NotCreated)
	l.scheduleTableJob(model.NewCreateTableJob(t, name, split.Create))
	return nil
}

func (l *Loader) ingestObject(name string, kind parser.FileKind) error {
	dbKey, object := parser.ParseObjectFilename(name, kind)
	if object == "" && (kind == parser.KindSequence || kind == parser.KindSchemaView) {
		return fmt.Errorf("%w: %s: %w", ErrFatal, name, ErrNoObjectName)
	}
	if l.filter.SkipDatabase(dbKey) || (object != "" && l.skipTable(dbKey, object)) {
		return nil
	}
	if l.cfg.NoSchema {
		return nil
	}
	db := l.database(dbKey)
	var t *model.Table
	if object != "" {
		t, _ = l.reg.GetOrCreateTable(db, "", object)
	}

	switch kind {
	case parser.KindSequence:
		t.Lock()
		t.IsSequence = true
		t.Unlock()
		t.Advance(model.NotCreated)
		l.scheduleTableJob(model.NewSchemaFileJob(db, t, model.ObjectSequence, name))
	case parser.KindSchemaView:
		t.Lock()
		t.IsView = true
		t.Unlock()
		l.addPost(model.NewSchemaFileJob(db, t, model.ObjectView, name))
	case parser.KindSchemaTrigger:
		if !l.cfg.SkipTriggers {
			l.addPost(model.NewSchemaFileJob(db, t, model.ObjectTrigger, name))
		}
	case parser.KindSchemaPost:
		if !l.cfg.SkipPost {
			l.addPost(model.NewSchemaFileJob(db, t, model.ObjectPost, name))
		}
	}
	return nil
}

// addPost queues a post-data job. On resume only jobs listed in the
// checkpoint run again.
func (l *Loader) addPost(job *model.RestoreJob) {
	if !l.listedOnResume(job.CheckpointName()) {
		log.Debugf("%s finished before the checkpoint", job)
		return
	}
	l.post.add(job)
}

// listedOnResume reports whether name is still pending. Without resume
// everything is.
func (l *Loader) listedOnResume(name string) bool {
	if l.resume == nil {
		return true
	}
	_, ok := l.resume[util.BaseName(name)]
	return ok
}

func (l *Loader) ingestData(name string) {
	if l.cfg.NoData {
		return
	}
	d, ok := parser.ParseDataFilename(name)
	if !ok {
		log.Warnf("cannot parse data file name %s", name)
		return
	}
	if l.filter.SkipDatabase(d.Database) || l.skipTable(d.Database, d.Table) {
		return
	}
	if !l.listedOnResume(name) {
		return
	}
	l.dataFiles.Add(1)
	db := l.database(d.Database)
	t, _ := l.reg.GetOrCreateTable(db, "", d.Table)
	if l.resume != nil {
		t.Lock()
		t.Resumed = true
		t.Unlock()
	}
	if l.cfg.NoSchema {
		t.Advance(model.Created)
	}
	t.AddData(model.NewDataJob(t, name, d.Part, d.SubPart))
	l.wake()
}

// ingestTableFacts reads per-table row counts and data checksums written
// as separate files.
func (l *Loader) ingestTableFacts(name string, kind parser.FileKind) error {
	dbKey, table := parser.ParseObjectFilename(name, kind)
	if table == "" || l.skipTable(dbKey, table) {
		return nil
	}
	data, err := file.ReadAll(l.path(name))
	if err != nil {
		log.Warnf("%s: %v", name, err)
		return nil
	}
	value := strings.TrimSpace(string(data))
	t, _ := l.reg.GetOrCreateTable(l.database(dbKey), "", table)
	t.Lock()
	defer t.Unlock()
	if kind == parser.KindChecksum {
		t.DataChecksum = value
		return nil
	}
	if rows, err := strconv.ParseUint(value, 10, 64); err == nil {
		t.Rows = rows
	}
	return nil
}
