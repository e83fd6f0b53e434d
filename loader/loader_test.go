package loader

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ainilili/dumploader/config"
	"github.com/ainilili/dumploader/database"
	"github.com/ainilili/dumploader/mock"
	"github.com/ainilili/dumploader/model"
	"github.com/ainilili/dumploader/rver"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var insertTable = regexp.MustCompile("^INSERT INTO `([^`]+)`")

// fakeServer records statements and tracks how many INSERTs run at once,
// per table and overall.
type fakeServer struct {
	mu        sync.Mutex
	log       []string
	fail      map[string]error
	delay     time.Duration
	inflight  map[string]int
	maxTable  map[string]int
	active    int
	maxActive int
	// onExec runs before each statement is recorded.
	onExec func(query string)
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		fail:     map[string]error{},
		inflight: map[string]int{},
		maxTable: map[string]int{},
	}
}

type fakeSession struct {
	f *fakeServer
}

func (s *fakeSession) ExecContext(_ context.Context, query string, _ ...any) (sql.Result, error) {
	f := s.f
	if f.onExec != nil {
		f.onExec(query)
	}
	f.mu.Lock()
	f.log = append(f.log, query)
	for prefix, err := range f.fail {
		if strings.HasPrefix(query, prefix) {
			f.mu.Unlock()
			return nil, err
		}
	}
	m := insertTable.FindStringSubmatch(query)
	if m == nil {
		f.mu.Unlock()
		return driver.RowsAffected(0), nil
	}
	table := m[1]
	f.inflight[table]++
	f.active++
	if f.inflight[table] > f.maxTable[table] {
		f.maxTable[table] = f.inflight[table]
	}
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.mu.Unlock()

	time.Sleep(f.delay)

	f.mu.Lock()
	f.inflight[table]--
	f.active--
	f.mu.Unlock()
	return driver.RowsAffected(1), nil
}

func (s *fakeSession) PingContext(context.Context) error { return nil }
func (s *fakeSession) Close() error                      { return nil }

func (f *fakeServer) dial(context.Context) (database.Session, error) {
	return &fakeSession{f: f}, nil
}

func (f *fakeServer) statements() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.log...)
}

// index returns the position of the first statement starting with prefix.
func (f *fakeServer) index(prefix string) int {
	for i, s := range f.statements() {
		if strings.HasPrefix(s, prefix) {
			return i
		}
	}
	return -1
}

// lastIndex returns the position of the last statement starting with prefix.
func (f *fakeServer) lastIndex(prefix string) int {
	last := -1
	for i, s := range f.statements() {
		if strings.HasPrefix(s, prefix) {
			last = i
		}
	}
	return last
}

func (f *fakeServer) count(prefix string) int {
	n := 0
	for _, s := range f.statements() {
		if strings.HasPrefix(s, prefix) {
			n++
		}
	}
	return n
}

type fakeChecksums struct {
	values map[string]string
}

func (c *fakeChecksums) Checksum(_ context.Context, kind database.ChecksumKind, db, table string) (string, error) {
	return c.values[kind.String()+":"+db+"."+table], nil
}

func writeDump(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		Directory:            dir,
		Threads:              2,
		MaxThreadsPerTable:   2,
		SchemaThreads:        2,
		IndexThreads:         2,
		PostThreads:          1,
		MaxConnectionsPerJob: 1,
		Purge:                config.PurgeFail,
		Optimize:             config.OptimizeKeysPerTable,
		Checksum:             config.ChecksumSkip,
		RetryCount:           3,
		ProgressSecs:         3600,
	}
}

func newTestLoader(t *testing.T, cfg *config.Config, f *fakeServer, checks database.Checksummer) *Loader {
	t.Helper()
	pool, err := database.NewPool(context.Background(), cfg.PoolSize(), f.dial, nil, cfg.QueriesPerTransaction)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	l, err := New(cfg, Deps{Pool: pool, Checksums: checks})
	require.NoError(t, err)
	l.control.confirm = func() bool { return false }
	return l
}

func run(t *testing.T, l *Loader) (*Summary, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return l.Run(ctx, DirectorySource(l.cfg.Directory))
}

const metadata = "[config]\nquote_character = BACKTICK\n"

func createTable(name string) string {
	return "CREATE TABLE `" + name + "` (\n  `id` int NOT NULL,\n  `v` int DEFAULT NULL,\n  PRIMARY KEY (`id`),\n  KEY `k_v` (`v`)\n) ENGINE=InnoDB;\n"
}

func insert(table string, id int) string {
	return "INSERT INTO `" + table + "` VALUES (" + string(rune('0'+id)) + ",1);\n"
}

func threeTableDump(t *testing.T) string {
	files := map[string]string{
		"metadata":              metadata,
		"db1-schema-create.sql": "CREATE DATABASE `db1`;\n",
	}
	for _, table := range []string{"t1", "t2", "t3"} {
		files["db1."+table+"-schema.sql"] = createTable(table)
		files["db1."+table+".00000.sql"] = insert(table, 1)
		files["db1."+table+".00001.sql"] = insert(table, 2)
	}
	return writeDump(t, files)
}

func TestLoader_SingleThreadRestoresEveryTable(t *testing.T) {
	f := newFakeServer()
	cfg := testConfig(threeTableDump(t))
	cfg.Threads = 1
	cfg.MaxThreadsPerTable = 1
	l := newTestLoader(t, cfg, f, nil)

	summary, err := run(t, l)
	require.NoError(t, err)
	assert.False(t, summary.Interrupted)
	assert.EqualValues(t, 3, summary.Tables)

	for _, tbl := range l.Registry().Tables() {
		assert.Equal(t, model.AllDone, tbl.GetState(), tbl.String())
	}
	createDB := f.index("CREATE DATABASE `db1`")
	require.GreaterOrEqual(t, createDB, 0)
	for _, table := range []string{"t1", "t2", "t3"} {
		create := f.index("CREATE TABLE `" + table + "`")
		first := f.index(strings.TrimSpace(insert(table, 1)))
		second := f.index(strings.TrimSpace(insert(table, 2)))
		alter := f.index("ALTER TABLE `" + table + "`")
		assert.Less(t, createDB, create, table)
		assert.Less(t, create, first, table)
		assert.Less(t, first, second, table)
		assert.Less(t, second, alter, table)
	}
	assert.Equal(t, 1, f.maxActive)
}

func TestLoader_RespectsThreadLimits(t *testing.T) {
	files := map[string]string{
		"metadata":              metadata,
		"db1-schema-create.sql": "CREATE DATABASE `db1`;\n",
		"db1.big-schema.sql":    createTable("big"),
		"db1.small-schema.sql":  createTable("small"),
		"db1.small.00000.sql":   insert("small", 1),
	}
	for i := 0; i < 8; i++ {
		files["db1.big.0000"+string(rune('0'+i))+".sql"] = insert("big", i)
	}
	f := newFakeServer()
	f.delay = 5 * time.Millisecond
	cfg := testConfig(writeDump(t, files))
	cfg.Threads = 3
	cfg.MaxThreadsPerTable = 2
	l := newTestLoader(t, cfg, f, nil)

	_, err := run(t, l)
	require.NoError(t, err)
	assert.LessOrEqual(t, f.maxTable["big"], 2)
	assert.LessOrEqual(t, f.maxActive, 3)
	assert.Equal(t, 8, f.count("INSERT INTO `big`"))
	assert.Equal(t, 1, f.count("INSERT INTO `small`"))
}

func TestLoader_DeferredDatabaseRelease(t *testing.T) {
	dir := writeDump(t, map[string]string{
		"metadata":              metadata,
		"db1.t1-schema.sql":     createTable("t1"),
		"db1.t1.00000.sql":      insert("t1", 1),
		"db1-schema-create.sql": "CREATE DATABASE `db1`;\n",
		"db2.t2-schema.sql":     createTable("t2"),
		"db2.t2.00000.sql":      insert("t2", 1),
	})
	f := newFakeServer()
	l := newTestLoader(t, testConfig(dir), f, nil)

	// Table schema arrives before its database.
	src := ListSource("metadata", "db1.t1-schema.sql", "db1.t1.00000.sql", "db1-schema-create.sql",
		"db2.t2-schema.sql", "db2.t2.00000.sql")
	_, err := l.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Less(t, f.index("CREATE DATABASE `db1`"), f.index("CREATE TABLE `t1`"))
	// db2 has no create file; its table runs once schema creation ends.
	assert.GreaterOrEqual(t, f.index("CREATE TABLE `t2`"), 0)
	assert.Less(t, f.index("CREATE TABLE `t2`"), f.index("INSERT INTO `t2`"))
	for _, tbl := range l.Registry().Tables() {
		assert.Equal(t, model.AllDone, tbl.GetState(), tbl.String())
	}
}

func TestLoader_TableNeverCreatedDropsData(t *testing.T) {
	f := newFakeServer()
	f.fail["CREATE TABLE `t2`"] = &mysql.MySQLError{Number: 1064, Message: "syntax"}
	cfg := testConfig(threeTableDump(t))
	cfg.Purge = config.PurgeNone
	l := newTestLoader(t, cfg, f, nil)

	_, err := run(t, l)
	require.ErrorIs(t, err, ErrFailed)
	assert.EqualValues(t, 1, l.Errors().Get(CategorySchema))
	assert.EqualValues(t, 2, l.Errors().Get(CategoryData))
	assert.Equal(t, 0, f.count("INSERT INTO `t2`"))
	assert.Equal(t, 2, f.count("INSERT INTO `t1`"))
	assert.Equal(t, 2, f.count("INSERT INTO `t3`"))
}

func TestLoader_CreateFailureIsFatalUnderPurgeFail(t *testing.T) {
	f := newFakeServer()
	f.fail["CREATE TABLE `t1`"] = &mysql.MySQLError{Number: 1050, Message: "exists"}
	l := newTestLoader(t, testConfig(threeTableDump(t)), f, nil)

	_, err := run(t, l)
	require.ErrorIs(t, err, ErrFatal)
}

func TestLoader_ShutdownWritesCheckpointAndResumes(t *testing.T) {
	dir := threeTableDump(t)
	f := newFakeServer()
	l := newTestLoader(t, testConfig(dir), f, nil)
	l.Control().Shutdown()

	summary, err := run(t, l)
	require.NoError(t, err)
	assert.True(t, summary.Interrupted)
	assert.Equal(t, filepath.Join(dir, "resume"), summary.ResumeFile)
	assert.Equal(t, 0, f.count("INSERT"))

	files, err := rver.New(dir).Load()
	require.NoError(t, err)
	for _, table := range []string{"t1", "t2", "t3"} {
		assert.Contains(t, files, "db1."+table+".00000.sql")
		assert.Contains(t, files, "db1."+table+".00001.sql")
	}
	assert.EqualValues(t, 0, l.Errors().Total())

	require.NoError(t, rver.New(dir).Make([]string{"db1.t2.00001.sql"}))
	f = newFakeServer()
	cfg := testConfig(dir)
	cfg.Resume = true
	cfg.Purge = config.PurgeNone
	l = newTestLoader(t, cfg, f, nil)
	_, err = run(t, l)
	require.NoError(t, err)
	assert.Equal(t, []string{strings.TrimSpace(insert("t2", 2))}, filterPrefix(f.statements(), "INSERT"))
}

func filterPrefix(stmts []string, prefix string) []string {
	var out []string
	for _, s := range stmts {
		if strings.HasPrefix(s, prefix) {
			out = append(out, s)
		}
	}
	return out
}

func TestLoader_ResumeWithoutCheckpointIsFatal(t *testing.T) {
	cfg := testConfig(threeTableDump(t))
	cfg.Resume = true
	l := newTestLoader(t, cfg, newFakeServer(), nil)
	_, err := run(t, l)
	require.ErrorIs(t, err, ErrFatal)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func checksumDump(t *testing.T) string {
	return writeDump(t, map[string]string{
		"metadata":              metadata + "\n[`db1`.`t1`]\nrows = 1\ndata_checksum = 123\n",
		"db1-schema-create.sql": "CREATE DATABASE `db1`;\n",
		"db1.t1-schema.sql":     createTable("t1"),
		"db1.t1.00000.sql":      insert("t1", 1),
	})
}

func TestLoader_ChecksumModes(t *testing.T) {
	checks := &fakeChecksums{values: map[string]string{"data:db1.t1": "999"}}

	cfg := testConfig(checksumDump(t))
	cfg.Checksum = config.ChecksumWarn
	l := newTestLoader(t, cfg, newFakeServer(), checks)
	summary, err := run(t, l)
	require.NoError(t, err)
	assert.False(t, summary.ChecksumOK)

	cfg = testConfig(checksumDump(t))
	cfg.Checksum = config.ChecksumFail
	l = newTestLoader(t, cfg, newFakeServer(), checks)
	summary, err = run(t, l)
	require.ErrorIs(t, err, ErrFailed)
	assert.False(t, summary.ChecksumOK)
	assert.EqualValues(t, 1, l.Errors().Get(CategoryChecksum))

	checks.values["data:db1.t1"] = "123"
	cfg = testConfig(checksumDump(t))
	cfg.Checksum = config.ChecksumFail
	l = newTestLoader(t, cfg, newFakeServer(), checks)
	summary, err = run(t, l)
	require.NoError(t, err)
	assert.True(t, summary.ChecksumOK)
}

func TestLoader_PostObjectsRunAfterData(t *testing.T) {
	dir := writeDump(t, map[string]string{
		"metadata":                   metadata,
		"db1-schema-create.sql":      "CREATE DATABASE `db1`;\n",
		"db1.t1-schema.sql":          createTable("t1"),
		"db1.t1.00000.sql":           insert("t1", 1),
		"db1.v1-schema-view.sql":     "CREATE VIEW `v1` AS SELECT 1;\n",
		"db1.t1-schema-triggers.sql": "DELIMITER ;;\nCREATE TRIGGER `tr` BEFORE INSERT ON `t1` FOR EACH ROW BEGIN\nSET NEW.v = 1;\nEND ;;\nDELIMITER ;\n",
		"db1-schema-post.sql":        "CREATE PROCEDURE `p`() SELECT 1;\n",
	})
	f := newFakeServer()
	l := newTestLoader(t, testConfig(dir), f, nil)
	_, err := run(t, l)
	require.NoError(t, err)

	data := f.index("INSERT INTO `t1`")
	view := f.index("CREATE VIEW `v1`")
	trigger := f.index("CREATE TRIGGER `tr`")
	proc := f.index("CREATE PROCEDURE `p`")
	assert.Less(t, data, view)
	assert.Less(t, view, trigger)
	assert.Less(t, view, proc)
}

func TestLoader_SkipTriggersAndNoData(t *testing.T) {
	dir := writeDump(t, map[string]string{
		"metadata":                   metadata,
		"db1-schema-create.sql":      "CREATE DATABASE `db1`;\n",
		"db1.t1-schema.sql":          createTable("t1"),
		"db1.t1.00000.sql":           insert("t1", 1),
		"db1.t1-schema-triggers.sql": "CREATE TRIGGER `tr` BEFORE INSERT ON `t1` FOR EACH ROW SET NEW.v = 1;\n",
	})
	f := newFakeServer()
	cfg := testConfig(dir)
	cfg.SkipTriggers = true
	cfg.NoData = true
	l := newTestLoader(t, cfg, f, nil)
	_, err := run(t, l)
	require.NoError(t, err)
	assert.Equal(t, 0, f.count("INSERT"))
	assert.Equal(t, 0, f.count("CREATE TRIGGER"))
	assert.Equal(t, 1, f.count("CREATE TABLE `t1`"))
}

func TestErrorCounters(t *testing.T) {
	e := NewErrorCounters(2)
	e.Add(CategoryRetries, 10)
	e.Add(CategoryDataWarnings, 10)
	assert.EqualValues(t, 0, e.Total())
	e.Add(CategoryData, 2)
	assert.NoError(t, e.Check())
	e.Add(CategoryIndex, 1)
	assert.ErrorIs(t, e.Check(), ErrFatal)
	assert.Equal(t, map[string]uint64{"data": 2, "index": 1, "retries": 10, "data_warnings": 10}, e.Snapshot())

	assert.NoError(t, NewErrorCounters(0).Check())
}

func TestLoader_GeneratedDump(t *testing.T) {
	dir := t.TempDir()
	d, err := mock.Generate(dir, mock.Options{Databases: 2, Tables: 4, Chunks: 3, Rows: 5, Seed: 7})
	require.NoError(t, err)

	f := newFakeServer()
	cfg := testConfig(dir)
	cfg.Threads = 4
	cfg.Rows = 2
	cfg.QueriesPerTransaction = 2
	l := newTestLoader(t, cfg, f, nil)
	summary, err := run(t, l)
	require.NoError(t, err)

	assert.EqualValues(t, len(d.Tables), summary.Tables)
	for _, tbl := range l.Registry().Tables() {
		assert.Equal(t, model.AllDone, tbl.GetState(), tbl.String())
		assert.EqualValues(t, d.Tables[tbl.Database.NameInFilename+"."+tbl.Name()], tbl.Rows)
	}
	// 5 rows split by 2 gives three INSERTs per chunk.
	assert.Equal(t, 2*4*3*3, f.count("INSERT INTO"))
	assert.Equal(t, 2*4, f.count("ALTER TABLE"))
}

func TestLoader_ResumeSkipsFinishedIndexes(t *testing.T) {
	dir := threeTableDump(t)
	l := newTestLoader(t, testConfig(dir), newFakeServer(), nil)
	_, err := run(t, l)
	require.NoError(t, err)

	require.NoError(t, rver.New(dir).Make([]string{"db1.t2.00001.sql"}))
	f := newFakeServer()
	cfg := testConfig(dir)
	cfg.Resume = true
	cfg.Purge = config.PurgeNone
	l = newTestLoader(t, cfg, f, nil)
	summary, err := run(t, l)
	require.NoError(t, err)

	assert.Equal(t, 0, f.count("ALTER TABLE `t1`"))
	assert.Equal(t, 1, f.count("ALTER TABLE `t2`"))
	assert.Equal(t, 0, f.count("ALTER TABLE `t3`"))
	assert.EqualValues(t, 3, summary.Tables)
	for _, tbl := range l.Registry().Tables() {
		assert.Equal(t, model.AllDone, tbl.GetState(), tbl.String())
	}
}

func TestLoader_ShutdownKeepsDeferredObjects(t *testing.T) {
	schema := "CREATE TABLE `t1` (\n  `id` int NOT NULL,\n  `v` int DEFAULT NULL,\n  PRIMARY KEY (`id`),\n  KEY `k_v` (`v`),\n" +
		"  CONSTRAINT `fk_v` FOREIGN KEY (`v`) REFERENCES `t0` (`id`)\n) ENGINE=InnoDB;\n"
	dir := writeDump(t, map[string]string{
		"metadata":               metadata,
		"db1-schema-create.sql":  "CREATE DATABASE `db1`;\n",
		"db1.t1-schema.sql":      schema,
		"db1.t1.00000.sql":       insert("t1", 1),
		"db1.v1-schema-view.sql": "CREATE VIEW `v1` AS SELECT 1;\n",
	})
	var l *Loader
	f := newFakeServer()
	f.onExec = func(query string) {
		if strings.HasPrefix(query, "CREATE TABLE `t1`") {
			l.Control().Shutdown()
		}
	}
	l = newTestLoader(t, testConfig(dir), f, nil)
	summary, err := run(t, l)
	require.NoError(t, err)
	assert.True(t, summary.Interrupted)
	assert.Equal(t, 0, f.count("INSERT"))
	assert.Equal(t, 0, f.count("ALTER TABLE"))
	assert.Equal(t, 0, f.count("CREATE VIEW"))

	files, err := rver.New(dir).Load()
	require.NoError(t, err)
	for _, name := range []string{"db1.t1.00000.sql", "db1.t1-schema.sql#index", "db1.t1-schema.sql#constraint", "db1.v1-schema-view.sql"} {
		assert.Contains(t, files, name)
	}

	f = newFakeServer()
	cfg := testConfig(dir)
	cfg.Resume = true
	cfg.Purge = config.PurgeNone
	l = newTestLoader(t, cfg, f, nil)
	_, err = run(t, l)
	require.NoError(t, err)
	assert.Equal(t, 1, f.count("INSERT INTO `t1`"))
	assert.Equal(t, 1, f.count("ALTER TABLE `t1` ADD INDEX"))
	assert.Equal(t, 1, f.count("ALTER TABLE `t1` ADD CONSTRAINT"))
	assert.Equal(t, 1, f.count("CREATE VIEW `v1`"))
	assert.Less(t, f.index("INSERT INTO `t1`"), f.index("ALTER TABLE `t1` ADD INDEX"))
}

func TestLoader_IndexesAfterAllTables(t *testing.T) {
	f := newFakeServer()
	cfg := testConfig(threeTableDump(t))
	cfg.Optimize = config.OptimizeKeysAfterAllTables
	l := newTestLoader(t, cfg, f, nil)
	_, err := run(t, l)
	require.NoError(t, err)

	assert.Equal(t, 3, f.count("ALTER TABLE"))
	assert.Equal(t, 6, f.count("INSERT"))
	assert.Less(t, f.lastIndex("INSERT"), f.index("ALTER TABLE"))
}

func TestLoader_PurgeLockRetries(t *testing.T) {
	lockWait := &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}

	f := newFakeServer()
	f.fail["DROP TABLE IF EXISTS `db1`.`t1`"] = lockWait
	cfg := testConfig(threeTableDump(t))
	cfg.Purge = config.PurgeDrop
	l := newTestLoader(t, cfg, f, nil)
	_, err := run(t, l)
	require.ErrorIs(t, err, ErrFatal)
	assert.Equal(t, 1+cfg.RetryCount, f.count("DROP TABLE IF EXISTS `db1`.`t1`"))
	assert.EqualValues(t, cfg.RetryCount, l.Errors().Get(CategoryRetries))
	assert.Equal(t, 0, f.count("INSERT INTO `t1`"))

	f = newFakeServer()
	f.fail["DROP TABLE IF EXISTS `db1`.`t1`"] = lockWait
	cfg = testConfig(threeTableDump(t))
	cfg.Purge = config.PurgeDrop
	cfg.PurgeFailureNonFatal = true
	l = newTestLoader(t, cfg, f, nil)
	_, err = run(t, l)
	require.ErrorIs(t, err, ErrFailed)
	assert.Equal(t, 1+cfg.RetryCount, f.count("DROP TABLE IF EXISTS `db1`.`t1`"))
	assert.EqualValues(t, cfg.RetryCount, l.Errors().Get(CategoryRetries))
	assert.EqualValues(t, 1, l.Errors().Get(CategorySchema))
	assert.EqualValues(t, 2, l.Errors().Get(CategoryData))
	assert.Equal(t, 0, f.count("INSERT INTO `t1`"))
	assert.Equal(t, 2, f.count("INSERT INTO `t2`"))
	t1, ok := l.Registry().GetTable("db1", "t1")
	require.True(t, ok)
	assert.Equal(t, model.NotCreated, t1.GetState())
}
