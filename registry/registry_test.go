package registry

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ainilili/dumploader/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateTable_Concurrent(t *testing.T) {
	r := New()
	db := r.GetOrCreateDatabase("db", "db")

	const n = 64
	var created atomic.Int32
	handles := make([]*model.Table, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			tbl, ok := r.GetOrCreateTable(db, "", "t1")
			if ok {
				created.Add(1)
			}
			handles[i] = tbl
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	for _, h := range handles {
		assert.Same(t, handles[0], h)
	}
	assert.Len(t, r.Tables(), 1)
}

func TestGetOrCreateTable_BackfillsSourceName(t *testing.T) {
	r := New()
	db := r.GetOrCreateDatabase("db", "db")

	tbl, created := r.GetOrCreateTable(db, "", "t@002e1")
	require.True(t, created)
	assert.Equal(t, "", tbl.SourceName)

	again, created := r.GetOrCreateTable(db, "t.1", "t@002e1")
	require.False(t, created)
	assert.Same(t, tbl, again)
	assert.Equal(t, "t.1", tbl.SourceName)

	r.GetOrCreateTable(db, "other", "t@002e1")
	assert.Equal(t, "t.1", tbl.SourceName, "refinement never overwrites")
}

func TestGetOrCreateDatabase_TargetOverride(t *testing.T) {
	r := New(WithTargetDatabase("restored"))
	db := r.GetOrCreateDatabase("src", "src")
	assert.Equal(t, "src", db.SourceName)
	assert.Equal(t, "restored", db.TargetName)
	assert.Same(t, db, r.GetOrCreateDatabase("src", ""))
	assert.Len(t, r.Databases(), 1)
}

func TestLoadingTables_RefreshEvery(t *testing.T) {
	r := New(WithRefreshEvery(3))
	db := r.GetOrCreateDatabase("db", "db")
	rows := []uint64{10, 500, 20}
	for i, n := range rows {
		tbl, _ := r.GetOrCreateTable(db, "", fmt.Sprintf("t%d", i))
		tbl.Rows = n
		if i < 2 {
			assert.Empty(t, r.LoadingTables(), "not rebuilt before the threshold")
		}
	}
	// The third insertion rebuilt the list before its Rows was set.
	r.Refresh()
	loading := r.LoadingTables()
	require.Len(t, loading, 3)
	assert.Equal(t, "t1", loading[0].FilenameStem)
	assert.Equal(t, "t2", loading[1].FilenameStem)
	assert.Equal(t, "t0", loading[2].FilenameStem)

	view, _ := r.GetOrCreateTable(db, "", "v")
	view.IsView = true
	r.Refresh()
	assert.Len(t, r.LoadingTables(), 3)
	assert.Len(t, r.DispatchOrder(), 4)
}
