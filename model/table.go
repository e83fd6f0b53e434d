package model

import (
	"sort"
	"sync"
)

// Table is a registry-owned handle, one per (database, filename stem).
// Exported mutable fields are guarded by the embedded mutex.
type Table struct {
	sync.Mutex

	Database        *Database
	SourceName      string
	FilenameStem    string
	Key             string
	CreateStatement string
	// SchemaFile is the dump file the table was created from. Deferred
	// index and constraint statements are checkpointed under it.
	SchemaFile string

	State          SchemaState
	Rows           uint64
	CurrentThreads int
	MaxThreads     int
	RemainingJobs  int
	Count          int
	// Pending is ordered by (Part, SubPart).
	Pending     []*RestoreJob
	Indexes     string
	Constraints string
	Retries     int
	// Resumed is set when data chunks come from a resume checkpoint.
	Resumed bool

	SchemaChecksum   string
	DataChecksum     string
	IndexesChecksum  string
	TriggersChecksum string

	IsView     bool
	IsSequence bool

	NoData          bool
	SkipTriggers    bool
	SkipIndexes     bool
	SkipConstraints bool
}

func NewTable(db *Database, sourceName, stem string, maxThreads int) *Table {
	if maxThreads < 1 {
		maxThreads = 1
	}
	return &Table{
		Database:     db,
		SourceName:   sourceName,
		FilenameStem: stem,
		Key:          db.NameInFilename + "." + stem,
		State:        NotFound,
		MaxThreads:   maxThreads,
	}
}

// Name is the table name used in SQL.
func (t *Table) Name() string {
	if t.SourceName != "" {
		return t.SourceName
	}
	return t.FilenameStem
}

func (t *Table) String() string {
	return t.Database.TargetName + "." + t.Name()
}

// AddData inserts a data chunk keeping Pending ordered by (part, sub_part)
// and accounts for it.
func (t *Table) AddData(job *RestoreJob) {
	t.Lock()
	defer t.Unlock()
	i := sort.Search(len(t.Pending), func(i int) bool {
		return job.Before(t.Pending[i])
	})
	t.Pending = append(t.Pending, nil)
	copy(t.Pending[i+1:], t.Pending[i:])
	t.Pending[i] = job
	t.RemainingJobs++
	t.Count++
}

// PopDataLocked removes the lowest chunk. The caller holds the lock.
func (t *Table) PopDataLocked() *RestoreJob {
	if len(t.Pending) == 0 {
		return nil
	}
	job := t.Pending[0]
	t.Pending[0] = nil
	t.Pending = t.Pending[1:]
	return job
}

// DiscardDataLocked drops every pending chunk and returns them. The caller
// holds the lock.
func (t *Table) DiscardDataLocked() []*RestoreJob {
	jobs := t.Pending
	t.Pending = nil
	t.RemainingJobs -= len(jobs)
	return jobs
}

func (t *Table) GetState() SchemaState {
	t.Lock()
	defer t.Unlock()
	return t.State
}

func (t *Table) SetState(s SchemaState) {
	t.Lock()
	defer t.Unlock()
	t.State = s
}

// Advance moves the state forward to s; it never moves it back.
func (t *Table) Advance(s SchemaState) {
	t.Lock()
	defer t.Unlock()
	if s > t.State {
		t.State = s
	}
}

// FinishData releases one loader slot after a chunk completed.
func (t *Table) FinishData() {
	t.Lock()
	defer t.Unlock()
	t.CurrentThreads--
	t.RemainingJobs--
}

// ReserveExtraThread takes one more loader slot for connection escalation if
// no chunk is waiting and the table is below its cap.
func (t *Table) ReserveExtraThread() bool {
	t.Lock()
	defer t.Unlock()
	if len(t.Pending) > 0 || t.CurrentThreads >= t.MaxThreads {
		return false
	}
	t.CurrentThreads++
	return true
}

func (t *Table) ReleaseExtraThread() {
	t.Lock()
	defer t.Unlock()
	t.CurrentThreads--
}

func (t *Table) ClearChecksums() {
	t.Lock()
	defer t.Unlock()
	t.SchemaChecksum = ""
	t.DataChecksum = ""
	t.IndexesChecksum = ""
	t.TriggersChecksum = ""
}
