package model

import "sync"

// Database is a registry-owned handle. Jobs that reach it before it is
// Created wait in its deferred queues.
type Database struct {
	sync.Mutex

	SourceName     string
	TargetName     string
	NameInFilename string

	state         SchemaState
	sequenceQueue []*RestoreJob
	tableQueue    []*RestoreJob

	SchemaChecksum   string
	PostChecksum     string
	TriggersChecksum string
	EventsChecksum   string
}

func NewDatabase(nameInFilename, name string) *Database {
	return &Database{
		SourceName:     name,
		TargetName:     name,
		NameInFilename: nameInFilename,
		state:          NotCreated,
	}
}

func (d *Database) State() SchemaState {
	d.Lock()
	defer d.Unlock()
	return d.state
}

func (d *Database) Created() bool {
	return d.State() >= Created
}

// Defer queues job until the database is created. It returns false without
// queueing when the database already is, so the caller must schedule the job
// itself.
func (d *Database) Defer(job *RestoreJob, sequence bool) bool {
	d.Lock()
	defer d.Unlock()
	if d.state >= Created {
		return false
	}
	if sequence {
		d.sequenceQueue = append(d.sequenceQueue, job)
	} else {
		d.tableQueue = append(d.tableQueue, job)
	}
	return true
}

// Release marks the database Created and hands back every deferred job,
// sequences first. Both happen under one lock so no job can slip into the
// deferred queues afterwards.
func (d *Database) Release() []*RestoreJob {
	d.Lock()
	defer d.Unlock()
	d.state = Created
	jobs := make([]*RestoreJob, 0, len(d.sequenceQueue)+len(d.tableQueue))
	jobs = append(jobs, d.sequenceQueue...)
	jobs = append(jobs, d.tableQueue...)
	d.sequenceQueue = nil
	d.tableQueue = nil
	return jobs
}

// Pending reports how many jobs are deferred.
func (d *Database) Pending() int {
	d.Lock()
	defer d.Unlock()
	return len(d.sequenceQueue) + len(d.tableQueue)
}

func (d *Database) ClearChecksums() {
	d.Lock()
	defer d.Unlock()
	d.SchemaChecksum = ""
	d.PostChecksum = ""
	d.TriggersChecksum = ""
	d.EventsChecksum = ""
}
