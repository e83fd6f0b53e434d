package loader

import (
	"context"
	"strings"

	"github.com/ainilili/dumploader/config"
	"github.com/ainilili/dumploader/database"
	"github.com/ainilili/dumploader/log"
)

type checksumCheck struct {
	kind     database.ChecksumKind
	db       string
	table    string
	expected string
}

func (l *Loader) checksumChecks() []checksumCheck {
	var checks []checksumCheck
	add := func(kind database.ChecksumKind, db, table, expected string) {
		if expected != "" {
			checks = append(checks, checksumCheck{kind: kind, db: db, table: table, expected: expected})
		}
	}
	for _, db := range l.reg.Databases() {
		db.Lock()
		add(database.ChecksumDatabase, db.TargetName, "", db.SchemaChecksum)
		if !l.cfg.SkipPost {
			add(database.ChecksumRoutines, db.TargetName, "", db.PostChecksum)
			add(database.ChecksumEvents, db.TargetName, "", db.EventsChecksum)
		}
		db.Unlock()
	}
	for _, t := range l.reg.Tables() {
		t.Lock()
		target, name := t.Database.TargetName, t.Name()
		add(database.ChecksumSchema, target, name, t.SchemaChecksum)
		if !t.IsView && !t.IsSequence && !t.NoData {
			add(database.ChecksumData, target, name, t.DataChecksum)
		}
		if !t.SkipIndexes {
			add(database.ChecksumIndexes, target, name, t.IndexesChecksum)
		}
		if !t.SkipTriggers && !l.cfg.SkipTriggers {
			add(database.ChecksumTriggers, target, name, t.TriggersChecksum)
		}
		t.Unlock()
	}
	return checks
}

// verifyChecksums compares every recorded checksum with the server. It
// reports whether all matched; under fail mode mismatches count as errors.
func (l *Loader) verifyChecksums(ctx context.Context) bool {
	if l.cfg.Checksum == config.ChecksumSkip || l.checks == nil {
		return true
	}
	ok := true
	for _, c := range l.checksumChecks() {
		if ctx.Err() != nil {
			return ok
		}
		observed, err := l.checks.Checksum(ctx, c.kind, c.db, c.table)
		if err == nil && strings.EqualFold(strings.TrimSpace(observed), strings.TrimSpace(c.expected)) {
			continue
		}
		ok = false
		object := c.db
		if c.table != "" {
			object += "." + c.table
		}
		switch {
		case err != nil && l.cfg.Checksum == config.ChecksumFail:
			log.Errorf("%s checksum of %s could not be computed: %v", c.kind, object, err)
		case err != nil:
			log.Warnf("%s checksum of %s could not be computed: %v", c.kind, object, err)
		case l.cfg.Checksum == config.ChecksumFail:
			log.Errorf("%s checksum mismatch on %s: expected %s, got %s", c.kind, object, c.expected, observed)
		default:
			log.Warnf("%s checksum mismatch on %s: expected %s, got %s", c.kind, object, c.expected, observed)
		}
		if l.cfg.Checksum == config.ChecksumFail {
			l.errors.Add(CategoryChecksum, 1)
		}
	}
	return ok
}
