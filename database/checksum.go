package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ainilili/dumploader/util"
)

type ChecksumKind int

const (
	ChecksumData ChecksumKind = iota
	ChecksumSchema
	ChecksumIndexes
	ChecksumTriggers
	ChecksumRoutines
	ChecksumEvents
	ChecksumDatabase
)

func (k ChecksumKind) String() string {
	switch k {
	case ChecksumData:
		return "data"
	case ChecksumSchema:
		return "schema"
	case ChecksumIndexes:
		return "indexes"
	case ChecksumTriggers:
		return "triggers"
	case ChecksumRoutines:
		return "post"
	case ChecksumEvents:
		return "events"
	case ChecksumDatabase:
		return "database schema"
	}
	return "unknown"
}

// Checksummer computes the server side value to compare with a dump checksum.
type Checksummer interface {
	Checksum(ctx context.Context, kind ChecksumKind, db, table string) (string, error)
}

const crcTemplate = "SELECT COALESCE(LOWER(CONV(BIT_XOR(CAST(CRC32(CONCAT_WS(%s)) AS UNSIGNED)), 10, 16)), 0) FROM information_schema.%s WHERE %s"

var checksumQueries = map[ChecksumKind]string{
	ChecksumSchema:   fmt.Sprintf(crcTemplate, "column_name, ordinal_position, data_type", "COLUMNS", "table_schema = ? AND table_name = ?"),
	ChecksumIndexes:  fmt.Sprintf(crcTemplate, "table_name, index_name, seq_in_index, column_name", "STATISTICS", "table_schema = ? AND table_name = ?"),
	ChecksumTriggers: fmt.Sprintf(crcTemplate, "trigger_name, action_statement", "TRIGGERS", "event_object_schema = ? AND event_object_table = ?"),
	ChecksumRoutines: fmt.Sprintf(crcTemplate, "routine_name, routine_definition", "ROUTINES", "routine_schema = ?"),
	ChecksumEvents:   fmt.Sprintf(crcTemplate, "event_name, event_definition", "EVENTS", "event_schema = ?"),
	ChecksumDatabase: fmt.Sprintf(crcTemplate, "table_name, table_type", "TABLES", "table_schema = ?"),
}

func (d *DB) Checksum(ctx context.Context, kind ChecksumKind, db, table string) (string, error) {
	if kind == ChecksumData {
		return d.tableChecksum(ctx, db, table)
	}
	q, ok := checksumQueries[kind]
	if !ok {
		return "", fmt.Errorf("unknown checksum kind %d", kind)
	}
	args := []any{db}
	if strings.Count(q, "?") == 2 {
		args = append(args, table)
	}
	var v sql.NullString
	if err := d.db.QueryRowContext(ctx, q, args...).Scan(&v); err != nil {
		return "", err
	}
	if !v.Valid {
		return "0", nil
	}
	return v.String, nil
}

func (d *DB) tableChecksum(ctx context.Context, db, table string) (string, error) {
	var name string
	var sum sql.NullString
	q := "CHECKSUM TABLE " + util.Quote(db, '`') + "." + util.Quote(table, '`')
	if err := d.db.QueryRowContext(ctx, q).Scan(&name, &sum); err != nil {
		return "", err
	}
	if !sum.Valid {
		return "0", nil
	}
	return sum.String, nil
}
