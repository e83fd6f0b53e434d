// Package binlog turns the replication coordinates recorded in a dump into
// the statements that point the restored server at its source.
package binlog

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-mysql-org/go-mysql/mysql"
)

var ErrNoSource = errors.New("no replication coordinates")

// Source is the replication position of a dump.
type Source struct {
	Host     string
	Port     int
	User     string
	Password string
	Channel  string
	Position mysql.Position
	GTIDSet  mysql.GTIDSet
}

var keys = map[string][]string{
	"host":     {"host", "source_host", "master_host"},
	"port":     {"port", "source_port", "master_port"},
	"user":     {"user", "source_user", "master_user"},
	"password": {"password", "source_password", "master_password"},
	"channel":  {"channel_name", "channel"},
	"file":     {"file", "log_file", "source_log_file", "master_log_file"},
	"position": {"position", "log_pos", "source_log_pos", "master_log_pos"},
	"gtid":     {"executed_gtid_set", "gtid", "gtid_set"},
}

func lookup(m map[string]string, field string) string {
	for _, k := range keys[field] {
		for mk, v := range m {
			if strings.EqualFold(mk, k) {
				return strings.Trim(strings.TrimSpace(v), "'\"")
			}
		}
	}
	return ""
}

// ParseSource reads the [source] block of the metadata file.
func ParseSource(m map[string]string) (*Source, error) {
	s := &Source{
		Host:     lookup(m, "host"),
		User:     lookup(m, "user"),
		Password: lookup(m, "password"),
		Channel:  lookup(m, "channel"),
	}
	s.Position.Name = lookup(m, "file")
	if v := lookup(m, "position"); v != "" {
		pos, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid source position %q: %w", v, err)
		}
		s.Position.Pos = uint32(pos)
	}
	if v := lookup(m, "port"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid source port %q: %w", v, err)
		}
		s.Port = port
	}
	if v := strings.ReplaceAll(lookup(m, "gtid"), "\n", ""); v != "" {
		set, err := mysql.ParseGTIDSet(mysql.MySQLFlavor, v)
		if err != nil {
			return nil, fmt.Errorf("invalid executed GTID set %q: %w", v, err)
		}
		s.GTIDSet = set
	}
	if s.Position.Name == "" && s.GTIDSet == nil {
		return nil, ErrNoSource
	}
	return s, nil
}

func quote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// Statements configures replication without starting it.
func (s *Source) Statements() []string {
	stmts := []string{"STOP REPLICA"}
	var opts []string
	if s.Host != "" {
		opts = append(opts, "SOURCE_HOST = "+quote(s.Host))
	}
	if s.Port > 0 {
		opts = append(opts, "SOURCE_PORT = "+strconv.Itoa(s.Port))
	}
	if s.User != "" {
		opts = append(opts, "SOURCE_USER = "+quote(s.User))
	}
	if s.Password != "" {
		opts = append(opts, "SOURCE_PASSWORD = "+quote(s.Password))
	}
	if s.GTIDSet != nil {
		stmts = append(stmts, "RESET REPLICA", "SET GLOBAL gtid_purged = "+quote(s.GTIDSet.String()))
		opts = append(opts, "SOURCE_AUTO_POSITION = 1")
	} else {
		opts = append(opts, "SOURCE_LOG_FILE = "+quote(s.Position.Name), "SOURCE_LOG_POS = "+strconv.FormatUint(uint64(s.Position.Pos), 10))
	}
	change := "CHANGE REPLICATION SOURCE TO " + strings.Join(opts, ", ")
	if s.Channel != "" {
		change += " FOR CHANNEL " + quote(s.Channel)
	}
	return append(stmts, change)
}

var password = regexp.MustCompile(`(SOURCE_PASSWORD = )'(?:[^']|'')*'`)

// Redact hides passwords for logging.
func Redact(stmt string) string {
	return password.ReplaceAllString(stmt, "$1'***'")
}
