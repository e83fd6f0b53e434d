package database

import (
	"fmt"
	"sync"

	"github.com/ainilili/dumploader/parser"
	"github.com/ainilili/dumploader/util"
)

// SessionVars is the set of session statements every connection replays
// after connecting. Connections pick up changes lazily via Version.
type SessionVars struct {
	mu      sync.RWMutex
	version uint64
	stmts   []string
}

func NewSessionVars(stmts ...string) *SessionVars {
	return &SessionVars{stmts: stmts, version: 1}
}

// Set replaces the statements and bumps the version.
func (s *SessionVars) Set(stmts []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stmts = append([]string(nil), stmts...)
	s.version++
}

// Append adds statements and bumps the version.
func (s *SessionVars) Append(stmts ...string) {
	if len(stmts) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stmts = append(s.stmts, stmts...)
	s.version++
}

// Snapshot returns the current version and statements.
func (s *SessionVars) Snapshot() (uint64, []string) {
	if s == nil {
		return 0, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version, s.stmts
}

func (s *SessionVars) Version() uint64 {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// SetStatements renders metadata variables as SET SESSION statements.
func SetStatements(vars []parser.Variable) []string {
	out := make([]string, 0, len(vars))
	for _, v := range vars {
		out = append(out, fmt.Sprintf("SET SESSION %s = %s", v.Name, v.Value))
	}
	return out
}

// GlobalStatements renders metadata variables as SET GLOBAL statements.
func GlobalStatements(vars []parser.Variable) []string {
	out := make([]string, 0, len(vars))
	for _, v := range vars {
		out = append(out, fmt.Sprintf("SET GLOBAL %s = %s", v.Name, v.Value))
	}
	return out
}

// BaseSessionStatements are applied to every restore session.
func BaseSessionStatements(setNames string, binlog bool) []string {
	stmts := []string{
		"SET SESSION FOREIGN_KEY_CHECKS = 0",
		"SET SESSION UNIQUE_CHECKS = 0",
		"SET SESSION TIME_ZONE = '+00:00'",
		"SET SESSION SQL_MODE = 'NO_AUTO_VALUE_ON_ZERO,NO_ENGINE_SUBSTITUTION'",
	}
	if setNames != "" {
		stmts = append(stmts, "SET NAMES "+setNames)
	}
	if !binlog {
		stmts = append(stmts, "SET SESSION SQL_LOG_BIN = 0")
	}
	return stmts
}

func useStatement(db string) string {
	return "USE " + util.Quote(db, '`')
}
