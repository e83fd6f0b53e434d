package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ainilili/dumploader/util"
	"gopkg.in/ini.v1"
)

var ErrMalformedMetadata = errors.New("malformed metadata")

const (
	sectionConfig          = "config"
	sectionSessionVars     = "myloader_session_variables"
	sectionGlobalVars      = "myloader_global_variables"
	sectionSource          = "source"
	sectionMaster          = "master"
	sectionReplicaPrefix   = "replication"
	keyQuoteCharacter      = "quote_character"
	keyRealTableName       = "real_table_name"
	keyRows                = "rows"
	keyIsView              = "is_view"
	keyIsSequence          = "is_sequence"
	keySchemaChecksum      = "schema_checksum"
	keyDataChecksum        = "data_checksum"
	keyIndexesChecksum     = "indexes_checksum"
	keyTriggersChecksum    = "triggers_checksum"
	keyPostChecksum        = "post_checksum"
	keyEventsChecksum      = "events_checksum"
	quoteCharacterBacktick = "BACKTICK"
	quoteCharacterDouble   = "DOUBLE_QUOTE"
)

// Metadata is the typed content of a global metadata file.
type Metadata struct {
	// QuoteCharacter is zero when the file has no [config] section.
	QuoteCharacter byte
	SessionVars    []Variable
	GlobalVars     []Variable
	// Source holds the replication coordinates, keyed as written.
	Source    map[string]string
	Databases []DatabaseMeta
	Tables    []TableMeta
}

type Variable struct {
	Name  string
	Value string
}

type DatabaseMeta struct {
	Name             string
	SchemaChecksum   string
	PostChecksum     string
	TriggersChecksum string
	EventsChecksum   string
}

type TableMeta struct {
	Database         string
	Table            string
	RealTableName    string
	Rows             uint64
	IsView           bool
	IsSequence       bool
	SchemaChecksum   string
	DataChecksum     string
	IndexesChecksum  string
	TriggersChecksum string
}

// HasConfig reports whether the [config] section was present.
func (m *Metadata) HasConfig() bool {
	return m.QuoteCharacter != 0
}

// ParseMetadata parses a metadata document. q is the quote character to use
// for object sections when the document itself does not declare one.
func ParseMetadata(data []byte, q byte) (*Metadata, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:     true,
		AllowBooleanKeys:        true,
		SkipUnrecognizableLines: true,
		PreserveSurroundedQuote: true,
		KeyValueDelimiters:      "=",
	}, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMetadata, err)
	}

	m := &Metadata{Source: map[string]string{}}
	if s, err := f.GetSection(sectionConfig); err == nil {
		switch v := strings.TrimSpace(s.Key(keyQuoteCharacter).String()); v {
		case quoteCharacterBacktick, "`":
			m.QuoteCharacter = '`'
		case quoteCharacterDouble, `"`:
			m.QuoteCharacter = '"'
		case "":
			m.QuoteCharacter = '`'
		default:
			return nil, fmt.Errorf("%w: %s", ErrQuoteCharacter, v)
		}
	}
	if m.QuoteCharacter != 0 {
		q = m.QuoteCharacter
	}
	if q == 0 {
		q = '`'
	}

	for _, s := range f.Sections() {
		name := s.Name()
		switch {
		case name == ini.DefaultSection || name == sectionConfig:
			continue
		case name == sectionSessionVars:
			m.SessionVars = variables(s)
		case name == sectionGlobalVars:
			m.GlobalVars = variables(s)
		case name == sectionSource || name == sectionMaster || strings.HasPrefix(name, sectionReplicaPrefix):
			for _, k := range s.Keys() {
				m.Source[k.Name()] = strings.TrimSpace(k.String())
			}
		default:
			db, table, err := splitObjectSection(name, q)
			if err != nil {
				return nil, err
			}
			if table == "" {
				m.Databases = append(m.Databases, DatabaseMeta{
					Name:             db,
					SchemaChecksum:   s.Key(keySchemaChecksum).String(),
					PostChecksum:     s.Key(keyPostChecksum).String(),
					TriggersChecksum: s.Key(keyTriggersChecksum).String(),
					EventsChecksum:   s.Key(keyEventsChecksum).String(),
				})
				continue
			}
			tm := TableMeta{
				Database:         db,
				Table:            table,
				RealTableName:    s.Key(keyRealTableName).String(),
				IsView:           flag(s, keyIsView),
				IsSequence:       flag(s, keyIsSequence),
				SchemaChecksum:   s.Key(keySchemaChecksum).String(),
				DataChecksum:     s.Key(keyDataChecksum).String(),
				IndexesChecksum:  s.Key(keyIndexesChecksum).String(),
				TriggersChecksum: s.Key(keyTriggersChecksum).String(),
			}
			if v := strings.TrimSpace(s.Key(keyRows).String()); v != "" {
				rows, err := strconv.ParseUint(v, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("%w: rows of %s: %v", ErrMalformedMetadata, name, err)
				}
				tm.Rows = rows
			}
			if tm.RealTableName == "" {
				tm.RealTableName = table
			}
			m.Tables = append(m.Tables, tm)
		}
	}
	return m, nil
}

func variables(s *ini.Section) []Variable {
	var out []Variable
	for _, k := range s.Keys() {
		out = append(out, Variable{Name: k.Name(), Value: strings.TrimSpace(k.String())})
	}
	return out
}

func flag(s *ini.Section, key string) bool {
	v := strings.TrimSpace(s.Key(key).String())
	return v == "1" || strings.EqualFold(v, "true")
}

// splitObjectSection parses "`db`" or "`db`.`table`" section names.
func splitObjectSection(name string, q byte) (string, string, error) {
	if len(name) < 2 || name[0] != q {
		return "", "", fmt.Errorf("%w: unexpected group [%s]", ErrMalformedMetadata, name)
	}
	end := closingQuote(name, 1, q)
	if end < 0 {
		return "", "", fmt.Errorf("%w: unterminated group [%s]", ErrMalformedMetadata, name)
	}
	db := util.Unquote(name[:end+1], q)
	rest := name[end+1:]
	if rest == "" {
		return db, "", nil
	}
	if len(rest) < 3 || rest[0] != '.' || rest[1] != q || rest[len(rest)-1] != q {
		return "", "", fmt.Errorf("%w: unexpected group [%s]", ErrMalformedMetadata, name)
	}
	return db, util.Unquote(rest[1:], q), nil
}

// closingQuote finds the quote closing an identifier that opened before i,
// skipping doubled quotes.
func closingQuote(s string, i int, q byte) int {
	for i < len(s) {
		if s[i] == q {
			if i+1 < len(s) && s[i+1] == q {
				i += 2
				continue
			}
			return i
		}
		i++
	}
	return -1
}
