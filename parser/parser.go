package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ainilili/dumploader/util"
	"github.com/pingcap/parser"
	"github.com/pingcap/parser/ast"
	"github.com/pingcap/parser/format"
	_ "github.com/pingcap/parser/test_driver"
)

var (
	ErrTableNameNotFound = errors.New("table name not found in CREATE TABLE statement")
	ErrQuoteCharacter    = errors.New("identifier quote character does not match the dump")
)

var createTableHeader = map[byte]*regexp.Regexp{
	'`': regexp.MustCompile("(?is)CREATE\\s+TABLE\\s+(IF\\s+NOT\\s+EXISTS\\s+)?`((?:[^`]|``)+)`"),
	'"': regexp.MustCompile(`(?is)CREATE\s+TABLE\s+(IF\s+NOT\s+EXISTS\s+)?"((?:[^"]|"")+)"`),
}

var createTableAny = regexp.MustCompile(`(?is)CREATE\s+TABLE\s+(IF\s+NOT\s+EXISTS\s+)?([` + "`" + `"])`)

// ExtractTableName returns the unquoted table name of the first CREATE TABLE
// in sql, quoted with q.
func ExtractTableName(sql string, q byte) (string, error) {
	re, ok := createTableHeader[q]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrQuoteCharacter, q)
	}
	m := re.FindStringSubmatch(sql)
	if m == nil {
		if other := createTableAny.FindStringSubmatch(sql); other != nil && other[2][0] != q {
			return "", fmt.Errorf("%w: found %s", ErrQuoteCharacter, other[2])
		}
		return "", ErrTableNameNotFound
	}
	return util.Unquote(string(q)+m[2]+string(q), q), nil
}

// AddIfNotExists rewrites the first CREATE TABLE header to carry IF NOT EXISTS.
func AddIfNotExists(sql string, q byte) string {
	re, ok := createTableHeader[q]
	if !ok {
		return sql
	}
	loc := re.FindStringSubmatchIndex(sql)
	if loc == nil || loc[2] != -1 {
		return sql
	}
	nameStart := loc[4] - 1
	return sql[:nameStart] + "IF NOT EXISTS " + sql[nameStart:]
}

// SplitTable is a CREATE TABLE with its deferrable clauses taken out.
type SplitTable struct {
	Create string
	// Indexes is an ALTER TABLE adding the secondary indexes, or empty.
	Indexes string
	// Constraints is an ALTER TABLE adding the foreign keys, or empty.
	Constraints string
}

// SplitCreateTable parses a CREATE TABLE and moves secondary indexes and/or
// foreign keys into separate ALTER TABLE statements. An index whose first
// column is AUTO_INCREMENT stays in the CREATE because the server requires
// it. When nothing is moved the original text is returned untouched.
func SplitCreateTable(sql string, indexes, constraints bool) (SplitTable, error) {
	out := SplitTable{Create: sql}
	if !indexes && !constraints {
		return out, nil
	}
	p := parser.New()
	stmt, err := p.ParseOneStmt(sql, "", "")
	if err != nil {
		return out, err
	}
	ct, ok := stmt.(*ast.CreateTableStmt)
	if !ok {
		return out, fmt.Errorf("not a CREATE TABLE statement: %T", stmt)
	}

	autoInc := map[string]bool{}
	for _, col := range ct.Cols {
		for _, opt := range col.Options {
			if opt.Tp == ast.ColumnOptionAutoIncrement {
				autoInc[col.Name.Name.L] = true
			}
		}
	}

	var kept, idx, fks []*ast.Constraint
	for _, c := range ct.Constraints {
		switch c.Tp {
		case ast.ConstraintKey, ast.ConstraintIndex, ast.ConstraintUniq, ast.ConstraintUniqKey, ast.ConstraintUniqIndex, ast.ConstraintFulltext:
			if indexes && !leadsWithAutoIncrement(c, autoInc) {
				idx = append(idx, c)
				continue
			}
		case ast.ConstraintForeignKey:
			if constraints {
				fks = append(fks, c)
				continue
			}
		}
		kept = append(kept, c)
	}
	if len(idx) == 0 && len(fks) == 0 {
		return out, nil
	}
	ct.Constraints = kept

	create, err := restore(ct)
	if err != nil {
		return out, err
	}
	table, err := restore(ct.Table)
	if err != nil {
		return out, err
	}
	out.Create = create + ";"
	if out.Indexes, err = alterAdd(table, idx); err != nil {
		return out, err
	}
	if out.Constraints, err = alterAdd(table, fks); err != nil {
		return out, err
	}
	return out, nil
}

func leadsWithAutoIncrement(c *ast.Constraint, autoInc map[string]bool) bool {
	if len(c.Keys) == 0 || c.Keys[0].Column == nil {
		return false
	}
	return autoInc[c.Keys[0].Column.Name.L]
}

func alterAdd(table string, cs []*ast.Constraint) (string, error) {
	if len(cs) == 0 {
		return "", nil
	}
	var sb strings.Builder
	sb.WriteString("ALTER TABLE ")
	sb.WriteString(table)
	for i, c := range cs {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(" ADD ")
		s, err := restore(c)
		if err != nil {
			return "", err
		}
		sb.WriteString(s)
	}
	sb.WriteString(";")
	return sb.String(), nil
}

func restore(n ast.Node) (string, error) {
	var sb strings.Builder
	if err := n.Restore(format.NewRestoreCtx(format.DefaultRestoreFlags, &sb)); err != nil {
		return "", err
	}
	return sb.String(), nil
}
