package parser

import (
	"regexp"
	"strings"
)

var insertHeader = regexp.MustCompile(`(?is)^\s*(INSERT|REPLACE)\b`)

// SplitInsert breaks a multi-row INSERT into statements of at most rows
// tuples each. Statements it cannot split safely come back unchanged.
func SplitInsert(stmt string, rows int) []string {
	if rows <= 0 || !insertHeader.MatchString(stmt) {
		return []string{stmt}
	}
	start := valuesOffset(stmt)
	if start < 0 {
		return []string{stmt}
	}
	tuples, rest, ok := scanTuples(stmt[start:])
	if !ok || len(tuples) <= rows {
		return []string{stmt}
	}
	if tail := strings.TrimSpace(rest); tail != "" && tail != ";" {
		return []string{stmt}
	}

	header := strings.TrimRight(stmt[:start], " \t\r\n")
	out := make([]string, 0, (len(tuples)+rows-1)/rows)
	for i := 0; i < len(tuples); i += rows {
		end := i + rows
		if end > len(tuples) {
			end = len(tuples)
		}
		var sb strings.Builder
		sb.WriteString(header)
		sb.WriteByte(' ')
		for j, tuple := range tuples[i:end] {
			if j > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(tuple)
		}
		sb.WriteByte(';')
		out = append(out, sb.String())
	}
	return out
}

// valuesOffset returns the offset just past the VALUES keyword that is
// outside quotes, or -1.
func valuesOffset(stmt string) int {
	var quote byte
	for i := 0; i < len(stmt); i++ {
		c := stmt[i]
		if quote != 0 {
			if c == '\\' && quote != '`' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case 'V', 'v':
			if i+6 <= len(stmt) && strings.EqualFold(stmt[i:i+6], "VALUES") &&
				(i == 0 || !isIdent(stmt[i-1])) && (i+6 == len(stmt) || !isIdent(stmt[i+6])) {
				return i + 6
			}
		}
	}
	return -1
}

// scanTuples reads comma separated parenthesized tuples and returns them
// with whatever text follows the last one.
func scanTuples(s string) ([]string, string, bool) {
	var tuples []string
	i := 0
	for {
		for i < len(s) && isSpace(s[i]) {
			i++
		}
		if i >= len(s) || s[i] != '(' {
			return nil, "", false
		}
		end := tupleEnd(s, i)
		if end < 0 {
			return nil, "", false
		}
		tuples = append(tuples, s[i:end+1])
		i = end + 1
		for i < len(s) && isSpace(s[i]) {
			i++
		}
		if i < len(s) && s[i] == ',' {
			i++
			continue
		}
		return tuples, s[i:], true
	}
}

func tupleEnd(s string, start int) int {
	depth := 0
	var quote byte
	for i := start; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch {
			case c == '\\' && quote != '`':
				i++
			case c == quote:
				if i+1 < len(s) && s[i+1] == quote {
					i++
				} else {
					quote = 0
				}
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdent(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

var loadDataHeader = regexp.MustCompile(`(?is)^\s*LOAD\s+DATA\s+((?:LOW_PRIORITY|CONCURRENT)\s+)?(LOCAL\s+)?INFILE\s+'((?:[^'\\]|\\.|'')*)'`)

// LoadDataFile returns the file name of a LOAD DATA statement.
func LoadDataFile(stmt string) (string, bool) {
	m := loadDataHeader.FindStringSubmatch(stmt)
	if m == nil {
		return "", false
	}
	return strings.ReplaceAll(m[3], "''", "'"), true
}

// RewriteLoadData points a LOAD DATA statement at a client side source,
// adding LOCAL when it is missing.
func RewriteLoadData(stmt, source string) string {
	loc := loadDataHeader.FindStringSubmatchIndex(stmt)
	if loc == nil {
		return stmt
	}
	var sb strings.Builder
	sb.WriteString("LOAD DATA ")
	if loc[2] >= 0 {
		sb.WriteString(stmt[loc[2]:loc[3]])
	}
	sb.WriteString("LOCAL INFILE '")
	sb.WriteString(strings.ReplaceAll(source, "'", "''"))
	sb.WriteString("'")
	sb.WriteString(stmt[loc[1]:])
	return sb.String()
}

// IsDataStatement reports INSERT, REPLACE and LOAD DATA statements.
func IsDataStatement(stmt string) bool {
	return insertHeader.MatchString(stmt) || loadDataHeader.MatchString(stmt)
}
