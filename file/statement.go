package file

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ainilili/dumploader/consts"
)

// Statement is one SQL statement read from a dump file. Line is the line the
// statement starts on.
type Statement struct {
	Text string
	Line int
}

// StatementReader splits a dump file into statements. A statement ends on a
// line whose last non-blank characters are the current delimiter; DELIMITER
// lines change it, as written for routines and triggers.
type StatementReader struct {
	r         *bufio.Reader
	delimiter string
	line      int
	buf       bytes.Buffer
}

func NewStatementReader(r io.Reader) *StatementReader {
	return &StatementReader{
		r:         bufio.NewReaderSize(r, consts.FileBufferSize),
		delimiter: ";",
	}
}

// Next returns the next statement, or io.EOF when the input is exhausted.
// Trailing text without a delimiter is returned as a final statement.
func (s *StatementReader) Next() (Statement, error) {
	start := 0
	for {
		line, err := s.r.ReadString(consts.LF)
		if len(line) > 0 {
			s.line++
			trimmed := strings.TrimSpace(line)
			skip := false
			if s.buf.Len() == 0 {
				if trimmed == "" || strings.HasPrefix(trimmed, "--") {
					skip = true
				} else if d, ok := delimiterDirective(trimmed); ok {
					s.delimiter = d
					skip = true
				} else {
					start = s.line
				}
			}
			if !skip {
				if s.buf.Len()+len(line) > consts.MaxStatementSize {
					return Statement{}, fmt.Errorf("statement at line %d exceeds %d bytes", start, consts.MaxStatementSize)
				}
				s.buf.WriteString(line)
				if strings.HasSuffix(trimmed, s.delimiter) {
					return s.flush(start), nil
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				if strings.TrimSpace(s.buf.String()) != "" {
					return s.flush(start), nil
				}
				return Statement{}, io.EOF
			}
			return Statement{}, err
		}
	}
}

func (s *StatementReader) flush(start int) Statement {
	text := strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	if s.delimiter != ";" {
		text = strings.TrimSpace(strings.TrimSuffix(text, s.delimiter))
	}
	return Statement{Text: text, Line: start}
}

func delimiterDirective(line string) (string, bool) {
	if len(line) < 10 || !strings.EqualFold(line[:9], "DELIMITER") {
		return "", false
	}
	d := strings.TrimSpace(line[9:])
	if d == "" {
		return "", false
	}
	return d, true
}

// ReadStatements reads every statement of r.
func ReadStatements(r io.Reader) ([]Statement, error) {
	sr := NewStatementReader(r)
	var out []Statement
	for {
		st, err := sr.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
}
