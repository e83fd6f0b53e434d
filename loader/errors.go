package loader

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ainilili/dumploader/log"
	"github.com/ainilili/dumploader/model"
)

// ErrFatal wraps every condition that stops the run immediately.
var ErrFatal = errors.New("fatal")

// ErrFailed is returned when the run finished with counted errors.
var ErrFailed = errors.New("restore finished with errors")

// ErrNoObjectName marks a view or sequence schema file without a table part.
var ErrNoObjectName = errors.New("no object name in schema filename")

type Category int

const (
	CategorySchema Category = iota
	CategoryData
	CategoryIndex
	CategoryTrigger
	CategoryConstraint
	CategoryView
	CategorySequence
	CategoryTablespace
	CategoryPost
	CategoryChecksum
	CategoryRetries
	CategoryDataWarnings
	numCategories
)

var categoryNames = [numCategories]string{
	"schema", "data", "index", "trigger", "constraint", "view", "sequence",
	"tablespace", "post", "checksum", "retries", "data_warnings",
}

func (c Category) String() string {
	return categoryNames[c]
}

// counted reports whether the category makes the run fail.
func (c Category) counted() bool {
	return c != CategoryRetries && c != CategoryDataWarnings
}

func categoryOf(o model.ObjectType) Category {
	switch o {
	case model.ObjectData:
		return CategoryData
	case model.ObjectIndex:
		return CategoryIndex
	case model.ObjectTrigger:
		return CategoryTrigger
	case model.ObjectConstraint:
		return CategoryConstraint
	case model.ObjectView:
		return CategoryView
	case model.ObjectSequence:
		return CategorySequence
	case model.ObjectTablespace:
		return CategoryTablespace
	case model.ObjectPost:
		return CategoryPost
	}
	return CategorySchema
}

// ErrorCounters aggregates errors per category.
type ErrorCounters struct {
	counts [numCategories]atomic.Uint64
	total  atomic.Uint64
	max    uint64
}

// NewErrorCounters fails the run once more than max errors were counted;
// zero disables the limit.
func NewErrorCounters(max uint64) *ErrorCounters {
	return &ErrorCounters{max: max}
}

func (e *ErrorCounters) Add(c Category, n int) {
	if n <= 0 {
		return
	}
	e.counts[c].Add(uint64(n))
	if c.counted() {
		e.total.Add(uint64(n))
	}
}

func (e *ErrorCounters) Get(c Category) uint64 {
	return e.counts[c].Load()
}

// Total is the number of errors that fail the run.
func (e *ErrorCounters) Total() uint64 {
	return e.total.Load()
}

// Check returns a fatal error once the configured maximum is exceeded.
func (e *ErrorCounters) Check() error {
	if e.max > 0 {
		if total := e.Total(); total > e.max {
			return fmt.Errorf("%w: %d errors exceed max_errors %d", ErrFatal, total, e.max)
		}
	}
	return nil
}

// Snapshot returns the non-zero counters by name.
func (e *ErrorCounters) Snapshot() map[string]uint64 {
	out := map[string]uint64{}
	for c := Category(0); c < numCategories; c++ {
		if v := e.counts[c].Load(); v > 0 {
			out[c.String()] = v
		}
	}
	return out
}

// Report logs every non-zero counter.
func (e *ErrorCounters) Report() {
	for c := Category(0); c < numCategories; c++ {
		v := e.counts[c].Load()
		if v == 0 {
			continue
		}
		if c.counted() {
			log.Errorf("%s errors: %d", c, v)
		} else {
			log.Warnf("%s: %d", c, v)
		}
	}
}
