package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/ainilili/dumploader/consts"
	"github.com/ainilili/dumploader/log"
)

type RequestKind int

const (
	// RequestStatement runs one statement outside the commit counter.
	RequestStatement RequestKind = iota
	// RequestInsert runs one data statement and counts toward commit-every-N.
	RequestInsert
	// RequestUse switches the default database when it differs.
	RequestUse
	// RequestBegin opens a commit-every-N transaction.
	RequestBegin
	// RequestCommit closes it.
	RequestCommit
	// RequestClose stops the connection worker.
	RequestClose
)

type Request struct {
	Kind RequestKind
	SQL  string
	// Line is the dump file line the statement started on.
	Line int
}

type Response struct {
	Request Request
	Err     error
	Code    uint16
}

// Conn is one server session driven by its own goroutine. Requests are
// pipelined through in and answered in order on out.
type Conn struct {
	ID int

	dial        Dialer
	vars        *SessionVars
	commitEvery int

	session     Session
	varsVersion uint64
	currentDB   string
	usedDB      string
	inTx        bool
	txCount     int

	in   chan Request
	out  chan Response
	done chan struct{}
}

func newConn(id int, dial Dialer, vars *SessionVars, commitEvery int) *Conn {
	return &Conn{
		ID:          id,
		dial:        dial,
		vars:        vars,
		commitEvery: commitEvery,
		in:          make(chan Request, consts.PipelineDepth),
		out:         make(chan Response, consts.PipelineDepth),
		done:        make(chan struct{}),
	}
}

func (c *Conn) start(ctx context.Context) {
	go c.loop(ctx)
}

func (c *Conn) loop(ctx context.Context) {
	defer close(c.done)
	for req := range c.in {
		if req.Kind == RequestClose {
			if c.session != nil {
				_ = c.session.Close()
				c.session = nil
			}
			return
		}
		err := c.handle(ctx, req)
		c.out <- Response{Request: req, Err: err, Code: ErrorCode(err)}
	}
}

// Submit queues a request without waiting. At most consts.PipelineDepth
// requests may be outstanding before Result is read.
func (c *Conn) Submit(req Request) {
	c.in <- req
}

// Result waits for the oldest outstanding request.
func (c *Conn) Result() Response {
	return <-c.out
}

// Do submits a request and waits for its answer.
func (c *Conn) Do(req Request) Response {
	c.Submit(req)
	return c.Result()
}

func (c *Conn) Exec(sql string) error {
	return c.Do(Request{Kind: RequestStatement, SQL: sql}).Err
}

func (c *Conn) Use(db string) error {
	return c.Do(Request{Kind: RequestUse, SQL: db}).Err
}

func (c *Conn) Begin() error {
	return c.Do(Request{Kind: RequestBegin}).Err
}

func (c *Conn) Commit() error {
	return c.Do(Request{Kind: RequestCommit}).Err
}

func (c *Conn) close() {
	c.in <- Request{Kind: RequestClose}
	<-c.done
}

func (c *Conn) handle(ctx context.Context, req Request) error {
	switch req.Kind {
	case RequestUse:
		c.currentDB = req.SQL
		if err := c.ensure(ctx); err != nil {
			return err
		}
		return nil
	case RequestBegin:
		if c.inTx {
			return nil
		}
		if err := c.execute(ctx, "START TRANSACTION"); err != nil {
			return err
		}
		c.inTx = true
		c.txCount = 0
		return nil
	case RequestCommit:
		if !c.inTx {
			return nil
		}
		err := c.execute(ctx, "COMMIT")
		c.inTx = false
		c.txCount = 0
		return err
	case RequestInsert:
		if err := c.execute(ctx, req.SQL); err != nil {
			return err
		}
		if c.inTx {
			c.txCount++
			if c.commitEvery > 0 && c.txCount >= c.commitEvery {
				if err := c.execute(ctx, "COMMIT"); err != nil {
					return err
				}
				c.txCount = 0
				return c.execute(ctx, "START TRANSACTION")
			}
		}
		return nil
	default:
		return c.execute(ctx, req.SQL)
	}
}

// ensure dials when needed, replays changed session variables and switches
// to the wanted database.
func (c *Conn) ensure(ctx context.Context) error {
	if c.session == nil {
		if err := c.connect(ctx); err != nil {
			return err
		}
	}
	if v := c.vars.Version(); v != c.varsVersion {
		c.applyVars(ctx)
	}
	if c.currentDB != "" && c.currentDB != c.usedDB {
		if _, err := c.session.ExecContext(ctx, useStatement(c.currentDB)); err != nil {
			return err
		}
		c.usedDB = c.currentDB
	}
	return nil
}

func (c *Conn) connect(ctx context.Context) error {
	s, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("connection %d: %w", c.ID, err)
	}
	c.session = s
	c.varsVersion = 0
	c.usedDB = ""
	return nil
}

func (c *Conn) applyVars(ctx context.Context) {
	version, stmts := c.vars.Snapshot()
	for _, stmt := range stmts {
		if _, err := c.session.ExecContext(ctx, stmt); err != nil {
			log.Warnf("connection %d: %s: %v", c.ID, stmt, err)
		}
	}
	c.varsVersion = version
}

// execute runs sql, reconnecting and retrying once when the session is gone.
func (c *Conn) execute(ctx context.Context, sql string) error {
	if err := c.ensure(ctx); err != nil {
		return err
	}
	_, err := c.session.ExecContext(ctx, sql)
	if err == nil || IsServerError(err) || errors.Is(err, context.Canceled) {
		return err
	}
	if pingErr := c.session.PingContext(ctx); pingErr == nil {
		return err
	}

	log.Warnf("connection %d lost (%v), reconnecting", c.ID, err)
	lost := c.inTx && c.txCount > 0
	_ = c.session.Close()
	c.session = nil
	if err := c.ensure(ctx); err != nil {
		c.inTx = false
		return err
	}
	if lost {
		c.inTx = false
		c.txCount = 0
		return ErrTransactionLost
	}
	if c.inTx {
		if _, err := c.session.ExecContext(ctx, "START TRANSACTION"); err != nil {
			return err
		}
	}
	_, err = c.session.ExecContext(ctx, sql)
	return err
}
