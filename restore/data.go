package restore

import (
	"errors"
	"fmt"
	"io"

	"github.com/ainilili/dumploader/consts"
	"github.com/ainilili/dumploader/database"
	"github.com/ainilili/dumploader/file"
	"github.com/ainilili/dumploader/log"
	"github.com/ainilili/dumploader/model"
	"github.com/ainilili/dumploader/parser"
	"github.com/go-sql-driver/mysql"
)

type lane struct {
	conn        *database.Conn
	outstanding int
	extra       bool
}

// pipeline spreads the statements of one data file over its lanes. The
// first lane is the caller's connection; the others are escalated.
type pipeline struct {
	r       *Restorer
	job     *model.RestoreJob
	res     *Result
	lanes   []*lane
	next    int
	session []string
}

// DataFile loads one data chunk. conn stays owned by the caller.
func (r *Restorer) DataFile(conn *database.Conn, job *model.RestoreJob) (Result, error) {
	var res Result
	rc, err := file.Open(r.path(job.Filename))
	if err != nil {
		return res, err
	}
	defer rc.Close()

	p := &pipeline{r: r, job: job, res: &res}
	if err := p.add(conn, false); err != nil {
		res.record(job.Filename, 0, err, nil)
		return res, nil
	}
	err = p.run(file.NewStatementReader(rc))
	p.close()
	return res, err
}

func (p *pipeline) run(sr *file.StatementReader) error {
	for {
		st, err := sr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", p.job.Filename, err)
		}
		if name, ok := parser.LoadDataFile(st.Text); ok {
			p.loadData(name, st)
			continue
		}
		if !parser.IsDataStatement(st.Text) {
			p.broadcast(st)
			continue
		}
		parts := parser.SplitInsert(st.Text, p.r.opts.Rows)
		if len(parts) > 1 {
			p.escalate(len(parts))
		}
		for _, part := range parts {
			p.submit(p.pick(), database.Request{Kind: database.RequestInsert, SQL: part, Line: st.Line})
		}
	}
}

func (p *pipeline) add(conn *database.Conn, extra bool) error {
	if p.job.Database != nil {
		if err := conn.Use(p.job.Database.TargetName); err != nil {
			return err
		}
	}
	for _, s := range p.session {
		if err := conn.Exec(s); err != nil {
			log.Warnf("%s: replaying %q on connection %d: %v", p.job.Filename, s, conn.ID, err)
		}
	}
	if p.r.opts.Transactions {
		if err := conn.Begin(); err != nil {
			return err
		}
	}
	p.lanes = append(p.lanes, &lane{conn: conn, extra: extra})
	return nil
}

func (p *pipeline) pick() *lane {
	l := p.lanes[p.next%len(p.lanes)]
	p.next++
	return l
}

func (p *pipeline) submit(l *lane, req database.Request) {
	if l.outstanding >= consts.PipelineDepth {
		p.collect(l)
	}
	l.conn.Submit(req)
	l.outstanding++
}

func (p *pipeline) collect(l *lane) {
	resp := l.conn.Result()
	l.outstanding--
	if errors.Is(resp.Err, database.ErrTransactionLost) {
		resp.Err = fmt.Errorf("%s: %w", p.job.Filename, resp.Err)
	}
	p.res.record(p.job.Filename, resp.Request.Line, resp.Err, p.r.ignored)
}

func (p *pipeline) drain() {
	for _, l := range p.lanes {
		for l.outstanding > 0 {
			p.collect(l)
		}
	}
}

// broadcast runs a session statement on every lane and remembers it for
// lanes added later.
func (p *pipeline) broadcast(st file.Statement) {
	p.session = append(p.session, st.Text)
	for _, l := range p.lanes {
		p.submit(l, database.Request{Kind: database.RequestStatement, SQL: st.Text, Line: st.Line})
	}
}

// escalate borrows idle connections for a statement split into n parts,
// each one taking a loader slot of the table.
func (p *pipeline) escalate(n int) {
	t := p.job.Table
	if t == nil || p.r.pool == nil {
		return
	}
	for len(p.lanes) < p.r.opts.MaxConnectionsPerJob && len(p.lanes) < n {
		if !t.ReserveExtraThread() {
			return
		}
		conn, ok := p.r.pool.TryAcquire()
		if !ok {
			t.ReleaseExtraThread()
			p.r.wake()
			return
		}
		if err := p.add(conn, true); err != nil {
			log.Warnf("%s: escalated connection %d: %v", p.job.Filename, conn.ID, err)
			p.r.pool.Release(conn)
			t.ReleaseExtraThread()
			p.r.wake()
			return
		}
		log.Debugf("%s: escalated to %d connections", p.job.Filename, len(p.lanes))
	}
}

// loadData streams a side file through the driver's reader handler.
func (p *pipeline) loadData(name string, st file.Statement) {
	handler := p.job.Filename + "/" + name
	path := p.r.path(name)
	mysql.RegisterReaderHandler(handler, func() io.Reader {
		rc, err := file.Open(path)
		if err != nil {
			return errReader{err}
		}
		return rc
	})
	defer mysql.DeregisterReaderHandler(handler)

	sql := parser.RewriteLoadData(st.Text, "Reader::"+handler)
	p.submit(p.lanes[0], database.Request{Kind: database.RequestInsert, SQL: sql, Line: st.Line})
	p.drain()
}

func (p *pipeline) close() {
	p.drain()
	for _, l := range p.lanes {
		if p.r.opts.Transactions {
			if err := l.conn.Commit(); err != nil {
				p.res.record(p.job.Filename, 0, err, p.r.ignored)
			}
		}
		if l.extra {
			p.r.pool.Release(l.conn)
			p.job.Table.ReleaseExtraThread()
			p.r.wake()
		}
	}
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }
