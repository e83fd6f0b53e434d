package database

import (
	"context"
	"sync"
)

// Pool is a fixed set of connections created at startup.
type Pool struct {
	idle  chan *Conn
	conns []*Conn
	once  sync.Once
}

// NewPool dials size connections. commitEvery is the number of data
// statements per transaction, 0 for none.
func NewPool(ctx context.Context, size int, dial Dialer, vars *SessionVars, commitEvery int) (*Pool, error) {
	p := &Pool{idle: make(chan *Conn, size)}
	for i := 0; i < size; i++ {
		c := newConn(i+1, dial, vars, commitEvery)
		if err := c.connect(ctx); err != nil {
			p.Close()
			return nil, err
		}
		c.start(ctx)
		p.conns = append(p.conns, c)
		p.idle <- c
	}
	return p, nil
}

// Acquire blocks until a connection is idle.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	select {
	case c := <-p.idle:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire returns an idle connection if one is available right now.
func (p *Pool) TryAcquire() (*Conn, bool) {
	select {
	case c := <-p.idle:
		return c, true
	default:
		return nil, false
	}
}

func (p *Pool) Release(c *Conn) {
	p.idle <- c
}

func (p *Pool) Size() int {
	return len(p.conns)
}

// Idle returns the number of connections not handed out.
func (p *Pool) Idle() int {
	return len(p.idle)
}

// Close stops every connection worker and closes its session.
func (p *Pool) Close() {
	p.once.Do(func() {
		var wg sync.WaitGroup
		for _, c := range p.conns {
			wg.Add(1)
			go func(c *Conn) {
				defer wg.Done()
				c.close()
			}(c)
		}
		wg.Wait()
	})
}
