package loader

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/ainilili/dumploader/log"
	"github.com/ainilili/dumploader/queue"
	"golang.org/x/term"
)

// Control owns pause, shutdown and the list of files left undone.
type Control struct {
	mu   sync.Mutex
	gate chan struct{}

	stopping atomic.Bool
	pending  *queue.Queue[string]
	// confirm asks whether an interrupt should stop the run.
	confirm func() bool
	onStop  []func()
}

func NewControl() *Control {
	return &Control{
		pending: queue.New[string](1),
		confirm: confirmOnTerminal,
	}
}

// OnShutdown registers fn to run once when shutdown starts.
func (c *Control) OnShutdown(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStop = append(c.onStop, fn)
}

// Pause makes WaitIfPaused block until Resume.
func (c *Control) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gate == nil {
		c.gate = make(chan struct{})
	}
}

func (c *Control) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gate != nil {
		close(c.gate)
		c.gate = nil
	}
}

func (c *Control) WaitIfPaused(ctx context.Context) error {
	c.mu.Lock()
	g := c.gate
	c.mu.Unlock()
	if g == nil {
		return nil
	}
	select {
	case <-g:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown flips the run into checkpoint mode: jobs dispatched from now on
// are recorded instead of executed.
func (c *Control) Shutdown() {
	if !c.stopping.CompareAndSwap(false, true) {
		return
	}
	log.Warnf("shutdown requested, unfinished files will be written to the resume file")
	c.mu.Lock()
	fns := c.onStop
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (c *Control) Stopping() bool {
	return c.stopping.Load()
}

// Record remembers a file that was not processed.
func (c *Control) Record(filename string) {
	if filename != "" {
		c.pending.Push(0, filename)
	}
}

// Pending drains the recorded files.
func (c *Control) Pending() []string {
	return c.pending.Drain()
}

// Watch handles SIGINT and SIGTERM until ctx is done. An interrupt pauses
// the loaders and asks for confirmation; a termination stops right away.
func (c *Control) Watch(ctx context.Context) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			c.handle(sig)
		}
	}
}

func (c *Control) handle(sig os.Signal) {
	if sig == syscall.SIGTERM {
		c.Shutdown()
		return
	}
	if c.Stopping() {
		return
	}
	c.Pause()
	log.Warnf("interrupted, loader threads paused")
	if c.confirm() {
		c.Shutdown()
	}
	c.Resume()
}

// confirmOnTerminal asks on the controlling terminal; without one an
// interrupt always stops.
func confirmOnTerminal() bool {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return true
	}
	fmt.Fprint(os.Stderr, "Stop the restore and write the resume file? [y/N] ")
	old, err := term.MakeRaw(fd)
	if err != nil {
		return true
	}
	defer func() {
		_ = term.Restore(fd, old)
		fmt.Fprintln(os.Stderr)
	}()
	b := make([]byte, 1)
	if _, err := os.Stdin.Read(b); err != nil {
		return true
	}
	return b[0] == 'y' || b[0] == 'Y'
}
