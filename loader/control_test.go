package loader

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControl_PauseBlocksUntilResume(t *testing.T) {
	c := NewControl()
	require.NoError(t, c.WaitIfPaused(context.Background()))

	c.Pause()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.WaitIfPaused(ctx), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- c.WaitIfPaused(context.Background()) }()
	c.Resume()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitIfPaused did not return after Resume")
	}
}

func TestControl_InterruptAsksForConfirmation(t *testing.T) {
	c := NewControl()
	stopped := 0
	c.OnShutdown(func() { stopped++ })

	c.confirm = func() bool { return false }
	c.handle(syscall.SIGINT)
	assert.False(t, c.Stopping())
	require.NoError(t, c.WaitIfPaused(context.Background()))

	c.confirm = func() bool { return true }
	c.handle(syscall.SIGINT)
	assert.True(t, c.Stopping())
	assert.Equal(t, 1, stopped)
	require.NoError(t, c.WaitIfPaused(context.Background()))

	c.handle(syscall.SIGTERM)
	assert.Equal(t, 1, stopped)
}

func TestControl_TerminateStopsAtOnce(t *testing.T) {
	c := NewControl()
	c.confirm = func() bool {
		t.Fatal("SIGTERM must not ask")
		return false
	}
	c.handle(syscall.SIGTERM)
	assert.True(t, c.Stopping())
}

func TestControl_RecordAndPending(t *testing.T) {
	c := NewControl()
	c.Record("a.sql")
	c.Record("")
	c.Record("b.sql")
	assert.ElementsMatch(t, []string{"a.sql", "b.sql"}, c.Pending())
	assert.Empty(t, c.Pending())
}
