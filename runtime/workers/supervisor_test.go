package workers

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type scriptedWorker struct {
	calls atomic.Int64
	run   func(ctx context.Context) error
}

func (w *scriptedWorker) Run(ctx context.Context) error {
	w.calls.Add(1)
	return w.run(ctx)
}

func TestSupervisor_RestartOnPanic(t *testing.T) {
	req := require.New(t)
	worker := &scriptedWorker{run: func(context.Context) error {
		panic("boom")
	}}

	sup := NewSupervisor(slog.Default(), 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	go sup.Add(worker).Run(ctx)

	// Waiting for panics and restarts
	time.Sleep(500 * time.Millisecond)

	req.GreaterOrEqual(worker.calls.Load(), int64(2))
}

func TestSupervisor_StopOnSuccess(t *testing.T) {
	req := require.New(t)
	worker := &scriptedWorker{run: func(context.Context) error {
		return nil
	}}

	sup := NewSupervisor(slog.Default(), 50*time.Millisecond)
	done := make(chan struct{})

	go func() {
		sup.Add(worker).Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
		// A clean return is final, no restart
		req.EqualValues(1, worker.calls.Load())
	case <-time.After(500 * time.Millisecond):
		req.Fail("Supervisor should have stopped after worker success")
	}
}

func TestSupervisor_StopOnCancel(t *testing.T) {
	req := require.New(t)
	worker := &scriptedWorker{run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}

	sup := NewSupervisor(slog.Default(), 50*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sup.Add(worker).Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		req.EqualValues(1, worker.calls.Load())
	case <-time.After(500 * time.Millisecond):
		req.Fail("Supervisor should have stopped on context cancel")
	}
}
