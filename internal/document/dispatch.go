package document

import (
	"context"
	"errors"
	"sync"
)

// ErrDispatcherClosed is returned by Do after Close.
var ErrDispatcherClosed = errors.New("document: dispatcher closed")

// Dispatcher runs submitted functions one at a time on a single goroutine. Document mutations go through it so they never interleave, as if they ran on an
// editor's UI thread.
//
// A nil *Dispatcher runs functions inline on the caller's goroutine.
type Dispatcher struct {
	jobs      chan job
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type job struct {
	ctx    context.Context
	fn     func() error
	result chan error
}

// NewDispatcher starts a Dispatcher. Close stops it.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		jobs: make(chan job),
		done: make(chan struct{}),
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case j := <-d.jobs:
			if err := j.ctx.Err(); err != nil {
				j.result <- err
				continue
			}
			j.result <- j.fn()
		}
	}
}

// Do runs fn on the dispatcher goroutine and returns its error. If ctx is done before fn starts, fn is not run and ctx.Err() is returned. Once fn has
// started, Do waits for it to finish.
func (d *Dispatcher) Do(ctx context.Context, fn func() error) error {
	if d == nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn()
	}

	j := job{ctx: ctx, fn: fn, result: make(chan error, 1)}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrDispatcherClosed
	case d.jobs <- j:
	}
	return <-j.result
}

// Close stops the dispatcher after any running function returns. It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		close(d.done)
	})
	d.wg.Wait()
}
