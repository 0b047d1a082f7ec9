package db

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Do once the queue has been closed.
var ErrClosed = errors.New("queue closed")

// Queue runs submitted tasks one at a time, in arrival order, on a single
// worker goroutine. A task must not submit to its own queue.
type Queue struct {
	tasks chan *task
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once
}

type task struct {
	ctx context.Context
	fn  func(context.Context) error
	err chan error
}

// NewQueue starts the worker.
func NewQueue() *Queue {
	q := &Queue{
		tasks: make(chan *task),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go q.loop()
	return q
}

// Do runs fn on the worker and returns its error. A context cancelled
// before fn starts skips it; once started fn always runs to completion
// and Do waits for it.
func (q *Queue) Do(ctx context.Context, fn func(context.Context) error) error {
	t := &task{ctx: ctx, fn: fn, err: make(chan error, 1)}
	select {
	case q.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-q.quit:
		return ErrClosed
	}
	return <-t.err
}

// Close stops accepting tasks and waits for the running one to finish.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.quit) })
	<-q.done
}

func (q *Queue) loop() {
	defer close(q.done)
	for {
		select {
		case t := <-q.tasks:
			if err := t.ctx.Err(); err != nil {
				t.err <- err
				continue
			}
			t.err <- t.fn(t.ctx)
		case <-q.quit:
			return
		}
	}
}
