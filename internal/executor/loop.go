package executor

import (
	"context"
	"sync"
)

// Dispatcher schedules a task on the single goroutine that owns run state,
// surface updates and completion callbacks.
type Dispatcher interface {
	Post(fn func())
}

// Loop is an unbounded FIFO task queue. Post never blocks, so tasks running on
// the loop may post follow-up tasks.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
}

func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run executes queued tasks on the calling goroutine until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	return l.Drain(ctx, func(fn func()) { fn() })
}

// Drain hands queued tasks, in order, to sink. Use it to forward tasks to a
// loop owned by someone else, such as a bubbletea program.
func (l *Loop) Drain(ctx context.Context, sink func(fn func())) error {
	defer l.close()

	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			sink(fn)
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Loop) close() {
	l.mu.Lock()
	l.closed = true
	l.queue = nil
	l.mu.Unlock()
}
