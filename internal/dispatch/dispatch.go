// Package dispatch provides a serial execution queue used as the fixed
// delivery context for client completion callbacks. Whatever goroutine
// produced a result, the callback runs on the queue's single goroutine, so
// callers never need their own synchronization.
package dispatch

import "sync"

// Queue runs submitted functions one at a time, in submission order, on a
// dedicated goroutine.
type Queue struct {
	tasks chan func()
	wg    sync.WaitGroup

	closeOnce sync.Once
}

// NewQueue creates a queue and starts its goroutine.
func NewQueue() *Queue {
	q := &Queue{tasks: make(chan func(), 64)}
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *Queue) run() {
	defer q.wg.Done()
	for fn := range q.tasks {
		fn()
	}
}

// Submit enqueues fn for execution. It blocks only if the queue's buffer is
// full. Submitting to a closed queue panics, same as sending on a closed
// channel; close the queue only after all producers are done.
func (q *Queue) Submit(fn func()) {
	q.tasks <- fn
}

// Close stops the queue after draining already-submitted tasks and waits
// for the goroutine to exit. Safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.tasks)
	})
	q.wg.Wait()
}
