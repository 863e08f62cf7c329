package future

import "sync"

// Dispatcher posts a function to the goroutine that owns some state.
// Dispatch must be safe to call from any goroutine.
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(fn func())

// Dispatch calls d(fn).
func (d DispatcherFunc) Dispatch(fn func()) {
	d(fn)
}

// Inline runs posted functions immediately on the posting goroutine.
var Inline Dispatcher = DispatcherFunc(func(fn func()) { fn() })

// Queue buffers posted functions until Drain runs them in order.
// It is the loop used by tests to control completion ordering.
type Queue struct {
	mu  sync.Mutex
	fns []func()
}

// Dispatch appends fn to the queue.
func (q *Queue) Dispatch(fn func()) {
	q.mu.Lock()
	q.fns = append(q.fns, fn)
	q.mu.Unlock()
}

// Len returns the number of queued functions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fns)
}

// RunOne runs the oldest queued function. It reports false if none was queued.
func (q *Queue) RunOne() bool {
	q.mu.Lock()
	if len(q.fns) == 0 {
		q.mu.Unlock()
		return false
	}
	fn := q.fns[0]
	q.fns = q.fns[1:]
	q.mu.Unlock()

	fn()
	return true
}

// Drain runs queued functions, including ones posted while draining,
// until the queue is empty. It returns how many ran.
func (q *Queue) Drain() int {
	n := 0
	for q.RunOne() {
		n++
	}
	return n
}
