// Package future provides a single-assignment asynchronous result and the
// dispatch primitives used to resume work on an owning event loop.
//
// A Future is resolved once, from any goroutine. Callbacks registered with
// OnComplete run on the resolving goroutine; OnCompleteOn re-posts them to a
// Dispatcher so state owned by a single loop is only touched from that loop.
//
//	f := future.Go(func() (Thumbnail, error) {
//	    return readThumbnail(file)
//	})
//	f.OnCompleteOn(session, func(t Thumbnail, err error) {
//	    // runs on the session loop
//	})
package future

import (
	"context"
	"sync"
)

// State represents the current state of a future.
type State int

const (
	Pending State = iota // Not resolved yet
	Ready                // Resolved with a value
	Failed               // Resolved with an error
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Future is a value that becomes available later.
type Future[T any] struct {
	mu        sync.Mutex
	state     State
	value     T
	err       error
	done      chan struct{}
	callbacks []func(T, error)
}

// Resolver completes a future. Only the first call has an effect.
type Resolver[T any] func(value T, err error)

// New returns a pending future and the function that resolves it.
func New[T any]() (*Future[T], Resolver[T]) {
	f := &Future[T]{done: make(chan struct{})}
	return f, f.resolve
}

// Go runs fn on a new goroutine and resolves the future with its result.
func Go[T any](fn func() (T, error)) *Future[T] {
	f, resolve := New[T]()
	go func() {
		v, err := fn()
		resolve(v, err)
	}()
	return f
}

// Resolved returns a future that is already ready with v.
func Resolved[T any](v T) *Future[T] {
	f, resolve := New[T]()
	resolve(v, nil)
	return f
}

// Rejected returns a future that has already failed with err.
func Rejected[T any](err error) *Future[T] {
	f, resolve := New[T]()
	var zero T
	resolve(zero, err)
	return f
}

func (f *Future[T]) resolve(v T, err error) {
	f.mu.Lock()
	if f.state != Pending {
		f.mu.Unlock()
		return
	}
	f.value, f.err = v, err
	if err != nil {
		f.state = Failed
	} else {
		f.state = Ready
	}
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(v, err)
	}
}

// State returns the current state.
func (f *Future[T]) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Done returns a channel that is closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// OnComplete registers fn to run once the future resolves. If it already
// has, fn runs immediately on the calling goroutine.
func (f *Future[T]) OnComplete(fn func(T, error)) {
	f.mu.Lock()
	if f.state == Pending {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	v, err := f.value, f.err
	f.mu.Unlock()
	fn(v, err)
}

// OnCompleteOn is OnComplete with fn posted to d instead of run inline.
func (f *Future[T]) OnCompleteOn(d Dispatcher, fn func(T, error)) {
	f.OnComplete(func(v T, err error) {
		d.Dispatch(func() { fn(v, err) })
	})
}
