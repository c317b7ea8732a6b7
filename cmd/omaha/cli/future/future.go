// Package future provides a value that is produced once, in the background,
// and read by any number of callers.
package future

import (
	"context"
	"fmt"
	"sync"
)

// Future holds the eventual result of a single computation.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

// New returns an unresolved Future. Resolve it exactly once with Resolve.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Go runs fn on a new goroutine and resolves the returned Future with its
// result. A panic in fn resolves the Future with an error instead of
// crashing the process.
func Go[T any](fn func() (T, error)) *Future[T] {
	f := New[T]()
	go func() {
		var (
			value T
			err   error
		)
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("future panicked: %v", r)
			}
			f.Resolve(value, err)
		}()
		value, err = fn()
	}()
	return f
}

// Resolved returns a Future that already holds value and err.
func Resolved[T any](value T, err error) *Future[T] {
	f := New[T]()
	f.Resolve(value, err)
	return f
}

// Resolve stores the result and wakes all waiters. Later calls are ignored.
func (f *Future[T]) Resolve(value T, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// Done is closed once the Future has been resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Get blocks until the Future is resolved or ctx is done.
// An unresolved Future blocks forever under context.Background().
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("waiting for result: %w", ctx.Err())
	}
}
