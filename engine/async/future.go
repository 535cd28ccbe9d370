package async

import (
	"context"
	"sync"
	"time"

	"github.com/lattice-mc/netsync/engine/nslog"
	"github.com/lattice-mc/netsync/engine/nsutils"
)

// Future is the eventual result of an asynchronous call. It completes exactly once;
// later completions are ignored.
type Future[T any] struct {
	pool *Pool
	done chan struct{}

	lock      sync.Mutex
	completed bool
	val       T
	err       error
	callbacks []func(T, error)
}

// NewFuture creates a pending future whose callbacks are dispatched on pool.
// A nil pool runs callbacks on the completing goroutine.
func NewFuture[T any](pool *Pool) *Future[T] {
	return &Future[T]{
		pool: pool,
		done: make(chan struct{}),
	}
}

// Completed returns an already completed future whose callbacks are dispatched on pool
func Completed[T any](pool *Pool, val T, err error) *Future[T] {
	f := NewFuture[T](pool)
	f.Complete(val, err)
	return f
}

// Complete sets the result and runs registered callbacks. It reports whether this call completed the future.
func (f *Future[T]) Complete(val T, err error) bool {
	f.lock.Lock()
	if f.completed {
		f.lock.Unlock()
		return false
	}
	f.completed = true
	f.val, f.err = val, err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.lock.Unlock()

	for _, cb := range callbacks {
		f.dispatch(cb, val, err)
	}
	return true
}

// Then registers cb to be called with the result once the future completes
func (f *Future[T]) Then(cb func(T, error)) {
	f.lock.Lock()
	if !f.completed {
		f.callbacks = append(f.callbacks, cb)
		f.lock.Unlock()
		return
	}
	val, err := f.val, f.err
	f.lock.Unlock()
	f.dispatch(cb, val, err)
}

func (f *Future[T]) dispatch(cb func(T, error), val T, err error) {
	if f.pool != nil {
		serr := f.pool.Submit(func() { cb(val, err) })
		if serr == nil {
			return
		}
		nslog.Debugf("async: running callback inline: %v", serr)
	}
	nsutils.RunPanicless(func() { cb(val, err) })
}

// Done is closed when the future completes
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result returns the result of a completed future; ok is false while pending
func (f *Future[T]) Result() (val T, err error, ok bool) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.val, f.err, f.completed
}

// Wait blocks until the future completes or ctx is done
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		val, err, _ := f.Result()
		return val, err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Run appends routine to group on pool and returns a future of its result. When timeout
// is positive and elapses first, the future completes with ErrTimeout and the late result
// is dropped.
func Run[T any](pool *Pool, group string, timeout time.Duration, routine func() (T, error)) *Future[T] {
	f := NewFuture[T](pool)
	var timer *time.Timer
	if timeout > 0 {
		timer = time.AfterFunc(timeout, func() {
			var zero T
			f.Complete(zero, ErrTimeout)
		})
	}
	err := pool.AppendJob(group, func() (interface{}, error) {
		val, err := routine()
		if timer != nil {
			timer.Stop()
		}
		f.Complete(val, err)
		return nil, nil
	}, nil)
	if err != nil {
		if timer != nil {
			timer.Stop()
		}
		var zero T
		f.Complete(zero, err)
	}
	return f
}

// Map returns a future of fn applied to the successful result of f. It dispatches on f's pool.
func Map[T, U any](f *Future[T], fn func(T) U) *Future[U] {
	res := NewFuture[U](f.pool)
	f.Then(func(val T, err error) {
		if err != nil {
			var zero U
			res.Complete(zero, err)
			return
		}
		res.Complete(fn(val), nil)
	})
	return res
}

// Failed returns a future already completed with err
func Failed[T any](pool *Pool, err error) *Future[T] {
	var zero T
	return Completed(pool, zero, err)
}

// Chain returns a future completed by the future fn returns for the successful result of f
func Chain[T, U any](f *Future[T], fn func(T) *Future[U]) *Future[U] {
	res := NewFuture[U](f.pool)
	f.Then(func(val T, err error) {
		if err != nil {
			var zero U
			res.Complete(zero, err)
			return
		}
		fn(val).Then(func(u U, err error) {
			res.Complete(u, err)
		})
	})
	return res
}
