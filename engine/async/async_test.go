package async

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
)

func newTestPool(t *testing.T, size int) *Pool {
	p, err := NewPool(size)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(p.Shutdown)
	return p
}

func TestAppendJob(t *testing.T) {
	p := newTestPool(t, 4)
	var wait sync.WaitGroup
	wait.Add(2)
	p.AppendJob("1", func() (res interface{}, err error) {
		wait.Done()
		return 1, nil
	}, func(res interface{}, err error) {
		assert.Equal(t, 1, res.(int))
		assert.Equal(t, nil, err)
		wait.Done()
	})
	wait.Wait()
}

func TestGroupFIFO(t *testing.T) {
	p := newTestPool(t, 8)
	var lock sync.Mutex
	var order []int
	var wait sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wait.Add(1)
		p.AppendJob("player", func() (interface{}, error) {
			if i%7 == 0 {
				time.Sleep(time.Millisecond)
			}
			lock.Lock()
			order = append(order, i)
			lock.Unlock()
			wait.Done()
			return nil, nil
		}, nil)
	}
	wait.Wait()
	for i := range order {
		assert.Equal(t, i, order[i])
	}
}

func TestGroupPanicDoesNotStall(t *testing.T) {
	p := newTestPool(t, 2)
	done := make(chan struct{})
	p.AppendJob("g", func() (interface{}, error) {
		panic("boom")
	}, nil)
	p.AppendJob("g", func() (interface{}, error) {
		close(done)
		return nil, nil
	}, nil)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("group stalled after panic")
	}
}

func TestFutureTimeout(t *testing.T) {
	p := newTestPool(t, 2)
	release := make(chan struct{})
	f := Run(p, "slow", 20*time.Millisecond, func() (int, error) {
		<-release
		return 1, nil
	})
	_, err := f.Wait(context.Background())
	assert.Equal(t, ErrTimeout, err)
	close(release)

	next := Run(p, "slow", time.Second, func() (int, error) {
		return 2, nil
	})
	v, err := next.Wait(context.Background())
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, v)

	// the late result of the timed out call is dropped
	v, err, ok := f.Result()
	assert.T(t, ok, "completed")
	assert.Equal(t, ErrTimeout, err)
	assert.Equal(t, 0, v)
}

func TestFutureThen(t *testing.T) {
	p := newTestPool(t, 2)
	f := NewFuture[string](p)
	got := make(chan string, 2)
	f.Then(func(s string, err error) { got <- s })
	assert.T(t, f.Complete("a", nil), "first completion wins")
	assert.T(t, !f.Complete("b", nil), "second completion ignored")
	f.Then(func(s string, err error) { got <- s })
	assert.Equal(t, "a", <-got)
	assert.Equal(t, "a", <-got)
}

func TestMap(t *testing.T) {
	f := Map(Completed(nil, 2, nil), func(v int) int { return v * 10 })
	v, err := f.Wait(context.Background())
	assert.Equal(t, nil, err)
	assert.Equal(t, 20, v)

	bad := errors.New("bad")
	f = Map(Completed(nil, 0, bad), func(v int) int { return v })
	_, err = f.Wait(context.Background())
	assert.Equal(t, bad, err)
}

func TestShutdown(t *testing.T) {
	p, err := NewPool(2)
	assert.Equal(t, nil, err)
	var ran bool
	p.Submit(func() {
		time.Sleep(10 * time.Millisecond)
		ran = true
	})
	p.Shutdown()
	assert.T(t, ran, "shutdown waits for running jobs")
	assert.Equal(t, ErrPoolClosed, p.Submit(func() {}))
	f := Run(p, "g", 0, func() (int, error) { return 1, nil })
	_, err = f.Wait(context.Background())
	assert.Equal(t, ErrPoolClosed, err)
}

func TestChain(t *testing.T) {
	p := newTestPool(t, 2)
	f := Chain(Completed(p, 2, nil), func(v int) *Future[string] {
		return Run(p, "chain", time.Second, func() (string, error) {
			return strconv.Itoa(v * 21), nil
		})
	})
	val, err := f.Wait(context.Background())
	assert.Equal(t, nil, err)
	assert.Equal(t, "42", val)

	called := false
	g := Chain(Failed[int](p, ErrTimeout), func(v int) *Future[int] {
		called = true
		return Completed(p, v, nil)
	})
	_, err = g.Wait(context.Background())
	assert.Equal(t, ErrTimeout, err)
	assert.T(t, !called)
}

// thenReturnsFirst reports whether Then returned before cb started
func thenReturnsFirst[T any](f *Future[T]) bool {
	returned := make(chan struct{})
	ran := make(chan bool, 1)
	f.Then(func(T, error) {
		select {
		case <-returned:
			ran <- true
		case <-time.After(time.Second):
			ran <- false
		}
	})
	close(returned)
	return <-ran
}

func TestCompletedCallbacksRunOnPool(t *testing.T) {
	p := newTestPool(t, 4)
	assert.T(t, thenReturnsFirst(Completed(p, 1, nil)), "Completed")
	assert.T(t, thenReturnsFirst(Failed[int](p, ErrTimeout)), "Failed")

	mapped := Map(Completed(p, 1, nil), func(v int) int { return v + 1 })
	<-mapped.Done()
	assert.T(t, thenReturnsFirst(mapped), "Map")

	chained := Chain(Completed(p, 1, nil), func(v int) *Future[int] { return Completed(p, v, nil) })
	<-chained.Done()
	assert.T(t, thenReturnsFirst(chained), "Chain")
}
