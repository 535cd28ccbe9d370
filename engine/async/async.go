package async

import (
	"sync"
	"time"

	"github.com/lattice-mc/netsync/engine/consts"
	"github.com/lattice-mc/netsync/engine/nslog"
	"github.com/lattice-mc/netsync/engine/nsutils"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
)

var (
	// ErrPoolClosed is returned when submitting to a pool after Shutdown
	ErrPoolClosed = errors.New("async: pool is closed")
	// ErrTimeout completes futures whose routine did not finish in time
	ErrTimeout = errors.New("async: operation timed out")
)

// AsyncCallback is called with the result of an AsyncRoutine
type AsyncCallback func(res interface{}, err error)

// AsyncRoutine is a blocking job run on the pool
type AsyncRoutine func() (res interface{}, err error)

// Pool is a bounded worker pool shared by all blocking work of a node.
// Jobs appended to the same group run one at a time in FIFO order.
type Pool struct {
	pool    *ants.Pool
	running sync.WaitGroup

	lock   sync.Mutex
	groups map[string]*jobGroup
	closed bool
}

type jobGroup struct {
	jobs []func()
}

// NewPool creates a pool with size workers
func NewPool(size int) (*Pool, error) {
	if size <= 0 {
		size = consts.ASYNC_DEFAULT_POOL_SIZE
	}
	pool, err := ants.NewPool(size,
		ants.WithExpiryDuration(60*time.Second),
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(e interface{}) {
			nslog.TraceError("async: pool job panic: %v", e)
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "async: pool init failed")
	}
	nslog.Infof("async: pool started [size:%d]", size)
	return &Pool{
		pool:   pool,
		groups: map[string]*jobGroup{},
	}, nil
}

// Submit runs f on the pool. When every worker is busy f runs on a fresh goroutine so
// that callers never block.
func (p *Pool) Submit(f func()) error {
	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		return ErrPoolClosed
	}
	p.running.Add(1)
	p.lock.Unlock()

	job := func() {
		defer p.running.Done()
		nsutils.RunPanicless(f)
	}
	if err := p.pool.Submit(job); err != nil {
		if err == ants.ErrPoolOverload {
			go job()
			return nil
		}
		p.running.Done()
		return errors.Wrap(err, "async: submit")
	}
	return nil
}

// AppendJob runs routine after all jobs previously appended to group have finished.
// callback, when not nil, is submitted to the pool with the result.
func (p *Pool) AppendJob(group string, routine AsyncRoutine, callback AsyncCallback) error {
	job := func() {
		res, err := routine()
		if callback != nil {
			if serr := p.Submit(func() { callback(res, err) }); serr != nil {
				nslog.Warnf("async: group %s dropped callback: %v", group, serr)
			}
		}
	}

	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		return ErrPoolClosed
	}
	g := p.groups[group]
	if g != nil {
		g.jobs = append(g.jobs, job)
		if len(g.jobs) >= consts.ASYNC_GROUP_QUEUE_WARN_LEN && len(g.jobs)%consts.ASYNC_GROUP_QUEUE_WARN_LEN == 0 {
			nslog.Warnf("async: group %s has %d pending jobs", group, len(g.jobs))
		}
		p.lock.Unlock()
		return nil
	}
	g = &jobGroup{jobs: []func(){job}}
	p.groups[group] = g
	p.lock.Unlock()

	return p.Submit(func() { p.drainGroup(group, g) })
}

func (p *Pool) drainGroup(name string, g *jobGroup) {
	for {
		p.lock.Lock()
		if len(g.jobs) == 0 {
			delete(p.groups, name)
			p.lock.Unlock()
			return
		}
		job := g.jobs[0]
		g.jobs[0] = nil
		g.jobs = g.jobs[1:]
		p.lock.Unlock()

		nsutils.RunPanicless(job)
	}
}

// Status returns the pool capacity and number of running workers
func (p *Pool) Status() (capacity int, running int) {
	return p.pool.Cap(), p.pool.Running()
}

// Shutdown rejects new jobs, waits for submitted ones to finish and releases the workers
func (p *Pool) Shutdown() {
	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		return
	}
	p.closed = true
	p.lock.Unlock()

	p.running.Wait()
	p.pool.Release()
	nslog.Infof("async: pool stopped")
}
