package node

import (
	"sync"
	"time"

	"github.com/RussellLuo/timingwheel"
	"github.com/lattice-mc/netsync/engine/async"
	"github.com/lattice-mc/netsync/engine/nslog"
	"github.com/lattice-mc/netsync/engine/nsutils"
)

const (
	_SWEEP_TICK       = time.Millisecond * 10
	_SWEEP_WHEEL_SIZE = 512
)

// every schedules a timer at a fixed interval
type every struct {
	interval time.Duration
}

func (e every) Next(prev time.Time) time.Time {
	return prev.Add(e.interval)
}

// sweeper runs periodic maintenance on a timing wheel. Tasks run on the worker pool and
// a task never overlaps with itself.
type sweeper struct {
	tw   *timingwheel.TimingWheel
	pool *async.Pool

	lock    sync.Mutex
	timers  []*timingwheel.Timer
	stopped bool
}

func newSweeper(pool *async.Pool) *sweeper {
	return &sweeper{
		tw:   timingwheel.NewTimingWheel(_SWEEP_TICK, _SWEEP_WHEEL_SIZE),
		pool: pool,
	}
}

func (s *sweeper) start() {
	s.tw.Start()
}

// every runs f each interval
func (s *sweeper) every(name string, interval time.Duration, f func()) {
	if interval <= 0 {
		nslog.Warnf("node: sweep %s disabled", name)
		return
	}
	var running sync.Mutex
	timer := s.tw.ScheduleFunc(every{interval}, func() {
		err := s.pool.Submit(func() {
			if !running.TryLock() {
				nslog.Warnf("node: sweep %s is still running, skipped", name)
				return
			}
			defer running.Unlock()
			nsutils.RunPanicless(f)
		})
		if err != nil {
			nslog.Debugf("node: sweep %s not run: %v", name, err)
		}
	})

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.stopped {
		timer.Stop()
		return
	}
	s.timers = append(s.timers, timer)
}

func (s *sweeper) stop() {
	s.lock.Lock()
	if s.stopped {
		s.lock.Unlock()
		return
	}
	s.stopped = true
	timers := s.timers
	s.timers = nil
	s.lock.Unlock()

	for _, t := range timers {
		t.Stop()
	}
	s.tw.Stop()
}
