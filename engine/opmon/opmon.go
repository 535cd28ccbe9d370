package opmon

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/lattice-mc/netsync/engine/consts"
	"github.com/lattice-mc/netsync/engine/nslog"
)

var (
	operationAllocPool = sync.Pool{
		New: func() interface{} {
			return &Operation{}
		},
	}

	monitor = newMonitor()
)

func init() {
	if consts.OPMON_DUMP_INTERVAL > 0 {
		go func() {
			for {
				time.Sleep(consts.OPMON_DUMP_INTERVAL)
				monitor.Dump(nslog.GetOutput())
			}
		}()
	}
}

// OpInfo summarizes all finished operations of one name
type OpInfo struct {
	Count         uint64
	TotalDuration time.Duration
	MaxDuration   time.Duration
}

// Avg returns the average duration
func (info OpInfo) Avg() time.Duration {
	if info.Count == 0 {
		return 0
	}
	return info.TotalDuration / time.Duration(info.Count)
}

type _Monitor struct {
	sync.Mutex
	opInfos map[string]*OpInfo
}

func newMonitor() *_Monitor {
	m := &_Monitor{
		opInfos: map[string]*OpInfo{},
	}
	return m
}

func (monitor *_Monitor) record(opname string, duration time.Duration) {
	monitor.Lock()
	info := monitor.opInfos[opname]
	if info == nil {
		info = &OpInfo{}
		monitor.opInfos[opname] = info
	}
	info.Count += 1
	info.TotalDuration += duration
	if duration > info.MaxDuration {
		info.MaxDuration = duration
	}
	monitor.Unlock()
}

func (monitor *_Monitor) snapshot() map[string]OpInfo {
	monitor.Lock()
	defer monitor.Unlock()
	res := make(map[string]OpInfo, len(monitor.opInfos))
	for name, info := range monitor.opInfos {
		res[name] = *info
	}
	return res
}

func (monitor *_Monitor) Dump(out io.Writer) {
	var opInfos map[string]*OpInfo
	monitor.Lock()
	opInfos = monitor.opInfos
	monitor.opInfos = map[string]*OpInfo{} // clear to be empty
	monitor.Unlock()

	names := make([]string, 0, len(opInfos))
	for name := range opInfos {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprint(out, "=====================================================================================\n")
	for _, opname := range names {
		opinfo := opInfos[opname]
		fmt.Fprintf(out, "%-30sx%-10d AVG %-10s MAX %-10s\n", opname, opinfo.Count, opinfo.Avg(), opinfo.MaxDuration)
	}
}

// Dump prints and clears the collected operation infos
func Dump(out io.Writer) {
	monitor.Dump(out)
}

// Snapshot returns a copy of the collected operation infos without clearing them
func Snapshot() map[string]OpInfo {
	return monitor.snapshot()
}

// Operation is the type of operation to be monitored
type Operation struct {
	name      string
	startTime time.Time
}

// StartOperation creates a new operation
func StartOperation(operationName string) *Operation {
	op := operationAllocPool.Get().(*Operation)
	op.name = operationName
	op.startTime = time.Now()
	return op
}

// Finish finishes the operation and records the duration of operation
func (op *Operation) Finish(warnThreshold time.Duration) {
	takeTime := time.Since(op.startTime)
	monitor.record(op.name, takeTime)
	if takeTime >= warnThreshold {
		nslog.Warnf("opmon: operation %s takes %s > %s", op.name, takeTime, warnThreshold)
	}
	operationAllocPool.Put(op)
}
