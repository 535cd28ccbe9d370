// Package lbc samples the cpu usage of this process for the load reported in heartbeats
package lbc

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/lattice-mc/netsync/engine/nslog"
	"github.com/lattice-mc/netsync/engine/nsutils"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/process"
)

// Sampler measures cpu usage in percent
type Sampler interface {
	CPUPercent(ctx context.Context) (float64, error)
}

type processSampler struct {
	p *process.Process
}

// NewProcessSampler samples the cpu usage of the current process
func NewProcessSampler() (Sampler, error) {
	pid := os.Getpid()
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, errors.Wrapf(err, "lbc: can not find process %d", pid)
	}
	return processSampler{p}, nil
}

func (s processSampler) CPUPercent(ctx context.Context) (float64, error) {
	return s.p.CPUPercentWithContext(ctx)
}

// Collector keeps the latest sample of a Sampler
type Collector struct {
	sampler Sampler

	lock   sync.Mutex
	latest float64
}

// NewCollector creates a collector over sampler
func NewCollector(sampler Sampler) *Collector {
	return &Collector{sampler: sampler}
}

// Collect takes one sample
func (c *Collector) Collect(ctx context.Context) error {
	pcnt, err := c.sampler.CPUPercent(ctx)
	if err != nil {
		return err
	}
	nslog.Debugf("lbc: cpu percent is %.3f%%", pcnt)
	c.lock.Lock()
	c.latest = pcnt
	c.lock.Unlock()
	return nil
}

// Run samples every interval until ctx is done
func (c *Collector) Run(ctx context.Context, interval time.Duration) {
	nsutils.RepeatUntilStopped(ctx.Done(), interval, func() bool {
		if err := c.Collect(ctx); err != nil && ctx.Err() == nil {
			nslog.Warnf("lbc: get cpu percent failed: %v", err)
		}
		return ctx.Err() != nil
	})
}

// CPUPercent returns the latest sample
func (c *Collector) CPUPercent() float64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.latest
}
