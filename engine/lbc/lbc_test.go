package lbc

import (
	"context"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
)

type fixedSampler struct {
	pcnt float64
	err  error
}

func (s fixedSampler) CPUPercent(ctx context.Context) (float64, error) {
	return s.pcnt, s.err
}

func TestCollect(t *testing.T) {
	c := NewCollector(fixedSampler{pcnt: 12.5})
	assert.Equal(t, 0.0, c.CPUPercent())
	assert.Equal(t, nil, c.Collect(context.Background()))
	assert.Equal(t, 12.5, c.CPUPercent())

	c.sampler = fixedSampler{err: errors.New("no proc")}
	assert.NotEqual(t, nil, c.Collect(context.Background()))
	assert.Equal(t, 12.5, c.CPUPercent())
}

func TestRunStops(t *testing.T) {
	c := NewCollector(fixedSampler{pcnt: 3})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
	assert.Equal(t, 3.0, c.CPUPercent())
}

func TestProcessSampler(t *testing.T) {
	s, err := NewProcessSampler()
	assert.Equal(t, nil, err)
	pcnt, err := s.CPUPercent(context.Background())
	assert.Equal(t, nil, err)
	assert.T(t, pcnt >= 0)
}
