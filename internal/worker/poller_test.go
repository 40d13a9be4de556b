package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/complaint-service/internal/service"
)

type countingRunner struct {
	cycles atomic.Int32
}

func (r *countingRunner) RunCycle(context.Context) *service.CycleReport {
	r.cycles.Add(1)
	return &service.CycleReport{}
}

func TestPollerRunsImmediatelyAndOnTick(t *testing.T) {
	runner := &countingRunner{}
	p := NewPoller(runner, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return runner.cycles.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestPollerStop(t *testing.T) {
	runner := &countingRunner{}
	p := NewPoller(runner, time.Hour, nil)
	go p.Run(context.Background())

	assert.Eventually(t, func() bool { return runner.cycles.Load() == 1 }, time.Second, 5*time.Millisecond)
	p.Stop()
	assert.Equal(t, int32(1), runner.cycles.Load())
}
