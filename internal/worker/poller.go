package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/service"
)

// CycleRunner runs one engine cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) *service.CycleReport
}

// Poller drives the engine on a fixed interval.
type Poller struct {
	runner   CycleRunner
	interval time.Duration
	logger   *zap.Logger

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewPoller creates a poller. A non-positive interval defaults to one minute.
func NewPoller(runner CycleRunner, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		runner:    runner,
		interval:  interval,
		logger:    logger,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run executes a cycle immediately and then on every tick until ctx is done
// or Stop is called. A cycle in progress is allowed to finish.
func (p *Poller) Run(ctx context.Context) {
	defer close(p.stoppedCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("poller started", zap.Duration("interval", p.interval))
	p.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopping", zap.Error(ctx.Err()))
			return
		case <-p.stopCh:
			p.logger.Info("poller stopping")
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single cycle and returns its report.
func (p *Poller) RunOnce(ctx context.Context) *service.CycleReport {
	report := p.runner.RunCycle(ctx)
	if report != nil && len(report.Errors) > 0 {
		p.logger.Warn("cycle finished with errors", zap.Strings("errors", report.Errors))
	}
	return report
}

// Stop signals Run to return and waits for it.
func (p *Poller) Stop() {
	close(p.stopCh)
	<-p.stoppedCh
}
