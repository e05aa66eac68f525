package scheduler

import (
	"context"
	"sync"
	"time"

	"client-telemetry/pkg/logging"

	"github.com/sirupsen/logrus"
)

// Job is one unit of periodic work. Returning an error triggers a retry.
type Job func(ctx context.Context) error

// Periodic runs a Job on a fixed interval until stopped.
type Periodic struct {
	name       string
	interval   time.Duration
	job        Job
	retryCount int
	backoff    time.Duration
	runOnStart bool

	ctx       context.Context
	cancel    context.CancelFunc
	waitGroup sync.WaitGroup
	startOnce sync.Once
	logger    logrus.FieldLogger
}

type Option func(*Periodic)

// WithRetries retries a failed run up to n more times, sleeping
// backoff*(attempt+1) between attempts.
func WithRetries(n int, backoff time.Duration) Option {
	return func(p *Periodic) {
		if n < 0 {
			n = 0
		}
		p.retryCount = n
		p.backoff = backoff
	}
}

// WithRunOnStart runs the job once synchronously inside Start.
func WithRunOnStart() Option {
	return func(p *Periodic) { p.runOnStart = true }
}

func NewPeriodic(name string, interval time.Duration, job Job, logger logrus.FieldLogger, opts ...Option) *Periodic {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Periodic{
		name:     name,
		interval: interval,
		job:      job,
		backoff:  time.Second,
		ctx:      ctx,
		cancel:   cancel,
		logger:   logging.Component(logger, "scheduler").WithField("job", name),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Periodic) Name() string { return p.name }

// Start launches the ticker loop. A non-positive interval disables the job.
func (p *Periodic) Start() {
	if p.interval <= 0 {
		p.logger.Debug("interval not positive, job disabled")
		return
	}
	p.startOnce.Do(func() {
		if p.runOnStart {
			p.run()
		}
		p.waitGroup.Add(1)
		go func() {
			defer p.waitGroup.Done()
			ticker := time.NewTicker(p.interval)
			defer ticker.Stop()
			for {
				select {
				case <-p.ctx.Done():
					return
				case <-ticker.C:
					p.run()
				}
			}
		}()
	})
}

func (p *Periodic) Stop() {
	p.cancel()
	p.waitGroup.Wait()
}

// RunNow executes the job immediately with the scheduler's retry policy.
func (p *Periodic) RunNow() bool {
	return p.run()
}

func (p *Periodic) run() bool {
	for attempt := 0; attempt <= p.retryCount; attempt++ {
		err := p.job(p.ctx)
		if err == nil {
			return true
		}
		if p.ctx.Err() != nil {
			return false
		}
		p.logger.WithError(err).Warnf("run failed (attempt %d/%d)", attempt+1, p.retryCount+1)
		if attempt < p.retryCount {
			select {
			case <-p.ctx.Done():
				return false
			case <-time.After(p.backoff * time.Duration(attempt+1)):
			}
		}
	}
	p.logger.Errorf("run failed after %d attempts", p.retryCount+1)
	return false
}

// Group starts and stops several jobs together.
type Group struct {
	jobs []*Periodic
}

func (g *Group) Add(p *Periodic) {
	g.jobs = append(g.jobs, p)
}

func (g *Group) Len() int { return len(g.jobs) }

func (g *Group) Start() {
	for _, p := range g.jobs {
		p.Start()
	}
}

// Stop stops jobs in reverse start order.
func (g *Group) Stop() {
	for i := len(g.jobs) - 1; i >= 0; i-- {
		g.jobs[i].Stop()
	}
}
