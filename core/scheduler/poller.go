package scheduler

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/feeded/core"
)

const maxBackoffShift = 16

// State is the state of the poller circuit breaker.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Task is one unit of periodic work.
type Task func(ctx context.Context) error

// Poller runs a Task until its context is cancelled.
// Successful runs are spaced by Interval. Failed runs back off exponentially, and MaxFailures
// consecutive failures open the circuit for Cooldown before a single trial run.
type Poller struct {
	Interval    time.Duration
	MaxBackoff  time.Duration
	MaxFailures int
	Cooldown    time.Duration

	log      core.Logger
	wait     func(ctx context.Context, d time.Duration) error
	state    State
	failures int
}

func NewPoller(conf *core.Config, logger core.Logger) *Poller {
	return &Poller{
		Interval:    conf.Scheduler.Interval,
		MaxBackoff:  conf.Scheduler.MaxBackoff,
		MaxFailures: conf.Scheduler.MaxFailures,
		Cooldown:    conf.Scheduler.Cooldown,
		log:         logger,
		wait:        sleep,
		state:       StateClosed,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *Poller) State() State  { return p.state }
func (p *Poller) Failures() int { return p.failures }

// Run runs task right away, then keeps running it until ctx is done.
func (p *Poller) Run(ctx context.Context, name string, task Task) error {
	p.log.Info("scheduler: starting "+name, "interval", p.Interval)
	for {
		d := p.Tick(ctx, name, task)
		if err := p.wait(ctx, d); err != nil {
			p.log.Info("scheduler: stopping " + name)
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Tick runs task once and returns how long to wait before the next run.
func (p *Poller) Tick(ctx context.Context, name string, task Task) time.Duration {
	if p.state == StateOpen {
		p.state = StateHalfOpen
		p.log.Info("scheduler: circuit half-open, probing " + name)
	}

	err := runSafely(ctx, task)
	if err == nil {
		if p.state != StateClosed {
			p.log.Info("scheduler: circuit closed for " + name)
		}
		p.state = StateClosed
		p.failures = 0
		return p.Interval
	}

	p.failures++
	if p.state == StateHalfOpen || (p.MaxFailures > 0 && p.failures >= p.MaxFailures) {
		p.state = StateOpen
		p.log.Error("scheduler: circuit open for "+name, err, "failures", p.failures, "cooldown", p.Cooldown)
		return p.Cooldown
	}
	d := p.Backoff(p.failures)
	p.log.Warn("scheduler: "+name+" failed", err, "failures", p.failures, "retry_in", d)
	return d
}

// Backoff returns Interval * 2^(n-1), capped at MaxBackoff. Without a MaxBackoff
// the delay stops doubling at maxBackoffShift.
func (p *Poller) Backoff(n int) time.Duration {
	d := p.Interval
	for i := 1; i < n && i <= maxBackoffShift; i++ {
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			break
		}
		if d > math.MaxInt64/2 {
			break
		}
		d *= 2
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

func runSafely(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()
	return task(ctx)
}
