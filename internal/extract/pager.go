package extract

import (
	"context"
	"log/slog"
	"time"
)

// State is the pager's position in its paging state machine.
type State int

const (
	StateAdvancing State = iota
	StateStalled
	StateRecovering
	StateMonitoring
	StateDone
)

func (s State) String() string {
	switch s {
	case StateAdvancing:
		return "advancing"
	case StateStalled:
		return "stalled"
	case StateRecovering:
		return "recovering"
	case StateMonitoring:
		return "monitoring"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Policy holds the timing and threshold constants driving the pager. The
// numeric defaults are inherited tuning values with no documented rationale,
// which is exactly why they are configuration instead of literals.
type Policy struct {
	SettleDelay  time.Duration
	DetectDelay  time.Duration
	RestoreDelay time.Duration

	// PrimaryStallLimit ends the run: stall count above it with at least
	// one capture means the course is exhausted.
	PrimaryStallLimit int
	// RecoveryTrigger starts alternate-input recovery when exceeded.
	RecoveryTrigger int
	// StallCredit is the stall count after a recovery attempt. It must sit
	// below RecoveryTrigger but above zero so recovery neither loops
	// immediately nor erases all accumulated evidence of a stall.
	StallCredit int

	MaxAttempts     int
	MonitorInterval time.Duration
	MonitorTimeout  time.Duration
	StatusInterval  time.Duration
	StabilizeDelay  time.Duration
	LoginTimeout    time.Duration
}

// DefaultPolicy returns the inherited defaults.
func DefaultPolicy() Policy {
	return Policy{
		SettleDelay:       2 * time.Second,
		DetectDelay:       3 * time.Second,
		RestoreDelay:      2 * time.Second,
		PrimaryStallLimit: 30,
		RecoveryTrigger:   15,
		StallCredit:       10,
		MaxAttempts:       150,
		MonitorInterval:   2 * time.Second,
		MonitorTimeout:    10 * time.Minute,
		StatusInterval:    30 * time.Second,
		StabilizeDelay:    5 * time.Second,
		LoginTimeout:      5 * time.Minute,
	}
}

// Pager drives the chosen navigation strategy until quiescence, a hard cap,
// or session loss. It never fails a run: every terminal path leaves the
// captures collected so far intact.
type Pager struct {
	policy Policy
	driver Driver
	clock  Clock
	count  func() int

	state State
}

// NewPager builds a pager reading capture progress from count.
func NewPager(policy Policy, driver Driver, clock Clock, count func() int) *Pager {
	return &Pager{policy: policy, driver: driver, clock: clock, count: count}
}

// State returns the pager's current machine state.
func (p *Pager) State() State { return p.state }

// Run executes the strategy to a terminal state.
func (p *Pager) Run(ctx context.Context, strategy Strategy) {
	if strategy == StrategyAuto {
		p.runAuto(ctx)
	} else {
		p.runMonitor(ctx)
	}
	p.transition(StateDone)
}

func (p *Pager) transition(next State) {
	if next == p.state {
		return
	}
	slog.Debug("pager state change", "from", p.state.String(), "to", next.String())
	p.state = next
}

// runAuto issues the advance key until no new captures arrive for the
// primary stall limit, the iteration cap is hit, or the context expires.
func (p *Pager) runAuto(ctx context.Context) {
	p.transition(StateAdvancing)
	slog.Info("using keyboard navigation")

	stall := 0
	last := p.count()

	for attempt := 1; attempt <= p.policy.MaxAttempts; attempt++ {
		if err := p.clock.Sleep(ctx, p.policy.SettleDelay); err != nil {
			slog.Info("pager timeout, keeping captures", "videos", p.count())
			return
		}

		// The capture count is only read after the settle delay; ordering
		// between the advance signal and the observer within one step is
		// otherwise unconstrained.
		n := p.count()
		if n > last {
			last = n
			stall = 0
			p.transition(StateAdvancing)
			slog.Info("navigation progress", "attempt", attempt, "videos", n)
		} else {
			stall++
			p.transition(StateStalled)
			if stall%10 == 0 {
				slog.Info("no new videos", "attempt", attempt, "videos", n, "stalled_for", stall)
			}
		}

		if stall > p.policy.PrimaryStallLimit && n > 0 {
			slog.Info("extraction complete", "videos", n, "stalled_for", stall)
			return
		}

		if err := p.driver.Advance(ctx); err != nil {
			slog.Warn("advance failed, keeping captures", "error", err, "videos", n)
			return
		}

		if stall > p.policy.RecoveryTrigger {
			p.transition(StateRecovering)
			slog.Info("trying alternate navigation", "stalled_for", stall)
			if err := p.driver.Recover(ctx); err != nil {
				slog.Debug("recovery input failed", "error", err)
			}
			if err := p.clock.Sleep(ctx, p.policy.SettleDelay); err != nil {
				slog.Info("pager timeout, keeping captures", "videos", p.count())
				return
			}
			// Partial credit: drop below the trigger without zeroing so a
			// dead course still reaches the primary limit.
			stall = p.policy.StallCredit
			p.transition(StateAdvancing)
		}
	}

	slog.Info("iteration cap reached", "videos", p.count())
}

// runMonitor polls captures while a human clicks through lessons. No input
// signals are issued; the loop ends when the session dies or the wall-clock
// timeout elapses.
func (p *Pager) runMonitor(ctx context.Context) {
	p.transition(StateMonitoring)
	slog.Info("manual navigation mode: click through all lessons in the browser; close the window when done")

	start := p.clock.Now()
	lastStatus := start
	last := p.count()

	for {
		if err := p.clock.Sleep(ctx, p.policy.MonitorInterval); err != nil {
			slog.Info("monitoring cancelled, keeping captures", "videos", p.count())
			return
		}

		if n := p.count(); n > last {
			last = n
			slog.Info("captured video during manual navigation", "videos", n)
		}

		if !p.driver.Alive(ctx) {
			slog.Info("browser closed, extraction complete", "videos", p.count())
			return
		}

		now := p.clock.Now()
		if now.Sub(start) > p.policy.MonitorTimeout {
			slog.Info("monitoring timeout", "videos", p.count())
			return
		}
		if now.Sub(lastStatus) >= p.policy.StatusInterval {
			lastStatus = now
			slog.Info("still monitoring", "videos", p.count(), "elapsed", now.Sub(start).Round(time.Second).String())
		}
	}
}
