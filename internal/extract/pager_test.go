package extract

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeClock advances its wall time by the slept duration without blocking.
type fakeClock struct {
	now    time.Time
	sleeps int
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps++
	c.now = c.now.Add(d)
	return nil
}

// fakeDriver records every signal and serves scripted locations.
type fakeDriver struct {
	advances int
	reverses int
	recovers int

	advanceErrAt int // 1-based advance call that fails; 0 = never
	locations    []string
	locIdx       int
	aliveFor     int // Alive calls returning true before going false
	aliveCalls   int
	onAdvance    func()
}

func (d *fakeDriver) Advance(context.Context) error {
	d.advances++
	if d.advanceErrAt > 0 && d.advances == d.advanceErrAt {
		return errors.New("target crashed")
	}
	if d.onAdvance != nil {
		d.onAdvance()
	}
	return nil
}

func (d *fakeDriver) Reverse(context.Context) error {
	d.reverses++
	return nil
}

func (d *fakeDriver) Recover(context.Context) error {
	d.recovers++
	return nil
}

func (d *fakeDriver) Location(context.Context) (string, error) {
	if len(d.locations) == 0 {
		return "", errors.New("no location scripted")
	}
	loc := d.locations[d.locIdx]
	if d.locIdx < len(d.locations)-1 {
		d.locIdx++
	}
	return loc, nil
}

func (d *fakeDriver) Alive(context.Context) bool {
	d.aliveCalls++
	return d.aliveCalls <= d.aliveFor
}

func testPolicy() Policy {
	p := DefaultPolicy()
	p.SettleDelay = time.Millisecond
	p.DetectDelay = time.Millisecond
	p.RestoreDelay = time.Millisecond
	p.MonitorInterval = time.Second
	return p
}

func TestPagerAutoStopsAfterPrimaryStall(t *testing.T) {
	policy := testPolicy()
	policy.PrimaryStallLimit = 3
	policy.RecoveryTrigger = 10 // out of reach so recovery never resets the counter

	captured := 0
	driver := &fakeDriver{onAdvance: func() {
		if captured < 2 {
			captured++
		}
	}}

	pager := NewPager(policy, driver, &fakeClock{}, func() int { return captured })
	pager.Run(context.Background(), StrategyAuto)

	if pager.State() != StateDone {
		t.Fatalf("State() = %v; want %v", pager.State(), StateDone)
	}
	if captured != 2 {
		t.Fatalf("captured = %d; want 2", captured)
	}
	// Two productive advances, then stalls until the count exceeds the limit.
	if driver.advances != 6 {
		t.Fatalf("advances = %d; want 6", driver.advances)
	}
	if driver.recovers != 0 {
		t.Fatalf("recovers = %d; want 0", driver.recovers)
	}
}

func TestPagerAutoRecoveryResetsStallToCredit(t *testing.T) {
	policy := testPolicy()
	policy.PrimaryStallLimit = 30
	policy.RecoveryTrigger = 3
	policy.StallCredit = 1
	policy.MaxAttempts = 12

	captured := 0
	driver := &fakeDriver{onAdvance: func() {
		if captured < 1 {
			captured++
		}
	}}

	pager := NewPager(policy, driver, &fakeClock{}, func() int { return captured })
	pager.Run(context.Background(), StrategyAuto)

	// With the credit keeping the counter below the primary limit the run
	// ends at the iteration cap, recovering on every fourth stalled pass.
	if driver.advances != policy.MaxAttempts {
		t.Fatalf("advances = %d; want %d", driver.advances, policy.MaxAttempts)
	}
	if driver.recovers != 3 {
		t.Fatalf("recovers = %d; want 3", driver.recovers)
	}
	if pager.State() != StateDone {
		t.Fatalf("State() = %v; want %v", pager.State(), StateDone)
	}
}

func TestPagerAutoStopsWithoutCapturesAtCap(t *testing.T) {
	policy := testPolicy()
	policy.PrimaryStallLimit = 2
	policy.RecoveryTrigger = 20
	policy.MaxAttempts = 5

	driver := &fakeDriver{}
	pager := NewPager(policy, driver, &fakeClock{}, func() int { return 0 })
	pager.Run(context.Background(), StrategyAuto)

	// Zero captures never satisfy the stall exit, so the cap ends the run.
	if driver.advances != policy.MaxAttempts {
		t.Fatalf("advances = %d; want %d", driver.advances, policy.MaxAttempts)
	}
}

func TestPagerAutoKeepsRunningStateOnAdvanceError(t *testing.T) {
	policy := testPolicy()
	policy.RecoveryTrigger = 20

	captured := 0
	driver := &fakeDriver{advanceErrAt: 3, onAdvance: func() { captured++ }}

	pager := NewPager(policy, driver, &fakeClock{}, func() int { return captured })
	pager.Run(context.Background(), StrategyAuto)

	if driver.advances != 3 {
		t.Fatalf("advances = %d; want 3", driver.advances)
	}
	if captured != 2 {
		t.Fatalf("captured = %d; want 2", captured)
	}
	if pager.State() != StateDone {
		t.Fatalf("State() = %v; want %v", pager.State(), StateDone)
	}
}

func TestPagerMonitorEndsWhenSessionCloses(t *testing.T) {
	policy := testPolicy()
	driver := &fakeDriver{aliveFor: 3}
	clock := &fakeClock{}

	pager := NewPager(policy, driver, clock, func() int { return 1 })
	pager.Run(context.Background(), StrategyManual)

	if driver.advances != 0 {
		t.Fatalf("advances = %d; want 0 in manual mode", driver.advances)
	}
	if driver.aliveCalls != 4 {
		t.Fatalf("aliveCalls = %d; want 4", driver.aliveCalls)
	}
	if pager.State() != StateDone {
		t.Fatalf("State() = %v; want %v", pager.State(), StateDone)
	}
}

func TestPagerMonitorEndsAtWallTimeout(t *testing.T) {
	policy := testPolicy()
	policy.MonitorInterval = time.Second
	policy.MonitorTimeout = 5 * time.Second
	driver := &fakeDriver{aliveFor: 1 << 30}
	clock := &fakeClock{}

	pager := NewPager(policy, driver, clock, func() int { return 0 })
	pager.Run(context.Background(), StrategyManual)

	if driver.advances != 0 {
		t.Fatalf("advances = %d; want 0 in manual mode", driver.advances)
	}
	if clock.sleeps != 6 {
		t.Fatalf("sleeps = %d; want 6", clock.sleeps)
	}
}
