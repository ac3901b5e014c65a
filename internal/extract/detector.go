package extract

import (
	"context"
	"log/slog"
)

// Strategy is the navigation method used by the pager for an entire run.
type Strategy int

const (
	// StrategyManual leaves lesson navigation to the human and only
	// monitors captures.
	StrategyManual Strategy = iota
	// StrategyAuto pages through lessons with the advance key.
	StrategyAuto
)

func (s Strategy) String() string {
	if s == StrategyAuto {
		return "auto"
	}
	return "manual"
}

// DetectStrategy probes whether the advance key changes the page location.
// The decision is made once per run and never re-evaluated. A slow first
// lesson can produce a false manual verdict; the settle delay in the policy
// is the mitigation for that.
func DetectStrategy(ctx context.Context, driver Driver, clock Clock, policy Policy) (Strategy, error) {
	start, err := driver.Location(ctx)
	if err != nil {
		return StrategyManual, newError(CodeEvalFailure, "read location before probe", err)
	}

	if err := driver.Advance(ctx); err != nil {
		return StrategyManual, newError(CodeEvalFailure, "issue probe advance", err)
	}
	if err := clock.Sleep(ctx, policy.DetectDelay); err != nil {
		return StrategyManual, err
	}

	after, err := driver.Location(ctx)
	if err != nil {
		return StrategyManual, newError(CodeEvalFailure, "read location after probe", err)
	}

	if after == start {
		slog.Info("keyboard navigation not working, using manual mode")
		return StrategyManual, nil
	}

	slog.Info("keyboard navigation detected")
	// Step back so paging starts from the first lesson again.
	if err := driver.Reverse(ctx); err != nil {
		slog.Warn("failed to step back after probe", "error", err)
	}
	if err := clock.Sleep(ctx, policy.RestoreDelay); err != nil {
		return StrategyAuto, err
	}
	return StrategyAuto, nil
}
