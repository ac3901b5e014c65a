package extract

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/rolltidehero/whop-downloader/internal/lesson"
)

// Captures is the observer surface the extractor reads from.
type Captures interface {
	Count() int
	Records() []lesson.Record
}

// Extractor runs one full navigation-and-capture pass: course navigation,
// iframe hop, login wait, strategy detection, and paging.
type Extractor struct {
	policy   Policy
	page     Page
	clock    Clock
	captures Captures
}

// NewExtractor wires an extractor over an attached page session.
func NewExtractor(policy Policy, page Page, clock Clock, captures Captures) *Extractor {
	return &Extractor{policy: policy, page: page, clock: clock, captures: captures}
}

// Run drives the course until a terminal pager state and returns the lesson
// records in discovery order. Mid-run failures degrade to whatever was
// captured; only a login timeout or a failure to reach the course at all
// surface as errors.
func (e *Extractor) Run(ctx context.Context, courseURL string) ([]lesson.Record, error) {
	if err := e.page.Navigate(ctx, courseURL); err != nil {
		return nil, newError(CodeBrowserUnavailable, "open course page", err)
	}
	if err := e.clock.Sleep(ctx, e.policy.DetectDelay); err != nil {
		return e.captures.Records(), nil
	}

	e.enterIframe(ctx)

	if err := e.clock.Sleep(ctx, e.policy.StabilizeDelay); err != nil {
		return e.captures.Records(), nil
	}

	if err := e.awaitLogin(ctx); err != nil {
		return nil, err
	}

	slog.Info("waiting for course content to load")
	if err := e.clock.Sleep(ctx, e.policy.StabilizeDelay); err != nil {
		return e.captures.Records(), nil
	}

	driver := NewDriver(e.page)
	strategy, err := DetectStrategy(ctx, driver, e.clock, e.policy)
	if err != nil {
		slog.Warn("strategy detection failed, falling back to manual mode", "error", err)
		strategy = StrategyManual
	}
	slog.Info("navigation strategy selected", "strategy", strategy.String())

	pager := NewPager(e.policy, driver, e.clock, e.captures.Count)
	pager.Run(ctx, strategy)

	return e.captures.Records(), nil
}

// enterIframe hops into the course content iframe when one is present.
// Courses served directly (no wrapper page) simply have no iframe.
func (e *Extractor) enterIframe(ctx context.Context) {
	src, err := e.page.IframeURL(ctx)
	if err != nil {
		slog.Debug("iframe lookup failed", "error", err)
		return
	}
	if src == "" {
		return
	}

	if strings.HasPrefix(src, "/") {
		src = "https://whop.com" + src
	}
	slog.Info("navigating into course iframe", "url", truncateURL(src))

	if err := e.page.Navigate(ctx, src); err != nil {
		slog.Warn("iframe navigation failed, staying on course page", "error", err)
		return
	}
	if err := e.clock.Sleep(ctx, e.policy.DetectDelay); err != nil {
		return
	}
	if loc, err := e.page.Location(ctx); err == nil {
		slog.Info("now at", "url", truncateURL(loc))
	}
}

// awaitLogin suspends while the page sits on a login boundary, polling for
// the human to finish signing in. Exceeding the ceiling is a hard failure.
func (e *Extractor) awaitLogin(ctx context.Context) error {
	loc, err := e.page.Location(ctx)
	if err != nil {
		return newError(CodeBrowserUnavailable, "read location for login check", err)
	}
	if !isLoginURL(loc) {
		return nil
	}

	slog.Info("login required, waiting for manual sign-in in the browser window")

	start := e.clock.Now()
	lastStatus := start
	for {
		if err := e.clock.Sleep(ctx, e.policy.MonitorInterval); err != nil {
			return newError(CodeLoginTimeout, "cancelled while waiting for login", err)
		}

		loc, err = e.page.Location(ctx)
		if err != nil {
			return newError(CodeBrowserUnavailable, "read location during login wait", err)
		}
		if !isLoginURL(loc) {
			slog.Info("login detected, proceeding")
			return nil
		}

		now := e.clock.Now()
		if now.Sub(start) > e.policy.LoginTimeout {
			return newError(CodeLoginTimeout, "login not completed within ceiling", nil)
		}
		if now.Sub(lastStatus) >= e.policy.StatusInterval {
			lastStatus = now
			slog.Info("still waiting for login", "elapsed", now.Sub(start).Round(time.Second).String())
		}
	}
}

func isLoginURL(url string) bool {
	return strings.Contains(url, "login") || strings.Contains(url, "signin")
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
