package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// Key constants for the input signals the pager issues.
const (
	KeyAdvance = kb.ArrowRight
	KeyReverse = kb.ArrowLeft
	KeySpace   = " "
)

// playerSelector matches the embedded video player across course themes.
const playerSelector = `video, mux-player, [class*="video"], [class*="player"]`

// iframeJS locates the course content iframe. Courses embed either a direct
// courses.apps.whop.com iframe or a launch redirect wrapper.
const iframeJS = `(function() {
	const iframe = document.querySelector('iframe[src*="courses.apps.whop.com"]');
	if (iframe) {
		return iframe.src;
	}
	const redirect = document.querySelector('iframe[src*="/core/app/launch/?redirect="]');
	if (redirect) {
		return redirect.src;
	}
	return "";
})()`

// Config holds session connection settings.
type Config struct {
	CDPURL          string
	PageLoadTimeout time.Duration
	EvalTimeout     time.Duration
	LivenessTimeout time.Duration
}

// Session is a CDP-attached page used to drive the course UI. All blocking
// operations take a context and apply a per-operation timeout on top of it.
type Session struct {
	cfg         Config
	allocCtx    context.Context
	allocCancel context.CancelFunc
	pageCtx     context.Context
	pageCancel  context.CancelFunc
}

// New creates an unconnected session.
func New(cfg Config) *Session {
	if cfg.PageLoadTimeout == 0 {
		cfg.PageLoadTimeout = 60 * time.Second
	}
	if cfg.EvalTimeout == 0 {
		cfg.EvalTimeout = 10 * time.Second
	}
	if cfg.LivenessTimeout == 0 {
		cfg.LivenessTimeout = 3 * time.Second
	}
	return &Session{cfg: cfg}
}

// Connect attaches to the browser over CDP and enables network events so
// response listeners see traffic from the first navigation onward.
func (s *Session) Connect(ctx context.Context) error {
	slog.Info("connecting to browser", "cdp_url", s.cfg.CDPURL)

	s.allocCtx, s.allocCancel = chromedp.NewRemoteAllocator(context.Background(), s.cfg.CDPURL)
	s.pageCtx, s.pageCancel = chromedp.NewContext(s.allocCtx)

	opCtx, cancel := s.opContext(ctx, s.cfg.PageLoadTimeout)
	defer cancel()

	if err := chromedp.Run(opCtx, network.Enable()); err != nil {
		s.Close()
		return fmt.Errorf("connect to browser: %w", err)
	}
	return nil
}

// Listen subscribes a handler to all CDP events on the attached page.
// Handlers run on chromedp's event goroutine and must be concurrency-safe.
func (s *Session) Listen(handler func(ev interface{})) {
	chromedp.ListenTarget(s.pageCtx, handler)
}

// Navigate loads the URL and waits for the document to become ready.
func (s *Session) Navigate(ctx context.Context, url string) error {
	opCtx, cancel := s.opContext(ctx, s.cfg.PageLoadTimeout)
	defer cancel()

	if err := chromedp.Run(opCtx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Location returns the page's current URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	opCtx, cancel := s.opContext(ctx, s.cfg.EvalTimeout)
	defer cancel()

	var url string
	if err := chromedp.Run(opCtx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return url, nil
}

// IframeURL returns the course iframe URL, or "" when the page has none.
func (s *Session) IframeURL(ctx context.Context) (string, error) {
	opCtx, cancel := s.opContext(ctx, s.cfg.EvalTimeout)
	defer cancel()

	var src string
	if err := chromedp.Run(opCtx, chromedp.Evaluate(iframeJS, &src)); err != nil {
		return "", fmt.Errorf("locate course iframe: %w", err)
	}
	return src, nil
}

// PressKey dispatches a trusted key event to the page.
func (s *Session) PressKey(ctx context.Context, key string) error {
	opCtx, cancel := s.opContext(ctx, s.cfg.EvalTimeout)
	defer cancel()

	if err := chromedp.Run(opCtx, chromedp.KeyEvent(key)); err != nil {
		return fmt.Errorf("press key: %w", err)
	}
	return nil
}

// FocusPlayer clicks the video player element to give it keyboard focus.
// Missing player elements are reported as an error the caller may ignore.
func (s *Session) FocusPlayer(ctx context.Context) error {
	opCtx, cancel := s.opContext(ctx, s.cfg.EvalTimeout)
	defer cancel()

	if err := chromedp.Run(opCtx, chromedp.Click(playerSelector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("focus player: %w", err)
	}
	return nil
}

// Alive reports whether the page still answers a trivial evaluation. This is
// the explicit liveness probe used instead of waiting for some unrelated
// operation to fail.
func (s *Session) Alive(ctx context.Context) bool {
	opCtx, cancel := s.opContext(ctx, s.cfg.LivenessTimeout)
	defer cancel()

	var one int
	err := chromedp.Run(opCtx, chromedp.Evaluate("1", &one))
	return err == nil && one == 1
}

// Close detaches from the browser. It does not stop the browser process;
// the launcher owns that.
func (s *Session) Close() {
	if s.pageCancel != nil {
		s.pageCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	slog.Debug("session closed")
}

// opContext layers the per-operation timeout over both the caller's context
// and the page context, so cancellation from either side is honored.
func (s *Session) opContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	opCtx, cancelTimeout := context.WithTimeout(s.pageCtx, timeout)
	stop := context.AfterFunc(ctx, cancelTimeout)
	return opCtx, func() {
		stop()
		cancelTimeout()
	}
}
