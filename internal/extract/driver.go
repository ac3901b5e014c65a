package extract

import (
	"context"

	"github.com/rolltidehero/whop-downloader/internal/session"
)

// Page is the capability surface the extractor consumes from the automated
// browser session. session.Session satisfies it; tests use fakes.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	IframeURL(ctx context.Context) (string, error)
	PressKey(ctx context.Context, key string) error
	FocusPlayer(ctx context.Context) error
	Alive(ctx context.Context) bool
}

// Driver is the narrow interface the detector and pager drive: the advance
// and recovery input signals plus a liveness probe.
type Driver interface {
	Advance(ctx context.Context) error
	Reverse(ctx context.Context) error
	Recover(ctx context.Context) error
	Location(ctx context.Context) (string, error)
	Alive(ctx context.Context) bool
}

// pageDriver adapts a Page to the Driver signals.
type pageDriver struct {
	page Page
}

// NewDriver wraps a page as a pager driver.
func NewDriver(page Page) Driver {
	return &pageDriver{page: page}
}

func (d *pageDriver) Advance(ctx context.Context) error {
	return d.page.PressKey(ctx, session.KeyAdvance)
}

func (d *pageDriver) Reverse(ctx context.Context) error {
	return d.page.PressKey(ctx, session.KeyReverse)
}

// Recover focuses the player element before the alternate input signal so
// the key lands on the video rather than some unrelated control. A missing
// player is tolerated; the space press is still worth attempting.
func (d *pageDriver) Recover(ctx context.Context) error {
	_ = d.page.FocusPlayer(ctx)
	return d.page.PressKey(ctx, session.KeySpace)
}

func (d *pageDriver) Location(ctx context.Context) (string, error) {
	return d.page.Location(ctx)
}

func (d *pageDriver) Alive(ctx context.Context) bool {
	return d.page.Alive(ctx)
}
