package course

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rolltidehero/whop-downloader/internal/browser"
	"github.com/rolltidehero/whop-downloader/internal/capture"
	"github.com/rolltidehero/whop-downloader/internal/config"
	"github.com/rolltidehero/whop-downloader/internal/download"
	"github.com/rolltidehero/whop-downloader/internal/extract"
	"github.com/rolltidehero/whop-downloader/internal/lesson"
	"github.com/rolltidehero/whop-downloader/internal/netutil"
	"github.com/rolltidehero/whop-downloader/internal/notify"
	"github.com/rolltidehero/whop-downloader/internal/session"
)

// Service orchestrates a full course run: browser launch, stream capture,
// caching, and downloads.
type Service struct {
	cfg    *config.Config
	paths  config.Paths
	runID  string
	client *http.Client

	// extractLive drives the browser end to end. A field so tests can
	// exercise cache behavior without a browser.
	extractLive func(ctx context.Context, courseURL string) ([]lesson.Record, error)
}

// NewService builds a service for one course run.
func NewService(cfg *config.Config, paths config.Paths) *Service {
	s := &Service{
		cfg:    cfg,
		paths:  paths,
		runID:  uuid.NewString(),
		client: &http.Client{Timeout: 10 * time.Second},
	}
	s.extractLive = s.runBrowserExtraction
	return s
}

// RunID identifies this run in logs and notifications.
func (s *Service) RunID() string { return s.runID }

func (s *Service) policy() extract.Policy {
	p := extract.DefaultPolicy()
	p.SettleDelay = s.cfg.SettleDelay
	p.DetectDelay = s.cfg.DetectDelay
	p.PrimaryStallLimit = s.cfg.PrimaryStallLimit
	p.RecoveryTrigger = s.cfg.RecoveryTrigger
	p.StallCredit = s.cfg.StallCredit
	p.MaxAttempts = s.cfg.MaxAttempts
	p.MonitorInterval = s.cfg.MonitorInterval
	p.MonitorTimeout = s.cfg.MonitorTimeout
	p.StatusInterval = s.cfg.StatusInterval
	p.LoginTimeout = s.cfg.LoginTimeout
	return p
}

// ExtractVideoURLs returns the lesson records for the course, from the cache
// when possible. force bypasses the cache and always drives the browser.
func (s *Service) ExtractVideoURLs(ctx context.Context, courseURL string, force bool) ([]lesson.Record, error) {
	cache := lesson.NewCache(s.paths.CacheFile)

	if !force {
		records, err := cache.Load()
		if err == nil {
			slog.Info("using cached video URLs", "file", cache.Path(), "videos", len(records))
			return records, nil
		}
		// A bare miss is the normal absent-or-empty case; a wrapped miss
		// means a corrupt or unreadable file worth a line before re-extracting.
		if err != lesson.ErrCacheMiss {
			slog.Warn("discarding unusable URL cache", "file", cache.Path(), "error", err)
		}
	}

	records, err := s.extractLive(ctx, courseURL)
	if err != nil {
		return nil, err
	}

	slog.Info("extraction complete", "run_id", s.runID, "videos", len(records))
	if err := cache.Save(records); err != nil {
		slog.Warn("failed to save URL cache", "file", cache.Path(), "error", err)
	} else {
		slog.Info("saved video URLs", "file", cache.Path())
	}
	return records, nil
}

// runBrowserExtraction launches the browser, attaches a session with a
// passive observer, and drives the course to a terminal pager state.
func (s *Service) runBrowserExtraction(ctx context.Context, courseURL string) ([]lesson.Record, error) {
	port, err := netutil.SelectDebugPort(s.cfg.CDPAddress, s.cfg.CDPPort, s.cfg.CDPPortFallbacks, true)
	if err != nil {
		return nil, &extract.CodedError{Code: extract.CodeBrowserUnavailable, Message: "no usable debug port", Cause: err}
	}

	launcher := browser.NewLauncher(browser.Config{
		CDPAddress: s.cfg.CDPAddress,
		CDPPort:    port,
		StartURL:   courseURL,
		ProfileDir: s.cfg.ProfileDir,
		WindowSize: s.cfg.WindowSize,
	})
	if err := launcher.Launch(ctx); err != nil {
		return nil, &extract.CodedError{Code: extract.CodeBrowserUnavailable, Message: "launch browser", Cause: err}
	}
	defer func() {
		// Only tear down a browser this run started; one we attached to
		// stays up for the next run.
		if launcher.Running() {
			launcher.Stop()
		}
	}()

	sess := session.New(session.Config{
		CDPURL:          s.cfg.GetCDPURL(port),
		PageLoadTimeout: s.cfg.PageLoadTimeout,
	})
	if err := sess.Connect(ctx); err != nil {
		return nil, &extract.CodedError{Code: extract.CodeBrowserUnavailable, Message: "attach session", Cause: err}
	}
	defer sess.Close()

	observer := capture.NewObserver()
	sess.Listen(observer.HandleEvent)

	extractor := extract.NewExtractor(s.policy(), sess, extract.WallClock{}, observer)
	return extractor.Run(ctx, courseURL)
}

// RunDownload extracts the course and downloads every video. A non-nil error
// means at least one video is missing at the end of the run.
func (s *Service) RunDownload(ctx context.Context, courseURL string, force bool) error {
	slog.Info("starting course download",
		"run_id", s.runID, "course_url", courseURL, "target_dir", s.paths.TargetDir)

	records, err := s.ExtractVideoURLs(ctx, courseURL, force)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return &extract.CodedError{Code: extract.CodeNoStreams, Message: "no videos found"}
	}

	runner := download.NewRunner(download.Config{
		Binary:    s.cfg.YTDLPBinary,
		Referer:   s.cfg.Referer,
		UserAgent: s.cfg.UserAgent,
		VideosDir: s.paths.VideosDir,
		Pause:     time.Second,
	})
	summary := runner.DownloadAll(ctx, records)

	slog.Info("final results",
		"run_id", s.runID,
		"total", summary.Total,
		"previously_downloaded", summary.Already,
		"newly_downloaded", summary.Downloaded,
		"failed", len(summary.Failed))
	for _, rec := range summary.Failed {
		slog.Info("failed download", "title", rec.Title)
	}
	slog.Info("videos saved", "dir", s.paths.VideosDir)

	s.notifyCompletion(ctx, courseURL, summary)

	if len(summary.Failed) > 0 {
		return fmt.Errorf("%d of %d downloads failed", len(summary.Failed), summary.Total)
	}
	return nil
}

// RunTest extracts and reports without downloading anything.
func (s *Service) RunTest(ctx context.Context, courseURL string, force bool) error {
	slog.Info("test mode: extracting video URLs only",
		"run_id", s.runID, "course_url", courseURL)

	records, err := s.ExtractVideoURLs(ctx, courseURL, force)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return &extract.CodedError{Code: extract.CodeNoStreams, Message: "no videos found"}
	}

	slog.Info("extraction complete", "total_videos", len(records))
	head, tail := sampleRecords(records, 5)
	for _, rec := range head {
		slog.Info("video", "index", rec.Index, "title", rec.Title, "video_id", rec.VideoID)
	}
	if tail != nil {
		slog.Info("...")
		for _, rec := range tail {
			slog.Info("video", "index", rec.Index, "title", rec.Title, "video_id", rec.VideoID)
		}
	}
	slog.Info("video URLs saved", "file", s.paths.CacheFile)
	return nil
}

func (s *Service) notifyCompletion(ctx context.Context, courseURL string, summary download.Summary) {
	if s.cfg.NTFYEndpoint == "" {
		return
	}
	msg := notify.RunSummary(courseURL, summary.Total, summary.Already, summary.Downloaded, len(summary.Failed))
	if err := notify.Send(ctx, s.client, s.cfg.NTFYEndpoint, msg); err != nil {
		slog.Warn("completion notification failed", "endpoint", s.cfg.NTFYEndpoint, "error", err)
	}
}

// sampleRecords returns the first n records, plus the last n when the list is
// long enough that the middle is worth eliding.
func sampleRecords(records []lesson.Record, n int) (head, tail []lesson.Record) {
	if len(records) <= 2*n {
		return records, nil
	}
	return records[:n], records[len(records)-n:]
}
