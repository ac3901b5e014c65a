package download

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"

	"github.com/rolltidehero/whop-downloader/internal/lesson"
)

// formatLadder is tried top to bottom for each video. A rung is skipped only
// when yt-dlp reports the format as unavailable; any other failure falls
// through to the next rung as well, with the error logged.
var formatLadder = []string{
	"best[ext=mp4]/best",
	"best",
	"bestvideo+bestaudio/best",
	"bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best",
	"bestvideo*+bestaudio/best",
}

const formatUnavailable = "Requested format is not available"

// CommandRunner executes an external command and returns its captured
// stderr. The stderr text is inspected for format-availability markers.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stderr string, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}

// Config holds the external downloader invocation settings.
type Config struct {
	Binary    string
	Referer   string
	UserAgent string
	VideosDir string
	// Pause is the delay inserted between consecutive downloads.
	Pause time.Duration
}

// Summary reports the outcome of a batch download.
type Summary struct {
	Total      int
	Already    int
	Downloaded int
	Failed     []lesson.Record
}

// Runner downloads captured streams with yt-dlp, one at a time.
type Runner struct {
	cfg  Config
	exec CommandRunner
	spin *spinner.Spinner
}

// NewRunner builds a runner that shells out to the configured binary.
func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:  cfg,
		exec: execRunner{},
		spin: spinner.New(spinner.CharSets[9], 100*time.Millisecond),
	}
}

// DownloadAll fetches every record not already on disk and returns the batch
// summary. Individual failures never abort the batch.
func (r *Runner) DownloadAll(ctx context.Context, records []lesson.Record) Summary {
	summary := Summary{Total: len(records)}

	type pending struct {
		position int
		record   lesson.Record
	}
	var queue []pending
	for i, rec := range records {
		position := i + 1
		if _, err := os.Stat(r.outputPath(rec, position)); err == nil {
			summary.Already++
			slog.Info("already downloaded", "position", position, "total", len(records), "title", rec.Title)
			continue
		}
		queue = append(queue, pending{position: position, record: rec})
	}

	slog.Info("download plan", "total", summary.Total, "already_downloaded", summary.Already, "to_download", len(queue))
	if len(queue) == 0 {
		slog.Info("all videos already downloaded")
		return summary
	}

	for i, item := range queue {
		if err := r.downloadOne(ctx, item.record, item.position, len(records)); err != nil {
			slog.Error("download failed", "position", item.position, "title", item.record.Title, "error", err)
			summary.Failed = append(summary.Failed, item.record)
		} else {
			summary.Downloaded++
		}

		if i < len(queue)-1 && r.cfg.Pause > 0 {
			select {
			case <-time.After(r.cfg.Pause):
			case <-ctx.Done():
				return summary
			}
		}
	}
	return summary
}

// downloadOne walks the format ladder and finishes with a permissive
// merge-to-mp4 fallback.
func (r *Runner) downloadOne(ctx context.Context, rec lesson.Record, position, total int) error {
	output := r.outputPath(rec, position)
	slog.Info("downloading", "position", position, "total", total, "title", rec.Title)

	if r.spin != nil {
		r.spin.Suffix = fmt.Sprintf(" [%d/%d] %s", position, total, rec.Title)
		r.spin.Start()
		defer r.spin.Stop()
	}

	for _, format := range formatLadder {
		args := r.baseArgs(output, rec.URL)
		args = append(args, "-f", format)
		args = append(args, rec.URL)

		stderr, err := r.exec.Run(ctx, r.cfg.Binary, args...)
		if err == nil {
			slog.Info("downloaded", "position", position, "total", total, "title", rec.Title)
			return nil
		}
		if strings.Contains(stderr, formatUnavailable) {
			slog.Debug("format unavailable, trying next", "format", format)
			continue
		}
		slog.Error("download attempt failed", "format", format, "title", rec.Title, "stderr", strings.TrimSpace(stderr))
	}

	slog.Info("attempting fallback download", "position", position, "total", total)
	args := r.baseArgs(output, rec.URL)
	args = append(args, "--merge-output-format", "mp4")
	args = append(args, rec.URL)

	if _, err := r.exec.Run(ctx, r.cfg.Binary, args...); err == nil {
		slog.Info("downloaded via fallback", "position", position, "total", total, "title", rec.Title)
		return nil
	}
	return fmt.Errorf("all download attempts failed for %q", rec.Title)
}

func (r *Runner) baseArgs(output, url string) []string {
	args := []string{
		"--no-warnings",
		"--quiet",
		"--progress",
		"--no-check-certificate",
		"--referer", r.cfg.Referer,
		"--user-agent", r.cfg.UserAgent,
		"-o", output,
	}
	// Manifest URLs download as fragment streams; parallelize those.
	if strings.Contains(url, ".m3u8") {
		args = append(args, "--concurrent-fragments", "4")
	}
	return args
}

func (r *Runner) outputPath(rec lesson.Record, position int) string {
	return filepath.Join(r.cfg.VideosDir, rec.Filename(position))
}
