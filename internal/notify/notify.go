package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// RunSummary formats a human-readable completion message for a finished run.
func RunSummary(courseURL string, total, already, downloaded, failed int) string {
	msg := fmt.Sprintf("Course download finished for %s: %d videos (%d new, %d already on disk)", courseURL, total, downloaded, already)
	if failed > 0 {
		msg += fmt.Sprintf(", %d failed", failed)
	}
	return msg
}

// Send posts a plain-text message to the requested endpoint.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
