package capture

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/rolltidehero/whop-downloader/internal/lesson"
)

const (
	streamHost     = "stream.mux.com"
	manifestMarker = ".m3u8"
)

// Stream is one deduplicated manifest capture.
type Stream struct {
	VideoID string
	URL     string
}

// Observer passively watches network responses for streaming manifest URLs
// and deduplicates them by video ID. It is safe for concurrent use: chromedp
// delivers events on its own goroutine while the pager polls Count.
type Observer struct {
	mu      sync.Mutex
	streams map[string]string
	order   []string
}

// NewObserver creates an empty observer.
func NewObserver() *Observer {
	return &Observer{streams: make(map[string]string)}
}

// HandleEvent dispatches a chromedp target event to the observer. Only
// response-received events are inspected; everything else is ignored.
func (o *Observer) HandleEvent(ev interface{}) {
	if e, ok := ev.(*network.EventResponseReceived); ok {
		o.Observe(e.Response.URL)
	}
}

// Observe records the URL when it is a new stream manifest. Duplicate
// deliveries of the same video ID never overwrite the first URL and never
// change the count.
func (o *Observer) Observe(url string) {
	id, ok := manifestID(url)
	if !ok {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, seen := o.streams[id]; seen {
		return
	}
	o.streams[id] = url
	o.order = append(o.order, id)
	slog.Info("captured video", "number", len(o.order), "video_id", id)
}

// Count returns the number of distinct streams seen so far. It only grows.
func (o *Observer) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.order)
}

// Streams returns the captured streams in discovery order.
func (o *Observer) Streams() []Stream {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]Stream, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, Stream{VideoID: id, URL: o.streams[id]})
	}
	return out
}

// Records converts the captured streams to an ordered lesson sequence,
// assigning 1-based positions in discovery order.
func (o *Observer) Records() []lesson.Record {
	streams := o.Streams()
	records := make([]lesson.Record, 0, len(streams))
	for i, s := range streams {
		records = append(records, lesson.NewRecord(i+1, s.VideoID, s.URL))
	}
	return records
}

// manifestID extracts the stable identifier from a stream manifest URL:
// the path segment preceding the .m3u8 extension with the query stripped.
// The second return is false when the URL is not a manifest of interest.
func manifestID(url string) (string, bool) {
	if !strings.Contains(url, streamHost) || !strings.Contains(url, manifestMarker) {
		return "", false
	}

	seg := url
	if i := strings.LastIndex(seg, "/"); i >= 0 {
		seg = seg[i+1:]
	}
	if i := strings.Index(seg, manifestMarker); i >= 0 {
		seg = seg[:i]
	}
	if i := strings.Index(seg, "?"); i >= 0 {
		seg = seg[:i]
	}
	if seg == "" {
		return "", false
	}
	return seg, true
}
