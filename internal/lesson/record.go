package lesson

import (
	"fmt"
	"strings"
)

// Record describes one discovered lesson video. Records are immutable once
// written to the cache; Index is 1-based and follows discovery order.
type Record struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	VideoID string `json:"video_id"`
	Index   int    `json:"index"`
}

// NewRecord builds a record for the given discovery position.
func NewRecord(position int, videoID, url string) Record {
	return Record{
		Title:   fmt.Sprintf("Lesson %02d", position),
		URL:     url,
		VideoID: videoID,
		Index:   position,
	}
}

// SafeTitle returns the record title reduced to filename-safe characters:
// alphanumerics, dash, and underscore, with spaces collapsed to underscores.
func (r Record) SafeTitle() string {
	var b strings.Builder
	for _, c := range r.Title {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == ' ', c == '-', c == '_':
			b.WriteRune(c)
		}
	}
	safe := strings.TrimRight(b.String(), " ")
	return strings.ReplaceAll(safe, " ", "_")
}

// Filename returns the on-disk name for the record at the given position.
func (r Record) Filename(position int) string {
	return fmt.Sprintf("%03d_%s.mp4", position, r.SafeTitle())
}
