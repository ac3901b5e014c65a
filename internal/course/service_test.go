package course

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/rolltidehero/whop-downloader/internal/config"
	"github.com/rolltidehero/whop-downloader/internal/lesson"
)

func testConfig() *config.Config {
	return &config.Config{
		CDPAddress:        "127.0.0.1",
		CDPPort:           9222,
		SettleDelay:       2 * time.Second,
		DetectDelay:       3 * time.Second,
		PrimaryStallLimit: 30,
		RecoveryTrigger:   15,
		StallCredit:       10,
		MaxAttempts:       150,
		MonitorInterval:   2 * time.Second,
		MonitorTimeout:    10 * time.Minute,
		StatusInterval:    30 * time.Second,
		LoginTimeout:      5 * time.Minute,
		YTDLPBinary:       "yt-dlp",
		Referer:           "https://whop.com/",
	}
}

func testPaths(t *testing.T) config.Paths {
	t.Helper()
	paths, err := config.ResolvePaths(t.TempDir())
	if err != nil {
		t.Fatalf("ResolvePaths() error = %v", err)
	}
	if err := paths.Ensure(); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	return paths
}

func seedCache(t *testing.T, paths config.Paths, n int) []lesson.Record {
	t.Helper()
	var records []lesson.Record
	for i := 1; i <= n; i++ {
		records = append(records, lesson.NewRecord(i, fmt.Sprintf("vid%03d", i),
			fmt.Sprintf("https://stream.mux.com/vid%03d.m3u8", i)))
	}
	if err := lesson.NewCache(paths.CacheFile).Save(records); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	return records
}

// A warm cache must satisfy extraction with zero browser interactions.
func TestExtractVideoURLsUsesCache(t *testing.T) {
	paths := testPaths(t)
	want := seedCache(t, paths, 3)

	svc := NewService(testConfig(), paths)
	browserRuns := 0
	svc.extractLive = func(context.Context, string) ([]lesson.Record, error) {
		browserRuns++
		return nil, nil
	}

	records, err := svc.ExtractVideoURLs(context.Background(), "https://whop.com/my-course/app/", false)
	if err != nil {
		t.Fatalf("ExtractVideoURLs() error = %v", err)
	}
	if len(records) != len(want) {
		t.Fatalf("ExtractVideoURLs() returned %d records; want %d", len(records), len(want))
	}
	for i, rec := range records {
		if rec.VideoID != want[i].VideoID {
			t.Fatalf("record %d VideoID = %q; want %q", i, rec.VideoID, want[i].VideoID)
		}
	}
	if browserRuns != 0 {
		t.Fatalf("browser extraction ran %d times; want 0 with a warm cache", browserRuns)
	}
}

// force bypasses a valid cache and overwrites it with the fresh extraction.
func TestExtractVideoURLsForceBypassesCache(t *testing.T) {
	paths := testPaths(t)
	seedCache(t, paths, 3)

	fresh := []lesson.Record{
		lesson.NewRecord(1, "fresh1", "https://stream.mux.com/fresh1.m3u8"),
		lesson.NewRecord(2, "fresh2", "https://stream.mux.com/fresh2.m3u8"),
	}
	svc := NewService(testConfig(), paths)
	browserRuns := 0
	svc.extractLive = func(context.Context, string) ([]lesson.Record, error) {
		browserRuns++
		return fresh, nil
	}

	records, err := svc.ExtractVideoURLs(context.Background(), "https://whop.com/my-course/app/", true)
	if err != nil {
		t.Fatalf("ExtractVideoURLs() error = %v", err)
	}
	if browserRuns != 1 {
		t.Fatalf("browser extraction ran %d times; want 1 with force", browserRuns)
	}
	if len(records) != 2 || records[0].VideoID != "fresh1" {
		t.Fatalf("records = %v; want the fresh extraction", records)
	}

	cached, err := lesson.NewCache(paths.CacheFile).Load()
	if err != nil {
		t.Fatalf("Load() after force = %v", err)
	}
	if len(cached) != 2 || cached[1].VideoID != "fresh2" {
		t.Fatalf("cache after force = %v; want overwritten with fresh records", cached)
	}
}

func TestExtractVideoURLsCorruptCacheReExtracts(t *testing.T) {
	paths := testPaths(t)
	if err := os.WriteFile(paths.CacheFile, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	fresh := []lesson.Record{lesson.NewRecord(1, "abc", "https://stream.mux.com/abc.m3u8")}
	svc := NewService(testConfig(), paths)
	svc.extractLive = func(context.Context, string) ([]lesson.Record, error) {
		return fresh, nil
	}

	records, err := svc.ExtractVideoURLs(context.Background(), "https://whop.com/my-course/app/", false)
	if err != nil {
		t.Fatalf("ExtractVideoURLs() error = %v", err)
	}
	if len(records) != 1 || records[0].VideoID != "abc" {
		t.Fatalf("records = %v; want fresh extraction after corrupt cache", records)
	}
}

// The URL file is written on every completed extraction, even one that
// captured nothing.
func TestExtractVideoURLsPersistsEmptyResult(t *testing.T) {
	paths := testPaths(t)

	svc := NewService(testConfig(), paths)
	svc.extractLive = func(context.Context, string) ([]lesson.Record, error) {
		return nil, nil
	}

	records, err := svc.ExtractVideoURLs(context.Background(), "https://whop.com/my-course/app/", false)
	if err != nil {
		t.Fatalf("ExtractVideoURLs() error = %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("records = %v; want none", records)
	}

	data, err := os.ReadFile(paths.CacheFile)
	if err != nil {
		t.Fatalf("cache file not written: %v", err)
	}
	if got := string(data); got != "[]" {
		t.Fatalf("cache file = %q; want %q", got, "[]")
	}
}

func TestRunTestReportsCachedVideos(t *testing.T) {
	paths := testPaths(t)
	seedCache(t, paths, 12)

	svc := NewService(testConfig(), paths)
	if err := svc.RunTest(context.Background(), "https://whop.com/my-course/app/", false); err != nil {
		t.Fatalf("RunTest() error = %v", err)
	}
}

func TestPolicyMirrorsConfig(t *testing.T) {
	cfg := testConfig()
	cfg.PrimaryStallLimit = 40
	cfg.RecoveryTrigger = 20
	cfg.StallCredit = 12
	cfg.LoginTimeout = time.Minute

	policy := NewService(cfg, config.Paths{}).policy()
	if policy.PrimaryStallLimit != 40 {
		t.Fatalf("PrimaryStallLimit = %d; want 40", policy.PrimaryStallLimit)
	}
	if policy.RecoveryTrigger != 20 {
		t.Fatalf("RecoveryTrigger = %d; want 20", policy.RecoveryTrigger)
	}
	if policy.StallCredit != 12 {
		t.Fatalf("StallCredit = %d; want 12", policy.StallCredit)
	}
	if policy.LoginTimeout != time.Minute {
		t.Fatalf("LoginTimeout = %v; want 1m", policy.LoginTimeout)
	}
}

func TestSampleRecords(t *testing.T) {
	short := make([]lesson.Record, 8)
	head, tail := sampleRecords(short, 5)
	if len(head) != 8 || tail != nil {
		t.Fatalf("sampleRecords(8) = %d head, %d tail; want all head", len(head), len(tail))
	}

	long := make([]lesson.Record, 12)
	for i := range long {
		long[i].Index = i + 1
	}
	head, tail = sampleRecords(long, 5)
	if len(head) != 5 || len(tail) != 5 {
		t.Fatalf("sampleRecords(12) = %d head, %d tail; want 5 and 5", len(head), len(tail))
	}
	if tail[0].Index != 8 {
		t.Fatalf("tail starts at index %d; want 8", tail[0].Index)
	}
}
