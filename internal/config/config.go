package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for a downloader run.
type Config struct {
	// CDP connection settings
	CDPAddress       string
	CDPPort          int
	CDPPortFallbacks []int

	// Browser settings
	ProfileDir string
	WindowSize string

	// Logging
	LogLevel string

	// Pager policy. The stall thresholds and the post-recovery credit are
	// deliberately configurable rather than hard-coded; their defaults
	// carry no documented tuning rationale.
	SettleDelay       time.Duration
	DetectDelay       time.Duration
	PrimaryStallLimit int
	RecoveryTrigger   int
	StallCredit       int
	MaxAttempts       int
	MonitorInterval   time.Duration
	MonitorTimeout    time.Duration
	StatusInterval    time.Duration
	LoginTimeout      time.Duration
	PageLoadTimeout   time.Duration

	// Downloader settings
	YTDLPBinary string
	Referer     string
	UserAgent   string

	// Optional completion notification endpoint. Empty disables.
	NTFYEndpoint string
}

// Paths groups the filesystem locations derived from a target directory.
type Paths struct {
	TargetDir    string
	DownloadsDir string
	VideosDir    string
	LogDir       string
	LogFile      string
	CacheFile    string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:       getEnvOrDefault("WHOPDL_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:          getEnvIntOrDefault("WHOPDL_CDP_PORT", 9222),
		CDPPortFallbacks: getEnvIntListOrDefault("WHOPDL_CDP_PORT_FALLBACKS", []int{9223, 9224, 9225}),

		ProfileDir: getEnvOrDefault("WHOPDL_PROFILE_DIR", ".whop_browser_data"),
		WindowSize: getEnvOrDefault("WHOPDL_WINDOW_SIZE", "1920,1080"),

		LogLevel: strings.ToLower(getEnvOrDefault("WHOPDL_LOG_LEVEL", "info")),

		SettleDelay:       getEnvDurationOrDefault("WHOPDL_SETTLE_DELAY", 2*time.Second),
		DetectDelay:       getEnvDurationOrDefault("WHOPDL_DETECT_DELAY", 3*time.Second),
		PrimaryStallLimit: getEnvIntOrDefault("WHOPDL_PRIMARY_STALL_LIMIT", 30),
		RecoveryTrigger:   getEnvIntOrDefault("WHOPDL_RECOVERY_TRIGGER", 15),
		StallCredit:       getEnvIntOrDefault("WHOPDL_STALL_CREDIT", 10),
		MaxAttempts:       getEnvIntOrDefault("WHOPDL_MAX_ATTEMPTS", 150),
		MonitorInterval:   getEnvDurationOrDefault("WHOPDL_MONITOR_INTERVAL", 2*time.Second),
		MonitorTimeout:    getEnvDurationOrDefault("WHOPDL_MONITOR_TIMEOUT", 10*time.Minute),
		StatusInterval:    getEnvDurationOrDefault("WHOPDL_STATUS_INTERVAL", 30*time.Second),
		LoginTimeout:      getEnvDurationOrDefault("WHOPDL_LOGIN_TIMEOUT", 5*time.Minute),
		PageLoadTimeout:   getEnvDurationOrDefault("WHOPDL_PAGE_LOAD_TIMEOUT", 60*time.Second),

		YTDLPBinary: getEnvOrDefault("WHOPDL_YTDLP_BINARY", "yt-dlp"),
		Referer:     getEnvOrDefault("WHOPDL_REFERER", "https://whop.com/"),
		UserAgent: getEnvOrDefault("WHOPDL_USER_AGENT",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"),

		NTFYEndpoint: getEnvOrDefault("WHOPDL_NTFY_ENDPOINT", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.PrimaryStallLimit <= c.RecoveryTrigger {
		return fmt.Errorf("WHOPDL_PRIMARY_STALL_LIMIT (%d) must exceed WHOPDL_RECOVERY_TRIGGER (%d)",
			c.PrimaryStallLimit, c.RecoveryTrigger)
	}
	if c.StallCredit >= c.RecoveryTrigger {
		return fmt.Errorf("WHOPDL_STALL_CREDIT (%d) must be below WHOPDL_RECOVERY_TRIGGER (%d)",
			c.StallCredit, c.RecoveryTrigger)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("WHOPDL_MAX_ATTEMPTS must be >= 1, got %d", c.MaxAttempts)
	}
	return nil
}

// GetCDPURL returns the CDP HTTP endpoint used by the chromedp remote allocator.
func (c *Config) GetCDPURL(port int) string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, port)
}

// ResolvePaths derives all run paths from the target directory. An empty
// target resolves to the current working directory.
func ResolvePaths(targetDir string) (Paths, error) {
	if targetDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return Paths{}, fmt.Errorf("resolve working directory: %w", err)
		}
		targetDir = wd
	}

	downloads := filepath.Join(targetDir, "downloads")
	logDir := filepath.Join(targetDir, "logs")
	return Paths{
		TargetDir:    targetDir,
		DownloadsDir: downloads,
		VideosDir:    filepath.Join(downloads, "videos"),
		LogDir:       logDir,
		LogFile:      filepath.Join(logDir, "whop_downloader.log"),
		CacheFile:    filepath.Join(downloads, "video_urls.json"),
	}, nil
}

// Ensure creates the directories a run writes into.
func (p Paths) Ensure() error {
	for _, dir := range []string{p.VideosDir, p.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvIntListOrDefault(key string, defaultVal []int) []int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []int
	for _, part := range strings.Split(val, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		i, err := strconv.Atoi(part)
		if err != nil {
			return defaultVal
		}
		out = append(out, i)
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
