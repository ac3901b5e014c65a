package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rolltidehero/whop-downloader/internal/config"
	"github.com/rolltidehero/whop-downloader/internal/course"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	command, courseURL, targetDir, force, err := parseArgs(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		usage()
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	paths, err := config.ResolvePaths(targetDir)
	if err != nil {
		slog.Error("failed to resolve paths", "target_dir", targetDir, "error", err)
		return 1
	}
	if err := paths.Ensure(); err != nil {
		slog.Error("failed to create run directories", "error", err)
		return 1
	}

	if err := setupLogger(cfg.LogLevel, paths.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		return 1
	}

	slog.Info("whop-downloader config loaded",
		"command", command,
		"course_url", courseURL,
		"target_dir", paths.TargetDir,
		"cdp_address", cfg.CDPAddress,
		"cdp_port", cfg.CDPPort,
		"log_level", cfg.LogLevel,
		"log_file", paths.LogFile,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := course.NewService(cfg, paths)

	switch command {
	case "download":
		err = svc.RunDownload(ctx, courseURL, force)
	case "test":
		err = svc.RunTest(ctx, courseURL, force)
	}
	if err != nil {
		slog.Error("run failed", "command", command, "error", err)
		return 1
	}
	return 0
}

func parseArgs(args []string) (command, courseURL, targetDir string, force bool, err error) {
	if len(args) < 2 {
		return "", "", "", false, fmt.Errorf("missing command or course URL")
	}

	command = args[0]
	if command != "download" && command != "test" {
		return "", "", "", false, fmt.Errorf("unknown command %q", command)
	}

	courseURL = args[1]
	if !strings.HasPrefix(courseURL, "http://") && !strings.HasPrefix(courseURL, "https://") {
		return "", "", "", false, fmt.Errorf("course URL must start with http:// or https://")
	}

	for _, arg := range args[2:] {
		switch {
		case arg == "--force":
			force = true
		case strings.HasPrefix(arg, "--"):
			return "", "", "", false, fmt.Errorf("unknown flag %q", arg)
		case command == "download" && targetDir == "":
			targetDir = arg
		default:
			return "", "", "", false, fmt.Errorf("unexpected argument %q", arg)
		}
	}
	return command, courseURL, targetDir, force, nil
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage:
  whop-downloader download <course_url> [target_dir] [--force]
  whop-downloader test <course_url> [--force]

Commands:
  download  Extract video URLs from the course and download every video
  test      Extract and report video URLs without downloading

Flags:
  --force   Ignore the cached URL list and re-drive the browser
`)
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
