package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strconv"
)

// FFSubSyncTool implements SyncTool via the ffsubsync CLI (tool A).
type FFSubSyncTool struct {
	BinPath string
	Logger  *slog.Logger
}

func NewFFSubSyncTool(binPath string, logger *slog.Logger) *FFSubSyncTool {
	if binPath == "" {
		binPath = "ffsubsync"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFSubSyncTool{BinPath: binPath, Logger: logger.With(slog.String("component", "ffsubsync"))}
}

func (t *FFSubSyncTool) Name() string { return "ffsubsync" }

var offsetLineRe = regexp.MustCompile(`(?i)offset\s+seconds?:\s*(-?[0-9.]+)`)

func (t *FFSubSyncTool) MeasureOffsetSeconds(ctx context.Context, videoPath, subtitlePath string) (float64, error) {
	cmd := exec.CommandContext(ctx, t.BinPath, videoPath, "-i", subtitlePath, "--no-fix-framerate")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("pipeline: ffsubsync measure %s: %w", subtitlePath, err)
	}
	m := offsetLineRe.FindSubmatch(stdout.Bytes())
	if m == nil {
		return 0, fmt.Errorf("pipeline: ffsubsync output did not report an offset for %s", subtitlePath)
	}
	offset, err := strconv.ParseFloat(string(m[1]), 64)
	if err != nil {
		return 0, fmt.Errorf("pipeline: parse ffsubsync offset: %w", err)
	}
	return offset, nil
}

func (t *FFSubSyncTool) Resync(ctx context.Context, videoPath, subtitlePath string, offsetSeconds float64) error {
	tmpOut := subtitlePath + ".synced.tmp"
	cmd := exec.CommandContext(ctx, t.BinPath, videoPath, "-i", subtitlePath, "-o", tmpOut)
	if err := cmd.Run(); err != nil {
		os.Remove(tmpOut)
		return fmt.Errorf("pipeline: ffsubsync resync %s: %w", subtitlePath, err)
	}
	if err := os.Rename(tmpOut, subtitlePath); err != nil {
		return fmt.Errorf("pipeline: atomically replace %s: %w", subtitlePath, err)
	}
	return nil
}

// AlassSyncTool implements SyncTool via the alass CLI (tool B, the fallback
// when ffsubsync fails).
type AlassSyncTool struct {
	BinPath string
	Logger  *slog.Logger
}

func NewAlassSyncTool(binPath string, logger *slog.Logger) *AlassSyncTool {
	if binPath == "" {
		binPath = "alass"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AlassSyncTool{BinPath: binPath, Logger: logger.With(slog.String("component", "alass"))}
}

func (t *AlassSyncTool) Name() string { return "alass" }

func (t *AlassSyncTool) MeasureOffsetSeconds(ctx context.Context, videoPath, subtitlePath string) (float64, error) {
	// alass does not report a standalone offset; Resync performs
	// measurement and correction in one pass, so any non-zero sentinel
	// here triggers the Synchronizer to call Resync directly.
	return 1, nil
}

func (t *AlassSyncTool) Resync(ctx context.Context, videoPath, subtitlePath string, offsetSeconds float64) error {
	tmpOut := subtitlePath + ".synced.tmp"
	cmd := exec.CommandContext(ctx, t.BinPath, videoPath, subtitlePath, tmpOut)
	if err := cmd.Run(); err != nil {
		os.Remove(tmpOut)
		return fmt.Errorf("pipeline: alass resync %s: %w", subtitlePath, err)
	}
	if err := os.Rename(tmpOut, subtitlePath); err != nil {
		return fmt.Errorf("pipeline: atomically replace %s: %w", subtitlePath, err)
	}
	return nil
}
