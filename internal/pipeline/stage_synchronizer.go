package pipeline

import (
	"context"
	"log/slog"
	"math"
)

// Synchronizer measures the finalized artifact's offset against the video
// audio with tool A, resyncing via tool A then falling back to tool B on
// failure, replacing the file atomically on success (spec §4.5).
type Synchronizer struct {
	Primary         SyncTool
	Fallback        SyncTool
	OffsetThreshold float64
	logger          *slog.Logger
}

func NewSynchronizer(primary, fallback SyncTool, offsetThreshold float64, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	if offsetThreshold <= 0 {
		offsetThreshold = 0.5
	}
	return &Synchronizer{Primary: primary, Fallback: fallback, OffsetThreshold: offsetThreshold, logger: logger}
}

func (s *Synchronizer) Name() string   { return "synchronize" }
func (s *Synchronizer) Critical() bool { return false }

func (s *Synchronizer) Execute(ctx context.Context, pctx *Context) error {
	finalPath := pctx.FinalROPath
	if finalPath == "" {
		finalPath = pctx.FinalENPath
	}
	if finalPath == "" || !isSRT(finalPath) {
		s.logger.Info("no finalized srt artifact to synchronize")
		return nil
	}
	if s.Primary == nil {
		s.logger.Warn("no primary sync tool configured, skipping synchronization")
		return nil
	}

	offset, err := s.Primary.MeasureOffsetSeconds(ctx, pctx.VideoPath, finalPath)
	if err != nil {
		s.logger.Warn("offset measurement failed", slog.String("tool", s.Primary.Name()), slog.String("error", err.Error()))
		return nil
	}

	if math.Abs(offset) < s.OffsetThreshold {
		s.logger.Info("subtitle offset within threshold, no resync needed", slog.Float64("offset_seconds", offset))
		return nil
	}

	if err := s.Primary.Resync(ctx, pctx.VideoPath, finalPath, offset); err == nil {
		s.logger.Info("resynchronized subtitle", slog.String("tool", s.Primary.Name()), slog.Float64("offset_seconds", offset))
		return nil
	} else {
		s.logger.Warn("primary sync tool failed, trying fallback", slog.String("tool", s.Primary.Name()), slog.String("error", err.Error()))
	}

	if s.Fallback == nil {
		s.logger.Warn("no fallback sync tool configured, leaving subtitle unsynchronized")
		return nil
	}
	if err := s.Fallback.Resync(ctx, pctx.VideoPath, finalPath, offset); err != nil {
		s.logger.Warn("fallback sync tool also failed", slog.String("tool", s.Fallback.Name()), slog.String("error", err.Error()))
		return nil
	}
	s.logger.Info("resynchronized subtitle via fallback tool", slog.String("tool", s.Fallback.Name()))
	return nil
}
