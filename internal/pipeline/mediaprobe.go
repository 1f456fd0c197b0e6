package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
)

// FFProbeMediaProber implements MediaProber by shelling out to ffprobe,
// following the teacher's exec.CommandContext + stdout-capture idiom for
// invoking external binaries (internal/operations/stages.go's ScrapingStage).
type FFProbeMediaProber struct {
	FFProbePath string
	FFMpegPath  string
	Logger      *slog.Logger
}

func NewFFProbeMediaProber(ffprobePath, ffmpegPath string, logger *slog.Logger) *FFProbeMediaProber {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFProbeMediaProber{FFProbePath: ffprobePath, FFMpegPath: ffmpegPath, Logger: logger.With(slog.String("component", "mediaprobe"))}
}

type ffprobeOutput struct {
	Streams []struct {
		Index     int    `json:"index"`
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Tags      struct {
			Language string `json:"language"`
		} `json:"tags"`
	} `json:"streams"`
}

var textSubtitleCodecs = map[string]bool{
	"subrip": true,
	"ass":    true,
	"ssa":    true,
	"mov_text": true,
	"webvtt": true,
}

func (p *FFProbeMediaProber) ProbeSubtitleStreams(ctx context.Context, videoPath string) ([]SubtitleStream, error) {
	cmd := exec.CommandContext(ctx, p.FFProbePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		videoPath,
	)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pipeline: ffprobe %s: %w", videoPath, err)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &parsed); err != nil {
		return nil, fmt.Errorf("pipeline: parse ffprobe output for %s: %w", videoPath, err)
	}

	var streams []SubtitleStream
	for _, s := range parsed.Streams {
		if s.CodecType != "subtitle" {
			continue
		}
		streams = append(streams, SubtitleStream{
			Index:    s.Index,
			Language: s.Tags.Language,
			Codec:    s.CodecName,
			IsText:   textSubtitleCodecs[s.CodecName],
		})
	}
	return streams, nil
}

func (p *FFProbeMediaProber) ExtractStream(ctx context.Context, videoPath string, stream SubtitleStream, outPath string) error {
	cmd := exec.CommandContext(ctx, p.FFMpegPath,
		"-y",
		"-i", videoPath,
		"-map", fmt.Sprintf("0:%d", stream.Index),
		outPath,
	)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pipeline: ffmpeg extract stream %d from %s: %w", stream.Index, videoPath, err)
	}
	return nil
}
