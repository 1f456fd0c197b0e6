// Command subtitleworker is the external subprocess the Supervisor spawns
// per job (spec §4.2, §4.5): it reads its assignment from the environment
// contract the Supervisor sets up, runs the Selection Pipeline once per
// video file discovered under the job folder, and exits 0 only if every
// video produced a usable result.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"subsvc/internal/config"
	"subsvc/internal/pipeline"
	"subsvc/internal/validation"
)

func main() {
	jobID := os.Getenv("JOB_ID")
	folder := os.Getenv("JOB_FOLDER")
	language := os.Getenv("JOB_LANGUAGE")
	logLevel := os.Getenv("JOB_LOG_LEVEL")

	logger := newWorkerLogger(logLevel).With(slog.String("job_id", jobID))

	if folder == "" {
		logger.Error("JOB_FOLDER not set")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if language == "" {
		language = cfg.Pipeline.PrimaryLanguage
	}

	fileValidator := validation.NewFileValidator(logger)
	if err := fileValidator.ValidateInputDirectory(folder, ""); err != nil {
		logger.Error("job folder failed validation", slog.String("folder", folder), slog.String("error", err.Error()))
		os.Exit(1)
	}

	videos, err := discoverVideoFiles(folder, cfg.Pipeline.VideoExtensions)
	if err != nil {
		logger.Error("failed to scan job folder", slog.String("folder", folder), slog.String("error", err.Error()))
		os.Exit(1)
	}
	if len(videos) == 0 {
		logger.Error("no video files found in job folder", slog.String("folder", folder))
		os.Exit(1)
	}

	stages := buildStages(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	failures := 0
	for _, videoPath := range videos {
		pctx := &pipeline.Context{
			VideoPath:        videoPath,
			Identity:         pipeline.ParseMediaIdentity(videoPath),
			PrimaryLanguage:  language,
			FallbackLanguage: cfg.Pipeline.FallbackLanguage,
			Logger:           logger,
		}

		logger.Info("running selection pipeline", slog.String("video", videoPath))
		if err := pipeline.New(stages, logger).Run(ctx, pctx); err != nil {
			logger.Error("pipeline run failed", slog.String("video", videoPath), slog.String("error", err.Error()))
			failures++
			continue
		}
		logger.Info("pipeline run complete",
			slog.String("video", videoPath),
			slog.Bool("found_final_ro", pctx.FoundFinalRO),
			slog.String("final_ro_path", pctx.FinalROPath),
			slog.String("final_en_path", pctx.FinalENPath))
	}

	if failures > 0 {
		logger.Error("one or more videos failed the selection pipeline", slog.Int("failures", failures), slog.Int("total", len(videos)))
		os.Exit(1)
	}
	os.Exit(0)
}

// newWorkerLogger builds a stdout-only text handler: the Supervisor reads
// this process's stdout/stderr line by line and republishes it to the Log
// Bus, so writing to a log file here would be invisible to subscribers.
func newWorkerLogger(level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(level)}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// discoverVideoFiles lists files directly under folder whose extension
// matches one of exts, case-insensitively.
func discoverVideoFiles(folder string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("read job folder: %w", err)
	}

	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		allowed[strings.ToLower(e)] = true
	}

	var videos []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if allowed[strings.ToLower(filepath.Ext(e.Name()))] {
			videos = append(videos, filepath.Join(folder, e.Name()))
		}
	}
	return videos, nil
}

// buildStages assembles the seven-stage chain in spec §4.5's fixed order,
// wiring each capability from PipelineConfig/ProviderConfig. Stages whose
// only capability implementation requires a credential that isn't
// configured are omitted rather than left to fail at run time.
func buildStages(cfg *config.Config, logger *slog.Logger) []pipeline.Strategy {
	prober := pipeline.NewFFProbeMediaProber(cfg.Pipeline.MediaProbePath, cfg.Pipeline.FFmpegPath, logger)
	ocr := pipeline.NewTesseractOCREngine(cfg.Pipeline.OCRToolPath, logger)

	var providers []pipeline.Provider
	if cfg.Provider.OpenSubtitlesBaseURL != "" {
		providers = append(providers, pipeline.NewHTTPProvider("opensubtitles", cfg.Provider.OpenSubtitlesBaseURL, cfg.Provider.OpenSubtitlesAPIKey, logger))
	}
	if cfg.Provider.BrowserProviderEnabled {
		providers = append(providers, pipeline.NewBrowserProvider(
			cfg.Provider.BrowserProviderName,
			cfg.Provider.BrowserSearchURL,
			cfg.Provider.BrowserResultSelector,
			cfg.Provider.BrowserHeadless,
			cfg.Provider.BrowserTimeout(),
			logger,
		))
	}

	stages := []pipeline.Strategy{
		pipeline.NewStandardFileChecker(logger),
		pipeline.NewEmbedScanner(prober, ocr, logger),
		pipeline.NewLocalScanner(logger),
		pipeline.NewOnlineFetcher(providers, cfg.Pipeline.MinScoreThreshold, logger),
		pipeline.NewFinalSelector(logger),
	}

	if cfg.Provider.GoogleTranslateAPIKey != "" {
		translateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		translator, err := pipeline.NewGoogleTranslator(translateCtx, cfg.Provider.GoogleTranslateAPIKey, logger)
		if err != nil {
			logger.Warn("google translator unavailable, translate stage skipped", slog.String("error", err.Error()))
		} else {
			stages = append(stages, pipeline.NewTranslatorStage(translator, true, logger))
		}
	}

	primarySync := pipeline.NewFFSubSyncTool(cfg.Pipeline.SyncToolAPath, logger)
	fallbackSync := pipeline.NewAlassSyncTool(cfg.Pipeline.SyncToolBPath, logger)
	stages = append(stages, pipeline.NewSynchronizer(primarySync, fallbackSync, cfg.Pipeline.OffsetThresholdSec, logger))

	return stages
}
