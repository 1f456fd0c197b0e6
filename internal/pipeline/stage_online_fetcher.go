package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// OnlineFetcher queries each configured Provider by precise identifiers,
// scores candidates, and downloads the top one meeting a minimum score
// threshold. A successful primary-language download is saved to the
// standard path; a fallback-language hit is remembered as a candidate for
// FinalSelector (spec §4.5).
type OnlineFetcher struct {
	Providers []Provider
	MinScore  float64
	logger    *slog.Logger
}

func NewOnlineFetcher(providers []Provider, minScore float64, logger *slog.Logger) *OnlineFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnlineFetcher{Providers: providers, MinScore: minScore, logger: logger}
}

func (s *OnlineFetcher) Name() string   { return "online_fetch" }
func (s *OnlineFetcher) Critical() bool { return false }

func (s *OnlineFetcher) Execute(ctx context.Context, pctx *Context) error {
	if pctx.FoundFinalRO {
		s.logger.Info("final RO already satisfied, skipping online fetch")
		return nil
	}
	if len(s.Providers) == 0 {
		s.logger.Warn("no subtitle providers configured, skipping online fetch")
		return nil
	}

	mediaBasename := filepath.Base(pctx.VideoPath)

	if cand := s.fetchBest(ctx, pctx, mediaBasename, pctx.PrimaryLanguage); cand != nil {
		dest := pctx.StandardSubtitlePath(pctx.PrimaryLanguage)
		if err := s.downloadBy(ctx, cand.provider, cand.candidate, dest); err != nil {
			s.logger.Warn("primary-language download failed", slog.String("error", err.Error()))
		} else {
			pctx.FinalROPath = dest
			pctx.FoundFinalRO = true
			s.logger.Info("online provider satisfied RO goal", slog.String("provider", cand.provider.Name()))
			return nil
		}
	}

	if cand := s.fetchBest(ctx, pctx, mediaBasename, pctx.FallbackLanguage); cand != nil {
		tmpDir, err := tempDirFor(pctx, "pipeline-online-*")
		if err != nil {
			return fmt.Errorf("pipeline: online fetch temp dir: %w", err)
		}
		dest := filepath.Join(tmpDir, "online_en.srt")
		if err := s.downloadBy(ctx, cand.provider, cand.candidate, dest); err != nil {
			s.logger.Warn("fallback-language download failed", slog.String("error", err.Error()))
			return nil
		}
		pctx.CandidateENOnline = &Candidate{
			Path: dest, Language: pctx.FallbackLanguage, Source: "online",
			Score: cand.candidate.Score, ReleaseName: cand.candidate.ReleaseName,
		}
	}
	return nil
}

type scoredProviderCandidate struct {
	provider  Provider
	candidate ProviderCandidate
}

func (s *OnlineFetcher) fetchBest(ctx context.Context, pctx *Context, mediaBasename, language string) *scoredProviderCandidate {
	var best *scoredProviderCandidate
	var bestScore float64

	for _, provider := range s.Providers {
		results, err := provider.Search(ctx, pctx.Identity, language)
		if err != nil {
			s.logger.Warn("provider search failed", slog.String("provider", provider.Name()), slog.String("error", err.Error()))
			continue
		}
		top := BestCandidate(mediaBasename, results, pctx.Identity, s.MinScore)
		if top == nil {
			continue
		}
		score := ScoreCandidate(mediaBasename, *top, pctx.Identity)
		if best == nil || score > bestScore {
			best = &scoredProviderCandidate{provider: provider, candidate: *top}
			bestScore = score
		}
	}
	return best
}

func (s *OnlineFetcher) downloadBy(ctx context.Context, provider Provider, candidate ProviderCandidate, dest string) error {
	return provider.Download(ctx, candidate, dest)
}

func tempDirFor(pctx *Context, pattern string) (string, error) {
	dir, err := os.MkdirTemp("", pattern)
	if err != nil {
		return "", err
	}
	pctx.RegisterTempDir(dir)
	return dir, nil
}
