package pipeline

import (
	"regexp"
	"strconv"
	"strings"
)

// releaseQualityCategory buckets a release-name token into the category
// spec §4.5's scoring rules weight independently (resolution, source,
// codec, streaming-service tag).
type releaseQualityCategory int

const (
	categoryNone releaseQualityCategory = iota
	categoryResolution
	categorySource
	categoryCodec
	categoryStreamingService
)

var releaseTokenCategory = map[string]releaseQualityCategory{
	"2160p": categoryResolution, "1080p": categoryResolution, "720p": categoryResolution, "480p": categoryResolution,
	"bluray": categorySource, "brrip": categorySource, "bdrip": categorySource,
	"webdl": categorySource, "web-dl": categorySource, "webrip": categorySource, "hdtv": categorySource, "dvdrip": categorySource,
	"x264": categoryCodec, "x265": categoryCodec, "h264": categoryCodec, "h265": categoryCodec, "hevc": categoryCodec, "avc": categoryCodec,
	"netflix": categoryStreamingService, "nf": categoryStreamingService, "amzn": categoryStreamingService,
	"amazon": categoryStreamingService, "hulu": categoryStreamingService, "disney": categoryStreamingService, "dsnp": categoryStreamingService,
}

var categoryWeight = map[releaseQualityCategory]float64{
	categoryResolution:       3,
	categorySource:           2,
	categoryCodec:            1,
	categoryStreamingService: 2,
}

var tokenSplitRe = regexp.MustCompile(`[^a-z0-9]+`)

// tokenize lowercases and splits s on any non-alphanumeric run, the basis
// for the basename/release-name common-token comparison.
func tokenize(s string) []string {
	lower := strings.ToLower(s)
	parts := tokenSplitRe.Split(lower, -1)
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ScoreCandidate implements spec §4.5's scoring rules: common-token base
// score plus release-quality-category weighting, trusted-source bonus,
// machine-translated and hearing-impaired penalties, with a mandatory
// episode-match rejection (returns -1) when identity names an episode and
// the release text names a different one.
func ScoreCandidate(mediaBasename string, candidate ProviderCandidate, identity MediaIdentity) float64 {
	if identity.IsEpisode() && !releaseMatchesEpisode(candidate.ReleaseName, identity.Season, identity.Episode) {
		return -1
	}

	baseTokens := tokenize(mediaBasename)
	releaseTokens := tokenize(candidate.ReleaseName)

	baseSet := make(map[string]bool, len(baseTokens))
	for _, t := range baseTokens {
		baseSet[t] = true
	}

	var score float64
	seenCategories := make(map[releaseQualityCategory]bool)
	for _, t := range releaseTokens {
		if baseSet[t] {
			score++
		}
		if cat, ok := releaseTokenCategory[t]; ok && !seenCategories[cat] {
			score += categoryWeight[cat]
			seenCategories[cat] = true
		}
	}

	if candidate.TrustedUser {
		score += 2
	}
	if strings.Contains(strings.ToLower(candidate.ReleaseName), "machine") || strings.Contains(strings.ToLower(candidate.ReleaseName), "mt") {
		score -= 3
	}
	if candidate.HearingImp {
		score -= 1
	}

	return score
}

var episodeTagRe = regexp.MustCompile(`(?i)s(\d{1,2})e(\d{1,3})`)

// releaseMatchesEpisode enforces the "episode match is mandatory" rule:
// when a release name carries an SxxEyy tag, it must match exactly.
func releaseMatchesEpisode(releaseName string, season, episode int) bool {
	m := episodeTagRe.FindStringSubmatch(releaseName)
	if m == nil {
		// No explicit tag to contradict the target — don't reject on
		// absence, only on mismatch.
		return true
	}
	gotSeason, err1 := strconv.Atoi(m[1])
	gotEpisode, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil {
		return true
	}
	return gotSeason == season && gotEpisode == episode
}

// BestCandidate returns the highest-scored candidate among cands whose
// score is at least minScore, or nil if none qualify.
func BestCandidate(mediaBasename string, cands []ProviderCandidate, identity MediaIdentity, minScore float64) *ProviderCandidate {
	var best *ProviderCandidate
	var bestScore float64
	for i := range cands {
		s := ScoreCandidate(mediaBasename, cands[i], identity)
		if s < minScore {
			continue
		}
		if best == nil || s > bestScore {
			best = &cands[i]
			bestScore = s
		}
	}
	return best
}
