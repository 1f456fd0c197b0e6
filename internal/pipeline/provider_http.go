package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"
)

// HTTPProvider implements Provider against a subtitle source exposing a
// plain JSON search API, for providers that don't require JS rendering.
type HTTPProvider struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPProvider(name, baseURL, apiKey string, logger *slog.Logger) *HTTPProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPProvider{
		name:       name,
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		logger:     logger.With(slog.String("component", "provider"), slog.String("provider", name)),
	}
}

func (p *HTTPProvider) Name() string { return p.name }

type httpSearchResponse struct {
	Results []struct {
		ID          string  `json:"id"`
		Release     string  `json:"release_name"`
		Language    string  `json:"language"`
		DownloadURL string  `json:"download_url"`
		Trusted     bool    `json:"trusted_uploader"`
		HI          bool    `json:"hearing_impaired"`
		Rating      float64 `json:"rating"`
	} `json:"results"`
}

func (p *HTTPProvider) Search(ctx context.Context, identity MediaIdentity, language string) ([]ProviderCandidate, error) {
	q := url.Values{}
	q.Set("language", language)
	if identity.IsEpisode() {
		q.Set("query", identity.Show)
		q.Set("season", fmt.Sprintf("%d", identity.Season))
		q.Set("episode", fmt.Sprintf("%d", identity.Episode))
	} else if identity.ImdbID != "" {
		q.Set("imdb_id", identity.ImdbID)
	} else {
		q.Set("query", identity.Title)
		q.Set("year", fmt.Sprintf("%d", identity.Year))
	}

	reqURL := p.baseURL + "/search?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("pipeline: build %s search request: %w", p.name, err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %s search request: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pipeline: %s search returned status %d", p.name, resp.StatusCode)
	}

	var parsed httpSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("pipeline: parse %s search response: %w", p.name, err)
	}

	candidates := make([]ProviderCandidate, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		candidates = append(candidates, ProviderCandidate{
			ID:          r.ID,
			ReleaseName: r.Release,
			Language:    r.Language,
			DownloadURL: r.DownloadURL,
			TrustedUser: r.Trusted,
			HearingImp:  r.HI,
			Score:       r.Rating,
		})
	}
	return candidates, nil
}

func (p *HTTPProvider) Download(ctx context.Context, candidate ProviderCandidate, destPath string) error {
	return httpDownload(ctx, candidate.DownloadURL, destPath)
}

// httpDownload fetches url into destPath, shared by every Provider
// implementation's Download step.
func httpDownload(ctx context.Context, downloadURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return fmt.Errorf("pipeline: build download request for %s: %w", downloadURL, err)
	}
	resp, err := (&http.Client{Timeout: 30 * time.Second}).Do(req)
	if err != nil {
		return fmt.Errorf("pipeline: download %s: %w", downloadURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pipeline: download %s returned status %d", downloadURL, resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("pipeline: create %s: %w", destPath, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("pipeline: write %s: %w", destPath, err)
	}
	return nil
}
