package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserProvider implements Provider for subtitle sites that render their
// search results via client-side JavaScript and have no stable scrape-able
// HTML without executing it, following the teacher's chromedp
// headless-browser automation idiom (cmd/scraper/main.go's
// NewExecAllocator + NewContext + chromedp.Run(ctx, chromedp.Tasks{...})
// pattern), repurposed from ISX daily-report scraping to subtitle-provider
// search-result scraping.
type BrowserProvider struct {
	name       string
	searchURL  string // format string with one %s for the query
	resultSel  string
	headless   bool
	timeout    time.Duration
	logger     *slog.Logger
}

func NewBrowserProvider(name, searchURL, resultSel string, headless bool, timeout time.Duration, logger *slog.Logger) *BrowserProvider {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserProvider{
		name:      name,
		searchURL: searchURL,
		resultSel: resultSel,
		headless:  headless,
		timeout:   timeout,
		logger:    logger.With(slog.String("component", "provider"), slog.String("provider", name)),
	}
}

func (b *BrowserProvider) Name() string { return b.name }

// browserSearchResult mirrors one DOM row scraped from the provider's
// results page before it is converted into a ProviderCandidate.
type browserSearchResult struct {
	Title       string `json:"title"`
	Href        string `json:"href"`
	Language    string `json:"language"`
	TrustedUser bool   `json:"trustedUser"`
	HearingImp  bool   `json:"hearingImpaired"`
}

func (b *BrowserProvider) Search(ctx context.Context, identity MediaIdentity, language string) ([]ProviderCandidate, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", b.headless))
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	timeoutCtx, cancelTimeout := context.WithTimeout(browserCtx, b.timeout)
	defer cancelTimeout()

	query := searchQueryFor(identity)
	url := fmt.Sprintf(b.searchURL, query)

	var results []browserSearchResult
	err := chromedp.Run(timeoutCtx,
		chromedp.Navigate(url),
		chromedp.WaitVisible(b.resultSel, chromedp.ByQuery),
		chromedp.Evaluate(fmt.Sprintf(`
			Array.from(document.querySelectorAll(%q)).map(function(el) {
				return {
					title: (el.querySelector('a') || el).textContent.trim(),
					href: (el.querySelector('a') || el).href || '',
					language: el.getAttribute('data-language') || '',
					trustedUser: el.getAttribute('data-trusted') === 'true',
					hearingImpaired: el.getAttribute('data-hi') === 'true'
				};
			})
		`, b.resultSel), &results),
	)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %s browser search for %q: %w", b.name, query, err)
	}

	candidates := make([]ProviderCandidate, 0, len(results))
	for i, r := range results {
		if language != "" && r.Language != "" && r.Language != language {
			continue
		}
		candidates = append(candidates, ProviderCandidate{
			ID:          b.name + "-" + strconv.Itoa(i),
			ReleaseName: r.Title,
			Language:    language,
			DownloadURL: r.Href,
			TrustedUser: r.TrustedUser,
			HearingImp:  r.HearingImp,
		})
	}
	return candidates, nil
}

func (b *BrowserProvider) Download(ctx context.Context, candidate ProviderCandidate, destPath string) error {
	return httpDownload(ctx, candidate.DownloadURL, destPath)
}

func searchQueryFor(identity MediaIdentity) string {
	if identity.IsEpisode() {
		return fmt.Sprintf("%s S%02dE%02d", identity.Show, identity.Season, identity.Episode)
	}
	if identity.ImdbID != "" {
		return identity.ImdbID
	}
	return fmt.Sprintf("%s %d", identity.Title, identity.Year)
}
