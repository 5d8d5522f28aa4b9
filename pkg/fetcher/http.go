package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ahjcgit/ifcagent/pkg/ifcerrors"
	"github.com/ahjcgit/ifcagent/pkg/storage"
)

var anyTagPattern = regexp.MustCompile(`<[^>]+>`)
var whitespacePattern = regexp.MustCompile(`\s+`)

// HTTPFetcher fetches over plain HTTP(S), rate-limited per host so a
// batch of URLs against the same origin doesn't hammer it. Grounded
// on the teacher's net/http client shape for outbound calls
// (explicit Timeout, no package-level http.DefaultClient).
type HTTPFetcher struct {
	client    *http.Client
	userAgent string

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewHTTPFetcher builds a fetcher with a default-sized timeout and a
// per-host token bucket of ratePerSecond (burst tokens available
// immediately).
func NewHTTPFetcher(userAgent string, ratePerSecond float64, burst int) *HTTPFetcher {
	return &HTTPFetcher{
		client:    &http.Client{Timeout: DefaultTimeout},
		userAgent: userAgent,
		limiters:  make(map[string]*rate.Limiter),
		rps:       rate.Limit(ratePerSecond),
		burst:     burst,
	}
}

func (f *HTTPFetcher) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(f.rps, f.burst)
		f.limiters[host] = l
	}
	return l
}

// Fetch implements Fetcher. The caller's context bounds the whole
// call, including time spent waiting on the per-host limiter.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (storage.ScrapedContent, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return storage.ScrapedContent{}, fmt.Errorf("%w: parse %s: %v", ifcerrors.ErrFetch, rawURL, err)
	}

	if err := f.limiterFor(parsed.Hostname()).Wait(ctx); err != nil {
		return storage.ScrapedContent{}, fmt.Errorf("%w: rate limit wait for %s: %v", ifcerrors.ErrFetch, rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return storage.ScrapedContent{}, fmt.Errorf("%w: build request for %s: %v", ifcerrors.ErrFetch, rawURL, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return storage.ScrapedContent{}, fmt.Errorf("%w: request %s: %v", ifcerrors.ErrFetch, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return storage.ScrapedContent{}, fmt.Errorf("%w: %s returned status %d", ifcerrors.ErrFetch, rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return storage.ScrapedContent{}, fmt.Errorf("%w: read body of %s: %v", ifcerrors.ErrFetch, rawURL, err)
	}

	rawHTML := string(body)
	return storage.ScrapedContent{
		URL:       rawURL,
		FetchedAt: time.Now().UTC(),
		RawHTML:   rawHTML,
		CleanText: extractCleanText(rawHTML),
	}, nil
}

// extractCleanText strips script/style blocks and remaining tags,
// collapsing whitespace. Not an HTML5-conformant parser; good enough
// for the trust parser's text-presence heuristics.
func extractCleanText(rawHTML string) string {
	noScripts := regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`).ReplaceAllString(rawHTML, " ")
	noStyles := regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`).ReplaceAllString(noScripts, " ")
	noTags := anyTagPattern.ReplaceAllString(noStyles, " ")
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(noTags, " "))
}
