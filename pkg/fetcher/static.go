package fetcher

import (
	"context"
	"fmt"

	"github.com/ahjcgit/ifcagent/pkg/ifcerrors"
	"github.com/ahjcgit/ifcagent/pkg/storage"
)

// StaticFetcher is a fixture-backed Fetcher for tests: each URL maps
// to a canned ScrapedContent, or the lookup fails with FetchError.
type StaticFetcher struct {
	Pages map[string]storage.ScrapedContent
}

// NewStaticFetcher builds a StaticFetcher from url -> (rawHTML, cleanText) fixtures.
func NewStaticFetcher(pages map[string]storage.ScrapedContent) *StaticFetcher {
	return &StaticFetcher{Pages: pages}
}

// Fetch returns the fixture for url, or a FetchError if none is registered.
func (f *StaticFetcher) Fetch(ctx context.Context, url string) (storage.ScrapedContent, error) {
	page, ok := f.Pages[url]
	if !ok {
		return storage.ScrapedContent{}, fmt.Errorf("%w: no fixture registered for %s", ifcerrors.ErrFetch, url)
	}
	return page, nil
}
