// Package fetcher implements the external-collaborator contract of
// spec.md §4.7: fetch(url) -> ScrapedContent, may fail with FetchError.
package fetcher

import (
	"context"
	"time"

	"github.com/ahjcgit/ifcagent/pkg/storage"
)

// Fetcher retrieves a single URL's content. Implementations must set
// FetchedAt to a UTC RFC-3339 timestamp.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (storage.ScrapedContent, error)
}

// DefaultTimeout is the per-fetch timeout absent an explicit context
// deadline (spec.md §5).
const DefaultTimeout = 30 * time.Second
