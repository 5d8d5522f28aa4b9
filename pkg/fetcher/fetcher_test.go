package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahjcgit/ifcagent/pkg/ifcerrors"
	"github.com/ahjcgit/ifcagent/pkg/storage"
)

func TestHTTPFetcher_ExtractsCleanTextAndSetsUTCFetchedAt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><script>evil()</script></head><body><p>Hello  world</p></body></html>`))
	}))
	defer server.Close()

	f := NewHTTPFetcher("test-agent/1.0", 100, 10)
	content, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, "Hello world", content.CleanText)
	assert.NotContains(t, content.CleanText, "evil()")
	assert.Equal(t, time.UTC, content.FetchedAt.Location())
	assert.WithinDuration(t, time.Now().UTC(), content.FetchedAt, 5*time.Second)
}

func TestHTTPFetcher_NonOKStatusIsFetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := NewHTTPFetcher("test-agent/1.0", 100, 10)
	_, err := f.Fetch(context.Background(), server.URL)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ifcerrors.ErrFetch))
}

func TestStaticFetcher_KnownAndUnknownURL(t *testing.T) {
	f := NewStaticFetcher(map[string]storage.ScrapedContent{
		"https://a.test": {URL: "https://a.test", CleanText: "alpha beta"},
	})

	content, err := f.Fetch(context.Background(), "https://a.test")
	require.NoError(t, err)
	assert.Equal(t, "alpha beta", content.CleanText)

	_, err = f.Fetch(context.Background(), "https://missing.test")
	assert.True(t, errors.Is(err, ifcerrors.ErrFetch))
}
