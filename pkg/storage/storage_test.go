package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahjcgit/ifcagent/pkg/lattice"
)

// backends returns one fresh instance per backend under test, each
// wired to its own temp directory.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	fileStore, err := NewFileStore(filepath.Join(dir, "state.json"))
	require.NoError(t, err)

	sqliteStore, err := NewSQLiteStore(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]Store{
		"file":   fileStore,
		"sqlite": sqliteStore,
		"memory": NewMemoryStore(),
	}
}

func content(url, text string) ScrapedContent {
	return ScrapedContent{
		URL:       url,
		FetchedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		RawHTML:   "<html></html>",
		CleanText: text,
	}
}

func assessment(score float64, level string) TrustAssessment {
	return TrustAssessment{
		Score:   score,
		Label:   lattice.NewLabel(level, nil),
		Signals: map[string]float64{"https": 1},
	}
}

func TestStore_DedupByURL(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			d1, _, err := store.Store(content("https://a.test/1", "first body"), assessment(0.9, "Public"))
			require.NoError(t, err)

			d2, a2, err := store.Store(content("https://a.test/1", "second body"), assessment(0.4, "Confidential"))
			require.NoError(t, err)

			assert.Equal(t, d1.ID, d2.ID, "same URL must keep the original id")
			assert.Equal(t, "second body", d2.CleanText)
			assert.Equal(t, "Confidential", a2.Label.Level())

			docs, err := store.LoadDocuments()
			require.NoError(t, err)
			assert.Len(t, docs, 1)
		})
	}
}

func TestStore_DedupByContentHash(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			d1, _, err := store.Store(content("https://a.test/1", "identical body"), assessment(0.9, "Public"))
			require.NoError(t, err)

			d2, _, err := store.Store(content("https://a.test/mirror", "identical body"), assessment(0.9, "Public"))
			require.NoError(t, err)

			assert.Equal(t, d1.ID, d2.ID, "identical clean_text must match by content hash")
			assert.Equal(t, "https://a.test/mirror", d2.URL)

			docs, err := store.LoadDocuments()
			require.NoError(t, err)
			assert.Len(t, docs, 1)
		})
	}
}

func TestStore_DistinctURLAndContentCreateSeparateRecords(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, _, err := store.Store(content("https://a.test/1", "body one"), assessment(0.9, "Public"))
			require.NoError(t, err)
			_, _, err = store.Store(content("https://a.test/2", "body two"), assessment(0.9, "Public"))
			require.NoError(t, err)

			docs, err := store.LoadDocuments()
			require.NoError(t, err)
			assert.Len(t, docs, 2)
		})
	}
}

func TestStore_PreservesInsertionOrder(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			urls := []string{"https://a.test/1", "https://a.test/2", "https://a.test/3"}
			for i, u := range urls {
				_, _, err := store.Store(content(u, u), assessment(float64(i)/10, "Public"))
				require.NoError(t, err)
			}
			// Update the first record; it must keep its position.
			_, _, err := store.Store(content(urls[0], "updated"), assessment(0.1, "Internal"))
			require.NoError(t, err)

			docs, err := store.LoadDocuments()
			require.NoError(t, err)
			require.Len(t, docs, 3)
			assert.Equal(t, urls[0], docs[0].URL)
			assert.Equal(t, "updated", docs[0].CleanText)
			assert.Equal(t, urls[1], docs[1].URL)
			assert.Equal(t, urls[2], docs[2].URL)

			assessments, err := store.LoadTrustAssessments()
			require.NoError(t, err)
			require.Len(t, assessments, 3)
			for i, d := range docs {
				assert.Equal(t, d.ID, assessments[i].DocumentID)
			}
		})
	}
}

func TestStore_AssessmentCategoriesRoundTrip(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			a := TrustAssessment{
				Score:   0.2,
				Label:   lattice.NewLabel("Confidential", []string{"Untrusted", "PII"}),
				Signals: map[string]float64{"boilerplate_ratio": 1, "refs": 0},
			}
			_, _, err := store.Store(content("https://a.test/1", "body"), a)
			require.NoError(t, err)

			loaded, err := store.LoadTrustAssessments()
			require.NoError(t, err)
			require.Len(t, loaded, 1)
			assert.Equal(t, []string{"PII", "Untrusted"}, loaded[0].Label.Categories())
			assert.Equal(t, "Confidential", loaded[0].Label.Level())
		})
	}
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	fs1, err := NewFileStore(path)
	require.NoError(t, err)
	_, _, err = fs1.Store(content("https://a.test/1", "body"), assessment(0.95, "Public"))
	require.NoError(t, err)

	fs2, err := NewFileStore(path)
	require.NoError(t, err)
	docs, err := fs2.LoadDocuments()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "https://a.test/1", docs[0].URL)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")

	s1, err := NewSQLiteStore(path)
	require.NoError(t, err)
	_, _, err = s1.Store(content("https://a.test/1", "body"), assessment(0.95, "Public"))
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s2.Close()
	docs, err := s2.LoadDocuments()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "https://a.test/1", docs[0].URL)
}
