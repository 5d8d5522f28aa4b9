// Package storage implements the persistent-store contract of
// spec.md §4.3: append/load over (Document, StoredTrustAssessment)
// pairs, with dedup by URL or content hash and whole-call atomicity.
package storage

import (
	"time"

	"github.com/ahjcgit/ifcagent/pkg/lattice"
)

// ScrapedContent is the immutable tuple produced by a Fetcher.
type ScrapedContent struct {
	URL       string
	FetchedAt time.Time // RFC-3339 UTC
	RawHTML   string
	CleanText string
}

// TrustAssessment is the parser's pre-storage output (score, label,
// diagnostic signals), joined with the caller's scrape label before
// it reaches Store.
type TrustAssessment struct {
	Score   float64
	Label   lattice.Label
	Signals map[string]float64
}

// Document is the persisted record for a scraped page.
type Document struct {
	ID        string
	URL       string
	FetchedAt time.Time
	RawHTML   string
	CleanText string
}

// StoredTrustAssessment is persisted 1-to-1 with a Document via
// DocumentID.
type StoredTrustAssessment struct {
	DocumentID string
	Score      float64
	Label      lattice.Label
	Signals    map[string]float64
}

// Store is the backend-agnostic persistence contract.
type Store interface {
	// Store persists content+assessment, deduplicating on URL or
	// content hash (spec.md §4.3, §9 "Dedup key"). Returns the
	// resulting Document/StoredTrustAssessment pair (fresh or updated
	// in place).
	Store(content ScrapedContent, assessment TrustAssessment) (Document, StoredTrustAssessment, error)

	// LoadDocuments returns the full current contents in insertion order.
	LoadDocuments() ([]Document, error)

	// LoadTrustAssessments returns the full current contents in
	// insertion order, aligned by DocumentID with LoadDocuments.
	LoadTrustAssessments() ([]StoredTrustAssessment, error)
}
