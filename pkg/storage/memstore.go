package storage

import (
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and by short-lived
// tool invocations that don't need persistence across runs.
type MemoryStore struct {
	mu sync.Mutex

	order      []string
	docs       map[string]Document
	assessment map[string]StoredTrustAssessment
	urlIndex   map[string]string
	hashIndex  map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:       make(map[string]Document),
		assessment: make(map[string]StoredTrustAssessment),
		urlIndex:   make(map[string]string),
		hashIndex:  make(map[string]string),
	}
}

// Store implements Store with the same dedup rule as FileStore, minus
// the disk round trip.
func (ms *MemoryStore) Store(content ScrapedContent, assessment TrustAssessment) (Document, StoredTrustAssessment, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	hash := contentHash(content.CleanText)
	id, existed := ms.urlIndex[content.URL]
	if !existed {
		id, existed = ms.hashIndex[hash]
	}
	if !existed {
		id = uuid.New().String()
		ms.order = append(ms.order, id)
	} else {
		old := ms.docs[id]
		delete(ms.urlIndex, old.URL)
		delete(ms.hashIndex, contentHash(old.CleanText))
	}

	doc := Document{
		ID:        id,
		URL:       content.URL,
		FetchedAt: content.FetchedAt,
		RawHTML:   content.RawHTML,
		CleanText: content.CleanText,
	}
	sta := StoredTrustAssessment{
		DocumentID: id,
		Score:      assessment.Score,
		Label:      assessment.Label,
		Signals:    assessment.Signals,
	}
	ms.docs[id] = doc
	ms.assessment[id] = sta
	ms.urlIndex[content.URL] = id
	ms.hashIndex[hash] = id
	return doc, sta, nil
}

// LoadDocuments returns the full current contents in insertion order.
func (ms *MemoryStore) LoadDocuments() ([]Document, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	out := make([]Document, 0, len(ms.order))
	for _, id := range ms.order {
		out = append(out, ms.docs[id])
	}
	return out, nil
}

// LoadTrustAssessments returns the full current contents in insertion order.
func (ms *MemoryStore) LoadTrustAssessments() ([]StoredTrustAssessment, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	out := make([]StoredTrustAssessment, 0, len(ms.order))
	for _, id := range ms.order {
		out = append(out, ms.assessment[id])
	}
	return out, nil
}
