package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahjcgit/ifcagent/pkg/ifcerrors"
	"github.com/ahjcgit/ifcagent/pkg/lattice"
)

// fileLabel is the on-disk label representation (spec.md §6).
type fileLabel struct {
	Level      string   `json:"level"`
	Categories []string `json:"categories,omitempty"`
}

type fileDocument struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	FetchedAt string `json:"fetched_at"`
	RawHTML   string `json:"raw_html"`
	CleanText string `json:"clean_text"`
}

type fileAssessment struct {
	DocumentID string             `json:"document_id"`
	Score      float64            `json:"score"`
	Label      fileLabel          `json:"label"`
	Signals    map[string]float64 `json:"signals,omitempty"`
}

type fileFormat struct {
	Documents        []fileDocument    `json:"documents"`
	TrustAssessments []fileAssessment  `json:"trust_assessments"`
	PolicyDecisions  []json.RawMessage `json:"policy_decisions,omitempty"`
}

// FileStore is the default persistent backend: the two-array JSON
// document of spec.md §6, written atomically (temp file + rename), the
// same pattern as the teacher's content-addressed blob store.
type FileStore struct {
	mu   sync.Mutex
	path string

	order      []string // document IDs, insertion order
	docs       map[string]Document
	assessment map[string]StoredTrustAssessment
	urlIndex   map[string]string // url -> document id
	hashIndex  map[string]string // sha256(clean_text) -> document id

	// policyDecisions is opaque passthrough storage for §4.5.1's
	// optional decision ledger; the core storage contract doesn't
	// interpret it.
	policyDecisions []json.RawMessage
}

// NewFileStore opens (or creates) a FileStore at path, loading any
// existing contents.
func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{
		path:       path,
		docs:       make(map[string]Document),
		assessment: make(map[string]StoredTrustAssessment),
		urlIndex:   make(map[string]string),
		hashIndex:  make(map[string]string),
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ifcerrors.ErrStorage, fs.path, err)
	}
	if len(data) == 0 {
		return nil
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ifcerrors.ErrStorage, fs.path, err)
	}

	for _, fd := range ff.Documents {
		fetchedAt, err := time.Parse(time.RFC3339, fd.FetchedAt)
		if err != nil {
			fetchedAt = time.Time{}
		}
		fs.docs[fd.ID] = Document{
			ID:        fd.ID,
			URL:       fd.URL,
			FetchedAt: fetchedAt,
			RawHTML:   fd.RawHTML,
			CleanText: fd.CleanText,
		}
		fs.order = append(fs.order, fd.ID)
		fs.urlIndex[fd.URL] = fd.ID
		fs.hashIndex[contentHash(fd.CleanText)] = fd.ID
	}
	for _, fa := range ff.TrustAssessments {
		fs.assessment[fa.DocumentID] = StoredTrustAssessment{
			DocumentID: fa.DocumentID,
			Score:      fa.Score,
			Label:      lattice.NewLabel(fa.Label.Level, fa.Label.Categories),
			Signals:    fa.Signals,
		}
	}
	fs.policyDecisions = ff.PolicyDecisions
	return nil
}

func contentHash(cleanText string) string {
	sum := sha256.Sum256([]byte(cleanText))
	return hex.EncodeToString(sum[:])
}

// Store implements Store. Deduplicates on URL or content hash, keeping
// the matched record's ID in place (spec.md §4.3, §9 "Dedup key").
func (fs *FileStore) Store(content ScrapedContent, assessment TrustAssessment) (Document, StoredTrustAssessment, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	hash := contentHash(content.CleanText)

	id, existed := fs.urlIndex[content.URL]
	if !existed {
		id, existed = fs.hashIndex[hash]
	}

	if !existed {
		id = uuid.New().String()
		fs.order = append(fs.order, id)
	} else {
		old := fs.docs[id]
		delete(fs.urlIndex, old.URL)
		delete(fs.hashIndex, contentHash(old.CleanText))
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

	fs.docs[id] = doc
	fs.assessment[id] = sta
	fs.urlIndex[content.URL] = id
	fs.hashIndex[hash] = id

	if err := fs.persist(); err != nil {
		return Document{}, StoredTrustAssessment{}, err
	}
	return doc, sta, nil
}

// LoadDocuments returns the full current contents in insertion order.
func (fs *FileStore) LoadDocuments() ([]Document, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]Document, 0, len(fs.order))
	for _, id := range fs.order {
		out = append(out, fs.docs[id])
	}
	return out, nil
}

// LoadTrustAssessments returns the full current contents in insertion order.
func (fs *FileStore) LoadTrustAssessments() ([]StoredTrustAssessment, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]StoredTrustAssessment, 0, len(fs.order))
	for _, id := range fs.order {
		out = append(out, fs.assessment[id])
	}
	return out, nil
}

// persist writes the whole current state atomically: temp file, then
// rename, so a concurrent load never observes a partial write.
func (fs *FileStore) persist() error {
	ff := fileFormat{
		Documents:        make([]fileDocument, 0, len(fs.order)),
		TrustAssessments: make([]fileAssessment, 0, len(fs.order)),
		PolicyDecisions:  fs.policyDecisions,
	}
	for _, id := range fs.order {
		d := fs.docs[id]
		ff.Documents = append(ff.Documents, fileDocument{
			ID:        d.ID,
			URL:       d.URL,
			FetchedAt: d.FetchedAt.UTC().Format(time.RFC3339),
			RawHTML:   d.RawHTML,
			CleanText: d.CleanText,
		})
		a := fs.assessment[id]
		ff.TrustAssessments = append(ff.TrustAssessments, fileAssessment{
			DocumentID: a.DocumentID,
			Score:      a.Score,
			Label:      fileLabel{Level: a.Label.Level(), Categories: a.Label.Categories()},
			Signals:    a.Signals,
		})
	}

	data, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ifcerrors.ErrStorage, err)
	}

	dir := filepath.Dir(fs.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%w: mkdir %s: %v", ifcerrors.ErrStorage, dir, err)
		}
	}

	tmpPath := fs.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("%w: write %s: %v", ifcerrors.ErrStorage, tmpPath, err)
	}
	if err := os.Rename(tmpPath, fs.path); err != nil {
		return fmt.Errorf("%w: rename %s: %v", ifcerrors.ErrStorage, fs.path, err)
	}
	return nil
}

// AppendPolicyDecision appends an opaque decision record to the
// optional "policy_decisions" array (§4.5.1) and persists it.
func (fs *FileStore) AppendPolicyDecision(record json.RawMessage) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.policyDecisions = append(fs.policyDecisions, record)
	return fs.persist()
}
