package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ahjcgit/ifcagent/pkg/ifcerrors"
	"github.com/ahjcgit/ifcagent/pkg/lattice"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT NOT NULL UNIQUE,
	url          TEXT NOT NULL UNIQUE,
	content_hash TEXT NOT NULL UNIQUE,
	fetched_at   TEXT NOT NULL,
	raw_html     TEXT NOT NULL,
	clean_text   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS trust_assessments (
	document_id TEXT PRIMARY KEY REFERENCES documents(id),
	score       REAL NOT NULL,
	level       TEXT NOT NULL,
	categories  TEXT NOT NULL,
	signals     TEXT NOT NULL
);
`

// SQLiteStore is the alternate persistent backend for deployments that
// prefer a single embedded database file over the default JSON
// document (SPEC_FULL.md storage.backend="sqlite"). Uses the pure-Go
// modernc.org/sqlite driver, so the binary stays cgo-free.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite-backed store at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ifcerrors.ErrStorage, path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers anyway; avoid SQLITE_BUSY
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate %s: %v", ifcerrors.ErrStorage, path, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Store implements Store, matching FileStore's dedup-by-URL-or-hash
// semantics via SQLite's UNIQUE constraints plus an explicit lookup.
func (s *SQLiteStore) Store(content ScrapedContent, assessment TrustAssessment) (Document, StoredTrustAssessment, error) {
	hash := contentHash(content.CleanText)

	tx, err := s.db.Begin()
	if err != nil {
		return Document{}, StoredTrustAssessment{}, fmt.Errorf("%w: begin tx: %v", ifcerrors.ErrStorage, err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRow(
		`SELECT id FROM documents WHERE url = ? OR content_hash = ? ORDER BY seq LIMIT 1`,
		content.URL, hash,
	).Scan(&id)

	switch {
	case err == sql.ErrNoRows:
		id = uuid.New().String()
		_, err = tx.Exec(
			`INSERT INTO documents (id, url, content_hash, fetched_at, raw_html, clean_text) VALUES (?, ?, ?, ?, ?, ?)`,
			id, content.URL, hash, content.FetchedAt.UTC().Format(time.RFC3339), content.RawHTML, content.CleanText,
		)
		if err != nil {
			return Document{}, StoredTrustAssessment{}, fmt.Errorf("%w: insert document: %v", ifcerrors.ErrStorage, err)
		}
	case err != nil:
		return Document{}, StoredTrustAssessment{}, fmt.Errorf("%w: lookup document: %v", ifcerrors.ErrStorage, err)
	default:
		_, err = tx.Exec(
			`UPDATE documents SET url = ?, content_hash = ?, fetched_at = ?, raw_html = ?, clean_text = ? WHERE id = ?`,
			content.URL, hash, content.FetchedAt.UTC().Format(time.RFC3339), content.RawHTML, content.CleanText, id,
		)
		if err != nil {
			return Document{}, StoredTrustAssessment{}, fmt.Errorf("%w: update document: %v", ifcerrors.ErrStorage, err)
		}
	}

	catsJSON, err := json.Marshal(assessment.Label.Categories())
	if err != nil {
		return Document{}, StoredTrustAssessment{}, fmt.Errorf("%w: marshal categories: %v", ifcerrors.ErrStorage, err)
	}
	signalsJSON, err := json.Marshal(assessment.Signals)
	if err != nil {
		return Document{}, StoredTrustAssessment{}, fmt.Errorf("%w: marshal signals: %v", ifcerrors.ErrStorage, err)
	}

	_, err = tx.Exec(
		`INSERT INTO trust_assessments (document_id, score, level, categories, signals) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(document_id) DO UPDATE SET score = excluded.score, level = excluded.level,
		   categories = excluded.categories, signals = excluded.signals`,
		id, assessment.Score, assessment.Label.Level(), string(catsJSON), string(signalsJSON),
	)
	if err != nil {
		return Document{}, StoredTrustAssessment{}, fmt.Errorf("%w: upsert assessment: %v", ifcerrors.ErrStorage, err)
	}

	if err := tx.Commit(); err != nil {
		return Document{}, StoredTrustAssessment{}, fmt.Errorf("%w: commit: %v", ifcerrors.ErrStorage, err)
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
	return doc, sta, nil
}

// LoadDocuments returns the full current contents in insertion order.
func (s *SQLiteStore) LoadDocuments() ([]Document, error) {
	rows, err := s.db.Query(`SELECT id, url, fetched_at, raw_html, clean_text FROM documents ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: query documents: %v", ifcerrors.ErrStorage, err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		var fetchedAt string
		if err := rows.Scan(&d.ID, &d.URL, &fetchedAt, &d.RawHTML, &d.CleanText); err != nil {
			return nil, fmt.Errorf("%w: scan document: %v", ifcerrors.ErrStorage, err)
		}
		d.FetchedAt, _ = time.Parse(time.RFC3339, fetchedAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

// LoadTrustAssessments returns the full current contents, ordered to
// match LoadDocuments' insertion order.
func (s *SQLiteStore) LoadTrustAssessments() ([]StoredTrustAssessment, error) {
	rows, err := s.db.Query(`
		SELECT ta.document_id, ta.score, ta.level, ta.categories, ta.signals
		FROM trust_assessments ta
		JOIN documents d ON d.id = ta.document_id
		ORDER BY d.seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: query trust_assessments: %v", ifcerrors.ErrStorage, err)
	}
	defer rows.Close()

	var out []StoredTrustAssessment
	for rows.Next() {
		var sta StoredTrustAssessment
		var level, catsJSON, signalsJSON string
		if err := rows.Scan(&sta.DocumentID, &sta.Score, &level, &catsJSON, &signalsJSON); err != nil {
			return nil, fmt.Errorf("%w: scan assessment: %v", ifcerrors.ErrStorage, err)
		}
		var cats []string
		if err := json.Unmarshal([]byte(catsJSON), &cats); err != nil {
			return nil, fmt.Errorf("%w: decode categories: %v", ifcerrors.ErrStorage, err)
		}
		var signals map[string]float64
		if err := json.Unmarshal([]byte(signalsJSON), &signals); err != nil {
			return nil, fmt.Errorf("%w: decode signals: %v", ifcerrors.ErrStorage, err)
		}
		sta.Label = lattice.NewLabel(level, cats)
		sta.Signals = signals
		out = append(out, sta)
	}
	return out, rows.Err()
}
