// Package retriever implements the token-overlap ranking and
// label-cap filtering described in spec.md §4.4.
package retriever

import (
	"regexp"
	"sort"
	"strings"

	"github.com/ahjcgit/ifcagent/pkg/lattice"
	"github.com/ahjcgit/ifcagent/pkg/storage"
)

// RetrievedDocument is one ranked, label-cap-filtered search hit.
type RetrievedDocument struct {
	ID          string
	URL         string
	TextSnippet string // first 500 characters of clean_text
	Label       lattice.Label
	Score       float64 // the document's trust score, not the rank score

	rankScore float64
}

// RankScore exposes the sort key used to order results, mainly for tests.
func (r RetrievedDocument) RankScore() float64 { return r.rankScore }

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

func tokenize(s string) []string {
	return tokenPattern.FindAllString(strings.ToLower(s), -1)
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// Retriever ranks stored documents against a query via plain token
// overlap, filtered to documents the caller's label_cap may see.
type Retriever struct {
	lt *lattice.Lattice
}

// New builds a Retriever bound to a lattice for can_flow checks.
func New(lt *lattice.Lattice) *Retriever {
	return &Retriever{lt: lt}
}

// Retrieve implements spec.md §4.4's algorithm verbatim, including the
// numerator/denominator mismatch noted in §9: the numerator counts
// matches against the query token *list* (duplicates included), while
// the denominator is the count of *unique* query tokens. This is kept
// source-faithful, not "fixed".
func (r *Retriever) Retrieve(
	query string,
	documents []storage.Document,
	assessments []storage.StoredTrustAssessment,
	labelCap *lattice.Label,
	topK int,
) ([]RetrievedDocument, error) {
	index := make(map[string]storage.StoredTrustAssessment, len(assessments))
	for _, a := range assessments {
		index[a.DocumentID] = a
	}

	queryTokens := tokenize(query)
	uniqueQueryTokens := toSet(queryTokens)
	denominator := float64(len(uniqueQueryTokens))

	var results []RetrievedDocument
	for _, d := range documents {
		a, ok := index[d.ID]
		if !ok {
			continue
		}

		if labelCap != nil {
			allowed, err := r.lt.CanFlow(a.Label, *labelCap)
			if err != nil {
				return nil, err
			}
			if !allowed {
				continue
			}
		}

		docTokens := toSet(tokenize(d.CleanText))
		overlap := 0
		for _, qt := range queryTokens {
			if _, ok := docTokens[qt]; ok {
				overlap++
			}
		}

		if denominator == 0 {
			continue
		}
		rankScore := float64(overlap) / denominator
		if rankScore == 0 {
			continue
		}

		results = append(results, RetrievedDocument{
			ID:          d.ID,
			URL:         d.URL,
			TextSnippet: snippet(d.CleanText, 500),
			Label:       a.Label,
			Score:       a.Score,
			rankScore:   rankScore,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].rankScore > results[j].rankScore
	})

	if topK >= 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func snippet(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}
