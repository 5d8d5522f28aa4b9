package retriever

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ahjcgit/ifcagent/pkg/lattice"
	"github.com/ahjcgit/ifcagent/pkg/storage"
)

// cachedOverlap is what RedisOverlapCache stores: the raw, label-cap-
// ignorant overlap scores for a query against the corpus at the time
// of computation. The label_cap check always re-runs against live
// assessment data on every Retrieve call, cache hit or not — a cached
// overlap score is never itself proof of authorization.
type cachedOverlap struct {
	DocumentID string  `json:"document_id"`
	RankScore  float64 `json:"rank_score"`
}

// RedisOverlapCache wraps a Retriever with a Redis-backed memo of the
// (query -> per-document overlap score) computation, grounded on the
// go-redis client construction in the teacher's rate limiter. It never
// shortcuts the label-cap filter: caching only saves the tokenization
// and overlap-counting work, not the authorization decision.
type RedisOverlapCache struct {
	inner *Retriever
	rdb   *redis.Client
	ttl   time.Duration
}

// NewRedisOverlapCache wraps an existing Retriever. addr is a
// host:port Redis endpoint; ttl bounds how long an overlap computation
// is memoized before falling back to a fresh one.
func NewRedisOverlapCache(inner *Retriever, addr string, ttl time.Duration) *RedisOverlapCache {
	return &RedisOverlapCache{
		inner: inner,
		rdb:   redis.NewClient(&redis.Options{Addr: addr}),
		ttl:   ttl,
	}
}

func cacheKey(query string) string {
	sum := sha256.Sum256([]byte(query))
	return "ifcagent:overlap:" + hex.EncodeToString(sum[:])
}

// Retrieve behaves like Retriever.Retrieve, using Redis to memoize the
// unfiltered per-document overlap scores for a query. The label-cap
// check and the final document fields are always derived from the
// live documents/assessments passed in, never from the cache.
func (c *RedisOverlapCache) Retrieve(
	ctx context.Context,
	query string,
	documents []storage.Document,
	assessments []storage.StoredTrustAssessment,
	labelCap *lattice.Label,
	topK int,
) ([]RetrievedDocument, error) {
	overlaps, err := c.overlapScores(ctx, query, documents)
	if err != nil {
		// Cache unavailable: fall back to the uncached path outright.
		return c.inner.Retrieve(query, documents, assessments, labelCap, topK)
	}

	index := make(map[string]storage.StoredTrustAssessment, len(assessments))
	for _, a := range assessments {
		index[a.DocumentID] = a
	}
	docByID := make(map[string]storage.Document, len(documents))
	for _, d := range documents {
		docByID[d.ID] = d
	}

	var results []RetrievedDocument
	for _, o := range overlaps {
		d, ok := docByID[o.DocumentID]
		if !ok {
			continue
		}
		a, ok := index[o.DocumentID]
		if !ok {
			continue
		}
		if labelCap != nil {
			allowed, err := c.inner.lt.CanFlow(a.Label, *labelCap)
			if err != nil {
				return nil, err
			}
			if !allowed {
				continue
			}
		}
		if o.RankScore == 0 {
			continue
		}
		results = append(results, RetrievedDocument{
			ID:          d.ID,
			URL:         d.URL,
			TextSnippet: snippet(d.CleanText, 500),
			Label:       a.Label,
			Score:       a.Score,
			rankScore:   o.RankScore,
		})
	}

	stableSort(results)
	if topK >= 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func stableSort(results []RetrievedDocument) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].rankScore > results[j-1].rankScore; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

func (c *RedisOverlapCache) overlapScores(ctx context.Context, query string, documents []storage.Document) ([]cachedOverlap, error) {
	key := cacheKey(query)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var cached []cachedOverlap
		if json.Unmarshal(raw, &cached) == nil {
			return cached, nil
		}
	}

	queryTokens := tokenize(query)
	uniqueQueryTokens := toSet(queryTokens)
	denominator := float64(len(uniqueQueryTokens))

	computed := make([]cachedOverlap, 0, len(documents))
	for _, d := range documents {
		if denominator == 0 {
			computed = append(computed, cachedOverlap{DocumentID: d.ID, RankScore: 0})
			continue
		}
		docTokens := toSet(tokenize(d.CleanText))
		overlap := 0
		for _, qt := range queryTokens {
			if _, ok := docTokens[qt]; ok {
				overlap++
			}
		}
		computed = append(computed, cachedOverlap{DocumentID: d.ID, RankScore: float64(overlap) / denominator})
	}

	if data, err := json.Marshal(computed); err == nil {
		c.rdb.Set(ctx, key, data, c.ttl)
	}
	return computed, nil
}

// Close releases the underlying Redis client.
func (c *RedisOverlapCache) Close() error {
	return c.rdb.Close()
}
