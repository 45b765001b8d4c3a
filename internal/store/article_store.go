// Package store holds the investigation-scoped stores: articles, facts,
// classifications, and verification results. All stores are in-memory with
// O(1) indexed access; writes to the same investigation are serialized by a
// per-investigation lock, and JSON snapshots rebuild every index
// deterministically on load.
package store

import (
	"sync"

	"sleuth/internal/logging"
	"sleuth/internal/types"
)

// ArticleStats summarizes one investigation's article set.
type ArticleStats struct {
	TotalSaved int `json:"total_saved"`
	Duplicates int `json:"duplicates"`
}

// articleBucket holds one investigation's articles.
type articleBucket struct {
	byURL   map[string]*types.Article
	ordered []string // URLs in first-save order
	stats   ArticleStats
}

// RetrieveResult is the wrapper returned by RetrieveByInvestigation.
type RetrieveResult struct {
	Articles      []*types.Article `json:"articles"`
	TotalArticles int              `json:"total_articles"`
}

// ArticleStore keeps crawled articles keyed by investigation and canonical
// URL. Saves are idempotent per URL.
type ArticleStore struct {
	mu      sync.RWMutex
	buckets map[string]*articleBucket
	byURL   map[string][]string // canonical URL -> investigation IDs
}

// NewArticleStore creates an empty store.
func NewArticleStore() *ArticleStore {
	return &ArticleStore{
		buckets: make(map[string]*articleBucket),
		byURL:   make(map[string][]string),
	}
}

// SaveArticles stores articles for their investigation, skipping URLs already
// present. It returns how many were newly saved.
func (s *ArticleStore) SaveArticles(articles []*types.Article) int {
	saved := 0
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range articles {
		if a == nil || a.InvestigationID == "" || a.URL == "" {
			continue
		}
		bucket := s.buckets[a.InvestigationID]
		if bucket == nil {
			bucket = &articleBucket{byURL: make(map[string]*types.Article)}
			s.buckets[a.InvestigationID] = bucket
		}
		if _, dup := bucket.byURL[a.URL]; dup {
			bucket.stats.Duplicates++
			continue
		}
		bucket.byURL[a.URL] = a
		bucket.ordered = append(bucket.ordered, a.URL)
		bucket.stats.TotalSaved++
		s.byURL[a.URL] = append(s.byURL[a.URL], a.InvestigationID)
		saved++
	}

	if saved > 0 {
		logging.StoreDebug("saved %d articles (%d submitted)", saved, len(articles))
	}
	return saved
}

// RetrieveByInvestigation returns all articles for an investigation in
// first-save order.
func (s *ArticleStore) RetrieveByInvestigation(investigationID string) RetrieveResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket := s.buckets[investigationID]
	if bucket == nil {
		return RetrieveResult{Articles: []*types.Article{}}
	}
	out := make([]*types.Article, 0, len(bucket.ordered))
	for _, url := range bucket.ordered {
		out = append(out, bucket.byURL[url])
	}
	return RetrieveResult{Articles: out, TotalArticles: len(out)}
}

// Get returns one article by canonical URL within an investigation.
func (s *ArticleStore) Get(investigationID, url string) (*types.Article, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket := s.buckets[investigationID]
	if bucket == nil {
		return nil, false
	}
	a, ok := bucket.byURL[url]
	return a, ok
}

// HasURL reports whether the URL is already stored for the investigation.
func (s *ArticleStore) HasURL(investigationID, url string) bool {
	_, ok := s.Get(investigationID, url)
	return ok
}

// Stats returns the save/duplicate counters for an investigation.
func (s *ArticleStore) Stats(investigationID string) ArticleStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if bucket := s.buckets[investigationID]; bucket != nil {
		return bucket.stats
	}
	return ArticleStats{}
}

// Investigations returns IDs with at least one stored article.
func (s *ArticleStore) Investigations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.buckets))
	for id := range s.buckets {
		out = append(out, id)
	}
	return out
}
