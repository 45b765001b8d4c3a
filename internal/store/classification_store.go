package store

import (
	"fmt"
	"sort"
	"sync"

	"sleuth/internal/logging"
	"sleuth/internal/types"
)

// ClassificationStore keeps the mutable classification record per fact, with
// flag and tier secondary indexes and a priority queue. Facts whose only
// dubious flag is NOISE never enter the queue.
type ClassificationStore struct {
	mu    sync.RWMutex
	locks map[string]*sync.Mutex

	byFact map[string]*types.FactClassification               // fact_id -> record
	byFlag map[string]map[types.DubiousFlag]map[string]bool   // inv -> flag -> fact set
	byTier map[string]map[types.ImpactTier]map[string]bool    // inv -> tier -> fact set
	byInv  map[string][]string                                // inv -> fact IDs in save order
}

// NewClassificationStore creates an empty store.
func NewClassificationStore() *ClassificationStore {
	return &ClassificationStore{
		locks:  make(map[string]*sync.Mutex),
		byFact: make(map[string]*types.FactClassification),
		byFlag: make(map[string]map[types.DubiousFlag]map[string]bool),
		byTier: make(map[string]map[types.ImpactTier]map[string]bool),
		byInv:  make(map[string][]string),
	}
}

func (s *ClassificationStore) invLock(investigationID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[investigationID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[investigationID] = l
	}
	return l
}

// Save writes or replaces a classification. The fact_id <-> classification
// pairing is 1-to-1 per investigation; a second save for the same fact
// replaces the record and reindexes.
func (s *ClassificationStore) Save(c *types.FactClassification) error {
	if c == nil || c.FactID == "" || c.InvestigationID == "" {
		return fmt.Errorf("classification missing identity")
	}

	lock := s.invLock(c.InvestigationID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, exists := s.byFact[c.FactID]; exists {
		s.unindexLocked(old)
	} else {
		s.byInv[c.InvestigationID] = append(s.byInv[c.InvestigationID], c.FactID)
	}
	s.byFact[c.FactID] = c
	s.indexLocked(c)
	return nil
}

// Update applies fn to a stored classification under the investigation lock
// and reindexes afterwards. The verifier mutates records through here.
func (s *ClassificationStore) Update(investigationID, factID string, fn func(*types.FactClassification)) error {
	lock := s.invLock(investigationID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byFact[factID]
	if !ok || c.InvestigationID != investigationID {
		return fmt.Errorf("classification for fact %s not found", factID)
	}
	s.unindexLocked(c)
	fn(c)
	s.indexLocked(c)
	return nil
}

// Get returns the classification for a fact.
func (s *ClassificationStore) Get(factID string) (*types.FactClassification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byFact[factID]
	return c, ok
}

// GetByFlag returns fact IDs currently carrying the flag.
func (s *ClassificationStore) GetByFlag(investigationID string, flag types.DubiousFlag) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	flags, ok := s.byFlag[investigationID]
	if !ok {
		return nil
	}
	return sortedKeys(flags[flag])
}

// GetByTier returns fact IDs in the impact tier.
func (s *ClassificationStore) GetByTier(investigationID string, tier types.ImpactTier) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tiers, ok := s.byTier[investigationID]
	if !ok {
		return nil
	}
	return sortedKeys(tiers[tier])
}

// GetCriticalDubious returns critical-tier facts with at least one dubious
// flag.
func (s *ClassificationStore) GetCriticalDubious(investigationID string) []*types.FactClassification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.FactClassification
	for _, factID := range s.byInv[investigationID] {
		c := s.byFact[factID]
		if c.ImpactTier == types.TierCritical && len(c.DubiousFlags) > 0 {
			out = append(out, c)
		}
	}
	return out
}

// GetPendingReview returns classifications still awaiting verification.
func (s *ClassificationStore) GetPendingReview(investigationID string) []*types.FactClassification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.FactClassification
	for _, factID := range s.byInv[investigationID] {
		c := s.byFact[factID]
		if c.VerificationStatus == types.StatusPending || c.VerificationStatus == types.StatusInProgress {
			out = append(out, c)
		}
	}
	return out
}

// GetPriorityQueue returns the investigation's dubious facts ordered by
// priority score, highest first. NOISE-only facts are excluded: their
// fixability rounds to nothing, so verifying them wastes query budget.
func (s *ClassificationStore) GetPriorityQueue(investigationID string) []*types.FactClassification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var queue []*types.FactClassification
	for _, factID := range s.byInv[investigationID] {
		c := s.byFact[factID]
		if len(c.DubiousFlags) == 0 || c.NoiseOnly() {
			continue
		}
		queue = append(queue, c)
	}
	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].PriorityScore > queue[j].PriorityScore
	})
	logging.StoreDebug("priority queue for %s: %d facts", investigationID, len(queue))
	return queue
}

// List returns all classifications for an investigation in save order.
func (s *ClassificationStore) List(investigationID string) []*types.FactClassification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.FactClassification, 0, len(s.byInv[investigationID]))
	for _, factID := range s.byInv[investigationID] {
		out = append(out, s.byFact[factID])
	}
	return out
}

func (s *ClassificationStore) indexLocked(c *types.FactClassification) {
	flags, ok := s.byFlag[c.InvestigationID]
	if !ok {
		flags = make(map[types.DubiousFlag]map[string]bool)
		s.byFlag[c.InvestigationID] = flags
	}
	for _, flag := range c.DubiousFlags {
		set, ok := flags[flag]
		if !ok {
			set = make(map[string]bool)
			flags[flag] = set
		}
		set[c.FactID] = true
	}

	tiers, ok := s.byTier[c.InvestigationID]
	if !ok {
		tiers = make(map[types.ImpactTier]map[string]bool)
		s.byTier[c.InvestigationID] = tiers
	}
	set, ok := tiers[c.ImpactTier]
	if !ok {
		set = make(map[string]bool)
		tiers[c.ImpactTier] = set
	}
	set[c.FactID] = true
}

func (s *ClassificationStore) unindexLocked(c *types.FactClassification) {
	if flags, ok := s.byFlag[c.InvestigationID]; ok {
		for _, flag := range c.DubiousFlags {
			delete(flags[flag], c.FactID)
		}
	}
	if tiers, ok := s.byTier[c.InvestigationID]; ok {
		delete(tiers[c.ImpactTier], c.FactID)
	}
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
