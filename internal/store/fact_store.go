package store

import (
	"fmt"
	"sort"
	"sync"

	"sleuth/internal/types"
)

// FactStore indexes extracted facts three ways: by fact ID, by content hash,
// and by source ID. All three probes are O(1). Writes to the same
// investigation serialize on a per-investigation lock; variant links are
// written to both sides under that lock so the symmetry invariant holds at
// every observable moment.
type FactStore struct {
	mu    sync.RWMutex
	locks map[string]*sync.Mutex // per-investigation write locks

	facts     map[string]*types.ExtractedFact // fact_id -> fact
	byHash    map[string][]string             // investigationID+"\x00"+hash -> fact IDs
	bySource  map[string][]string             // investigationID+"\x00"+sourceID -> fact IDs
	byInv     map[string][]string             // investigationID -> fact IDs in save order
}

// NewFactStore creates an empty store.
func NewFactStore() *FactStore {
	return &FactStore{
		locks:    make(map[string]*sync.Mutex),
		facts:    make(map[string]*types.ExtractedFact),
		byHash:   make(map[string][]string),
		bySource: make(map[string][]string),
		byInv:    make(map[string][]string),
	}
}

func scopedKey(investigationID, key string) string {
	return investigationID + "\x00" + key
}

// invLock returns the write lock for one investigation.
func (s *FactStore) invLock(investigationID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[investigationID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[investigationID] = l
	}
	return l
}

// Save stores a fact. The schema version must be readable and the content
// hash must match the claim text; both are checked here rather than trusted.
func (s *FactStore) Save(fact *types.ExtractedFact) error {
	if fact == nil || fact.FactID == "" || fact.InvestigationID == "" {
		return fmt.Errorf("fact missing identity")
	}
	if err := types.CheckSchemaVersion(fact.SchemaVersion); err != nil {
		return fmt.Errorf("fact %s: %w", fact.FactID, err)
	}
	if fact.ContentHash != types.HashClaim(fact.Claim.Text) {
		return fmt.Errorf("fact %s: content hash does not match claim text", fact.FactID)
	}

	lock := s.invLock(fact.InvestigationID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.facts[fact.FactID]; exists {
		return nil // idempotent
	}
	s.facts[fact.FactID] = fact
	s.byHash[scopedKey(fact.InvestigationID, fact.ContentHash)] = append(
		s.byHash[scopedKey(fact.InvestigationID, fact.ContentHash)], fact.FactID)
	if src := fact.Provenance.SourceID; src != "" {
		s.bySource[scopedKey(fact.InvestigationID, src)] = append(
			s.bySource[scopedKey(fact.InvestigationID, src)], fact.FactID)
	}
	s.byInv[fact.InvestigationID] = append(s.byInv[fact.InvestigationID], fact.FactID)
	return nil
}

// Get returns a fact by ID.
func (s *FactStore) Get(factID string) (*types.ExtractedFact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.facts[factID]
	return f, ok
}

// GetWithVariants returns a fact together with all facts linked in its
// variants list.
func (s *FactStore) GetWithVariants(factID string) (*types.ExtractedFact, []*types.ExtractedFact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.facts[factID]
	if !ok {
		return nil, nil, false
	}
	variants := make([]*types.ExtractedFact, 0, len(f.Variants))
	for _, id := range f.Variants {
		if v, ok := s.facts[id]; ok {
			variants = append(variants, v)
		}
	}
	return f, variants, true
}

// ByHash returns fact IDs sharing a content hash within an investigation.
func (s *FactStore) ByHash(investigationID, contentHash string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byHash[scopedKey(investigationID, contentHash)]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// BySource returns fact IDs attributed to a source within an investigation.
func (s *FactStore) BySource(investigationID, sourceID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.bySource[scopedKey(investigationID, sourceID)]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// List returns all facts for an investigation in save order.
func (s *FactStore) List(investigationID string) []*types.ExtractedFact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byInv[investigationID]
	out := make([]*types.ExtractedFact, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.facts[id])
	}
	return out
}

// LinkVariants writes the bidirectional variant link between two stored
// facts and accumulates the variant's provenance on the canonical. Both
// directions are written under the investigation lock, so a reader never
// observes an asymmetric link.
func (s *FactStore) LinkVariants(investigationID, canonicalID, variantID string) error {
	lock := s.invLock(investigationID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	canonical, ok := s.facts[canonicalID]
	if !ok {
		return fmt.Errorf("canonical fact %s not found", canonicalID)
	}
	variant, ok := s.facts[variantID]
	if !ok {
		return fmt.Errorf("variant fact %s not found", variantID)
	}
	if canonical.InvestigationID != investigationID || variant.InvestigationID != investigationID {
		return fmt.Errorf("variant link crosses investigations")
	}

	if !containsID(canonical.Variants, variantID) {
		canonical.Variants = append(canonical.Variants, variantID)
	}
	if !containsID(variant.Variants, canonicalID) {
		variant.Variants = append(variant.Variants, canonicalID)
	}

	attributed := types.AttributedSource{
		SourceID:       variant.Provenance.SourceID,
		SourceType:     variant.Provenance.SourceType,
		Classification: variant.Provenance.Classification,
		FactID:         variantID,
	}
	for _, existing := range canonical.Provenance.AdditionalSources {
		if existing.FactID == variantID {
			return nil // already accumulated
		}
	}
	canonical.Provenance.AdditionalSources = append(canonical.Provenance.AdditionalSources, attributed)
	return nil
}

// CheckVariantSymmetry verifies the symmetric-link invariant for an
// investigation. An asymmetric link is a fatal corruption, never repaired.
func (s *FactStore) CheckVariantSymmetry(investigationID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.byInv[investigationID] {
		f := s.facts[id]
		for _, vid := range f.Variants {
			v, ok := s.facts[vid]
			if !ok {
				return fmt.Errorf("fact %s links missing variant %s", id, vid)
			}
			if !containsID(v.Variants, id) {
				return fmt.Errorf("variant link %s -> %s is asymmetric", id, vid)
			}
		}
	}
	return nil
}

// Investigations returns IDs with at least one stored fact, sorted.
func (s *FactStore) Investigations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.byInv))
	for id := range s.byInv {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func containsID(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
