package store

import (
	"context"

	"sleuth/internal/embedding"
	"sleuth/internal/logging"
	"sleuth/internal/types"
)

// Consolidator applies layered dedup to freshly extracted facts, in
// ascending cost order: same-source identity, content hash, then semantic
// similarity. Layer three needs an embedding engine; without one it is
// skipped and the fact kept.
type Consolidator struct {
	store     *FactStore
	embedder  embedding.Engine
	threshold float64 // cosine distance below which two claims are the same

	vectors map[string][]float32 // fact_id -> claim embedding
}

// NewConsolidator creates a consolidator over the store. embedder may be
// nil; threshold <= 0 selects the default of 0.3.
func NewConsolidator(store *FactStore, embedder embedding.Engine, threshold float64) *Consolidator {
	if threshold <= 0 {
		threshold = 0.3
	}
	return &Consolidator{
		store:     store,
		embedder:  embedder,
		threshold: threshold,
		vectors:   make(map[string][]float32),
	}
}

// ConsolidationResult reports what happened to one batch.
type ConsolidationResult struct {
	Canonical []string // fact IDs stored as canonical
	Variants  []string // fact IDs stored and linked as variants
	Dropped   []string // exact same-source duplicates, not stored
}

// Consolidate runs the batch through the dedup layers and stores the
// survivors. The operation is idempotent under reordering: content hash and
// symmetric variant linking produce the same canonical set regardless of
// arrival order.
func (c *Consolidator) Consolidate(ctx context.Context, facts []*types.ExtractedFact) (*ConsolidationResult, error) {
	result := &ConsolidationResult{}

	for _, fact := range facts {
		if fact == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		fact.SealHash()

		// Layer 1: the same claim from the same source is a duplicate of
		// itself, not corroboration. Dropped entirely.
		if c.sameSourceDuplicate(fact) {
			result.Dropped = append(result.Dropped, fact.FactID)
			continue
		}

		// Layer 2: exact text from a different source corroborates. Stored
		// and linked into the whole hash cluster, so any two facts sharing
		// a hash hold each other in variants regardless of arrival order.
		if clusterIDs := c.store.ByHash(fact.InvestigationID, fact.ContentHash); len(clusterIDs) > 0 {
			if err := c.storeVariant(fact, clusterIDs); err != nil {
				return result, err
			}
			result.Variants = append(result.Variants, fact.FactID)
			continue
		}

		// Layer 3: near-identical phrasing. Skipped without an embedder.
		if canonicalID, dup := c.semanticDuplicate(ctx, fact); dup {
			if err := c.storeVariant(fact, []string{canonicalID}); err != nil {
				return result, err
			}
			result.Variants = append(result.Variants, fact.FactID)
			continue
		}

		if err := c.store.Save(fact); err != nil {
			return result, err
		}
		result.Canonical = append(result.Canonical, fact.FactID)
	}

	logging.Consolidate("batch of %d: %d canonical, %d variants, %d dropped",
		len(facts), len(result.Canonical), len(result.Variants), len(result.Dropped))
	return result, nil
}

func (c *Consolidator) sameSourceDuplicate(fact *types.ExtractedFact) bool {
	for _, id := range c.store.ByHash(fact.InvestigationID, fact.ContentHash) {
		existing, ok := c.store.Get(id)
		if ok && existing.Provenance.SourceID == fact.Provenance.SourceID {
			return true
		}
	}
	return false
}

func (c *Consolidator) semanticDuplicate(ctx context.Context, fact *types.ExtractedFact) (string, bool) {
	if c.embedder == nil {
		return "", false
	}

	vec, err := c.embedder.Embed(ctx, fact.Claim.Text)
	if err != nil {
		logging.ConsolidateWarn("embedding unavailable, skipping semantic dedup: %v", err)
		return "", false
	}

	var bestID string
	bestDistance := c.threshold
	for _, existing := range c.store.List(fact.InvestigationID) {
		known, ok := c.vectors[existing.FactID]
		if !ok {
			continue
		}
		if d := embedding.CosineDistance(vec, known); d < bestDistance {
			bestDistance = d
			bestID = existing.FactID
		}
	}

	c.vectors[fact.FactID] = vec
	if bestID == "" {
		return "", false
	}
	logging.ConsolidateDebug("semantic match %s -> %s (distance %.3f)", fact.FactID, bestID, bestDistance)
	return bestID, true
}

// storeVariant saves the fact and links it symmetrically to every member
// of its duplicate cluster.
func (c *Consolidator) storeVariant(fact *types.ExtractedFact, clusterIDs []string) error {
	if err := c.store.Save(fact); err != nil {
		return err
	}
	for _, id := range clusterIDs {
		if err := c.store.LinkVariants(fact.InvestigationID, id, fact.FactID); err != nil {
			return err
		}
	}
	return nil
}
