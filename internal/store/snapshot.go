package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"sleuth/internal/logging"
	"sleuth/internal/types"
)

// Snapshot is the JSON dump of one investigation's stores. The layout is the
// in-memory record layout verbatim; indices are rebuilt on load, never
// serialized. Record order follows save order, so snapshotting twice yields
// byte-identical files.
type Snapshot struct {
	InvestigationID string                      `json:"investigation_id"`
	SchemaVersion   string                      `json:"schema_version"`
	Articles        []*types.Article            `json:"articles,omitempty"`
	Facts           []*types.ExtractedFact      `json:"facts,omitempty"`
	Classifications []*types.FactClassification `json:"classifications,omitempty"`
	Verifications   []*types.VerificationResult `json:"verifications,omitempty"`
}

// Stores bundles one process's store set for snapshot and load.
type Stores struct {
	Articles        *ArticleStore
	Facts           *FactStore
	Classifications *ClassificationStore
	Verifications   *VerificationStore
}

// NewStores creates a fresh store set.
func NewStores() *Stores {
	return &Stores{
		Articles:        NewArticleStore(),
		Facts:           NewFactStore(),
		Classifications: NewClassificationStore(),
		Verifications:   NewVerificationStore(),
	}
}

// BuildSnapshot collects one investigation's records.
func (s *Stores) BuildSnapshot(investigationID string) *Snapshot {
	snap := &Snapshot{
		InvestigationID: investigationID,
		SchemaVersion:   types.SchemaVersion,
	}
	snap.Articles = s.Articles.RetrieveByInvestigation(investigationID).Articles
	snap.Facts = s.Facts.List(investigationID)
	snap.Classifications = s.Classifications.List(investigationID)
	for _, factID := range s.Verifications.factIDs(investigationID) {
		snap.Verifications = append(snap.Verifications, s.Verifications.History(factID)...)
	}
	return snap
}

// WriteSnapshot dumps one investigation to dir/<investigation_id>.json.
func (s *Stores) WriteSnapshot(dir, investigationID string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	snap := s.BuildSnapshot(investigationID)
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	path := filepath.Join(dir, investigationID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("finalize snapshot: %w", err)
	}

	logging.Store("snapshot written: %s (%d articles, %d facts)", path, len(snap.Articles), len(snap.Facts))
	return nil
}

// LoadSnapshot reads a snapshot file and replays it into the stores,
// rebuilding every index deterministically. Unknown schema major versions
// are refused.
func (s *Stores) LoadSnapshot(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return "", fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	if err := types.CheckSchemaVersion(snap.SchemaVersion); err != nil {
		return "", fmt.Errorf("snapshot %s: %w", path, err)
	}

	s.Articles.SaveArticles(snap.Articles)
	for _, fact := range snap.Facts {
		if err := s.Facts.Save(fact); err != nil {
			return "", fmt.Errorf("replay fact: %w", err)
		}
	}
	for _, c := range snap.Classifications {
		if err := s.Classifications.Save(c); err != nil {
			return "", fmt.Errorf("replay classification: %w", err)
		}
	}
	for _, r := range snap.Verifications {
		if err := s.Verifications.Save(r); err != nil {
			return "", fmt.Errorf("replay verification: %w", err)
		}
	}

	// Variant links ride inside the facts themselves; verify symmetry
	// survived the round trip. An asymmetric link is corruption, not
	// something to repair silently.
	if err := s.Facts.CheckVariantSymmetry(snap.InvestigationID); err != nil {
		return "", fmt.Errorf("snapshot %s: %w", path, err)
	}

	logging.Store("snapshot loaded: %s (%d facts)", path, len(snap.Facts))
	return snap.InvestigationID, nil
}

// factIDs returns fact IDs with verification results, in first-result order.
func (s *VerificationStore) factIDs(investigationID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.byInv[investigationID]))
	copy(out, s.byInv[investigationID])
	return out
}
