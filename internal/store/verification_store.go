package store

import (
	"fmt"
	"sync"

	"sleuth/internal/logging"
	"sleuth/internal/types"
)

// VerificationStore keeps verification results per fact. Results accumulate
// across attempts; the latest one is authoritative. Critical-tier results
// carry a human-review gate that must be satisfied before the verdict is
// final.
type VerificationStore struct {
	mu sync.RWMutex

	byFact map[string][]*types.VerificationResult // fact_id -> results, oldest first
	byInv  map[string][]string                    // inv -> fact IDs with results
}

// NewVerificationStore creates an empty store.
func NewVerificationStore() *VerificationStore {
	return &VerificationStore{
		byFact: make(map[string][]*types.VerificationResult),
		byInv:  make(map[string][]string),
	}
}

// Save appends a verification result for a fact.
func (s *VerificationStore) Save(r *types.VerificationResult) error {
	if r == nil || r.FactID == "" || r.InvestigationID == "" {
		return fmt.Errorf("verification result missing identity")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.byFact[r.FactID]) == 0 {
		s.byInv[r.InvestigationID] = append(s.byInv[r.InvestigationID], r.FactID)
	}
	s.byFact[r.FactID] = append(s.byFact[r.FactID], r)
	logging.StoreDebug("verification result for %s: %s (boost %.2f)", r.FactID, r.Status, r.ConfidenceBoost)
	return nil
}

// Latest returns the most recent result for a fact.
func (s *VerificationStore) Latest(factID string) (*types.VerificationResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := s.byFact[factID]
	if len(results) == 0 {
		return nil, false
	}
	return results[len(results)-1], true
}

// History returns every result recorded for a fact, oldest first.
func (s *VerificationStore) History(factID string) []*types.VerificationResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := s.byFact[factID]
	out := make([]*types.VerificationResult, len(results))
	copy(out, results)
	return out
}

// ListByInvestigation returns the latest result of every verified fact.
func (s *VerificationStore) ListByInvestigation(investigationID string) []*types.VerificationResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.VerificationResult
	for _, factID := range s.byInv[investigationID] {
		results := s.byFact[factID]
		if len(results) > 0 {
			out = append(out, results[len(results)-1])
		}
	}
	return out
}

// PendingHumanReview returns results gated on a reviewer.
func (s *VerificationStore) PendingHumanReview(investigationID string) []*types.VerificationResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.VerificationResult
	for _, factID := range s.byInv[investigationID] {
		results := s.byFact[factID]
		if len(results) == 0 {
			continue
		}
		latest := results[len(results)-1]
		if latest.RequiresHumanReview && !latest.HumanReviewCompleted {
			out = append(out, latest)
		}
	}
	return out
}

// CompleteHumanReview satisfies the review gate on a fact's latest result.
func (s *VerificationStore) CompleteHumanReview(factID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := s.byFact[factID]
	if len(results) == 0 {
		return fmt.Errorf("no verification result for fact %s", factID)
	}
	latest := results[len(results)-1]
	if !latest.RequiresHumanReview {
		return fmt.Errorf("fact %s does not require human review", factID)
	}
	latest.HumanReviewCompleted = true
	logging.Store("human review completed for fact %s", factID)
	return nil
}

// IsFinal reports whether a fact's verdict is settled: a terminal status
// whose review gate, if any, has been satisfied.
func (s *VerificationStore) IsFinal(factID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := s.byFact[factID]
	if len(results) == 0 {
		return false
	}
	latest := results[len(results)-1]
	switch latest.Status {
	case types.StatusConfirmed, types.StatusRefuted, types.StatusSuperseded, types.StatusUnverifiable:
	default:
		return false
	}
	return !latest.RequiresHumanReview || latest.HumanReviewCompleted
}
