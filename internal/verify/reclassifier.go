package verify

import (
	"fmt"
	"time"

	"sleuth/internal/classify"
	"sleuth/internal/logging"
	"sleuth/internal/store"
	"sleuth/internal/types"
)

// Reclassifier drives the verification state machine for a fact:
// PENDING -> IN_PROGRESS -> {CONFIRMED, REFUTED, UNVERIFIABLE, SUPERSEDED}.
// Terminal transitions preserve the original flags in origin_dubious_flags
// and append to the audit history; they never erase why a fact was
// suspicious in the first place.
type Reclassifier struct {
	facts           *store.FactStore
	classifications *store.ClassificationStore
	results         *store.VerificationStore
	assessor        *classify.ImpactAssessor
	reviewCritical  bool
}

func NewReclassifier(facts *store.FactStore, classifications *store.ClassificationStore, results *store.VerificationStore, assessor *classify.ImpactAssessor, reviewCritical bool) *Reclassifier {
	return &Reclassifier{
		facts:           facts,
		classifications: classifications,
		results:         results,
		assessor:        assessor,
		reviewCritical:  reviewCritical,
	}
}

// Begin moves a pending fact to IN_PROGRESS.
func (r *Reclassifier) Begin(investigationID, factID string) error {
	return r.classifications.Update(investigationID, factID, func(c *types.FactClassification) {
		if c.VerificationStatus != types.StatusPending {
			return
		}
		c.AppendHistory(string(c.VerificationStatus), "verification started")
		c.VerificationStatus = types.StatusInProgress
	})
}

// Cancel reverts an in-flight verification to PENDING, for shutdowns and
// investigation-level cancellation. Terminal states are left alone.
func (r *Reclassifier) Cancel(investigationID, factID string) error {
	return r.classifications.Update(investigationID, factID, func(c *types.FactClassification) {
		if c.VerificationStatus != types.StatusInProgress {
			return
		}
		c.AppendHistory(string(c.VerificationStatus), "verification cancelled")
		c.VerificationStatus = types.StatusPending
	})
}

// Apply records the terminal outcome of a verification run for one fact and
// returns the stored result.
func (r *Reclassifier) Apply(investigationID, factID string, assessment Assessment, queries []string, attempts int) (*types.VerificationResult, error) {
	record, ok := r.classifications.Get(factID)
	if !ok {
		return nil, fmt.Errorf("no classification for fact %s", factID)
	}

	status := types.StatusUnverifiable
	switch {
	case assessment.Confirmed:
		status = types.StatusConfirmed
	case assessment.Refuted:
		status = types.StatusRefuted
	}

	result := &types.VerificationResult{
		FactID:             factID,
		InvestigationID:    investigationID,
		Status:             status,
		OriginalConfidence: record.CredibilityScore,
		SupportingEvidence: assessment.Supporting,
		RefutingEvidence:   assessment.Refuting,
		QueryAttempts:      attempts,
		QueriesUsed:        queries,
		CompletedAt:        time.Now().UTC(),
	}
	if status == types.StatusConfirmed {
		result.ConfidenceBoost = assessment.ConfidenceBoost
	}
	result.Finalize()

	if err := r.transition(investigationID, factID, result, "evidence "+string(status)); err != nil {
		return nil, err
	}
	if err := r.results.Save(result); err != nil {
		return nil, err
	}
	logging.Verify("fact %s: %s after %d queries (%d supporting, %d refuting, boost %.2f)",
		factID, status, attempts, len(assessment.Supporting), len(assessment.Refuting), result.ConfidenceBoost)
	return result, nil
}

// ResolveAnomaly settles a contradiction pair: the winner is CONFIRMED, the
// loser SUPERSEDED for temporal contradictions (it was true, it is no
// longer current) and REFUTED for all others. The two results are linked
// bidirectionally by fact ID.
func (r *Reclassifier) ResolveAnomaly(investigationID, winnerID, loserID string, kind types.ContradictionType, winnerAssessment Assessment, queries []string, attempts int) (*types.VerificationResult, *types.VerificationResult, error) {
	winnerRecord, ok := r.classifications.Get(winnerID)
	if !ok {
		return nil, nil, fmt.Errorf("no classification for winner %s", winnerID)
	}
	loserRecord, ok := r.classifications.Get(loserID)
	if !ok {
		return nil, nil, fmt.Errorf("no classification for loser %s", loserID)
	}

	loserStatus := types.StatusRefuted
	if kind == types.ContradictionTemporal {
		loserStatus = types.StatusSuperseded
	}

	now := time.Now().UTC()
	winner := &types.VerificationResult{
		FactID:             winnerID,
		InvestigationID:    investigationID,
		Status:             types.StatusConfirmed,
		OriginalConfidence: winnerRecord.CredibilityScore,
		ConfidenceBoost:    winnerAssessment.ConfidenceBoost,
		SupportingEvidence: winnerAssessment.Supporting,
		QueryAttempts:      attempts,
		QueriesUsed:        queries,
		RelatedFactID:      loserID,
		ContradictionType:  kind,
		CompletedAt:        now,
	}
	winner.Finalize()

	loser := &types.VerificationResult{
		FactID:             loserID,
		InvestigationID:    investigationID,
		Status:             loserStatus,
		OriginalConfidence: loserRecord.CredibilityScore,
		RefutingEvidence:   winnerAssessment.Supporting,
		QueryAttempts:      attempts,
		QueriesUsed:        queries,
		RelatedFactID:      winnerID,
		ContradictionType:  kind,
		CompletedAt:        now,
	}
	loser.Finalize()

	if err := r.transition(investigationID, winnerID, winner, "anomaly arbitration won"); err != nil {
		return nil, nil, err
	}
	if err := r.transition(investigationID, loserID, loser, "anomaly arbitration lost ("+string(kind)+")"); err != nil {
		return nil, nil, err
	}
	if err := r.results.Save(winner); err != nil {
		return nil, nil, err
	}
	if err := r.results.Save(loser); err != nil {
		return nil, nil, err
	}
	logging.Verify("anomaly resolved: %s confirmed over %s (%s -> %s)", winnerID, loserID, kind, loserStatus)
	return winner, loser, nil
}

// transition applies one terminal state change to the classification
// record: origin-flag preservation, flag clearing on resolution, impact
// re-assessment on confirmation, human-review gating for critical facts.
func (r *Reclassifier) transition(investigationID, factID string, result *types.VerificationResult, trigger string) error {
	return r.classifications.Update(investigationID, factID, func(c *types.FactClassification) {
		c.AppendHistory(string(c.VerificationStatus), trigger)

		// Origin flags are populated only when the evidence actually
		// resolved the fact. An UNVERIFIABLE outcome keeps its live flags:
		// the fact is still suspicious and still re-queueable.
		if result.Status == types.StatusConfirmed || result.Status == types.StatusRefuted || result.Status == types.StatusSuperseded {
			if len(c.DubiousFlags) > 0 && len(c.OriginDubiousFlags) == 0 {
				c.OriginDubiousFlags = append([]types.DubiousFlag(nil), c.DubiousFlags...)
			}
			c.DubiousFlags = nil
		}

		if result.Status == types.StatusConfirmed {
			c.CredibilityScore = result.FinalConfidence
			if fact, ok := r.facts.Get(factID); ok && r.assessor != nil {
				_, tier := r.assessor.Assess(fact)
				c.ImpactTier = tier
			}
		}

		c.VerificationStatus = result.Status
		c.PriorityScore = classify.PriorityScore(c.ImpactTier, c.DubiousFlags)

		if r.reviewCritical && c.ImpactTier == types.TierCritical {
			result.RequiresHumanReview = true
		}
	})
}
