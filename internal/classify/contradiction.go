package classify

import (
	"sort"
	"strings"

	"sleuth/internal/logging"
	"sleuth/internal/types"
)

// minNegationOverlap is the shared-content-token floor for a negation
// contradiction. One shared word is coincidence; two start to look like the
// same event.
const minNegationOverlap = 2

// ContradictionDetector finds pairs of facts in one investigation that
// cannot both be true. It runs in two passes: the first indexes claims, the
// second compares candidate pairs.
type ContradictionDetector struct{}

func NewContradictionDetector() *ContradictionDetector {
	return &ContradictionDetector{}
}

// factView caches the derived features of a fact so the pairwise pass does
// no repeated tokenization.
type factView struct {
	fact     *types.ExtractedFact
	tokens   map[string]bool
	entities map[string]bool
	numbers  []float64
	negated  bool
}

// Detect returns the contradictions among facts, keyed by fact ID. Both
// sides of a pair receive a record pointing at the other.
func (d *ContradictionDetector) Detect(facts []*types.ExtractedFact) map[string][]types.Contradiction {
	// Pass one: derive comparison features.
	views := make([]factView, 0, len(facts))
	for _, fact := range facts {
		views = append(views, factView{
			fact:     fact,
			tokens:   contentTokens(fact.Claim.Text),
			entities: entityNames(fact.Entities),
			numbers:  claimNumbers(fact.Claim.Text),
			negated:  hasNegation(fact.Claim.Text),
		})
	}

	// Pass two: pairwise comparison.
	found := make(map[string][]types.Contradiction)
	record := func(a, b *types.ExtractedFact, kind types.ContradictionType, confidence float64, shared []string) {
		sort.Strings(shared)
		found[a.FactID] = append(found[a.FactID], types.Contradiction{
			FactID:       a.FactID,
			OtherFactID:  b.FactID,
			Type:         kind,
			Confidence:   confidence,
			SharedTokens: shared,
		})
		found[b.FactID] = append(found[b.FactID], types.Contradiction{
			FactID:       b.FactID,
			OtherFactID:  a.FactID,
			Type:         kind,
			Confidence:   confidence,
			SharedTokens: shared,
		})
		logging.ClassifyDebug("%s contradiction between %s and %s (confidence %.2f)",
			kind, a.FactID, b.FactID, confidence)
	}

	for i := 0; i < len(views); i++ {
		for j := i + 1; j < len(views); j++ {
			a, b := &views[i], &views[j]
			if a.fact.FactID == b.fact.FactID {
				continue
			}

			if kind, confidence, shared, ok := compare(a, b); ok {
				record(a.fact, b.fact, kind, confidence, shared)
			}
		}
	}
	return found
}

// compare checks one pair against the four contradiction types, strongest
// signal first.
func compare(a, b *factView) (types.ContradictionType, float64, []string, bool) {
	sharedEntities := sharedTokens(a.entities, b.entities)

	// Attribution: a statement and a denial about the same entity.
	if len(sharedEntities) >= 1 && isStatementDenialPair(a.fact, b.fact) {
		return types.ContradictionAttribution, 0.9, sharedEntities, true
	}

	// Temporal: same claim shape anchored to different explicit dates.
	if len(sharedEntities) >= 1 && temporalConflict(a.fact, b.fact) {
		return types.ContradictionTemporal, 0.8, sharedEntities, true
	}

	// Numeric: disjoint values about the same entity.
	if len(sharedEntities) >= 1 && numericConflict(a.numbers, b.numbers) {
		return types.ContradictionNumeric, 0.7, sharedEntities, true
	}

	// Negation: one side negates, enough content overlap to be the same
	// event. Confidence scales with the overlap.
	if a.negated != b.negated {
		shared := sharedTokens(a.tokens, b.tokens)
		if len(shared) >= minNegationOverlap {
			confidence := 0.4 + 0.1*float64(len(shared))
			if confidence > 0.9 {
				confidence = 0.9
			}
			return types.ContradictionNegation, confidence, shared, true
		}
	}

	return "", 0, nil, false
}

func isStatementDenialPair(a, b *types.ExtractedFact) bool {
	return (a.Claim.AssertionType == types.AssertionStatement && b.Claim.AssertionType == types.AssertionDenial) ||
		(a.Claim.AssertionType == types.AssertionDenial && b.Claim.AssertionType == types.AssertionStatement)
}

// temporalConflict fires when both facts carry explicit temporal anchors at
// the same precision with different values.
func temporalConflict(a, b *types.ExtractedFact) bool {
	if a.Temporal == nil || b.Temporal == nil {
		return false
	}
	if a.Temporal.TemporalPrecision != types.TemporalExplicit || b.Temporal.TemporalPrecision != types.TemporalExplicit {
		return false
	}
	if !strings.EqualFold(a.Temporal.Precision, b.Temporal.Precision) {
		return false
	}
	return a.Temporal.Value != b.Temporal.Value
}

// numericConflict reports whether the two value sets are non-empty and
// entirely disjoint.
func numericConflict(a, b []float64) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	for _, va := range a {
		for _, vb := range b {
			if va == vb {
				return false
			}
		}
	}
	return true
}
