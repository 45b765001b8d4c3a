package classify

import (
	"context"
	"fmt"

	"sleuth/internal/bus"
	"sleuth/internal/logging"
	"sleuth/internal/sources"
	"sleuth/internal/store"
	"sleuth/internal/types"
)

// Engine classifies every fact of an investigation: credibility with echo
// dampening, impact tier, dubious gates, contradictions, and the priority
// score that orders the verification queue. Results land in the
// classification store; a classification.complete event announces the batch.
type Engine struct {
	credibility     *Credibility
	detector        *ContradictionDetector
	facts           *store.FactStore
	classifications *store.ClassificationStore
	hub             *bus.Hub
}

// NewEngine wires the engine. hub may be nil in tests; zero echoAlpha and
// proximityDecay select the defaults.
func NewEngine(scorer *sources.AuthorityScorer, facts *store.FactStore, classifications *store.ClassificationStore, hub *bus.Hub, echoAlpha, proximityDecay float64) *Engine {
	return &Engine{
		credibility:     NewCredibility(scorer, echoAlpha, proximityDecay),
		detector:        NewContradictionDetector(),
		facts:           facts,
		classifications: classifications,
		hub:             hub,
	}
}

// BatchStats summarizes one classification run.
type BatchStats struct {
	Classified int
	Critical   int
	Dubious    int
	FlagCounts map[types.DubiousFlag]int
}

// Run classifies all canonical facts of the investigation against the
// objective. Re-running is safe: each fact's record is replaced wholesale.
func (e *Engine) Run(ctx context.Context, investigationID, objective string) (*BatchStats, error) {
	facts := e.facts.List(investigationID)
	if len(facts) == 0 {
		logging.Classify("no facts to classify for %s", investigationID)
		return &BatchStats{FlagCounts: make(map[types.DubiousFlag]int)}, nil
	}

	assessor := NewImpactAssessor(objective)
	contradictions := e.detector.Detect(facts)

	stats := &BatchStats{FlagCounts: make(map[types.DubiousFlag]int)}
	for _, fact := range facts {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		record, err := e.classifyOne(fact, assessor, contradictions[fact.FactID])
		if err != nil {
			return stats, fmt.Errorf("classify fact %s: %w", fact.FactID, err)
		}

		stats.Classified++
		if record.ImpactTier == types.TierCritical {
			stats.Critical++
		}
		if len(record.DubiousFlags) > 0 {
			stats.Dubious++
			for _, flag := range record.DubiousFlags {
				stats.FlagCounts[flag]++
			}
		}
	}

	logging.Classify("classified %d facts for %s: %d critical, %d dubious %v",
		stats.Classified, investigationID, stats.Critical, stats.Dubious, stats.FlagCounts)
	e.publishComplete(investigationID, stats)
	return stats, nil
}

// classifyOne scores a single fact and persists the classification record.
func (e *Engine) classifyOne(fact *types.ExtractedFact, assessor *ImpactAssessor, contradictions []types.Contradiction) (*types.FactClassification, error) {
	_, variants, _ := e.facts.GetWithVariants(fact.FactID)

	score, breakdown := e.credibility.Score(fact, variants)
	_, tier := assessor.Assess(fact)
	gates := RunGates(fact, score, len(contradictions))

	record := &types.FactClassification{
		FactID:               fact.FactID,
		InvestigationID:      fact.InvestigationID,
		ImpactTier:           tier,
		DubiousFlags:         gates.Flags,
		PriorityScore:        PriorityScore(tier, gates.Flags),
		CredibilityScore:     score,
		CredibilityBreakdown: breakdown,
		Reasoning:            gates.Reasoning,
		Contradictions:       contradictions,
		VerificationStatus:   types.StatusPending,
	}

	if err := e.classifications.Save(record); err != nil {
		return nil, err
	}
	return record, nil
}

func (e *Engine) publishComplete(investigationID string, stats *BatchStats) {
	if e.hub == nil {
		return
	}
	flagCounts := make(map[string]interface{}, len(stats.FlagCounts))
	for flag, n := range stats.FlagCounts {
		flagCounts[string(flag)] = n
	}
	e.hub.Publish(bus.TopicClassifyComplete, bus.Message{
		InvestigationID: investigationID,
		Payload: map[string]interface{}{
			"classified": stats.Classified,
			"critical":   stats.Critical,
			"dubious":    stats.Dubious,
			"flags":      flagCounts,
		},
	})
}
