// Package classify scores extracted facts: a decomposed credibility formula
// with logarithmic echo dampening, an impact tier, Boolean dubious gates,
// contradiction detection, and the priority score that orders the
// verification queue.
package classify

import (
	"math"

	"sleuth/internal/logging"
	"sleuth/internal/sources"
	"sleuth/internal/types"
)

// Formula constants. EchoAlpha dampens repetition: ten echoes of a claim are
// worth far less than a second independent root. ProximityDecay discounts
// each attribution hop away from the eyewitness.
const (
	DefaultEchoAlpha      = 0.2
	DefaultProximityDecay = 0.7
	circularReportMinimum = 4
)

// Credibility computes per-source and aggregate credibility scores.
type Credibility struct {
	scorer         *sources.AuthorityScorer
	echoAlpha      float64
	proximityDecay float64
}

// NewCredibility creates the calculator. Zero alpha/decay select defaults.
func NewCredibility(scorer *sources.AuthorityScorer, echoAlpha, proximityDecay float64) *Credibility {
	if echoAlpha <= 0 {
		echoAlpha = DefaultEchoAlpha
	}
	if proximityDecay <= 0 || proximityDecay >= 1 {
		proximityDecay = DefaultProximityDecay
	}
	return &Credibility{scorer: scorer, echoAlpha: echoAlpha, proximityDecay: proximityDecay}
}

// Proximity is decay^hop: hop 0 is the eyewitness at 1.0.
func (c *Credibility) Proximity(hopCount int) float64 {
	if hopCount <= 0 {
		return 1.0
	}
	return math.Pow(c.proximityDecay, float64(hopCount))
}

// Precision weighs how pinned-down a claim is: entity count 30% (with
// diminishing returns), temporal precision 30%, quote presence 20%, document
// citation 20%.
func Precision(fact *types.ExtractedFact) float64 {
	// Diminishing returns on entities: 1 - 2^-n approaches 1 but each
	// additional entity adds half as much as the last.
	entityScore := 1.0 - math.Pow(2, -float64(len(fact.Entities)))

	temporalScore := 0.0
	if fact.Temporal != nil {
		switch fact.Temporal.TemporalPrecision {
		case types.TemporalExplicit:
			temporalScore = 1.0
		case types.TemporalInferred:
			temporalScore = 0.6
		default:
			temporalScore = 0.2
		}
	}

	quoteScore := 0.0
	if fact.Provenance.Quote != "" {
		quoteScore = 1.0
	}

	citationScore := 0.0
	if fact.Provenance.SourceType == types.SourceDocument || len(fact.Provenance.AttributionChain) > 0 {
		citationScore = 1.0
	}

	return 0.3*entityScore + 0.3*temporalScore + 0.2*quoteScore + 0.2*citationScore
}

// PerSource is SourceCred x Proximity x Precision for one attribution.
func (c *Credibility) PerSource(sourceID string, fact *types.ExtractedFact, hopCount int) float64 {
	return c.scorer.Baseline(sourceID) * c.Proximity(hopCount) * Precision(fact)
}

// Score computes the aggregate credibility of a canonical fact and its
// variants, with echo dampening: sources sharing an attribution root are
// echoes of that root, not independent corroboration.
//
//	total = S_root + alpha * log10(1 + sum(S_echoes))
//
// The strongest root anchors the score. When four or more sources all trace
// to the same non-primary root, the breakdown carries a circular-reporting
// warning.
func (c *Credibility) Score(fact *types.ExtractedFact, variants []*types.ExtractedFact) (float64, types.CredibilityBreakdown) {
	breakdown := types.CredibilityBreakdown{
		Proximity: c.Proximity(fact.Provenance.HopCount),
		Precision: Precision(fact),
		PerSource: make(map[string]float64),
	}
	breakdown.SourceCred = c.scorer.Baseline(fact.Provenance.SourceID)

	// Cluster every attribution by its chain root.
	type cluster struct {
		best      float64
		members   int
		isPrimary bool
	}
	clusters := make(map[string]*cluster)

	addAttribution := func(sourceID string, f *types.ExtractedFact) {
		score := c.PerSource(sourceID, f, f.Provenance.HopCount)
		breakdown.PerSource[sourceID] = score

		root := attributionRoot(f.Provenance, sourceID)
		cl, ok := clusters[root]
		if !ok {
			cl = &cluster{}
			clusters[root] = cl
		}
		cl.members++
		if score > cl.best {
			cl.best = score
		}
		if f.Provenance.Classification == types.SourcePrimary || f.Provenance.HopCount == 0 {
			cl.isPrimary = true
		}
	}

	addAttribution(fact.Provenance.SourceID, fact)
	for _, variant := range variants {
		addAttribution(variant.Provenance.SourceID, variant)
	}

	// The strongest cluster representative is the root score; every other
	// cluster's best contributes to the echo sum.
	var rootScore, echoSum float64
	totalMembers := 0
	var dominantCluster *cluster
	for _, cl := range clusters {
		totalMembers += cl.members
		if cl.best > rootScore {
			if dominantCluster != nil {
				echoSum += dominantCluster.best
			}
			rootScore = cl.best
			dominantCluster = cl
		} else {
			echoSum += cl.best
		}
	}

	breakdown.RootScore = rootScore
	breakdown.EchoSum = echoSum
	breakdown.UniqueRoots = len(clusters)
	breakdown.EchoBonus = c.echoAlpha * math.Log10(1+echoSum)

	total := rootScore + breakdown.EchoBonus
	if total > 1.0 {
		total = 1.0
	}
	if total < 0 {
		total = 0
	}

	if len(clusters) == 1 && totalMembers >= circularReportMinimum && dominantCluster != nil && !dominantCluster.isPrimary {
		breakdown.CircularReport = true
		logging.ClassifyWarn("circular reporting: %d sources for fact %s trace to one non-primary root",
			totalMembers, fact.FactID)
	}

	return total, breakdown
}

// attributionRoot identifies the cluster key for an attribution: the far end
// of the chain when one exists, otherwise the source itself.
func attributionRoot(p types.Provenance, sourceID string) string {
	if len(p.AttributionChain) > 0 {
		return p.AttributionChain[len(p.AttributionChain)-1]
	}
	return sourceID
}
