package classify

import (
	"fmt"
	"regexp"
	"strings"

	"sleuth/internal/types"
)

// Gate thresholds. Gates are Boolean, never weighted: a fact either trips a
// gate or it does not, and the reasoning records the trigger values.
const (
	phantomHopThreshold = 2
	fogClarityThreshold = 0.5
	noiseCredThreshold  = 0.3
)

// vagueAttributionPatterns match hedged or anonymous sourcing in claim text.
// The list is a starting set, tuned empirically.
var vagueAttributionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\ballegedly\b`),
	regexp.MustCompile(`(?i)\breportedly\b`),
	regexp.MustCompile(`(?i)\bsources?\s+say\b`),
	regexp.MustCompile(`(?i)\bofficials?\s+familiar\s+with\b`),
	regexp.MustCompile(`(?i)\bit\s+is\s+believed\b`),
	regexp.MustCompile(`(?i)\bmay\s+have\b`),
	regexp.MustCompile(`(?i)\bappears?\s+to\b`),
	regexp.MustCompile(`(?i)\brumou?red\b`),
}

// Fixability estimates per flag kind, the probability that targeted
// verification can resolve the flag.
const (
	fixabilityFog     = 0.9
	fixabilityAnomaly = 0.8
	fixabilityPhantom = 0.6
	fixabilityNoise   = 0.1
)

// GateResult is the outcome of running the dubious gates over one fact.
type GateResult struct {
	Flags     []types.DubiousFlag
	Reasoning map[types.DubiousFlag]types.FlagReasoning
}

// RunGates evaluates the four dubious gates. sourceCredibility is the fact's
// aggregate credibility score; contradictionCount comes from the detector.
func RunGates(fact *types.ExtractedFact, sourceCredibility float64, contradictionCount int) GateResult {
	result := GateResult{Reasoning: make(map[types.DubiousFlag]types.FlagReasoning)}

	flag := func(f types.DubiousFlag, explanation string, triggers map[string]float64) {
		result.Flags = append(result.Flags, f)
		result.Reasoning[f] = types.FlagReasoning{
			TriggerValues: triggers,
			Explanation:   explanation,
		}
	}

	// PHANTOM: deep in the attribution chain with no primary source in sight.
	if fact.Provenance.HopCount > phantomHopThreshold && !hasPrimarySource(fact) {
		flag(types.FlagPhantom,
			fmt.Sprintf("hop count %d with no primary source in the attribution chain", fact.Provenance.HopCount),
			map[string]float64{"hop_count": float64(fact.Provenance.HopCount)})
	}

	// FOG: the claim itself is mush, or the attribution is hedged.
	if fact.Quality.ClaimClarity < fogClarityThreshold {
		flag(types.FlagFog,
			fmt.Sprintf("claim clarity %.2f below %.2f", fact.Quality.ClaimClarity, fogClarityThreshold),
			map[string]float64{"claim_clarity": fact.Quality.ClaimClarity})
	} else if pattern := matchVagueAttribution(fact.Claim.Text); pattern != "" {
		flag(types.FlagFog,
			fmt.Sprintf("vague attribution %q in claim", pattern),
			map[string]float64{"claim_clarity": fact.Quality.ClaimClarity})
	}

	// ANOMALY: at least one trusted fact disagrees.
	if contradictionCount > 0 {
		flag(types.FlagAnomaly,
			fmt.Sprintf("%d contradicting fact(s) in the investigation", contradictionCount),
			map[string]float64{"contradiction_count": float64(contradictionCount)})
	}

	// NOISE: the source is known-unreliable regardless of the claim.
	if sourceCredibility < noiseCredThreshold {
		flag(types.FlagNoise,
			fmt.Sprintf("source credibility %.2f below %.2f", sourceCredibility, noiseCredThreshold),
			map[string]float64{"source_credibility": sourceCredibility})
	}

	return result
}

// hasPrimarySource reports whether any attribution on the fact, including
// accumulated variant sources, is primary.
func hasPrimarySource(fact *types.ExtractedFact) bool {
	if fact.Provenance.Classification == types.SourcePrimary {
		return true
	}
	for _, src := range fact.Provenance.AdditionalSources {
		if src.Classification == types.SourcePrimary {
			return true
		}
	}
	return false
}

func matchVagueAttribution(text string) string {
	for _, pattern := range vagueAttributionPatterns {
		if match := pattern.FindString(text); match != "" {
			return strings.ToLower(match)
		}
	}
	return ""
}

// PriorityScore orders the verification queue: impact times fixability.
// Clean facts and NOISE-only facts score zero, they have nothing verification
// can fix.
func PriorityScore(tier types.ImpactTier, flags []types.DubiousFlag) float64 {
	impactFactor := 0.5
	if tier == types.TierCritical {
		impactFactor = 1.0
	}
	return impactFactor * fixability(flags)
}

// fixability takes the best resolvable flag on the fact.
func fixability(flags []types.DubiousFlag) float64 {
	if len(flags) == 0 {
		return 0.0
	}
	best := 0.0
	noiseOnly := true
	for _, f := range flags {
		var fx float64
		switch f {
		case types.FlagFog:
			fx = fixabilityFog
		case types.FlagAnomaly:
			fx = fixabilityAnomaly
		case types.FlagPhantom:
			fx = fixabilityPhantom
		case types.FlagNoise:
			fx = fixabilityNoise
		}
		if f != types.FlagNoise {
			noiseOnly = false
		}
		if fx > best {
			best = fx
		}
	}
	if noiseOnly {
		// NOISE-only carries the nominal 0.1, but the priority queue
		// excludes it regardless.
		return fixabilityNoise
	}
	return best
}
