package verify

import (
	"regexp"
	"strings"

	"sleuth/internal/sources"
	"sleuth/internal/types"
)

// Graduated confidence boosts by source class. A wire service vouching for
// a claim is worth three social posts.
const (
	boostWire     = 0.30
	boostOfficial = 0.25
	boostNews     = 0.20
	boostSocial   = 0.10
)

// Confirmation and refutation thresholds.
const (
	confirmSingleAuthority = 0.85
	confirmPairAuthority   = 0.70
	refuteAuthority        = 0.70
	refuteRelevance        = 0.70
	minSupportRelevance    = 0.50
)

// refutationPattern marks a snippet as pushing against the claim rather
// than echoing it.
var refutationPattern = regexp.MustCompile(`(?i)\b(denied|denies|debunked|false|no evidence|refuted|untrue|dismissed as|did not happen)\b`)

// Assessment is the aggregator's verdict over one fact's evidence.
type Assessment struct {
	Supporting      []types.Evidence
	Refuting        []types.Evidence
	ConfidenceBoost float64
	Confirmed       bool
	Refuted         bool
}

// Sufficient reports whether the evidence reached a verdict.
func (a Assessment) Sufficient() bool {
	return a.Confirmed || a.Refuted
}

// Aggregator applies the graduated-confidence rules to scored evidence.
type Aggregator struct{}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Assess splits evidence into supporting and refuting, accumulates
// confidence boosts from the supporting side, and applies the confirmation
// and refutation rules.
//
// Confirmation: one supporter with authority >= 0.85, or two independent
// supporters (different domains) with authority >= 0.7. Refutation: one
// refuter with authority >= 0.7 and relevance >= 0.7.
func (g *Aggregator) Assess(evidence []types.Evidence) Assessment {
	var out Assessment

	for _, ev := range evidence {
		if refutationPattern.MatchString(ev.Snippet) {
			ev.Supports = false
			out.Refuting = append(out.Refuting, ev)
			continue
		}
		if ev.RelevanceScore < minSupportRelevance {
			continue // too far off-topic to count either way
		}
		ev.Supports = true
		out.Supporting = append(out.Supporting, ev)
		out.ConfidenceBoost += classBoost(ev.Domain)
	}
	if out.ConfidenceBoost > 1.0 {
		out.ConfidenceBoost = 1.0
	}

	out.Confirmed = confirmed(out.Supporting)
	for _, ev := range out.Refuting {
		if ev.AuthorityScore >= refuteAuthority && ev.RelevanceScore >= refuteRelevance {
			out.Refuted = true
			break
		}
	}
	// Strong refutation outweighs confirmation from echoes.
	if out.Refuted {
		out.Confirmed = false
	}
	return out
}

// confirmed applies the one-strong-or-two-independent rule.
func confirmed(supporting []types.Evidence) bool {
	domainsAtPair := make(map[string]bool)
	for _, ev := range supporting {
		if ev.AuthorityScore >= confirmSingleAuthority {
			return true
		}
		if ev.AuthorityScore >= confirmPairAuthority {
			domainsAtPair[ev.Domain] = true
			if len(domainsAtPair) >= 2 {
				return true
			}
		}
	}
	return false
}

// classBoost maps a domain to its graduated confidence contribution.
func classBoost(domain string) float64 {
	switch {
	case sources.IsWireService(domain):
		return boostWire
	case strings.HasSuffix(domain, ".gov") || strings.HasSuffix(domain, ".mil"):
		return boostOfficial
	case sources.IsSocial(domain):
		return boostSocial
	default:
		return boostNews
	}
}
