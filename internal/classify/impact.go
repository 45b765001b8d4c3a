package classify

import (
	"strings"

	"sleuth/internal/types"
)

// Impact scoring: 0.5*entity_significance + 0.5*event_significance +
// context_boost. Score >= 0.6 lands in the critical tier.
const criticalThreshold = 0.6

// Entity significance tiers.
const (
	entityWorldLeader    = 1.0
	entitySeniorOfficial = 0.8
	entityMajorOrg       = 0.6
	entityGeneric        = 0.3
)

// Event significance tiers.
const (
	eventMilitary   = 1.0
	eventTreaty     = 0.9
	eventElection   = 0.8
	eventDiplomatic = 0.7
	eventRoutine    = 0.2
)

var worldLeaderTerms = []string{
	"president", "prime minister", "chancellor", "king", "queen",
	"supreme leader", "head of state",
}

var seniorOfficialTerms = []string{
	"minister", "secretary", "general", "ambassador", "senator",
	"governor", "director", "chief of staff", "spokesperson",
}

var majorOrgTerms = []string{
	"united nations", "nato", "european union", "world bank", "imf",
	"pentagon", "kremlin", "white house", "state department",
	"ministry", "parliament", "congress", "central bank",
}

var eventTerms = []struct {
	score float64
	terms []string
}{
	{eventMilitary, []string{"military", "troops", "missile", "nuclear", "invasion", "airstrike", "attack", "warhead", "mobilization"}},
	{eventTreaty, []string{"treaty", "sanctions", "embargo", "ceasefire", "agreement signed"}},
	{eventElection, []string{"election", "coup", "referendum", "impeach", "overthrow"}},
	{eventDiplomatic, []string{"summit", "negotiation", "diplomatic", "ambassador recalled", "talks", "visit"}},
}

// ImpactAssessor computes the impact tier of a fact in the context of the
// investigation objective.
type ImpactAssessor struct {
	objectiveTokens map[string]bool
}

// NewImpactAssessor derives context keywords from the objective text.
func NewImpactAssessor(objective string) *ImpactAssessor {
	return &ImpactAssessor{objectiveTokens: contentTokens(objective)}
}

// Assess returns the impact score and tier for a fact.
func (a *ImpactAssessor) Assess(fact *types.ExtractedFact) (float64, types.ImpactTier) {
	score := 0.5*entitySignificance(fact) + 0.5*eventSignificance(fact.Claim.Text) + a.contextBoost(fact.Claim.Text)
	if score >= criticalThreshold {
		return score, types.TierCritical
	}
	return score, types.TierLessCritical
}

// entitySignificance takes the highest tier among the fact's entities.
func entitySignificance(fact *types.ExtractedFact) float64 {
	best := 0.0
	for _, entity := range fact.Entities {
		score := entityGeneric
		text := strings.ToLower(entity.Text + " " + entity.Canonical)
		switch {
		case containsAny(text, worldLeaderTerms):
			score = entityWorldLeader
		case containsAny(text, seniorOfficialTerms):
			score = entitySeniorOfficial
		case entity.Type == types.EntityOrganization && containsAny(text, majorOrgTerms):
			score = entityMajorOrg
		}
		if score > best {
			best = score
		}
	}
	// The claim text itself can carry the significance ("the president
	// announced...") even when entity extraction missed it.
	if best < entityWorldLeader {
		claim := strings.ToLower(fact.Claim.Text)
		if containsAny(claim, worldLeaderTerms) && best < entityWorldLeader {
			best = entityWorldLeader
		} else if containsAny(claim, seniorOfficialTerms) && best < entitySeniorOfficial {
			best = entitySeniorOfficial
		}
	}
	if best == 0 {
		best = entityGeneric
	}
	return best
}

// eventSignificance matches the claim against the event-class term table.
func eventSignificance(claimText string) float64 {
	claim := strings.ToLower(claimText)
	for _, class := range eventTerms {
		if containsAny(claim, class.terms) {
			return class.score
		}
	}
	return eventRoutine
}

// contextBoost rewards alignment with the investigation objective, up to
// 0.2.
func (a *ImpactAssessor) contextBoost(claimText string) float64 {
	if len(a.objectiveTokens) == 0 {
		return 0
	}
	matches := 0
	for token := range contentTokens(claimText) {
		if a.objectiveTokens[token] {
			matches++
		}
	}
	boost := 0.05 * float64(matches)
	if boost > 0.2 {
		boost = 0.2
	}
	return boost
}

func containsAny(haystack string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(haystack, term) {
			return true
		}
	}
	return false
}
