// Package verify resolves dubious facts: species-specialized query
// generation, external search with authority and relevance scoring,
// graduated-confidence evidence aggregation, and a reclassification state
// machine that moves facts from PENDING to a terminal status.
package verify

import (
	"fmt"
	"regexp"
	"strings"

	"sleuth/internal/types"
)

// maxQueriesPerFact bounds the query budget per dubious fact, across all
// its flags. NOISE contributes no queries.
const maxQueriesPerFact = 3

// vagueQuantityPattern matches imprecise counts a FOG query should sharpen.
var vagueQuantityPattern = regexp.MustCompile(`(?i)\b(dozens|scores|many|several|numerous|hundreds|thousands|a number of)\b`)

// vagueTemporalPattern matches imprecise time references.
var vagueTemporalPattern = regexp.MustCompile(`(?i)\b(recently|lately|in recent (days|weeks|months)|earlier this (week|month|year)|soon)\b`)

// wireSites anchor site-restricted fallback queries.
var wireSites = []string{"reuters.com", "apnews.com", "afp.com"}

// QueryGenerator builds verification queries tailored to the dubious
// species being resolved.
type QueryGenerator struct{}

func NewQueryGenerator() *QueryGenerator {
	return &QueryGenerator{}
}

// Generate returns at most maxQueriesPerFact queries for the fact, ordered
// by flag priority. ANOMALY queries are a compound bundle: all dimensions
// are searched together, never sequentially.
func (g *QueryGenerator) Generate(fact *types.ExtractedFact, flags []types.DubiousFlag) []string {
	var queries []string
	seen := make(map[string]bool)
	add := func(q string) {
		q = strings.TrimSpace(q)
		if q == "" || seen[q] || len(queries) >= maxQueriesPerFact {
			return
		}
		seen[q] = true
		queries = append(queries, q)
	}

	// ANOMALY first: arbitration between contradicting facts outranks
	// chasing a single fact's provenance.
	for _, flag := range orderFlags(flags) {
		switch flag {
		case types.FlagAnomaly:
			for _, q := range g.anomalyBundle(fact) {
				add(q)
			}
		case types.FlagPhantom:
			for _, q := range g.phantomQueries(fact) {
				add(q)
			}
		case types.FlagFog:
			for _, q := range g.fogQueries(fact) {
				add(q)
			}
		case types.FlagNoise:
			// NOISE is not query-resolvable.
		}
	}
	return queries
}

// orderFlags sorts flags by verification priority: ANOMALY, PHANTOM, FOG.
func orderFlags(flags []types.DubiousFlag) []types.DubiousFlag {
	rank := map[types.DubiousFlag]int{
		types.FlagAnomaly: 0,
		types.FlagPhantom: 1,
		types.FlagFog:     2,
		types.FlagNoise:   3,
	}
	ordered := append([]types.DubiousFlag(nil), flags...)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && rank[ordered[j]] < rank[ordered[j-1]]; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	return ordered
}

// phantomQueries trace a sourceless echo back toward a primary root.
func (g *QueryGenerator) phantomQueries(fact *types.ExtractedFact) []string {
	var queries []string

	// 1. Entity-focused with named-source terms.
	if entities := topEntities(fact, 2); len(entities) > 0 {
		queries = append(queries,
			fmt.Sprintf("%s \"press release\" OR \"spokesperson\" OR \"official statement\"", strings.Join(entities, " ")))
	}

	// 2. Exact phrase of the claim core.
	queries = append(queries, fmt.Sprintf("%q", claimCore(fact, 8)))

	// 3. Broader context biased toward wires and officials.
	queries = append(queries,
		fmt.Sprintf("%s wire service official statement", claimCore(fact, 6)))
	return queries
}

// fogQueries seek a sharper version of a vague claim.
func (g *QueryGenerator) fogQueries(fact *types.ExtractedFact) []string {
	var queries []string
	core := claimCore(fact, 8)

	if match := vagueQuantityPattern.FindString(fact.Claim.Text); match != "" {
		queries = append(queries,
			fmt.Sprintf("%s exact number figures official count", strings.TrimSpace(vagueQuantityPattern.ReplaceAllString(core, ""))))
	}
	if match := vagueTemporalPattern.FindString(fact.Claim.Text); match != "" {
		queries = append(queries,
			fmt.Sprintf("%s specific date when timeline", strings.TrimSpace(vagueTemporalPattern.ReplaceAllString(core, ""))))
	}

	// Fallback: wire-service site restriction.
	if len(queries) == 0 {
		queries = append(queries, fmt.Sprintf("%s site:%s", core, wireSites[0]))
	}
	return queries
}

// anomalyBundle returns the compound three-dimension query set for
// contradiction arbitration. All three run together so resolution can weigh
// temporal, authority, and clarity evidence at once.
func (g *QueryGenerator) anomalyBundle(fact *types.ExtractedFact) []string {
	core := claimCore(fact, 8)

	temporal := fmt.Sprintf("%s latest update current status", core)
	if fact.Temporal != nil && fact.Temporal.Value != "" {
		temporal = fmt.Sprintf("%s as of %s timeline", core, fact.Temporal.Value)
	}

	authority := fmt.Sprintf("%s site:.gov OR official OR \"press briefing\"", core)
	clarity := fmt.Sprintf("%s exact figures confirmed details", core)

	return []string{temporal, authority, clarity}
}

// topEntities returns up to n entity names, canonical preferred.
func topEntities(fact *types.ExtractedFact, n int) []string {
	var names []string
	for _, e := range fact.Entities {
		name := e.Canonical
		if name == "" {
			name = e.Text
		}
		if name == "" {
			continue
		}
		names = append(names, name)
		if len(names) == n {
			break
		}
	}
	return names
}

// claimCore strips inline markers and truncates the claim to maxWords for
// use as a query stem.
var markerPattern = regexp.MustCompile(`\[(?:E|T)\d+:([^\]]*)\]`)

func claimCore(fact *types.ExtractedFact, maxWords int) string {
	text := markerPattern.ReplaceAllString(fact.Claim.Text, "$1")
	words := strings.Fields(text)
	if len(words) > maxWords {
		words = words[:maxWords]
	}
	return strings.Join(words, " ")
}
