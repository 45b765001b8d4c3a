package orchestrator

import (
	"strings"
	"time"

	"sleuth/internal/config"
)

// Signal strength weights: how promising is what the last pass brought back.
const (
	weightKeywordMatch = 0.3
	weightEntityDense  = 0.2
	weightSourceCred   = 0.3
	weightInfoDense    = 0.2
)

// Novelty weights for diminishing-returns detection.
const (
	weightSourceNovelty  = 0.3
	weightEntityNovelty  = 0.4
	weightContentNovelty = 0.3
)

// Saturation points for the coverage ratios.
const (
	saturationDomains   = 8
	saturationLocations = 5
	saturationDays      = 30
)

// Evaluator scores findings against the objective and the accumulated set.
type Evaluator struct {
	objective       string
	objectiveTokens map[string]bool
	targets         config.CoverageTargets

	// Accumulated identity sets for novelty computation.
	seenDomains  map[string]bool
	seenEntities map[string]bool
	seenTokens   map[string]bool
}

func NewEvaluator(objective string, targets config.CoverageTargets) *Evaluator {
	tokens := make(map[string]bool)
	for _, kw := range objectiveKeywords(objective) {
		tokens[kw] = true
	}
	return &Evaluator{
		objective:       objective,
		objectiveTokens: tokens,
		targets:         targets,
		seenDomains:     make(map[string]bool),
		seenEntities:    make(map[string]bool),
		seenTokens:      make(map[string]bool),
	}
}

// SignalStrength is the weighted average promise of a finding batch.
func (e *Evaluator) SignalStrength(findings []Finding) float64 {
	if len(findings) == 0 {
		return 0
	}
	var total float64
	for _, f := range findings {
		keyword := tokenOverlap(strings.Join(keywordSlice(e.objectiveTokens), " "), f.Title+" "+f.Content)
		entityDensity := ratio(float64(len(f.Entities)), 5)
		infoDensity := ratio(float64(len(f.Content)), 2000)

		total += weightKeywordMatch*keyword +
			weightEntityDense*entityDensity +
			weightSourceCred*f.SourceCred +
			weightInfoDense*infoDensity
	}
	return total / float64(len(findings))
}

// MeasureCoverage computes the four coverage dimensions over the full
// accumulated finding set.
func (e *Evaluator) MeasureCoverage(findings []Finding) Coverage {
	domains := make(map[string]bool)
	locations := make(map[string]bool)
	var earliest, latest *time.Time
	topicHits := make(map[string]bool)

	for _, f := range findings {
		if f.Domain != "" {
			domains[f.Domain] = true
		}
		for _, loc := range f.Locations {
			locations[strings.ToLower(loc)] = true
		}
		if f.PublishedAt != nil {
			if earliest == nil || f.PublishedAt.Before(*earliest) {
				earliest = f.PublishedAt
			}
			if latest == nil || f.PublishedAt.After(*latest) {
				latest = f.PublishedAt
			}
		}
		text := strings.ToLower(f.Title + " " + f.Content)
		for token := range e.objectiveTokens {
			if strings.Contains(text, token) {
				topicHits[token] = true
			}
		}
	}

	temporal := 0.0
	if earliest != nil && latest != nil {
		spanDays := latest.Sub(*earliest).Hours() / 24
		temporal = ratio(spanDays, saturationDays)
		if temporal == 0 && len(findings) > 0 {
			temporal = 1.0 / saturationDays // single-day coverage is not zero
		}
	}

	topic := 0.0
	if len(e.objectiveTokens) > 0 {
		topic = float64(len(topicHits)) / float64(len(e.objectiveTokens))
	}

	return Coverage{
		SourceDiversity: ratio(float64(len(domains)), saturationDomains),
		Geographic:      ratio(float64(len(locations)), saturationLocations),
		Temporal:        temporal,
		Topic:           topic,
	}
}

// CoverageMet reports whether every dimension reached its target.
func (e *Evaluator) CoverageMet(c Coverage) bool {
	return c.SourceDiversity >= e.targets.SourceDiversity &&
		c.Geographic >= e.targets.Geographic &&
		c.Temporal >= e.targets.Temporal &&
		c.Topic >= e.targets.Topic
}

// Novelty measures how much of a new batch was unseen, then absorbs the
// batch into the accumulated sets. A batch of pure repeats scores 0.
func (e *Evaluator) Novelty(batch []Finding) float64 {
	if len(batch) == 0 {
		return 0
	}

	newDomains, totalDomains := 0, 0
	newEntities, totalEntities := 0, 0
	newTokens, totalTokens := 0, 0

	for _, f := range batch {
		if f.Domain != "" {
			totalDomains++
			if !e.seenDomains[f.Domain] {
				newDomains++
				e.seenDomains[f.Domain] = true
			}
		}
		for _, entity := range f.Entities {
			key := strings.ToLower(entity)
			totalEntities++
			if !e.seenEntities[key] {
				newEntities++
				e.seenEntities[key] = true
			}
		}
		for _, token := range wordPattern.FindAllString(strings.ToLower(f.Content), -1) {
			if len(token) < 4 {
				continue
			}
			totalTokens++
			if !e.seenTokens[token] {
				newTokens++
				e.seenTokens[token] = true
			}
		}
	}

	return weightSourceNovelty*fraction(newDomains, totalDomains) +
		weightEntityNovelty*fraction(newEntities, totalEntities) +
		weightContentNovelty*fraction(newTokens, totalTokens)
}

func ratio(value, saturation float64) float64 {
	if saturation <= 0 {
		return 0
	}
	r := value / saturation
	if r > 1 {
		return 1
	}
	return r
}

func fraction(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

func keywordSlice(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
