// Package extraction turns crawled articles into structured facts. The
// agent drives an LLM against a strict output schema; the pipeline batches
// articles with bounded concurrency and hands the union of extracted facts
// to the consolidator.
package extraction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sleuth/internal/llm"
	"sleuth/internal/logging"
	"sleuth/internal/types"
)

// Agent extracts facts from one article at a time.
type Agent struct {
	client       llm.Client
	modelVersion string
	chunkChars   int
	minChars     int
}

// NewAgent creates an extraction agent. chunkChars bounds one LLM input
// (default ~12k characters); minChars is the shortest input worth
// extracting from.
func NewAgent(client llm.Client, modelVersion string, chunkChars, minChars int) *Agent {
	if chunkChars <= 0 {
		chunkChars = 12_000
	}
	if minChars < 0 {
		minChars = 0
	}
	return &Agent{
		client:       client,
		modelVersion: modelVersion,
		chunkChars:   chunkChars,
		minChars:     minChars,
	}
}

// rawFact is the model's output schema for one fact.
type rawFact struct {
	Claim struct {
		Text          string `json:"text"`
		AssertionType string `json:"assertion_type"`
		ClaimType     string `json:"claim_type"`
		Asserter      string `json:"asserter"`
	} `json:"claim"`
	Entities []struct {
		ID        string `json:"id"`
		Text      string `json:"text"`
		Type      string `json:"type"`
		Canonical string `json:"canonical"`
	} `json:"entities"`
	Temporal *struct {
		ID                string `json:"id"`
		Value             string `json:"value"`
		Precision         string `json:"precision"`
		TemporalPrecision string `json:"temporal_precision"`
	} `json:"temporal"`
	Quote            string   `json:"quote"`
	AttributionChain []string `json:"attribution_chain"`
	HopCount         int      `json:"hop_count"`
	SourceClass      string   `json:"source_classification"`
	Confidence       float64  `json:"extraction_confidence"`
	Clarity          float64  `json:"claim_clarity"`
	ExtractionType   string   `json:"extraction_type"`
	LinkedTo         int      `json:"linked_to"` // index of a paired fact within the same response, -1 if none
}

type rawResponse struct {
	Facts []rawFact `json:"facts"`
}

// Extract pulls facts from an article. Inputs shorter than the minimum
// return an empty slice, not an error. Long documents are chunked on
// paragraph then sentence boundaries; entity IDs stay continuous across
// chunks so downstream clustering works.
func (a *Agent) Extract(ctx context.Context, article *types.Article) ([]*types.ExtractedFact, error) {
	input := strings.TrimSpace(article.Title + "\n\n" + article.Content)
	if len(input) < a.minChars {
		logging.ExtractionDebug("article %s below minimum input length, skipping", article.URL)
		return nil, nil
	}

	chunks := splitChunks(input, a.chunkChars)
	var facts []*types.ExtractedFact
	entityOffset := 0

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return facts, err
		}

		response, err := a.client.CompleteWithSystem(ctx, extractionSystemPrompt, buildUserPrompt(chunk, entityOffset))
		if err != nil {
			return facts, fmt.Errorf("extract chunk %d/%d of %s: %w", i+1, len(chunks), article.URL, err)
		}

		var parsed rawResponse
		if err := llm.UnmarshalResponse(response, &parsed); err != nil {
			// Schema-invalid model output: log, discard, keep going.
			logging.ExtractionWarn("invalid extraction output for %s chunk %d: %v", article.URL, i+1, err)
			continue
		}

		chunkFacts, maxEntity := a.convert(parsed.Facts, article, entityOffset)
		facts = append(facts, chunkFacts...)
		entityOffset = maxEntity
	}

	logging.Extraction("extracted %d facts from %s (%d chunks)", len(facts), article.URL, len(chunks))
	return facts, nil
}

// convert validates and normalizes raw model output into the fact schema.
// Invalid entries are dropped individually. Returns the highest entity index
// seen so the next chunk continues the numbering.
func (a *Agent) convert(raws []rawFact, article *types.Article, entityOffset int) ([]*types.ExtractedFact, int) {
	maxEntity := entityOffset
	var out []*types.ExtractedFact
	ids := make([]string, len(raws))

	for idx, raw := range raws {
		claimText := strings.TrimSpace(raw.Claim.Text)
		if claimText == "" {
			logging.ExtractionWarn("discarding fact with empty claim from %s", article.URL)
			continue
		}

		assertion, ok := normalizeAssertion(raw.Claim.AssertionType)
		if !ok {
			logging.ExtractionWarn("discarding fact with assertion type %q from %s", raw.Claim.AssertionType, article.URL)
			continue
		}

		fact := &types.ExtractedFact{
			FactID:          types.NewFactID(),
			InvestigationID: article.InvestigationID,
			SchemaVersion:   types.SchemaVersion,
			Claim: types.Claim{
				Text:          claimText,
				AssertionType: assertion,
				ClaimType:     defaultString(raw.Claim.ClaimType, "event"),
				Asserter:      strings.TrimSpace(raw.Claim.Asserter),
			},
			Provenance: types.Provenance{
				SourceID:         article.Source.ID,
				Quote:            strings.TrimSpace(raw.Quote),
				AttributionChain: raw.AttributionChain,
				HopCount:         maxInt(raw.HopCount, 0),
				SourceType:       article.Source.Type,
				Classification:   normalizeSourceClass(raw.SourceClass),
			},
			Quality: types.Quality{
				ExtractionConfidence: clamp01(raw.Confidence),
				ClaimClarity:         clamp01(raw.Clarity),
			},
			Extraction: types.ExtractionInfo{
				ExtractedAt:  time.Now().UTC(),
				ModelVersion: a.modelVersion,
				Type:         normalizeExtractionType(raw.ExtractionType),
			},
		}

		valid := true
		for _, e := range raw.Entities {
			entityType, ok := normalizeEntityType(e.Type)
			if !ok {
				logging.ExtractionWarn("discarding fact with entity type %q from %s", e.Type, article.URL)
				valid = false
				break
			}
			if n := entityIndex(e.ID); n > maxEntity {
				maxEntity = n
			}
			fact.Entities = append(fact.Entities, types.Entity{
				ID:        e.ID,
				Text:      strings.TrimSpace(e.Text),
				Type:      entityType,
				Canonical: strings.TrimSpace(e.Canonical),
			})
		}
		if !valid {
			continue
		}

		// Inline markers must resolve to the entities array.
		if !markersResolve(fact.Claim.Text, fact.Entities) {
			logging.ExtractionWarn("discarding fact with unresolved entity markers from %s", article.URL)
			continue
		}

		if raw.Temporal != nil {
			fact.Temporal = &types.Temporal{
				ID:                raw.Temporal.ID,
				Value:             raw.Temporal.Value,
				Precision:         defaultString(raw.Temporal.Precision, "day"),
				TemporalPrecision: normalizeTemporalPrecision(raw.Temporal.TemporalPrecision),
			}
		}

		fact.SealHash()
		ids[idx] = fact.FactID
		out = append(out, fact)
	}

	// Second pass: quoted-speech pairs link statement-event and reported
	// claim bidirectionally.
	for idx, raw := range raws {
		if ids[idx] == "" || raw.LinkedTo < 0 || raw.LinkedTo >= len(ids) || ids[raw.LinkedTo] == "" || raw.LinkedTo == idx {
			continue
		}
		for _, f := range out {
			if f.FactID == ids[idx] {
				f.Relationships = append(f.Relationships, types.Relationship{
					Type:         types.RelationSupports,
					TargetFactID: ids[raw.LinkedTo],
					Confidence:   1.0,
				})
			}
		}
	}

	return out, maxEntity
}

// entitySynonyms maps the abbreviations models emit to canonical types.
var entitySynonyms = map[string]types.EntityType{
	"PERSON":           types.EntityPerson,
	"PER":              types.EntityPerson,
	"ORGANIZATION":     types.EntityOrganization,
	"ORG":              types.EntityOrganization,
	"LOCATION":         types.EntityLocation,
	"LOC":              types.EntityLocation,
	"GPE":              types.EntityLocation,
	"ANONYMOUS_SOURCE": types.EntityAnonymousSource,
}

func normalizeEntityType(s string) (types.EntityType, bool) {
	t, ok := entitySynonyms[strings.ToUpper(strings.TrimSpace(s))]
	return t, ok
}

func normalizeAssertion(s string) (types.AssertionType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "statement", "":
		return types.AssertionStatement, true
	case "denial":
		return types.AssertionDenial, true
	case "prediction":
		return types.AssertionPrediction, true
	case "planned":
		return types.AssertionPlanned, true
	}
	return "", false
}

func normalizeSourceClass(s string) types.SourceClassification {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "primary":
		return types.SourcePrimary
	case "tertiary":
		return types.SourceTertiary
	default:
		return types.SourceSecondary
	}
}

func normalizeExtractionType(s string) types.ExtractionType {
	if strings.ToLower(strings.TrimSpace(s)) == "inferred" {
		return types.ExtractionInferred
	}
	return types.ExtractionExplicit
}

func normalizeTemporalPrecision(s string) types.TemporalPrecision {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "explicit":
		return types.TemporalExplicit
	case "inferred":
		return types.TemporalInferred
	default:
		return types.TemporalUnknown
	}
}

// entityIndex extracts the numeric part of an entity ID ("E12" -> 12).
func entityIndex(id string) int {
	id = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(id)), "E")
	n := 0
	for _, r := range id {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// markersResolve checks that every [E#:...] marker in the claim text has a
// matching entry in the entities array.
func markersResolve(text string, entities []types.Entity) bool {
	known := make(map[string]bool, len(entities))
	for _, e := range entities {
		known[strings.ToUpper(e.ID)] = true
	}
	for i := 0; i < len(text); i++ {
		if text[i] != '[' {
			continue
		}
		end := strings.IndexByte(text[i:], ']')
		if end < 0 {
			break
		}
		marker := text[i+1 : i+end]
		if colon := strings.IndexByte(marker, ':'); colon > 0 {
			id := strings.ToUpper(marker[:colon])
			if len(id) > 1 && id[0] == 'E' && isDigits(id[1:]) && !known[id] {
				return false
			}
		}
		i += end
	}
	return true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func defaultString(s, fallback string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	return s
}
