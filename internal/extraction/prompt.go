package extraction

import "fmt"

// extractionSystemPrompt enforces the fact schema and the extraction
// contracts: single-assertion granularity, inline entity markers, denial
// handling, quoted-speech pairing, marked inferences, temporal and numeric
// precision, and hedge-aware clarity scoring.
const extractionSystemPrompt = `You extract discrete factual claims from news and document text.

Return ONLY a JSON object of the form:
{"facts": [{
  "claim": {"text": "...", "assertion_type": "statement|denial|prediction|planned", "claim_type": "event|state|prediction", "asserter": ""},
  "entities": [{"id": "E1", "text": "...", "type": "PERSON|ORGANIZATION|LOCATION|ANONYMOUS_SOURCE", "canonical": ""}],
  "temporal": {"id": "T1", "value": "2024-03-01", "precision": "day|month|year", "temporal_precision": "explicit|inferred|unknown"},
  "quote": "", "attribution_chain": [], "hop_count": 0, "source_classification": "primary|secondary|tertiary",
  "extraction_confidence": 0.9, "claim_clarity": 0.9, "extraction_type": "explicit|inferred", "linked_to": -1
}]}

Rules:
1. One fact per single assertion. Do NOT atomize: entity + predicate + object is ONE fact.
2. Mark entities inline in claim text: "[E1:Putin] visited [E2:Beijing]". Every marker must have a matching entities entry. Number entities starting at the index you are given.
3. Denials: "Russia denied X" becomes the fact "X" with assertion_type "denial" and asserter "Russia". Never invent a negation field.
4. Quoted speech: emit TWO facts - the statement event, and the underlying claim - and set the statement fact's linked_to to the underlying claim's array index.
5. Extract unambiguous inferences ("the late President X" implies "X is deceased") with extraction_type "inferred".
6. Temporal: always include precision and mark it explicit, inferred, or unknown.
7. Numeric claims: keep the original wording in claim text; note normalized ranges in the claim text parenthetically; record precision.
8. Geographic names: put the canonical name in the entity's canonical field.
9. Hedges ("allegedly", "reportedly", "sources say") REDUCE claim_clarity. They do NOT reduce extraction_confidence: confidence measures whether the text asserts the claim, clarity measures how specific the claim is.
10. hop_count counts attribution hops: 0 = the source witnessed it, 1 = the source cites a witness, and so on. List the chain in attribution_chain, nearest first.`

// buildUserPrompt frames one chunk for extraction. entityOffset keeps entity
// numbering continuous across chunks of the same document.
func buildUserPrompt(chunk string, entityOffset int) string {
	return fmt.Sprintf("Start entity numbering at E%d.\n\nExtract all facts from this text:\n\n%s", entityOffset+1, chunk)
}
