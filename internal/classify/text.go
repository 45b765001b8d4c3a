package classify

import (
	"regexp"
	"strconv"
	"strings"

	"sleuth/internal/types"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "had": true,
	"has": true, "have": true, "in": true, "is": true, "it": true,
	"its": true, "of": true, "on": true, "or": true, "that": true,
	"the": true, "this": true, "to": true, "was": true, "were": true,
	"will": true, "with": true,
}

var negationWords = map[string]bool{
	"not": true, "no": true, "never": true, "denied": true, "denies": true,
	"deny": true, "without": true, "false": true, "untrue": true,
	"didn't": true, "doesn't": true, "wasn't": true, "isn't": true,
	"refuted": true, "rejected": true,
}

var tokenPattern = regexp.MustCompile(`[a-z0-9']+`)

// contentTokens lowercases, tokenizes, and strips stop-words.
func contentTokens(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, token := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if len(token) < 2 || stopwords[token] {
			continue
		}
		tokens[token] = true
	}
	return tokens
}

// sharedTokens returns the intersection of two token sets, sorted order not
// guaranteed.
func sharedTokens(a, b map[string]bool) []string {
	var shared []string
	for token := range a {
		if b[token] {
			shared = append(shared, token)
		}
	}
	return shared
}

// hasNegation reports whether the text contains a negation word.
func hasNegation(text string) bool {
	for _, token := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if negationWords[token] {
			return true
		}
	}
	return false
}

var numberPattern = regexp.MustCompile(`\b\d[\d,]*(?:\.\d+)?\b`)

// claimNumbers extracts the numeric values mentioned in a claim.
func claimNumbers(text string) []float64 {
	var values []float64
	for _, match := range numberPattern.FindAllString(text, -1) {
		cleaned := strings.ReplaceAll(match, ",", "")
		if v, err := strconv.ParseFloat(cleaned, 64); err == nil {
			values = append(values, v)
		}
	}
	return values
}

// entityNames returns the canonical (falling back to surface) names of a
// fact's entities, lowercased.
func entityNames(entities []types.Entity) map[string]bool {
	names := make(map[string]bool)
	for _, e := range entities {
		name := e.Canonical
		if name == "" {
			name = e.Text
		}
		names[strings.ToLower(name)] = true
	}
	return names
}
