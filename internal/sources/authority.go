package sources

import (
	"strings"
	"sync"
	"time"
)

// Baseline authority tiers. Wire services outrank institutional domains,
// which outrank generic ones; social content starts near the bottom.
const (
	tierWire    = 0.9
	tierGovEdu  = 0.85
	tierOrg     = 0.7
	tierUnknown = 0.5
	tierSocial  = 0.3
)

// wireServiceDomains are the recognized wire services.
var wireServiceDomains = map[string]struct{}{
	"reuters.com":    {},
	"apnews.com":     {},
	"ap.org":         {},
	"afp.com":        {},
	"bloomberg.com":  {},
	"upi.com":        {},
}

// socialDomains host user-generated content.
var socialDomains = map[string]struct{}{
	"reddit.com":   {},
	"twitter.com":  {},
	"x.com":        {},
	"facebook.com": {},
	"t.me":         {},
	"tiktok.com":   {},
}

// AuthoritySignals carry the metadata adjustments applied on top of the
// baseline tier.
type AuthoritySignals struct {
	VerifiedAuthor bool
	PublishedAt    *time.Time
	HasEngagement  bool
}

// AuthorityScorer maps a domain to an authority score in [0,1]. Per-outlet
// overrides take precedence over the tier table.
type AuthorityScorer struct {
	mu        sync.RWMutex
	overrides map[string]float64 // domain -> score
}

// NewAuthorityScorer creates a scorer with optional per-outlet overrides.
func NewAuthorityScorer(overrides map[string]float64) *AuthorityScorer {
	s := &AuthorityScorer{overrides: make(map[string]float64)}
	for domain, score := range overrides {
		s.overrides[strings.ToLower(domain)] = score
	}
	return s
}

// Score computes the authority score for a domain with metadata signals.
// Verified author +0.05, recent publication +0.03, engagement +0.02, capped
// at 1.0.
func (s *AuthorityScorer) Score(domain string, signals AuthoritySignals) float64 {
	base := s.Baseline(domain)

	if signals.VerifiedAuthor {
		base += 0.05
	}
	if signals.PublishedAt != nil && time.Since(*signals.PublishedAt) < 72*time.Hour {
		base += 0.03
	}
	if signals.HasEngagement {
		base += 0.02
	}
	if base > 1.0 {
		base = 1.0
	}
	return base
}

// Baseline returns the tier-table score for a domain, honoring overrides.
func (s *AuthorityScorer) Baseline(domain string) float64 {
	domain = strings.ToLower(strings.TrimPrefix(domain, "www."))

	s.mu.RLock()
	override, ok := s.overrides[domain]
	s.mu.RUnlock()
	if ok {
		return override
	}

	if _, wire := wireServiceDomains[domain]; wire {
		return tierWire
	}
	if _, social := socialDomains[domain]; social {
		return tierSocial
	}
	if strings.HasSuffix(domain, ".gov") || strings.HasSuffix(domain, ".edu") ||
		strings.HasSuffix(domain, ".mil") {
		return tierGovEdu
	}
	if strings.HasSuffix(domain, ".org") {
		return tierOrg
	}
	return tierUnknown
}

// IsWireService reports whether the domain is a recognized wire service.
func IsWireService(domain string) bool {
	domain = strings.ToLower(strings.TrimPrefix(domain, "www."))
	_, ok := wireServiceDomains[domain]
	return ok
}

// IsSocial reports whether the domain hosts user-generated content.
func IsSocial(domain string) bool {
	domain = strings.ToLower(strings.TrimPrefix(domain, "www."))
	_, ok := socialDomains[domain]
	return ok
}

// AuthorityLevel buckets a score into the 1..5 article metadata level.
func AuthorityLevel(score float64) int {
	switch {
	case score >= 0.85:
		return 5
	case score >= 0.7:
		return 4
	case score >= 0.5:
		return 3
	case score >= 0.3:
		return 2
	default:
		return 1
	}
}
