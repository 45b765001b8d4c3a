package sources

import (
	"sync"

	"sleuth/internal/logging"
)

// URLManager performs investigation-scoped URL dedup. The dedup key is
// (investigationID, normalizedURL); the same URL in a different
// investigation is a distinct entry.
type URLManager struct {
	mu   sync.Mutex
	seen map[string]map[string]struct{} // investigationID -> normalized URL set
}

// NewURLManager creates an empty manager.
func NewURLManager() *URLManager {
	return &URLManager{seen: make(map[string]map[string]struct{})}
}

// Claim normalizes raw and records it for the investigation. It returns the
// canonical URL and whether this is the first sighting. Malformed URLs
// return an error and claim nothing.
func (m *URLManager) Claim(investigationID, raw string) (canonical string, fresh bool, err error) {
	canonical, err = Normalize(raw)
	if err != nil {
		return "", false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.seen[investigationID]
	if !ok {
		set = make(map[string]struct{})
		m.seen[investigationID] = set
	}
	if _, dup := set[canonical]; dup {
		logging.SourcesDebug("duplicate url for %s: %s", investigationID, canonical)
		return canonical, false, nil
	}
	set[canonical] = struct{}{}
	return canonical, true, nil
}

// Seen reports whether the canonical URL was already claimed for the
// investigation.
func (m *URLManager) Seen(investigationID, canonical string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.seen[investigationID]
	if !ok {
		return false
	}
	_, dup := set[canonical]
	return dup
}

// Count returns how many distinct URLs the investigation has claimed.
func (m *URLManager) Count(investigationID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen[investigationID])
}
