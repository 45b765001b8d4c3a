package sources

import (
	"strings"
	"sync"

	"sleuth/internal/bus"
	"sleuth/internal/logging"
)

// ContextCoordinator shares discovered entities across the crawler cohort.
// Each crawler reports entities it surfaces; new content is cross-referenced
// against the known set so later fetches can bias toward entities the
// investigation already cares about. Discoveries are broadcast on
// context.update.
type ContextCoordinator struct {
	hub *bus.Hub

	mu       sync.RWMutex
	entities map[string]map[string]string // investigationID -> normalized -> display form
}

// NewContextCoordinator creates a coordinator publishing on hub. A nil hub
// disables broadcasting but keeps the local index working.
func NewContextCoordinator(hub *bus.Hub) *ContextCoordinator {
	return &ContextCoordinator{
		hub:      hub,
		entities: make(map[string]map[string]string),
	}
}

// ReportEntities records newly discovered entity strings for the
// investigation and broadcasts any that are genuinely new.
func (c *ContextCoordinator) ReportEntities(investigationID string, names []string) {
	var fresh []string

	c.mu.Lock()
	known, ok := c.entities[investigationID]
	if !ok {
		known = make(map[string]string)
		c.entities[investigationID] = known
	}
	for _, name := range names {
		norm := normalizeEntity(name)
		if norm == "" {
			continue
		}
		if _, seen := known[norm]; !seen {
			known[norm] = name
			fresh = append(fresh, name)
		}
	}
	c.mu.Unlock()

	if len(fresh) == 0 {
		return
	}

	logging.Sources("investigation %s discovered %d new entities", investigationID, len(fresh))
	if c.hub != nil {
		c.hub.Publish(bus.TopicContextUpdate, bus.Message{
			InvestigationID: investigationID,
			Payload: map[string]interface{}{
				"entities": fresh,
			},
		})
	}
}

// CrossReference returns the known entities mentioned in content, matched on
// normalized lowercase strings.
func (c *ContextCoordinator) CrossReference(investigationID, content string) []string {
	haystack := strings.ToLower(content)

	c.mu.RLock()
	defer c.mu.RUnlock()

	known, ok := c.entities[investigationID]
	if !ok {
		return nil
	}
	var hits []string
	for norm, display := range known {
		if strings.Contains(haystack, norm) {
			hits = append(hits, display)
		}
	}
	return hits
}

// Known returns the display forms of all entities tracked for the
// investigation.
func (c *ContextCoordinator) Known(investigationID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	known := c.entities[investigationID]
	out := make([]string, 0, len(known))
	for _, display := range known {
		out = append(out, display)
	}
	return out
}

func normalizeEntity(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
