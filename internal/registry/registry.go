// Package registry maintains the capability-indexed directory of live
// workers. Discovery is by capability string, never by concrete type: the
// orchestrator asks for "crawl:news" or "sift:verification" and receives
// agent IDs, regardless of what implements them.
package registry

import (
	"sync"
	"time"

	"sleuth/internal/logging"
)

// AgentStatus tracks liveness as seen by the registry.
type AgentStatus string

const (
	StatusActive AgentStatus = "active"
	StatusStale  AgentStatus = "stale"
)

// Well-known capability strings. Crawlers register crawl:* capabilities,
// sifters register sift:*.
const (
	CapCrawlNews     = "crawl:news"
	CapCrawlReddit   = "crawl:reddit"
	CapCrawlDocument = "crawl:document"
	CapCrawlWeb      = "crawl:web"
	CapExtraction    = "sift:extraction"
	CapConsolidation = "sift:consolidation"
	CapClassify      = "sift:classification"
	CapVerify        = "sift:verification"
)

// AgentInfo describes one registered worker.
type AgentInfo struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Capabilities  []string    `json:"capabilities"`
	LastHeartbeat time.Time   `json:"last_heartbeat"`
	Status        AgentStatus `json:"status"`
}

// Registry is the capability-indexed agent directory. All operations are
// non-blocking; a background janitor marks agents stale after the configured
// timeout.
type Registry struct {
	mu           sync.RWMutex
	agents       map[string]*AgentInfo
	byCapability map[string]map[string]struct{} // capability -> set of agent IDs

	staleAfter time.Duration
	stopCh     chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
}

// New creates a registry whose janitor marks agents stale after staleAfter.
// A zero staleAfter defaults to 90 seconds.
func New(staleAfter time.Duration) *Registry {
	if staleAfter <= 0 {
		staleAfter = 90 * time.Second
	}
	r := &Registry{
		agents:       make(map[string]*AgentInfo),
		byCapability: make(map[string]map[string]struct{}),
		staleAfter:   staleAfter,
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
	}
	go r.janitor()
	return r
}

// Register adds or refreshes an agent. Idempotent: re-registering replaces
// the capability set and resets the heartbeat.
func (r *Registry) Register(id, name string, capabilities []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.agents[id]; ok {
		r.removeFromIndexLocked(id, old.Capabilities)
	}

	caps := make([]string, len(capabilities))
	copy(caps, capabilities)

	r.agents[id] = &AgentInfo{
		ID:            id,
		Name:          name,
		Capabilities:  caps,
		LastHeartbeat: time.Now(),
		Status:        StatusActive,
	}
	for _, cap := range caps {
		set, ok := r.byCapability[cap]
		if !ok {
			set = make(map[string]struct{})
			r.byCapability[cap] = set
		}
		set[id] = struct{}{}
	}

	logging.Registry("registered agent %s (%s) caps=%v", id, name, caps)
}

// Deregister removes an agent. Idempotent.
func (r *Registry) Deregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return
	}
	r.removeFromIndexLocked(id, agent.Capabilities)
	delete(r.agents, id)
	logging.Registry("deregistered agent %s", id)
}

// Heartbeat refreshes an agent's liveness. Unknown IDs are ignored.
func (r *Registry) Heartbeat(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if agent, ok := r.agents[id]; ok {
		agent.LastHeartbeat = time.Now()
		agent.Status = StatusActive
	}
}

// FindByCapability returns the IDs of active agents holding the capability.
// O(1) index probe plus copy of the result set.
func (r *Registry) FindByCapability(capability string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.byCapability[capability]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		if agent, ok := r.agents[id]; ok && agent.Status == StatusActive {
			ids = append(ids, id)
		}
	}
	return ids
}

// Get returns a copy of the agent record.
func (r *Registry) Get(id string) (AgentInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[id]
	if !ok {
		return AgentInfo{}, false
	}
	info := *agent
	info.Capabilities = append([]string(nil), agent.Capabilities...)
	return info, true
}

// List returns copies of all agent records.
func (r *Registry) List() []AgentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]AgentInfo, 0, len(r.agents))
	for _, agent := range r.agents {
		info := *agent
		info.Capabilities = append([]string(nil), agent.Capabilities...)
		out = append(out, info)
	}
	return out
}

// Stop terminates the janitor. Safe to call more than once.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	<-r.done
}

// janitor periodically sweeps for agents that missed their heartbeat window.
func (r *Registry) janitor() {
	defer close(r.done)

	interval := r.staleAfter / 3
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Registry) sweep() {
	cutoff := time.Now().Add(-r.staleAfter)

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, agent := range r.agents {
		if agent.Status == StatusActive && agent.LastHeartbeat.Before(cutoff) {
			agent.Status = StatusStale
			logging.Registry("agent %s marked stale (last heartbeat %v)", id, agent.LastHeartbeat)
		}
	}
}

func (r *Registry) removeFromIndexLocked(id string, capabilities []string) {
	for _, cap := range capabilities {
		if set, ok := r.byCapability[cap]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(r.byCapability, cap)
			}
		}
	}
}
