package crawler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sleuth/internal/bus"
	"sleuth/internal/logging"
	"sleuth/internal/registry"
	"sleuth/internal/store"
)

// topicFor maps each crawler capability to its trigger topic.
var topicFor = map[string]string{
	registry.CapCrawlNews:     bus.TopicNewsCrawl,
	registry.CapCrawlReddit:   bus.TopicRedditCrawl,
	registry.CapCrawlDocument: bus.TopicDocumentCrawl,
	registry.CapCrawlWeb:      bus.TopicWebCrawl,
}

// Cohort owns the running crawler set: it registers each crawler with the
// agent directory, subscribes it to its crawl topic, saves fetched articles,
// and keeps heartbeats flowing.
type Cohort struct {
	hub      *bus.Hub
	registry *registry.Registry
	articles *store.ArticleStore

	crawlers map[string]Crawler // agent ID -> crawler
	subIDs   []string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewCohort wires crawlers to the hub and registry. Call Stop to release
// subscriptions and registrations.
func NewCohort(hub *bus.Hub, reg *registry.Registry, articles *store.ArticleStore, crawlers ...Crawler) *Cohort {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cohort{
		hub:      hub,
		registry: reg,
		articles: articles,
		crawlers: make(map[string]Crawler),
		ctx:      ctx,
		cancel:   cancel,
	}

	for _, crawler := range crawlers {
		agentID := crawler.Name() + "-" + uuid.New().String()[:8]
		c.crawlers[agentID] = crawler
		reg.Register(agentID, crawler.Name(), []string{crawler.Capability()})

		topic, ok := topicFor[crawler.Capability()]
		if !ok {
			continue
		}
		cr := crawler
		id := agentID
		subID := hub.Subscribe(topic, func(msg bus.Message) {
			c.handleCrawl(id, cr, msg)
		})
		c.subIDs = append(c.subIDs, subID)
	}

	go c.heartbeatLoop()
	return c
}

// handleCrawl runs one crawl triggered from the bus. Fetch failures become
// crawler.failed events; the handler itself never propagates errors.
func (c *Cohort) handleCrawl(agentID string, crawler Crawler, msg bus.Message) {
	query, _ := msg.Payload["query"].(string)
	constraints := Constraints{}
	if window, ok := msg.Payload["window_hours"].(float64); ok && window > 0 {
		constraints.Window = time.Duration(window) * time.Hour
	}

	result, err := crawler.Fetch(c.ctx, msg.InvestigationID, query, constraints)
	if err != nil {
		logging.CrawlerError("%s crawl for %s failed: %v", crawler.Name(), msg.InvestigationID, err)
		// publishFailed is on Deps for crawlers that own one; the cohort
		// publishes directly so bus-triggered failures are never lost.
		c.hub.Publish(bus.TopicCrawlerFailed, bus.Message{
			InvestigationID: msg.InvestigationID,
			Payload: map[string]interface{}{
				"crawler": crawler.Name(),
				"error":   err.Error(),
			},
		})
		return
	}

	if len(result.Articles) > 0 {
		saved := c.articles.SaveArticles(result.Articles)
		logging.Crawler("%s saved %d articles for %s", crawler.Name(), saved, msg.InvestigationID)
	}
	c.registry.Heartbeat(agentID)
}

// heartbeatLoop refreshes every crawler's registry entry until Stop.
func (c *Cohort) heartbeatLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			for agentID := range c.crawlers {
				c.registry.Heartbeat(agentID)
			}
		}
	}
}

// Stop unsubscribes and deregisters every crawler.
func (c *Cohort) Stop() {
	c.cancel()
	for _, subID := range c.subIDs {
		c.hub.Unsubscribe(subID)
	}
	for agentID := range c.crawlers {
		c.registry.Deregister(agentID)
	}
}
