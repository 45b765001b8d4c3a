package orchestrator

import (
	"context"
	"sync/atomic"
	"time"

	"sleuth/internal/bus"
	"sleuth/internal/logging"
	"sleuth/internal/sources"
	"sleuth/internal/store"
	"sleuth/internal/types"
)

// SiftOutcome is what the extraction-classification-verification chain
// reports back to the orchestrator after a crawl pass.
type SiftOutcome struct {
	Conflicts []types.Contradiction
	Errors    []error
}

// SiftFunc runs the sifting chain over the investigation's current
// material. It is injected so the orchestrator package stays independent of
// the concrete pipeline wiring.
type SiftFunc func(ctx context.Context, investigationID string) (*SiftOutcome, error)

// BusExecutor coordinates one execution pass over the message bus: publish
// a crawl request per subtask, wait for the crawler cohort to report, turn
// the new articles into findings, then run the sifting chain.
type BusExecutor struct {
	hub      *bus.Hub
	articles *store.ArticleStore
	scorer   *sources.AuthorityScorer
	entities *sources.ContextCoordinator
	sift     SiftFunc
	timeout  time.Duration
}

// NewBusExecutor wires the executor. sift may be nil (crawl-only pass);
// zero timeout defaults to 2 minutes per pass.
func NewBusExecutor(hub *bus.Hub, articles *store.ArticleStore, scorer *sources.AuthorityScorer, entities *sources.ContextCoordinator, sift SiftFunc, timeout time.Duration) *BusExecutor {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &BusExecutor{
		hub:      hub,
		articles: articles,
		scorer:   scorer,
		entities: entities,
		sift:     sift,
		timeout:  timeout,
	}
}

// crawlTopicFor maps a source class to its crawl trigger topic.
func crawlTopicFor(class SourceClass) string {
	switch class {
	case ClassNews:
		return bus.TopicNewsCrawl
	case ClassSocial:
		return bus.TopicRedditCrawl
	case ClassDocument:
		return bus.TopicDocumentCrawl
	default:
		return bus.TopicWebCrawl
	}
}

// Execute dispatches the subtasks and gathers results. Crawler failures are
// collected as errors, never propagated: one dead source class must not
// starve the pass.
func (e *BusExecutor) Execute(ctx context.Context, investigationID string, subtasks []Subtask) (*ExecutionResult, error) {
	result := &ExecutionResult{}
	if len(subtasks) == 0 {
		return result, nil
	}

	before := e.knownURLs(investigationID)

	// Count crawler reports (complete or failed) for this investigation
	// until every dispatched subtask has been answered.
	var reported int64
	done := make(chan struct{}, len(subtasks))
	subID := e.hub.Subscribe("crawler.*", func(msg bus.Message) {
		if msg.InvestigationID != investigationID {
			return
		}
		if msg.Topic == bus.TopicCrawlerFailed {
			logging.OrchestratorDebug("crawler failure reported: %v", msg.Payload["error"])
		}
		if atomic.AddInt64(&reported, 1) <= int64(len(subtasks)) {
			done <- struct{}{}
		}
	})
	defer e.hub.Unsubscribe(subID)

	for _, st := range subtasks {
		e.hub.Publish(crawlTopicFor(st.SourceClass), bus.Message{
			InvestigationID: investigationID,
			Payload: map[string]interface{}{
				"query":      st.Query,
				"subtask_id": st.ID,
			},
		})
	}

	// Wait for all reports, the pass timeout, or cancellation. A timeout is
	// a degraded pass, not a failure.
	deadline := time.NewTimer(e.timeout)
	defer deadline.Stop()
	pending := len(subtasks)
wait:
	for pending > 0 {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-deadline.C:
			logging.OrchestratorWarn("execution pass timed out with %d crawls outstanding", pending)
			break wait
		case <-done:
			pending--
		}
	}

	result.Findings = e.collectFindings(investigationID, before, subtasks)

	if e.sift != nil {
		outcome, err := e.sift(ctx, investigationID)
		if err != nil {
			return result, err
		}
		result.Conflicts = outcome.Conflicts
		result.Errors = append(result.Errors, outcome.Errors...)
	}
	return result, nil
}

// knownURLs snapshots which articles existed before the pass.
func (e *BusExecutor) knownURLs(investigationID string) map[string]bool {
	known := make(map[string]bool)
	for _, article := range e.articles.RetrieveByInvestigation(investigationID).Articles {
		known[article.URL] = true
	}
	return known
}

// collectFindings converts the pass's new articles into findings.
func (e *BusExecutor) collectFindings(investigationID string, before map[string]bool, subtasks []Subtask) []Finding {
	subtaskByClass := make(map[types.SourceType]string)
	for _, st := range subtasks {
		subtaskByClass[sourceTypeForClass(st.SourceClass)] = st.ID
	}

	var findings []Finding
	for _, article := range e.articles.RetrieveByInvestigation(investigationID).Articles {
		if before[article.URL] {
			continue
		}
		finding := Finding{
			SubtaskID:   subtaskByClass[article.Metadata.SourceType],
			Domain:      article.Source.ID,
			Title:       article.Title,
			Content:     article.Content,
			PublishedAt: article.PublishedDate,
		}
		if e.scorer != nil {
			finding.SourceCred = e.scorer.Baseline(article.Source.ID)
		}
		if e.entities != nil {
			finding.Entities = e.entities.CrossReference(investigationID, article.Content)
		}
		findings = append(findings, finding)
	}
	return findings
}

func sourceTypeForClass(class SourceClass) types.SourceType {
	switch class {
	case ClassNews:
		return types.SourceRSS
	case ClassSocial:
		return types.SourceReddit
	case ClassDocument:
		return types.SourceDocument
	default:
		return types.SourceWeb
	}
}
