package extraction

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"sleuth/internal/logging"
	"sleuth/internal/store"
	"sleuth/internal/types"
)

// PipelineStats reports one pipeline run.
type PipelineStats struct {
	ArticlesProcessed int
	ArticlesFailed    int
	FactsExtracted    int
	FactsCanonical    int
	FactsVariant      int
	Errors            []error
}

// Pipeline runs the extraction agent over an investigation's articles in
// bounded-concurrency batches, then consolidates the union of all facts.
// One article's failure never aborts the batch; consolidation failure
// passes the original facts through untouched.
type Pipeline struct {
	agent        *Agent
	articles     *store.ArticleStore
	facts        *store.FactStore
	consolidator *store.Consolidator
	batchSize    int
}

// NewPipeline creates a pipeline. batchSize bounds concurrent article
// extractions (default 10).
func NewPipeline(agent *Agent, articles *store.ArticleStore, facts *store.FactStore, consolidator *store.Consolidator, batchSize int) *Pipeline {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Pipeline{
		agent:        agent,
		articles:     articles,
		facts:        facts,
		consolidator: consolidator,
		batchSize:    batchSize,
	}
}

// Run extracts facts from every stored article of the investigation.
func (p *Pipeline) Run(ctx context.Context, investigationID string) (*PipelineStats, error) {
	stats := &PipelineStats{}

	retrieved := p.articles.RetrieveByInvestigation(investigationID)
	if retrieved.TotalArticles == 0 {
		logging.Extraction("no articles for %s, nothing to extract", investigationID)
		return stats, nil
	}

	sem := semaphore.NewWeighted(int64(p.batchSize))
	var mu sync.Mutex
	var wg sync.WaitGroup
	var allFacts []*types.ExtractedFact

	for _, article := range retrieved.Articles {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return stats, err
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return stats, err
		}

		wg.Add(1)
		go func(article *types.Article) {
			defer wg.Done()
			defer sem.Release(1)

			facts, err := p.agent.Extract(ctx, article)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Partial failure: recorded, batch continues.
				stats.ArticlesFailed++
				stats.Errors = append(stats.Errors, fmt.Errorf("article %s: %w", article.URL, err))
				return
			}
			stats.ArticlesProcessed++
			stats.FactsExtracted += len(facts)
			allFacts = append(allFacts, facts...)
		}(article)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return stats, err
	}

	result, err := p.consolidator.Consolidate(ctx, allFacts)
	if err != nil {
		// Consolidation failure: original facts pass through untouched.
		logging.ExtractionWarn("consolidation failed for %s, storing facts unconsolidated: %v", investigationID, err)
		stats.Errors = append(stats.Errors, fmt.Errorf("consolidation: %w", err))
		for _, fact := range allFacts {
			if _, stored := p.facts.Get(fact.FactID); stored {
				continue
			}
			if saveErr := p.facts.Save(fact); saveErr != nil {
				stats.Errors = append(stats.Errors, saveErr)
			} else {
				stats.FactsCanonical++
			}
		}
		return stats, nil
	}

	stats.FactsCanonical = len(result.Canonical)
	stats.FactsVariant = len(result.Variants)
	logging.Extraction("pipeline for %s: %d articles, %d facts (%d canonical, %d variants), %d errors",
		investigationID, stats.ArticlesProcessed, stats.FactsExtracted,
		stats.FactsCanonical, stats.FactsVariant, len(stats.Errors))
	return stats, nil
}
