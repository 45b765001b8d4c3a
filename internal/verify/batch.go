package verify

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"sleuth/internal/bus"
	"sleuth/internal/logging"
	"sleuth/internal/store"
	"sleuth/internal/types"
)

// Concurrency bounds for the batch processor.
const (
	minBatchConcurrency = 5
	maxBatchConcurrency = 10
)

// BatchStats summarizes one verification batch.
type BatchStats struct {
	Processed    int
	Confirmed    int
	Refuted      int
	Superseded   int
	Unverifiable int
	Cancelled    int
	Errors       []error
}

// Batch drains the verification priority queue with bounded concurrency.
// Each fact runs the generate-search-assess loop up to maxAttempts query
// variants, then the reclassifier records the terminal state.
type Batch struct {
	generator       *QueryGenerator
	executor        *SearchExecutor
	reclassifier    *Reclassifier
	facts           *store.FactStore
	classifications *store.ClassificationStore
	archive         *store.Archive
	hub             *bus.Hub
	concurrency     int64
	maxAttempts     int
}

// NewBatch wires the processor. archive and hub may be nil. Concurrency is
// clamped to [5,10].
func NewBatch(generator *QueryGenerator, executor *SearchExecutor, reclassifier *Reclassifier, facts *store.FactStore, classifications *store.ClassificationStore, archive *store.Archive, hub *bus.Hub, concurrency, maxAttempts int) *Batch {
	if concurrency < minBatchConcurrency {
		concurrency = minBatchConcurrency
	}
	if concurrency > maxBatchConcurrency {
		concurrency = maxBatchConcurrency
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Batch{
		generator:       generator,
		executor:        executor,
		reclassifier:    reclassifier,
		facts:           facts,
		classifications: classifications,
		archive:         archive,
		hub:             hub,
		concurrency:     int64(concurrency),
		maxAttempts:     maxAttempts,
	}
}

// Run verifies every fact in the investigation's priority queue. The queue
// already excludes clean and NOISE-only facts.
func (b *Batch) Run(ctx context.Context, investigationID string) (*BatchStats, error) {
	queue := b.classifications.GetPriorityQueue(investigationID)
	stats := &BatchStats{}
	if len(queue) == 0 {
		logging.Verify("verification queue empty for %s", investigationID)
		return stats, nil
	}
	logging.Verify("verifying %d facts for %s", len(queue), investigationID)

	sem := semaphore.NewWeighted(b.concurrency)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, record := range queue {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Shutdown mid-batch: anything not yet started stays PENDING.
			break
		}
		wg.Add(1)
		go func(record *types.FactClassification) {
			defer wg.Done()
			defer sem.Release(1)

			result, err := b.verifyOne(ctx, investigationID, record)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctx.Err() != nil {
					stats.Cancelled++
				} else {
					stats.Errors = append(stats.Errors, fmt.Errorf("fact %s: %w", record.FactID, err))
				}
				return
			}
			if result == nil {
				return // resolved as the loser of an earlier arbitration
			}
			stats.Processed++
			switch result.Status {
			case types.StatusConfirmed:
				stats.Confirmed++
			case types.StatusRefuted:
				stats.Refuted++
			case types.StatusSuperseded:
				stats.Superseded++
			case types.StatusUnverifiable:
				stats.Unverifiable++
			}
		}(record)
	}
	wg.Wait()

	b.publishBatchComplete(investigationID, stats)
	return stats, ctx.Err()
}

// verifyOne runs the full loop for a single fact.
func (b *Batch) verifyOne(ctx context.Context, investigationID string, record *types.FactClassification) (*types.VerificationResult, error) {
	// Another goroutine may have resolved this fact as its arbitration
	// counterpart while it sat in the queue.
	if current, ok := b.classifications.Get(record.FactID); ok && current.VerificationStatus != types.StatusPending {
		return nil, nil
	}

	fact, ok := b.facts.Get(record.FactID)
	if !ok {
		return nil, fmt.Errorf("fact not found")
	}

	if err := b.reclassifier.Begin(investigationID, record.FactID); err != nil {
		return nil, err
	}

	queries := b.generator.Generate(fact, record.DubiousFlags)
	var allEvidence []types.Evidence
	var used []string
	var assessment Assessment

	// Without a search backend there is nothing to attempt: the fact ends
	// UNVERIFIABLE with zero query attempts charged against it.
	if b.executor.Mocked() {
		queries = nil
	}

	// One query variant per attempt; stop as soon as the evidence decides.
	attempts := 0
	for _, query := range queries {
		if err := ctx.Err(); err != nil {
			b.cancel(investigationID, record.FactID)
			return nil, err
		}
		if attempts >= b.maxAttempts {
			break
		}
		attempts++
		used = append(used, query)

		evidence, err := b.executor.Execute(ctx, []string{query})
		if err != nil {
			b.cancel(investigationID, record.FactID)
			return nil, err
		}
		allEvidence = dedupEvidence(allEvidence, evidence)
		assessment = NewAggregator().Assess(allEvidence)
		if assessment.Sufficient() {
			break
		}
	}

	result, err := b.finalize(investigationID, record, assessment, used, attempts)
	if err != nil {
		return nil, err
	}
	if b.archive != nil {
		if err := b.archive.Record(result); err != nil {
			logging.VerifyWarn("archive record for %s: %v", record.FactID, err)
		}
	}
	b.publishFactVerified(investigationID, result)
	return result, nil
}

// finalize routes confirmed ANOMALY facts through pair arbitration and
// everything else through the plain reclassifier.
func (b *Batch) finalize(investigationID string, record *types.FactClassification, assessment Assessment, queries []string, attempts int) (*types.VerificationResult, error) {
	if assessment.Confirmed && record.HasFlag(types.FlagAnomaly) {
		if loserID, kind, ok := b.arbitrationCounterpart(record); ok {
			winner, loser, err := b.reclassifier.ResolveAnomaly(investigationID, record.FactID, loserID, kind, assessment, queries, attempts)
			if err != nil {
				return nil, err
			}
			if b.archive != nil {
				if err := b.archive.Record(loser); err != nil {
					logging.VerifyWarn("archive record for %s: %v", loserID, err)
				}
			}
			b.publishFactVerified(investigationID, loser)
			return winner, nil
		}
	}
	return b.reclassifier.Apply(investigationID, record.FactID, assessment, queries, attempts)
}

// arbitrationCounterpart picks the contradicting fact this confirmation
// defeats: the first counterpart that is not already terminal.
func (b *Batch) arbitrationCounterpart(record *types.FactClassification) (string, types.ContradictionType, bool) {
	for _, contradiction := range record.Contradictions {
		other, ok := b.classifications.Get(contradiction.OtherFactID)
		if !ok {
			continue
		}
		switch other.VerificationStatus {
		case types.StatusPending, types.StatusInProgress:
			return contradiction.OtherFactID, contradiction.Type, true
		}
	}
	return "", "", false
}

func (b *Batch) cancel(investigationID, factID string) {
	if err := b.reclassifier.Cancel(investigationID, factID); err != nil {
		logging.VerifyWarn("cancel %s: %v", factID, err)
	}
}

// dedupEvidence merges new evidence, keeping one entry per URL.
func dedupEvidence(existing, incoming []types.Evidence) []types.Evidence {
	seen := make(map[string]bool, len(existing))
	for _, ev := range existing {
		seen[ev.URL] = true
	}
	for _, ev := range incoming {
		if seen[ev.URL] {
			continue
		}
		seen[ev.URL] = true
		existing = append(existing, ev)
	}
	return existing
}

func (b *Batch) publishFactVerified(investigationID string, result *types.VerificationResult) {
	if b.hub == nil {
		return
	}
	b.hub.Publish(bus.TopicFactVerified, bus.Message{
		InvestigationID: investigationID,
		Payload: map[string]interface{}{
			"fact_id":          result.FactID,
			"status":           string(result.Status),
			"final_confidence": result.FinalConfidence,
			"human_review":     result.RequiresHumanReview,
		},
	})
}

func (b *Batch) publishBatchComplete(investigationID string, stats *BatchStats) {
	if b.hub == nil {
		return
	}
	b.hub.Publish(bus.TopicBatchComplete, bus.Message{
		InvestigationID: investigationID,
		Payload: map[string]interface{}{
			"processed":    stats.Processed,
			"confirmed":    stats.Confirmed,
			"refuted":      stats.Refuted,
			"superseded":   stats.Superseded,
			"unverifiable": stats.Unverifiable,
			"cancelled":    stats.Cancelled,
			"errors":       len(stats.Errors),
		},
	})
}
