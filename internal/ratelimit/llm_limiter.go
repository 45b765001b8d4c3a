// Package ratelimit is the single coordination point for outbound calls.
// No component issues an LLM call or HTTP request without acquiring from a
// limiter here; the limiter is what stands between concurrent sifters and a
// thundering herd.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"sleuth/internal/logging"
)

// ErrRetriesExhausted is returned when a transient failure survives the full
// retry budget.
var ErrRetriesExhausted = errors.New("retry budget exhausted")

// MaxAttempts is the retry budget for transient failures.
const MaxAttempts = 5

// LLMLimiter enforces two concurrent sliding-window budgets over LLM
// traffic: requests per minute and tokens per minute. Acquire blocks until
// both windows admit (1 request, estimatedTokens). Waiters are served in
// strict FIFO order by a single dispatcher goroutine.
type LLMLimiter struct {
	requestsPerMinute int
	tokensPerMinute   int

	mu      sync.Mutex
	history []grant // grants inside the current window

	requests chan *acquireRequest
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

type grant struct {
	at     time.Time
	tokens int
}

type acquireRequest struct {
	ctx    context.Context
	tokens int
	ready  chan struct{}
}

const window = time.Minute

// NewLLMLimiter creates a limiter with the given per-minute caps and starts
// its dispatcher.
func NewLLMLimiter(requestsPerMinute, tokensPerMinute int) *LLMLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	if tokensPerMinute <= 0 {
		tokensPerMinute = 100_000
	}
	l := &LLMLimiter{
		requestsPerMinute: requestsPerMinute,
		tokensPerMinute:   tokensPerMinute,
		requests:          make(chan *acquireRequest, 1024),
		stopCh:            make(chan struct{}),
		done:              make(chan struct{}),
	}
	go l.dispatch()
	return l
}

// Acquire blocks until both windows admit one request of estimatedTokens, or
// ctx is cancelled. Callers waiting earlier are always granted first.
func (l *LLMLimiter) Acquire(ctx context.Context, estimatedTokens int) error {
	if estimatedTokens > l.tokensPerMinute {
		return fmt.Errorf("estimated tokens %d exceed per-minute cap %d", estimatedTokens, l.tokensPerMinute)
	}

	req := &acquireRequest{ctx: ctx, tokens: estimatedTokens, ready: make(chan struct{})}

	select {
	case l.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopCh:
		return errors.New("limiter stopped")
	}

	select {
	case <-req.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopCh:
		return errors.New("limiter stopped")
	}
}

// Stop shuts down the dispatcher. Outstanding waiters receive an error.
func (l *LLMLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	<-l.done
}

// dispatch serves acquire requests in arrival order, sleeping until the
// sliding windows free up capacity for the request at the head of the queue.
func (l *LLMLimiter) dispatch() {
	defer close(l.done)

	for {
		var req *acquireRequest
		select {
		case <-l.stopCh:
			return
		case req = <-l.requests:
		}

		// A cancelled waiter is skipped without consuming capacity.
		if req.ctx.Err() != nil {
			continue
		}

		for {
			wait := l.admit(req.tokens)
			if wait == 0 {
				close(req.ready)
				break
			}

			logging.RateLimitDebug("head waiter blocked %v (tokens=%d)", wait, req.tokens)
			timer := time.NewTimer(wait)
			select {
			case <-l.stopCh:
				timer.Stop()
				return
			case <-req.ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
			if req.ctx.Err() != nil {
				break // abandoned; move to the next waiter
			}
		}
	}
}

// admit records the grant and returns 0 when capacity exists in both
// windows; otherwise it returns how long until the oldest blocking grant
// slides out.
func (l *LLMLimiter) admit(tokens int) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.pruneLocked(now)

	tokenSum := 0
	for _, g := range l.history {
		tokenSum += g.tokens
	}

	if len(l.history) < l.requestsPerMinute && tokenSum+tokens <= l.tokensPerMinute {
		l.history = append(l.history, grant{at: now, tokens: tokens})
		return 0
	}

	// Blocked: wait for the oldest grant to leave the window.
	oldest := l.history[0].at
	wait := window - now.Sub(oldest)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait
}

func (l *LLMLimiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-window)
	idx := 0
	for idx < len(l.history) && l.history[idx].at.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		l.history = append(l.history[:0], l.history[idx:]...)
	}
}

// InFlight returns the number of grants inside the current window. Used by
// tests and metrics.
func (l *LLMLimiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(time.Now())
	return len(l.history)
}

// BackoffDelay computes the retry delay for one failed attempt:
// base * 2^attempt * uniform(0.5, 1.5), capped. A server-supplied
// retry-after hint overrides the computation.
func BackoffDelay(attempt int, base, cap time.Duration, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		if retryAfter > cap {
			return cap
		}
		return retryAfter
	}
	jitter := 0.5 + rand.Float64()
	delay := time.Duration(float64(base) * float64(int64(1)<<attempt) * jitter)
	if delay > cap {
		delay = cap
	}
	return delay
}

// OnFailure handles a transient failure (HTTP 5xx, 429, timeout): it sleeps
// the backoff delay for this attempt and returns nil, or returns
// ErrRetriesExhausted once the budget is spent. attempt is zero-based.
func (l *LLMLimiter) OnFailure(ctx context.Context, attempt, statusCode int, retryAfter time.Duration) error {
	if attempt >= MaxAttempts-1 {
		logging.RateLimit("giving up after %d attempts (status=%d)", attempt+1, statusCode)
		return ErrRetriesExhausted
	}

	delay := BackoffDelay(attempt, time.Second, 60*time.Second, retryAfter)
	logging.RateLimit("transient failure status=%d attempt=%d, backing off %v", statusCode, attempt, delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
