// Package bus implements the process-local topic hub that coordinates the
// crawler cohort, sifters, and orchestrator. Delivery is at-most-once,
// asynchronous, and in publish order per subscriber. There is no replay and
// no persistence; a handler panic is contained to its own subscription.
package bus

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sleuth/internal/logging"
)

// Stable topic names used across the system. Every payload carries
// investigation_id as its correlation key.
const (
	TopicInvestigationStart = "investigation.start"
	TopicNewsCrawl          = "news.crawl"
	TopicRedditCrawl        = "reddit.crawl"
	TopicDocumentCrawl      = "document.crawl"
	TopicWebCrawl           = "web.crawl"
	TopicCrawlerComplete    = "crawler.complete"
	TopicCrawlerFailed      = "crawler.failed"
	TopicContextUpdate      = "context.update"
	TopicClassifyComplete   = "classification.complete"
	TopicFactVerified       = "verification.fact_verified"
	TopicBatchComplete      = "verification.batch_complete"
	TopicProgress           = "orchestrator.progress"
)

// Message is the unit of delivery on the hub.
type Message struct {
	Topic           string                 `json:"topic"`
	InvestigationID string                 `json:"investigation_id"`
	Payload         map[string]interface{} `json:"payload,omitempty"`
	PublishedAt     time.Time              `json:"published_at"`
}

// Handler processes one delivered message. Handlers run on the
// subscription's worker goroutine, never on the publisher's.
type Handler func(msg Message)

// queueDepth bounds the per-subscriber mailbox. Delivery is at-most-once:
// when a slow subscriber's mailbox is full, the message is dropped for that
// subscriber only.
const queueDepth = 256

type subscription struct {
	id      string
	pattern string
	handler Handler
	mailbox chan Message
	done    chan struct{}
}

// Hub is the topic pub/sub hub. Construct with New; exactly one instance per
// process is expected, but tests may build as many as they need.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*subscription
	nextID int64
	closed bool

	dropped int64 // messages dropped on full mailboxes
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{subs: make(map[string]*subscription)}
}

// Subscribe registers a handler for a topic pattern and returns the
// subscription ID. Patterns are dotted strings; the final segment may be the
// wildcard "*" ("crawler.*" matches "crawler.complete").
func (h *Hub) Subscribe(pattern string, handler Handler) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ""
	}

	h.nextID++
	sub := &subscription{
		id:      fmt.Sprintf("sub-%d", h.nextID),
		pattern: pattern,
		handler: handler,
		mailbox: make(chan Message, queueDepth),
		done:    make(chan struct{}),
	}
	h.subs[sub.id] = sub

	go sub.deliverLoop()

	logging.BusDebug("subscribed %s to %q", sub.id, pattern)
	return sub.id
}

// Unsubscribe removes a subscription. Idempotent.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()

	if ok {
		close(sub.mailbox)
		<-sub.done
		logging.BusDebug("unsubscribed %s (%q)", id, sub.pattern)
	}
}

// Publish delivers msg to every matching subscriber's mailbox and returns
// immediately. The publisher is never affected by subscriber behavior.
func (h *Hub) Publish(topic string, msg Message) {
	msg.Topic = topic
	if msg.PublishedAt.IsZero() {
		msg.PublishedAt = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}

	for _, sub := range h.subs {
		if !matchTopic(sub.pattern, topic) {
			continue
		}
		select {
		case sub.mailbox <- msg:
		default:
			atomic.AddInt64(&h.dropped, 1)
			logging.BusError("mailbox full for %s (%q), dropping %s", sub.id, sub.pattern, topic)
		}
	}
}

// Dropped returns the count of messages dropped on full mailboxes.
func (h *Hub) Dropped() int64 {
	return atomic.LoadInt64(&h.dropped)
}

// Close stops all delivery workers. Messages still queued are delivered
// before each worker exits.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := make([]*subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.subs = make(map[string]*subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		close(sub.mailbox)
		<-sub.done
	}
}

// deliverLoop drains the mailbox in FIFO order on a dedicated goroutine.
func (s *subscription) deliverLoop() {
	defer close(s.done)
	for msg := range s.mailbox {
		s.dispatch(msg)
	}
}

// dispatch invokes the handler, containing any panic to this subscriber.
func (s *subscription) dispatch(msg Message) {
	defer func() {
		if r := recover(); r != nil {
			logging.BusError("handler panic on %s (%q): %v", s.id, s.pattern, r)
		}
	}()
	s.handler(msg)
}

// matchTopic reports whether a dotted topic matches a pattern. Only a
// trailing "*" segment is treated as a wildcard.
func matchTopic(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(topic, prefix)
	}
	if pattern == "*" {
		return true
	}
	return false
}
