// Package eventbus fans out AgentEvents to direct handlers and to buffered
// per-agent subscriptions, with a bounded replay log for critical events.
package eventbus

import (
	"fmt"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/arcway-dev/orchestra/internal/async"
	"github.com/arcway-dev/orchestra/internal/domain"
	"github.com/arcway-dev/orchestra/internal/logging"
)

// Handler receives events synchronously, in publish order. A panicking
// handler is recovered and logged; it never brings down the publisher.
type Handler func(domain.AgentEvent)

// defaultQueueCapacity bounds each per-agent pending queue. On overflow the
// oldest event is dropped so a slow consumer always sees the newest state.
const defaultQueueCapacity = 256

// AgentSubscription declares a buffered per-agent subscription: events whose
// type matches EventTypes (empty means every type) are queued for AgentID
// until the next DrainPendingEvents call. When ExcludeSelf is set, events
// the subscriber itself raised are filtered out.
type AgentSubscription struct {
	AgentID     string
	AgentName   string
	EventTypes  []domain.EventType
	ExcludeSelf bool
}

func (s AgentSubscription) matches(event domain.AgentEvent) bool {
	if s.ExcludeSelf && event.AgentID == s.AgentID {
		return false
	}
	if len(s.EventTypes) == 0 {
		return true
	}
	for _, t := range s.EventTypes {
		if t == event.Type {
			return true
		}
	}
	return false
}

type agentQueue struct {
	sub     AgentSubscription
	pending []domain.AgentEvent
	dropped int
}

// Bus is a process-local event bus: direct handlers registered with
// Subscribe run synchronously on Publish; per-agent subscriptions created
// with SubscribeAgent accumulate matching events into a bounded queue the
// subscriber drains on its own schedule.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	order    []string
	nextID   atomic.Int64

	queues map[string]*agentQueue

	critical *lru.Cache[string, []domain.AgentEvent]

	queueCap int
	logger   logging.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for panic recovery and drop reporting.
func WithLogger(l logging.Logger) Option {
	return func(b *Bus) { b.logger = logging.OrNop(l) }
}

// WithQueueCapacity overrides the per-agent pending queue bound.
func WithQueueCapacity(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueCap = n
		}
	}
}

// New returns a Bus with a bounded critical-event replay log capped at
// critCacheSize distinct agent ids.
func New(critCacheSize int, opts ...Option) *Bus {
	if critCacheSize <= 0 {
		critCacheSize = 128
	}
	cache, _ := lru.New[string, []domain.AgentEvent](critCacheSize)
	b := &Bus{
		handlers: make(map[string]Handler),
		queues:   make(map[string]*agentQueue),
		critical: cache,
		queueCap: defaultQueueCapacity,
		logger:   logging.Nop,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a direct handler invoked synchronously for every
// published event, in registration order, and returns the subscription id
// to pass to Unsubscribe.
func (b *Bus) Subscribe(h Handler) string {
	id := fmt.Sprintf("sub-%d", b.nextID.Add(1))
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[id] = h
	b.order = append(b.order, id)
	return id
}

// Unsubscribe removes the direct handler registered under id. Unknown ids
// are ignored.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.handlers[id]; !ok {
		return
	}
	delete(b.handlers, id)
	for i, existing := range b.order {
		if existing == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// SubscribeAgent declares a buffered subscription for sub.AgentID. A second
// call for the same agent replaces the filter but keeps any queued events
// that still match it.
func (b *Bus) SubscribeAgent(sub AgentSubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[sub.AgentID]
	if !ok {
		b.queues[sub.AgentID] = &agentQueue{sub: sub}
		return
	}
	q.sub = sub
	kept := q.pending[:0]
	for _, e := range q.pending {
		if sub.matches(e) {
			kept = append(kept, e)
		}
	}
	q.pending = kept
}

// UnsubscribeAgent removes agentID's buffered subscription and discards its
// queued events.
func (b *Bus) UnsubscribeAgent(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.queues, agentID)
}

// DrainPendingEvents atomically removes and returns every event queued for
// agentID, in publication order. An unknown or empty subscription drains to
// an empty slice.
func (b *Bus) DrainPendingEvents(agentID string) []domain.AgentEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[agentID]
	if !ok || len(q.pending) == 0 {
		return nil
	}
	out := q.pending
	q.pending = nil
	q.dropped = 0
	return out
}

// Publish dispatches event to every direct handler synchronously, then
// appends it to every buffered subscription whose filter matches, then
// records it in the critical-event replay log if its type warrants
// retention.
func (b *Bus) Publish(event domain.AgentEvent) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.runHandler(h, event)
	}

	b.enqueue(event)

	if event.Type.IsCritical() {
		b.recordCritical(event)
	}
}

func (b *Bus) runHandler(h Handler, event domain.AgentEvent) {
	defer async.Recover(loggerAdapter{b.logger}, "eventbus.handler")
	h(event)
}

func (b *Bus) enqueue(event domain.AgentEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, q := range b.queues {
		if !q.sub.matches(event) {
			continue
		}
		if len(q.pending) >= b.queueCap {
			q.pending = q.pending[1:]
			q.dropped++
			if q.dropped == 1 {
				b.logger.Warn("eventbus: dropping oldest events for agent %s, queue at capacity %d", q.sub.AgentID, b.queueCap)
			}
		}
		q.pending = append(q.pending, event)
	}
}

func (b *Bus) recordCritical(event domain.AgentEvent) {
	existing, _ := b.critical.Get(event.AgentID)
	existing = append(existing, event)
	b.critical.Add(event.AgentID, existing)
}

// Replay returns the critical events recorded for agentID, oldest first.
// A late subscriber can call this immediately after SubscribeAgent to
// recover history it missed.
func (b *Bus) Replay(agentID string) []domain.AgentEvent {
	events, ok := b.critical.Get(agentID)
	if !ok {
		return nil
	}
	return append([]domain.AgentEvent(nil), events...)
}

type loggerAdapter struct{ l logging.Logger }

func (a loggerAdapter) Error(format string, args ...any) { a.l.Error(format, args...) }
