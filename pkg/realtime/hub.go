package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/cuemby/cave/pkg/metrics"
	"github.com/cuemby/cave/pkg/types"
)

// ErrLagged is delivered to a subscriber in place of the change it missed
// once its buffer has overflowed. Unlike the teacher's event broker,
// which silently drops events a full subscriber can't keep up with, a
// realtime subscriber must be told it fell behind so it can decide
// whether to resync from the table instead of trusting a gapped stream.
var ErrLagged = errors.New("realtime: subscriber lagged, events were dropped")

const subscriberBuffer = 64

// Subscription delivers either a ChangeEvent or, once, ErrLagged.
type Subscription struct {
	events chan types.ChangeEvent
	lagged chan struct{}
	once   sync.Once
	warned bool // ErrLagged already returned by Recv
}

// Recv blocks until the next event, a lag notification, or ch closes.
// A pending lag notification is returned before any buffered event, and
// only once. ok is false only once the subscription has been closed via
// Unsubscribe.
func (s *Subscription) Recv() (event types.ChangeEvent, laggedErr error, ok bool) {
	if !s.warned {
		select {
		case <-s.lagged:
			s.warned = true
			return types.ChangeEvent{}, ErrLagged, true
		default:
		}
	}
	e, open := <-s.events
	if !open {
		return types.ChangeEvent{}, nil, false
	}
	return e, nil, true
}

func (s *Subscription) markLagged() {
	s.once.Do(func() { close(s.lagged) })
}

// Hub fans out ChangeEvents per table name. Publishing never blocks: a
// subscriber whose buffer is full is marked lagged instead of stalling
// the publisher or silently dropping the event with no signal at all.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]bool)}
}

// Subscribe registers a new subscription to a table's change channel.
func (h *Hub) Subscribe(table string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscription{
		events: make(chan types.ChangeEvent, subscriberBuffer),
		lagged: make(chan struct{}),
	}
	if h.subs[table] == nil {
		h.subs[table] = make(map[*Subscription]bool)
	}
	h.subs[table][sub] = true
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hub) Unsubscribe(table string, sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.subs[table]; ok {
		if _, present := subs[sub]; present {
			delete(subs, sub)
			close(sub.events)
		}
		if len(subs) == 0 {
			delete(h.subs, table)
		}
	}
}

// Publish delivers event to every subscriber of event.Table without
// blocking. A subscriber whose buffer is already full is marked lagged
// instead; it will observe ErrLagged on its next Recv.
func (h *Hub) Publish(event types.ChangeEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[event.Table] {
		select {
		case sub.events <- event:
		default:
			sub.markLagged()
			metrics.RealtimeSubscribersLaggedTotal.Inc()
		}
	}
	metrics.RealtimeEventsPublishedTotal.Inc()
}

// SubscriberCount reports the number of active subscriptions on table.
func (h *Hub) SubscriberCount(table string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[table])
}
