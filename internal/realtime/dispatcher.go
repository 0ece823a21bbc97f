package realtime

import (
	"sync"

	"github.com/MarcoPoloResearchLab/lodestar/internal/bookmarks"
)

const defaultBufferSize = 16

// Subscription is a live per-owner change feed. Events arrives on Events
// until Cancel is called or the dispatcher shuts the feed down. Cancel is
// synchronous: once it returns, no further event is delivered and Events
// is closed.
type Subscription struct {
	events chan bookmarks.ChangeEvent
	cancel func()
	once   sync.Once
}

// Events exposes the event stream.
func (s *Subscription) Events() <-chan bookmarks.ChangeEvent {
	return s.events
}

// Cancel stops delivery. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// Dispatcher fans bookmark change events out to per-owner subscribers.
// Publish never blocks: a subscriber that falls behind its buffer drops
// events, and consumers are expected to refresh with a bulk read when
// strict freshness matters.
type Dispatcher struct {
	mu          sync.Mutex
	subscribers map[string]map[int64]*Subscription
	nextID      int64
	bufferSize  int
}

// NewDispatcher constructs an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers: make(map[string]map[int64]*Subscription),
		bufferSize:  defaultBufferSize,
	}
}

// Subscribe registers a feed for the owner's change events. An empty owner
// id yields an already-closed subscription.
func (d *Dispatcher) Subscribe(ownerID string) *Subscription {
	if ownerID == "" {
		closed := make(chan bookmarks.ChangeEvent)
		close(closed)
		return &Subscription{events: closed, cancel: func() {}}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	subscriberID := d.nextID
	subscription := &Subscription{
		events: make(chan bookmarks.ChangeEvent, d.bufferSize),
	}
	subscription.cancel = func() {
		d.unregister(ownerID, subscriberID)
		close(subscription.events)
	}

	if _, ok := d.subscribers[ownerID]; !ok {
		d.subscribers[ownerID] = make(map[int64]*Subscription)
	}
	d.subscribers[ownerID][subscriberID] = subscription
	return subscription
}

// Publish delivers the event to every subscriber of its owner.
func (d *Dispatcher) Publish(event bookmarks.ChangeEvent) {
	if event.OwnerID == "" || event.Kind == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, subscription := range d.subscribers[event.OwnerID] {
		select {
		case subscription.events <- event:
		default:
		}
	}
}

func (d *Dispatcher) unregister(ownerID string, subscriberID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subscribers := d.subscribers[ownerID]
	if subscribers == nil {
		return
	}
	delete(subscribers, subscriberID)
	if len(subscribers) == 0 {
		delete(d.subscribers, ownerID)
	}
}
