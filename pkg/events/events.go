// Package events is the change-feed broker the document store uses to
// notify subscribers after a commit. One broker instance is shared by
// a store and every caller that wants to react to record changes
// (the sync scheduler, the bridge API, domain modules).
package events

import (
	"sync"

	"github.com/aidcollective/meshcore/pkg/types"
)

// Subscriber is a channel that receives change events.
type Subscriber chan *types.ChangeEvent

// Broker manages change-feed subscriptions and distribution.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *types.ChangeEvent
	stopCh      chan struct{}
}

// NewBroker creates a new change-feed broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *types.ChangeEvent, 256),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop.
func (b *Broker) Start() { go b.run() }

// Stop stops the broker.
func (b *Broker) Stop() { close(b.stopCh) }

// Subscribe creates a new subscription and returns its channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 64)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish publishes a change event to all subscribers.
func (b *Broker) Publish(event *types.ChangeEvent) {
	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *types.ChangeEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// subscriber buffer full; change-feed delivery is best-effort,
			// the subscriber can always re-read current state from the store
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
