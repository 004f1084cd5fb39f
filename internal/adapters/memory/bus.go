// Package memory holds in-process implementations of the core ports, used
// when redis or a database is not configured.
package memory

import (
	"context"
	"sync"

	"omvstack.control/internal/core/domain"
)

const subscriberBuffer = 64

// EventBus fans events out to every subscriber. Slow subscribers drop events
// rather than block publishers.
type EventBus struct {
	mu   sync.RWMutex
	subs map[chan domain.Event]struct{}
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[chan domain.Event]struct{})}
}

func (b *EventBus) Publish(ctx context.Context, event domain.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel that is closed when ctx is done.
func (b *EventBus) Subscribe(ctx context.Context) (<-chan domain.Event, error) {
	ch := make(chan domain.Event, subscriberBuffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}
