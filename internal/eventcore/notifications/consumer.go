// Package notifications implements the cross-stream wake-up feed that
// drives the outbox dispatch loop and read-model projectors.
package notifications

import (
	"context"
	"sync"
)

// Consumer is a broadcast fan-out of wake-up ticks: every call to Notify
// is delivered to every currently-subscribed listener. Listeners that fall
// behind see only the latest tick (the channel has capacity 1 and a send
// is dropped, not queued, if the listener hasn't drained the previous
// one) — this is a wake-up signal, not a reliable message queue.
type Consumer struct {
	mu        sync.Mutex
	listeners map[int]chan struct{}
	nextID    int
}

// NewConsumer constructs an empty Consumer.
func NewConsumer() *Consumer {
	return &Consumer{listeners: make(map[int]chan struct{})}
}

// Listen subscribes to wake-up ticks. The returned channel is closed, and
// the subscription removed, when ctx is done.
func (c *Consumer) Listen(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = ch
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		delete(c.listeners, id)
		close(ch)
		c.mu.Unlock()
	}()

	return ch
}

// Notify wakes every current listener. Non-blocking: a listener that has
// not drained its previous tick simply does not receive a second one
// before it drains the first.
func (c *Consumer) Notify() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.listeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
