// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package bus

import "sync"

// Bus is a typed in-process publish/subscribe fan-out. Emission is a channel
// push, never a direct callback, so a slow subscriber cannot stall the
// publisher. Delivery to one subscriber is ordered; when a subscriber's
// buffer is full the oldest buffered message is dropped, because every
// message type carried here is snapshot-style and superseded by the next one.
type Bus[T any] struct {
	mu   sync.Mutex
	subs map[int]*Subscription[T]
	next int
}

// Subscription is one subscriber's ordered message channel.
type Subscription[T any] struct {
	C <-chan T

	bus   *Bus[T]
	id    int
	topic string
	ch    chan T
	once  sync.Once
}

func New[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[int]*Subscription[T])}
}

// Subscribe registers a subscriber for one topic. An empty topic subscribes
// to every message on the bus (used by the SSE bridge). buf is the number of
// messages that may queue before old ones are dropped.
func (b *Bus[T]) Subscribe(topic string, buf int) *Subscription[T] {
	if buf < 1 {
		buf = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, buf)
	sub := &Subscription[T]{
		bus:   b,
		id:    b.next,
		topic: topic,
		ch:    ch,
	}
	sub.C = ch
	b.subs[b.next] = sub
	b.next++

	return sub
}

// Publish delivers v to every subscriber of topic (and to wildcard
// subscribers). Never blocks.
func (b *Bus[T]) Publish(topic string, v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		if sub.topic != "" && sub.topic != topic {
			continue
		}

		select {
		case sub.ch <- v:
		default:
			// Buffer full: drop the oldest message, then retry once. If the
			// subscriber drained in between, the retry just succeeds.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- v:
			default:
			}
		}
	}
}

// Close unsubscribes and closes the subscription channel. Safe to call more
// than once.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		// Closed under the bus lock so Publish can never send on a closed channel.
		close(s.ch)
		s.bus.mu.Unlock()
	})
}
