// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one accepted-change notification fanned out to live subscribers.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// EventSink is the outbound notification seam the mutation layer calls. The
// sink owns all delivery policy; a failed or slow subscriber must never fail
// the triggering mutation.
type EventSink interface {
	Notify(eventType string, data any)
}

// NoopSink discards every notification.
type NoopSink struct{}

func (NoopSink) Notify(string, any) {}

// Subscriber is one long-lived event consumer. Its channel is buffered;
// events are dropped, not queued, when the consumer falls behind. That is
// acceptable because the shared store remains the source of truth - a missed
// notification only delays a UI refresh.
type Subscriber struct {
	ch chan Event
}

// Events returns the subscriber's receive channel. It is closed on
// Unsubscribe.
func (sub *Subscriber) Events() <-chan Event {
	return sub.ch
}

// Broadcaster is a single-process, in-memory fan-out registry. It is created
// at process start and injected into handlers; there is no delivery
// guarantee, no replay and no persistence.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[*Subscriber]struct{}
	logger *slog.Logger
}

// NewBroadcaster creates an empty registry.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subs:   make(map[*Subscriber]struct{}),
		logger: logger,
	}
}

// Subscribe registers a new subscriber.
func (b *Broadcaster) Subscribe() *Subscriber {
	sub := &Subscriber{ch: make(chan Event, 16)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	n := len(b.subs)
	b.mu.Unlock()
	b.logger.Debug("Event subscriber registered", "subscribers", n)
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call once
// per subscriber, typically deferred from the connection handler.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
	n := len(b.subs)
	b.mu.Unlock()
	b.logger.Debug("Event subscriber removed", "subscribers", n)
}

// Notify fans an event out to every currently registered subscriber,
// best-effort. A full channel means that subscriber misses the event; the
// others still receive it and the caller never sees an error.
func (b *Broadcaster) Notify(eventType string, data any) {
	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	dropped := 0
	for sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		b.logger.Warn("Event dropped for slow subscribers",
			"type", eventType, "dropped", dropped, "subscribers", len(b.subs))
	}
}

// SubscriberCount returns the number of registered subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
