// Package live pushes change notifications to websocket subscribers.
//
// Clients subscribe to topics; services publish model.Event values. A
// subscriber whose buffer is full is disconnected instead of slowing down
// the publisher, and is expected to reconnect and refetch.
package live

import (
	"log/slog"
	"sync"

	"github.com/sakif/snippime/internal/model"
)

// Topic names.
const (
	TopicFeed = "feed"
)

// SnippetTopic is the topic carrying changes to a single public snippet.
func SnippetTopic(id string) string { return "snippet:" + id }

// UserTopic is the private topic carrying changes to a user's own snippets
// and collections.
func UserTopic(id string) string { return "user:" + id }

const defaultBuffer = 32

// Hub fans events out to subscribers by topic. The zero value is not usable;
// call NewHub.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
	buffer int
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		topics: make(map[string]map[*Subscription]struct{}),
		buffer: defaultBuffer,
		logger: logger,
	}
}

// Subscription receives the events of its topics on C until Close is called
// or the hub drops it.
type Subscription struct {
	hub    *Hub
	topics []string
	ch     chan model.Event
	once   sync.Once
}

// C returns the event channel. It is closed when the subscription ends.
func (s *Subscription) C() <-chan model.Event {
	return s.ch
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Subscribe registers interest in topics.
func (h *Hub) Subscribe(topics ...string) *Subscription {
	sub := &Subscription{
		hub:    h,
		topics: topics,
		ch:     make(chan model.Event, h.buffer),
	}

	h.mu.Lock()
	for _, t := range topics {
		set, ok := h.topics[t]
		if !ok {
			set = make(map[*Subscription]struct{})
			h.topics[t] = set
		}
		set[sub] = struct{}{}
	}
	h.mu.Unlock()

	return sub
}

func (h *Hub) remove(sub *Subscription) {
	sub.once.Do(func() {
		h.mu.Lock()
		for _, t := range sub.topics {
			if set, ok := h.topics[t]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(h.topics, t)
				}
			}
		}
		h.mu.Unlock()
		close(sub.ch)
	})
}

// Publish delivers ev to every subscriber of ev.Topic without blocking.
func (h *Hub) Publish(ev model.Event) {
	if ev.Topic == "" {
		return
	}

	var slow []*Subscription

	h.mu.RLock()
	for sub := range h.topics[ev.Topic] {
		select {
		case sub.ch <- ev:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		h.logger.Warn("live: dropping slow subscriber", "topic", ev.Topic, "event", ev.Type)
		h.remove(sub)
	}
}

// Subscribers returns the number of subscriptions to topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
