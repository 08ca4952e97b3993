package realtime

import "sync"

// subscriber receives encoded frames. Deliver must not block.
type subscriber interface {
	deliver(payload []byte) bool
}

// Hub routes frames to the local connections subscribed to a topic.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[subscriber]struct{})}
}

func (h *Hub) Subscribe(topic string, s subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.topics[topic]
	if subs == nil {
		subs = make(map[subscriber]struct{})
		h.topics[topic] = subs
	}
	subs[s] = struct{}{}
}

func (h *Hub) Unsubscribe(topic string, s subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(topic, s)
}

// Drop removes s from every topic.
func (h *Hub) Drop(s subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic := range h.topics {
		h.removeLocked(topic, s)
	}
}

func (h *Hub) removeLocked(topic string, s subscriber) {
	subs, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(subs, s)
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
}

// Broadcast hands payload to every subscriber of topic and returns how many accepted it.
func (h *Hub) Broadcast(topic string, payload []byte) int {
	h.mu.RLock()
	targets := make([]subscriber, 0, len(h.topics[topic]))
	for s := range h.topics[topic] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.deliver(payload) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
