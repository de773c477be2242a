// Package notify is the per-session publish/subscribe channel the
// orchestrator pushes UI-facing events to.
package notify

import (
	"sync"
	"time"
)

// Kind identifies a notification event.
type Kind string

const (
	KindChallengeIssued  Kind = "challenge-issued"
	KindChallengeExpired Kind = "challenge-expired"
	KindScanned          Kind = "scanned"
	KindPairingCode      Kind = "pairing-code"
	KindConnected        Kind = "connected"
	KindFailed           Kind = "failed"
)

// Event is one notification scoped to a session id.
type Event struct {
	SessionID string    `json:"session_id"`
	Kind      Kind      `json:"kind"`
	Payload   string    `json:"payload,omitempty"`
	Time      time.Time `json:"time"`
}

// Hub fans events out to per-session subscribers. Publishing never
// blocks: slow subscribers miss events rather than stalling the
// orchestrator.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{})}
}

// Publish sends an event to every subscriber of the session id.
func (h *Hub) Publish(sessionID string, kind Kind, payload string) {
	event := Event{
		SessionID: sessionID,
		Kind:      kind,
		Payload:   payload,
		Time:      time.Now().UTC(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[sessionID] {
		select {
		case ch <- event:
		default:
			// Non-blocking send to prevent slow clients from stalling the daemon
		}
	}
}

// Subscribe creates a buffered subscription channel for one session id.
func (h *Hub) Subscribe(sessionID string) chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, 32)
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan Event]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hub) Unsubscribe(sessionID string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.subs[sessionID]; ok {
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(h.subs, sessionID)
		}
	}
}

// SubscriberCount returns how many subscribers a session has.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}
