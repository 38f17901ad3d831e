package service

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-roster-sync/internal/models"
)

const defaultEventBuffer = 32

type subscriber struct {
	ch chan models.SessionEvent
}

// EventHub fans session events out to websocket subscribers. Publishing never
// blocks; a subscriber that falls behind loses events.
type EventHub struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	buffer int
	logger *zap.Logger
	now    func() time.Time
}

// NewEventHub constructs an EventHub.
func NewEventHub(buffer int, logger *zap.Logger) *EventHub {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHub{subs: make(map[string]map[*subscriber]struct{}), buffer: buffer, logger: logger, now: time.Now}
}

// Subscribe registers a listener for sessionID. The returned cancel func
// unregisters it and closes the channel; it is safe to call more than once.
func (h *EventHub) Subscribe(sessionID string) (<-chan models.SessionEvent, func()) {
	sub := &subscriber{ch: make(chan models.SessionEvent, h.buffer)}

	h.mu.Lock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[sessionID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[sessionID]; ok {
				if _, present := set[sub]; present {
					delete(set, sub)
					close(sub.ch)
				}
				if len(set) == 0 {
					delete(h.subs, sessionID)
				}
			}
		})
	}
	return sub.ch, cancel
}

// Publish delivers an event to every subscriber of sessionID.
func (h *EventHub) Publish(sessionID, eventType string, data interface{}) {
	if h == nil {
		return
	}
	evt := models.SessionEvent{Type: eventType, SessionID: sessionID, At: h.now().UTC(), Data: data}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[sessionID] {
		select {
		case sub.ch <- evt:
		default:
			h.logger.Debug("dropping session event for slow subscriber",
				zap.String("session_id", sessionID),
				zap.String("type", eventType),
			)
		}
	}
}

// CloseSession closes every subscription for sessionID.
func (h *EventHub) CloseSession(sessionID string) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[sessionID] {
		close(sub.ch)
	}
	delete(h.subs, sessionID)
}

// Subscribers counts listeners for sessionID.
func (h *EventHub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}
