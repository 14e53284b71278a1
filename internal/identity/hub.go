package identity

import (
	"sync"

	"github.com/rapport-app/rapport/internal/logging"
	"go.uber.org/zap"
)

type EventType string

const (
	SignedIn  EventType = "signed_in"
	SignedOut EventType = "signed_out"
)

type Event struct {
	Type   EventType
	UserID string
}

const subscriberBuffer = 8

// Hub fans identity events out to subscribers. Publishing never blocks; a
// subscriber that stops draining loses events rather than stalling sign-out
// handling for everyone else.
type Hub struct {
	mu          sync.Mutex
	subscribers []chan Event
}

func NewHub() *Hub {
	return &Hub{}
}

func (hub *Hub) Subscribe() <-chan Event {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	events := make(chan Event, subscriberBuffer)
	hub.subscribers = append(hub.subscribers, events)

	return events
}

func (hub *Hub) Publish(event Event) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	for _, subscriber := range hub.subscribers {
		select {
		case subscriber <- event:
		default:
			logging.Logger.Warn("dropping identity event for slow subscriber",
				zap.String("type", string(event.Type)),
			)
		}
	}
}
