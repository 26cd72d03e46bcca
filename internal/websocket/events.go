package websocket

import (
	"log"

	"github.com/homework-notify/backend/internal/cycle"
)

// EventBroadcaster publishes cycle lifecycle events to connected clients.
// It satisfies the runner's Broadcaster interface.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub}
}

// CycleCompleted sends the report of a finished cycle.
func (b *EventBroadcaster) CycleCompleted(report cycle.Report) {
	b.broadcast(NewMessage(TypeCycleCompleted, report))
}

// CycleError sends a per-stage cycle failure.
func (b *EventBroadcaster) CycleError(stage string, err error) {
	b.broadcast(NewMessage(TypeCycleError, CycleErrorPayload{
		Stage:   stage,
		Message: err.Error(),
	}))
}

// Notify sends a free-form notification to all connected clients.
func (b *EventBroadcaster) Notify(level, title, message string) {
	b.broadcast(NewMessage(TypeNotification, NotificationPayload{
		Level:   level,
		Title:   title,
		Message: message,
	}))
}

// broadcast sends a message to all connected clients.
func (b *EventBroadcaster) broadcast(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		log.Printf("Error encoding WebSocket message: %v", err)
		return
	}

	b.hub.Broadcast(data)
}
