package websocket

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/homework-notify/backend/internal/cycle"
)

func receiveMessage(t *testing.T, client *Client) Message {
	t.Helper()
	select {
	case data := <-client.Send():
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode message: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func TestEventBroadcasterCycleCompleted(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := NewClient(hub)
	hub.Register(client)
	defer hub.Unregister(client)

	b := NewEventBroadcaster(hub)
	b.CycleCompleted(cycle.Report{
		Created: 2,
		Channels: []cycle.ChannelReport{
			{CalendarID: "cal-a", ChannelID: "chan-a", Eligible: 1, Sent: 1},
		},
	})

	msg := receiveMessage(t, client)
	if msg.Type != TypeCycleCompleted {
		t.Errorf("type = %q, want %q", msg.Type, TypeCycleCompleted)
	}

	payload, ok := msg.Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload = %T", msg.Payload)
	}
	if payload["created"] != float64(2) {
		t.Errorf("created = %v, want 2", payload["created"])
	}
}

func TestEventBroadcasterCycleError(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := NewClient(hub)
	hub.Register(client)
	defer hub.Unregister(client)

	b := NewEventBroadcaster(hub)
	b.CycleError("fetch", errors.New("class 3: connection refused"))

	msg := receiveMessage(t, client)
	if msg.Type != TypeCycleError {
		t.Errorf("type = %q, want %q", msg.Type, TypeCycleError)
	}

	payload, ok := msg.Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload = %T", msg.Payload)
	}
	if payload["stage"] != "fetch" {
		t.Errorf("stage = %v, want fetch", payload["stage"])
	}
}

func TestHubFansOutToAllClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	first := NewClient(hub)
	second := NewClient(hub)
	hub.Register(first)
	hub.Register(second)
	defer hub.Unregister(first)
	defer hub.Unregister(second)

	// Registration is applied asynchronously by the hub loop.
	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want 2", hub.ClientCount())
		}
		time.Sleep(time.Millisecond)
	}

	hub.Broadcast([]byte(`{"type":"ping"}`))
	receiveMessage(t, first)
	receiveMessage(t, second)
}
