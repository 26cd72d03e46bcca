package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDiscordClientSend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/channels/chan-1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bot tok" {
			t.Errorf("authorization = %q", got)
		}

		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if payload["content"] != "hello" {
			t.Errorf("content = %q", payload["content"])
		}

		json.NewEncoder(w).Encode(Message{ID: "msg-1", Content: payload["content"]})
	}))
	defer server.Close()

	c := NewDiscordClient(server.URL, "tok", 5*time.Second)
	id, err := c.Send(context.Background(), "chan-1", "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "msg-1" {
		t.Errorf("id = %q, want msg-1", id)
	}
}

func TestDiscordClientFetchNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "Unknown Message"}`, http.StatusNotFound)
	}))
	defer server.Close()

	c := NewDiscordClient(server.URL, "tok", 5*time.Second)
	if _, err := c.Fetch(context.Background(), "chan-1", "gone"); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("err = %v, want ErrMessageNotFound", err)
	}
	if err := c.Delete(context.Background(), "chan-1", "gone"); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("delete err = %v, want ErrMessageNotFound", err)
	}
}

func TestDiscordClientDelete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s, want DELETE", r.Method)
		}
		if r.URL.Path != "/channels/chan-1/messages/msg-1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := NewDiscordClient(server.URL, "tok", 5*time.Second)
	if err := c.Delete(context.Background(), "chan-1", "msg-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}
