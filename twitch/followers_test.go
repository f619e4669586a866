package twitch

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/stream-herald/event"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *eventRecorder) Publish(e event.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func TestFollowerPollerBaselineThenEmits(t *testing.T) {
	var mu sync.Mutex
	followers := []map[string]string{
		{"user_id": "u1", "user_login": "fan1", "user_name": "Fan1", "followed_at": "2024-10-15T14:00:00Z"},
	}
	client := helixClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		json.NewEncoder(w).Encode(map[string]interface{}{"data": followers})
	})

	session := NewSession("en")
	session.SetLive(Stream{StartedAt: time.Now()})
	rec := &eventRecorder{}
	p := NewFollowerPoller(client, session, rec)

	// First poll establishes the baseline without emitting.
	p.poll(context.Background())
	if len(rec.events) != 0 {
		t.Fatalf("baseline poll emitted %d events", len(rec.events))
	}

	mu.Lock()
	followers = append([]map[string]string{
		{"user_id": "u2", "user_login": "fan2", "user_name": "Fan2", "followed_at": "2024-10-15T15:00:00Z"},
	}, followers...)
	mu.Unlock()

	p.poll(context.Background())
	if len(rec.events) != 1 {
		t.Fatalf("expected 1 follow event, got %d", len(rec.events))
	}
	e := rec.events[0]
	if e.Type != event.TypeFollow || e.User == nil || e.User.ID != "u2" {
		t.Errorf("unexpected event %+v", e)
	}

	// Repeat poll must not re-emit the same follower.
	p.poll(context.Background())
	if len(rec.events) != 1 {
		t.Errorf("follower re-emitted, got %d events", len(rec.events))
	}
}
