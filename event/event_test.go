package event

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewStampsTimestamp(t *testing.T) {
	fixed := time.Unix(1700000000, 0)
	now = func() time.Time { return fixed }
	defer func() { now = time.Now }()

	e := New(TypeFollow, &UserRef{ID: "1", Name: "a", DisplayName: "A"}, 1)
	if e.Timestamp != 1700000000 {
		t.Errorf("Timestamp = %d, want 1700000000", e.Timestamp)
	}
	if e.Type != TypeFollow || e.Count != 1 {
		t.Errorf("unexpected envelope %+v", e)
	}
}

func TestWireRoundTrip(t *testing.T) {
	sent := Event{
		Type:      TypeFollow,
		User:      &UserRef{ID: "1", Name: "a", DisplayName: "A"},
		Count:     1,
		Timestamp: 1700000000,
	}
	data, err := json.Marshal(sent)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != sent.Type || got.Count != sent.Count || got.Timestamp != sent.Timestamp {
		t.Errorf("round trip = %+v, want %+v", got, sent)
	}
	if got.User == nil || *got.User != *sent.User {
		t.Errorf("user round trip = %+v, want %+v", got.User, sent.User)
	}
}

func TestNilUserSerializesAsNull(t *testing.T) {
	data, err := json.Marshal(New(TypeTimedMessage, nil, 0))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(raw["user"]) != "null" {
		t.Errorf("user = %s, want null", raw["user"])
	}
}
