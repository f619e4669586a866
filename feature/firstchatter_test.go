package feature

import (
	"context"
	"testing"

	"github.com/onnwee/stream-herald/event"
)

func TestFirstChatterExcludesBroadcasterAndBot(t *testing.T) {
	// Exclusion happens before any store access, so no database is needed.
	f := NewFirstChatter(nil, nil, "Streamer", "HeraldBot")
	ctx := context.Background()

	if f.Set(ctx, event.UserRef{ID: "1", Name: "streamer", DisplayName: "Streamer"}) {
		t.Fatal("broadcaster must not claim the slot")
	}
	if f.Set(ctx, event.UserRef{ID: "2", Name: "heraldbot", DisplayName: "HeraldBot"}) {
		t.Fatal("bot must not claim the slot")
	}
	if f.Set(ctx, event.UserRef{ID: "3", Name: ""}) {
		t.Fatal("anonymous user must not claim the slot")
	}
	if _, ok := f.Current(); ok {
		t.Fatal("slot should still be free")
	}
}

func TestFirstChatterOncePerStream(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	bus := &recordingBus{}
	f := NewFirstChatter(database, bus, "streamer", "heraldbot")

	if !f.Set(ctx, event.UserRef{ID: "10", Name: "earlybird", DisplayName: "EarlyBird"}) {
		t.Fatal("first viewer should claim the slot")
	}
	if f.Set(ctx, event.UserRef{ID: "11", Name: "second", DisplayName: "Second"}) {
		t.Fatal("slot already taken")
	}
	cur, ok := f.Current()
	if !ok || cur.Name != "earlybird" {
		t.Fatalf("Current = (%+v, %v)", cur, ok)
	}

	events := bus.all()
	if len(events) != 1 || events[0].Type != event.TypeFirstChatter {
		t.Fatalf("expected one firstchatter event, got %+v", events)
	}

	var firstChats int
	if err := database.QueryRowContext(ctx,
		`SELECT first_chats FROM user_stats WHERE username='earlybird'`).Scan(&firstChats); err != nil {
		t.Fatalf("user stats: %v", err)
	}
	if firstChats < 1 {
		t.Errorf("first_chats = %d, want >= 1", firstChats)
	}
	var holder string
	if err := database.QueryRowContext(ctx,
		`SELECT first_chatter FROM stream_stats WHERE stream_date = CURRENT_DATE`).Scan(&holder); err != nil {
		t.Fatalf("stream stats: %v", err)
	}
	if holder != "EarlyBird" {
		t.Errorf("stream_stats first_chatter = %q", holder)
	}

	f.DailyReset()
	if _, ok := f.Current(); ok {
		t.Fatal("reset should free the slot")
	}
	if !f.Set(ctx, event.UserRef{ID: "11", Name: "second", DisplayName: "Second"}) {
		t.Fatal("slot should be claimable after reset")
	}
}
