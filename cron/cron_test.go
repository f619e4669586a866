package cron

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/stream-herald/event"
	"github.com/onnwee/stream-herald/feature"
	"github.com/onnwee/stream-herald/timers"
	"github.com/onnwee/stream-herald/twitch"
)

func TestMinutesElapsed(t *testing.T) {
	start := time.Date(2024, 10, 15, 14, 0, 0, 0, time.UTC)
	tests := []struct {
		now  time.Time
		want int
	}{
		{start, 0},
		{start.Add(59 * time.Second), 0},
		{start.Add(60 * time.Second), 1},
		{start.Add(90 * time.Minute), 90},
		{start.Add(-5 * time.Minute), 0},
	}
	for _, tt := range tests {
		if got := minutesElapsed(tt.now, start); got != tt.want {
			t.Errorf("minutesElapsed(%v) = %d, want %d", tt.now, got, tt.want)
		}
	}
}

func TestNextDailyRun(t *testing.T) {
	beforeFour := time.Date(2024, 10, 15, 2, 30, 0, 0, time.UTC)
	if got := nextDailyRun(beforeFour); !got.Equal(time.Date(2024, 10, 15, 4, 0, 0, 0, time.UTC)) {
		t.Errorf("before 04:00 = %v", got)
	}
	afterFour := time.Date(2024, 10, 15, 16, 0, 0, 0, time.UTC)
	if got := nextDailyRun(afterFour); !got.Equal(time.Date(2024, 10, 16, 4, 0, 0, 0, time.UTC)) {
		t.Errorf("after 04:00 = %v", got)
	}
	exactlyFour := time.Date(2024, 10, 15, 4, 0, 0, 0, time.UTC)
	if got := nextDailyRun(exactlyFour); !got.Equal(time.Date(2024, 10, 16, 4, 0, 0, 0, time.UTC)) {
		t.Errorf("exactly 04:00 should schedule tomorrow, got %v", got)
	}
}

type fakeChat struct {
	mu   sync.Mutex
	said []string
}

func (f *fakeChat) Say(msg string) {
	f.mu.Lock()
	f.said = append(f.said, msg)
	f.mu.Unlock()
}

type fakeAnnouncer struct {
	sent []string
	err  error
}

func (f *fakeAnnouncer) SendChatAnnouncement(_ context.Context, _, message, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, message)
	return nil
}

type recordingBus struct {
	events []event.Event
}

func (r *recordingBus) Publish(e event.Event) { r.events = append(r.events, e) }

func testRegistry(t *testing.T) *timers.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "timers.json")
	table := `{
		"15": {"message": {"en": "hydrate"}, "announce": true},
		"30": {"message": {"en": "stretch"}}
	}`
	if err := os.WriteFile(path, []byte(table), 0o644); err != nil {
		t.Fatalf("write table: %v", err)
	}
	reg, err := timers.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return reg
}

func liveDeps(t *testing.T, minutesAgo int) (Deps, *fakeChat, *fakeAnnouncer, *recordingBus) {
	t.Helper()
	session := twitch.NewSession("en")
	// Pad by a few seconds so the elapsed-minute floor is stable.
	session.SetLive(twitch.Stream{StartedAt: time.Now().Add(-time.Duration(minutesAgo)*time.Minute - 5*time.Second)})
	chat := &fakeChat{}
	ann := &fakeAnnouncer{}
	bus := &recordingBus{}
	return Deps{
		Session:    session,
		Registry:   testRegistry(t),
		Killswitch: feature.NewKillswitch(),
		Chat:       chat,
		Announcer:  ann,
		Bus:        bus,
	}, chat, ann, bus
}

func TestRunMinutelyAnnounces(t *testing.T) {
	deps, chat, ann, bus := liveDeps(t, 15)
	minute, sent := runMinutely(context.Background(), deps, time.Now(), -1)
	if !sent || minute != 15 {
		t.Fatalf("runMinutely = (%d, %v), want (15, true)", minute, sent)
	}
	if len(ann.sent) != 1 || ann.sent[0] != "hydrate" {
		t.Errorf("announcements = %v", ann.sent)
	}
	if len(chat.said) != 0 {
		t.Errorf("announce-flagged message must not go to plain chat: %v", chat.said)
	}
	if len(bus.events) != 1 || bus.events[0].Type != event.TypeTimedMessage || bus.events[0].Count != 15 {
		t.Errorf("bus events = %+v", bus.events)
	}
}

func TestRunMinutelyPlainChat(t *testing.T) {
	deps, chat, ann, _ := liveDeps(t, 30)
	if _, sent := runMinutely(context.Background(), deps, time.Now(), -1); !sent {
		t.Fatal("minute 30 should dispatch")
	}
	if len(chat.said) != 1 || chat.said[0] != "stretch" {
		t.Errorf("chat = %v", chat.said)
	}
	if len(ann.sent) != 0 {
		t.Errorf("plain message must not be announced: %v", ann.sent)
	}
}

func TestRunMinutelyAnnounceFallsBackToChat(t *testing.T) {
	deps, chat, _, _ := liveDeps(t, 15)
	deps.Announcer = &fakeAnnouncer{err: errors.New("helix down")}
	if _, sent := runMinutely(context.Background(), deps, time.Now(), -1); !sent {
		t.Fatal("dispatch should survive a failed announcement")
	}
	if len(chat.said) != 1 || chat.said[0] != "hydrate" {
		t.Errorf("fallback chat = %v", chat.said)
	}
}

func TestRunMinutelySkips(t *testing.T) {
	t.Run("offline session", func(t *testing.T) {
		deps, chat, _, _ := liveDeps(t, 15)
		deps.Session = twitch.NewSession("en")
		if _, sent := runMinutely(context.Background(), deps, time.Now(), -1); sent {
			t.Error("offline session must not dispatch")
		}
		if len(chat.said) != 0 {
			t.Errorf("chat = %v", chat.said)
		}
	})
	t.Run("killswitch on", func(t *testing.T) {
		deps, _, ann, _ := liveDeps(t, 15)
		deps.Killswitch.Set(true)
		if _, sent := runMinutely(context.Background(), deps, time.Now(), -1); sent {
			t.Error("killswitch must block dispatch")
		}
		if len(ann.sent) != 0 {
			t.Errorf("announcements = %v", ann.sent)
		}
	})
	t.Run("no entry for minute", func(t *testing.T) {
		deps, _, _, bus := liveDeps(t, 7)
		if _, sent := runMinutely(context.Background(), deps, time.Now(), -1); sent {
			t.Error("minute without entry must not dispatch")
		}
		if len(bus.events) != 0 {
			t.Errorf("bus events = %+v", bus.events)
		}
	})
	t.Run("already sent this minute", func(t *testing.T) {
		deps, _, ann, _ := liveDeps(t, 15)
		if _, sent := runMinutely(context.Background(), deps, time.Now(), 15); sent {
			t.Error("same minute must not dispatch twice")
		}
		if len(ann.sent) != 0 {
			t.Errorf("announcements = %v", ann.sent)
		}
	})
}
