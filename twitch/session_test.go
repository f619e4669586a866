package twitch

import (
	"testing"
	"time"
)

func TestSessionTransitions(t *testing.T) {
	s := NewSession("en")
	liveCalls, offlineCalls := 0, 0
	s.OnLive(func() { liveCalls++ })
	s.OnOffline(func() { offlineCalls++ })

	if s.Active() {
		t.Fatal("new session should be offline")
	}
	if _, ok := s.StartedAt(); ok {
		t.Fatal("offline session has no start time")
	}

	start := time.Date(2024, 10, 15, 14, 30, 0, 0, time.UTC)
	s.SetLive(Stream{Title: "hi", StartedAt: start, Language: "de"})
	if !s.Active() {
		t.Fatal("session should be live")
	}
	got, ok := s.StartedAt()
	if !ok || !got.Equal(start) {
		t.Errorf("StartedAt = (%v, %v)", got, ok)
	}
	if liveCalls != 1 {
		t.Errorf("live hook fired %d times", liveCalls)
	}

	// Refreshing while live must not re-fire hooks.
	s.SetLive(Stream{Title: "still here", StartedAt: start, Language: "de"})
	if liveCalls != 1 {
		t.Errorf("live hook re-fired on refresh")
	}

	s.SetOffline()
	s.SetOffline()
	if offlineCalls != 1 {
		t.Errorf("offline hook fired %d times, want 1", offlineCalls)
	}
}

func TestSessionLanguageFallback(t *testing.T) {
	s := NewSession("en")
	if got := s.Language(); got != "en" {
		t.Errorf("default language = %q", got)
	}
	s.SetLive(Stream{StartedAt: time.Now(), Language: "fr"})
	if got := s.Language(); got != "fr" {
		t.Errorf("language = %q, want fr", got)
	}
	s2 := NewSession("")
	if got := s2.Language(); got != "en" {
		t.Errorf("empty fallback should default to en, got %q", got)
	}
}
