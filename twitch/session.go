package twitch

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Session tracks whether the monitored channel is live, when the stream
// started, and which language it is broadcast in. It is flipped by the live
// poller and read by the scheduler and the chat bot.
type Session struct {
	fallbackLang string

	mu        sync.RWMutex
	active    bool
	startedAt time.Time
	language  string

	onLive    []func()
	onOffline []func()
}

func NewSession(fallbackLang string) *Session {
	if fallbackLang == "" {
		fallbackLang = "en"
	}
	return &Session{fallbackLang: fallbackLang}
}

// OnLive registers a hook invoked on the offline-to-live transition.
// Registration is not safe once pollers are running.
func (s *Session) OnLive(fn func()) { s.onLive = append(s.onLive, fn) }

// OnOffline registers a hook invoked on the live-to-offline transition.
func (s *Session) OnOffline(fn func()) { s.onOffline = append(s.onOffline, fn) }

// SetLive marks the session active with the stream's start time and language.
// Calling it while already live only refreshes the metadata.
func (s *Session) SetLive(st Stream) {
	s.mu.Lock()
	wasActive := s.active
	s.active = true
	s.startedAt = st.StartedAt.UTC()
	if st.Language != "" {
		s.language = st.Language
	}
	s.mu.Unlock()
	if !wasActive {
		slog.Info("stream live", slog.Time("started_at", st.StartedAt), slog.String("title", st.Title))
		for _, fn := range s.onLive {
			fn()
		}
	}
}

// SetOffline marks the session inactive.
func (s *Session) SetOffline() {
	s.mu.Lock()
	wasActive := s.active
	s.active = false
	s.mu.Unlock()
	if wasActive {
		slog.Info("stream offline")
		for _, fn := range s.onOffline {
			fn()
		}
	}
}

// Active reports whether the channel is currently live.
func (s *Session) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// StartedAt returns the stream start time; ok=false when offline.
func (s *Session) StartedAt() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt, s.active
}

// Language returns the stream language, falling back to the configured
// default when the payload did not carry one.
func (s *Session) Language() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.language != "" {
		return s.language
	}
	return s.fallbackLang
}

// StartLivePoller polls stream status for channel and flips the session on
// transitions. Poll errors are logged at debug and retried on the next tick.
func StartLivePoller(ctx context.Context, session *Session, helix *HelixClient, channel string, pollEvery time.Duration) {
	if channel == "" {
		slog.Info("live poller: channel empty; abort")
		return
	}
	if pollEvery <= 0 {
		pollEvery = 30 * time.Second
	}
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()
	slog.Info("live poller started", slog.String("channel", channel), slog.Duration("interval", pollEvery))
	for {
		if ctx.Err() != nil {
			return
		}
		streams, err := helix.GetStreams(ctx, channel)
		if err != nil {
			slog.Debug("live poller: streams req", slog.Any("err", err))
		} else if len(streams) == 0 {
			session.SetOffline()
		} else {
			session.SetLive(streams[0])
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
